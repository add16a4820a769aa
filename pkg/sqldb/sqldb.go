// Package sqldb opens the run ledger database. Both lib/pq (postgres) and
// mattn/go-sqlite3 (sqlite3) are registered; queries are written with "?"
// placeholders and rebound for the active driver.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Client struct {
	DB     *sql.DB
	driver string
}

// Open connects with the ledger's configured driver and verifies the
// connection.
func Open(ctx context.Context, ledger config.LedgerConfig, pg config.PostgresConfig) (*Client, error) {
	var (
		db  *sql.DB
		err error
	)
	switch ledger.Driver {
	case DriverPostgres:
		db, err = sql.Open(DriverPostgres, pg.DSN())
		if err != nil {
			return nil, fmt.Errorf("opening postgres connection: %w", err)
		}
		db.SetMaxOpenConns(pg.MaxOpenConns)
		db.SetMaxIdleConns(pg.MaxIdleConns)
		db.SetConnMaxLifetime(pg.ConnMaxLifetime)
	case DriverSQLite:
		if dir := filepath.Dir(ledger.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating ledger directory: %w", err)
			}
		}
		db, err = sql.Open(DriverSQLite, ledger.Path+"?_busy_timeout=5000&_foreign_keys=on")
		if err != nil {
			return nil, fmt.Errorf("opening sqlite ledger %s: %w", ledger.Path, err)
		}
		// One writer at a time.
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", ledger.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", ledger.Driver, err)
	}
	return &Client{DB: db, driver: ledger.Driver}, nil
}

func (c *Client) Driver() string {
	return c.driver
}

// Rebind rewrites "?" placeholders as $1, $2, ... for postgres.
func (c *Client) Rebind(query string) string {
	if c.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
