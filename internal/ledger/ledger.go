// Package ledger records every experiment run and its evaluation measures in
// a SQL database, so runs with different parameters can be compared later.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/sqldb"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		status      TEXT NOT NULL,
		tokenizer   TEXT NOT NULL,
		models      TEXT NOT NULL,
		params      TEXT NOT NULL,
		top_k       INTEGER NOT NULL,
		documents   INTEGER NOT NULL DEFAULT 0,
		queries     INTEGER NOT NULL DEFAULT 0,
		skipped     INTEGER NOT NULL DEFAULT 0,
		fingerprint TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS evaluations (
		run_id   TEXT NOT NULL REFERENCES runs(id),
		model    TEXT NOT NULL,
		measure  TEXT NOT NULL,
		query_id TEXT NOT NULL,
		value    TEXT NOT NULL,
		PRIMARY KEY (run_id, model, measure, query_id)
	)`,
	`CREATE TABLE IF NOT EXISTS evaluation_failures (
		run_id    TEXT NOT NULL REFERENCES runs(id),
		model     TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		stderr    TEXT NOT NULL,
		PRIMARY KEY (run_id, model)
	)`,
}

// Run is one row of the runs table.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      string
	Tokenizer   string
	Models      []string
	Params      any
	TopK        int
	Documents   int
	Queries     int
	Skipped     int
	Fingerprint string
	Error       string
}

type Store struct {
	db     *sqldb.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func New(db *sqldb.Client) *Store {
	return &Store{
		db:     db,
		retry:  resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond},
		logger: logger.WithComponent("ledger"),
	}
}

// Migrate creates the ledger tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating ledger: %w", err)
		}
	}
	return nil
}

// StartRun inserts a run in the running state.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	models, err := json.Marshal(run.Models)
	if err != nil {
		return fmt.Errorf("encoding models: %w", err)
	}
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	query := s.db.Rebind(`INSERT INTO runs (id, started_at, status, tokenizer, models, params, top_k)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	return s.exec(ctx, "ledger-start-run", query,
		run.ID, run.StartedAt.UTC(), StatusRunning, run.Tokenizer, string(models), string(params), run.TopK)
}

// FinishRun records the final status and counters of a run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	query := s.db.Rebind(`UPDATE runs SET finished_at = ?, status = ?, documents = ?, queries = ?,
		skipped = ?, fingerprint = ?, error = ? WHERE id = ?`)
	return s.exec(ctx, "ledger-finish-run", query,
		finished, run.Status, run.Documents, run.Queries, run.Skipped, run.Fingerprint, run.Error, run.ID)
}

// RecordEvaluation stores the measures produced for one model. A failed
// evaluation is stored with the tool's exit code and stderr instead.
func (s *Store) RecordEvaluation(ctx context.Context, runID, model string, measures []evaluation.Measure, evalErr error) error {
	return resilience.Retry(ctx, "ledger-record-evaluation", s.retry, func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			if evalErr != nil {
				exitCode, stderr := -1, evalErr.Error()
				var toolErr *evaluation.ToolError
				if errors.As(evalErr, &toolErr) {
					exitCode, stderr = toolErr.ExitCode, toolErr.Stderr
				}
				_, err := tx.ExecContext(ctx, s.db.Rebind(
					`INSERT INTO evaluation_failures (run_id, model, exit_code, stderr) VALUES (?, ?, ?, ?)`),
					runID, model, exitCode, stderr)
				return err
			}
			stmt, err := tx.PrepareContext(ctx, s.db.Rebind(
				`INSERT INTO evaluations (run_id, model, measure, query_id, value) VALUES (?, ?, ?, ?, ?)`))
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, m := range measures {
				if _, err := stmt.ExecContext(ctx, runID, model, m.Name, m.QueryID, m.Value); err != nil {
					return fmt.Errorf("inserting measure %s/%s: %w", m.Name, m.QueryID, err)
				}
			}
			return nil
		})
	})
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.DB.QueryContext(ctx, s.db.Rebind(
		`SELECT id, started_at, finished_at, status, tokenizer, models, top_k, documents, queries, skipped, fingerprint, error
		FROM runs ORDER BY started_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
			models   string
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.Tokenizer, &models,
			&r.TopK, &r.Documents, &r.Queries, &r.Skipped, &r.Fingerprint, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		if err := json.Unmarshal([]byte(models), &r.Models); err != nil {
			return nil, fmt.Errorf("decoding models of run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Measures returns the "all" aggregate of every numeric measure recorded for
// a run, keyed by model then measure.
func (s *Store) Measures(ctx context.Context, runID string) (map[string]map[string]string, error) {
	rows, err := s.db.DB.QueryContext(ctx, s.db.Rebind(
		`SELECT model, measure, value FROM evaluations WHERE run_id = ? AND query_id = 'all'`), runID)
	if err != nil {
		return nil, fmt.Errorf("loading measures of run %s: %w", runID, err)
	}
	defer rows.Close()
	out := make(map[string]map[string]string)
	for rows.Next() {
		var model, measure, value string
		if err := rows.Scan(&model, &measure, &value); err != nil {
			return nil, err
		}
		if out[model] == nil {
			out[model] = make(map[string]string)
		}
		out[model][measure] = value
	}
	return out, rows.Err()
}

func (s *Store) exec(ctx context.Context, name, query string, args ...any) error {
	return resilience.Retry(ctx, name, s.retry, func() error {
		_, err := s.db.DB.ExecContext(ctx, query, args...)
		return err
	})
}
