package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/sqldb"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	listRuns := flag.Int("list-runs", 0, "print the N most recent runs from the ledger and exit")
	invalidateCache := flag.Bool("invalidate-cache", false, "drop every cached ranking before the run")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return apperrors.ExitConfig
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return apperrors.ExitCode(err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()
	opts := pipeline.Options{Metrics: m, Stdout: os.Stdout, Stderr: os.Stderr}

	if cfg.Ledger.Enabled {
		db, err := sqldb.Open(ctx, cfg.Ledger, cfg.Postgres)
		if err != nil {
			slog.Warn("ledger unavailable, run will not be recorded", "driver", cfg.Ledger.Driver, "error", err)
		} else {
			defer db.Close()
			store := ledger.New(db)
			if err := store.Migrate(ctx); err != nil {
				slog.Warn("ledger migration failed, run will not be recorded", "error", err)
			} else {
				opts.Ledger = store
				checker.Register("ledger", health.PingCheck(db.Ping))
			}
		}
	}
	if *listRuns > 0 {
		if opts.Ledger == nil {
			fmt.Fprintln(os.Stderr, "ledger is not enabled or unavailable")
			return apperrors.ExitConfig
		}
		return printRuns(ctx, opts.Ledger, *listRuns)
	}

	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, ranking cache disabled", "error", err)
		} else {
			defer client.Close()
			var rankingCache executor.Cache = newRankingCache(ctx, client, cfg.Redis.CacheTTL, m, *invalidateCache)
			opts.Cache = rankingCache
			checker.Register("redis", health.PingCheck(client.Ping))
			slog.Info("ranking cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		var publisher events.Publisher = producer
		opts.Publisher = publisher
		checker.Register("kafka", health.PingCheck(producer.Ping))
		slog.Info("run events enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	if cfg.Evaluation.Enabled {
		runner := evaluation.NewRunner(cfg.Evaluation.Binary, cfg.Evaluation.Timeout)
		runner.Args = cfg.Evaluation.Args
		opts.Evaluator = runner
		checker.Register("evaluator", health.BinaryCheck(cfg.Evaluation.Binary))
	}

	if err := checker.Preflight(ctx); err != nil {
		// Sinks degrade individually; a missing evaluator surfaces as an
		// evaluation failure once the result files exist.
		slog.Warn("continuing with degraded sinks", "error", err)
	}

	if cfg.Metrics.Port > 0 {
		shutdown := metrics.StartServer(cfg.Metrics.Port, m, checker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	summary, err := pipeline.New(cfg, opts).Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if werr := m.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			slog.Warn("metrics textfile not written", "path", cfg.Metrics.Textfile, "error", werr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return apperrors.ExitCode(err)
	}
	for _, model := range summary.Outcomes {
		fmt.Printf("Results written to %s\n", model.ResultsPath)
	}
	if opts.Evaluator != nil {
		fmt.Println("Evaluation completed successfully.")
	}
	return apperrors.ExitOK
}

func printRuns(ctx context.Context, store *ledger.Store, limit int) int {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return apperrors.ExitCode(err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tTOKENIZER\tMODELS\tDOCS\tQUERIES\tSKIPPED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%d\t%d\t%d\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Status, r.Tokenizer, r.Models, r.Documents, r.Queries, r.Skipped)
	}
	tw.Flush()
	return apperrors.ExitOK
}

// newRankingCache wraps store, first dropping every cached ranking when
// invalidate is set. A failed invalidation is logged and the cache kept.
func newRankingCache(ctx context.Context, store cache.Store, ttl time.Duration, m *metrics.Metrics, invalidate bool) *cache.RankingCache {
	rc := cache.New(store, ttl, m)
	if invalidate {
		if err := rc.Invalidate(ctx); err != nil {
			slog.Warn("cache invalidation failed", "error", err)
		}
	}
	return rc
}
