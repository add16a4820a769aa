// Command loadtest measures ranking latency and throughput in process: it
// builds the configured collection once, then concurrent workers score the
// configured queries under every model for a fixed duration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	concurrency := flag.Int("concurrency", 8, "number of concurrent workers")
	duration := flag.Duration("duration", 10*time.Second, "test duration")
	textfile := flag.String("metrics", "", "write the latency histograms to this Prometheus textfile")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return apperrors.ExitCode(err)
	}
	logger.Setup("warn", cfg.Logging.Format)

	plan, ix, queries, skipped, err := prepare(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return apperrors.ExitCode(err)
	}

	fmt.Println("=== Ranking Load Test ===")
	fmt.Printf("Index:       %s\n", ix)
	fmt.Printf("Models:      %v\n", plan.Models)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d (%d skipped)\n\n", len(queries), skipped)

	m := metrics.New()
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	samples, err := load(ctx, ix, plan, queries, *concurrency, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return apperrors.ExitInternal
	}

	summaries := summarize(samples, plan.Models)
	printSummaries(os.Stdout, summaries, *duration)
	if *textfile != "" {
		if err := m.WriteTextfile(*textfile); err != nil {
			fmt.Fprintf(os.Stderr, "writing metrics: %v\n", err)
		}
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stderr, "no queries completed")
		return apperrors.ExitInternal
	}
	return apperrors.ExitOK
}

func prepare(cfg *config.Config) (pipeline.Plan, *index.Index, []parser.Query, int, error) {
	plan, err := pipeline.NewPlan(cfg.Retrieval)
	if err != nil {
		return plan, nil, nil, 0, err
	}
	docs, err := collection.ReadDocumentsFile(cfg.Input.Collection)
	if err != nil {
		return plan, nil, nil, 0, err
	}
	raw, err := collection.ReadQueriesFile(cfg.Input.Queries)
	if err != nil {
		return plan, nil, nil, 0, err
	}
	ix, err := indexer.NewEngine(plan.Mode, nil).Build(context.Background(), docs)
	if err != nil {
		return plan, nil, nil, 0, err
	}
	ex, err := executor.New(ix, executor.Options{Params: plan.Params, TopK: plan.TopK, QueryMode: plan.Mode})
	if err != nil {
		return plan, nil, nil, 0, err
	}
	queries, skipped := ex.ParseQueries(raw)
	if len(queries) == 0 {
		return plan, nil, nil, 0, apperrors.New(apperrors.ErrInputFormat, "no searchable queries")
	}
	return plan, ix, queries, len(skipped), nil
}

type sample struct {
	model   ranker.Model
	latency time.Duration
	empty   bool
}

// load runs workers until ctx expires. Each worker walks the query×model
// grid from its own offset and keeps its samples locally.
func load(ctx context.Context, ix *index.Index, plan pipeline.Plan, queries []parser.Query, workers int, m *metrics.Metrics) ([]sample, error) {
	perWorker := make([][]sample, max(workers, 1))
	g, ctx := errgroup.WithContext(ctx)
	for w := range perWorker {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				q := queries[i%len(queries)]
				model := plan.Models[(i/len(queries))%len(plan.Models)]
				start := time.Now()
				results := executor.Run(q, ix, model, plan.Params, plan.TopK)
				elapsed := time.Since(start)
				m.ScoringLatency.WithLabelValues(string(model)).Observe(elapsed.Seconds())
				m.QueriesScoredTotal.WithLabelValues(string(model)).Inc()
				perWorker[w] = append(perWorker[w], sample{model: model, latency: elapsed, empty: len(results) == 0})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	return slices.Concat(perWorker...), nil
}

type summary struct {
	model              ranker.Model
	count, empty       int
	min, max, mean     time.Duration
	p50, p90, p99, std time.Duration
}

func summarize(samples []sample, models []ranker.Model) []summary {
	byModel := make(map[ranker.Model][]sample, len(models))
	for _, s := range samples {
		byModel[s.model] = append(byModel[s.model], s)
	}
	var out []summary
	for _, model := range models {
		ss := byModel[model]
		if len(ss) == 0 {
			continue
		}
		lat := make([]time.Duration, len(ss))
		sum := summary{model: model, count: len(ss)}
		var total float64
		for i, s := range ss {
			lat[i] = s.latency
			total += float64(s.latency)
			if s.empty {
				sum.empty++
			}
		}
		slices.Sort(lat)
		mean := total / float64(len(lat))
		var sq float64
		for _, l := range lat {
			sq += (float64(l) - mean) * (float64(l) - mean)
		}
		sum.min, sum.max = lat[0], lat[len(lat)-1]
		sum.mean = time.Duration(mean)
		sum.std = time.Duration(math.Sqrt(sq / float64(len(lat))))
		sum.p50, sum.p90, sum.p99 = percentile(lat, 50), percentile(lat, 90), percentile(lat, 99)
		out = append(out, sum)
	}
	return out
}

func printSummaries(w *os.File, summaries []summary, elapsed time.Duration) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tQUERIES\tQPS\tEMPTY\tMIN\tMEAN\tP50\tP90\tP99\tMAX\tSTDDEV")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.model, s.count, float64(s.count)/elapsed.Seconds(), s.empty,
			s.min, s.mean, s.p50, s.p90, s.p99, s.max, s.std)
	}
	tw.Flush()
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	return sorted[min(max(rank, 1), len(sorted))-1]
}
