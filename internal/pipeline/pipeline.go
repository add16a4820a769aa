// Package pipeline runs one experiment end to end: read the collection and
// queries, build the index, rank every query under every configured model,
// write one result file per model, evaluate each file and record the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/report"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/trecfmt"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/tracing"
)

// Options carries the optional collaborators of a run. Nil fields disable
// the corresponding feature.
type Options struct {
	Metrics   *metrics.Metrics
	Cache     executor.Cache
	Ledger    *ledger.Store
	Publisher events.Publisher
	Evaluator *evaluation.Runner
	// Stdout and Stderr receive the evaluation tool's output verbatim.
	Stdout io.Writer
	Stderr io.Writer
}

// Summary describes a finished run, successful or not.
type Summary struct {
	RunID     string
	StartedAt time.Time
	Stats     index.Stats
	Queries   int
	Skipped   int
	Files     map[ranker.Model]string
	Outcomes  []report.ModelOutcome
}

type Pipeline struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger
}

func New(cfg *config.Config, opts Options) *Pipeline {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	return &Pipeline{
		cfg:    cfg,
		opts:   opts,
		logger: logger.WithComponent("pipeline"),
	}
}

// Plan is the validated, typed form of the retrieval configuration.
type Plan struct {
	Mode   tokenizer.Mode
	Models []ranker.Model
	Params ranker.Params
	TopK   int
}

// NewPlan resolves tokenizer and model names and checks that the build and
// query analyzers agree.
func NewPlan(cfg config.RetrievalConfig) (Plan, error) {
	buildMode, err := tokenizer.ParseMode(cfg.BuildTokenizer)
	if err != nil {
		return Plan{}, err
	}
	queryMode, err := tokenizer.ParseMode(cfg.QueryTokenizer)
	if err != nil {
		return Plan{}, err
	}
	if err := tokenizer.CheckCompatible(buildMode, queryMode); err != nil {
		return Plan{}, err
	}
	models := make([]ranker.Model, 0, len(cfg.Models))
	seen := make(map[ranker.Model]bool)
	for _, name := range cfg.Models {
		model, err := ranker.ParseModel(name)
		if err != nil {
			return Plan{}, err
		}
		if seen[model] {
			continue
		}
		seen[model] = true
		models = append(models, model)
	}
	if len(models) == 0 {
		return Plan{}, apperrors.New(apperrors.ErrInvalidInput, "no ranking models configured")
	}
	return Plan{
		Mode:   buildMode,
		Models: models,
		Params: ranker.Params{
			K1:              cfg.BM25K1,
			B:               cfg.BM25B,
			Mu:              cfg.DirichletMu,
			CosineNormalize: cfg.CosineNormalize,
			RawIDF:          cfg.RawIDF,
		},
		TopK: cfg.TopK,
	}, nil
}

// Run executes the experiment. Result files written before an evaluation
// failure are kept; the returned error then wraps ErrEvaluationTool.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	plan, err := NewPlan(p.cfg.Retrieval)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := p.logger.With("run_id", runID)
	ctx, root := tracing.StartSpan(ctx, "run", runID)
	emitter := events.NewEmitter(runID, p.opts.Publisher, p.opts.Metrics)
	started := time.Now()
	summary := &Summary{RunID: runID, StartedAt: started, Files: make(map[ranker.Model]string)}

	modelNames := make([]string, len(plan.Models))
	for i, m := range plan.Models {
		modelNames[i] = string(m)
	}
	p.startLedger(ctx, log, ledger.Run{
		ID:        runID,
		StartedAt: started,
		Tokenizer: plan.Mode.String(),
		Models:    modelNames,
		Params:    plan.Params,
		TopK:      plan.TopK,
	})
	emitter.Emit(ctx, events.RunStarted, map[string]any{"models": modelNames, "tokenizer": plan.Mode.String()})
	log.Info("run started", "models", modelNames, "tokenizer", plan.Mode, "top_k", plan.TopK)

	fingerprint := ""
	runErr := p.run(ctx, plan, summary, emitter, &fingerprint)

	root.End()
	root.Log(log)
	for _, phase := range root.Flatten() {
		p.opts.Metrics.PhaseDurationSeconds.WithLabelValues(phase.Path).Set(phase.Duration.Seconds())
	}

	final := ledger.Run{
		ID:          runID,
		Status:      ledger.StatusSucceeded,
		Documents:   int(summary.Stats.DocCount),
		Queries:     summary.Queries,
		Skipped:     summary.Skipped,
		Fingerprint: fingerprint,
	}
	if runErr != nil {
		final.Status = ledger.StatusFailed
		final.Error = runErr.Error()
		emitter.Emit(ctx, events.RunFailed, map[string]any{"error": runErr.Error()})
		log.Error("run failed", "error", runErr, "duration", time.Since(started))
	} else {
		emitter.Emit(ctx, events.RunCompleted, map[string]any{"queries": summary.Queries, "skipped": summary.Skipped})
		log.Info("run completed", "queries", summary.Queries, "skipped", summary.Skipped, "duration", time.Since(started))
	}
	p.finishLedger(ctx, log, final)
	return summary, runErr
}

func (p *Pipeline) run(ctx context.Context, plan Plan, summary *Summary, emitter *events.Emitter, fingerprint *string) error {
	// Both inputs are read in full before indexing so a malformed file
	// aborts the run without partial output.
	_, readSpan := tracing.StartChildSpan(ctx, "read")
	docs, err := collection.ReadDocumentsFile(p.cfg.Input.Collection)
	if err != nil {
		readSpan.End()
		return fmt.Errorf("reading collection: %w", err)
	}
	rawQueries, err := collection.ReadQueriesFile(p.cfg.Input.Queries)
	readSpan.SetAttr("documents", len(docs))
	readSpan.SetAttr("queries", len(rawQueries))
	readSpan.End()
	if err != nil {
		return fmt.Errorf("reading queries: %w", err)
	}

	buildCtx, buildSpan := tracing.StartChildSpan(ctx, "build")
	engine := indexer.NewEngine(plan.Mode, p.opts.Metrics)
	idx, err := engine.Build(buildCtx, docs)
	buildSpan.End()
	if err != nil && !errors.Is(err, apperrors.ErrEmptyCollection) {
		return fmt.Errorf("building index: %w", err)
	}
	summary.Stats = idx.Stats()
	*fingerprint = idx.Fingerprint()
	emitter.Emit(ctx, events.IndexBuilt, map[string]any{
		"documents":      summary.Stats.DocCount,
		"terms":          summary.Stats.Terms,
		"avg_doc_length": summary.Stats.AvgDocLength,
		"fingerprint":    *fingerprint,
	})

	queryCtx, querySpan := tracing.StartChildSpan(ctx, "query")
	built, err := engine.Index()
	if err != nil {
		querySpan.End()
		return err
	}
	ex, err := executor.New(built, executor.Options{
		Params:    plan.Params,
		TopK:      plan.TopK,
		QueryMode: plan.Mode,
		Workers:   p.cfg.Retrieval.Workers,
		Cache:     p.opts.Cache,
		Metrics:   p.opts.Metrics,
	})
	if err != nil {
		querySpan.End()
		return err
	}
	queries, skipped := ex.ParseQueries(rawQueries)
	summary.Queries = len(queries)
	summary.Skipped = len(skipped)
	batch, err := ex.RunBatch(queryCtx, queries, plan.Models)
	querySpan.SetAttr("queries", len(queries))
	querySpan.SetAttr("skipped", len(skipped))
	querySpan.End()
	if err != nil {
		return fmt.Errorf("ranking queries: %w", err)
	}

	_, writeSpan := tracing.StartChildSpan(ctx, "write")
	for _, model := range plan.Models {
		results := batch.ByModel[model]
		path, err := trecfmt.WriteFile(p.cfg.Output.Dir, model, results, p.cfg.Output.Tag, p.cfg.Output.DocIDOffset)
		if err != nil {
			writeSpan.End()
			return err
		}
		summary.Files[model] = path
		summary.Outcomes = append(summary.Outcomes, report.ModelOutcome{Model: model, ResultsPath: path, Results: len(results)})
		emitter.Emit(ctx, events.ModelCompleted, map[string]any{"model": model, "results": len(results), "path": path})
	}
	writeSpan.End()

	evalErr := p.evaluate(ctx, summary)

	if p.cfg.Report.Enabled {
		_, reportSpan := tracing.StartChildSpan(ctx, "report")
		err := report.Write(p.cfg.Report.Path, report.Input{
			RunID:     summary.RunID,
			StartedAt: summary.StartedAt,
			Tokenizer: plan.Mode.String(),
			Params:    plan.Params,
			TopK:      plan.TopK,
			Queries:   summary.Queries,
			Skipped:   summary.Skipped,
			Stats:     summary.Stats,
			Models:    summary.Outcomes,
		})
		reportSpan.End()
		if err != nil {
			p.logger.Warn("report not written", "path", p.cfg.Report.Path, "error", err)
		}
	}
	return evalErr
}

// evaluate runs the tool once per result file. Every model is attempted even
// after a failure; the first failure is returned.
func (p *Pipeline) evaluate(ctx context.Context, summary *Summary) error {
	if p.opts.Evaluator == nil || !p.cfg.Evaluation.Enabled {
		return nil
	}
	evalCtx, span := tracing.StartChildSpan(ctx, "evaluate")
	defer span.End()

	var firstErr error
	for i := range summary.Outcomes {
		outcome := &summary.Outcomes[i]
		result, err := p.opts.Evaluator.Evaluate(evalCtx, p.cfg.Input.Judgments, outcome.ResultsPath)
		status := "ok"
		if err != nil {
			status = "error"
			outcome.Err = err
			var toolErr *evaluation.ToolError
			if errors.As(err, &toolErr) {
				io.WriteString(p.opts.Stdout, toolErr.Stdout)
				io.WriteString(p.opts.Stderr, toolErr.Stderr)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("model %s: %w", outcome.Model, err)
			}
		} else {
			outcome.Measures = result.Measures
			fmt.Fprintf(p.opts.Stdout, "=== %s (%s) ===\n", outcome.Model, outcome.ResultsPath)
			io.WriteString(p.opts.Stdout, result.Stdout)
		}
		p.opts.Metrics.EvaluationRunsTotal.WithLabelValues(string(outcome.Model), status).Inc()
		if p.opts.Ledger != nil {
			if lerr := p.opts.Ledger.RecordEvaluation(ctx, summary.RunID, string(outcome.Model), outcome.Measures, outcome.Err); lerr != nil {
				p.logger.Warn("evaluation not recorded in ledger", "model", outcome.Model, "error", lerr)
			}
		}
	}
	return firstErr
}

func (p *Pipeline) startLedger(ctx context.Context, log *slog.Logger, run ledger.Run) {
	if p.opts.Ledger == nil {
		return
	}
	if err := p.opts.Ledger.StartRun(ctx, run); err != nil {
		log.Warn("run not recorded in ledger", "error", err)
	}
}

func (p *Pipeline) finishLedger(ctx context.Context, log *slog.Logger, run ledger.Run) {
	if p.opts.Ledger == nil {
		return
	}
	if err := p.opts.Ledger.FinishRun(ctx, run); err != nil {
		log.Warn("run completion not recorded in ledger", "error", err)
	}
}
