package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/metrics"
)

const DefaultTopK = 50

// RankedResult is one line of a ranking: a document at a 1-based rank for a
// query under a model.
type RankedResult struct {
	QueryID uint32       `json:"query_id"`
	Model   ranker.Model `json:"model"`
	DocID   uint32       `json:"doc_id"`
	Rank    uint32       `json:"rank"`
	Score   float64      `json:"score"`
}

// Candidates returns the sorted, de-duplicated union of the documents that
// contain at least one of terms.
func Candidates(terms []string, idx *index.Index) []uint32 {
	seen := make(map[uint32]struct{})
	for _, term := range terms {
		pl := idx.Postings(term)
		if pl == nil {
			continue
		}
		for _, p := range pl.Postings {
			seen[p.DocID] = struct{}{}
		}
	}
	docs := make([]uint32, 0, len(seen))
	for id := range seen {
		docs = append(docs, id)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })
	return docs
}

// Run ranks the candidates of q under model and returns at most topK results
// ordered by descending score, ties broken by ascending doc ID. A query
// matching no document yields an empty, non-nil slice.
func Run(q parser.Query, idx *index.Index, model ranker.Model, params ranker.Params, topK int) []RankedResult {
	c := merger.NewCollector(topK)
	for _, docID := range Candidates(q.Terms, idx) {
		c.Offer(ranker.ScoredDoc{
			DocID: docID,
			Score: ranker.Score(model, params, q.Terms, docID, idx),
		})
	}
	top := c.Results()
	results := make([]RankedResult, len(top))
	for i, doc := range top {
		results[i] = RankedResult{
			QueryID: q.ID,
			Model:   model,
			DocID:   doc.DocID,
			Rank:    uint32(i + 1),
			Score:   doc.Score,
		}
	}
	return results
}

// Cache memoises rankings across runs. Implementations must return exactly
// what compute would have returned.
type Cache interface {
	GetOrCompute(ctx context.Context, req CacheRequest, compute func() ([]RankedResult, error)) ([]RankedResult, bool, error)
}

// CacheRequest identifies one ranking independently of the query's ID.
type CacheRequest struct {
	Fingerprint string
	Model       ranker.Model
	Params      ranker.Params
	TopK        int
	Terms       []string
}

// SkippedQuery records a query dropped from the batch and why.
type SkippedQuery struct {
	QueryID uint32
	Err     error
}

// BatchResult holds every ranking of a batch grouped per model, each group in
// query-ID order.
type BatchResult struct {
	Models  []ranker.Model
	ByModel map[ranker.Model][]RankedResult
	Queries int
	Skipped []SkippedQuery
}

type Options struct {
	Params    ranker.Params
	TopK      int
	QueryMode tokenizer.Mode
	Workers   int
	Cache     Cache
	Metrics   *metrics.Metrics
}

// Executor runs query batches against one immutable index.
type Executor struct {
	idx         *index.Index
	fingerprint string
	opts        Options
	logger      *slog.Logger
}

// New refuses an index built with a different analyzer than the one queries
// will be parsed with.
func New(idx *index.Index, opts Options) (*Executor, error) {
	if err := tokenizer.CheckCompatible(idx.Mode(), opts.QueryMode); err != nil {
		return nil, err
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	e := &Executor{
		idx:    idx,
		opts:   opts,
		logger: logger.WithComponent("query-executor"),
	}
	if opts.Cache != nil {
		e.fingerprint = idx.Fingerprint()
	}
	return e, nil
}

// ParseQueries analyses raw queries with the executor's query mode. Queries
// that cannot be parsed are logged and returned as skipped.
func (e *Executor) ParseQueries(raw []collection.RawQuery) ([]parser.Query, []SkippedQuery) {
	queries := make([]parser.Query, 0, len(raw))
	var skipped []SkippedQuery
	for _, rq := range raw {
		q, err := parser.Parse(rq.ID, rq.Text, e.opts.QueryMode)
		if err != nil {
			e.logger.Warn("skipping query", "query_id", rq.ID, "error", err)
			if e.opts.Metrics != nil {
				e.opts.Metrics.QueriesSkippedTotal.Inc()
			}
			skipped = append(skipped, SkippedQuery{QueryID: rq.ID, Err: err})
			continue
		}
		queries = append(queries, q)
	}
	return queries, skipped
}

// RunBatch ranks every query under every model. (query, model) pairs are
// independent and run concurrently, each writing only its own slot.
func (e *Executor) RunBatch(ctx context.Context, queries []parser.Query, models []ranker.Model) (*BatchResult, error) {
	ordered := make([]parser.Query, len(queries))
	copy(ordered, queries)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	slots := make([][][]RankedResult, len(models))
	for m := range models {
		slots[m] = make([][]RankedResult, len(ordered))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for m, model := range models {
		for qi, q := range ordered {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results, err := e.rank(gctx, q, model)
				if err != nil {
					return fmt.Errorf("query %d model %s: %w", q.ID, model, err)
				}
				slots[m][qi] = results
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &BatchResult{
		Models:  models,
		ByModel: make(map[ranker.Model][]RankedResult, len(models)),
		Queries: len(ordered),
	}
	for m, model := range models {
		var all []RankedResult
		for _, results := range slots[m] {
			all = append(all, results...)
		}
		if all == nil {
			all = []RankedResult{}
		}
		batch.ByModel[model] = all
	}
	return batch, nil
}

func (e *Executor) rank(ctx context.Context, q parser.Query, model ranker.Model) ([]RankedResult, error) {
	start := time.Now()
	compute := func() ([]RankedResult, error) {
		return Run(q, e.idx, model, e.opts.Params, e.opts.TopK), nil
	}

	var (
		results []RankedResult
		err     error
	)
	if e.opts.Cache != nil {
		req := CacheRequest{
			Fingerprint: e.fingerprint,
			Model:       model,
			Params:      e.opts.Params,
			TopK:        e.opts.TopK,
			Terms:       q.Terms,
		}
		results, _, err = e.opts.Cache.GetOrCompute(ctx, req, compute)
		if err != nil {
			return nil, err
		}
		results = withQueryID(results, q.ID)
	} else {
		results, _ = compute()
	}

	if e.opts.Metrics != nil {
		e.opts.Metrics.QueriesScoredTotal.WithLabelValues(string(model)).Inc()
		e.opts.Metrics.ScoringLatency.WithLabelValues(string(model)).Observe(time.Since(start).Seconds())
		e.opts.Metrics.ResultsPerQuery.WithLabelValues(string(model)).Observe(float64(len(results)))
	}
	e.logger.Debug("top results recorded",
		"query_id", q.ID,
		"model", model,
		"results", len(results),
	)
	return results, nil
}

// withQueryID returns a copy of results relabelled for queryID. Cached
// rankings are shared by every query with the same terms.
func withQueryID(results []RankedResult, queryID uint32) []RankedResult {
	out := make([]RankedResult, len(results))
	for i, r := range results {
		r.QueryID = queryID
		out[i] = r
	}
	return out
}
