// Package indexer runs the build phase: every document is stored, analysed
// and added to a single in-memory index before any query may run.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/metrics"
)

const cancelCheckInterval = 256

// Engine owns the document store and the index built from it. Build runs
// once; afterwards the index is read-only and shared freely.
type Engine struct {
	analyzer tokenizer.Analyzer
	store    *docstore.Store
	idx      *index.Index
	mu       sync.RWMutex
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewEngine(mode tokenizer.Mode, m *metrics.Metrics) *Engine {
	return &Engine{
		analyzer: tokenizer.NewAnalyzer(mode),
		store:    docstore.New(),
		metrics:  m,
		logger:   logger.WithComponent("indexer"),
	}
}

// Build stores and indexes texts in order, assigning doc IDs from 0. An
// empty collection still produces a queryable (empty) index, returned
// together with ErrEmptyCollection.
func (e *Engine) Build(ctx context.Context, texts []string) (*index.Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.idx != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "index already built")
	}

	start := time.Now()
	idx, err := e.build(ctx, texts)
	if err != nil && !errors.Is(err, apperrors.ErrEmptyCollection) {
		// Partial documents would shift the IDs of a retried build.
		e.store = docstore.New()
		return nil, err
	}
	e.idx = idx

	stats := idx.Stats()
	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Add(float64(stats.DocCount))
		e.metrics.IndexTerms.Set(float64(stats.Terms))
		e.metrics.IndexAvgDocLength.Set(stats.AvgDocLength)
		e.metrics.IndexBuildSeconds.Set(elapsed.Seconds())
	}
	e.logger.Info("index built",
		"mode", idx.Mode(),
		"docs", stats.DocCount,
		"terms", stats.Terms,
		"postings", stats.Postings,
		"avg_doc_length", stats.AvgDocLength,
		"duration", elapsed,
	)
	if err != nil {
		e.logger.Warn("collection is empty, every query will return no results")
	}
	return idx, err
}

func (e *Engine) build(ctx context.Context, texts []string) (*index.Index, error) {
	builder := index.NewBuilder(e.analyzer.Mode())
	for i, text := range texts {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("index build cancelled after %d documents: %w", i, err)
			}
		}
		id := e.store.Add(text)
		terms := e.analyzer.Analyze(text)
		if err := e.store.SetTerms(id, terms); err != nil {
			return nil, err
		}
		if err := builder.Add(id, terms); err != nil {
			return nil, fmt.Errorf("indexing doc_id %d: %w", id, err)
		}
	}
	idx, err := builder.Finish()
	if err != nil && !errors.Is(err, apperrors.ErrEmptyCollection) {
		return nil, fmt.Errorf("finishing index: %w", err)
	}
	if verr := idx.Validate(); verr != nil {
		return nil, verr
	}
	return idx, err
}

// Index returns the built index, or ErrIndexNotBuilt before Build completes.
func (e *Engine) Index() (*index.Index, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.idx == nil {
		return nil, apperrors.New(apperrors.ErrIndexNotBuilt, "query phase requested before build")
	}
	return e.idx, nil
}

func (e *Engine) Mode() tokenizer.Mode {
	return e.analyzer.Mode()
}
