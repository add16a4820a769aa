//go:build e2e

// Package e2e runs the full harness over the real Cranfield collection and
// evaluates every model with trec_eval.
//
// Prerequisites:
//   - E2E_CRAN_DIR pointing at a directory holding cran.all.1400, cran.qry
//     and cranqrel
//   - trec_eval on PATH (or E2E_TREC_EVAL)
//
// Run with:
//
//	go test -v -tags=e2e -timeout=300s ./test/e2e/...
package e2e

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/config"
)

func cranfieldConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := os.Getenv("E2E_CRAN_DIR")
	if dir == "" {
		t.Skip("E2E_CRAN_DIR not set")
	}
	binary := os.Getenv("E2E_TREC_EVAL")
	if binary == "" {
		binary = "trec_eval"
	}
	if _, err := exec.LookPath(binary); err != nil {
		t.Skipf("trec_eval unavailable: %v", err)
	}

	cfg := config.Default()
	cfg.Input.Collection = filepath.Join(dir, "cran.all.1400")
	cfg.Input.Queries = filepath.Join(dir, "cran.qry")
	cfg.Input.Judgments = filepath.Join(dir, "cranqrel")
	cfg.Output.Dir = t.TempDir()
	// The stock judgments number documents from 1.
	cfg.Output.DocIDOffset = 1
	cfg.Evaluation.Binary = binary
	cfg.Report.Enabled = true
	cfg.Report.Path = filepath.Join(cfg.Output.Dir, "report.xlsx")
	require.NoError(t, cfg.Validate())
	return cfg, binary
}

func TestCranfieldRun(t *testing.T) {
	cfg, binary := cranfieldConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()
	summary, err := pipeline.New(cfg, pipeline.Options{
		Evaluator: evaluation.NewRunner(binary, cfg.Evaluation.Timeout),
	}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint32(1400), summary.Stats.DocCount)
	assert.Equal(t, 225, summary.Queries+summary.Skipped)
	assert.FileExists(t, cfg.Report.Path)

	for _, outcome := range summary.Outcomes {
		t.Run(string(outcome.Model), func(t *testing.T) {
			assertRunFile(t, outcome.ResultsPath, outcome.Model, cfg.Retrieval.TopK)
			measures := evaluation.Summary(outcome.Measures)
			require.Contains(t, measures, "map")
			// Every model should clear a trivial baseline on Cranfield.
			assert.Greater(t, measures["map"], 0.1)
		})
	}
}

func assertRunFile(t *testing.T, path string, model ranker.Model, topK int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	perQuery := make(map[string]int)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		require.Len(t, fields, 6)
		assert.Equal(t, string(model), fields[1])
		perQuery[fields[0]]++
	}
	require.NoError(t, scanner.Err())
	require.NotEmpty(t, perQuery)
	for qid, n := range perQuery {
		assert.LessOrEqual(t, n, topK, "query %s", qid)
	}
}
