package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/sqldb"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.Open(ctx, config.LedgerConfig{Driver: sqldb.DriverSQLite, Path: filepath.Join(t.TempDir(), "ledger.db")}, config.PostgresConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := New(db)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.StartRun(ctx, Run{
		ID:        "run-1",
		StartedAt: started,
		Tokenizer: "standard",
		Models:    []string{"BM25", "TFIDF"},
		Params:    ranker.DefaultParams(),
		TopK:      50,
	}))
	require.NoError(t, s.StartRun(ctx, Run{
		ID:        "run-2",
		StartedAt: started.Add(time.Hour),
		Tokenizer: "stop",
		Models:    []string{"LMDirichlet"},
		Params:    ranker.DefaultParams(),
		TopK:      10,
	}))
	require.NoError(t, s.FinishRun(ctx, Run{
		ID:          "run-1",
		Status:      StatusSucceeded,
		Documents:   1400,
		Queries:     225,
		Fingerprint: "abc",
	}))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)

	first := runs[1]
	assert.Equal(t, StatusSucceeded, first.Status)
	assert.Equal(t, []string{"BM25", "TFIDF"}, first.Models)
	assert.Equal(t, 1400, first.Documents)
	assert.Equal(t, 225, first.Queries)
	assert.Equal(t, "abc", first.Fingerprint)
	require.NotNil(t, first.FinishedAt)
	assert.True(t, first.StartedAt.Equal(started))

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecordEvaluation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartRun(ctx, Run{ID: "run-1", StartedAt: time.Now(), Tokenizer: "standard", Models: []string{"BM25"}, Params: ranker.DefaultParams(), TopK: 50}))

	measures := evaluation.ParseMeasures("map\tall\t0.4012\nP_5\tall\t0.41\nP_5\t1\t0.6\n")
	require.NoError(t, s.RecordEvaluation(ctx, "run-1", "BM25", measures, nil))
	require.NoError(t, s.RecordEvaluation(ctx, "run-1", "TFIDF", nil, &evaluation.ToolError{ExitCode: 2, Stderr: "bad qrels"}))

	got, err := s.Measures(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]string{"BM25": {"map": "0.4012", "P_5": "0.41"}}, got)

	var stderr string
	var exitCode int
	require.NoError(t, s.db.DB.QueryRowContext(ctx,
		"SELECT exit_code, stderr FROM evaluation_failures WHERE run_id = ? AND model = ?", "run-1", "TFIDF").Scan(&exitCode, &stderr))
	assert.Equal(t, 2, exitCode)
	assert.Equal(t, "bad qrels", stderr)
}

func TestRecordEvaluationUnwrapsToolError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.StartRun(ctx, Run{ID: "run-2", StartedAt: time.Now(), Tokenizer: "standard", Models: []string{"BM25"}, Params: ranker.DefaultParams(), TopK: 50}))

	wrapped := fmt.Errorf("model BM25: %w", &evaluation.ToolError{ExitCode: 3, Stderr: "trec_eval: cannot read qrels"})
	require.NoError(t, s.RecordEvaluation(ctx, "run-2", "BM25", nil, wrapped))

	var stderr string
	var exitCode int
	require.NoError(t, s.db.DB.QueryRowContext(ctx,
		"SELECT exit_code, stderr FROM evaluation_failures WHERE run_id = ? AND model = ?", "run-2", "BM25").Scan(&exitCode, &stderr))
	assert.Equal(t, 3, exitCode)
	assert.Equal(t, "trec_eval: cannot read qrels", stderr)
}
