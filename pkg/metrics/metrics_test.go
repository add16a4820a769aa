package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/health"
)

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.DocsIndexedTotal.Add(1400)
	m.QueriesScoredTotal.WithLabelValues("BM25").Add(225)

	path := filepath.Join(t.TempDir(), "harness.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "harness_docs_indexed_total 1400")
	assert.Contains(t, string(data), `harness_queries_scored_total{model="BM25"} 225`)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.CacheHitsTotal.Inc()
	assert.NotSame(t, a.Registry, b.Registry)
}

func TestRouter(t *testing.T) {
	m := New()
	checker := health.NewChecker()
	checker.Register("ledger", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusDown, Message: "unreachable"}
	})
	srv := httptest.NewServer(NewRouter(m, checker))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
