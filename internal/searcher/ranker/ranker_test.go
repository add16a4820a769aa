package ranker

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
)

func quickFoxIndex(t *testing.T) *index.Index {
	t.Helper()
	ix, err := index.Build(docstore.FromTexts([]string{"the quick fox", "the quick quick dog"}).Documents(), tokenizer.Standard)
	require.NoError(t, err)
	return ix
}

func TestQuickScenarioScores(t *testing.T) {
	ix := quickFoxIndex(t)
	params := DefaultParams()
	query := []string{"quick"}

	tests := []struct {
		model      Model
		doc0, doc1 float64
	}{
		{BM25, 0.19363806721564836, 0.2410087531868585},
		{TFIDF, 1.0, 1.6931471805599454},
		{LMDirichlet, -0.8476307498709701, -0.8469652477115944},
	}
	for _, tt := range tests {
		t.Run(string(tt.model), func(t *testing.T) {
			s0 := Score(tt.model, params, query, 0, ix)
			s1 := Score(tt.model, params, query, 1, ix)
			assert.InDelta(t, tt.doc0, s0, 1e-12)
			assert.InDelta(t, tt.doc1, s1, 1e-12)
			assert.Greater(t, s1, s0)
		})
	}
}

func TestBM25MonotonicInTermFrequency(t *testing.T) {
	prev := -1.0
	for tf := 0.0; tf <= 20; tf++ {
		w := BM25TermWeight(tf, 100, 120, DefaultK1, DefaultB)
		assert.GreaterOrEqual(t, w, prev, "tf=%v", tf)
		prev = w
	}
	// saturates below k1+1
	assert.Less(t, BM25TermWeight(1e6, 100, 120, DefaultK1, DefaultB), DefaultK1+1)
}

func TestBM25NonIncreasingInDocFrequency(t *testing.T) {
	prev := math.Inf(1)
	for df := 1.0; df <= 1400; df += 7 {
		idf := BM25IDF(1400, df)
		assert.LessOrEqual(t, idf, prev, "df=%v", df)
		assert.Greater(t, idf, 0.0)
		prev = idf
	}
	assert.Equal(t, 0.0, BM25IDF(1400, 0))
}

func TestBM25LengthNormalisation(t *testing.T) {
	short := BM25TermWeight(2, 50, 100, DefaultK1, DefaultB)
	long := BM25TermWeight(2, 200, 100, DefaultK1, DefaultB)
	assert.Greater(t, short, long)

	flat := BM25TermWeight(2, 200, 100, DefaultK1, 0)
	assert.InDelta(t, BM25TermWeight(2, 50, 100, DefaultK1, 0), flat, 1e-12)
	assert.Equal(t, 0.0, BM25TermWeight(0, 50, 100, DefaultK1, DefaultB))
	assert.False(t, math.IsNaN(BM25TermWeight(1, 0, 0, DefaultK1, DefaultB)))
}

func TestUnseenTermsScoreZero(t *testing.T) {
	ix := quickFoxIndex(t)
	query := []string{"aeroelastic", "flutter"}
	for _, model := range AllModels {
		for doc := uint32(0); doc < ix.DocCount(); doc++ {
			score := Score(model, DefaultParams(), query, doc, ix)
			assert.Equal(t, 0.0, score, "%s doc %d", model, doc)
		}
	}
}

func TestUnseenTermDoesNotChangeScore(t *testing.T) {
	ix := quickFoxIndex(t)
	for _, model := range AllModels {
		base := Score(model, DefaultParams(), []string{"quick"}, 1, ix)
		mixed := Score(model, DefaultParams(), []string{"quick", "supersonic"}, 1, ix)
		assert.Equal(t, base, mixed, model)
		assert.False(t, math.IsInf(mixed, 0), model)
	}
}

func TestEmptyIndexScoresZero(t *testing.T) {
	ix, err := index.Build(nil, tokenizer.Standard)
	require.Error(t, err)
	for _, model := range AllModels {
		assert.Equal(t, 0.0, Score(model, DefaultParams(), []string{"quick"}, 0, ix))
	}
}

func TestRawIDF(t *testing.T) {
	ix := quickFoxIndex(t)
	params := DefaultParams()
	params.RawIDF = true
	// "quick" is in every document, so ln(N/df) is zero.
	assert.Equal(t, 0.0, Score(TFIDF, params, []string{"quick"}, 1, ix))
	assert.InDelta(t, math.Log(2), Score(TFIDF, params, []string{"dog"}, 1, ix), 1e-12)
	assert.Equal(t, 0.0, VectorIDF(10, 0, true))
	assert.Equal(t, 0.0, VectorIDF(10, 0, false))
}

func TestCosineNormalisation(t *testing.T) {
	ix, err := index.Build(docstore.FromTexts([]string{
		"wing flutter",
		"wing flutter wing flutter shock shock shock heat heat transfer",
		"heat transfer",
	}).Documents(), tokenizer.Standard)
	require.NoError(t, err)

	raw := DefaultParams()
	cosine := DefaultParams()
	cosine.CosineNormalize = true
	query := []string{"wing", "flutter"}

	// Unnormalised scoring favours the longer document with higher tf.
	assert.Greater(t, Score(TFIDF, raw, query, 1, ix), Score(TFIDF, raw, query, 0, ix))
	// Cosine prefers the document whose vector points the same way as the query.
	c0 := Score(TFIDF, cosine, query, 0, ix)
	c1 := Score(TFIDF, cosine, query, 1, ix)
	assert.InDelta(t, 1.0, c0, 1e-12)
	assert.Greater(t, c0, c1)
	assert.LessOrEqual(t, c1, 1.0)
	assert.Equal(t, 0.0, Score(TFIDF, cosine, query, 2, ix))
}

func TestDirichletTermFloor(t *testing.T) {
	v := DirichletTerm(0, 100, 0, DefaultMu)
	assert.False(t, math.IsInf(v, -1))
	assert.InDelta(t, math.Log(DefaultMu*FloorProbability/(100+DefaultMu)), v, 1e-12)
	assert.Greater(t, DirichletTerm(3, 100, 0.01, DefaultMu), DirichletTerm(1, 100, 0.01, DefaultMu))
}

func TestDirichletSmoothsNonMatchingDocuments(t *testing.T) {
	ix := quickFoxIndex(t)
	// doc 0 lacks "dog" but still receives the background probability mass.
	s := Score(LMDirichlet, DefaultParams(), []string{"dog"}, 0, ix)
	assert.InDelta(t, math.Log((2000.0/7.0)/2003.0), s, 1e-12)
}

func TestScoreUnknownModel(t *testing.T) {
	ix := quickFoxIndex(t)
	assert.Equal(t, 0.0, Score(Model("Okapi"), DefaultParams(), []string{"quick"}, 0, ix))
}

func TestParseModel(t *testing.T) {
	tests := map[string]Model{
		"BM25":             BM25,
		"bm25":             BM25,
		"TFIDF":            TFIDF,
		"VectorSpaceTFIDF": TFIDF,
		"LMDirichlet":      LMDirichlet,
		" dirichlet ":      LMDirichlet,
	}
	for in, want := range tests {
		got, err := ParseModel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseModel("DFR")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestScoreIsDeterministic(t *testing.T) {
	ix := quickFoxIndex(t)
	for _, model := range AllModels {
		a := Score(model, DefaultParams(), []string{"quick", "dog"}, 1, ix)
		b := Score(model, DefaultParams(), []string{"quick", "dog"}, 1, ix)
		assert.Equal(t, math.Float64bits(a), math.Float64bits(b))
	}
}
