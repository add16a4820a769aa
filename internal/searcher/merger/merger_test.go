package merger

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/ranker"
)

func TestTopKOrdersByScoreThenDocID(t *testing.T) {
	docs := []ranker.ScoredDoc{
		{DocID: 4, Score: 1.5},
		{DocID: 2, Score: 3.0},
		{DocID: 9, Score: 1.5},
		{DocID: 1, Score: 1.5},
		{DocID: 7, Score: 0.2},
	}
	got := TopK(4, docs)
	want := []ranker.ScoredDoc{
		{DocID: 2, Score: 3.0},
		{DocID: 1, Score: 1.5},
		{DocID: 4, Score: 1.5},
		{DocID: 9, Score: 1.5},
	}
	assert.Equal(t, want, got)
}

func TestTopKMatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	docs := make([]ranker.ScoredDoc, 0, 500)
	for i := 0; i < 500; i++ {
		// few distinct scores so ties are common
		docs = append(docs, ranker.ScoredDoc{DocID: uint32(i), Score: float64(rng.Intn(20))})
	}
	want := make([]ranker.ScoredDoc, len(docs))
	copy(want, docs)
	sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })

	for _, k := range []int{1, 10, 50, 499, 500, 800} {
		got := TopK(k, docs)
		n := k
		if n > len(want) {
			n = len(want)
		}
		require.Len(t, got, n)
		assert.Equal(t, want[:n], got, "k=%d", k)
	}
}

func TestTopKDeduplicates(t *testing.T) {
	a := []ranker.ScoredDoc{{DocID: 1, Score: 0.5}, {DocID: 2, Score: 0.9}}
	b := []ranker.ScoredDoc{{DocID: 1, Score: 0.7}, {DocID: 2, Score: 0.1}}
	got := TopK(10, a, b)
	assert.Equal(t, []ranker.ScoredDoc{{DocID: 2, Score: 0.9}, {DocID: 1, Score: 0.7}}, got)
}

func TestTopKEmpty(t *testing.T) {
	assert.Empty(t, TopK(50))
	assert.NotNil(t, TopK(50, nil))
	assert.Empty(t, TopK(0, []ranker.ScoredDoc{{DocID: 1, Score: 1}}))
}

func TestCollectorStreams(t *testing.T) {
	c := NewCollector(2)
	assert.True(t, c.Offer(ranker.ScoredDoc{DocID: 5, Score: 0.1}))
	assert.True(t, c.Offer(ranker.ScoredDoc{DocID: 3, Score: 0.4}))
	assert.True(t, c.Offer(ranker.ScoredDoc{DocID: 8, Score: 0.9}))
	assert.False(t, c.Offer(ranker.ScoredDoc{DocID: 1, Score: 0.05}))
	// equal score, lower doc ID wins the tie
	assert.True(t, c.Offer(ranker.ScoredDoc{DocID: 2, Score: 0.4}))
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, []ranker.ScoredDoc{{DocID: 8, Score: 0.9}, {DocID: 2, Score: 0.4}}, c.Results())
	assert.Equal(t, 0, c.Len())
	assert.False(t, NewCollector(0).Offer(ranker.ScoredDoc{DocID: 1, Score: 1}))
}
