// Package merger selects the best K scored documents from one or more
// candidate lists using a bounded min-heap.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/ranker"
)

// Collector retains the best k documents offered to it. The zero value keeps
// nothing. It is not safe for concurrent use.
type Collector struct {
	k    int
	kept worstFirst
}

func NewCollector(k int) *Collector {
	return &Collector{k: k, kept: make(worstFirst, 0, max(k, 0))}
}

// Offer considers doc; it reports whether doc is currently retained.
func (c *Collector) Offer(doc ranker.ScoredDoc) bool {
	switch {
	case c.k <= 0:
		return false
	case len(c.kept) < c.k:
		heap.Push(&c.kept, doc)
		return true
	case doc.Less(c.kept[0]):
		c.kept[0] = doc
		heap.Fix(&c.kept, 0)
		return true
	}
	return false
}

func (c *Collector) Len() int { return len(c.kept) }

// Results drains the collector in ranking order: score descending, doc ID
// ascending.
func (c *Collector) Results() []ranker.ScoredDoc {
	out := make([]ranker.ScoredDoc, len(c.kept))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&c.kept).(ranker.ScoredDoc)
	}
	return out
}

// TopK returns at most k documents from lists in ranking order. A document
// appearing more than once keeps its best entry.
func TopK(k int, lists ...[]ranker.ScoredDoc) []ranker.ScoredDoc {
	best := make(map[uint32]ranker.ScoredDoc)
	for _, docs := range lists {
		for _, doc := range docs {
			if prev, ok := best[doc.DocID]; !ok || doc.Less(prev) {
				best[doc.DocID] = doc
			}
		}
	}
	c := NewCollector(k)
	for _, doc := range best {
		c.Offer(doc)
	}
	return c.Results()
}

// worstFirst is a heap.Interface whose root is the lowest-ranked document.
type worstFirst []ranker.ScoredDoc

func (w worstFirst) Len() int           { return len(w) }
func (w worstFirst) Less(i, j int) bool { return w[j].Less(w[i]) }
func (w worstFirst) Swap(i, j int)      { w[i], w[j] = w[j], w[i] }
func (w *worstFirst) Push(x any)        { *w = append(*w, x.(ranker.ScoredDoc)) }

func (w *worstFirst) Pop() any {
	last := (*w)[len(*w)-1]
	*w = (*w)[:len(*w)-1]
	return last
}
