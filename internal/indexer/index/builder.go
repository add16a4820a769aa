package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
)

// Builder accumulates analysed documents and produces an Index in one bulk
// step. Nothing it holds is observable until Finish returns.
type Builder struct {
	mode       tokenizer.Mode
	postings   map[string]*PostingList
	docLengths map[uint32]uint32
	docTerms   map[uint32][]TermCount
	total      uint64
	finished   bool
}

func NewBuilder(mode tokenizer.Mode) *Builder {
	return &Builder{
		mode:       mode,
		postings:   make(map[string]*PostingList),
		docLengths: make(map[uint32]uint32),
		docTerms:   make(map[uint32][]TermCount),
	}
}

// Add records the analysed terms of docID. Documents may arrive in any order
// but each ID may be added only once.
func (b *Builder) Add(docID uint32, terms []string) error {
	if b.finished {
		return apperrors.New(apperrors.ErrInternal, "builder already finished")
	}
	if _, dup := b.docLengths[docID]; dup {
		return apperrors.Newf(apperrors.ErrInvalidInput, "doc_id %d added twice", docID)
	}
	termFreqs := make(map[string]uint32, len(terms))
	for _, term := range terms {
		termFreqs[term]++
	}
	vector := make([]TermCount, 0, len(termFreqs))
	for term, freq := range termFreqs {
		vector = append(vector, TermCount{Term: term, Frequency: freq})
		pl, ok := b.postings[term]
		if !ok {
			pl = &PostingList{Term: term, Postings: make([]Posting, 0, 4)}
			b.postings[term] = pl
		}
		pl.Postings = append(pl.Postings, Posting{DocID: docID, Frequency: freq})
		pl.CollectionFreq += uint64(freq)
	}
	sort.Slice(vector, func(i, j int) bool { return vector[i].Term < vector[j].Term })
	b.docTerms[docID] = vector
	b.docLengths[docID] = uint32(len(terms))
	b.total += uint64(len(terms))
	return nil
}

// Finish sorts every postings list, derives the collection statistics and
// returns the read-only Index. Document IDs must be dense, 0..n-1.
func (b *Builder) Finish() (*Index, error) {
	if b.finished {
		return nil, apperrors.New(apperrors.ErrInternal, "builder already finished")
	}
	b.finished = true

	docCount := uint32(len(b.docLengths))
	lengths := make([]uint32, docCount)
	vectors := make([][]TermCount, docCount)
	for id, l := range b.docLengths {
		if id >= docCount {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "doc_id %d out of range for %d documents", id, docCount)
		}
		lengths[id] = l
		vectors[id] = b.docTerms[id]
	}
	for _, pl := range b.postings {
		sort.Slice(pl.Postings, func(i, j int) bool {
			return pl.Postings[i].DocID < pl.Postings[j].DocID
		})
		pl.DocFreq = uint32(len(pl.Postings))
	}

	ix := &Index{
		mode:             b.mode,
		postings:         b.postings,
		docLengths:       lengths,
		docTerms:         vectors,
		docCount:         docCount,
		collectionLength: b.total,
	}
	if docCount == 0 {
		return ix, apperrors.New(apperrors.ErrEmptyCollection, "no documents supplied to index build")
	}
	ix.avgDocLength = float64(b.total) / float64(docCount)
	return ix, nil
}
