// Package index implements the in-memory inverted index: per-term postings
// lists plus the collection statistics the ranking models need. An Index is
// produced once by a Builder and is read-only afterwards, so it may be shared
// by any number of concurrent readers without locking.
package index

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
)

type Index struct {
	mode             tokenizer.Mode
	postings         map[string]*PostingList
	docLengths       []uint32
	docTerms         [][]TermCount
	docCount         uint32
	avgDocLength     float64
	collectionLength uint64
}

// Build analyses every document with mode and returns the finished Index.
// For an empty collection it returns a usable empty Index together with
// ErrEmptyCollection.
func Build(docs []docstore.Document, mode tokenizer.Mode) (*Index, error) {
	b := NewBuilder(mode)
	for _, doc := range docs {
		if err := b.Add(doc.ID, tokenizer.Tokenize(doc.RawText, mode)); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}

func (ix *Index) Mode() tokenizer.Mode {
	return ix.mode
}

func (ix *Index) DocCount() uint32 {
	return ix.docCount
}

func (ix *Index) AvgDocLength() float64 {
	return ix.avgDocLength
}

func (ix *Index) CollectionLength() uint64 {
	return ix.collectionLength
}

// DocLength returns the number of terms in docID, or 0 for an unknown ID.
func (ix *Index) DocLength(docID uint32) uint32 {
	if int(docID) >= len(ix.docLengths) {
		return 0
	}
	return ix.docLengths[docID]
}

// DocTerms returns the distinct terms of docID with their frequencies, in
// lexical order. The returned slice must not be modified.
func (ix *Index) DocTerms(docID uint32) []TermCount {
	if int(docID) >= len(ix.docTerms) {
		return nil
	}
	return ix.docTerms[docID]
}

// Postings returns the postings list for term, or nil when the term does not
// occur in the collection. The returned list must not be modified.
func (ix *Index) Postings(term string) *PostingList {
	return ix.postings[term]
}

func (ix *Index) DocFreq(term string) uint32 {
	if pl, ok := ix.postings[term]; ok {
		return pl.DocFreq
	}
	return 0
}

func (ix *Index) CollectionFreq(term string) uint64 {
	if pl, ok := ix.postings[term]; ok {
		return pl.CollectionFreq
	}
	return 0
}

func (ix *Index) TermFreq(term string, docID uint32) uint32 {
	return ix.postings[term].Frequency(docID)
}

// Terms returns every indexed term in lexical order.
func (ix *Index) Terms() []string {
	terms := make([]string, 0, len(ix.postings))
	for term := range ix.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

func (ix *Index) Stats() Stats {
	total := 0
	for _, pl := range ix.postings {
		total += len(pl.Postings)
	}
	return Stats{
		DocCount:         ix.docCount,
		Terms:            len(ix.postings),
		Postings:         total,
		CollectionLength: ix.collectionLength,
		AvgDocLength:     ix.avgDocLength,
	}
}

// Fingerprint identifies the index contents. Two indexes built from the same
// collection with the same mode share a fingerprint.
func (ix *Index) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(ix.mode))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(ix.docCount))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], ix.collectionLength)
	h.Write(buf[:])
	for _, length := range ix.docLengths {
		binary.LittleEndian.PutUint32(buf[:4], length)
		h.Write(buf[:4])
	}
	for _, term := range ix.Terms() {
		pl := ix.postings[term]
		h.Write([]byte(term))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], pl.CollectionFreq)
		h.Write(buf[:])
		for _, p := range pl.Postings {
			binary.LittleEndian.PutUint32(buf[:4], p.DocID)
			binary.LittleEndian.PutUint32(buf[4:], p.Frequency)
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Validate checks the structural invariants of the index.
func (ix *Index) Validate() error {
	if int(ix.docCount) != len(ix.docLengths) {
		return apperrors.Newf(apperrors.ErrInternal, "doc_count %d but %d document lengths", ix.docCount, len(ix.docLengths))
	}
	var sum uint64
	for _, l := range ix.docLengths {
		sum += uint64(l)
	}
	if sum != ix.collectionLength {
		return apperrors.Newf(apperrors.ErrInternal, "document lengths sum to %d, collection length is %d", sum, ix.collectionLength)
	}
	wantAvg := 0.0
	if ix.docCount > 0 {
		wantAvg = float64(ix.collectionLength) / float64(ix.docCount)
	}
	if math.Abs(wantAvg-ix.avgDocLength) > 1e-9 {
		return apperrors.Newf(apperrors.ErrInternal, "avg_doc_length %f, expected %f", ix.avgDocLength, wantAvg)
	}
	for term, pl := range ix.postings {
		if int(pl.DocFreq) != len(pl.Postings) {
			return apperrors.Newf(apperrors.ErrInternal, "term %q: df %d but %d postings", term, pl.DocFreq, len(pl.Postings))
		}
		var cf uint64
		for i, p := range pl.Postings {
			if p.DocID >= ix.docCount {
				return apperrors.Newf(apperrors.ErrInternal, "term %q: doc_id %d out of range", term, p.DocID)
			}
			if i > 0 && pl.Postings[i-1].DocID >= p.DocID {
				return apperrors.Newf(apperrors.ErrInternal, "term %q: postings not strictly ordered at doc_id %d", term, p.DocID)
			}
			if p.Frequency == 0 {
				return apperrors.Newf(apperrors.ErrInternal, "term %q: zero frequency for doc_id %d", term, p.DocID)
			}
			cf += uint64(p.Frequency)
		}
		if cf != pl.CollectionFreq {
			return apperrors.Newf(apperrors.ErrInternal, "term %q: cf %d, postings sum %d", term, pl.CollectionFreq, cf)
		}
	}
	return nil
}

func (ix *Index) String() string {
	s := ix.Stats()
	return fmt.Sprintf("index(mode=%s docs=%d terms=%d avgdl=%.2f)", ix.mode, s.DocCount, s.Terms, s.AvgDocLength)
}
