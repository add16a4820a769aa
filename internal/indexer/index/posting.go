package index

import "sort"

type Posting struct {
	DocID     uint32 `json:"d"`
	Frequency uint32 `json:"f"`
}

// PostingList is the set of documents containing Term, sorted by DocID with
// at most one posting per document.
type PostingList struct {
	Term           string    `json:"term"`
	Postings       []Posting `json:"postings"`
	DocFreq        uint32    `json:"df"`
	CollectionFreq uint64    `json:"cf"`
}

// Frequency returns the term frequency for docID, or 0 when the document does
// not contain the term.
func (pl *PostingList) Frequency(docID uint32) uint32 {
	if pl == nil {
		return 0
	}
	i := sort.Search(len(pl.Postings), func(i int) bool {
		return pl.Postings[i].DocID >= docID
	})
	if i < len(pl.Postings) && pl.Postings[i].DocID == docID {
		return pl.Postings[i].Frequency
	}
	return 0
}

// TermCount is one entry of a document's term vector.
type TermCount struct {
	Term      string
	Frequency uint32
}

// Stats summarises an Index for logging and metrics.
type Stats struct {
	DocCount         uint32  `json:"doc_count"`
	Terms            int     `json:"terms"`
	Postings         int     `json:"postings"`
	CollectionLength uint64  `json:"collection_length"`
	AvgDocLength     float64 `json:"avg_doc_length"`
}
