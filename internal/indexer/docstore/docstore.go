// Package docstore holds the raw text of every document in the collection
// under a dense integer primary key assigned in insertion order.
package docstore

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
)

// Document is one collection entry. Terms and Length are filled in by the
// index builder and never change afterwards.
type Document struct {
	ID      uint32
	RawText string
	Terms   []string
	Length  uint32
}

// Store is an append-only document table. IDs start at 0.
type Store struct {
	docs []Document
}

func New() *Store {
	return &Store{docs: make([]Document, 0, 64)}
}

// FromTexts builds a Store from raw texts in order.
func FromTexts(texts []string) *Store {
	s := &Store{docs: make([]Document, 0, len(texts))}
	for _, text := range texts {
		s.Add(text)
	}
	return s
}

// Add stores rawText and returns the assigned ID.
func (s *Store) Add(rawText string) uint32 {
	id := uint32(len(s.docs))
	s.docs = append(s.docs, Document{ID: id, RawText: rawText})
	return id
}

// Get returns the document with the given ID.
func (s *Store) Get(id uint32) (Document, error) {
	if int(id) >= len(s.docs) {
		return Document{}, apperrors.Newf(apperrors.ErrDocumentNotFound, "doc_id %d (collection has %d documents)", id, len(s.docs))
	}
	return s.docs[id], nil
}

func (s *Store) Len() int {
	return len(s.docs)
}

// Documents returns a copy of the document table in ID order.
func (s *Store) Documents() []Document {
	out := make([]Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// SetTerms records the analysed form of a document. It is called once per
// document by the index build.
func (s *Store) SetTerms(id uint32, terms []string) error {
	if int(id) >= len(s.docs) {
		return apperrors.Newf(apperrors.ErrDocumentNotFound, "doc_id %d", id)
	}
	s.docs[id].Terms = terms
	s.docs[id].Length = uint32(len(terms))
	return nil
}
