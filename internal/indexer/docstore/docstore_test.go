package docstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
)

func TestAddAssignsSequentialIDs(t *testing.T) {
	s := New()
	assert.Equal(t, uint32(0), s.Add("experimental investigation of the aerodynamics of a wing"))
	assert.Equal(t, uint32(1), s.Add("simple shear flow past a flat plate"))
	assert.Equal(t, uint32(2), s.Add(""))
	assert.Equal(t, 3, s.Len())

	doc, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), doc.ID)
	assert.Equal(t, "simple shear flow past a flat plate", doc.RawText)
}

func TestGetOutOfRange(t *testing.T) {
	s := FromTexts([]string{"one"})
	_, err := s.Get(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))
	assert.Contains(t, err.Error(), "doc_id 1")

	_, err = New().Get(0)
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))
}

func TestSetTerms(t *testing.T) {
	s := FromTexts([]string{"the quick fox"})
	require.NoError(t, s.SetTerms(0, []string{"the", "quick", "fox"}))
	doc, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), doc.Length)

	assert.Error(t, s.SetTerms(5, nil))
}

func TestDocumentsReturnsCopy(t *testing.T) {
	s := FromTexts([]string{"a", "b"})
	docs := s.Documents()
	docs[0].RawText = "changed"
	doc, _ := s.Get(0)
	assert.Equal(t, "a", doc.RawText)
}
