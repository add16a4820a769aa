package collection

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
)

const cranDocs = `.I 1
.T
experimental investigation of the aerodynamics of a
wing in a slipstream .
.I 2
.T
simple shear flow past a flat plate .
`

const cranQueries = `.I 001
.W
what similarity laws must be obeyed when constructing aeroelastic models
of heated high speed aircraft .
.I 002
.W
what are the structural and aeroelastic problems associated with flight
of high speed aircraft .
`

func TestReadDocuments(t *testing.T) {
	docs, err := ReadDocuments(strings.NewReader(cranDocs))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, ".T\nexperimental investigation of the aerodynamics of a\nwing in a slipstream .", docs[0])
	assert.Equal(t, ".T\nsimple shear flow past a flat plate .", docs[1])
}

func TestReadQueries(t *testing.T) {
	queries, err := ReadQueries(strings.NewReader(cranQueries))
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, uint32(1), queries[0].ID)
	assert.Equal(t, uint32(2), queries[1].ID)
	assert.Equal(t, "what similarity laws must be obeyed when constructing aeroelastic models of heated high speed aircraft .", queries[0].Text)
	assert.NotContains(t, queries[1].Text, ".W")
}

func TestQueryIDsFollowInputOrder(t *testing.T) {
	queries, err := ReadQueries(strings.NewReader(".I 365\n.W\nfirst\n.I 004\n.W\nsecond\n"))
	require.NoError(t, err)
	assert.Equal(t, []RawQuery{{ID: 1, Text: "first"}, {ID: 2, Text: "second"}}, queries)
}

func TestEmptyRecordsAndLeadingBlankLines(t *testing.T) {
	docs, err := ReadDocuments(strings.NewReader("\n\n.I 1\n.I 2\nbody\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"", "body"}, docs)

	docs, err = ReadDocuments(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"text before marker", "stray text\n.I 1\nbody\n", 1},
		{"no markers at all", "just some words\n", 1},
		{"invalid utf8", ".I 1\nok\n\xff\xfe\n", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDocuments(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInputFormat))
			var fe *InputFormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.line, fe.Line)
		})
	}
}

func TestReadFilesCarryPath(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "cran.qry")
	require.NoError(t, os.WriteFile(good, []byte(cranQueries), 0o644))
	queries, err := ReadQueriesFile(good)
	require.NoError(t, err)
	assert.Len(t, queries, 2)

	bad := filepath.Join(dir, "cran.all")
	require.NoError(t, os.WriteFile(bad, []byte("oops\n"), 0o644))
	_, err = ReadDocumentsFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad+":1:")

	_, err = ReadDocumentsFile(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, apperrors.ErrInputFormat))
}
