// Package parser turns raw query text into the analysed term sequence used
// for retrieval. Queries are free text: every term is an optional clause and
// no operators are interpreted.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
)

type Query struct {
	ID       uint32
	RawQuery string
	Terms    []string
}

// wildcardReplacer removes the characters a query parser would read as
// wildcards; they carry no meaning in free-text queries.
var wildcardReplacer = strings.NewReplacer("*", " ", "?", " ")

// Clean strips wildcard characters and surrounding whitespace.
func Clean(text string) string {
	return strings.TrimSpace(wildcardReplacer.Replace(text))
}

// Parse cleans and analyses text. It returns a QueryParseError when nothing
// searchable remains.
func Parse(id uint32, text string, mode tokenizer.Mode) (Query, error) {
	cleaned := Clean(text)
	if cleaned == "" {
		return Query{}, apperrors.Newf(apperrors.ErrQueryParse, "query %d: empty after cleaning", id)
	}
	terms := tokenizer.Tokenize(cleaned, mode)
	if len(terms) == 0 {
		return Query{}, apperrors.Newf(apperrors.ErrQueryParse, "query %d: no searchable terms in %q", id, truncate(cleaned, 60))
	}
	return Query{
		ID:       id,
		RawQuery: text,
		Terms:    terms,
	}, nil
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
