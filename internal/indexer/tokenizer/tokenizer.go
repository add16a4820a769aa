// Package tokenizer provides text tokenisation for the retrieval engine.
// Three analysis modes are supported: Standard (Unicode word segmentation and
// lower-casing), StopWords (Standard plus a closed English stop list) and
// Whitespace (raw whitespace splitting, no normalisation).
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/stop"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/character"
	bleveunicode "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
)

// Mode selects how raw text is turned into terms.
type Mode int

const (
	Standard Mode = iota
	StopWords
	Whitespace
)

var stopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "if",
	"in", "into", "is", "it", "no", "not", "of", "on", "or", "such",
	"that", "the", "their", "then", "there", "these", "they", "this",
	"to", "was", "will", "with",
}

var (
	unicodeTokenizer    = bleveunicode.NewUnicodeTokenizer()
	whitespaceTokenizer = character.NewCharacterTokenizer(func(r rune) bool {
		return !unicode.IsSpace(r)
	})
	lowerCaseFilter = lowercase.NewLowerCaseFilter()
	stopTokens      = stopTokenMap()
	stopFilter      = stop.NewStopTokensFilter(stopTokens)
)

func stopTokenMap() analysis.TokenMap {
	m := analysis.NewTokenMap()
	for _, w := range stopWords {
		m.AddToken(w)
	}
	return m
}

// IsStopWord reports whether word belongs to the stop list, ignoring case.
func IsStopWord(word string) bool {
	return stopTokens[strings.ToLower(word)]
}

func (m Mode) String() string {
	switch m {
	case Standard:
		return "standard"
	case StopWords:
		return "stop"
	case Whitespace:
		return "whitespace"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a configuration value onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "":
		return Standard, nil
	case "stop", "stopwords", "stop_words":
		return StopWords, nil
	case "whitespace":
		return Whitespace, nil
	default:
		return Standard, apperrors.Newf(apperrors.ErrInvalidInput, "unknown tokenizer mode %q", s)
	}
}

// Tokenize breaks text into an ordered slice of terms according to mode.
// It has no side effects.
func Tokenize(text string, mode Mode) []string {
	var stream analysis.TokenStream
	switch mode {
	case Whitespace:
		stream = whitespaceTokenizer.Tokenize([]byte(text))
	case StopWords:
		stream = stopFilter.Filter(lowerCaseFilter.Filter(unicodeTokenizer.Tokenize([]byte(text))))
	default:
		stream = lowerCaseFilter.Filter(unicodeTokenizer.Tokenize([]byte(text)))
	}
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) == 0 {
			continue
		}
		terms = append(terms, string(tok.Term))
	}
	return terms
}

// Analyzer binds a Mode so the same analysis is applied to documents and
// queries within one run.
type Analyzer struct {
	mode Mode
}

func NewAnalyzer(mode Mode) Analyzer {
	return Analyzer{mode: mode}
}

func (a Analyzer) Mode() Mode {
	return a.mode
}

func (a Analyzer) Analyze(text string) []string {
	return Tokenize(text, a.mode)
}

// CheckCompatible returns ErrModeMismatch when the query-phase mode differs
// from the mode the index was built with.
func CheckCompatible(build, query Mode) error {
	if build != query {
		return apperrors.Newf(apperrors.ErrModeMismatch, "index built with %s, queries analysed with %s", build, query)
	}
	return nil
}
