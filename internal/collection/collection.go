// Package collection reads the fixed-format document collection and query
// batch. Both files use the same record convention: a line beginning with
// ".I" opens a new record and every following line belongs to it until the
// next ".I" or end of file.
package collection

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
)

const (
	recordMarker = ".I"
	textMarker   = ".W"

	maxLineBytes = 1 << 20
)

// RawQuery is one query block. IDs are 1-based in input order, independent
// of the number written after the marker.
type RawQuery struct {
	ID   uint32
	Text string
}

// InputFormatError reports a malformed collection or query file.
type InputFormatError struct {
	Path   string
	Line   int
	Reason string
}

func (e *InputFormatError) Error() string {
	path := e.Path
	if path == "" {
		path = "<input>"
	}
	return fmt.Sprintf("%s:%d: %s", path, e.Line, e.Reason)
}

func (e *InputFormatError) Unwrap() error {
	return apperrors.ErrInputFormat
}

// ReadDocuments returns the raw text of every record in input order. Lines
// within a record are joined with newlines.
func ReadDocuments(r io.Reader) ([]string, error) {
	records, err := readRecords(r, false)
	if err != nil {
		return nil, err
	}
	docs := make([]string, len(records))
	for i, rec := range records {
		docs[i] = strings.Join(rec, "\n")
	}
	return docs, nil
}

// ReadQueries returns every query block. ".W" lines are dropped and the
// remaining lines are joined with single spaces.
func ReadQueries(r io.Reader) ([]RawQuery, error) {
	records, err := readRecords(r, true)
	if err != nil {
		return nil, err
	}
	queries := make([]RawQuery, len(records))
	for i, rec := range records {
		queries[i] = RawQuery{
			ID:   uint32(i + 1),
			Text: strings.TrimSpace(strings.Join(rec, " ")),
		}
	}
	return queries, nil
}

func ReadDocumentsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputFormatError{Path: path, Reason: err.Error()}
	}
	defer f.Close()
	docs, err := ReadDocuments(f)
	return docs, withPath(err, path)
}

func ReadQueriesFile(path string) ([]RawQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputFormatError{Path: path, Reason: err.Error()}
	}
	defer f.Close()
	queries, err := ReadQueries(f)
	return queries, withPath(err, path)
}

func withPath(err error, path string) error {
	if fe, ok := err.(*InputFormatError); ok {
		fe.Path = path
	}
	return err
}

func readRecords(r io.Reader, dropTextMarker bool) ([][]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records [][]string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if !utf8.ValidString(line) {
			return nil, &InputFormatError{Line: lineNo, Reason: "invalid UTF-8"}
		}
		if strings.HasPrefix(line, recordMarker) {
			records = append(records, make([]string, 0, 8))
			continue
		}
		if len(records) == 0 {
			if strings.TrimSpace(line) == "" {
				continue
			}
			return nil, &InputFormatError{Line: lineNo, Reason: fmt.Sprintf("text before first %s marker", recordMarker)}
		}
		if dropTextMarker && strings.HasPrefix(line, textMarker) {
			continue
		}
		last := len(records) - 1
		records[last] = append(records[last], line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &InputFormatError{Line: lineNo + 1, Reason: err.Error()}
	}
	return records, nil
}
