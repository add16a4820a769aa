// Package trecfmt writes rankings in the six-column run format read by
// trec_eval: "query_id model doc_id rank score tag".
package trecfmt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/ranker"
)

const DefaultTag = "STANDARD"

// FileName is the result file for model inside an output directory.
func FileName(model ranker.Model) string {
	return "query_results_" + strings.ToLower(string(model)) + ".txt"
}

// FormatScore prints the score at single precision, shortest round-trip form.
func FormatScore(score float64) string {
	return strconv.FormatFloat(float64(float32(score)), 'f', -1, 32)
}

// FormatLine renders one result. docIDOffset is added to the internal 0-based
// document ID, for judgments that number documents from 1.
func FormatLine(r executor.RankedResult, tag string, docIDOffset int) string {
	return fmt.Sprintf("%d %s %d %d %s %s",
		r.QueryID, r.Model, int64(r.DocID)+int64(docIDOffset), r.Rank, FormatScore(r.Score), tag)
}

// Writer serialises result lines from any number of goroutines onto one
// stream.
type Writer struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	closer io.Closer
	tag    string
	offset int
}

func NewWriter(w io.Writer, tag string, docIDOffset int) *Writer {
	if tag == "" {
		tag = DefaultTag
	}
	wr := &Writer{
		buf:    bufio.NewWriter(w),
		tag:    tag,
		offset: docIDOffset,
	}
	if c, ok := w.(io.Closer); ok {
		wr.closer = c
	}
	return wr
}

// Create truncates or creates path, making parent directories as needed.
func Create(path, tag string, docIDOffset int) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating result file %s: %w", path, err)
	}
	return NewWriter(f, tag, docIDOffset), nil
}

// WriteResults appends results as one contiguous block.
func (w *Writer) WriteResults(results []executor.RankedResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range results {
		if _, err := w.buf.WriteString(FormatLine(r, w.tag, w.offset)); err != nil {
			return fmt.Errorf("writing result line: %w", err)
		}
		if err := w.buf.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing result line: %w", err)
		}
	}
	return nil
}

// Close flushes buffered lines and closes the underlying file, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		if w.closer != nil {
			w.closer.Close()
		}
		return fmt.Errorf("flushing results: %w", err)
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// WriteFile writes every result for one model to dir/FileName(model) and
// returns the path.
func WriteFile(dir string, model ranker.Model, results []executor.RankedResult, tag string, docIDOffset int) (string, error) {
	path := filepath.Join(dir, FileName(model))
	w, err := Create(path, tag, docIDOffset)
	if err != nil {
		return "", err
	}
	if err := w.WriteResults(results); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return path, nil
}
