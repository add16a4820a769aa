// Package report writes a comparative workbook for one run: the aggregate
// evaluation measures of every model side by side, the per-query measures of
// each model, and the run and collection statistics.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/ranker"
)

const (
	SummarySheet = "Summary"
	RunSheet     = "Run"
)

// ModelOutcome is the evaluation of one model's result file.
type ModelOutcome struct {
	Model       ranker.Model
	ResultsPath string
	Results     int
	Measures    []evaluation.Measure
	Err         error
}

type Input struct {
	RunID     string
	StartedAt time.Time
	Tokenizer string
	Params    ranker.Params
	TopK      int
	Queries   int
	Skipped   int
	Stats     index.Stats
	Models    []ModelOutcome
}

// Write saves the workbook to path, creating parent directories.
func Write(path string, in Input) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("renaming default sheet: %w", err)
	}
	if err := writeSummary(f, bold, in); err != nil {
		return err
	}
	for _, mo := range in.Models {
		if err := writeModel(f, bold, mo); err != nil {
			return err
		}
	}
	if err := writeRun(f, bold, in); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving report %s: %w", path, err)
	}
	return nil
}

// writeSummary lays out one row per aggregate measure and one column per
// model. A model whose evaluation failed shows FAILED in its header.
func writeSummary(f *excelize.File, style int, in Input) error {
	header := []interface{}{"measure"}
	for _, mo := range in.Models {
		label := string(mo.Model)
		if mo.Err != nil {
			label += " (FAILED)"
		}
		header = append(header, label)
	}
	if err := f.SetSheetRow(SummarySheet, "A1", &header); err != nil {
		return fmt.Errorf("writing summary header: %w", err)
	}

	var names []string
	seen := make(map[string]bool)
	summaries := make([]map[string]float64, len(in.Models))
	for i, mo := range in.Models {
		summaries[i] = evaluation.Summary(mo.Measures)
		for _, m := range mo.Measures {
			if m.QueryID != "all" || seen[m.Name] {
				continue
			}
			if _, ok := m.Float(); !ok {
				continue
			}
			seen[m.Name] = true
			names = append(names, m.Name)
		}
	}

	for r, name := range names {
		row := []interface{}{name}
		for i := range in.Models {
			if v, ok := summaries[i][name]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("writing summary row %s: %w", name, err)
		}
	}
	return styleHeader(f, SummarySheet, style, len(header))
}

func writeModel(f *excelize.File, style int, mo ModelOutcome) error {
	sheet := string(mo.Model)
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating sheet %s: %w", sheet, err)
	}
	header := []interface{}{"measure", "query", "value"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if mo.Err != nil {
		row := []interface{}{"error", "", mo.Err.Error()}
		if err := f.SetSheetRow(sheet, "A2", &row); err != nil {
			return err
		}
		return styleHeader(f, sheet, style, len(header))
	}
	for i, m := range mo.Measures {
		var value interface{} = m.Value
		if v, ok := m.Float(); ok {
			value = v
		}
		row := []interface{}{m.Name, m.QueryID, value}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s measure %s: %w", sheet, m.Name, err)
		}
	}
	return styleHeader(f, sheet, style, len(header))
}

func writeRun(f *excelize.File, style int, in Input) error {
	if _, err := f.NewSheet(RunSheet); err != nil {
		return fmt.Errorf("creating sheet %s: %w", RunSheet, err)
	}
	rows := [][]interface{}{
		{"field", "value"},
		{"run_id", in.RunID},
		{"started_at", in.StartedAt.UTC().Format(time.RFC3339)},
		{"tokenizer", in.Tokenizer},
		{"top_k", in.TopK},
		{"bm25_k1", in.Params.K1},
		{"bm25_b", in.Params.B},
		{"dirichlet_mu", in.Params.Mu},
		{"cosine_normalize", in.Params.CosineNormalize},
		{"raw_idf", in.Params.RawIDF},
		{"queries", in.Queries},
		{"queries_skipped", in.Skipped},
		{"documents", in.Stats.DocCount},
		{"terms", in.Stats.Terms},
		{"postings", in.Stats.Postings},
		{"collection_length", in.Stats.CollectionLength},
		{"avg_doc_length", in.Stats.AvgDocLength},
	}
	for _, mo := range in.Models {
		rows = append(rows, []interface{}{"results_" + string(mo.Model), mo.Results})
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(RunSheet, cell, &row); err != nil {
			return fmt.Errorf("writing run row: %w", err)
		}
	}
	return styleHeader(f, RunSheet, style, 2)
}

func styleHeader(f *excelize.File, sheet string, style, columns int) error {
	last, err := excelize.CoordinatesToCellName(columns, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}
