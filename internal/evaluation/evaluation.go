// Package evaluation runs the external judged-relevance tool (trec_eval or a
// compatible binary) over a result file and relays its output. The tool is
// invoked as "<binary> [flags] <judgments> <results>"; a non-zero exit or any
// text on stderr is a failure.
package evaluation

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/resilience"
)

// ToolError carries everything the tool printed so the operator can act on
// it.
type ToolError struct {
	ResultsPath string
	ExitCode    int
	Stdout      string
	Stderr      string
	Err         error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "evaluating %s: ", e.ResultsPath)
	switch {
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.ExitCode != 0:
		fmt.Fprintf(&b, "exit status %d", e.ExitCode)
	default:
		b.WriteString("tool wrote to stderr")
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, ": %s", stderr)
	}
	return b.String()
}

func (e *ToolError) Unwrap() []error {
	if e.Err != nil {
		return []error{apperrors.ErrEvaluationTool, e.Err}
	}
	return []error{apperrors.ErrEvaluationTool}
}

// Outcome is a successful evaluation.
type Outcome struct {
	ResultsPath string
	Stdout      string
	Stderr      string
	Duration    time.Duration
	Measures    []Measure
}

type Runner struct {
	Binary  string
	Args    []string
	Timeout time.Duration
	logger  *slog.Logger
}

func NewRunner(binary string, timeout time.Duration) *Runner {
	return &Runner{
		Binary:  binary,
		Timeout: timeout,
		logger:  logger.WithComponent("evaluation"),
	}
}

// Evaluate runs the tool over results against judgments. On failure the
// returned error is a *ToolError; captured output is never discarded.
func (r *Runner) Evaluate(ctx context.Context, judgments, results string) (*Outcome, error) {
	args := append(append([]string{}, r.Args...), judgments, results)
	var stdout, stderr bytes.Buffer
	start := time.Now()
	runErr := resilience.WithTimeout(ctx, r.Timeout, "evaluation", func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, r.Binary, args...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		cmd.WaitDelay = time.Second
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ctx.Err(), err)
			}
			return err
		}
		return nil
	})
	elapsed := time.Since(start)

	if runErr != nil {
		toolErr := &ToolError{ResultsPath: results}
		// After a timeout the process may still be writing.
		if !errors.Is(runErr, context.DeadlineExceeded) && !errors.Is(runErr, context.Canceled) {
			toolErr.Stdout = stdout.String()
			toolErr.Stderr = stderr.String()
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		} else {
			toolErr.ExitCode = -1
			toolErr.Err = runErr
		}
		r.log().Error("evaluation failed", "results", results, "exit_code", toolErr.ExitCode, "error", toolErr)
		return nil, toolErr
	}
	if stderr.Len() > 0 {
		toolErr := &ToolError{ResultsPath: results, Stdout: stdout.String(), Stderr: stderr.String()}
		r.log().Error("evaluation wrote to stderr", "results", results, "stderr", toolErr.Stderr)
		return nil, toolErr
	}

	out := &Outcome{
		ResultsPath: results,
		Stdout:      stdout.String(),
		Duration:    elapsed,
		Measures:    ParseMeasures(stdout.String()),
	}
	r.log().Info("evaluation completed", "results", results, "measures", len(out.Measures), "duration", elapsed)
	return out, nil
}

func (r *Runner) log() *slog.Logger {
	if r.logger == nil {
		return logger.WithComponent("evaluation")
	}
	return r.logger
}

// Measure is one "name query value" line of trec_eval output.
type Measure struct {
	Name    string `json:"name"`
	QueryID string `json:"query_id"`
	Value   string `json:"value"`
}

// Float parses the value, reporting false for non-numeric measures such as
// runid.
func (m Measure) Float() (float64, bool) {
	v, err := strconv.ParseFloat(m.Value, 64)
	return v, err == nil
}

// ParseMeasures reads trec_eval's whitespace-separated three-column output,
// keeping input order and ignoring lines that do not have three fields.
func ParseMeasures(output string) []Measure {
	measures := make([]Measure, 0, 32)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			continue
		}
		measures = append(measures, Measure{Name: fields[0], QueryID: fields[1], Value: fields[2]})
	}
	return measures
}

// Summary returns the numeric measures aggregated over all queries.
func Summary(measures []Measure) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range measures {
		if m.QueryID != "all" {
			continue
		}
		if v, ok := m.Float(); ok {
			out[m.Name] = v
		}
	}
	return out
}
