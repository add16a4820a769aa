// Command evaluate re-runs the evaluation tool over result files that already
// exist, without rebuilding the index. With no arguments it evaluates the file
// of every configured model in the output directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/evaluation"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/trecfmt"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	judgments := flag.String("judgments", "", "relevance judgments file (overrides input.judgments)")
	binary := flag.String("binary", "", "evaluation tool (overrides evaluation.binary)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return apperrors.ExitConfig
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *judgments != "" {
		cfg.Input.Judgments = *judgments
	}
	if *binary != "" {
		cfg.Evaluation.Binary = *binary
	}

	files := flag.Args()
	if len(files) == 0 {
		files, err = configuredResultFiles(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return apperrors.ExitCode(err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := evaluation.NewRunner(cfg.Evaluation.Binary, cfg.Evaluation.Timeout)
	runner.Args = cfg.Evaluation.Args
	var failed error
	for _, path := range files {
		outcome, err := runner.Evaluate(ctx, cfg.Input.Judgments, path)
		if err != nil {
			var toolErr *evaluation.ToolError
			if errors.As(err, &toolErr) {
				os.Stdout.WriteString(toolErr.Stdout)
				os.Stderr.WriteString(toolErr.Stderr)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if failed == nil {
				failed = err
			}
			continue
		}
		os.Stdout.WriteString(outcome.Stdout)
		slog.Debug("evaluation summary", "results", path, "measures", evaluation.Summary(outcome.Measures))
	}
	if failed != nil {
		return apperrors.ExitCode(failed)
	}
	fmt.Println("Evaluation completed successfully.")
	return apperrors.ExitOK
}

func configuredResultFiles(cfg *config.Config) ([]string, error) {
	files := make([]string, 0, len(cfg.Retrieval.Models))
	for _, name := range cfg.Retrieval.Models {
		model, err := ranker.ParseModel(name)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(cfg.Output.Dir, trecfmt.FileName(model))
		if _, err := os.Stat(path); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "results for %s not found at %s", model, path)
		}
		files = append(files, path)
	}
	return files, nil
}
