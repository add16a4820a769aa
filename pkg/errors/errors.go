// Package errors defines the failure categories of the harness and maps each
// to a process exit code. Import it as apperrors.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInputFormat      = errors.New("malformed input file")
	ErrEmptyCollection  = errors.New("empty document collection")
	ErrQueryParse       = errors.New("query could not be parsed")
	ErrEvaluationTool   = errors.New("evaluation tool failed")
	ErrDocumentNotFound = errors.New("document not found")
	ErrModeMismatch     = errors.New("tokenizer mode mismatch between build and query")
	ErrIndexNotBuilt    = errors.New("index has not been built")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal error")
)

// Exit codes returned by the command-line entry points.
const (
	ExitOK         = 0
	ExitInternal   = 1
	ExitConfig     = 2
	ExitInput      = 3
	ExitEvaluation = 4
)

// AppError classifies a failure under one of the sentinels above. Cause, when
// set, is the underlying error and stays reachable through errors.Is/As.
type AppError struct {
	Err     error
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Err.Error() + ": " + e.Message
	}
	return e.Err.Error() + ": " + e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func New(sentinel error, message string) *AppError {
	return &AppError{Err: sentinel, Message: message}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return New(sentinel, fmt.Sprintf(format, args...))
}

// Wrap classifies cause under sentinel. A nil cause yields nil.
func Wrap(sentinel error, message string, cause error) error {
	if cause == nil {
		return nil
	}
	return &AppError{Err: sentinel, Message: message, Cause: cause}
}

// Is and As re-export the standard helpers so callers importing this package
// under its own name do not need a second errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// exitCodes is checked in order; the first matching sentinel wins.
var exitCodes = []struct {
	sentinel error
	code     int
}{
	{ErrInvalidInput, ExitConfig},
	{ErrModeMismatch, ExitConfig},
	{ErrInputFormat, ExitInput},
	{ErrEvaluationTool, ExitEvaluation},
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, ec := range exitCodes {
		if errors.Is(err, ec.sentinel) {
			return ec.code
		}
	}
	return ExitInternal
}
