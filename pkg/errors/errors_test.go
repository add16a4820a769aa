package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrQueryParse, "query %d is empty after cleaning", 7)
	wrapped := fmt.Errorf("running batch: %w", err)

	assert.True(t, Is(wrapped, ErrQueryParse))
	assert.Equal(t, "query could not be parsed: query 7 is empty after cleaning", err.Error())

	var appErr *AppError
	assert.True(t, As(wrapped, &appErr))
	assert.Equal(t, "query 7 is empty after cleaning", appErr.Message)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", New(ErrInvalidInput, "top_k must be positive"), ExitConfig},
		{"mode mismatch", fmt.Errorf("wrap: %w", ErrModeMismatch), ExitConfig},
		{"input", New(ErrInputFormat, "cran.all.1400:1"), ExitInput},
		{"evaluation", fmt.Errorf("bm25: %w", ErrEvaluationTool), ExitEvaluation},
		{"other", ErrInternal, ExitInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestWrapKeepsSentinelAndCause(t *testing.T) {
	cause := fmt.Errorf("strconv: bad digit")
	err := Wrap(ErrInvalidInput, "environment RH_TOP_K", cause)

	assert.True(t, Is(err, ErrInvalidInput))
	assert.True(t, Is(err, cause))
	assert.Equal(t, ExitConfig, ExitCode(err))
	assert.Equal(t, "invalid input: environment RH_TOP_K: strconv: bad digit", err.Error())
	assert.Nil(t, Wrap(ErrInternal, "nothing", nil))
}
