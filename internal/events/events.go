// Package events announces run lifecycle changes (started, index built, model
// completed, completed, failed) on a message bus, keyed by run ID. Publishing
// is best effort: failures are logged and counted but never fail the run.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/resilience"
)

type Type string

const (
	RunStarted     Type = "run.started"
	IndexBuilt     Type = "index.built"
	ModelCompleted Type = "model.completed"
	RunCompleted   Type = "run.completed"
	RunFailed      Type = "run.failed"
)

// Event is the JSON payload published for every lifecycle change.
type Event struct {
	Type      Type           `json:"type"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Emitter stamps and publishes events for one run.
type Emitter struct {
	runID     string
	publisher Publisher
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewEmitter returns an Emitter; a nil publisher makes every Emit a no-op.
func NewEmitter(runID string, publisher Publisher, m *metrics.Metrics) *Emitter {
	return &Emitter{
		runID:     runID,
		publisher: publisher,
		breaker: resilience.NewCircuitBreaker("events", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     30 * time.Second,
		}),
		retry:   resilience.RetryConfig{MaxAttempts: 2, InitialDelay: 100 * time.Millisecond},
		metrics: m,
		logger:  logger.WithComponent("events").With("run_id", runID),
		now:     time.Now,
	}
}

// Emit publishes one event. After repeated failures the breaker opens and
// later events are dropped without contacting the broker.
func (e *Emitter) Emit(ctx context.Context, typ Type, data map[string]any) {
	if e == nil || e.publisher == nil {
		return
	}
	event := Event{
		Type:      typ,
		RunID:     e.runID,
		Timestamp: e.now().UTC(),
		Data:      data,
	}
	err := e.breaker.Execute(func() error {
		return resilience.Retry(ctx, "publish-"+string(typ), e.retry, func() error {
			err := e.publisher.Publish(ctx, kafka.Event{
				Key:     e.runID,
				Value:   event,
				Headers: map[string]string{"event-type": string(typ)},
			})
			if errors.Is(err, kafka.ErrEncode) {
				return resilience.Permanent(err)
			}
			return err
		})
	})
	status := "ok"
	if err != nil {
		status = "error"
		e.logger.Warn("event not published", "type", typ, "error", err)
	}
	if e.metrics != nil {
		e.metrics.EventsPublishedTotal.WithLabelValues(string(typ), status).Inc()
	}
}
