// Package kafka publishes JSON events to a Kafka topic with segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/logger"
)

const contentType = "application/json"

// ErrEncode marks an event whose value cannot be marshalled; retrying it
// cannot succeed.
var ErrEncode = errors.New("event not encodable")

// Event is one message. Messages sharing a Key land on the same partition,
// so all events of a run stay ordered.
type Event struct {
	Key     string
	Value   any
	Headers map[string]string
}

type Producer struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
	logger  *slog.Logger
}

func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            3,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		brokers: cfg.Brokers,
		topic:   cfg.Topic,
		logger:  logger.WithComponent("kafka-producer").With("topic", cfg.Topic),
	}
}

func (e Event) message(now time.Time) (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: key %q: %w", ErrEncode, e.Key, err)
	}
	headers := []kafka.Header{{Key: "content-type", Value: []byte(contentType)}}
	names := make([]string, 0, len(e.Headers))
	for name := range e.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		headers = append(headers, kafka.Header{Key: name, Value: []byte(e.Headers[name])})
	}
	return kafka.Message{Key: []byte(e.Key), Value: value, Headers: headers, Time: now}, nil
}

// Publish writes events synchronously, in order, as one batch.
func (p *Producer) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now()
	msgs := make([]kafka.Message, 0, len(events))
	size := 0
	for _, ev := range events {
		msg, err := ev.message(now)
		if err != nil {
			return err
		}
		size += len(msg.Value)
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing %d messages to %s: %w", len(msgs), p.topic, err)
	}
	p.logger.Debug("published", "messages", len(msgs), "bytes", size)
	return nil
}

// Ping succeeds once any configured broker accepts a connection.
func (p *Producer) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	var errs []error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("dialing kafka: %w", errors.Join(errs...))
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
