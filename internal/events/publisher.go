// Package events relays outbox rows to Kafka.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"

	"consultd/internal/domain"
	"consultd/internal/store"
	"consultd/internal/telemetry"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Observer receives relay outcomes for metrics.
type Observer interface {
	OutboxPublished(n int)
	OutboxFailed(reason string)
}

type PublisherConfig struct {
	PollEvery        time.Duration
	BatchSize        int
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Observer         Observer
}

type Publisher struct {
	repo      store.OutboxRepository
	writer    MessageWriter
	log       *slog.Logger
	breaker   *gobreaker.CircuitBreaker[struct{}]
	obs       Observer
	pollEvery time.Duration
	batchSize int
}

// NewKafkaWriter builds a writer that routes each message to the topic named
// on it and keeps one aggregate on one partition.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Balancer: &kafka.Hash{},
	})
}

func NewPublisher(repo store.OutboxRepository, writer MessageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(slog.String("component", "outbox_publisher"))

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Publisher{
		repo:      repo,
		writer:    writer,
		log:       log,
		breaker:   breaker,
		obs:       cfg.Observer,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run publishes on every tick until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
				p.log.Error("outbox publish failed", slog.Any("error", err))
			}
		}
	}
}

// PublishOnce relays one batch. Events stay pending when the write fails or
// the breaker is open.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	n, err := p.repo.PublishPending(ctx, p.batchSize, func(ctx context.Context, batch []domain.OutboxEvent) error {
		msgs := make([]kafka.Message, 0, len(batch))
		for _, ev := range batch {
			msgs = append(msgs, message(ctx, ev))
		}
		_, err := p.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, p.writer.WriteMessages(ctx, msgs...)
		})
		return err
	})
	if p.obs != nil {
		switch {
		case err == nil:
			if n > 0 {
				p.obs.OutboxPublished(n)
			}
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			p.obs.OutboxFailed("breaker_open")
		default:
			p.obs.OutboxFailed("write")
		}
	}
	return n, err
}

func message(ctx context.Context, ev domain.OutboxEvent) kafka.Message {
	msgCtx := telemetry.ContextWithTraceContext(ctx, ev.Traceparent, ev.Tracestate)
	msg := kafka.Message{
		Topic: ev.EventType,
		Key:   []byte(ev.AggregateID),
		Value: ev.Payload,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(ev.EventID.String())},
			{Key: HeaderEventType, Value: []byte(ev.EventType)},
		},
	}
	msg.Headers = InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}

// ReadyCheck dials the first broker.
func ReadyCheck(brokers []string) func(context.Context) error {
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return errors.New("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return err
		}
		_ = conn.Close()
		return nil
	}
}
