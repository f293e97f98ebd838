package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"promopush/internal/config"
	"promopush/internal/logger"
	pkgerrors "promopush/pkg/errors"
	"promopush/pkg/logging"
	"promopush/pkg/metrics"
	"promopush/pkg/models"
	"promopush/pkg/retry"
	"promopush/pkg/tracing"
)

// KafkaSubscriber consumes the control topic. Every instance joins its own group so each
// one sees every control event.
type KafkaSubscriber struct {
	cfg       config.KafkaConfig
	newReader func(topic string) (messageReader, error)
	logger    logger.Logger

	mu      sync.Mutex
	readers []messageReader
	wg      sync.WaitGroup
}

func NewKafkaSubscriber(cfg config.KafkaConfig, log logger.Logger) *KafkaSubscriber {
	s := &KafkaSubscriber{cfg: cfg, logger: log}
	s.newReader = func(topic string) (messageReader, error) {
		dialer, err := newDialer(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to configure kafka dialer: %w", err)
		}
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     controlGroupID(cfg, os.Hostname),
			Topic:       topic,
			Dialer:      dialer,
			MinBytes:    1,
			MaxBytes:    1e6,
			StartOffset: kafka.LastOffset,
		}), nil
	}
	return s
}

// controlGroupID gives every instance its own, restart-stable group so each one sees every
// control event. A random suffix is the last resort when no identity is available.
func controlGroupID(cfg config.KafkaConfig, hostname func() (string, error)) string {
	id := cfg.InstanceID
	if id == "" {
		if h, err := hostname(); err == nil {
			id = h
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	return fmt.Sprintf("%s-control-%s", cfg.GroupID, id)
}

// Subscribe blocks until ctx is done.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, topic string, handler HandlerFunc) error {
	reader, err := s.newReader(topic)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.readers = append(s.readers, reader)
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	s.logger.InfowCtx(ctx, "Started consuming", "topic", topic)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.InfowCtx(ctx, "Stopped consuming", "topic", topic, "reason", "context canceled")
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				s.logger.InfowCtx(ctx, "Stopped consuming", "topic", topic, "reason", "reader closed")
				return nil
			}
			s.logger.ErrorwCtx(ctx, "Error fetching kafka message", "error", err, "topic", topic)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		raw := toRawMessage(m)
		msgCtx, span := tracing.StartConsumeSpan(ctx, "control.consume", m)
		if sc := span.SpanContext(); sc.HasTraceID() {
			msgCtx = logging.WithTraceID(msgCtx, sc.TraceID().String())
		}

		if err := s.handleWithRetry(msgCtx, raw, handler, topic); err != nil {
			s.logger.ErrorwCtx(msgCtx, "Failed to process control message after retries",
				"error", err,
				"topic", topic,
				"offset", m.Offset,
			)
		}
		span.End()

		if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			s.logger.ErrorwCtx(msgCtx, "Failed to commit message", "error", err, "topic", topic)
		}
	}
}

func (s *KafkaSubscriber) handleWithRetry(ctx context.Context, msg models.RawMessage, handler HandlerFunc, topic string) error {
	policy := s.cfg.Retry.Policy()

	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = pkgerrors.RecoverPanic(r)
				s.logger.ErrorwCtx(ctx, "Panic recovered during message processing", "error", err, "topic", topic)
			}
		}()
		return handler(ctx, msg)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues("control_subscriber", topic).Inc()
		s.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

func (s *KafkaSubscriber) Close() error {
	s.mu.Lock()
	readers := s.readers
	s.readers = nil
	s.mu.Unlock()

	var firstErr error
	for _, r := range readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.wg.Wait()
	return firstErr
}
