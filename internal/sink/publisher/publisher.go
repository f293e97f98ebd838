// Package publisher emits one trigger message per dispatched record to the output topic.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	"promopush/internal/broker"
	"promopush/internal/config"
	"promopush/internal/logger"
	"promopush/pkg/circuitbreaker"
	pkgerrors "promopush/pkg/errors"
	"promopush/pkg/metrics"
	"promopush/pkg/models"
	"promopush/pkg/tracing"
)

const SinkName = "broker"

type Publisher struct {
	producer broker.Producer
	topic    string
	cb       *circuitbreaker.Wrapper
	logger   logger.Logger
}

func NewPublisher(producer broker.Producer, topic string, cbCfg config.CircuitBreakerConfig, log logger.Logger) *Publisher {
	p := &Publisher{producer: producer, topic: topic, logger: log}
	if cbCfg.Enabled {
		p.cb = circuitbreaker.NewWrapper(cbCfg.Breaker("kafka-" + topic))
	}
	return p
}

func (p *Publisher) Name() string {
	return SinkName
}

// Write publishes the whole batch synchronously. Messages are keyed by restaurant_id so a
// restaurant's triggers stay on one partition.
func (p *Publisher) Write(ctx context.Context, records []models.EnrichedRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, span := tracing.GetTracer("sink").Start(ctx, "sink.broker.publish",
		trace.WithAttributes(
			tracing.AttrSink.String(SinkName),
			tracing.AttrTopic.String(p.topic),
			tracing.AttrRecords.Int(len(records)),
		),
	)
	defer span.End()

	msgs, err := EncodeMessages(ctx, records)
	if err != nil {
		tracing.Fail(span, err)
		return pkgerrors.ErrSinkWrite.WithCause(err).WithDetail("sink", SinkName).AsFatal()
	}

	start := time.Now()
	if p.cb == nil {
		err = p.producer.PublishBatch(ctx, p.topic, msgs)
	} else {
		err = p.cb.ExecuteWithContext(ctx, func() error { return p.producer.PublishBatch(ctx, p.topic, msgs) })
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ObserveSinkWrite(SinkName, status, time.Since(start), len(records))

	if err != nil {
		tracing.Fail(span, err)
		return pkgerrors.ErrSinkWrite.WithCause(err).WithDetail("sink", SinkName).AsRetryable()
	}

	p.logger.DebugwCtx(ctx, "Trigger messages published", "topic", p.topic, "messages", len(msgs))
	return nil
}

// EncodeMessages renders records as Kafka messages. The feedback field is never part of
// the payload.
func EncodeMessages(ctx context.Context, records []models.EnrichedRecord) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(records))
	for i, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(r.RestaurantID),
			Value:   value,
			Headers: tracing.InjectTraceContext(ctx, nil),
		})
	}
	return msgs, nil
}
