package broker

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"promopush/pkg/models"
)

type Producer interface {
	PublishBatch(ctx context.Context, topic string, msgs []kafka.Message) error
	Close() error
}

// Consumer pulls micro-batches from a consumer group. Offsets only move on Commit.
type Consumer interface {
	Poll(ctx context.Context, maxRecords int, maxWait time.Duration) ([]models.RawMessage, error)
	Commit(ctx context.Context, batch []models.RawMessage) error
	Close() error
}

type HandlerFunc func(ctx context.Context, msg models.RawMessage) error

// Subscriber delivers control-topic records one at a time.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func toRawMessage(m kafka.Message) models.RawMessage {
	var headers map[string]string
	if len(m.Headers) > 0 {
		headers = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			headers[h.Key] = string(h.Value)
		}
	}
	return models.RawMessage{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
		Headers:   headers,
	}
}
