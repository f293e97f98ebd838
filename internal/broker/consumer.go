package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"promopush/internal/config"
	"promopush/internal/constants"
	"promopush/internal/logger"
	"promopush/pkg/metrics"
	"promopush/pkg/models"
)

type KafkaConsumer struct {
	reader      messageReader
	topic       string
	logger      logger.Logger
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) (*KafkaConsumer, error) {
	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure kafka dialer: %w", err)
	}

	log.Infow("Creating Kafka reader",
		"topic", cfg.InputTopic,
		"brokers", cfg.Brokers,
		"group_id", cfg.GroupID,
	)

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.InputTopic,
		Dialer:         dialer,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return newKafkaConsumer(r, cfg.InputTopic, log), nil
}

func newKafkaConsumer(r messageReader, topic string, log logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{reader: r, topic: topic, logger: log, serviceName: constants.ServiceName}
}

// Poll gathers up to maxRecords messages, waiting at most maxWait for the batch to fill.
// A partially filled batch is returned without error when the wait elapses.
func (c *KafkaConsumer) Poll(ctx context.Context, maxRecords int, maxWait time.Duration) ([]models.RawMessage, error) {
	start := time.Now()
	pollCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	batch := make([]models.RawMessage, 0, maxRecords)
	for len(batch) < maxRecords {
		m, err := c.reader.FetchMessage(pollCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("failed to fetch kafka message: %w", err)
		}
		batch = append(batch, toRawMessage(m))
	}

	metrics.ObserveKafkaReadDuration(c.serviceName, c.topic, time.Since(start))
	metrics.IncKafkaMessagesRead(c.serviceName, c.topic, len(batch))
	stats := c.reader.Stats()
	if p, err := strconv.Atoi(stats.Partition); err == nil {
		metrics.SetKafkaConsumerLag(c.serviceName, c.topic, p, stats.Lag)
	}

	return batch, nil
}

// Commit acknowledges the batch by committing the highest offset seen per partition.
func (c *KafkaConsumer) Commit(ctx context.Context, batch []models.RawMessage) error {
	if len(batch) == 0 {
		return nil
	}

	type tp struct {
		topic     string
		partition int
	}
	latest := make(map[tp]int64)
	for _, m := range batch {
		key := tp{m.Topic, m.Partition}
		if off, ok := latest[key]; !ok || m.Offset > off {
			latest[key] = m.Offset
		}
	}

	msgs := make([]kafka.Message, 0, len(latest))
	for key, offset := range latest {
		msgs = append(msgs, kafka.Message{Topic: key.topic, Partition: key.partition, Offset: offset})
	}

	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to commit offsets: %w", err)
	}
	return nil
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
