package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"promopush/internal/config"
	"promopush/internal/constants"
	"promopush/internal/logger"
	"promopush/pkg/metrics"
)

type KafkaProducer struct {
	writer      messageWriter
	logger      logger.Logger
	serviceName string
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) (*KafkaProducer, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure kafka transport: %w", err)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Transport:    transport,
	}
	return newKafkaProducer(w, log), nil
}

func newKafkaProducer(w messageWriter, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{writer: w, logger: log, serviceName: constants.ServiceName}
}

// PublishBatch writes all messages synchronously. Any per-message failure fails the call.
func (p *KafkaProducer) PublishBatch(ctx context.Context, topic string, msgs []kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	for i := range msgs {
		msgs[i].Topic = topic
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx, msgs...)
	metrics.ObserveKafkaWriteDuration(p.serviceName, topic, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to write %d kafka messages: %w", len(msgs), err)
	}

	metrics.IncKafkaMessagesWritten(p.serviceName, topic, len(msgs))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
