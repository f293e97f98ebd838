package broker

import (
	"fmt"

	"promopush/internal/config"
	"promopush/internal/logger"
)

// kafkaOnly rejects broker types other than kafka. The interfaces in types.go leave
// room for another transport, but only Kafka is wired today.
func kafkaOnly(cfg config.BrokerConfig, role string) error {
	if cfg.Type != "kafka" {
		return fmt.Errorf("%s: unsupported broker type %q", role, cfg.Type)
	}
	return nil
}

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	if err := kafkaOnly(cfg, "producer"); err != nil {
		return nil, err
	}
	p, err := NewKafkaProducer(cfg.Kafka, log)
	if err != nil {
		return nil, fmt.Errorf("producer for %s: %w", cfg.Kafka.OutputTopic, err)
	}
	return p, nil
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	if err := kafkaOnly(cfg, "consumer"); err != nil {
		return nil, err
	}
	c, err := NewKafkaConsumer(cfg.Kafka, log)
	if err != nil {
		return nil, fmt.Errorf("consumer for %s: %w", cfg.Kafka.InputTopic, err)
	}
	return c, nil
}

func NewSubscriber(cfg config.BrokerConfig, log logger.Logger) (Subscriber, error) {
	if err := kafkaOnly(cfg, "subscriber"); err != nil {
		return nil, err
	}
	return NewKafkaSubscriber(cfg.Kafka, log), nil
}
