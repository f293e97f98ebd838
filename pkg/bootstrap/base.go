package bootstrap

import (
	"context"
	"fmt"

	"promopush/internal/broker"
	"promopush/internal/config"
	"promopush/internal/logger"
)

// Base owns the broker clients shared by the pipeline and the control-topic listener.
type Base struct {
	Config     *config.Config
	Logger     logger.Logger
	Producer   broker.Producer
	Consumer   broker.Consumer
	Subscriber broker.Subscriber
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBroker opens the promo consumer and the output producer. The control-topic
// subscriber is only created when a catalog refresh topic is configured.
func (b *Base) InitBroker() (err error) {
	defer func() {
		if err != nil {
			_ = b.ShutdownBroker()
		}
	}()

	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	b.Producer = producer

	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	b.Consumer = consumer

	if b.Config.Broker.Kafka.CatalogRefreshTopic == "" {
		return nil
	}
	subscriber, err := broker.NewSubscriber(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	b.Subscriber = subscriber
	return nil
}

// ShutdownBroker closes readers before the producer so no batch is mid-flight when
// the writer flushes.
func (b *Base) ShutdownBroker() []error {
	closers := []struct {
		name string
		c    interface{ Close() error }
	}{
		{"subscriber", b.Subscriber},
		{"consumer", b.Consumer},
		{"producer", b.Producer},
	}

	var errs []error
	for _, cl := range closers {
		if cl.c == nil {
			continue
		}
		if err := cl.c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", cl.name, err))
		}
	}
	b.Subscriber, b.Consumer, b.Producer = nil, nil, nil
	return errs
}

// Shutdown releases broker clients, then whatever extra resources the caller owns.
func (b *Base) Shutdown(ctx context.Context, additional func(ctx context.Context) []error) error {
	b.Logger.InfowCtx(ctx, "shutting down")

	errs := b.ShutdownBroker()
	if additional != nil {
		errs = append(errs, additional(ctx)...)
	}
	if err := joinErrors(errs); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	b.Logger.InfowCtx(ctx, "shutdown complete")
	return nil
}
