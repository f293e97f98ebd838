package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"promopush/internal/broker"
	"promopush/pkg/models"
	"promopush/pkg/tracing"
)

// Notifier asks every running instance to reload its catalog through the control topic.
type Notifier struct {
	producer broker.Producer
	topic    string
	now      func() time.Time
}

func NewNotifier(producer broker.Producer, topic string) *Notifier {
	return &Notifier{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.producer != nil && n.topic != ""
}

func (n *Notifier) PublishRefresh(ctx context.Context, changedBy string) error {
	if !n.Enabled() {
		return nil
	}

	event := models.ControlEvent{
		EventType:   models.EventTypeCatalogRefresh,
		ServiceType: models.ServiceTypeCatalog,
		Action:      models.ActionReload,
		Timestamp:   n.now().UTC(),
		ChangedBy:   changedBy,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal control event: %w", err)
	}

	msg := kafka.Message{
		Key:     []byte(uuid.New().String()),
		Value:   value,
		Headers: tracing.InjectTraceContext(ctx, nil),
	}
	return n.producer.PublishBatch(ctx, n.topic, []kafka.Message{msg})
}
