package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promopush/internal/config"
	"promopush/internal/logger"
	"promopush/pkg/models"
)

type recordingProducer struct {
	topic string
	msgs  []kafka.Message
	err   error
}

func (p *recordingProducer) PublishBatch(_ context.Context, topic string, msgs []kafka.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return p.err
}

func (p *recordingProducer) Close() error { return nil }

func TestNotifierPublishesRefreshEvent(t *testing.T) {
	producer := &recordingProducer{}
	n := NewNotifier(producer, "control")
	n.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, n.PublishRefresh(context.Background(), "ops"))
	require.Len(t, producer.msgs, 1)
	assert.Equal(t, "control", producer.topic)

	var event models.ControlEvent
	require.NoError(t, json.Unmarshal(producer.msgs[0].Value, &event))
	assert.Equal(t, models.EventTypeCatalogRefresh, event.EventType)
	assert.Equal(t, models.ServiceTypeCatalog, event.ServiceType)
	assert.Equal(t, models.ActionReload, event.Action)
	assert.Equal(t, "ops", event.ChangedBy)
}

func TestNotifierDisabledWithoutTopic(t *testing.T) {
	producer := &recordingProducer{}
	n := NewNotifier(producer, "")

	assert.False(t, n.Enabled())
	require.NoError(t, n.PublishRefresh(context.Background(), "ops"))
	assert.Empty(t, producer.msgs)

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
}

func TestNotifierPropagatesPublishError(t *testing.T) {
	n := NewNotifier(&recordingProducer{err: errors.New("broker down")}, "control")
	assert.Error(t, n.PublishRefresh(context.Background(), "ops"))
}

func TestNotifierEventIsAcceptedByHandler(t *testing.T) {
	producer := &recordingProducer{}
	require.NoError(t, NewNotifier(producer, "control").PublishRefresh(context.Background(), "ops"))

	repo := &fakeRepository{rows: []models.SubscriberRow{{ID: 1, ClientID: "a", RestaurantID: "R1"}}}
	svc := NewService(repo, config.CatalogConfig{}, logger.NopLogger())
	h := NewHandler(svc, logger.NopLogger())

	require.NoError(t, h.HandleControlEvent(context.Background(), models.RawMessage{Value: producer.msgs[0].Value}))
	require.NotNil(t, svc.Current())
	assert.Equal(t, 1, svc.Current().Size())
}
