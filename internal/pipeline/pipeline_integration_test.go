//go:build integration

package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promopush/internal/broker"
	"promopush/internal/catalog"
	"promopush/internal/config"
	"promopush/internal/constants"
	"promopush/internal/decoder"
	"promopush/internal/deduplication"
	"promopush/internal/dispatcher"
	"promopush/internal/enrichment"
	"promopush/internal/filtering"
	"promopush/internal/ledger"
	"promopush/internal/logger"
	"promopush/internal/sink/publisher"
	"promopush/internal/sink/store"
	"promopush/internal/testinfra"
)

const (
	inputTopic  = "promo_in_it"
	outputTopic = "promo_out_it"
)

func campaignEvent(id string, now time.Time) []byte {
	return []byte(fmt.Sprintf(`{
		"restaurant_id": "R1",
		"adv_campaign_id": %q,
		"adv_campaign_content": "two for one",
		"adv_campaign_owner": "Owner",
		"adv_campaign_owner_contact": "owner@r1",
		"adv_campaign_datetime_start": %d,
		"adv_campaign_datetime_end": %d,
		"datetime_created": %d
	}`, id, now.Add(-time.Hour).Unix(), now.Add(time.Hour).Unix(), now.Unix()))
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, _ := testinfra.Postgres(t)
	brokers := testinfra.Kafka(t, inputTopic, outputTopic)

	_, err := db.ExecContext(ctx, `INSERT INTO subscribers_restaurants (client_id, restaurant_id) VALUES
		('alice', 'R1'), ('bob', 'R1'), ('carol', 'R2')`)
	require.NoError(t, err)

	log := logger.NopLogger()
	kafkaCfg := config.KafkaConfig{
		Brokers:     brokers,
		GroupID:     "promopush-it",
		InputTopic:  inputTopic,
		OutputTopic: outputTopic,
	}

	producer, err := broker.NewKafkaProducer(kafkaCfg, log)
	require.NoError(t, err)
	defer producer.Close()
	consumer, err := broker.NewKafkaConsumer(kafkaCfg, log)
	require.NoError(t, err)
	defer consumer.Close()

	now := time.Now()
	require.NoError(t, producer.PublishBatch(ctx, inputTopic, []kafka.Message{
		{Key: []byte("R1"), Value: campaignEvent("C1", now)},
		{Key: []byte("R1"), Value: campaignEvent("C1", now)},
		{Key: []byte("R1"), Value: []byte("not json")},
	}))

	catalogSvc := catalog.NewService(catalog.NewRepository(db, constants.DefaultCatalogTable), config.CatalogConfig{}, log)
	require.NoError(t, catalogSvc.Load(ctx))

	filter, err := filtering.NewService(config.FilteringConfig{}, time.Now, log)
	require.NoError(t, err)

	cb := config.CircuitBreakerConfig{}
	disp := dispatcher.New(config.DispatcherConfig{ConcurrentSinks: true}, []dispatcher.Sink{
		store.NewWriter(db, constants.DefaultFeedbackTable, cb, log),
		publisher.NewPublisher(producer, outputTopic, cb, log),
	}, ledger.NewLogLedger(log), time.Now, log)

	runner := NewRunner(
		consumer,
		decoder.New(2),
		filter,
		catalogSvc,
		enrichment.NewService(2, log),
		deduplication.NewEngine(config.DeduplicationConfig{}, log),
		disp,
		Options{MaxRecords: 10, PollWait: 5 * time.Second},
		log,
	)

	deadline := time.Now().Add(time.Minute)
	var stored int
	for stored == 0 && time.Now().Before(deadline) {
		raws, err := consumer.Poll(ctx, 10, 5*time.Second)
		require.NoError(t, err)
		if len(raws) == 0 {
			continue
		}
		require.NoError(t, runner.ProcessBatch(ctx, raws))
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers_feedback`).Scan(&stored))
	}
	require.Equal(t, 2, stored, "duplicate campaign event must fan out once per subscriber")

	rows, err := db.QueryContext(ctx, `SELECT client_id, feedback FROM subscribers_feedback ORDER BY client_id`)
	require.NoError(t, err)
	defer rows.Close()
	var clients []string
	for rows.Next() {
		var client string
		var feedback *string
		require.NoError(t, rows.Scan(&client, &feedback))
		assert.Nil(t, feedback)
		clients = append(clients, client)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"alice", "bob"}, clients)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       outputTopic,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	for i := 0; i < 2; i++ {
		msg, err := reader.ReadMessage(ctx)
		require.NoError(t, err)
		assert.Equal(t, "R1", string(msg.Key))

		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Value, &out))
		assert.Equal(t, "C1", out["adv_campaign_id"])
		assert.NotContains(t, out, "feedback")
		assert.Contains(t, out, "trigger_datetime_created")
	}
}
