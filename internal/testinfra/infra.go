//go:build integration

// Package testinfra starts throwaway Postgres, Redis and Kafka containers for integration tests.
package testinfra

import (
	"context"
	"database/sql"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	_ "github.com/lib/pq"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	postgresmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"promopush/pkg/migrations"
)

const (
	startupTimeout = 60 * time.Second
	pingTimeout    = 10 * time.Second

	postgresImage = "postgres:15"
	redisImage    = "redis:8.4.0-alpine"
	kafkaImage    = "confluentinc/confluent-local:7.5.0"
)

func init() {
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		_ = os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}
}

// Postgres starts a database with the service migrations applied and returns an open
// handle plus its DSN.
func Postgres(t *testing.T) (*sql.DB, string) {
	t.Helper()
	ctx := context.Background()

	container, err := postgresmodule.Run(ctx, postgresImage,
		postgresmodule.WithDatabase("promopush"),
		postgresmodule.WithUsername("promopush"),
		postgresmodule.WithPassword("promopush"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start postgres")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(pingCtx), "ping postgres")
	require.NoError(t, migrations.Up(db), "migrate postgres")

	return db, dsn
}

func Redis(t *testing.T) *redisclient.Client {
	t.Helper()
	ctx := context.Background()

	container, err := redismodule.Run(ctx, redisImage)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start redis")

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := redisclient.ParseURL(uri)
	require.NoError(t, err)

	client := redisclient.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	require.NoError(t, client.Ping(pingCtx).Err(), "ping redis")

	return client
}

// Kafka starts a single-node KRaft broker, creates the given single-partition topics
// and returns the bootstrap addresses.
func Kafka(t *testing.T, topics ...string) []string {
	t.Helper()
	ctx := context.Background()

	container, err := kafkamodule.Run(ctx, kafkaImage, kafkamodule.WithClusterID("promopush-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	if len(topics) > 0 {
		createTopics(t, brokers[0], topics)
	}
	return brokers
}

func createTopics(t *testing.T, addr string, topics []string) {
	t.Helper()

	conn, err := kafka.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}
	require.NoError(t, ctrl.CreateTopics(configs...), "create topics")
}
