package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"promopush/internal/config"
	"promopush/internal/logger"
	"promopush/pkg/retry"
)

// startupPolicy covers stores that come up after the service in compose or k8s.
var startupPolicy = retry.Policy{
	MaxAttempts:     5,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	Multiplier:      2,
	MaxElapsedTime:  time.Minute,
}

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{Config: cfg, Logger: log}
}

func (dc *DatabaseConnector) waitReady(ctx context.Context, store string, ping func(context.Context) error) error {
	return retry.RetryWithCallback(ctx, startupPolicy, func() error {
		return ping(ctx)
	}, func(attempt int, err error, next time.Duration) {
		dc.Logger.WarnwCtx(ctx, "store not reachable yet",
			"store", store,
			"attempt", attempt,
			"retry_in", next.String(),
			"error", err,
		)
	})
}

// InitRedis returns a nil client when no host is configured; the batch ledger then
// falls back to the log-only implementation.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	rc := dc.Config.Database.Redis
	if rc.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(rc.Host, strconv.Itoa(rc.Port)),
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := dc.waitReady(ctx, "redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", client.Options().Addr, err)
	}

	dc.Logger.InfowCtx(ctx, "redis connected", "addr", client.Options().Addr, "db", rc.DB)
	return client, nil
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	pg := dc.Config.Database.Postgres

	db, err := sql.Open("postgres", pg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if pg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pg.MaxOpenConns)
		db.SetMaxIdleConns(pg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := dc.waitReady(ctx, "postgresql", db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres %s/%s unreachable: %w", pg.Host, pg.DBName, err)
	}

	dc.Logger.InfowCtx(ctx, "postgresql connected", "host", pg.Host, "dbname", pg.DBName)
	return db, nil
}

// ShutdownDatabases closes whichever stores were opened.
func (dc *DatabaseConnector) ShutdownDatabases(rdb *redis.Client, db *sql.DB) []error {
	var errs []error
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close postgres: %w", err))
		}
	}
	return errs
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
