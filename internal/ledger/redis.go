package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"promopush/internal/config"
	"promopush/internal/constants"
	"promopush/pkg/circuitbreaker"
	pkgerrors "promopush/pkg/errors"
	"promopush/pkg/metrics"
	"promopush/pkg/models"
)

// RedisLedger stores each report as a hash under promopush:batch:<id> with a TTL.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
	cb     *circuitbreaker.Wrapper
}

func NewRedisLedger(client *redis.Client, ttl time.Duration, cbCfg config.CircuitBreakerConfig) *RedisLedger {
	if ttl <= 0 {
		ttl = constants.DefaultLedgerTTL
	}
	l := &RedisLedger{client: client, ttl: ttl}
	if cbCfg.Enabled {
		l.cb = circuitbreaker.NewWrapper(cbCfg.Breaker("redis-ledger"))
	}
	return l
}

func key(batchID string) string {
	return constants.LedgerKeyPrefix + batchID
}

func (l *RedisLedger) Record(ctx context.Context, report *models.CommitReport) error {
	sinks, err := json.Marshal(report.Sinks)
	if err != nil {
		return fmt.Errorf("failed to encode sink outcomes: %w", err)
	}
	offsets, err := json.Marshal(report.Offsets)
	if err != nil {
		return fmt.Errorf("failed to encode offsets: %w", err)
	}

	k := key(report.BatchID)
	return l.execute(ctx, "hset", func() error {
		_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k,
				"batch_id", report.BatchID,
				"status", report.Status,
				"records", report.Records,
				"trigger_datetime_created", report.TriggerDatetimeCreated,
				"sinks", string(sinks),
				"offsets", string(offsets),
				"started_at", report.StartedAt.Format(time.RFC3339Nano),
				"finished_at", report.FinishedAt.Format(time.RFC3339Nano),
			)
			pipe.Expire(ctx, k, l.ttl)
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis record failed: %w", err)
		}
		return nil
	})
}

func (l *RedisLedger) Get(ctx context.Context, batchID string) (*models.CommitReport, error) {
	var fields map[string]string
	err := l.execute(ctx, "hgetall", func() error {
		var err error
		fields, err = l.client.HGetAll(ctx, key(batchID)).Result()
		if err != nil {
			return fmt.Errorf("redis get failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, pkgerrors.ErrNotFound.WithDetail("batch_id", batchID)
	}
	return decodeReport(fields)
}

func (l *RedisLedger) execute(ctx context.Context, op string, fn func() error) error {
	var err error
	if l.cb == nil {
		err = fn()
	} else {
		err = l.cb.ExecuteWithContext(ctx, fn)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery("ledger", "redis", op, status)
	return err
}

func decodeReport(fields map[string]string) (*models.CommitReport, error) {
	report := &models.CommitReport{
		BatchID: fields["batch_id"],
		Status:  fields["status"],
	}

	var err error
	if report.Records, err = strconv.Atoi(fields["records"]); err != nil {
		return nil, fmt.Errorf("invalid records field: %w", err)
	}
	if report.TriggerDatetimeCreated, err = strconv.ParseInt(fields["trigger_datetime_created"], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid trigger_datetime_created field: %w", err)
	}
	if err = json.Unmarshal([]byte(fields["sinks"]), &report.Sinks); err != nil {
		return nil, fmt.Errorf("invalid sinks field: %w", err)
	}
	if v := fields["offsets"]; v != "" {
		if err = json.Unmarshal([]byte(v), &report.Offsets); err != nil {
			return nil, fmt.Errorf("invalid offsets field: %w", err)
		}
	}
	if report.StartedAt, err = time.Parse(time.RFC3339Nano, fields["started_at"]); err != nil {
		return nil, fmt.Errorf("invalid started_at field: %w", err)
	}
	if report.FinishedAt, err = time.Parse(time.RFC3339Nano, fields["finished_at"]); err != nil {
		return nil, fmt.Errorf("invalid finished_at field: %w", err)
	}
	return report, nil
}
