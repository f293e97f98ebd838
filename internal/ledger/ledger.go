// Package ledger keeps per-batch commit reports so operators can reconcile batches where
// only one sink accepted the write.
package ledger

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"promopush/internal/config"
	"promopush/internal/logger"
	pkgerrors "promopush/pkg/errors"
	"promopush/pkg/models"
)

type Ledger interface {
	Record(ctx context.Context, report *models.CommitReport) error
	Get(ctx context.Context, batchID string) (*models.CommitReport, error)
}

// New returns the Redis ledger when a client is configured and the log-only ledger otherwise.
func New(client *redis.Client, cfg config.LedgerConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) Ledger {
	if client == nil {
		return NewLogLedger(log)
	}
	return NewRedisLedger(client, cfg.TTL, cbCfg)
}

const defaultLogLedgerCapacity = 1024

// LogLedger logs every report and keeps the most recent ones in memory.
type LogLedger struct {
	logger   logger.Logger
	capacity int

	mu    sync.Mutex
	byID  map[string]*models.CommitReport
	order []string
}

func NewLogLedger(log logger.Logger) *LogLedger {
	return &LogLedger{
		logger:   log,
		capacity: defaultLogLedgerCapacity,
		byID:     make(map[string]*models.CommitReport),
	}
}

func (l *LogLedger) Record(ctx context.Context, report *models.CommitReport) error {
	fields := []interface{}{
		"batch_id", report.BatchID,
		"status", report.Status,
		"records", report.Records,
		"trigger_datetime_created", report.TriggerDatetimeCreated,
	}
	for _, o := range report.Sinks {
		fields = append(fields, "sink_"+o.Sink, o.Status)
	}
	if report.Committed() {
		l.logger.InfowCtx(ctx, "Batch commit report", fields...)
	} else {
		l.logger.WarnwCtx(ctx, "Batch commit report", fields...)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[report.BatchID]; !ok {
		l.order = append(l.order, report.BatchID)
	}
	l.byID[report.BatchID] = report
	for len(l.order) > l.capacity {
		delete(l.byID, l.order[0])
		l.order = l.order[1:]
	}
	return nil
}

func (l *LogLedger) Get(_ context.Context, batchID string) (*models.CommitReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	report, ok := l.byID[batchID]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("batch_id", batchID)
	}
	return report, nil
}
