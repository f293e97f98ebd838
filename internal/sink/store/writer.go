// Package store appends dispatched batches to the subscribers_feedback table.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/trace"

	"promopush/internal/config"
	"promopush/internal/logger"
	"promopush/pkg/circuitbreaker"
	pkgerrors "promopush/pkg/errors"
	"promopush/pkg/metrics"
	"promopush/pkg/models"
	"promopush/pkg/tracing"
)

const SinkName = "store"

// Writer bulk-appends rows with COPY inside one transaction, so a batch is either fully
// visible or not at all. Rows are never updated or deleted.
type Writer struct {
	db     *sql.DB
	schema string
	table  string
	cb     *circuitbreaker.Wrapper
	logger logger.Logger
}

func NewWriter(db *sql.DB, table string, cbCfg config.CircuitBreakerConfig, log logger.Logger) *Writer {
	w := &Writer{db: db, logger: log}
	if i := strings.LastIndex(table, "."); i >= 0 {
		w.schema, w.table = table[:i], table[i+1:]
	} else {
		w.table = table
	}
	if cbCfg.Enabled {
		w.cb = circuitbreaker.NewWrapper(cbCfg.Breaker("postgres-" + w.table))
	}
	return w
}

func (w *Writer) Name() string {
	return SinkName
}

func (w *Writer) Write(ctx context.Context, records []models.EnrichedRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, span := tracing.GetTracer("sink").Start(ctx, "sink.store.write",
		trace.WithAttributes(
			tracing.AttrSink.String(SinkName),
			tracing.AttrRecords.Int(len(records)),
		),
	)
	defer span.End()

	start := time.Now()
	var err error
	if w.cb == nil {
		err = w.copy(ctx, records)
	} else {
		err = w.cb.ExecuteWithContext(ctx, func() error { return w.copy(ctx, records) })
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ObserveSinkWrite(SinkName, status, time.Since(start), len(records))
	metrics.IncDatabaseQuery("sink", "postgres", "copy", status)

	if err != nil {
		tracing.Fail(span, err)
		return pkgerrors.ErrSinkWrite.WithCause(err).WithDetail("sink", SinkName).AsRetryable()
	}

	w.logger.DebugwCtx(ctx, "Feedback rows appended", "table", w.table, "rows", len(records))
	return nil
}

func (w *Writer) copy(ctx context.Context, records []models.EnrichedRecord) (err error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var copyStmt string
	if w.schema != "" {
		copyStmt = pq.CopyInSchema(w.schema, w.table, models.FeedbackColumns...)
	} else {
		copyStmt = pq.CopyIn(w.table, models.FeedbackColumns...)
	}

	stmt, err := tx.PrepareContext(ctx, copyStmt)
	if err != nil {
		return fmt.Errorf("failed to prepare copy into %s: %w", w.table, err)
	}

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, models.NewFeedbackRow(r).Values()...); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to buffer feedback row: %w", err)
		}
	}

	if _, err = stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush copy into %s: %w", w.table, err)
	}
	if err = stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy statement: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feedback rows: %w", err)
	}
	return nil
}
