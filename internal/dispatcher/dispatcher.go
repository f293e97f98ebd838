package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"promopush/internal/config"
	"promopush/internal/constants"
	"promopush/internal/logger"
	pkgerrors "promopush/pkg/errors"
	"promopush/pkg/logging"
	"promopush/pkg/metrics"
	"promopush/pkg/models"
	"promopush/pkg/retry"
	"promopush/pkg/tracing"
)

// Sink is one destination of a finalized batch. Write must accept redelivery of rows it has
// already seen.
type Sink interface {
	Name() string
	Write(ctx context.Context, records []models.EnrichedRecord) error
}

// Recorder persists commit reports for later reconciliation.
type Recorder interface {
	Record(ctx context.Context, report *models.CommitReport) error
}

type Clock func() time.Time

// Batch is a finalized micro-batch ready for dispatch.
type Batch struct {
	ID      string
	Records []models.EnrichedRecord
	Offsets []models.OffsetRange
}

// Dispatcher delivers each batch to every sink. Sinks are ordered: in sequential mode the
// first sink must succeed before the next one is attempted.
type Dispatcher struct {
	sinks      []Sink
	concurrent bool
	timeout    time.Duration
	policy     retry.Policy
	recorder   Recorder
	now        Clock
	logger     logger.Logger
}

func New(cfg config.DispatcherConfig, sinks []Sink, recorder Recorder, now Clock, log logger.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DispatchTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		sinks:      sinks,
		concurrent: cfg.ConcurrentSinks,
		timeout:    timeout,
		policy:     cfg.Retry.Policy(),
		recorder:   recorder,
		now:        now,
		logger:     log,
	}
}

// Dispatch stamps the batch once, then writes the same snapshot to all sinks. Failed sinks
// are retried under the dispatcher's policy; sinks that already succeeded are not written
// again. The report is recorded whether or not the batch commits.
func (d *Dispatcher) Dispatch(ctx context.Context, batch Batch) (*models.CommitReport, error) {
	ctx = logging.WithBatchID(ctx, batch.ID)
	ctx, span := tracing.GetTracer("dispatcher").Start(ctx, "dispatcher.dispatch",
		trace.WithAttributes(
			tracing.AttrBatchID.String(batch.ID),
			tracing.AttrRecords.Int(len(batch.Records)),
		),
	)
	defer span.End()

	trigger := d.now().Unix()
	snapshot := Stamp(batch.Records, trigger)

	report := &models.CommitReport{
		BatchID:                batch.ID,
		Status:                 models.BatchStatusFailed,
		Records:                len(snapshot),
		TriggerDatetimeCreated: trigger,
		Offsets:                batch.Offsets,
		StartedAt:              d.now().UTC(),
	}
	for _, s := range d.sinks {
		report.Sinks = append(report.Sinks, &models.SinkOutcome{Sink: s.Name(), Status: models.SinkStatusPending})
	}

	err := retry.RetryWithCallback(ctx, d.policy, func() error {
		return d.attempt(ctx, snapshot, report)
	}, func(attempt int, err error, next time.Duration) {
		metrics.DispatchRetriesTotal.Inc()
		d.logger.WarnwCtx(ctx, "Batch dispatch failed, retrying",
			"attempt", attempt,
			"next_delay_ms", next.Milliseconds(),
			"error", err,
		)
	})

	report.FinishedAt = d.now().UTC()
	if err == nil {
		report.Status = models.BatchStatusCommitted
	} else {
		tracing.Fail(span, err)
	}

	if d.recorder != nil {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.HealthTimeout)
		if rerr := d.recorder.Record(recordCtx, report); rerr != nil {
			d.logger.ErrorwCtx(ctx, "Failed to record commit report", "error", rerr)
		}
		cancel()
	}

	if err != nil {
		d.logger.ErrorwCtx(ctx, "Batch dispatch failed", "records", report.Records, "sinks", summary(report), "error", err)
		return report, err
	}

	d.logger.InfowCtx(ctx, "Batch dispatched",
		"records", report.Records,
		"trigger_datetime_created", report.TriggerDatetimeCreated,
	)
	return report, nil
}

func (d *Dispatcher) attempt(ctx context.Context, records []models.EnrichedRecord, report *models.CommitReport) error {
	if d.concurrent {
		return d.attemptConcurrent(ctx, records, report)
	}
	return d.attemptSequential(ctx, records, report)
}

func (d *Dispatcher) attemptSequential(ctx context.Context, records []models.EnrichedRecord, report *models.CommitReport) error {
	for i, s := range d.sinks {
		out := report.Sinks[i]
		if out.Status == models.SinkStatusSuccess {
			continue
		}
		if err := d.write(ctx, s, records, out); err != nil {
			for _, rest := range report.Sinks[i+1:] {
				if rest.Status != models.SinkStatusSuccess {
					rest.Status = models.SinkStatusSkipped
				}
			}
			return err
		}
	}
	return nil
}

func (d *Dispatcher) attemptConcurrent(ctx context.Context, records []models.EnrichedRecord, report *models.CommitReport) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	for i, s := range d.sinks {
		out := report.Sinks[i]
		if out.Status == models.SinkStatusSuccess {
			continue
		}
		g.Go(func() error {
			if err := d.write(ctx, s, records, out); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (d *Dispatcher) write(ctx context.Context, s Sink, records []models.EnrichedRecord, out *models.SinkOutcome) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out.Attempts++
	err := s.Write(ctx, records)
	out.FinishedAt = d.now().UTC()
	if err != nil {
		out.Status = models.SinkStatusFailed
		out.Error = err.Error()
		return wrapSinkError(s.Name(), err)
	}

	out.Status = models.SinkStatusSuccess
	out.Error = ""
	return nil
}

func wrapSinkError(sink string, err error) error {
	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return pkgerrors.ErrSinkWrite.WithCause(fmt.Errorf("%s: %w", sink, err)).WithDetail("sink", sink)
}

func summary(report *models.CommitReport) map[string]string {
	out := make(map[string]string, len(report.Sinks))
	for _, o := range report.Sinks {
		out[o.Sink] = o.Status
	}
	return out
}

// Stamp returns a copy of records carrying the batch trigger time. The input is not modified.
func Stamp(records []models.EnrichedRecord, trigger int64) []models.EnrichedRecord {
	out := make([]models.EnrichedRecord, len(records))
	for i, r := range records {
		r.TriggerDatetimeCreated = trigger
		r.Feedback = nil
		out[i] = r
	}
	return out
}
