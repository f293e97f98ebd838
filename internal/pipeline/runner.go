package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"promopush/internal/broker"
	"promopush/internal/catalog"
	"promopush/internal/constants"
	"promopush/internal/decoder"
	"promopush/internal/deduplication"
	"promopush/internal/dispatcher"
	"promopush/internal/enrichment"
	"promopush/internal/filtering"
	"promopush/internal/logger"
	pkgerrors "promopush/pkg/errors"
	"promopush/pkg/logging"
	"promopush/pkg/metrics"
	"promopush/pkg/models"
	"promopush/pkg/tracing"
)

type CatalogSource interface {
	Current() *catalog.Catalog
}

type Deduplicator interface {
	Process(ctx context.Context, records []models.EnrichedRecord) ([]models.EnrichedRecord, deduplication.Result)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, batch dispatcher.Batch) (*models.CommitReport, error)
}

type Options struct {
	MaxRecords int
	PollWait   time.Duration
	// CommitTimeout bounds dispatch plus offset commit of one batch, including during shutdown.
	CommitTimeout time.Duration
}

// Runner drives the micro-batch loop. It owns the dedup state, so only one batch is in
// flight at a time.
type Runner struct {
	consumer   broker.Consumer
	decoder    *decoder.Decoder
	filter     *filtering.Service
	catalog    CatalogSource
	joiner     *enrichment.Service
	dedup      Deduplicator
	dispatcher Dispatcher
	opts       Options
	logger     logger.Logger
}

func NewRunner(
	consumer broker.Consumer,
	dec *decoder.Decoder,
	filter *filtering.Service,
	cat CatalogSource,
	joiner *enrichment.Service,
	dedup Deduplicator,
	disp Dispatcher,
	opts Options,
	log logger.Logger,
) *Runner {
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = constants.DefaultMaxRecords
	}
	if opts.PollWait <= 0 {
		opts.PollWait = constants.DefaultPollWait
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = constants.DispatchTimeout + constants.ShutdownTimeout
	}
	return &Runner{
		consumer:   consumer,
		decoder:    dec,
		filter:     filter,
		catalog:    cat,
		joiner:     joiner,
		dedup:      dedup,
		dispatcher: disp,
		opts:       opts,
		logger:     log,
	}
}

// Run polls until ctx is cancelled. A batch whose dispatch fails after retries stops the
// run with its offsets uncommitted, so a fresh process receives it again.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfowCtx(ctx, "Pipeline started",
		"max_records", r.opts.MaxRecords,
		"poll_wait", r.opts.PollWait.String(),
	)

	for {
		if ctx.Err() != nil {
			r.logger.InfowCtx(ctx, "Pipeline stopped")
			return nil
		}

		raws, err := r.consumer.Poll(ctx, r.opts.MaxRecords, r.opts.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.InfowCtx(ctx, "Pipeline stopped")
				return nil
			}
			return fmt.Errorf("failed to poll source: %w", err)
		}
		if len(raws) == 0 {
			continue
		}

		if err := r.ProcessBatch(ctx, raws); err != nil {
			return err
		}
	}
}

// ProcessBatch runs one polled batch through every stage and commits its offsets. If ctx is
// cancelled before dedup the batch is abandoned uncommitted. Once dedup has run the batch
// is always driven to commit or failure.
func (r *Runner) ProcessBatch(ctx context.Context, raws []models.RawMessage) (err error) {
	start := time.Now()
	batchID := uuid.NewString()
	ctx = logging.WithBatchID(ctx, batchID)
	ctx, span := tracing.GetTracer("pipeline").Start(ctx, "pipeline.batch",
		trace.WithAttributes(
			tracing.AttrBatchID.String(batchID),
			tracing.AttrRecords.Int(len(raws)),
		),
	)
	defer span.End()

	status := "success"
	defer func() {
		if rec := recover(); rec != nil {
			err = pkgerrors.RecoverPanic(rec)
			r.logger.ErrorwCtx(ctx, "Panic while processing batch", "error", err)
		}
		if err != nil {
			status = "error"
			tracing.Fail(span, err)
		}
		metrics.ObserveBatch(time.Since(start), status, len(raws))
	}()

	events, rejected, err := r.decoder.DecodeBatch(ctx, raws)
	if err != nil {
		return r.abandon(ctx, err)
	}
	for _, de := range rejected {
		metrics.IncDecodeError(de.Kind.String())
		r.logger.WarnwCtx(ctx, "Dropping undecodable record",
			"topic", de.Topic,
			"partition", de.Partition,
			"offset", de.Offset,
			"error", de,
		)
	}
	metrics.AddStageRecords("decode", "decoded", len(events))

	kept := r.filter.Filter(ctx, events)

	cat := r.catalog.Current()
	if cat == nil {
		return pkgerrors.ErrCatalogLoad.WithDetail("reason", "catalog not loaded")
	}
	joined, err := r.joiner.Join(ctx, kept, cat)
	if err != nil {
		return r.abandon(ctx, err)
	}
	if ctx.Err() != nil {
		return r.abandon(ctx, ctx.Err())
	}

	emitted, dedupRes := r.dedup.Process(ctx, joined)

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.CommitTimeout)
	defer cancel()

	if len(emitted) > 0 {
		if _, err := r.dispatcher.Dispatch(commitCtx, dispatcher.Batch{
			ID:      batchID,
			Records: emitted,
			Offsets: models.OffsetRanges(raws),
		}); err != nil {
			return fmt.Errorf("failed to dispatch batch %s: %w", batchID, err)
		}
	}

	if err := r.consumer.Commit(commitCtx, raws); err != nil {
		return fmt.Errorf("failed to commit offsets for batch %s: %w", batchID, err)
	}

	r.logger.InfowCtx(ctx, "Batch processed",
		"polled", len(raws),
		"rejected", len(rejected),
		"filtered", len(kept),
		"joined", len(joined),
		"emitted", len(emitted),
		"suppressed", dedupRes.Suppressed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// abandon leaves a batch uncommitted because the run is shutting down.
func (r *Runner) abandon(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		r.logger.InfowCtx(ctx, "Shutdown before dedup, leaving batch uncommitted")
		return nil
	}
	return err
}
