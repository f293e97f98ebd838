package deduplication

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/btree"

	"promopush/internal/config"
	"promopush/internal/constants"
	"promopush/internal/logger"
	"promopush/pkg/metrics"
	"promopush/pkg/models"
	"promopush/pkg/tracing"
)

const btreeDegree = 32

// Engine drops repeated occurrences of a key while its state is inside the watermark.
//
// State is a key -> last-seen event time map plus an index ordered by event time, so
// eviction touches only expired entries. Once a key is evicted a later record with the
// same key is treated as new.
//
// Process must be called from a single goroutine. Stats may be read concurrently.
type Engine struct {
	lag           time.Duration
	reemitLater   bool
	perSubscriber bool
	logger        logger.Logger

	seen  map[Key]time.Time
	index *btree.BTreeG[entry]

	maxEventTime time.Time
	hasMax       bool
	totals       Stats

	snapshot atomic.Pointer[Stats]
}

func NewEngine(cfg config.DeduplicationConfig, log logger.Logger) *Engine {
	lag := cfg.WatermarkLag
	if lag <= 0 {
		lag = constants.DefaultWatermarkLag
	}

	e := &Engine{
		lag:           lag,
		reemitLater:   cfg.OnLaterOccurrence == constants.LaterOccurrenceReemit,
		perSubscriber: cfg.PerSubscriber,
		logger:        log,
		seen:          make(map[Key]time.Time),
		index:         btree.NewG(btreeDegree, entryLess),
	}
	e.publish()
	return e
}

func (e *Engine) KeyOf(r models.EnrichedRecord) Key {
	k := Key{
		RestaurantID:  r.RestaurantID,
		AdvCampaignID: r.AdvCampaignID,
	}
	if r.DatetimeStart != nil {
		k.DatetimeStart = *r.DatetimeStart
		k.HasStart = true
	}
	if e.perSubscriber {
		k.ClientID = r.ClientID
	}
	return k
}

// Process filters one micro-batch. The running maximum event time is advanced over the
// whole batch before any eviction or admission, and emitted records keep arrival order.
func (e *Engine) Process(ctx context.Context, records []models.EnrichedRecord) ([]models.EnrichedRecord, Result) {
	_, span := tracing.GetTracer("deduplication").Start(ctx, "deduplication.process")
	defer span.End()

	var res Result

	for _, r := range records {
		if t, ok := r.EventTime(); ok && (!e.hasMax || t.After(e.maxEventTime)) {
			e.maxEventTime = t
			e.hasMax = true
		}
	}

	res.Evicted = e.evict()

	out := make([]models.EnrichedRecord, 0, len(records))
	for _, r := range records {
		t, ok := r.EventTime()
		if !ok {
			res.Dropped++
			continue
		}

		if e.admit(e.KeyOf(r), t) {
			out = append(out, r)
			res.Emitted++
		} else {
			res.Suppressed++
		}
	}

	e.totals.Emitted += uint64(res.Emitted)
	e.totals.Suppressed += uint64(res.Suppressed)
	e.totals.Dropped += uint64(res.Dropped)
	e.totals.Evicted += uint64(res.Evicted)
	stats := e.publish()

	metrics.ObserveDedup(res.Emitted, res.Suppressed, res.Dropped, res.Evicted, stats.StateSize, stats.Watermark)
	if res.Dropped > 0 {
		e.logger.WarnwCtx(ctx, "Dropped records without datetime_created", "count", res.Dropped)
	}
	e.logger.DebugwCtx(ctx, "Deduplicated batch",
		"input", len(records),
		"emitted", res.Emitted,
		"suppressed", res.Suppressed,
		"evicted", res.Evicted,
		"state_size", stats.StateSize,
	)

	return out, res
}

// admit reports whether the record should be emitted and updates state.
func (e *Engine) admit(k Key, t time.Time) bool {
	prev, seen := e.seen[k]
	if !seen {
		e.put(k, t)
		return true
	}
	if !t.After(prev) {
		return false
	}

	e.index.Delete(entry{at: prev, key: k})
	e.put(k, t)
	return e.reemitLater
}

func (e *Engine) put(k Key, t time.Time) {
	e.seen[k] = t
	e.index.ReplaceOrInsert(entry{at: t, key: k})
}

// evict removes every entry whose event time lags the running maximum by more than lag.
func (e *Engine) evict() int {
	if !e.hasMax {
		return 0
	}

	threshold := e.maxEventTime.Add(-e.lag)
	n := 0
	for {
		oldest, ok := e.index.Min()
		if !ok || !oldest.at.Before(threshold) {
			return n
		}
		e.index.DeleteMin()
		delete(e.seen, oldest.key)
		n++
	}
}

func (e *Engine) publish() *Stats {
	s := e.totals
	s.StateSize = len(e.seen)
	s.Lag = e.lag.String()
	if e.hasMax {
		s.MaxEventTime = e.maxEventTime
		s.Watermark = e.maxEventTime.Add(-e.lag)
	}
	e.snapshot.Store(&s)
	return &s
}

// Stats returns the state as of the last completed Process call.
func (e *Engine) Stats() Stats {
	return *e.snapshot.Load()
}

func (e *Engine) Len() int {
	return len(e.seen)
}
