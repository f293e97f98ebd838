package deduplication

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promopush/internal/config"
	"promopush/internal/constants"
	"promopush/internal/logger"
	"promopush/pkg/models"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(restaurant, campaign string, start int64, created time.Time, client string) models.EnrichedRecord {
	s := start
	c := created
	return models.EnrichedRecord{
		RestaurantID:    restaurant,
		AdvCampaignID:   campaign,
		DatetimeStart:   &s,
		DatetimeCreated: &c,
		ClientID:        client,
	}
}

func newEngine(cfg config.DeduplicationConfig) *Engine {
	if cfg.WatermarkLag == 0 {
		cfg.WatermarkLag = 10 * time.Minute
	}
	return NewEngine(cfg, logger.NopLogger())
}

func TestProcessSuppressesDuplicateWithinBatch(t *testing.T) {
	e := newEngine(config.DeduplicationConfig{})

	out, res := e.Process(context.Background(), []models.EnrichedRecord{
		rec("R1", "C1", 900, base, "a@x"),
		rec("R1", "C1", 900, base, "a@x"),
	})

	require.Len(t, out, 1)
	assert.Equal(t, Result{Emitted: 1, Suppressed: 1}, res)
	assert.Equal(t, 1, e.Len())
}

func TestProcessSuppressesAcrossBatches(t *testing.T) {
	e := newEngine(config.DeduplicationConfig{})

	out, _ := e.Process(context.Background(), []models.EnrichedRecord{rec("R1", "C1", 900, base, "a@x")})
	require.Len(t, out, 1)

	out, res := e.Process(context.Background(), []models.EnrichedRecord{rec("R1", "C1", 900, base.Add(5*time.Minute), "a@x")})
	assert.Empty(t, out)
	assert.Equal(t, 1, res.Suppressed)
}

func TestProcessReemitsAfterEviction(t *testing.T) {
	e := newEngine(config.DeduplicationConfig{})

	out, _ := e.Process(context.Background(), []models.EnrichedRecord{rec("R1", "C1", 900, base, "a@x")})
	require.Len(t, out, 1)

	// Another key pushes the running maximum 11 minutes ahead.
	out, res := e.Process(context.Background(), []models.EnrichedRecord{rec("R2", "C2", 900, base.Add(11*time.Minute), "b@x")})
	require.Len(t, out, 1)
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, 1, e.Len())

	out, res = e.Process(context.Background(), []models.EnrichedRecord{rec("R1", "C1", 900, base, "a@x")})
	require.Len(t, out, 1, "evicted key is treated as unseen")
	assert.Equal(t, 1, res.Emitted)
}

func TestProcessEvictionBoundaryIsExclusive(t *testing.T) {
	e := newEngine(config.DeduplicationConfig{})

	e.Process(context.Background(), []models.EnrichedRecord{rec("R1", "C1", 900, base, "a@x")})
	_, res := e.Process(context.Background(), []models.EnrichedRecord{rec("R2", "C2", 900, base.Add(10*time.Minute), "b@x")})
	assert.Zero(t, res.Evicted, "entry exactly lag behind the maximum is kept")

	out, _ := e.Process(context.Background(), []models.EnrichedRecord{rec("R1", "C1", 900, base, "a@x")})
	assert.Empty(t, out)
}

func TestProcessUsesBatchWideMaximumBeforeAdmission(t *testing.T) {
	e := newEngine(config.DeduplicationConfig{})
	e.Process(context.Background(), []models.EnrichedRecord{rec("R1", "C1", 900, base, "a@x")})

	// The late duplicate comes first, but the batch also carries an event 20 minutes
	// ahead, so the stale state is evicted before either record is admitted.
	out, res := e.Process(context.Background(), []models.EnrichedRecord{
		rec("R1", "C1", 900, base, "a@x"),
		rec("R3", "C3", 900, base.Add(20*time.Minute), "c@x"),
	})
	require.Len(t, out, 2)
	assert.Equal(t, "R1", out[0].RestaurantID)
	assert.Equal(t, "R3", out[1].RestaurantID)
	assert.Equal(t, 1, res.Evicted)
}

func TestProcessKeepsArrivalOrder(t *testing.T) {
	e := newEngine(config.DeduplicationConfig{})

	out, _ := e.Process(context.Background(), []models.EnrichedRecord{
		rec("R3", "C1", 1, base.Add(2*time.Second), ""),
		rec("R1", "C1", 1, base, ""),
		rec("R3", "C1", 1, base, ""),
		rec("R2", "C1", 1, base.Add(time.Second), ""),
	})

	require.Len(t, out, 3)
	assert.Equal(t, []string{"R3", "R1", "R2"}, []string{out[0].RestaurantID, out[1].RestaurantID, out[2].RestaurantID})
}

func TestProcessDropsRecordsWithoutEventTime(t *testing.T) {
	e := newEngine(config.DeduplicationConfig{})
	r := rec("R1", "C1", 900, base, "a@x")
	r.DatetimeCreated = nil

	out, res := e.Process(context.Background(), []models.EnrichedRecord{r})
	assert.Empty(t, out)
	assert.Equal(t, 1, res.Dropped)
	assert.Zero(t, e.Len())
}

func TestProcessKeyIncludesStart(t *testing.T) {
	e := newEngine(config.DeduplicationConfig{})
	noStart := rec("R1", "C1", 0, base, "")
	noStart.DatetimeStart = nil

	out, _ := e.Process(context.Background(), []models.EnrichedRecord{
		rec("R1", "C1", 900, base, ""),
		rec("R1", "C1", 901, base, ""),
		rec("R1", "C1", 0, base, ""),
		noStart,
	})
	assert.Len(t, out, 4)
}

func TestProcessJoinFanOutCollapsesByDefault(t *testing.T) {
	records := []models.EnrichedRecord{
		rec("R1", "C1", 900, base, "a@x"),
		rec("R1", "C1", 900, base, "c@x"),
	}

	out, _ := newEngine(config.DeduplicationConfig{}).Process(context.Background(), records)
	assert.Len(t, out, 1)

	out, _ = newEngine(config.DeduplicationConfig{PerSubscriber: true}).Process(context.Background(), records)
	assert.Len(t, out, 2)
}

func TestProcessLaterOccurrencePolicy(t *testing.T) {
	first := rec("R1", "C1", 900, base, "a@x")
	later := rec("R1", "C1", 900, base.Add(time.Minute), "a@x")
	earlier := rec("R1", "C1", 900, base.Add(-time.Minute), "a@x")

	t.Run("suppress", func(t *testing.T) {
		e := newEngine(config.DeduplicationConfig{OnLaterOccurrence: constants.LaterOccurrenceSuppress})
		out, _ := e.Process(context.Background(), []models.EnrichedRecord{first, later, earlier})
		assert.Len(t, out, 1)
	})

	t.Run("reemit", func(t *testing.T) {
		e := newEngine(config.DeduplicationConfig{OnLaterOccurrence: constants.LaterOccurrenceReemit})
		out, res := e.Process(context.Background(), []models.EnrichedRecord{first, later, earlier})
		require.Len(t, out, 2)
		assert.Equal(t, base.Add(time.Minute), *out[1].DatetimeCreated)
		assert.Equal(t, 1, res.Suppressed)
		assert.Equal(t, 1, e.Len())
	})
}

func TestProcessLaterOccurrenceRefreshesRetention(t *testing.T) {
	e := newEngine(config.DeduplicationConfig{})
	e.Process(context.Background(), []models.EnrichedRecord{
		rec("R1", "C1", 900, base, ""),
		rec("R1", "C1", 900, base.Add(5*time.Minute), ""),
	})

	_, res := e.Process(context.Background(), []models.EnrichedRecord{rec("R2", "C2", 900, base.Add(12*time.Minute), "")})
	assert.Zero(t, res.Evicted)
	assert.Equal(t, 2, e.Len())
}

func TestStats(t *testing.T) {
	e := newEngine(config.DeduplicationConfig{})
	assert.Equal(t, 0, e.Stats().StateSize)
	assert.True(t, e.Stats().Watermark.IsZero())

	e.Process(context.Background(), []models.EnrichedRecord{
		rec("R1", "C1", 900, base, ""),
		rec("R1", "C1", 900, base, ""),
	})

	s := e.Stats()
	assert.Equal(t, 1, s.StateSize)
	assert.Equal(t, base, s.MaxEventTime)
	assert.Equal(t, base.Add(-10*time.Minute), s.Watermark)
	assert.Equal(t, uint64(1), s.Emitted)
	assert.Equal(t, uint64(1), s.Suppressed)
	assert.Equal(t, "10m0s", s.Lag)
}

func TestDefaultLag(t *testing.T) {
	e := NewEngine(config.DeduplicationConfig{}, logger.NopLogger())
	assert.Equal(t, constants.DefaultWatermarkLag, e.lag)
}

// Randomised check of the dedup invariants against a naive reference model.
func TestProcessMatchesReferenceModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	lag := 3 * time.Minute
	e := newEngine(config.DeduplicationConfig{WatermarkLag: lag})

	refSeen := map[Key]time.Time{}
	var refMax time.Time

	for batch := 0; batch < 200; batch++ {
		records := make([]models.EnrichedRecord, rng.Intn(20))
		for i := range records {
			at := base.Add(time.Duration(batch*10+rng.Intn(60)) * time.Second)
			records[i] = rec("R"+string(rune('A'+rng.Intn(4))), "C"+string(rune('A'+rng.Intn(3))), int64(rng.Intn(2)), at, "")
		}

		var want []models.EnrichedRecord
		for _, r := range records {
			if r.DatetimeCreated.After(refMax) {
				refMax = *r.DatetimeCreated
			}
		}
		for k, at := range refSeen {
			if refMax.Sub(at) > lag {
				delete(refSeen, k)
			}
		}
		for _, r := range records {
			k := e.KeyOf(r)
			prev, ok := refSeen[k]
			if !ok {
				want = append(want, r)
				refSeen[k] = *r.DatetimeCreated
			} else if r.DatetimeCreated.After(prev) {
				refSeen[k] = *r.DatetimeCreated
			}
		}

		got, _ := e.Process(context.Background(), records)
		require.Equal(t, len(want), len(got), "batch %d", batch)
		for i := range want {
			assert.Equal(t, e.KeyOf(want[i]), e.KeyOf(got[i]))
		}
		require.Equal(t, len(refSeen), e.Len())
		require.Equal(t, e.Len(), e.index.Len())
	}
}
