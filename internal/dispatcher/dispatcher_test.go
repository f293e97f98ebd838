package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promopush/internal/config"
	"promopush/internal/logger"
	pkgerrors "promopush/pkg/errors"
	"promopush/pkg/models"
)

type fakeSink struct {
	name string

	mu       sync.Mutex
	failures []error
	writes   [][]models.EnrichedRecord
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Write(_ context.Context, records []models.EnrichedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, records)
	if len(s.failures) > 0 {
		err := s.failures[0]
		if len(s.failures) > 1 {
			s.failures = s.failures[1:]
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

type fakeRecorder struct {
	mu      sync.Mutex
	reports []*models.CommitReport
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, report *models.CommitReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return r.err
}

var fixedNow = time.Unix(1_700_000_000, 0)

func testConfig(concurrent bool) config.DispatcherConfig {
	return config.DispatcherConfig{
		ConcurrentSinks: concurrent,
		Timeout:         time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Multiplier:      2,
			MaxElapsedTime:  time.Second,
		},
	}
}

func newDispatcher(concurrent bool, rec Recorder, sinks ...Sink) *Dispatcher {
	return New(testConfig(concurrent), sinks, rec, func() time.Time { return fixedNow }, logger.NopLogger())
}

func records(n int) []models.EnrichedRecord {
	out := make([]models.EnrichedRecord, n)
	for i := range out {
		fb := "stale"
		out[i] = models.EnrichedRecord{RestaurantID: "R1", AdvCampaignID: "C1", SubscriberID: int64(i), Feedback: &fb}
	}
	return out
}

func TestDispatchWritesSameSnapshotToBothSinks(t *testing.T) {
	store := &fakeSink{name: "store"}
	broker := &fakeSink{name: "broker"}
	rec := &fakeRecorder{}
	in := records(3)

	report, err := newDispatcher(true, rec, store, broker).Dispatch(context.Background(), Batch{ID: "b1", Records: in})
	require.NoError(t, err)

	require.Equal(t, 1, store.calls())
	require.Equal(t, 1, broker.calls())
	assert.Len(t, store.writes[0], 3)
	assert.Equal(t, store.writes[0], broker.writes[0])
	for _, r := range store.writes[0] {
		assert.Equal(t, fixedNow.Unix(), r.TriggerDatetimeCreated)
		assert.Nil(t, r.Feedback)
	}

	assert.Zero(t, in[0].TriggerDatetimeCreated, "input batch is not mutated")
	assert.NotNil(t, in[0].Feedback)

	assert.True(t, report.Committed())
	assert.Equal(t, "b1", report.BatchID)
	assert.Equal(t, 3, report.Records)
	assert.Equal(t, fixedNow.Unix(), report.TriggerDatetimeCreated)
	assert.Equal(t, models.SinkStatusSuccess, report.Outcome("store").Status)
	assert.Equal(t, models.SinkStatusSuccess, report.Outcome("broker").Status)
	require.Len(t, rec.reports, 1)
	assert.Same(t, report, rec.reports[0])
}

func TestDispatchRetriesOnlyFailedSink(t *testing.T) {
	store := &fakeSink{name: "store"}
	broker := &fakeSink{name: "broker", failures: []error{errors.New("leader not available"), nil}}

	report, err := newDispatcher(true, nil, store, broker).Dispatch(context.Background(), Batch{ID: "b2", Records: records(2)})
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls())
	assert.Equal(t, 2, broker.calls())
	assert.Equal(t, broker.writes[0], broker.writes[1], "retry reuses the stamped snapshot")
	assert.Equal(t, 1, report.Outcome("store").Attempts)
	assert.Equal(t, 2, report.Outcome("broker").Attempts)
	assert.Empty(t, report.Outcome("broker").Error)
}

func TestDispatchSequentialSkipsBrokerWhenStoreFails(t *testing.T) {
	store := &fakeSink{name: "store", failures: []error{errors.New("connection reset")}}
	broker := &fakeSink{name: "broker"}
	rec := &fakeRecorder{}

	report, err := newDispatcher(false, rec, store, broker).Dispatch(context.Background(), Batch{ID: "b3", Records: records(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrSinkWrite))

	assert.Equal(t, 3, store.calls())
	assert.Zero(t, broker.calls())
	assert.False(t, report.Committed())
	assert.Equal(t, models.SinkStatusFailed, report.Outcome("store").Status)
	assert.Equal(t, "connection reset", report.Outcome("store").Error)
	assert.Equal(t, models.SinkStatusSkipped, report.Outcome("broker").Status)
	require.Len(t, rec.reports, 1)
	assert.Equal(t, models.BatchStatusFailed, rec.reports[0].Status)
}

func TestDispatchSequentialWritesStoreFirst(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	track := func(s *fakeSink) Sink {
		return sinkFunc{name: s.name, fn: func(ctx context.Context, r []models.EnrichedRecord) error {
			mu.Lock()
			order = append(order, s.name)
			mu.Unlock()
			return s.Write(ctx, r)
		}}
	}

	_, err := newDispatcher(false, nil, track(&fakeSink{name: "store"}), track(&fakeSink{name: "broker"})).
		Dispatch(context.Background(), Batch{ID: "b4", Records: records(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"store", "broker"}, order)
}

func TestDispatchPartialFailureIsReported(t *testing.T) {
	store := &fakeSink{name: "store"}
	broker := &fakeSink{name: "broker", failures: []error{errors.New("broker down")}}

	report, err := newDispatcher(true, nil, store, broker).Dispatch(context.Background(), Batch{ID: "b5", Records: records(4)})
	require.Error(t, err)

	assert.Equal(t, 1, store.calls())
	assert.Equal(t, 3, broker.calls())
	assert.Equal(t, models.SinkStatusSuccess, report.Outcome("store").Status)
	assert.Equal(t, models.SinkStatusFailed, report.Outcome("broker").Status)
	assert.Equal(t, 3, report.Outcome("broker").Attempts)
}

func TestDispatchFatalSinkErrorIsNotRetried(t *testing.T) {
	broker := &fakeSink{name: "broker", failures: []error{pkgerrors.ErrSinkWrite.AsFatal()}}

	_, err := newDispatcher(true, nil, broker).Dispatch(context.Background(), Batch{ID: "b6", Records: records(1)})
	require.Error(t, err)
	assert.Equal(t, 1, broker.calls())
}

func TestDispatchRecorderErrorDoesNotFailBatch(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("redis down")}
	report, err := newDispatcher(true, rec, &fakeSink{name: "store"}).Dispatch(context.Background(), Batch{ID: "b7", Records: records(1)})
	require.NoError(t, err)
	assert.True(t, report.Committed())
}

func TestStamp(t *testing.T) {
	in := records(2)
	out := Stamp(in, 42)
	require.Len(t, out, 2)
	assert.Equal(t, int64(42), out[1].TriggerDatetimeCreated)
	assert.Zero(t, in[1].TriggerDatetimeCreated)
}

type sinkFunc struct {
	name string
	fn   func(ctx context.Context, records []models.EnrichedRecord) error
}

func (s sinkFunc) Name() string { return s.name }

func (s sinkFunc) Write(ctx context.Context, records []models.EnrichedRecord) error {
	return s.fn(ctx, records)
}
