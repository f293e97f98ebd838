package catalog

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

type fakeRepository struct {
	mu    sync.Mutex
	rows  []models.SubscriberRow
	err   error
	calls int
}

func (r *fakeRepository) LoadSubscribers(context.Context) ([]models.SubscriberRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.rows, nil
}

func (r *fakeRepository) set(rows []models.SubscriberRow, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows, r.err = rows, err
}

func (r *fakeRepository) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var registry = []models.SubscriberRow{
	{ID: 1, ClientID: "a@x", RestaurantID: "R1"},
	{ID: 2, ClientID: "b@x", RestaurantID: "R2"},
	{ID: 3, ClientID: "c@x", RestaurantID: "R1"},
}

func TestCatalogLookup(t *testing.T) {
	c := Build(registry, time.Unix(10, 0))

	r1 := c.Lookup("R1")
	require.Len(t, r1, 2)
	assert.Equal(t, "a@x", r1[0].ClientID)
	assert.Equal(t, "c@x", r1[1].ClientID)

	assert.Empty(t, c.Lookup("R404"))
	assert.Equal(t, 3, c.Size())
	assert.Equal(t, 2, c.Restaurants())
	assert.Equal(t, time.Unix(10, 0), c.LoadedAt())
}

func TestCatalogLookupCannotGrowSharedSlice(t *testing.T) {
	c := Build(registry, time.Now())
	r1 := c.Lookup("R1")
	_ = append(r1, models.SubscriberRow{ClientID: "intruder"})
	assert.Len(t, c.Lookup("R1"), 2)
}

func TestServiceLoadFailureIsFatal(t *testing.T) {
	repo := &fakeRepository{err: errors.New("connection refused")}
	svc := NewService(repo, config.CatalogConfig{}, logger.NopLogger())

	err := svc.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrCatalogLoad))
	assert.True(t, pkgerrors.IsFatal(err))
	assert.Nil(t, svc.Current())
}

func TestServiceReloadKeepsPreviousOnFailure(t *testing.T) {
	repo := &fakeRepository{rows: registry}
	svc := NewService(repo, config.CatalogConfig{}, logger.NopLogger())
	require.NoError(t, svc.Load(context.Background()))
	first := svc.Current()

	repo.set(nil, errors.New("timeout"))
	require.Error(t, svc.Reload(context.Background()))
	assert.Same(t, first, svc.Current())

	repo.set(registry[:1], nil)
	require.NoError(t, svc.Reload(context.Background()))
	assert.Equal(t, 1, svc.Current().Size())
	assert.Equal(t, 3, first.Size())
}

func TestStartRefresherDisabled(t *testing.T) {
	svc := NewService(&fakeRepository{}, config.CatalogConfig{}, logger.NopLogger())
	assert.NoError(t, svc.StartRefresher(context.Background()))
}

func TestStartRefresherReloads(t *testing.T) {
	repo := &fakeRepository{rows: registry}
	svc := NewService(repo, config.CatalogConfig{RefreshInterval: 5 * time.Millisecond}, logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.StartRefresher(ctx) }()

	require.Eventually(t, func() bool { return repo.callCount() >= 2 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 3, svc.Current().Size())
}
