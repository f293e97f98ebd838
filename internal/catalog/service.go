package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"promopush/internal/config"
	"promopush/internal/logger"
	pkgerrors "promopush/pkg/errors"
	"promopush/pkg/metrics"
	"promopush/pkg/tracing"
)

const (
	triggerStartup  = "startup"
	triggerPeriodic = "periodic"
	triggerExternal = "external"
)

// Service owns the resident catalog. Readers take a snapshot with Current; a reload swaps
// in a new catalog without disturbing joins that hold the previous one.
type Service struct {
	repo            Repository
	refreshInterval time.Duration
	logger          logger.Logger

	current  atomic.Pointer[Catalog]
	reloadMu sync.Mutex
}

func NewService(repo Repository, cfg config.CatalogConfig, log logger.Logger) *Service {
	return &Service{
		repo:            repo,
		refreshInterval: cfg.RefreshInterval,
		logger:          log,
	}
}

// Load performs the startup load. Failure is fatal to the run.
func (s *Service) Load(ctx context.Context) error {
	if err := s.load(ctx, triggerStartup); err != nil {
		return pkgerrors.ErrCatalogLoad.WithCause(err)
	}
	return nil
}

// Reload refreshes the catalog on demand. On failure the previous catalog stays active.
func (s *Service) Reload(ctx context.Context) error {
	return s.load(ctx, triggerExternal)
}

func (s *Service) Current() *Catalog {
	return s.current.Load()
}

func (s *Service) load(ctx context.Context, trigger string) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	ctx, span := tracing.GetTracer("catalog").Start(ctx, "catalog.load")
	defer span.End()

	start := time.Now()
	rows, err := s.repo.LoadSubscribers(ctx)
	if err != nil {
		metrics.ObserveCatalogLoad(trigger, "error", time.Since(start), 0)
		s.logger.ErrorwCtx(ctx, "Failed to load subscriber catalog", "trigger", trigger, "error", err)
		return err
	}

	c := Build(rows, time.Now())
	s.current.Store(c)

	metrics.ObserveCatalogLoad(trigger, "success", time.Since(start), c.Size())
	s.logger.InfowCtx(ctx, "Subscriber catalog loaded",
		"trigger", trigger,
		"subscribers", c.Size(),
		"restaurants", c.Restaurants(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// StartRefresher reloads on a fixed interval until ctx is done. A zero interval disables it.
func (s *Service) StartRefresher(ctx context.Context) error {
	if s.refreshInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.load(ctx, triggerPeriodic); err != nil {
				s.logger.WarnwCtx(ctx, "Periodic catalog refresh failed, keeping previous catalog", "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
