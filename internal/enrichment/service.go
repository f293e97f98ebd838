package enrichment

import (
	"context"
	"time"

	"promopush/internal/catalog"
	"promopush/internal/logger"
	"promopush/pkg/metrics"
	"promopush/pkg/models"
	"promopush/pkg/parallel"
	"promopush/pkg/tracing"
)

// Lookup is the read side of the subscriber catalog used by the join.
type Lookup interface {
	Lookup(restaurantID string) []models.SubscriberRow
}

var _ Lookup = (*catalog.Catalog)(nil)

type Service struct {
	workers int
	logger  logger.Logger
}

func NewService(workers int, log logger.Logger) *Service {
	return &Service{workers: workers, logger: log}
}

// Join inner-joins events with their restaurant's subscribers. Output keeps event order and,
// within one event, catalog order. Events without subscribers produce nothing.
func (s *Service) Join(ctx context.Context, events []models.CampaignEvent, subscribers Lookup) ([]models.EnrichedRecord, error) {
	ctx, span := tracing.GetTracer("enrichment").Start(ctx, "enrichment.join")
	defer span.End()

	groups, err := parallel.Map(ctx, s.workers, events, func(_ context.Context, _ int, ev models.CampaignEvent) ([]models.EnrichedRecord, error) {
		return JoinEvent(ev, subscribers.Lookup(ev.RestaurantID)), nil
	})
	if err != nil {
		return nil, err
	}

	total := 0
	unmatched := 0
	for _, g := range groups {
		total += len(g)
		if len(g) == 0 {
			unmatched++
		}
	}

	out := make([]models.EnrichedRecord, 0, total)
	for _, g := range groups {
		out = append(out, g...)
	}

	metrics.AddStageRecords("join", "emitted", total)
	metrics.AddStageRecords("join", "unmatched", unmatched)
	if unmatched > 0 {
		s.logger.DebugwCtx(ctx, "Events without subscribers", "count", unmatched)
	}

	return out, nil
}

// JoinEvent builds one record per subscriber of the event's restaurant.
func JoinEvent(ev models.CampaignEvent, subscribers []models.SubscriberRow) []models.EnrichedRecord {
	if len(subscribers) == 0 {
		return nil
	}

	created := eventTime(ev.DatetimeCreated)
	out := make([]models.EnrichedRecord, 0, len(subscribers))
	for _, sub := range subscribers {
		out = append(out, models.EnrichedRecord{
			RestaurantID:            ev.RestaurantID,
			AdvCampaignID:           ev.AdvCampaignID,
			AdvCampaignContent:      ev.AdvCampaignContent,
			AdvCampaignOwner:        ev.AdvCampaignOwner,
			AdvCampaignOwnerContact: ev.AdvCampaignOwnerContact,
			DatetimeStart:           ev.DatetimeStart,
			DatetimeEnd:             ev.DatetimeEnd,
			DatetimeCreated:         created,
			SubscriberID:            sub.ID,
			ClientID:                sub.ClientID,
		})
	}
	return out
}

func eventTime(unix *int64) *time.Time {
	if unix == nil {
		return nil
	}
	t := time.Unix(*unix, 0).UTC()
	return &t
}
