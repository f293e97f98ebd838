package catalog

import (
	"context"

	"github.com/goccy/go-json"

	"promopush/internal/logger"
	"promopush/pkg/models"
)

// Reloader is the part of Service the control handler drives.
type Reloader interface {
	Reload(ctx context.Context) error
	Current() *Catalog
}

// Handler consumes the control topic and reloads the catalog on catalog_refresh events.
type Handler struct {
	target Reloader
	logger logger.Logger
}

func NewHandler(target Reloader, log logger.Logger) *Handler {
	return &Handler{target: target, logger: log}
}

// HandleControlEvent never fails on malformed, foreign or stale events so the subscriber
// commits past them. Only a failed reload is returned for retry.
func (h *Handler) HandleControlEvent(ctx context.Context, msg models.RawMessage) error {
	var event models.ControlEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.WarnwCtx(ctx, "skipping malformed control event",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if event.EventType != models.EventTypeCatalogRefresh || event.ServiceType != models.ServiceTypeCatalog {
		h.logger.DebugwCtx(ctx, "ignoring control event",
			"event_type", event.EventType,
			"service_type", event.ServiceType,
		)
		return nil
	}

	// replayed after a restart: the startup load is already newer
	if cur := h.target.Current(); cur != nil && !event.Timestamp.IsZero() && event.Timestamp.Before(cur.LoadedAt()) {
		h.logger.InfowCtx(ctx, "skipping stale catalog refresh",
			"requested_at", event.Timestamp,
			"loaded_at", cur.LoadedAt(),
		)
		return nil
	}

	if err := h.target.Reload(ctx); err != nil {
		h.logger.ErrorwCtx(ctx, "catalog reload requested by control event failed",
			"changed_by", event.ChangedBy,
			"error", err,
		)
		return err
	}
	h.logger.InfowCtx(ctx, "catalog reloaded by control event",
		"changed_by", event.ChangedBy,
		"action", event.Action,
	)
	return nil
}
