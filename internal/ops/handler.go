package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"promopush/internal/catalog"
	"promopush/internal/deduplication"
	"promopush/internal/ledger"
	"promopush/internal/logger"
	"promopush/pkg/errors"
	"promopush/pkg/health"
)

type CatalogService interface {
	Current() *catalog.Catalog
	Reload(ctx context.Context) error
}

// Broadcaster fans a catalog refresh out to every instance on the control topic.
type Broadcaster interface {
	Enabled() bool
	PublishRefresh(ctx context.Context, changedBy string) error
}

type DedupStats interface {
	Stats() deduplication.Stats
}

type CatalogResponse struct {
	Loaded      bool      `json:"loaded"`
	Subscribers int       `json:"subscribers"`
	Restaurants int       `json:"restaurants"`
	LoadedAt    time.Time `json:"loaded_at,omitempty"`
}

type Handler struct {
	catalog CatalogService
	dedup   DedupStats
	ledger  ledger.Ledger
	health  *health.CheckerRegistry
	notify  Broadcaster
	logger  logger.Logger
}

func NewHandler(cat CatalogService, dedup DedupStats, l ledger.Ledger, registry *health.CheckerRegistry, log logger.Logger) *Handler {
	return &Handler{
		catalog: cat,
		dedup:   dedup,
		ledger:  l,
		health:  registry,
		logger:  log,
	}
}

func (h *Handler) WithBroadcaster(b Broadcaster) *Handler {
	h.notify = b
	return h
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/catalog", h.GetCatalog)
		v1.POST("/catalog/refresh", h.RefreshCatalog)
		v1.GET("/dedup", h.GetDedupStats)
		v1.GET("/batches/:id", h.GetBatch)
	}
}

func (h *Handler) Health(c *gin.Context) {
	result := h.health.Check(c.Request.Context())
	statusCode := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, result)
}

func (h *Handler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, describe(h.catalog.Current()))
}

// RefreshCatalog reloads the local catalog. With ?broadcast=true the request is also
// published on the control topic so other instances reload too.
func (h *Handler) RefreshCatalog(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("broadcast") == "true" {
		if h.notify == nil || !h.notify.Enabled() {
			h.HandleError(c, errors.ErrValidation.WithDetail("broadcast", "control topic not configured"))
			return
		}
		if err := h.notify.PublishRefresh(ctx, c.ClientIP()); err != nil {
			h.HandleError(c, errors.ErrInternal.WithCause(err))
			return
		}
		h.logger.InfowCtx(ctx, "Catalog refresh broadcast")
	}

	if err := h.catalog.Reload(ctx); err != nil {
		h.HandleError(c, errors.ErrCatalogLoad.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, describe(h.catalog.Current()))
}

func (h *Handler) GetDedupStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.dedup.Stats())
}

func (h *Handler) GetBatch(c *gin.Context) {
	report, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func describe(cat *catalog.Catalog) CatalogResponse {
	if cat == nil {
		return CatalogResponse{}
	}
	return CatalogResponse{
		Loaded:      true,
		Subscribers: cat.Size(),
		Restaurants: cat.Restaurants(),
		LoadedAt:    cat.LoadedAt(),
	}
}
