// Package api exposes the crawler and user HTTP routes.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	infrajwt "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/ingest"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/queue"
)

// Config holds the route settings.
type Config struct {
	JWTSecret    string
	RateLimit    RateLimitConfig
	HistoryLimit int
}

// Handler serves both route groups.
type Handler struct {
	coordinator *queue.Coordinator
	ingestor    *ingest.Ingestor
	lifecycle   *lifecycle.Manager
	log         logger.Logger
	cfg         Config
}

// NewHandler creates a handler.
func NewHandler(
	coordinator *queue.Coordinator,
	ingestor *ingest.Ingestor,
	manager *lifecycle.Manager,
	cfg Config,
	log logger.Logger,
) *Handler {
	return &Handler{
		coordinator: coordinator,
		ingestor:    ingestor,
		lifecycle:   manager,
		log:         log,
		cfg:         cfg,
	}
}

// Register mounts the API on router.
func (h *Handler) Register(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	limiter := newPerCallerLimiter(h.cfg.RateLimit)
	crawler := v1.Group("/crawler",
		infrajwt.Middleware(h.cfg.JWTSecret, infrajwt.RoleCrawler),
		limiter.middleware(),
	)
	crawler.GET("/queue", h.PullQueue)
	crawler.POST("/queue/results", h.ReportNew)
	crawler.GET("/products/outdated", h.OutdatedProducts)
	crawler.POST("/products/:id/results", h.ReportExisting)

	user := v1.Group("/user", infrajwt.Middleware(h.cfg.JWTSecret, infrajwt.RoleUser))
	user.POST("/products", h.TrackProduct)
	user.GET("/products/:id", h.GetProduct)
	user.DELETE("/products/:id", h.UntrackProduct)
	user.PUT("/products/:id/subscriptions/:type", h.Subscribe)
	user.DELETE("/products/:id/subscriptions/:type", h.Unsubscribe)
}

// subject returns the authenticated id. Ids that are not UUIDs cannot name a
// stored crawler or user.
func subject(c *gin.Context, entity string) (string, error) {
	claims, ok := infrajwt.GetClaims(c)
	if !ok {
		return "", domain.NewNotFound(entity, "")
	}
	return parseID(entity, claims.Sub)
}

func parseID(entity, id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", domain.NewNotFound(entity, id)
	}
	return id, nil
}
