package bootstrap

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	infragin "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	inframetrics "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/metrics"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/api"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/config"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/database"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/metrics"
)

const healthCheckTimeout = 2 * time.Second

// SetupHTTPServer creates and configures the HTTP server.
func SetupHTTPServer(
	cfg *config.Config,
	svc *Services,
	store database.Store,
	redisClient *redis.Client,
	reg *prometheus.Registry,
	version string,
	log infralogger.Logger,
) *infragin.Server {
	handler := api.NewHandler(svc.Coordinator, svc.Ingestor, svc.Lifecycle, api.Config{
		JWTSecret:    cfg.Auth.JWTSecret,
		RateLimit:    cfg.RateLimit,
		HistoryLimit: cfg.App.HistoryLimit,
	}, log)

	builder := infragin.NewServerBuilder(serviceName, cfg.Server.Host, cfg.Server.Port).
		WithLogger(log).
		WithDebug(cfg.Debug).
		WithVersion(version).
		WithCORSOrigins(cfg.Server.CORSOrigins).
		WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout).
		WithHealthCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
			defer cancel()
			return store.Ping(ctx)
		}).
		WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).
		WithMiddleware(inframetrics.NewHTTPMetrics(reg, metrics.Namespace).Middleware()).
		WithRoutes(func(router *gin.Engine) {
			handler.Register(router)
		})

	if redisClient != nil {
		builder = builder.WithHealthCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
			defer cancel()
			return redisClient.Ping(ctx).Err()
		})
	}

	return builder.Build()
}
