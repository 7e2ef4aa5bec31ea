package gin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
)

// ServerBuilder assembles a Server fluently.
type ServerBuilder struct {
	config         *Config
	logger         logger.Logger
	setupRoutes    func(*gin.Engine)
	healthChecks   map[string]HealthChecker
	metricsHandler http.Handler
	middleware     []gin.HandlerFunc
}

// NewServerBuilder starts a builder for service listening on host:port.
func NewServerBuilder(service, host string, port int) *ServerBuilder {
	return &ServerBuilder{
		config: &Config{
			Host:        host,
			Port:        port,
			ServiceName: service,
		},
		healthChecks: make(map[string]HealthChecker),
	}
}

func (b *ServerBuilder) WithLogger(log logger.Logger) *ServerBuilder {
	b.logger = log
	return b
}

func (b *ServerBuilder) WithDebug(debug bool) *ServerBuilder {
	b.config.Debug = debug
	return b
}

func (b *ServerBuilder) WithVersion(version string) *ServerBuilder {
	b.config.ServiceVersion = version
	return b
}

func (b *ServerBuilder) WithCORSOrigins(origins []string) *ServerBuilder {
	b.config.CORS.AllowedOrigins = origins
	return b
}

func (b *ServerBuilder) WithTimeouts(read, write time.Duration) *ServerBuilder {
	b.config.ReadTimeout = read
	b.config.WriteTimeout = write
	return b
}

// WithHealthCheck registers a named dependency check on /health.
func (b *ServerBuilder) WithHealthCheck(name string, ping func() error) *ServerBuilder {
	b.healthChecks[name] = PingChecker(ping)
	return b
}

// WithMetrics mounts h on GET /metrics.
func (b *ServerBuilder) WithMetrics(h http.Handler) *ServerBuilder {
	b.metricsHandler = h
	return b
}

// WithMiddleware appends handlers that run after the standard stack.
func (b *ServerBuilder) WithMiddleware(handlers ...gin.HandlerFunc) *ServerBuilder {
	b.middleware = append(b.middleware, handlers...)
	return b
}

func (b *ServerBuilder) WithRoutes(setup func(*gin.Engine)) *ServerBuilder {
	b.setupRoutes = setup
	return b
}

// Build creates the Server.
func (b *ServerBuilder) Build() *Server {
	if b.logger == nil {
		b.logger = logger.NewNop()
	}

	b.config.SetDefaults()
	setup := func(router *gin.Engine) {
		if len(b.middleware) > 0 {
			router.Use(b.middleware...)
		}
		RegisterHealthRoutes(router, b.config.ServiceName, b.config.ServiceVersion, b.healthChecks)
		if b.metricsHandler != nil {
			router.GET("/metrics", gin.WrapH(b.metricsHandler))
		}
		if b.setupRoutes != nil {
			b.setupRoutes(router)
		}
	}

	return NewServer(b.config, b.logger, setup)
}
