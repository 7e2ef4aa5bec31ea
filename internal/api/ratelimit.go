package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	infrajwt "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/jwt"
)

const (
	defaultCrawlerRPS   = 20
	defaultCrawlerBurst = 40
)

// RateLimitConfig bounds each crawler's request rate.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// perCallerLimiter keeps one token bucket per authenticated subject.
type perCallerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newPerCallerLimiter(cfg RateLimitConfig) *perCallerLimiter {
	if cfg.RPS <= 0 {
		cfg.RPS = defaultCrawlerRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultCrawlerBurst
	}
	return &perCallerLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(cfg.RPS),
		burst:    cfg.Burst,
	}
}

func (l *perCallerLimiter) get(subject string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[subject]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[subject] = limiter
	}
	return limiter
}

// middleware must run after the JWT middleware.
func (l *perCallerLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := infrajwt.GetClaims(c)
		if !ok {
			c.Next()
			return
		}
		if !l.get(claims.Sub).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
