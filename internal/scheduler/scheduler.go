// Package scheduler periodically publishes outdated products to a Redis
// stream that crawlers consume.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/events"
	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/metrics"
)

const (
	defaultSpec      = "*/15 * * * *"
	defaultStreamLen = 10000
	runTimeout       = time.Minute
)

// Config holds the schedule and selection settings.
type Config struct {
	Enabled     bool   `env:"SCHEDULER_ENABLED" yaml:"enabled"`
	Spec        string `yaml:"cron"`
	MaxAgeHours int    `yaml:"max_age_hours"`
	Limit       int    `yaml:"limit"`
	Stream      string `yaml:"stream"`
	MaxLen      int64  `yaml:"max_len"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Spec == "" {
		c.Spec = defaultSpec
	}
	if c.Stream == "" {
		c.Stream = events.CrawlRequestStream
	}
	if c.MaxLen <= 0 {
		c.MaxLen = defaultStreamLen
	}
}

// OutdatedLister selects products due for a re-crawl.
type OutdatedLister interface {
	OutdatedProducts(ctx context.Context, maxAgeHours, limit int) ([]domain.OutdatedProduct, error)
}

// Scheduler runs the publish job on a cron schedule.
type Scheduler struct {
	cfg     Config
	lister  OutdatedLister
	client  *redis.Client
	metrics *metrics.Metrics
	log     logger.Logger
	cron    *cron.Cron
}

// New validates the schedule and registers the job. Call Start to run it.
func New(cfg Config, lister OutdatedLister, client *redis.Client, m *metrics.Metrics, log logger.Logger) (*Scheduler, error) {
	cfg.SetDefaults()

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	s := &Scheduler{cfg: cfg, lister: lister, client: client, metrics: m, log: log, cron: c}
	if _, err := c.AddFunc(cfg.Spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start begins the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Outdated product scheduler started",
		logger.String("cron", s.cfg.Spec),
		logger.String("stream", s.cfg.Stream),
	)
}

// Stop ends the schedule and waits for a running publish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Outdated product scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error("Failed to publish outdated products", logger.Error(err))
	}
}

// RunOnce publishes one crawl request per outdated product and returns how
// many were published.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	products, err := s.lister.OutdatedProducts(ctx, s.cfg.MaxAgeHours, s.cfg.Limit)
	if err != nil {
		return 0, fmt.Errorf("list outdated products: %w", err)
	}

	published := 0
	for _, p := range products {
		req := events.CrawlRequest{ProductID: p.ID, URL: p.URL, Shop: p.Shop, LastCrawledAt: p.LastCrawledAt}
		addErr := s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.cfg.Stream,
			MaxLen: s.cfg.MaxLen,
			Approx: true,
			Values: req.Values(),
		}).Err()
		if addErr != nil {
			return published, fmt.Errorf("publish crawl request for %s: %w", p.ID, addErr)
		}
		published++
	}

	s.metrics.CrawlRequestsPublished.Add(float64(published))
	s.log.Info("Published outdated products",
		logger.Int("count", published),
		logger.String("stream", s.cfg.Stream),
	)
	return published, nil
}
