package notify

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultGracePeriod  = 2 * time.Minute
	defaultBatchSize    = 100
)

// OutboxWorkerConfig holds the sweep settings.
type OutboxWorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	// GracePeriod leaves fresh records to the in-process dispatcher.
	GracePeriod time.Duration `yaml:"grace_period"`
	BatchSize   int           `yaml:"batch_size"`
}

// DefaultOutboxWorkerConfig returns the default sweep settings.
func DefaultOutboxWorkerConfig() OutboxWorkerConfig {
	return OutboxWorkerConfig{
		PollInterval: defaultPollInterval,
		GracePeriod:  defaultGracePeriod,
		BatchSize:    defaultBatchSize,
	}
}

// OutboxWorker delivers pending notifications that were committed but never
// attempted, for example when the process stopped before dispatch. Records
// that were attempted and failed are left alone.
type OutboxWorker struct {
	dispatcher *Dispatcher
	log        logger.Logger
	cfg        OutboxWorkerConfig

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewOutboxWorker creates a worker that sweeps through dispatcher.
func NewOutboxWorker(dispatcher *Dispatcher, cfg OutboxWorkerConfig, log logger.Logger) *OutboxWorker {
	def := DefaultOutboxWorkerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}

	return &OutboxWorker{
		dispatcher: dispatcher,
		log:        log,
		cfg:        cfg,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the polling loop.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.log.Info("Notification outbox worker started",
		logger.Duration("poll_interval", w.cfg.PollInterval),
		logger.Duration("grace_period", w.cfg.GracePeriod),
		logger.Int("batch_size", w.cfg.BatchSize),
	)
}

// Stop ends the loop and waits for the current sweep.
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.log.Info("Notification outbox worker stopped")
}

func (w *OutboxWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.SweepOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.SweepOnce(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce claims one batch of unattempted records and delivers them.
// It returns the number of records claimed.
func (w *OutboxWorker) SweepOnce(ctx context.Context) int {
	claimed, err := w.dispatcher.store.ClaimUnattemptedNotifications(ctx, w.cfg.GracePeriod, w.cfg.BatchSize)
	if err != nil {
		w.log.Error("Failed to claim unattempted notifications", logger.Error(err))
		return 0
	}
	if len(claimed) == 0 {
		return 0
	}

	w.log.Info("Delivering unattempted notifications", logger.Int("count", len(claimed)))
	for i := range claimed {
		w.dispatcher.deliver(ctx, claimed[i])
	}
	return len(claimed)
}
