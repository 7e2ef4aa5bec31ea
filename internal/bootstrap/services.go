package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/canonical"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/config"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/database"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/ingest"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/metrics"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/notify"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/queue"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/scheduler"
)

// Services holds the wired domain components.
type Services struct {
	Registry    *canonical.Registry
	Coordinator *queue.Coordinator
	Notifier    *notify.Notifier
	Dispatcher  *notify.Dispatcher
	Outbox      *notify.OutboxWorker
	Ingestor    *ingest.Ingestor
	Lifecycle   *lifecycle.Manager
	// Scheduler is nil unless enabled.
	Scheduler *scheduler.Scheduler
}

// NewServices wires the domain components on top of store.
func NewServices(
	cfg *config.Config,
	store database.Store,
	redisClient *redis.Client,
	m *metrics.Metrics,
	log infralogger.Logger,
) (*Services, error) {
	registry, err := SetupRegistry(cfg, log)
	if err != nil {
		return nil, err
	}

	sender, err := NewSender(cfg, redisClient, log)
	if err != nil {
		return nil, err
	}

	coordinator := queue.NewCoordinator(store, registry, m, log)
	notifier := notify.NewNotifier(cfg.App.BaseURL, m, log)
	dispatcher := notify.NewDispatcher(store, sender, cfg.Notifications.DispatchTimeout, m, log)
	manager := lifecycle.NewManager(store, log)

	svc := &Services{
		Registry:    registry,
		Coordinator: coordinator,
		Notifier:    notifier,
		Dispatcher:  dispatcher,
		Outbox:      notify.NewOutboxWorker(dispatcher, cfg.Notifications.Outbox, log),
		Ingestor:    ingest.NewIngestor(store, registry, coordinator, notifier, dispatcher, m, log),
		Lifecycle:   manager,
	}

	if cfg.Scheduler.Enabled {
		sched, schedErr := scheduler.New(cfg.Scheduler, manager, redisClient, m, log)
		if schedErr != nil {
			return nil, fmt.Errorf("create scheduler: %w", schedErr)
		}
		svc.Scheduler = sched
	}

	return svc, nil
}

// SetupRegistry loads the shop rules file, falling back to the built-in
// rules when the file does not exist.
func SetupRegistry(cfg *config.Config, log infralogger.Logger) (*canonical.Registry, error) {
	shops := canonical.DefaultShops()
	if _, statErr := os.Stat(cfg.Shops.File); statErr == nil {
		loaded, err := canonical.LoadShopsFile(cfg.Shops.File)
		if err != nil {
			return nil, err
		}
		shops = loaded
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat shops file: %w", statErr)
	} else {
		log.Info("Shops file not found, using built-in rules", infralogger.String("path", cfg.Shops.File))
	}

	registry, err := canonical.NewRegistry(shops)
	if err != nil {
		return nil, fmt.Errorf("build shop registry: %w", err)
	}
	log.Info("Shop registry loaded", infralogger.Strings("shops", registry.Shops()))
	return registry, nil
}

// NewSender returns the configured messaging channel.
func NewSender(cfg *config.Config, redisClient *redis.Client, log infralogger.Logger) (notify.Sender, error) {
	switch cfg.Notifications.Channel {
	case config.ChannelTelegram:
		sender, err := notify.NewTelegramSender(cfg.Notifications.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("create telegram sender: %w", err)
		}
		return sender, nil
	case config.ChannelRedis:
		if redisClient == nil {
			return nil, errors.New("redis channel selected without a redis client")
		}
		return notify.NewRedisSender(redisClient, cfg.Notifications.RedisChannel), nil
	default:
		return notify.NewLogSender(log), nil
	}
}
