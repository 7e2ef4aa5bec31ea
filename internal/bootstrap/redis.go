package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/config"
)

const redisPingTimeout = 5 * time.Second

// SetupRedis connects to Redis when a configured component needs it.
// It returns nil, nil otherwise.
func SetupRedis(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*redis.Client, error) {
	if !cfg.UsesRedis() {
		return nil, nil
	}

	var client *redis.Client
	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		c, connErr := connectRedis(ctx, cfg.Redis)
		if connErr != nil {
			return connErr
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis connection: %w", err)
	}

	log.Info("Connected to Redis",
		infralogger.String("redis_address", cfg.Redis.Address),
		infralogger.Int("redis_db", cfg.Redis.DB),
	)
	return client, nil
}

// connectRedis opens a client and pings it, closing it again on failure.
func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Address, err)
	}
	return client, nil
}
