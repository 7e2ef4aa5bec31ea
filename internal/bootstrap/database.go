package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	infralogger "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/config"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/database"
)

// SetupDatabase connects to PostgreSQL, retrying while the server starts up.
func SetupDatabase(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*sqlx.DB, error) {
	var db *sqlx.DB
	err := retry.Do(ctx, retry.DefaultConfig(), func(context.Context) error {
		conn, connErr := database.NewPostgresConnection(cfg.Database)
		if connErr != nil {
			log.Warn("Database not ready", infralogger.Error(connErr))
			return connErr
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}

	log.Info("Connected to database",
		infralogger.String("host", cfg.Database.Host),
		infralogger.String("database", cfg.Database.DBName),
	)
	return db, nil
}
