package bootstrap

import (
	"fmt"

	infralogger "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/config"
)

const serviceName = "price-tracker"

// LoadConfig loads the configuration at path. debug forces debug mode on.
func LoadConfig(path string, debug bool) (*config.Config, error) {
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}

// CreateLogger creates a logger instance from configuration.
func CreateLogger(cfg *config.Config, version string) (infralogger.Logger, error) {
	logCfg := cfg.Logging
	if cfg.Debug {
		logCfg.Level = "debug"
		logCfg.Development = true
	}
	log, err := infralogger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(
		infralogger.String("service", serviceName),
		infralogger.String("version", version),
	), nil
}
