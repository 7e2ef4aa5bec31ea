package database

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" //nolint:blankimports // postgres driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       //nolint:blankimports // file source driver

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
)

// DefaultMigrationsDir is resolved relative to the working directory.
const DefaultMigrationsDir = "migrations"

// Migrator runs schema migrations from a directory against a database URL.
type Migrator struct {
	dir string
	url string
	log logger.Logger
}

// NewMigrator creates a migrator. dir defaults to DefaultMigrationsDir.
func NewMigrator(dir, databaseURL string, log logger.Logger) *Migrator {
	if dir == "" {
		dir = DefaultMigrationsDir
	}
	if absPath, err := filepath.Abs(dir); err == nil {
		dir = absPath
	}
	return &Migrator{dir: dir, url: databaseURL, log: log}
}

func (m *Migrator) open() (*migrate.Migrate, error) {
	mg, err := migrate.New("file://"+m.dir, m.url)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return mg, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer func() { _, _ = mg.Close() }()

	if upErr := mg.Up(); upErr != nil {
		if errors.Is(upErr, migrate.ErrNoChange) {
			m.log.Info("No pending migrations", logger.String("migrations_path", m.dir))
			return nil
		}
		return fmt.Errorf("run migrations: %w", upErr)
	}

	m.log.Info("Migrations applied successfully", logger.String("migrations_path", m.dir))
	return nil
}

// Down rolls back steps migrations (default 1).
func (m *Migrator) Down(steps int) error {
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer func() { _, _ = mg.Close() }()

	if steps <= 0 {
		steps = 1
	}

	if downErr := mg.Steps(-steps); downErr != nil {
		if errors.Is(downErr, migrate.ErrNoChange) {
			m.log.Info("No migrations to rollback", logger.String("migrations_path", m.dir))
			return nil
		}
		return fmt.Errorf("rollback migrations: %w", downErr)
	}

	m.log.Info("Migrations rolled back successfully",
		logger.String("migrations_path", m.dir),
		logger.Int("steps", steps),
	)
	return nil
}

// Version returns the current schema version; 0 when no migration has run.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	mg, err := m.open()
	if err != nil {
		return 0, false, err
	}
	defer func() { _, _ = mg.Close() }()

	version, dirty, err = mg.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get migration version: %w", err)
	}
	return version, dirty, nil
}
