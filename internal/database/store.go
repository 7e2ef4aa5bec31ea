package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

var errPingInTx = errors.New("ping inside transaction")

// PostgresStore bundles the table repositories over one connection or transaction.
type PostgresStore struct {
	*ProductRepository
	*HistoryRepository
	*QueueRepository
	*OwnershipRepository
	*AccountRepository
	*NotificationRepository

	// db is nil for transaction-bound stores.
	db *sqlx.DB
}

// NewPostgresStore returns a Store backed by db.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return newStore(db, db)
}

func newStore(db *sqlx.DB, q sqlx.ExtContext) *PostgresStore {
	return &PostgresStore{
		ProductRepository:      NewProductRepository(q),
		HistoryRepository:      NewHistoryRepository(q),
		QueueRepository:        NewQueueRepository(q),
		OwnershipRepository:    NewOwnershipRepository(q),
		AccountRepository:      NewAccountRepository(q),
		NotificationRepository: NewNotificationRepository(q),
		db:                     db,
	}
}

// InTx implements Store.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.StoreUnavailable("begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if fnErr := fn(newStore(nil, tx)); fnErr != nil {
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return domain.StoreUnavailable("commit transaction", commitErr)
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return errPingInTx
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
