package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

const queueSelectColumns = `id, url, identity_hash, shop, requested_by, skip_for_crawler, created_at`

// QueueRepository handles the product_queue table.
type QueueRepository struct {
	q sqlx.ExtContext
}

// NewQueueRepository creates a queue repository.
func NewQueueRepository(q sqlx.ExtContext) *QueueRepository {
	return &QueueRepository{q: q}
}

// InsertQueueEntry uses INSERT ... ON CONFLICT DO NOTHING then SELECT.
func (r *QueueRepository) InsertQueueEntry(ctx context.Context, e *domain.QueueEntry) (bool, error) {
	insertQuery := `
		INSERT INTO product_queue (id, url, identity_hash, shop, requested_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url, identity_hash, requested_by) DO NOTHING
	`

	n, err := rowsAffected(r.q.ExecContext(ctx, insertQuery,
		uuid.NewString(), e.URL, e.IdentityHash, e.Shop, e.RequestedBy,
	))
	if err != nil {
		return false, domain.StoreUnavailable("insert queue entry", err)
	}

	selectQuery := `SELECT ` + queueSelectColumns + ` FROM product_queue
		WHERE url = $1 AND identity_hash = $2 AND requested_by = $3`

	if selectErr := sqlx.GetContext(ctx, r.q, e, selectQuery, e.URL, e.IdentityHash, e.RequestedBy); selectErr != nil {
		return false, domain.StoreUnavailable("select queue entry", selectErr)
	}
	return n > 0, nil
}

// QueueEntriesByHash returns every entry sharing hash.
func (r *QueueRepository) QueueEntriesByHash(ctx context.Context, hash string) ([]domain.QueueEntry, error) {
	query := `SELECT ` + queueSelectColumns + ` FROM product_queue
		WHERE identity_hash = $1
		ORDER BY url ASC, requested_by ASC`

	entries := []domain.QueueEntry{}
	if err := sqlx.SelectContext(ctx, r.q, &entries, query, hash); err != nil {
		return nil, domain.StoreUnavailable("queue entries by hash", err)
	}
	return entries, nil
}

// ListQueueForCrawler returns all entries not excluded for crawlerID,
// ordered by URL. Entries are not leased.
func (r *QueueRepository) ListQueueForCrawler(ctx context.Context, crawlerID string) ([]domain.QueueEntry, error) {
	query := `SELECT ` + queueSelectColumns + ` FROM product_queue
		WHERE skip_for_crawler IS DISTINCT FROM $1
		ORDER BY url ASC, requested_by ASC`

	entries := []domain.QueueEntry{}
	if err := sqlx.SelectContext(ctx, r.q, &entries, query, crawlerID); err != nil {
		return nil, domain.StoreUnavailable("list queue", err)
	}
	return entries, nil
}

// SkipQueueForCrawler marks every entry sharing hash as excluded for crawlerID.
func (r *QueueRepository) SkipQueueForCrawler(ctx context.Context, hash, crawlerID string) (int64, error) {
	query := `UPDATE product_queue SET skip_for_crawler = $2 WHERE identity_hash = $1`

	n, err := rowsAffected(r.q.ExecContext(ctx, query, hash, crawlerID))
	if err != nil {
		return 0, domain.StoreUnavailable("skip queue for crawler", err)
	}
	return n, nil
}

// DeleteQueueByHash removes every entry sharing hash.
func (r *QueueRepository) DeleteQueueByHash(ctx context.Context, hash string) (int64, error) {
	query := `DELETE FROM product_queue WHERE identity_hash = $1`

	n, err := rowsAffected(r.q.ExecContext(ctx, query, hash))
	if err != nil {
		return 0, domain.StoreUnavailable("delete queue entries", err)
	}
	return n, nil
}

// CountQueue returns the number of pending entries.
func (r *QueueRepository) CountQueue(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.q, &n, `SELECT COUNT(*) FROM product_queue`); err != nil {
		return 0, domain.StoreUnavailable("count queue", err)
	}
	return n, nil
}
