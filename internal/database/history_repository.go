package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

const historySelectColumns = `id, product_id, crawler_id, status, original_price,
	discount_price, in_stock, title, created_at`

// HistoryRepository handles the append-only product_history table.
type HistoryRepository struct {
	q sqlx.ExtContext
}

// NewHistoryRepository creates a history repository.
func NewHistoryRepository(q sqlx.ExtContext) *HistoryRepository {
	return &HistoryRepository{q: q}
}

// InsertHistory appends rec. created_at comes from clock_timestamp() so
// records written in sequence order correctly.
func (r *HistoryRepository) InsertHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	query := `
		INSERT INTO product_history
			(id, product_id, crawler_id, status, original_price, discount_price, in_stock, title)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	row := r.q.QueryRowxContext(ctx, query,
		rec.ID, rec.ProductID, rec.CrawlerID, rec.Status,
		rec.OriginalPrice, rec.DiscountPrice, rec.InStock, rec.Title,
	)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return domain.StoreUnavailable("insert history", err)
	}
	return nil
}

// LatestOKHistory returns the most recent ok record for a product.
func (r *HistoryRepository) LatestOKHistory(ctx context.Context, productID string) (*domain.HistoryRecord, error) {
	query := `SELECT ` + historySelectColumns + `
		FROM product_history
		WHERE product_id = $1 AND status = 'ok'
		ORDER BY created_at DESC
		LIMIT 1`

	var rec domain.HistoryRecord
	if err := sqlx.GetContext(ctx, r.q, &rec, query, productID); err != nil {
		return nil, notFoundOr("latest ok history", "history", productID, err)
	}
	return &rec, nil
}

// RecentHistory returns up to limit non-skip records, newest first.
func (r *HistoryRepository) RecentHistory(ctx context.Context, productID string, limit int) ([]domain.PricePoint, error) {
	query := `
		SELECT original_price, discount_price, in_stock, status, created_at
		FROM product_history
		WHERE product_id = $1 AND status <> 'skip'
		ORDER BY created_at DESC
		LIMIT $2
	`

	points := []domain.PricePoint{}
	if err := sqlx.SelectContext(ctx, r.q, &points, query, productID, limit); err != nil {
		return nil, domain.StoreUnavailable("recent history", err)
	}
	return points, nil
}

// HistoryStats reports whether any price-signal record exists and whether
// any ok record was in stock.
func (r *HistoryRepository) HistoryStats(ctx context.Context, productID string) (domain.HistoryStats, error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM product_history
			        WHERE product_id = $1 AND status <> 'skip') AS has_history,
			EXISTS (SELECT 1 FROM product_history
			        WHERE product_id = $1 AND status = 'ok' AND in_stock) AS was_in_stock
	`

	var stats domain.HistoryStats
	if err := sqlx.GetContext(ctx, r.q, &stats, query, productID); err != nil {
		return domain.HistoryStats{}, domain.StoreUnavailable("history stats", err)
	}
	return stats, nil
}
