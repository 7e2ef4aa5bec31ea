// Package pricing derives prices and stock summaries from product history.
package pricing

import (
	"context"
	"errors"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

const (
	// DefaultHistoryLimit is used when RecentHistory gets a non-positive limit.
	DefaultHistoryLimit = 10
	// MaxHistoryLimit caps RecentHistory.
	MaxHistoryLimit = 100
)

// Reader is the store surface pricing needs. Both the pooled store and a
// transaction-bound store satisfy it.
type Reader interface {
	LatestOKHistory(ctx context.Context, productID string) (*domain.HistoryRecord, error)
	RecentHistory(ctx context.Context, productID string, limit int) ([]domain.PricePoint, error)
	HistoryStats(ctx context.Context, productID string) (domain.HistoryStats, error)
	CountOwnerships(ctx context.Context, productID string) (int, error)
}

// ResolvePrice returns the lower of the two prices when both are set, the
// one that is set otherwise, and 0 when neither is.
func ResolvePrice(original, discount *float64) float64 {
	switch {
	case original != nil && discount != nil:
		return min(*original, *discount)
	case discount != nil:
		return *discount
	case original != nil:
		return *original
	default:
		return 0
	}
}

// AttachPrice is the price seeded for a new owner of an existing product.
// Without price history, or while the latest ok record is out of stock, the
// price stays unknown.
func AttachPrice(summary domain.StockSummary, current float64) float64 {
	if summary.HasHistory && summary.RecentInStock {
		return current
	}
	return 0
}

// Range returns the lowest and highest resolved prices among ok points.
// Both are 0 when no ok point carries a price.
func Range(points []domain.PricePoint) (low, high float64) {
	for _, p := range points {
		if p.Status != domain.StatusOK {
			continue
		}
		price := ResolvePrice(p.OriginalPrice, p.DiscountPrice)
		if price <= 0 {
			continue
		}
		if low == 0 || price < low {
			low = price
		}
		if price > high {
			high = price
		}
	}
	return low, high
}

// Resolver answers price questions for one store handle.
type Resolver struct {
	reader Reader
}

// NewResolver creates a resolver over r.
func NewResolver(r Reader) *Resolver {
	return &Resolver{reader: r}
}

// CurrentPrice is the resolved price of the latest ok record, or 0 when
// the product has none.
func (r *Resolver) CurrentPrice(ctx context.Context, productID string) (float64, error) {
	rec, err := r.latestOK(ctx, productID)
	if err != nil || rec == nil {
		return 0, err
	}
	return ResolvePrice(rec.OriginalPrice, rec.DiscountPrice), nil
}

// RecentHistory returns up to limit non-skip records, newest first.
func (r *Resolver) RecentHistory(ctx context.Context, productID string, limit int) ([]domain.PricePoint, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return r.reader.RecentHistory(ctx, productID, limit)
}

// Summary computes the stock summary as of the last committed history.
func (r *Resolver) Summary(ctx context.Context, productID string) (domain.StockSummary, error) {
	stats, err := r.reader.HistoryStats(ctx, productID)
	if err != nil {
		return domain.StockSummary{}, err
	}

	owners, err := r.reader.CountOwnerships(ctx, productID)
	if err != nil {
		return domain.StockSummary{}, err
	}

	rec, err := r.latestOK(ctx, productID)
	if err != nil {
		return domain.StockSummary{}, err
	}

	return domain.StockSummary{
		HasHistory:    stats.HasHistory,
		HasUsers:      owners > 0,
		WasInStock:    stats.WasInStock,
		RecentInStock: rec != nil && rec.InStock,
	}, nil
}

func (r *Resolver) latestOK(ctx context.Context, productID string) (*domain.HistoryRecord, error) {
	rec, err := r.reader.LatestOKHistory(ctx, productID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}
