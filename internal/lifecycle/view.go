package lifecycle

import (
	"context"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/pricing"
)

// ProductView is an owner's overview of a tracked product.
type ProductView struct {
	Product      domain.Product      `json:"product"`
	Ownership    domain.Ownership    `json:"ownership"`
	CurrentPrice float64             `json:"current_price"`
	LowestPrice  float64             `json:"lowest_price"`
	HighestPrice float64             `json:"highest_price"`
	Summary      domain.StockSummary `json:"summary"`
	History      []domain.PricePoint `json:"history"`
}

// View builds the overview of a product userID owns. Lowest and highest
// prices are taken over the returned history window.
func (m *Manager) View(ctx context.Context, userID, productID string, historyLimit int) (*ProductView, error) {
	product, err := m.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	ownership, err := m.store.GetOwnership(ctx, userID, productID)
	if err != nil {
		return nil, err
	}

	resolver := pricing.NewResolver(m.store)
	current, err := resolver.CurrentPrice(ctx, productID)
	if err != nil {
		return nil, err
	}
	summary, err := resolver.Summary(ctx, productID)
	if err != nil {
		return nil, err
	}
	history, err := resolver.RecentHistory(ctx, productID, historyLimit)
	if err != nil {
		return nil, err
	}

	low, high := pricing.Range(history)
	return &ProductView{
		Product:      *product,
		Ownership:    *ownership,
		CurrentPrice: current,
		LowestPrice:  low,
		HighestPrice: high,
		Summary:      summary,
		History:      history,
	}, nil
}
