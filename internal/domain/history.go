package domain

import "time"

// HistoryStatus is the outcome a crawler reported for a page.
type HistoryStatus string

const (
	StatusOK                       HistoryStatus = "ok"
	StatusNotFound                 HistoryStatus = "not_found"
	StatusSkip                     HistoryStatus = "skip"
	StatusRequiredToChangeLocation HistoryStatus = "required_to_change_location"
	StatusAgeRestriction           HistoryStatus = "age_restriction"
)

// Valid reports whether s is one of the known statuses.
func (s HistoryStatus) Valid() bool {
	switch s {
	case StatusOK, StatusNotFound, StatusSkip, StatusRequiredToChangeLocation, StatusAgeRestriction:
		return true
	}
	return false
}

// HistoryRecord is one append-only crawl observation.
type HistoryRecord struct {
	ID            string        `db:"id"             json:"id"`
	ProductID     string        `db:"product_id"     json:"product_id"`
	CrawlerID     string        `db:"crawler_id"     json:"crawler_id"`
	Status        HistoryStatus `db:"status"         json:"status"`
	OriginalPrice *float64      `db:"original_price" json:"original_price"`
	DiscountPrice *float64      `db:"discount_price" json:"discount_price"`
	InStock       bool          `db:"in_stock"       json:"in_stock"`
	Title         *string       `db:"title"          json:"title,omitempty"`
	CreatedAt     time.Time     `db:"created_at"     json:"created_at"`
}

// PricePoint is the public projection of a history record.
type PricePoint struct {
	OriginalPrice *float64      `db:"original_price" json:"original_price"`
	DiscountPrice *float64      `db:"discount_price" json:"discount_price"`
	InStock       bool          `db:"in_stock"       json:"in_stock"`
	Status        HistoryStatus `db:"status"         json:"status"`
	CreatedAt     time.Time     `db:"created_at"     json:"created_at"`
}

// HistoryStats aggregates a product's history for stock-transition checks.
type HistoryStats struct {
	HasHistory bool `db:"has_history"`
	WasInStock bool `db:"was_in_stock"`
}

// StockSummary is the pre-update view used by notification and ownership flows.
type StockSummary struct {
	HasHistory    bool `json:"has_history"`
	HasUsers      bool `json:"has_users"`
	WasInStock    bool `json:"was_in_stock"`
	RecentInStock bool `json:"recent_in_stock"`
}
