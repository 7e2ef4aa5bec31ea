// Package domain contains the price-tracker entities and error taxonomy.
package domain

import "time"

// ProductStatus is the lifecycle state of a product.
type ProductStatus string

const (
	ProductStatusActive ProductStatus = "active"
	ProductStatusHold   ProductStatus = "hold"
)

// Product is one shop page, keyed by the identity hash of its canonical URL.
type Product struct {
	ID           string        `db:"id"            json:"id"`
	IdentityHash string        `db:"identity_hash" json:"identity_hash"`
	Shop         string        `db:"shop"          json:"shop"`
	URL          string        `db:"url"           json:"url"`
	Title        string        `db:"title"         json:"title"`
	Image        *string       `db:"image"         json:"image,omitempty"`
	Status       ProductStatus `db:"status"        json:"status"`
	CreatedAt    time.Time     `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"    json:"updated_at"`
}

// OutdatedProduct is an active product due for a re-crawl.
type OutdatedProduct struct {
	ID            string    `db:"id"              json:"id"`
	Shop          string    `db:"shop"            json:"shop"`
	URL           string    `db:"url"             json:"url"`
	LastCrawledAt time.Time `db:"last_crawled_at" json:"last_crawled_at"`
}

// Crawler is an authenticated crawl agent.
type Crawler struct {
	ID        string    `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User is a product owner. Only users with a TelegramChatID receive notifications.
type User struct {
	ID             string    `db:"id"               json:"id"`
	TelegramChatID *string   `db:"telegram_chat_id" json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `db:"created_at"       json:"created_at"`
}
