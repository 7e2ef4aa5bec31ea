// Package events defines the messages price-tracker writes to Redis for
// external consumers: crawl requests on a stream and notifications on a
// Pub/Sub channel.
package events

import "time"

// CrawlRequestStream is the Redis stream outdated products are published to.
const CrawlRequestStream = "price-tracker:crawl-requests"

// NotificationChannel is the Redis Pub/Sub channel notification messages are published to.
const NotificationChannel = "price-tracker:notifications"

// EventType names a message kind.
type EventType string

const (
	// CrawlRequested asks a crawler to refresh a product page.
	CrawlRequested EventType = "CRAWL_REQUESTED"
	// NotificationReady carries a rendered owner notification.
	NotificationReady EventType = "NOTIFICATION_READY"
)

// CrawlRequest is one stream entry.
type CrawlRequest struct {
	ProductID     string
	URL           string
	Shop          string
	LastCrawledAt time.Time
}

// Values returns the flat field map stored on the stream entry.
func (r CrawlRequest) Values() map[string]any {
	return map[string]any{
		"event_type":      string(CrawlRequested),
		"product_id":      r.ProductID,
		"url":             r.URL,
		"shop":            r.Shop,
		"last_crawled_at": r.LastCrawledAt.UTC().Format(time.RFC3339),
	}
}

// Notification is the JSON body published for an external bot.
type Notification struct {
	EventType      EventType `json:"event_type"`
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	ProductID      string    `json:"product_id"`
	Kind           string    `json:"kind"`
	ChatID         string    `json:"chat_id"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}
