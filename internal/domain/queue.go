package domain

import "time"

// QueueEntry is a pending crawl request for a URL with no known product.
type QueueEntry struct {
	ID             string    `db:"id"               json:"id"`
	URL            string    `db:"url"              json:"url"`
	IdentityHash   string    `db:"identity_hash"    json:"hash"`
	Shop           string    `db:"shop"             json:"shop"`
	RequestedBy    string    `db:"requested_by"     json:"requested_by"`
	SkipForCrawler *string   `db:"skip_for_crawler" json:"skip_for_crawler,omitempty"`
	CreatedAt      time.Time `db:"created_at"       json:"created_at"`
}
