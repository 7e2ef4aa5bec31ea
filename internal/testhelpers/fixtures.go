package testhelpers

import (
	"github.com/jonesrussell/north-cloud/price-tracker/internal/canonical"
)

// Fixed ids used across package tests.
const (
	CrawlerID      = "7a0c3b52-1f7e-4c55-9d0a-2f1e7b6c9a01"
	OtherCrawlerID = "7a0c3b52-1f7e-4c55-9d0a-2f1e7b6c9a02"
	UserID         = "0b9d7e1c-5a3f-4e2b-8c6d-1a2b3c4d5e01"
	OtherUserID    = "0b9d7e1c-5a3f-4e2b-8c6d-1a2b3c4d5e02"
	QuietUserID    = "0b9d7e1c-5a3f-4e2b-8c6d-1a2b3c4d5e03"
)

// ProductURL is a canonical amazon product URL.
const ProductURL = "https://www.amazon.com/dp/B08N5WRWNW"

// Registry returns a registry over the built-in shops.
func Registry() *canonical.Registry {
	r, err := canonical.NewRegistry(canonical.DefaultShops())
	if err != nil {
		panic(err)
	}
	return r
}

// SeedAccounts adds two crawlers, two telegram-linked users and one user
// without telegram.
func SeedAccounts(m *MemStore) {
	m.AddCrawler(CrawlerID, "primary")
	m.AddCrawler(OtherCrawlerID, "secondary")
	m.AddUser(UserID, "1001")
	m.AddUser(OtherUserID, "1002")
	m.AddUser(QuietUserID, "")
}
