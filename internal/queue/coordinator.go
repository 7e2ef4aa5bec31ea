// Package queue coordinates the shared crawl queue for URLs with no product yet.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/canonical"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/metrics"
)

// Store is the persistence the coordinator needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetCrawler(ctx context.Context, id string) (*domain.Crawler, error)
	GetProductByHash(ctx context.Context, hash string) (*domain.Product, error)
	InsertQueueEntry(ctx context.Context, e *domain.QueueEntry) (bool, error)
	QueueEntriesByHash(ctx context.Context, hash string) ([]domain.QueueEntry, error)
	ListQueueForCrawler(ctx context.Context, crawlerID string) ([]domain.QueueEntry, error)
	SkipQueueForCrawler(ctx context.Context, hash, crawlerID string) (int64, error)
	DeleteQueueByHash(ctx context.Context, hash string) (int64, error)
	CountQueue(ctx context.Context) (int, error)
}

// Canonicalizer turns a raw URL into a product identity.
type Canonicalizer interface {
	Canonicalize(raw string) (canonical.Identity, error)
}

// EnqueueResult is either an existing Product or a queue Entry.
type EnqueueResult struct {
	Product *domain.Product
	Entry   *domain.QueueEntry
	// Created is true when Entry was inserted by this call.
	Created bool
}

// Coordinator implements enqueue, pull, skip and resolve on the queue.
type Coordinator struct {
	store   Store
	canon   Canonicalizer
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(store Store, canon Canonicalizer, m *metrics.Metrics, log logger.Logger) *Coordinator {
	return &Coordinator{store: store, canon: canon, metrics: m, log: log}
}

// Bind returns a coordinator sharing everything but the store, typically a
// transaction-bound one.
func (c *Coordinator) Bind(store Store) *Coordinator {
	bound := *c
	bound.store = store
	return &bound
}

// Enqueue requests a crawl of rawURL for requester. When the URL already
// belongs to a product, the product is returned and no entry is created.
// Repeating a call never creates a second entry.
func (c *Coordinator) Enqueue(ctx context.Context, rawURL, requester string) (*EnqueueResult, error) {
	id, err := c.canon.Canonicalize(rawURL)
	if err != nil {
		return nil, canonical.AsValidationError("url", err)
	}

	if _, userErr := c.store.GetUser(ctx, requester); userErr != nil {
		return nil, userErr
	}

	product, err := c.store.GetProductByHash(ctx, id.Hash)
	switch {
	case err == nil:
		return &EnqueueResult{Product: product}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	entry := &domain.QueueEntry{
		URL:          id.URL,
		IdentityHash: id.Hash,
		Shop:         id.Shop,
		RequestedBy:  requester,
	}
	created, err := c.store.InsertQueueEntry(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", id.URL, err)
	}

	if created {
		c.metrics.QueueEnqueued.Inc()
		c.log.Info("Queued product URL",
			logger.String("url", entry.URL),
			logger.String("shop", entry.Shop),
			logger.String("requested_by", requester),
		)
	}

	return &EnqueueResult{Entry: entry, Created: created}, nil
}

// Pull returns every entry not excluded for crawlerID, ordered by URL.
// Entries are not leased; concurrent crawlers may receive the same ones.
func (c *Coordinator) Pull(ctx context.Context, crawlerID string) ([]domain.QueueEntry, error) {
	if _, err := c.store.GetCrawler(ctx, crawlerID); err != nil {
		return nil, err
	}

	entries, err := c.store.ListQueueForCrawler(ctx, crawlerID)
	if err != nil {
		return nil, err
	}

	if depth, countErr := c.store.CountQueue(ctx); countErr == nil {
		c.metrics.QueueDepth.Set(float64(depth))
	}

	return entries, nil
}

// Entries returns the pending entries sharing hash.
func (c *Coordinator) Entries(ctx context.Context, hash string) ([]domain.QueueEntry, error) {
	return c.store.QueueEntriesByHash(ctx, hash)
}

// SkipForCrawler excludes every entry sharing hash from crawlerID's pulls.
func (c *Coordinator) SkipForCrawler(ctx context.Context, hash, crawlerID string) error {
	n, err := c.store.SkipQueueForCrawler(ctx, hash, crawlerID)
	if err != nil {
		return err
	}
	c.metrics.QueueSkipped.Add(float64(n))
	return nil
}

// Resolve deletes every entry sharing hash and returns how many were removed.
func (c *Coordinator) Resolve(ctx context.Context, hash string) (int64, error) {
	n, err := c.store.DeleteQueueByHash(ctx, hash)
	if err != nil {
		return 0, err
	}
	c.metrics.QueueResolved.Add(float64(n))
	return n, nil
}
