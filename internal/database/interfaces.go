package database

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

// ProductRepositoryInterface covers the products table.
type ProductRepositoryInterface interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByHash(ctx context.Context, hash string) (*domain.Product, error)
	// LockProduct loads a product and holds its row lock until the
	// transaction ends. Outside a transaction it behaves like GetProduct.
	LockProduct(ctx context.Context, id string) (*domain.Product, error)
	// CreateProduct returns domain.ErrIdentityConflict when the identity hash
	// is already taken.
	CreateProduct(ctx context.Context, p *domain.Product) error
	SetProductStatus(ctx context.Context, id string, status domain.ProductStatus) error
	SetProductTitle(ctx context.Context, id, title string) error
	ListOutdatedProducts(ctx context.Context, cutoff time.Time, limit int) ([]domain.OutdatedProduct, error)
}

// HistoryRepositoryInterface covers the append-only product_history table.
type HistoryRepositoryInterface interface {
	InsertHistory(ctx context.Context, rec *domain.HistoryRecord) error
	LatestOKHistory(ctx context.Context, productID string) (*domain.HistoryRecord, error)
	RecentHistory(ctx context.Context, productID string, limit int) ([]domain.PricePoint, error)
	HistoryStats(ctx context.Context, productID string) (domain.HistoryStats, error)
}

// QueueRepositoryInterface covers the product_queue table.
type QueueRepositoryInterface interface {
	// InsertQueueEntry is idempotent on (url, hash, requester); created is
	// false when the entry already existed. e is filled from the stored row.
	InsertQueueEntry(ctx context.Context, e *domain.QueueEntry) (created bool, err error)
	QueueEntriesByHash(ctx context.Context, hash string) ([]domain.QueueEntry, error)
	ListQueueForCrawler(ctx context.Context, crawlerID string) ([]domain.QueueEntry, error)
	SkipQueueForCrawler(ctx context.Context, hash, crawlerID string) (int64, error)
	DeleteQueueByHash(ctx context.Context, hash string) (int64, error)
	CountQueue(ctx context.Context) (int, error)
}

// OwnershipRepositoryInterface covers user_products and their subscriptions.
type OwnershipRepositoryInterface interface {
	GetOwnership(ctx context.Context, userID, productID string) (*domain.Ownership, error)
	// CreateOwnership is idempotent on (user, product); o is filled from the stored row.
	CreateOwnership(ctx context.Context, o *domain.Ownership) (created bool, err error)
	DeleteOwnership(ctx context.Context, userID, productID string) error
	CountOwnerships(ctx context.Context, productID string) (int, error)
	BackfillOwnershipPrices(ctx context.Context, productID string, price float64) (int64, error)
	ListRecipients(ctx context.Context, productID string, restockOnly bool) ([]domain.Recipient, error)
	UpsertSubscription(ctx context.Context, s *domain.Subscription) error
	DeleteSubscription(ctx context.Context, userID, productID string, typ domain.SubscriptionType) error
	DeleteSubscriptionsForOwner(ctx context.Context, userID, productID string) error
}

// AccountRepositoryInterface reads users and crawlers managed elsewhere.
type AccountRepositoryInterface interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetCrawler(ctx context.Context, id string) (*domain.Crawler, error)
}

// NotificationRepositoryInterface covers the notifications outbox.
type NotificationRepositoryInterface interface {
	InsertNotification(ctx context.Context, n *domain.Notification) error
	// ClaimNotification records the single delivery attempt; false means
	// another dispatcher already claimed it.
	ClaimNotification(ctx context.Context, id string) (bool, error)
	ClaimUnattemptedNotifications(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Notification, error)
	MarkNotificationSent(ctx context.Context, id string) error
	MarkNotificationFailed(ctx context.Context, id, errMsg string) error
}

// Store is the full persistence contract used by the domain packages.
type Store interface {
	ProductRepositoryInterface
	HistoryRepositoryInterface
	QueueRepositoryInterface
	OwnershipRepositoryInterface
	AccountRepositoryInterface
	NotificationRepositoryInterface

	// InTx runs fn against a transaction-bound Store and commits when fn
	// returns nil. Called on a transaction-bound Store it reuses the transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}
