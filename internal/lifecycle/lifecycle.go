// Package lifecycle manages product ownership and the active/hold status
// that follows from it, and selects stale products for re-crawl.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/database"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/pricing"
)

const (
	// DefaultMaxAgeHours is used when OutdatedProducts gets a zero age.
	DefaultMaxAgeHours = 24
	// DefaultOutdatedLimit is used when OutdatedProducts gets a non-positive limit.
	DefaultOutdatedLimit = 100
	// MaxOutdatedLimit caps OutdatedProducts.
	MaxOutdatedLimit = 1000
)

// OwnerStore is the persistence Own needs.
type OwnerStore interface {
	CreateOwnership(ctx context.Context, o *domain.Ownership) (bool, error)
	SetProductStatus(ctx context.Context, id string, status domain.ProductStatus) error
}

// Own links userID to product at price. A new ownership of a held product
// moves it back to active; product is updated in place.
func Own(ctx context.Context, store OwnerStore, userID string, product *domain.Product, price float64) (*domain.Ownership, bool, error) {
	o := &domain.Ownership{UserID: userID, ProductID: product.ID, Price: max(price, 0)}
	created, err := store.CreateOwnership(ctx, o)
	if err != nil {
		return nil, false, fmt.Errorf("create ownership: %w", err)
	}

	if created && product.Status == domain.ProductStatusHold {
		if statusErr := store.SetProductStatus(ctx, product.ID, domain.ProductStatusActive); statusErr != nil {
			return nil, false, fmt.Errorf("activate product: %w", statusErr)
		}
		product.Status = domain.ProductStatusActive
	}

	return o, created, nil
}

// Manager implements the user-facing ownership operations.
type Manager struct {
	store database.Store
	log   logger.Logger
	now   func() time.Time
}

// NewManager creates a manager over store.
func NewManager(store database.Store, log logger.Logger) *Manager {
	return &Manager{store: store, log: log, now: time.Now}
}

// WithClock replaces the time source used for staleness cutoffs.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// MoveToHold excludes the product from re-crawl selection.
func (m *Manager) MoveToHold(ctx context.Context, productID string) error {
	return m.setStatus(ctx, productID, domain.ProductStatusHold)
}

// MoveToActive makes the product eligible for re-crawl again.
func (m *Manager) MoveToActive(ctx context.Context, productID string) error {
	return m.setStatus(ctx, productID, domain.ProductStatusActive)
}

func (m *Manager) setStatus(ctx context.Context, productID string, status domain.ProductStatus) error {
	if err := m.store.SetProductStatus(ctx, productID, status); err != nil {
		return err
	}
	m.log.Info("Product status changed",
		logger.String("product_id", productID),
		logger.String("status", string(status)),
	)
	return nil
}

// Attach adds an existing product to userID. The seeded price is the current
// price only while the product is known to be in stock.
func (m *Manager) Attach(ctx context.Context, userID, productID string) (*domain.Ownership, bool, error) {
	var (
		ownership *domain.Ownership
		created   bool
	)

	err := m.store.InTx(ctx, func(tx database.Store) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		product, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}

		ownership, created, err = attach(ctx, tx, userID, product)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		m.log.Info("Product attached",
			logger.String("user_id", userID),
			logger.String("product_id", productID),
			logger.Float64("price", ownership.Price),
		)
	}
	return ownership, created, nil
}

// attach seeds an ownership for a product the caller already loaded in tx.
func attach(ctx context.Context, tx database.Store, userID string, product *domain.Product) (*domain.Ownership, bool, error) {
	resolver := pricing.NewResolver(tx)
	summary, err := resolver.Summary(ctx, product.ID)
	if err != nil {
		return nil, false, err
	}
	current, err := resolver.CurrentPrice(ctx, product.ID)
	if err != nil {
		return nil, false, err
	}
	return Own(ctx, tx, userID, product, pricing.AttachPrice(summary, current))
}

// AttachLoaded is Attach for a product already read by the caller, for
// example by the queue coordinator.
func (m *Manager) AttachLoaded(ctx context.Context, userID string, product *domain.Product) (*domain.Ownership, bool, error) {
	var (
		ownership *domain.Ownership
		created   bool
		locked    *domain.Product
	)
	err := m.store.InTx(ctx, func(tx database.Store) error {
		var err error
		if locked, err = tx.LockProduct(ctx, product.ID); err != nil {
			return err
		}
		ownership, created, err = attach(ctx, tx, userID, locked)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	*product = *locked
	return ownership, created, nil
}

// Detach removes userID's ownership and its subscriptions. It reports
// whether the product moved to hold because no owners remain. The product
// row stays locked from the owner count to the status change.
func (m *Manager) Detach(ctx context.Context, userID, productID string) (bool, error) {
	held := false

	err := m.store.InTx(ctx, func(tx database.Store) error {
		if _, err := tx.LockProduct(ctx, productID); err != nil {
			return err
		}
		if _, err := tx.GetOwnership(ctx, userID, productID); err != nil {
			return err
		}
		if err := tx.DeleteSubscriptionsForOwner(ctx, userID, productID); err != nil {
			return fmt.Errorf("delete subscriptions: %w", err)
		}
		if err := tx.DeleteOwnership(ctx, userID, productID); err != nil {
			return fmt.Errorf("delete ownership: %w", err)
		}

		remaining, err := tx.CountOwnerships(ctx, productID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		if err = tx.SetProductStatus(ctx, productID, domain.ProductStatusHold); err != nil {
			return fmt.Errorf("hold product: %w", err)
		}
		held = true
		return nil
	})
	if err != nil {
		return false, err
	}

	m.log.Info("Product detached",
		logger.String("user_id", userID),
		logger.String("product_id", productID),
		logger.Bool("held", held),
	)
	return held, nil
}

// Subscribe opts an owner into typ notifications for the product.
func (m *Manager) Subscribe(
	ctx context.Context,
	userID, productID string,
	typ domain.SubscriptionType,
	payload json.RawMessage,
) (*domain.Subscription, error) {
	if !typ.Valid() {
		return nil, domain.NewValidationError("subscription_type", domain.CodeInvalidSubscription,
			fmt.Sprintf("unknown subscription type %q", typ))
	}
	if _, err := m.store.GetOwnership(ctx, userID, productID); err != nil {
		return nil, err
	}

	s := &domain.Subscription{UserID: userID, ProductID: productID, Type: typ, Payload: payload}
	if err := m.store.UpsertSubscription(ctx, s); err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return s, nil
}

// Unsubscribe removes a subscription. A missing one is NotFound.
func (m *Manager) Unsubscribe(ctx context.Context, userID, productID string, typ domain.SubscriptionType) error {
	if !typ.Valid() {
		return domain.NewValidationError("subscription_type", domain.CodeInvalidSubscription,
			fmt.Sprintf("unknown subscription type %q", typ))
	}
	return m.store.DeleteSubscription(ctx, userID, productID, typ)
}

// OutdatedProducts returns active products whose latest non-skip history
// record, or creation time when there is none, is older than maxAgeHours.
// Oldest first.
func (m *Manager) OutdatedProducts(ctx context.Context, maxAgeHours, limit int) ([]domain.OutdatedProduct, error) {
	switch {
	case maxAgeHours < 0:
		return nil, domain.NewValidationError("max_age_hours", domain.CodeInvalidField, "must not be negative")
	case maxAgeHours == 0:
		maxAgeHours = DefaultMaxAgeHours
	}
	switch {
	case limit <= 0:
		limit = DefaultOutdatedLimit
	case limit > MaxOutdatedLimit:
		limit = MaxOutdatedLimit
	}

	cutoff := m.now().Add(-time.Duration(maxAgeHours) * time.Hour)
	return m.store.ListOutdatedProducts(ctx, cutoff, limit)
}
