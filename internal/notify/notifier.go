package notify

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/metrics"
)

// Store is the persistence Apply needs. Callers pass the ingestion transaction.
type Store interface {
	BackfillOwnershipPrices(ctx context.Context, productID string, price float64) (int64, error)
	ListRecipients(ctx context.Context, productID string, restockOnly bool) ([]domain.Recipient, error)
	InsertNotification(ctx context.Context, n *domain.Notification) error
}

// Notifier turns a transition into persisted notification records.
type Notifier struct {
	baseURL string
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewNotifier creates a notifier whose messages link to baseURL.
func NewNotifier(baseURL string, m *metrics.Metrics, log logger.Logger) *Notifier {
	return &Notifier{baseURL: baseURL, metrics: m, log: log}
}

// Apply persists one pending notification per recipient of the transition.
// First-in-stock also backfills owners whose price is still unknown, and
// targets every telegram-linked owner; back-in-stock targets only owners
// subscribed to restock notifications.
func (n *Notifier) Apply(
	ctx context.Context,
	store Store,
	product domain.Product,
	t Transition,
	price float64,
) ([]domain.Notification, error) {
	kind, ok := t.Kind()
	if !ok {
		return nil, nil
	}

	if t == TransitionFirstInStock && price > 0 {
		updated, err := store.BackfillOwnershipPrices(ctx, product.ID, price)
		if err != nil {
			return nil, fmt.Errorf("backfill prices: %w", err)
		}
		if updated > 0 {
			n.log.Debug("Backfilled owner prices",
				logger.String("product_id", product.ID),
				logger.Int64("owners", updated),
				logger.Float64("price", price),
			)
		}
	}

	recipients, err := store.ListRecipients(ctx, product.ID, t == TransitionBackInStock)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}

	message := Render(kind, product, price, n.baseURL)
	created := make([]domain.Notification, 0, len(recipients))
	for _, r := range recipients {
		record := domain.Notification{
			UserID:    r.UserID,
			ProductID: product.ID,
			Kind:      kind,
			Recipient: r.TelegramChatID,
			Message:   message,
		}
		if insertErr := store.InsertNotification(ctx, &record); insertErr != nil {
			return nil, fmt.Errorf("persist notification: %w", insertErr)
		}
		created = append(created, record)
	}

	n.metrics.NotificationsCreated.WithLabelValues(string(kind)).Add(float64(len(created)))
	n.log.Info("Stock transition recorded",
		logger.String("product_id", product.ID),
		logger.String("transition", t.String()),
		logger.Int("notifications", len(created)),
	)

	return created, nil
}
