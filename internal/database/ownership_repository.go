package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

const ownershipSelectColumns = `id, user_id, product_id, price, favorited, created_at, updated_at`

// OwnershipRepository handles user_products and user_product_subscriptions.
type OwnershipRepository struct {
	q sqlx.ExtContext
}

// NewOwnershipRepository creates an ownership repository.
func NewOwnershipRepository(q sqlx.ExtContext) *OwnershipRepository {
	return &OwnershipRepository{q: q}
}

// GetOwnership loads the (user, product) link.
func (r *OwnershipRepository) GetOwnership(ctx context.Context, userID, productID string) (*domain.Ownership, error) {
	query := `SELECT ` + ownershipSelectColumns + ` FROM user_products
		WHERE user_id = $1 AND product_id = $2`

	var o domain.Ownership
	if err := sqlx.GetContext(ctx, r.q, &o, query, userID, productID); err != nil {
		return nil, notFoundOr("get ownership", "ownership", productID, err)
	}
	return &o, nil
}

// CreateOwnership inserts the link unless it exists, then loads the stored row.
func (r *OwnershipRepository) CreateOwnership(ctx context.Context, o *domain.Ownership) (bool, error) {
	insertQuery := `
		INSERT INTO user_products (id, user_id, product_id, price, favorited)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, product_id) DO NOTHING
	`

	n, err := rowsAffected(r.q.ExecContext(ctx, insertQuery,
		uuid.NewString(), o.UserID, o.ProductID, o.Price, o.Favorited,
	))
	if err != nil {
		return false, domain.StoreUnavailable("create ownership", err)
	}

	selectQuery := `SELECT ` + ownershipSelectColumns + ` FROM user_products
		WHERE user_id = $1 AND product_id = $2`
	if selectErr := sqlx.GetContext(ctx, r.q, o, selectQuery, o.UserID, o.ProductID); selectErr != nil {
		return false, domain.StoreUnavailable("select ownership", selectErr)
	}
	return n > 0, nil
}

// DeleteOwnership removes the link.
func (r *OwnershipRepository) DeleteOwnership(ctx context.Context, userID, productID string) error {
	query := `DELETE FROM user_products WHERE user_id = $1 AND product_id = $2`

	result, err := r.q.ExecContext(ctx, query, userID, productID)
	if reqErr := execRequireRows(result, err, domain.NewNotFound("ownership", productID)); reqErr != nil {
		return domain.StoreUnavailable("delete ownership", reqErr)
	}
	return nil
}

// CountOwnerships returns how many users track productID.
func (r *OwnershipRepository) CountOwnerships(ctx context.Context, productID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM user_products WHERE product_id = $1`
	if err := sqlx.GetContext(ctx, r.q, &n, query, productID); err != nil {
		return 0, domain.StoreUnavailable("count ownerships", err)
	}
	return n, nil
}

// BackfillOwnershipPrices sets price on every link still at the unknown price 0.
func (r *OwnershipRepository) BackfillOwnershipPrices(ctx context.Context, productID string, price float64) (int64, error) {
	query := `UPDATE user_products SET price = $2, updated_at = NOW()
		WHERE product_id = $1 AND price = 0`

	n, err := rowsAffected(r.q.ExecContext(ctx, query, productID, price))
	if err != nil {
		return 0, domain.StoreUnavailable("backfill ownership prices", err)
	}
	return n, nil
}

// ListRecipients returns telegram-linked owners of productID. With
// restockOnly only owners holding a notify_on_restock subscription are returned.
func (r *OwnershipRepository) ListRecipients(
	ctx context.Context,
	productID string,
	restockOnly bool,
) ([]domain.Recipient, error) {
	query := `
		SELECT up.user_id, u.telegram_chat_id
		FROM user_products up
		JOIN users u ON u.id = up.user_id
		WHERE up.product_id = $1
		  AND u.telegram_chat_id IS NOT NULL
		  AND (NOT $2 OR EXISTS (
				SELECT 1 FROM user_product_subscriptions s
				WHERE s.user_id = up.user_id
				  AND s.product_id = up.product_id
				  AND s.subscription_type = 'notify_on_restock'))
		ORDER BY up.user_id
	`

	recipients := []domain.Recipient{}
	if err := sqlx.SelectContext(ctx, r.q, &recipients, query, productID, restockOnly); err != nil {
		return nil, domain.StoreUnavailable("list recipients", err)
	}
	return recipients, nil
}

// UpsertSubscription creates the subscription or replaces its payload.
func (r *OwnershipRepository) UpsertSubscription(ctx context.Context, s *domain.Subscription) error {
	query := `
		INSERT INTO user_product_subscriptions (id, user_id, product_id, subscription_type, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, product_id, subscription_type)
		DO UPDATE SET payload = EXCLUDED.payload
		RETURNING id, created_at
	`

	var payload any
	if len(s.Payload) > 0 {
		payload = []byte(s.Payload)
	}

	row := r.q.QueryRowxContext(ctx, query, uuid.NewString(), s.UserID, s.ProductID, s.Type, payload)
	if err := row.Scan(&s.ID, &s.CreatedAt); err != nil {
		return domain.StoreUnavailable("upsert subscription", err)
	}
	return nil
}

// DeleteSubscription removes one subscription.
func (r *OwnershipRepository) DeleteSubscription(
	ctx context.Context,
	userID, productID string,
	typ domain.SubscriptionType,
) error {
	query := `DELETE FROM user_product_subscriptions
		WHERE user_id = $1 AND product_id = $2 AND subscription_type = $3`

	result, err := r.q.ExecContext(ctx, query, userID, productID, typ)
	if reqErr := execRequireRows(result, err, domain.NewNotFound("subscription", string(typ))); reqErr != nil {
		return domain.StoreUnavailable("delete subscription", reqErr)
	}
	return nil
}

// DeleteSubscriptionsForOwner removes all subscriptions of a (user, product) link.
func (r *OwnershipRepository) DeleteSubscriptionsForOwner(ctx context.Context, userID, productID string) error {
	query := `DELETE FROM user_product_subscriptions WHERE user_id = $1 AND product_id = $2`

	if _, err := r.q.ExecContext(ctx, query, userID, productID); err != nil {
		return domain.StoreUnavailable("delete subscriptions", err)
	}
	return nil
}
