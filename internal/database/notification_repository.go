package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

const notificationSelectColumns = `id, user_id, product_id, kind, recipient, message, status,
	error_message, attempted_at, sent_at, created_at`

// NotificationRepository manages the notifications outbox.
type NotificationRepository struct {
	q sqlx.ExtContext
}

// NewNotificationRepository creates a notification repository.
func NewNotificationRepository(q sqlx.ExtContext) *NotificationRepository {
	return &NotificationRepository{q: q}
}

// InsertNotification persists n as pending.
func (r *NotificationRepository) InsertNotification(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Status = domain.NotificationPending

	query := `
		INSERT INTO notifications (id, user_id, product_id, kind, recipient, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	row := r.q.QueryRowxContext(ctx, query,
		n.ID, n.UserID, n.ProductID, n.Kind, n.Recipient, n.Message, n.Status,
	)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return domain.StoreUnavailable("insert notification", err)
	}
	return nil
}

// ClaimNotification stamps attempted_at once.
func (r *NotificationRepository) ClaimNotification(ctx context.Context, id string) (bool, error) {
	query := `UPDATE notifications SET attempted_at = NOW()
		WHERE id = $1 AND status = 'pending' AND attempted_at IS NULL`

	n, err := rowsAffected(r.q.ExecContext(ctx, query, id))
	if err != nil {
		return false, domain.StoreUnavailable("claim notification", err)
	}
	return n > 0, nil
}

// ClaimUnattemptedNotifications claims pending rows older than olderThan that
// were never attempted. Uses FOR UPDATE SKIP LOCKED so concurrent workers
// never claim the same row.
func (r *NotificationRepository) ClaimUnattemptedNotifications(
	ctx context.Context,
	olderThan time.Duration,
	limit int,
) ([]domain.Notification, error) {
	query := `
		UPDATE notifications
		SET attempted_at = NOW()
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = 'pending'
			  AND attempted_at IS NULL
			  AND created_at < NOW() - $1::interval
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + notificationSelectColumns

	notifications := []domain.Notification{}
	if err := sqlx.SelectContext(ctx, r.q, &notifications, query, olderThan.String(), limit); err != nil {
		return nil, domain.StoreUnavailable("claim unattempted notifications", err)
	}
	return notifications, nil
}

// MarkNotificationSent records a successful delivery.
func (r *NotificationRepository) MarkNotificationSent(ctx context.Context, id string) error {
	query := `UPDATE notifications SET status = 'sent', sent_at = NOW(), error_message = NULL
		WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query, id)
	if reqErr := execRequireRows(result, err, domain.NewNotFound("notification", id)); reqErr != nil {
		return domain.StoreUnavailable("mark notification sent", reqErr)
	}
	return nil
}

// MarkNotificationFailed records a failed delivery. Failed rows are never retried.
func (r *NotificationRepository) MarkNotificationFailed(ctx context.Context, id, errMsg string) error {
	query := `UPDATE notifications SET status = 'failed', error_message = $2 WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query, id, errMsg)
	if reqErr := execRequireRows(result, err, domain.NewNotFound("notification", id)); reqErr != nil {
		return domain.StoreUnavailable("mark notification failed", reqErr)
	}
	return nil
}
