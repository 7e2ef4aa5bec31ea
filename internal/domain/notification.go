package domain

import "time"

// NotificationKind is the stock transition that triggered a message.
type NotificationKind string

const (
	NotificationFirstInStock NotificationKind = "first_in_stock"
	NotificationBackInStock  NotificationKind = "back_in_stock"
)

// NotificationStatus tracks the single delivery attempt of a notification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification is an outbox row addressed to one owner. It is persisted
// before any delivery attempt and attempted at most once.
type Notification struct {
	ID           string             `db:"id"            json:"id"`
	UserID       string             `db:"user_id"       json:"user_id"`
	ProductID    string             `db:"product_id"    json:"product_id"`
	Kind         NotificationKind   `db:"kind"          json:"kind"`
	Recipient    string             `db:"recipient"     json:"recipient"`
	Message      string             `db:"message"       json:"message"`
	Status       NotificationStatus `db:"status"        json:"status"`
	ErrorMessage *string            `db:"error_message" json:"error_message,omitempty"`
	AttemptedAt  *time.Time         `db:"attempted_at"  json:"attempted_at,omitempty"`
	SentAt       *time.Time         `db:"sent_at"       json:"sent_at,omitempty"`
	CreatedAt    time.Time          `db:"created_at"    json:"created_at"`
}
