package domain

import (
	"encoding/json"
	"time"
)

// Ownership links a user to a tracked product. Price 0 means unknown.
type Ownership struct {
	ID        string    `db:"id"         json:"id"`
	UserID    string    `db:"user_id"    json:"user_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Price     float64   `db:"price"      json:"price"`
	Favorited bool      `db:"favorited"  json:"favorited"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SubscriptionType names an opt-in notification.
type SubscriptionType string

// SubscriptionNotifyOnRestock opts an owner into "back in stock" messages.
const SubscriptionNotifyOnRestock SubscriptionType = "notify_on_restock"

// Valid reports whether t is a known subscription type.
func (t SubscriptionType) Valid() bool {
	return t == SubscriptionNotifyOnRestock
}

// Subscription is an owner's opt-in for one product.
type Subscription struct {
	ID        string           `db:"id"                json:"id"`
	UserID    string           `db:"user_id"           json:"user_id"`
	ProductID string           `db:"product_id"        json:"product_id"`
	Type      SubscriptionType `db:"subscription_type" json:"subscription_type"`
	Payload   json.RawMessage  `db:"payload"           json:"payload,omitempty"`
	CreatedAt time.Time        `db:"created_at"        json:"created_at"`
}

// Recipient is a telegram-linked owner of a product.
type Recipient struct {
	UserID         string `db:"user_id"`
	TelegramChatID string `db:"telegram_chat_id"`
}
