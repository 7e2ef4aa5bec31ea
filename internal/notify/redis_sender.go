package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/events"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

// RedisSender publishes notifications to a Pub/Sub channel consumed by an
// external bot.
type RedisSender struct {
	client  *redis.Client
	channel string
}

// NewRedisSender creates a sender. channel defaults to events.NotificationChannel.
func NewRedisSender(client *redis.Client, channel string) *RedisSender {
	if channel == "" {
		channel = events.NotificationChannel
	}
	return &RedisSender{client: client, channel: channel}
}

func (s *RedisSender) Name() string { return "redis" }

func (s *RedisSender) Send(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(events.Notification{
		EventType:      events.NotificationReady,
		NotificationID: n.ID,
		UserID:         n.UserID,
		ProductID:      n.ProductID,
		Kind:           string(n.Kind),
		ChatID:         n.Recipient,
		Text:           n.Message,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if pubErr := s.client.Publish(ctx, s.channel, payload).Err(); pubErr != nil {
		return fmt.Errorf("publish to %s: %w", s.channel, pubErr)
	}
	return nil
}
