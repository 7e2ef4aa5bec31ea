package notify

import (
	"context"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks . Sender

// Sender pushes one notification to the external messaging channel.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
	Name() string
}

// LogSender writes notifications to the log. It is the default when no
// messaging channel is configured.
type LogSender struct {
	log logger.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, n domain.Notification) error {
	s.log.Info("Notification",
		logger.String("notification_id", n.ID),
		logger.String("recipient", n.Recipient),
		logger.String("kind", string(n.Kind)),
		logger.String("message", n.Message),
	)
	return nil
}
