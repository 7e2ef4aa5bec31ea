package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/metrics"
)

const defaultDispatchTimeout = 15 * time.Second

// DispatchStore records delivery attempts on the outbox.
type DispatchStore interface {
	ClaimNotification(ctx context.Context, id string) (bool, error)
	ClaimUnattemptedNotifications(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Notification, error)
	MarkNotificationSent(ctx context.Context, id string) error
	MarkNotificationFailed(ctx context.Context, id, errMsg string) error
}

// Dispatcher pushes committed notifications through a Sender exactly once.
// Delivery failures are recorded on the record and logged, never returned.
type Dispatcher struct {
	store   DispatchStore
	sender  Sender
	timeout time.Duration
	metrics *metrics.Metrics
	log     logger.Logger
	tracer  trace.Tracer
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. timeout bounds one asynchronous batch.
func NewDispatcher(
	store DispatchStore,
	sender Sender,
	timeout time.Duration,
	m *metrics.Metrics,
	log logger.Logger,
) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{
		store:   store,
		sender:  sender,
		timeout: timeout,
		metrics: m,
		log:     log,
		tracer:  otel.Tracer("price-tracker/notify"),
	}
}

// DispatchAsync delivers notifications on a background goroutine, detached
// from the caller's context.
func (d *Dispatcher) DispatchAsync(notifications []domain.Notification) {
	if len(notifications) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		d.Dispatch(ctx, notifications)
	}()
}

// Wait blocks until every DispatchAsync batch has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch claims and delivers each notification. Records already claimed
// elsewhere are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, notifications []domain.Notification) {
	for i := range notifications {
		n := notifications[i]

		claimed, err := d.store.ClaimNotification(ctx, n.ID)
		if err != nil {
			d.log.Error("Failed to claim notification",
				logger.String("notification_id", n.ID),
				logger.Error(err),
			)
			continue
		}
		if !claimed {
			d.log.Debug("Notification already attempted", logger.String("notification_id", n.ID))
			continue
		}

		d.deliver(ctx, n)
	}
}

// deliver sends a claimed notification and records the outcome.
func (d *Dispatcher) deliver(ctx context.Context, n domain.Notification) {
	ctx, span := d.tracer.Start(ctx, "notify.dispatch",
		trace.WithAttributes(
			attribute.String("notification_id", n.ID),
			attribute.String("product_id", n.ProductID),
			attribute.String("kind", string(n.Kind)),
			attribute.String("sender", d.sender.Name()),
		))
	defer span.End()

	start := time.Now()
	sendErr := d.sender.Send(ctx, n)
	d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())

	if sendErr != nil {
		err := fmt.Errorf("%w: %w", domain.ErrNotificationDispatch, sendErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		d.metrics.NotificationsDispatched.WithLabelValues("failed").Inc()

		d.log.Warn("Notification delivery failed",
			logger.String("notification_id", n.ID),
			logger.String("user_id", n.UserID),
			logger.String("sender", d.sender.Name()),
			logger.Error(err),
		)
		if markErr := d.store.MarkNotificationFailed(ctx, n.ID, sendErr.Error()); markErr != nil {
			d.log.Error("Failed to mark notification failed",
				logger.String("notification_id", n.ID),
				logger.Error(markErr),
			)
		}
		return
	}

	d.metrics.NotificationsDispatched.WithLabelValues("sent").Inc()
	if markErr := d.store.MarkNotificationSent(ctx, n.ID); markErr != nil {
		// Delivered; the record stays pending with attempted_at set and is
		// never picked up again.
		d.log.Error("Failed to mark notification sent",
			logger.String("notification_id", n.ID),
			logger.Error(markErr),
		)
	}
}
