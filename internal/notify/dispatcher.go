package notify

import (
	"context"
	"sync"
	"time"

	"github.com/shopfront/order-reconciler/internal/domain"
	"go.uber.org/zap"
)

// Notifier is a transactional messaging collaborator (email, SMS). It gets a
// recipient and template data and reports success or failure; the dispatcher
// does not depend on anything beyond that.
type Notifier interface {
	Notify(ctx context.Context, recipient string, templateData map[string]any) error
}

// ChannelPublisher pushes a point-in-time update to the real-time channel
// keyed by order id.
type ChannelPublisher interface {
	Publish(ctx context.Context, orderID string, payload any) error
}

// Dispatcher fans out to email, SMS and the real-time channel after a state
// change has committed. Channels run concurrently, each under its own
// timeout; every failure is logged and swallowed. A slow or broken channel
// never blocks the others and never fails the webhook response.
type Dispatcher struct {
	email    Notifier
	sms      Notifier
	realtime ChannelPublisher
	timeout  time.Duration
	logger   *zap.Logger
}

func NewDispatcher(email, sms Notifier, realtime ChannelPublisher, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		email:    email,
		sms:      sms,
		realtime: realtime,
		timeout:  timeout,
		logger:   logger,
	}
}

func (d *Dispatcher) OrderCreated(ctx context.Context, order *domain.Order) {
	data := map[string]any{
		"kind":     "order_created",
		"order_id": order.OrderID,
		"total":    order.Total,
		"subtotal": order.Subtotal,
		"shipping": order.ShippingCost,
		"items":    order.Items,
		"status":   string(order.Status),
	}
	d.fanOut(ctx, order, data)
}

func (d *Dispatcher) StatusChanged(ctx context.Context, order *domain.Order, update domain.StatusUpdate) {
	data := map[string]any{
		"kind":        "status_changed",
		"order_id":    order.OrderID,
		"status":      string(update.Status),
		"description": update.Description,
		"location":    update.Location,
		"timestamp":   update.Timestamp,
	}
	d.fanOut(ctx, order, data)
}

func (d *Dispatcher) fanOut(ctx context.Context, order *domain.Order, data map[string]any) {
	// The state change has already committed, so a caller disconnect must not
	// cancel the fan-out. Only the per-channel timeout bounds each attempt.
	ctx = context.WithoutCancel(ctx)

	var wg sync.WaitGroup

	d.attempt(ctx, &wg, "email", order.OrderID, func(cctx context.Context) error {
		return d.email.Notify(cctx, order.CustomerEmail, data)
	})

	if order.CustomerPhone != "" {
		d.attempt(ctx, &wg, "sms", order.OrderID, func(cctx context.Context) error {
			return d.sms.Notify(cctx, order.CustomerPhone, data)
		})
	}

	d.attempt(ctx, &wg, "realtime", order.OrderID, func(cctx context.Context) error {
		return d.realtime.Publish(cctx, order.OrderID, data)
	})

	// All channels must be attempted before the webhook response goes out:
	// a 2xx tells the sender to stop retrying.
	wg.Wait()
}

func (d *Dispatcher) attempt(ctx context.Context, wg *sync.WaitGroup, channel, orderID string, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := fn(cctx); err != nil {
			d.logger.Error("notification channel failed",
				zap.String("channel", channel),
				zap.String("order_id", orderID),
				zap.Error(err))
		}
	}()
}
