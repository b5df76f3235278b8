package service

import (
	"context"

	"github.com/shopfront/order-reconciler/internal/domain"
	"go.uber.org/zap"
)

// Reconcile folds a carrier tracking update into the order's status. The
// status is applied only when it represents forward progress; anything else
// is a recognized no-op (applied=false, nil error) so the sender gets a
// success and stops retrying. repository.ErrOrderNotFound passes through for
// the handler's unknown-order path.
func (s *OrderService) Reconcile(ctx context.Context, ev *domain.TrackingChanged, requestID string) (bool, error) {
	order, err := s.store.GetOrderByTracking(ctx, ev.TrackingNumber)
	if err != nil {
		return false, err
	}

	next, known := domain.MapCarrierStatus(ev.RawCarrierStatus)
	if !known {
		// Forward-compatible pass-through; flagged for operator review.
		s.logger.Warn("unrecognized carrier status code",
			zap.String("tracking_number", ev.TrackingNumber),
			zap.String("raw_status", ev.RawCarrierStatus),
			zap.String("order_id", order.OrderID))
	}

	update := domain.StatusUpdate{
		Status:      next,
		Description: ev.StatusDetails,
		Location:    ev.Location,
		Timestamp:   ev.Timestamp,
	}

	applied, err := s.applyStatus(ctx, order, next, update, requestID)
	if err != nil {
		return false, err
	}
	if !applied {
		s.logger.Debug("tracking update is not forward progress, ignoring",
			zap.String("order_id", order.OrderID),
			zap.String("current_status", string(order.Status)),
			zap.String("incoming_status", string(next)))
	}
	return applied, nil
}
