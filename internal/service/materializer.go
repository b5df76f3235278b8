package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopfront/order-reconciler/internal/domain"
	"github.com/shopfront/order-reconciler/internal/repository"
	"go.uber.org/zap"
)

// MetadataError marks a payment event whose metadata cannot be decoded into
// line items. Not retryable: the handler dead-letters it for operator replay
// instead of letting the sender retry forever.
type MetadataError struct {
	Reason string
	Err    error
}

func (e *MetadataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unusable payment metadata: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("unusable payment metadata: %s", e.Reason)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// Materialize turns a first-seen payment-completed event into a persisted
// Order, decrementing inventory in the same transaction. A duplicate
// delivery returns the existing order with created=false. Any other error is
// either a *MetadataError (dead-letter) or transient (the sender retries;
// the session guard makes the retry safe).
func (s *OrderService) Materialize(ctx context.Context, ev *domain.PaymentCompleted, requestID string) (*domain.Order, bool, error) {
	rawLines, err := parseCart(ev.CartJSON)
	if err != nil {
		return nil, false, err
	}

	order := &domain.Order{
		OrderID:           uuid.New().String(),
		ExternalSessionID: ev.ExternalSessionID,
		UserID:            ev.UserID,
		CustomerEmail:     ev.CustomerEmail,
		CustomerPhone:     ev.CustomerPhone,
		Status:            domain.OrderStatusPaid,
		CreatedAt:         s.now(),
	}
	order.UpdatedAt = order.CreatedAt
	order.ShippingAddress = s.parseAddress(ev)

	var decrements []repository.InventoryDecrement
	decrementIdx := make(map[string]int)
	var subtotal int64
	for _, raw := range rawLines {
		item := domain.LineItem{
			Title:     raw.Title,
			UnitPrice: raw.UnitPrice,
			Quantity:  raw.Quantity,
		}

		// Catalog resolution is best-effort: it only drives the inventory
		// decrement. The payment is already captured, so a miss (or a
		// lookup failure) must never block the order record.
		if raw.PriceRef != "" {
			productID, err := s.store.ResolveProduct(ctx, raw.PriceRef)
			if err != nil {
				s.logger.Warn("catalog lookup failed, recording snapshot only",
					zap.String("session_id", ev.ExternalSessionID),
					zap.String("price_ref", raw.PriceRef),
					zap.Error(err))
			} else if productID != "" {
				item.ProductID = productID
				if raw.Quantity > 0 {
					// The creation transaction admits at most one update per
					// stock item, so lines resolving to the same product are
					// summed into one decrement.
					if i, ok := decrementIdx[productID]; ok {
						decrements[i].Quantity += raw.Quantity
					} else {
						decrementIdx[productID] = len(decrements)
						decrements = append(decrements, repository.InventoryDecrement{
							ProductID: productID,
							Quantity:  raw.Quantity,
						})
					}
				}
			}
		}

		order.Items = append(order.Items, item)
		subtotal += raw.UnitPrice * int64(raw.Quantity)
	}

	order.Subtotal = subtotal
	order.Total = ev.AmountTotal
	order.ShippingCost = ev.AmountTotal - subtotal
	if order.ShippingCost < 0 {
		order.ShippingCost = 0
	}

	created, err := s.createWithClamping(ctx, order, decrements)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := s.store.GetOrderBySession(ctx, ev.ExternalSessionID)
		if err != nil {
			// The guard item exists, so the order does too; a read failure
			// here is transient.
			return nil, false, err
		}
		s.logger.Info("duplicate payment event deduplicated",
			zap.String("session_id", ev.ExternalSessionID),
			zap.String("order_id", existing.OrderID))
		return existing, false, nil
	}

	s.logger.Info("order materialized",
		zap.String("order_id", order.OrderID),
		zap.String("session_id", order.ExternalSessionID),
		zap.Int64("total", order.Total),
		zap.Int("items", len(order.Items)))

	s.dispatcher.OrderCreated(ctx, order)
	if err := s.producer.PublishOrderCreated(order, requestID); err != nil {
		s.logger.Error("failed to publish order created event",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}

	return order, true, nil
}

// createWithClamping runs the creation transaction, clamping inventory
// decrements that would drive stock negative. Overselling during the webhook
// race is logged as a warning, never rejected: the payment is already
// committed externally.
func (s *OrderService) createWithClamping(ctx context.Context, order *domain.Order, decrements []repository.InventoryDecrement) (bool, error) {
	const maxAttempts = 4

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.store.CreateOrder(ctx, order, decrements)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			return false, nil
		}

		var shortfall *repository.StockShortfallError
		if !errors.As(err, &shortfall) {
			return false, err
		}

		short := make(map[string]bool, len(shortfall.ProductIDs))
		for _, id := range shortfall.ProductIDs {
			short[id] = true
		}

		clamped := decrements[:0]
		for _, d := range decrements {
			if !short[d.ProductID] {
				clamped = append(clamped, d)
				continue
			}
			rec, err := s.store.GetInventory(ctx, d.ProductID)
			if err != nil {
				return false, err
			}
			available := 0
			if rec != nil {
				available = rec.StockQuantity
			}
			s.logger.Warn("oversell clamped to available stock",
				zap.String("order_id", order.OrderID),
				zap.String("product_id", d.ProductID),
				zap.Int("requested", d.Quantity),
				zap.Int("available", available))
			if available > 0 {
				clamped = append(clamped, repository.InventoryDecrement{
					ProductID: d.ProductID,
					Quantity:  available,
				})
			}
		}
		decrements = clamped
	}

	// Stock kept moving under us. Create the order without the contested
	// decrements rather than lose it.
	s.logger.Warn("giving up on inventory decrement after repeated contention",
		zap.String("order_id", order.OrderID))
	err := s.store.CreateOrder(ctx, order, nil)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repository.ErrAlreadyProcessed) {
		return false, nil
	}
	return false, err
}

func parseCart(cartJSON string) ([]domain.RawLineItem, error) {
	if cartJSON == "" {
		return nil, &MetadataError{Reason: "missing cart metadata"}
	}
	var lines []domain.RawLineItem
	if err := json.Unmarshal([]byte(cartJSON), &lines); err != nil {
		return nil, &MetadataError{Reason: "cart metadata is not valid JSON", Err: err}
	}
	if len(lines) == 0 {
		return nil, &MetadataError{Reason: "cart metadata is empty"}
	}
	for i, l := range lines {
		if l.Quantity <= 0 {
			return nil, &MetadataError{Reason: fmt.Sprintf("line %d has non-positive quantity", i)}
		}
		if l.UnitPrice < 0 {
			return nil, &MetadataError{Reason: fmt.Sprintf("line %d has negative unit price", i)}
		}
	}
	return lines, nil
}

// parseAddress decodes the shipping snapshot. Unlike the cart it is not
// essential, so a bad blob degrades to a warning.
func (s *OrderService) parseAddress(ev *domain.PaymentCompleted) *domain.AddressSnapshot {
	if ev.AddressJSON == "" {
		return nil
	}
	var addr domain.AddressSnapshot
	if err := json.Unmarshal([]byte(ev.AddressJSON), &addr); err != nil {
		s.logger.Warn("unparseable shipping address metadata",
			zap.String("session_id", ev.ExternalSessionID),
			zap.Error(err))
		return nil
	}
	return &addr
}
