package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopfront/order-reconciler/internal/domain"
	"github.com/shopfront/order-reconciler/internal/repository"
	"go.uber.org/zap"
)

// OrderStore is the persistence capability the service needs. Implemented by
// repository.OrderRepository; faked in tests.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order, decrements []repository.InventoryDecrement) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error)
	GetOrderByTracking(ctx context.Context, trackingNumber string) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, updatedAt time.Time) error
	SetShipping(ctx context.Context, orderID string, label domain.ShippingLabel, updatedAt time.Time) error
	GetInventory(ctx context.Context, productID string) (*domain.InventoryRecord, error)
	PutInventory(ctx context.Context, rec domain.InventoryRecord) error
	ResolveProduct(ctx context.Context, priceRef string) (string, error)
}

// Dispatcher fans out notifications after a state change has committed. It
// never reports failure back: notification is a side effect of a committed
// fact, not a precondition for it.
type Dispatcher interface {
	OrderCreated(ctx context.Context, order *domain.Order)
	StatusChanged(ctx context.Context, order *domain.Order, update domain.StatusUpdate)
}

// EventPublisher feeds the order lifecycle Kafka stream. Publish failures are
// logged, never propagated (eventual consistency).
type EventPublisher interface {
	PublishOrderCreated(order *domain.Order, requestID string) error
	PublishStatusChanged(order *domain.Order, update domain.StatusUpdate, requestID string) error
}

// ShippingArranger is the label-purchase collaborator. The service stores
// whatever it returns verbatim.
type ShippingArranger interface {
	Arrange(ctx context.Context, order *domain.Order) (domain.ShippingLabel, error)
}

type OrderService struct {
	store      OrderStore
	dispatcher Dispatcher
	producer   EventPublisher
	shipping   ShippingArranger
	logger     *zap.Logger
	now        func() time.Time
}

func NewOrderService(store OrderStore, dispatcher Dispatcher, producer EventPublisher, shipping ShippingArranger, logger *zap.Logger) *OrderService {
	return &OrderService{
		store:      store,
		dispatcher: dispatcher,
		producer:   producer,
		shipping:   shipping,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *OrderService) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.store.ListOrdersByUser(ctx, userID)
}

// SeedInventory overwrites the stock record for a product. Operator-facing:
// used to load stock counts and to correct drift after clamped oversells.
func (s *OrderService) SeedInventory(ctx context.Context, productID string, quantity int) error {
	if quantity < 0 {
		return errors.New("stock quantity cannot be negative")
	}
	s.logger.Info("inventory seeded",
		zap.String("product_id", productID),
		zap.Int("stock_quantity", quantity))
	return s.store.PutInventory(ctx, domain.InventoryRecord{
		ProductID:     productID,
		StockQuantity: quantity,
	})
}

// ArrangeShipping purchases a label through the shipping collaborator, stores
// the tracking data and advances the order to label_created. Calling it again
// for an order that already has a tracking number is a no-op returning the
// current order.
func (s *OrderService) ArrangeShipping(ctx context.Context, orderID string, requestID string) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.TrackingNumber != "" {
		return order, nil
	}

	label, err := s.shipping.Arrange(ctx, order)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.store.SetShipping(ctx, order.OrderID, label, now); err != nil {
		return nil, err
	}
	order.TrackingNumber = label.TrackingNumber
	order.Carrier = label.Carrier
	order.TrackingURL = label.TrackingURL
	order.LabelURL = label.LabelURL
	order.UpdatedAt = now

	update := domain.StatusUpdate{
		Status:      domain.OrderStatusLabelCreated,
		Description: "shipping label created",
		Timestamp:   now,
	}
	if _, err := s.applyStatus(ctx, order, domain.OrderStatusLabelCreated, update, requestID); err != nil {
		// Label data is already persisted; the tracking webhook will move
		// the status forward on its own.
		s.logger.Warn("label stored but status advance failed",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}

	return order, nil
}

// applyStatus performs the monotonic, optimistically-locked status
// transition shared by the reconciler and the shipping flow. It dispatches
// notifications only when the persisted status actually changed.
func (s *OrderService) applyStatus(ctx context.Context, order *domain.Order, next domain.OrderStatus, update domain.StatusUpdate, requestID string) (bool, error) {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if !next.Supersedes(order.Status) {
			return false, nil
		}

		now := s.now()
		err := s.store.UpdateStatus(ctx, order.OrderID, order.Status, next, now)
		if errors.Is(err, repository.ErrStatusConflict) {
			fresh, getErr := s.store.GetOrder(ctx, order.OrderID)
			if getErr != nil {
				return false, getErr
			}
			order = fresh
			continue
		}
		if err != nil {
			return false, err
		}

		order.Status = next
		order.UpdatedAt = now

		s.dispatcher.StatusChanged(ctx, order, update)
		if err := s.producer.PublishStatusChanged(order, update, requestID); err != nil {
			s.logger.Error("failed to publish status event",
				zap.String("order_id", order.OrderID),
				zap.Error(err))
		}
		return true, nil
	}
	return false, repository.ErrStatusConflict
}
