package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopfront/order-reconciler/internal/domain"
	"github.com/shopfront/order-reconciler/internal/repository"
)

// fakeStore reproduces the repository's conditional-write semantics in
// memory: the session guard behaves like attribute_not_exists and stock
// decrements fail atomically on shortfall. That keeps the race tests
// meaningful without DynamoDB.
type fakeStore struct {
	mu         sync.Mutex
	orders     map[string]domain.Order // by order id
	sessions   map[string]string       // session id -> order id
	tracking   map[string]string       // tracking number -> order id
	stock      map[string]int          // product id -> quantity
	catalog    map[string]string       // price ref -> product id
	failCreate error

	lastDecrements []repository.InventoryDecrement
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[string]domain.Order),
		sessions: make(map[string]string),
		tracking: make(map[string]string),
		stock:    make(map[string]int),
		catalog:  make(map[string]string),
	}
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *domain.Order, decrements []repository.InventoryDecrement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate != nil {
		return f.failCreate
	}
	f.lastDecrements = append([]repository.InventoryDecrement(nil), decrements...)
	if _, exists := f.sessions[order.ExternalSessionID]; exists {
		return repository.ErrAlreadyProcessed
	}

	shortfall := &repository.StockShortfallError{}
	for _, d := range decrements {
		if f.stock[d.ProductID] < d.Quantity {
			shortfall.ProductIDs = append(shortfall.ProductIDs, d.ProductID)
		}
	}
	if len(shortfall.ProductIDs) > 0 {
		return shortfall
	}

	for _, d := range decrements {
		f.stock[d.ProductID] -= d.Quantity
	}
	f.sessions[order.ExternalSessionID] = order.OrderID
	f.orders[order.OrderID] = cloneOrder(order)
	return nil
}

func (f *fakeStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	copied := cloneOrder(&o)
	return &copied, nil
}

func (f *fakeStore) GetOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	f.mu.Lock()
	id, ok := f.sessions[sessionID]
	f.mu.Unlock()
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return f.GetOrder(ctx, id)
}

func (f *fakeStore) GetOrderByTracking(ctx context.Context, trackingNumber string) (*domain.Order, error) {
	f.mu.Lock()
	id, ok := f.tracking[trackingNumber]
	f.mu.Unlock()
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return f.GetOrder(ctx, id)
}

func (f *fakeStore) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(&o))
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.Status != from {
		return repository.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = updatedAt
	f.orders[orderID] = o
	return nil
}

func (f *fakeStore) SetShipping(ctx context.Context, orderID string, label domain.ShippingLabel, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.TrackingNumber = label.TrackingNumber
	o.Carrier = label.Carrier
	o.TrackingURL = label.TrackingURL
	o.LabelURL = label.LabelURL
	o.UpdatedAt = updatedAt
	f.orders[orderID] = o
	f.tracking[label.TrackingNumber] = orderID
	return nil
}

func (f *fakeStore) GetInventory(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qty, ok := f.stock[productID]
	if !ok {
		return nil, nil
	}
	return &domain.InventoryRecord{ProductID: productID, StockQuantity: qty}, nil
}

func (f *fakeStore) PutInventory(ctx context.Context, rec domain.InventoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[rec.ProductID] = rec.StockQuantity
	return nil
}

func (f *fakeStore) ResolveProduct(ctx context.Context, priceRef string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.catalog[priceRef], nil
}

func cloneOrder(o *domain.Order) domain.Order {
	copied := *o
	copied.Items = append([]domain.LineItem(nil), o.Items...)
	if o.ShippingAddress != nil {
		addr := *o.ShippingAddress
		copied.ShippingAddress = &addr
	}
	return copied
}

// fakeDispatcher records dispatches.
type fakeDispatcher struct {
	mu      sync.Mutex
	created []string              // order ids
	changed []domain.StatusUpdate // in dispatch order
}

func (d *fakeDispatcher) OrderCreated(ctx context.Context, order *domain.Order) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.created = append(d.created, order.OrderID)
}

func (d *fakeDispatcher) StatusChanged(ctx context.Context, order *domain.Order, update domain.StatusUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changed = append(d.changed, update)
}

func (d *fakeDispatcher) createdCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.created)
}

func (d *fakeDispatcher) changedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.changed)
}

// fakeProducer counts lifecycle event publishes.
type fakeProducer struct {
	mu      sync.Mutex
	created int
	changed int
}

func (p *fakeProducer) PublishOrderCreated(order *domain.Order, requestID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created++
	return nil
}

func (p *fakeProducer) PublishStatusChanged(order *domain.Order, update domain.StatusUpdate, requestID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed++
	return nil
}

// fakeShipper returns a fixed label.
type fakeShipper struct {
	label domain.ShippingLabel
	calls int
	err   error
}

func (s *fakeShipper) Arrange(ctx context.Context, order *domain.Order) (domain.ShippingLabel, error) {
	s.calls++
	if s.err != nil {
		return domain.ShippingLabel{}, s.err
	}
	return s.label, nil
}
