package domain

import (
	"time"
)

type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "pending"
	OrderStatusPaid         OrderStatus = "paid"
	OrderStatusLabelCreated OrderStatus = "label_created"
	OrderStatusInTransit    OrderStatus = "in_transit"
	OrderStatusDelivered    OrderStatus = "delivered"
	OrderStatusFailed       OrderStatus = "failed"
)

// statusOrdinals defines forward progress along the happy path. failed is
// terminal and handled separately; statuses outside this table (carrier
// pass-through codes) get ordinal -1 and never overwrite a known status.
var statusOrdinals = map[OrderStatus]int{
	OrderStatusPending:      0,
	OrderStatusPaid:         1,
	OrderStatusLabelCreated: 2,
	OrderStatusInTransit:    3,
	OrderStatusDelivered:    4,
}

func (s OrderStatus) Ordinal() int {
	if ord, ok := statusOrdinals[s]; ok {
		return ord
	}
	return -1
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFailed
}

// Supersedes reports whether s represents forward progress over current.
// failed is accepted from any non-terminal state; known statuses need a
// strictly higher ordinal. Pass-through carrier codes (no ordinal) apply to
// any order not yet delivered, and any known status in turn supersedes them.
// Same-status deliveries are always no-ops.
func (s OrderStatus) Supersedes(current OrderStatus) bool {
	if current.Terminal() || s == current {
		return false
	}
	if s == OrderStatusFailed {
		return true
	}
	if s.Ordinal() < 0 {
		return current != OrderStatusDelivered
	}
	return s.Ordinal() > current.Ordinal()
}

// Order is the aggregate root. Line items, totals and the shipping address
// are snapshotted at materialization and never recomputed.
type Order struct {
	OrderID           string           `json:"order_id" dynamodbav:"order_id"`
	ExternalSessionID string           `json:"external_session_id" dynamodbav:"external_session_id"`
	UserID            string           `json:"user_id,omitempty" dynamodbav:"user_id,omitempty"`
	CustomerEmail     string           `json:"customer_email" dynamodbav:"customer_email"`
	CustomerPhone     string           `json:"customer_phone,omitempty" dynamodbav:"customer_phone,omitempty"`
	Items             []LineItem       `json:"items" dynamodbav:"items"`
	Subtotal          int64            `json:"subtotal" dynamodbav:"subtotal"`
	ShippingCost      int64            `json:"shipping_cost" dynamodbav:"shipping_cost"`
	Total             int64            `json:"total" dynamodbav:"total"`
	Status            OrderStatus      `json:"status" dynamodbav:"status"`
	ShippingAddress   *AddressSnapshot `json:"shipping_address,omitempty" dynamodbav:"shipping_address,omitempty"`
	TrackingNumber    string           `json:"tracking_number,omitempty" dynamodbav:"tracking_number,omitempty"`
	Carrier           string           `json:"carrier,omitempty" dynamodbav:"carrier,omitempty"`
	TrackingURL       string           `json:"tracking_url,omitempty" dynamodbav:"tracking_url,omitempty"`
	LabelURL          string           `json:"label_url,omitempty" dynamodbav:"label_url,omitempty"`
	CreatedAt         time.Time        `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" dynamodbav:"updated_at"`
}

// LineItem carries catalog snapshot data. ProductID is empty when catalog
// resolution failed at materialization time; such lines still count toward
// totals but drive no inventory decrement.
type LineItem struct {
	ProductID string `json:"product_id,omitempty" dynamodbav:"product_id,omitempty"`
	Title     string `json:"title" dynamodbav:"title"`
	UnitPrice int64  `json:"unit_price" dynamodbav:"unit_price"` // minor units
	Quantity  int    `json:"quantity" dynamodbav:"quantity"`
}

type AddressSnapshot struct {
	Name       string `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Line1      string `json:"line1" dynamodbav:"line1"`
	Line2      string `json:"line2,omitempty" dynamodbav:"line2,omitempty"`
	City       string `json:"city" dynamodbav:"city"`
	State      string `json:"state,omitempty" dynamodbav:"state,omitempty"`
	PostalCode string `json:"postal_code" dynamodbav:"postal_code"`
	Country    string `json:"country" dynamodbav:"country"`
}

// InventoryRecord is the per-product stock row. StockQuantity never goes
// negative; oversell during a webhook race clamps to zero with a warning.
type InventoryRecord struct {
	ProductID     string `json:"product_id" dynamodbav:"product_id"`
	StockQuantity int    `json:"stock_quantity" dynamodbav:"stock_quantity"`
}

// ShippingLabel is what the shipping collaborator returns. Stored verbatim.
type ShippingLabel struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
	TrackingURL    string `json:"tracking_url"`
	LabelURL       string `json:"label_url"`
}
