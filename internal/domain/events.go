package domain

import (
	"strings"
	"time"
)

// PaymentCompleted is the canonical form of a payment-processor
// checkout-completed webhook after signature verification and decoding.
// CartJSON and AddressJSON are metadata blobs echoed back verbatim by the
// payment processor; the materializer decodes them. Keeping them raw here
// lets a metadata decode failure dead-letter the event instead of failing
// signature-stage normalization.
type PaymentCompleted struct {
	ExternalSessionID string
	AmountTotal       int64 // minor units
	CustomerEmail     string
	CustomerPhone     string
	UserID            string
	CartJSON          string
	AddressJSON       string
}

// RawLineItem is the cart snapshot carried through payment metadata. PriceRef
// is the processor-side price identifier used for best-effort catalog
// resolution; title/price/quantity are authoritative for the order record.
type RawLineItem struct {
	PriceRef  string `json:"price_ref"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// TrackingChanged is the canonical form of a carrier tracking webhook.
type TrackingChanged struct {
	TrackingNumber   string
	RawCarrierStatus string
	StatusDetails    string
	Location         string
	Timestamp        time.Time
}

// carrierStatusMap is the single vocabulary table translating carrier status
// codes to the internal enum. Every handler goes through MapCarrierStatus;
// the mapping is never re-derived elsewhere.
var carrierStatusMap = map[string]OrderStatus{
	"UNKNOWN":     OrderStatusPending,
	"PRE_TRANSIT": OrderStatusLabelCreated,
	"TRANSIT":     OrderStatusInTransit,
	"DELIVERED":   OrderStatusDelivered,
	"RETURNED":    OrderStatusFailed,
	"FAILURE":     OrderStatusFailed,
}

// MapCarrierStatus translates a carrier status code. Unrecognized codes are
// lower-cased and passed through (known=false) so new carrier vocabulary
// degrades to an operator-reviewable status instead of being dropped.
func MapCarrierStatus(raw string) (status OrderStatus, known bool) {
	if s, ok := carrierStatusMap[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return s, true
	}
	return OrderStatus(strings.ToLower(strings.TrimSpace(raw))), false
}

// StatusUpdate is the point-in-time tuple handed to the notification
// dispatcher on a real status change.
type StatusUpdate struct {
	Status      OrderStatus `json:"status"`
	Description string      `json:"description,omitempty"`
	Location    string      `json:"location,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}
