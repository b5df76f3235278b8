package events

import (
	"time"

	"github.com/shopfront/order-reconciler/internal/domain"
)

type OrderCreatedEvent struct {
	EventID   string            `json:"event_id"`
	OrderID   string            `json:"order_id"`
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id,omitempty"`
	Total     int64             `json:"total"`
	Items     []domain.LineItem `json:"items"`
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id"`
}

type StatusChangedEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
}

// DeadLetterEvent carries a webhook payload that can never succeed (bad
// metadata, unknown order past the retry window) out of the hot path. The
// full payload rides along so an operator can replay it manually.
type DeadLetterEvent struct {
	EventID   string    `json:"event_id"`
	Reason    string    `json:"reason"`
	Source    string    `json:"source"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}
