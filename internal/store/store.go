// ABOUTME: Delivery log types and the DeliveryStore interface
// ABOUTME: Records each proactive send attempt for operators

package store

import (
	"context"
	"time"
)

// DeliveryKind is what was sent.
type DeliveryKind string

const (
	DeliveryKindText DeliveryKind = "text"
	DeliveryKindCard DeliveryKind = "card"
)

// DeliveryStatus is the outcome of a send attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// Delivery is one proactive send attempt.
type Delivery struct {
	ID             string         `json:"id"`              // UUID v4
	ConversationID string         `json:"conversation_id"` // target conversation
	Kind           DeliveryKind   `json:"kind"`
	Status         DeliveryStatus `json:"status"`
	ActivityID     string         `json:"activity_id,omitempty"` // id assigned by the connector
	Error          string         `json:"error,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// DeliveryFilter specifies filtering options for listing deliveries.
type DeliveryFilter struct {
	ConversationID string         // empty = any
	Status         DeliveryStatus // empty = any
	Since          *time.Time     // deliveries at or after this time
	Limit          int            // max results (default 100, max 1000)
}

// DeliveryStore is the delivery log.
type DeliveryStore interface {
	AppendDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, f DeliveryFilter) ([]Delivery, error)
	Close() error
}

var _ DeliveryStore = (*SQLiteStore)(nil)
