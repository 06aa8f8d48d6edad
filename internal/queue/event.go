// Package queue defines the order events exchanged over RabbitMQ, the
// publisher used by the booking service and the consumer that appends each
// event to the order log.
package queue

import (
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Event types double as queue names on the default exchange.
const (
	EventOrderFulfilled = "order.fulfilled"
	EventOrderCancelled = "order.cancelled"
)

// EventTypes lists every queue the consumer listens on.
var EventTypes = []string{EventOrderFulfilled, EventOrderCancelled}

// OrderEvent is published after an order is fulfilled or cancelled.  It
// carries enough for downstream consumers to log or notify without querying
// the primary database.
type OrderEvent struct {
	Type         string   `json:"type"`
	OrderID      string   `json:"order_id"`
	UserID       uint64   `json:"user_id"`
	TicketTypeID uint64   `json:"ticket_type_id"`
	Quantity     int      `json:"quantity"`
	TicketIDs    []uint64 `json:"ticket_ids"`
	OccurredAt   string   `json:"occurred_at"`
}

// NewOrderEvent builds an event of the given type for o.
func NewOrderEvent(eventType string, o model.Order, at time.Time) OrderEvent {
	ids := o.TicketIDs
	if ids == nil {
		ids = []uint64{}
	}
	return OrderEvent{
		Type:         eventType,
		OrderID:      o.ID,
		UserID:       o.UserID,
		TicketTypeID: o.TicketTypeID,
		Quantity:     o.Quantity,
		TicketIDs:    ids,
		OccurredAt:   at.UTC().Format(time.RFC3339),
	}
}
