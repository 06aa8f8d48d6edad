package model

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderFulfilled OrderStatus = "FULFILLED"
	OrderFailed    OrderStatus = "FAILED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order records one purchase attempt for a number of tickets of a single
// ticket type.  A fulfilled order owns exactly Quantity tickets; in every
// other state it owns none.
//
// Fields:
//  ID           – uuid assigned when the order is submitted.
//  UserID       – requester.
//  TicketTypeID – ticket type being purchased.
//  Quantity     – number of tickets requested, fixed at creation.
//  Status       – PENDING, FULFILLED, FAILED or CANCELLED.
//  TicketIDs    – tickets owned by the order (only when FULFILLED).
//  CreatedAt    – creation timestamp, the start of the cancellation window.
//  CancelledAt  – set when the order is cancelled.
type Order struct {
	ID           string      // orders.id
	UserID       uint64      // orders.user_id
	TicketTypeID uint64      // orders.ticket_type_id
	Quantity     int         // orders.quantity
	Status       OrderStatus // orders.status
	TicketIDs    []uint64    // tickets.id WHERE order_id = orders.id
	CreatedAt    time.Time   // orders.created_at
	CancelledAt  *time.Time  // orders.cancelled_at (nullable)
}

// MarkFulfilled moves a pending order to FULFILLED with the claimed tickets.
func (o *Order) MarkFulfilled(ticketIDs []uint64) error {
	if o.Status != OrderPending {
		return ErrAlreadyProcessed
	}
	o.Status = OrderFulfilled
	o.TicketIDs = ticketIDs
	return nil
}

// MarkFailed moves a pending order to FAILED.  A failed order owns nothing.
func (o *Order) MarkFailed() error {
	if o.Status != OrderPending {
		return ErrAlreadyProcessed
	}
	o.Status = OrderFailed
	o.TicketIDs = nil
	return nil
}

// CheckCancellable runs the cancellation checks in order: already
// cancelled, not fulfilled, then the window measured from CreatedAt.
func (o *Order) CheckCancellable(now time.Time, window time.Duration) error {
	switch {
	case o.Status == OrderCancelled:
		return ErrAlreadyCancelled
	case o.Status != OrderFulfilled:
		return ErrNotFulfilled
	case now.Sub(o.CreatedAt) >= window:
		return ErrWindowExpired
	}
	return nil
}

// MarkCancelled moves a fulfilled order to CANCELLED and drops its tickets.
func (o *Order) MarkCancelled(at time.Time) error {
	if o.Status == OrderCancelled {
		return ErrAlreadyCancelled
	}
	if o.Status != OrderFulfilled {
		return ErrNotFulfilled
	}
	o.Status = OrderCancelled
	o.TicketIDs = nil
	o.CancelledAt = &at
	return nil
}
