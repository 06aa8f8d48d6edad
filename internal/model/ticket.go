package model

// Ticket is one indivisible unit of inventory.  It belongs to exactly one
// ticket type for its whole lifetime.  OrderID is empty while the ticket is
// free and holds the owning order's id once claimed.
//
// Fields:
//  ID           – primary key identifier.
//  TicketTypeID – owning ticket type (immutable).
//  OrderID      – owning order, empty when free.
type Ticket struct {
	ID           uint64 // tickets.id
	TicketTypeID uint64 // tickets.ticket_type_id
	OrderID      string // tickets.order_id (nullable)
}

// Free reports whether the ticket is unclaimed.
func (t Ticket) Free() bool { return t.OrderID == "" }
