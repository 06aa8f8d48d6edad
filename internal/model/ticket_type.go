package model

import "time"

// TicketType is a category of tickets with a fixed capacity, such as one
// pricing tier of an event.  The capacity is set once when the type is
// created and the matching number of tickets is created in the same
// transaction.  It is never resized afterwards.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name of the tier.
//  Capacity  – total number of tickets belonging to the type.
//  CreatedAt – creation timestamp.
type TicketType struct {
	ID        uint64    // ticket_types.id
	Name      string    // ticket_types.name
	Capacity  int       // ticket_types.capacity
	CreatedAt time.Time // ticket_types.created_at
}

// ValidateCapacity rejects capacities below one.
func ValidateCapacity(capacity int) error {
	if capacity < 1 {
		return ErrInvalidCapacity
	}
	return nil
}
