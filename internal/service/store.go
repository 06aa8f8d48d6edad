package service

import (
	"context"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Store is the persistence collaborator used by the services.  Both the
// MySQL repository and the in-memory store implement it.
//
// Mutating calls made with a context returned by WithTx join that unit of
// work; otherwise each call commits on its own.  Row locks taken by
// LockFreeTickets and GetOrderForUpdate are held until the unit of work
// ends.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateTicketType(ctx context.Context, tt *model.TicketType) error
	CreateTickets(ctx context.Context, ticketTypeID uint64, n int) error
	GetTicketType(ctx context.Context, id uint64) (model.TicketType, error)
	ListTicketTypes(ctx context.Context) ([]model.TicketType, error)
	FreeTicketIDs(ctx context.Context, ticketTypeID uint64) ([]uint64, error)

	// LockFreeTickets locks up to limit free tickets of the type, skipping
	// tickets that another unit of work has already locked.
	LockFreeTickets(ctx context.Context, ticketTypeID uint64, limit int) ([]uint64, error)
	// AssignTickets sets the owner of each ticket that is still free and
	// returns how many were claimed.
	AssignTickets(ctx context.Context, orderID string, ticketIDs []uint64) (int, error)
	// ReleaseTickets frees every ticket owned by the order and returns the count.
	ReleaseTickets(ctx context.Context, ticketTypeID uint64, orderID string) (int, error)

	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (model.Order, error)
	GetOrderForUpdate(ctx context.Context, id string) (model.Order, error)
	// UpdateOrderStatus persists o.Status and o.CancelledAt only if the
	// stored status still equals from.  A mismatch yields ErrAlreadyProcessed.
	UpdateOrderStatus(ctx context.Context, o model.Order, from model.OrderStatus) error
	ListOrdersByUser(ctx context.Context, userID uint64) ([]model.Order, error)
}

// AccountStore persists users and their refresh tokens.
type AccountStore interface {
	// CreateUser assigns u.ID.  A duplicate email yields ErrEmailTaken.
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, id uint64) (model.User, error)

	StoreRefreshToken(ctx context.Context, t model.RefreshToken) error
	// GetRefreshToken returns ErrInvalidRefreshToken for unknown hashes.
	GetRefreshToken(ctx context.Context, hash string) (model.RefreshToken, error)
	// RevokeRefreshToken reports whether an active token was revoked.
	RevokeRefreshToken(ctx context.Context, hash string, at time.Time) (bool, error)
	RevokeUserRefreshTokens(ctx context.Context, userID uint64, at time.Time) error
}
