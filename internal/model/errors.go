package model

import "errors"

// Sentinel errors shared by the services, stores and handlers.
var (
	// ErrInvalidCapacity is returned when a ticket type is created with
	// fewer than one ticket.
	ErrInvalidCapacity = errors.New("capacity must be at least 1")
	// ErrInvalidQuantity is returned when an order asks for fewer than one ticket.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrAlreadyProcessed is returned when allocation runs on an order that
	// is no longer pending.
	ErrAlreadyProcessed = errors.New("order already processed")
	ErrAlreadyCancelled = errors.New("order already cancelled")
	// ErrNotFulfilled means the order cannot be cancelled yet; callers may retry later.
	ErrNotFulfilled = errors.New("order not fulfilled yet, try again later")
	// ErrWindowExpired means the cancellation window has passed.
	ErrWindowExpired = errors.New("orders can only be cancelled within the cancellation window")

	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrOrderNotFound      = errors.New("order not found")

	ErrEmailTaken   = errors.New("email already registered")
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidRefreshToken covers unknown, expired and revoked tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)
