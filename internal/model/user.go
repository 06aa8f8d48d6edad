package model

import (
	"strings"
	"time"
)

// Roles carried in access tokens.
const (
	RoleOwner    = "OWNER"
	RoleCustomer = "CUSTOMER"
)

// User is an account that can sign in and place orders.  Owners may also
// create ticket types.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email, stored lower-case
	PasswordHash string    // users.password_hash (bcrypt)
	Role         string    // users.role
	CreatedAt    time.Time // users.created_at
}

// RefreshToken is a long-lived session credential.  Only the SHA-256 hash of
// the token is stored.
type RefreshToken struct {
	UserID    uint64
	Hash      string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Active reports whether the token can still be exchanged at now.
func (t RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
