package memory

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Accounts keeps users and refresh tokens in memory.  Account writes are
// single-row, so a mutex is enough.
type Accounts struct {
	mu      sync.RWMutex
	nextID  uint64
	users   map[uint64]model.User
	byEmail map[string]uint64
	tokens  map[string]model.RefreshToken
}

func NewAccounts() *Accounts {
	return &Accounts{
		users:   make(map[uint64]model.User),
		byEmail: make(map[string]uint64),
		tokens:  make(map[string]model.RefreshToken),
	}
}

func (a *Accounts) CreateUser(_ context.Context, u *model.User) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	email := model.NormalizeEmail(u.Email)
	if _, taken := a.byEmail[email]; taken {
		return model.ErrEmailTaken
	}
	a.nextID++
	u.ID = a.nextID
	u.Email = email
	a.users[u.ID] = *u
	a.byEmail[email] = u.ID
	return nil
}

func (a *Accounts) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return a.users[id], nil
}

func (a *Accounts) GetUserByID(_ context.Context, id uint64) (model.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	u, ok := a.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (a *Accounts) StoreRefreshToken(_ context.Context, t model.RefreshToken) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	t.RevokedAt = nil
	a.tokens[t.Hash] = t
	return nil
}

func (a *Accounts) GetRefreshToken(_ context.Context, hash string) (model.RefreshToken, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tokens[hash]
	if !ok {
		return model.RefreshToken{}, model.ErrInvalidRefreshToken
	}
	return t, nil
}

func (a *Accounts) RevokeRefreshToken(_ context.Context, hash string, at time.Time) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tokens[hash]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	a.tokens[hash] = t
	return true, nil
}

func (a *Accounts) RevokeUserRefreshTokens(_ context.Context, userID uint64, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for hash, t := range a.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &at
			a.tokens[hash] = t
		}
	}
	return nil
}
