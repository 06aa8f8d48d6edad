package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/repository/memory"
)

func newAuth(t *testing.T, allowOwner bool) (*AuthService, *clock.Fixed) {
	t.Helper()
	// Access tokens are checked against the wall clock by the JWT parser.
	clk := clock.NewFixed(time.Now().UTC())
	return NewAuthService(memory.NewAccounts(), clk, AuthConfig{
		Secret:           "secret",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       time.Hour,
		BcryptCost:       bcrypt.MinCost,
		AllowOwnerSignup: allowOwner,
	}, zerolog.Nop()), clk
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	auth, _ := newAuth(t, false)
	ctx := context.Background()

	s, err := auth.Register(ctx, " Alice@Example.com ", "correct horse", model.RoleOwner)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if s.User.Email != "alice@example.com" || s.User.Role != model.RoleCustomer {
		t.Fatalf("unexpected user %+v", s.User)
	}
	if s.Access.Token == "" || s.Refresh.Raw == "" {
		t.Fatalf("expected tokens, got %+v", s)
	}
	if _, err := auth.Register(ctx, "alice@example.com", "another password", ""); !errors.Is(err, model.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, err := auth.Login(ctx, "ALICE@example.com", "correct horse"); err != nil {
		t.Fatalf("login: %v", err)
	}
	for _, tc := range []struct{ email, password string }{
		{"alice@example.com", "wrong password"},
		{"bob@example.com", "correct horse"},
	} {
		if _, err := auth.Login(ctx, tc.email, tc.password); !errors.Is(err, model.ErrInvalidCredentials) {
			t.Fatalf("login %s: expected ErrInvalidCredentials, got %v", tc.email, err)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	auth, _ := newAuth(t, true)
	ctx := context.Background()
	if _, err := auth.Register(ctx, "no-at-sign", "long enough", ""); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.Register(ctx, "a@b.c", "short", ""); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	s, err := auth.Register(ctx, "owner@b.c", "long enough", "owner")
	if err != nil || s.User.Role != model.RoleOwner {
		t.Fatalf("expected owner signup, got %+v %v", s.User, err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	t.Parallel()
	auth, clk := newAuth(t, false)
	ctx := context.Background()
	s, _ := auth.Register(ctx, "a@b.c", "long enough", "")

	next, err := auth.Refresh(ctx, s.Refresh.Raw)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.Refresh.Raw == s.Refresh.Raw || next.User.ID != s.User.ID {
		t.Fatalf("expected a rotated token for the same user")
	}
	if _, err := auth.Refresh(ctx, s.Refresh.Raw); !errors.Is(err, model.ErrInvalidRefreshToken) {
		t.Fatalf("reused token: expected ErrInvalidRefreshToken, got %v", err)
	}

	clk.Advance(2 * time.Hour)
	if _, err := auth.Refresh(ctx, next.Refresh.Raw); !errors.Is(err, model.ErrInvalidRefreshToken) {
		t.Fatalf("expired token: expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()
	auth, _ := newAuth(t, false)
	ctx := context.Background()
	first, _ := auth.Register(ctx, "a@b.c", "long enough", "")
	second, _ := auth.Login(ctx, "a@b.c", "long enough")
	third, _ := auth.Login(ctx, "a@b.c", "long enough")

	if err := auth.Logout(ctx, first.Refresh.Raw); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := auth.Logout(ctx, first.Refresh.Raw); !errors.Is(err, model.ErrInvalidRefreshToken) {
		t.Fatalf("second logout: expected ErrInvalidRefreshToken, got %v", err)
	}
	if _, err := auth.Refresh(ctx, second.Refresh.Raw); err != nil {
		t.Fatalf("other sessions must survive a single logout: %v", err)
	}

	if err := auth.LogoutAll(ctx, first.User.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if _, err := auth.Refresh(ctx, third.Refresh.Raw); !errors.Is(err, model.ErrInvalidRefreshToken) {
		t.Fatalf("expected every session revoked, got %v", err)
	}
	u, err := auth.Me(ctx, first.User.ID)
	if err != nil || u.Email != "a@b.c" {
		t.Fatalf("me: %+v %v", u, err)
	}
}
