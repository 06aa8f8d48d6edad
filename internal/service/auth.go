package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/utils"
)

// ErrWeakPassword rejects passwords shorter than MinPasswordLength.
var ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

const MinPasswordLength = 8

// AuthConfig holds token lifetimes and hashing cost for AuthService.
type AuthConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
	// AllowOwnerSignup lets Register create OWNER accounts.  Otherwise
	// every new account is a CUSTOMER.
	AllowOwnerSignup bool
}

// Session is what a successful sign-in returns.
type Session struct {
	User    model.User
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// AuthService issues access tokens for registered users.  Access tokens
// are short-lived JWTs; refresh tokens are opaque, stored hashed and rotated
// on every use.
type AuthService struct {
	accounts AccountStore
	clock    clock.Clock
	cfg      AuthConfig
	log      zerolog.Logger
}

func NewAuthService(accounts AccountStore, clk clock.Clock, cfg AuthConfig, log zerolog.Logger) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{accounts: accounts, clock: clk, cfg: cfg, log: log}
}

// Register creates the account and signs it in.
func (s *AuthService) Register(ctx context.Context, email, password, role string) (Session, error) {
	email = model.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return Session{}, model.ErrInvalidCredentials
	}
	if len(password) < MinPasswordLength {
		return Session{}, ErrWeakPassword
	}
	role = strings.ToUpper(strings.TrimSpace(role))
	if role != model.RoleOwner || !s.cfg.AllowOwnerSignup {
		role = model.RoleCustomer
	}
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	u := model.User{Email: email, PasswordHash: hash, Role: role, CreatedAt: s.clock.Now()}
	if err := s.accounts.CreateUser(ctx, &u); err != nil {
		return Session{}, err
	}
	s.log.Info().Uint64("user_id", u.ID).Str("role", role).Msg("user registered")
	return s.issue(ctx, u)
}

// Login checks the password and starts a new session.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.accounts.GetUserByEmail(ctx, model.NormalizeEmail(email))
	if errors.Is(err, model.ErrUserNotFound) {
		return Session{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return Session{}, model.ErrInvalidCredentials
	}
	return s.issue(ctx, u)
}

// Refresh exchanges a refresh token for a new session.  The presented token
// is revoked; a token that was already revoked cannot be used twice.
func (s *AuthService) Refresh(ctx context.Context, raw string) (Session, error) {
	hash := utils.HashRefreshToken(strings.TrimSpace(raw))
	now := s.clock.Now()
	t, err := s.accounts.GetRefreshToken(ctx, hash)
	if err != nil {
		return Session{}, err
	}
	if !t.Active(now) {
		return Session{}, model.ErrInvalidRefreshToken
	}
	revoked, err := s.accounts.RevokeRefreshToken(ctx, hash, now)
	if err != nil {
		return Session{}, err
	}
	if !revoked {
		return Session{}, model.ErrInvalidRefreshToken
	}
	u, err := s.accounts.GetUserByID(ctx, t.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		return Session{}, model.ErrInvalidRefreshToken
	}
	if err != nil {
		return Session{}, err
	}
	return s.issue(ctx, u)
}

// Logout revokes one refresh token.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	revoked, err := s.accounts.RevokeRefreshToken(ctx, utils.HashRefreshToken(strings.TrimSpace(raw)), s.clock.Now())
	if err != nil {
		return err
	}
	if !revoked {
		return model.ErrInvalidRefreshToken
	}
	return nil
}

// LogoutAll revokes every refresh token of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uint64) error {
	return s.accounts.RevokeUserRefreshTokens(ctx, userID, s.clock.Now())
}

func (s *AuthService) Me(ctx context.Context, userID uint64) (model.User, error) {
	return s.accounts.GetUserByID(ctx, userID)
}

func (s *AuthService) issue(ctx context.Context, u model.User) (Session, error) {
	now := s.clock.Now()
	access, err := utils.NewAccessToken(s.cfg.Secret, u.ID, u.Role, s.cfg.AccessTTL, now)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTL, now)
	if err != nil {
		return Session{}, fmt.Errorf("issue refresh token: %w", err)
	}
	err = s.accounts.StoreRefreshToken(ctx, model.RefreshToken{
		UserID:    u.ID,
		Hash:      utils.HashRefreshToken(refresh.Raw),
		ExpiresAt: refresh.Exp,
	})
	if err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Session{User: u, Access: access, Refresh: refresh}, nil
}
