package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Refresh tokens live in refresh_tokens keyed by the SHA-256 hash of the
// raw token.

func (s *Store) StoreRefreshToken(ctx context.Context, t model.RefreshToken) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
		t.Hash, t.UserID, t.ExpiresAt)
	return errors.Wrap(err, "insert refresh token")
}

func (s *Store) GetRefreshToken(ctx context.Context, hash string) (model.RefreshToken, error) {
	var (
		t       = model.RefreshToken{Hash: hash}
		revoked sql.NullTime
	)
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ?`, hash).
		Scan(&t.UserID, &t.ExpiresAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshToken{}, model.ErrInvalidRefreshToken
	}
	if err != nil {
		return model.RefreshToken{}, errors.Wrap(err, "select refresh token")
	}
	if revoked.Valid {
		at := revoked.Time
		t.RevokedAt = &at
	}
	return t, nil
}

// RevokeRefreshToken only touches a token that is still unrevoked, so two
// concurrent refreshes with the same token cannot both succeed.
func (s *Store) RevokeRefreshToken(ctx context.Context, hash string, at time.Time) (bool, error) {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`, at, hash)
	if err != nil {
		return false, errors.Wrap(err, "revoke refresh token")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "revoke refresh token rows affected")
	}
	return n == 1, nil
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID uint64, at time.Time) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`, at, userID)
	return errors.Wrap(err, "revoke user refresh tokens")
}
