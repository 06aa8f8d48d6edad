package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

const userColumns = `id, email, password_hash, role, created_at`

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, created_at) VALUES (?, ?, ?, ?)`,
		model.NormalizeEmail(u.Email), u.PasswordHash, u.Role, u.CreatedAt)
	if isDuplicate(err) {
		return model.ErrEmailTaken
	}
	if err != nil {
		return errors.Wrap(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "user last insert id")
	}
	u.ID = uint64(id)
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, model.NormalizeEmail(email))
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id uint64) (model.User, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, errors.Wrap(err, "scan user")
	}
	return u, nil
}
