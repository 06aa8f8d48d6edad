package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

const orderColumns = `id, user_id, ticket_type_id, quantity, status, created_at, cancelled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (model.Order, error) {
	var (
		o           model.Order
		status      string
		cancelledAt sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.TicketTypeID, &o.Quantity, &status, &o.CreatedAt, &cancelledAt); err != nil {
		return model.Order{}, err
	}
	o.Status = model.OrderStatus(status)
	if cancelledAt.Valid {
		at := cancelledAt.Time
		o.CancelledAt = &at
	}
	return o, nil
}

// CreateOrder inserts a new order.  An unknown ticket type yields
// ErrTicketTypeNotFound.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	const q = `INSERT INTO orders (id, user_id, ticket_type_id, quantity, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.conn(ctx).ExecContext(ctx, q, o.ID, o.UserID, o.TicketTypeID, o.Quantity, string(o.Status), o.CreatedAt)
	switch {
	case err == nil:
		return nil
	case isForeignKeyViolation(err):
		return model.ErrTicketTypeNotFound
	case isDuplicate(err):
		return errors.Wrapf(err, "order %s already exists", o.ID)
	}
	return errors.Wrap(err, "insert order")
}

func (s *Store) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

// GetOrderForUpdate reads the order and locks its row until the enclosing
// transaction ends.
func (s *Store) GetOrderForUpdate(ctx context.Context, id string) (model.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
}

func (s *Store) getOrder(ctx context.Context, q, id string) (model.Order, error) {
	o, err := scanOrder(s.conn(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, model.ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, errors.Wrap(err, "select order")
	}
	ids, err := s.queryIDs(ctx, "select order tickets", `SELECT id FROM tickets WHERE order_id = ? ORDER BY id`, id)
	if err != nil {
		return model.Order{}, err
	}
	if len(ids) > 0 {
		o.TicketIDs = ids
	}
	return o, nil
}

// UpdateOrderStatus writes the new status guarded by the expected previous
// one.  Zero affected rows means another transaction moved the order first.
func (s *Store) UpdateOrderStatus(ctx context.Context, o model.Order, from model.OrderStatus) error {
	var cancelledAt sql.NullTime
	if o.CancelledAt != nil {
		cancelledAt = sql.NullTime{Time: *o.CancelledAt, Valid: true}
	}
	const q = `UPDATE orders SET status = ?, cancelled_at = ? WHERE id = ? AND status = ?`
	res, err := s.conn(ctx).ExecContext(ctx, q, string(o.Status), cancelledAt, o.ID, string(from))
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update order status rows affected")
	}
	if n == 0 {
		if _, err := s.GetOrder(ctx, o.ID); err != nil {
			return err
		}
		return model.ErrAlreadyProcessed
	}
	return nil
}

// ListOrdersByUser returns the user's orders, newest first, with the tickets
// each fulfilled order owns.
func (s *Store) ListOrdersByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ? ORDER BY created_at DESC, id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()
	out := []model.Order{}
	index := map[string]int{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		index[o.ID] = len(out)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	if len(out) == 0 {
		return out, nil
	}

	const tq = `SELECT t.id, t.order_id FROM tickets t
		JOIN orders o ON o.id = t.order_id
		WHERE o.user_id = ?
		ORDER BY t.id`
	trows, err := s.conn(ctx).QueryContext(ctx, tq, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list order tickets")
	}
	defer trows.Close()
	for trows.Next() {
		var (
			id      uint64
			orderID string
		)
		if err := trows.Scan(&id, &orderID); err != nil {
			return nil, errors.Wrap(err, "scan order ticket")
		}
		if i, ok := index[orderID]; ok {
			out[i].TicketIDs = append(out[i].TicketIDs, id)
		}
	}
	return out, errors.Wrap(trows.Err(), "iterate order tickets")
}
