package repository

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// FreeTicketIDs returns the ids of unclaimed tickets.  The result is a plain
// read and may be stale by the time the caller acts on it.
func (s *Store) FreeTicketIDs(ctx context.Context, ticketTypeID uint64) ([]uint64, error) {
	const q = `SELECT id FROM tickets WHERE ticket_type_id = ? AND order_id IS NULL ORDER BY id`
	return s.queryIDs(ctx, "select free tickets", q, ticketTypeID)
}

// Tickets returns every ticket of the type with its current owner.
func (s *Store) Tickets(ctx context.Context, ticketTypeID uint64) ([]model.Ticket, error) {
	const q = `SELECT id, ticket_type_id, COALESCE(order_id, '') FROM tickets WHERE ticket_type_id = ? ORDER BY id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, ticketTypeID)
	if err != nil {
		return nil, errors.Wrap(err, "select tickets")
	}
	defer rows.Close()
	out := []model.Ticket{}
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.TicketTypeID, &t.OrderID); err != nil {
			return nil, errors.Wrap(err, "scan ticket")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate tickets")
}

// LockFreeTickets row-locks up to limit free tickets.  Rows locked by other
// transactions are skipped rather than waited on.  Must run inside WithTx
// for the locks to outlive the statement.
func (s *Store) LockFreeTickets(ctx context.Context, ticketTypeID uint64, limit int) ([]uint64, error) {
	if limit < 1 {
		return nil, nil
	}
	const q = `SELECT id FROM tickets
		WHERE ticket_type_id = ? AND order_id IS NULL
		ORDER BY id
		LIMIT ?
		FOR UPDATE SKIP LOCKED`
	return s.queryIDs(ctx, "lock free tickets", q, ticketTypeID, limit)
}

// AssignTickets claims the tickets for the order.  The order_id IS NULL
// guard makes each row a compare-and-swap; the returned count is the number
// of rows actually claimed.
func (s *Store) AssignTickets(ctx context.Context, orderID string, ticketIDs []uint64) (int, error) {
	if len(ticketIDs) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ticketIDs)+1)
	args = append(args, orderID)
	for _, id := range ticketIDs {
		args = append(args, id)
	}
	q := `UPDATE tickets SET order_id = ? WHERE order_id IS NULL AND id IN (` + placeholders(len(ticketIDs)) + `)`
	res, err := s.conn(ctx).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "assign tickets")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "assign tickets rows affected")
	}
	return int(n), nil
}

func (s *Store) ReleaseTickets(ctx context.Context, ticketTypeID uint64, orderID string) (int, error) {
	const q = `UPDATE tickets SET order_id = NULL WHERE ticket_type_id = ? AND order_id = ?`
	res, err := s.conn(ctx).ExecContext(ctx, q, ticketTypeID, orderID)
	if err != nil {
		return 0, errors.Wrap(err, "release tickets")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "release tickets rows affected")
	}
	return int(n), nil
}

func (s *Store) queryIDs(ctx context.Context, op, q string, args ...any) ([]uint64, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	defer rows.Close()
	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, op)
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), op)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
