package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// ticketInsertBatch caps the number of rows per bulk INSERT so large
// capacities stay below max_allowed_packet.
const ticketInsertBatch = 1000

// CreateTicketType inserts a ticket type and populates its generated ID.
// Tickets are created separately with CreateTickets in the same transaction.
func (s *Store) CreateTicketType(ctx context.Context, tt *model.TicketType) error {
	if err := model.ValidateCapacity(tt.Capacity); err != nil {
		return err
	}
	const q = `INSERT INTO ticket_types (name, capacity, created_at) VALUES (?, ?, ?)`
	res, err := s.conn(ctx).ExecContext(ctx, q, tt.Name, tt.Capacity, tt.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert ticket type")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "ticket type id")
	}
	tt.ID = uint64(id)
	return nil
}

// CreateTickets bulk-inserts n free tickets for the ticket type.
func (s *Store) CreateTickets(ctx context.Context, ticketTypeID uint64, n int) error {
	for n > 0 {
		batch := n
		if batch > ticketInsertBatch {
			batch = ticketInsertBatch
		}
		query := `INSERT INTO tickets (ticket_type_id) VALUES `
		args := make([]interface{}, 0, batch)
		for i := 0; i < batch; i++ {
			if i > 0 {
				query += ","
			}
			query += "(?)"
			args = append(args, ticketTypeID)
		}
		if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
			if isForeignKeyViolation(err) {
				return model.ErrTicketTypeNotFound
			}
			return errors.Wrap(err, "insert tickets")
		}
		n -= batch
	}
	return nil
}

func (s *Store) GetTicketType(ctx context.Context, id uint64) (model.TicketType, error) {
	const q = `SELECT id, name, capacity, created_at FROM ticket_types WHERE id = ?`
	var tt model.TicketType
	err := s.conn(ctx).QueryRowContext(ctx, q, id).Scan(&tt.ID, &tt.Name, &tt.Capacity, &tt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TicketType{}, model.ErrTicketTypeNotFound
	}
	if err != nil {
		return model.TicketType{}, errors.Wrap(err, "select ticket type")
	}
	return tt, nil
}

func (s *Store) ListTicketTypes(ctx context.Context) ([]model.TicketType, error) {
	const q = `SELECT id, name, capacity, created_at FROM ticket_types ORDER BY id`
	rows, err := s.conn(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "list ticket types")
	}
	defer rows.Close()
	out := []model.TicketType{}
	for rows.Next() {
		var tt model.TicketType
		if err := rows.Scan(&tt.ID, &tt.Name, &tt.Capacity, &tt.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan ticket type")
		}
		out = append(out, tt)
	}
	return out, errors.Wrap(rows.Err(), "iterate ticket types")
}
