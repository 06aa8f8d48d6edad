package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Availability is a ticket type with a snapshot of its free ticket count.
type Availability struct {
	model.TicketType
	Available int
}

// InventoryService creates ticket types and reports free tickets.
type InventoryService struct {
	store Store
	clock clock.Clock
	log   zerolog.Logger
}

func NewInventoryService(store Store, clk clock.Clock, log zerolog.Logger) *InventoryService {
	return &InventoryService{store: store, clock: clk, log: log}
}

// CreateTicketType creates the ticket type and all of its tickets in one
// unit of work.
func (s *InventoryService) CreateTicketType(ctx context.Context, name string, capacity int) (model.TicketType, error) {
	if err := model.ValidateCapacity(capacity); err != nil {
		return model.TicketType{}, err
	}
	tt := model.TicketType{
		Name:      strings.TrimSpace(name),
		Capacity:  capacity,
		CreatedAt: s.clock.Now(),
	}
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateTicketType(ctx, &tt); err != nil {
			return err
		}
		return s.store.CreateTickets(ctx, tt.ID, capacity)
	})
	if err != nil {
		return model.TicketType{}, fmt.Errorf("create ticket type: %w", err)
	}
	s.log.Info().Uint64("ticket_type_id", tt.ID).Int("capacity", capacity).Msg("ticket type created")
	return tt, nil
}

func (s *InventoryService) ListTicketTypes(ctx context.Context) ([]model.TicketType, error) {
	return s.store.ListTicketTypes(ctx)
}

// FreeTickets returns a snapshot of free ticket ids.  Allocation
// re-validates every ticket it claims, so callers must not rely on it.
func (s *InventoryService) FreeTickets(ctx context.Context, ticketTypeID uint64) ([]uint64, error) {
	return s.store.FreeTicketIDs(ctx, ticketTypeID)
}

func (s *InventoryService) Availability(ctx context.Context, ticketTypeID uint64) (Availability, error) {
	tt, err := s.store.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return Availability{}, err
	}
	free, err := s.store.FreeTicketIDs(ctx, ticketTypeID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{TicketType: tt, Available: len(free)}, nil
}
