package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

func seed(t *testing.T, s *Store, capacity int) model.TicketType {
	t.Helper()
	tt := model.TicketType{Name: "general", Capacity: capacity}
	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		if err := s.CreateTicketType(ctx, &tt); err != nil {
			return err
		}
		return s.CreateTickets(ctx, tt.ID, capacity)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return tt
}

func newOrder(t *testing.T, s *Store, tt model.TicketType, quantity int) model.Order {
	t.Helper()
	o := model.Order{UserID: 1, TicketTypeID: tt.ID, Quantity: quantity}
	if err := s.CreateOrder(context.Background(), &o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func TestCreateTicketTypeRollsBack(t *testing.T) {
	t.Parallel()
	s := New()
	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		tt := model.TicketType{Capacity: 3}
		if err := s.CreateTicketType(ctx, &tt); err != nil {
			return err
		}
		if err := s.CreateTickets(ctx, tt.ID, 3); err != nil {
			return err
		}
		if _, err := s.GetTicketType(ctx, tt.ID); err != nil {
			t.Fatalf("ticket type should be visible inside its unit: %v", err)
		}
		if _, err := s.GetTicketType(context.Background(), tt.ID); !errors.Is(err, model.ErrTicketTypeNotFound) {
			t.Fatalf("ticket type leaked before commit: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	list, _ := s.ListTicketTypes(context.Background())
	if len(list) != 0 {
		t.Fatalf("expected no ticket types, got %d", len(list))
	}
}

func TestCreateTicketTypeRejectsBadCapacity(t *testing.T) {
	t.Parallel()
	s := New()
	tt := model.TicketType{Capacity: 0}
	if err := s.CreateTicketType(context.Background(), &tt); !errors.Is(err, model.ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
}

func TestPublishedTicketTypeDoesNotGrow(t *testing.T) {
	t.Parallel()
	s := New()
	tt := seed(t, s, 2)
	if err := s.CreateTickets(context.Background(), tt.ID, 1); err == nil {
		t.Fatalf("expected error adding tickets to a published type")
	}
	if err := s.CreateTickets(context.Background(), 42, 1); !errors.Is(err, model.ErrTicketTypeNotFound) {
		t.Fatalf("expected ErrTicketTypeNotFound, got %v", err)
	}
}

func TestLockFreeTicketsSkipsLockedTickets(t *testing.T) {
	t.Parallel()
	s := New()
	tt := seed(t, s, 5)

	held := make(chan []uint64)
	done := make(chan struct{})
	go func() {
		_ = s.WithTx(context.Background(), func(ctx context.Context) error {
			ids, err := s.LockFreeTickets(ctx, tt.ID, 3)
			if err != nil {
				return err
			}
			held <- ids
			<-done
			return nil
		})
	}()
	first := <-held

	var second []uint64
	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		var err error
		second, err = s.LockFreeTickets(ctx, tt.ID, 5)
		return err
	})
	close(done)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if len(first) != 3 || len(second) != 2 {
		t.Fatalf("expected 3 and 2 locked tickets, got %v and %v", first, second)
	}
	for _, a := range first {
		for _, b := range second {
			if a == b {
				t.Fatalf("ticket %d locked twice", a)
			}
		}
	}
}

func TestAssignTicketsOnlyClaimsFreeTickets(t *testing.T) {
	t.Parallel()
	s := New()
	tt := seed(t, s, 3)
	a := newOrder(t, s, tt, 2)
	b := newOrder(t, s, tt, 2)
	free, _ := s.FreeTicketIDs(context.Background(), tt.ID)

	n, err := s.AssignTickets(context.Background(), a.ID, free[:2])
	if err != nil || n != 2 {
		t.Fatalf("expected 2 claimed, got %d %v", n, err)
	}
	n, err = s.AssignTickets(context.Background(), b.ID, free[1:])
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the free ticket to be claimed, got %d", n)
	}

	tickets, _ := s.Tickets(context.Background(), tt.ID)
	owners := map[string]int{}
	for _, tk := range tickets {
		owners[tk.OrderID]++
	}
	if owners[a.ID] != 2 || owners[b.ID] != 1 {
		t.Fatalf("unexpected owners %v", owners)
	}
}

func TestStagedWritesInvisibleUntilCommit(t *testing.T) {
	t.Parallel()
	s := New()
	tt := seed(t, s, 2)
	o := newOrder(t, s, tt, 2)

	inside := make(chan struct{})
	resume := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		result <- s.WithTx(context.Background(), func(ctx context.Context) error {
			locked, err := s.GetOrderForUpdate(ctx, o.ID)
			if err != nil {
				return err
			}
			ids, err := s.LockFreeTickets(ctx, tt.ID, 2)
			if err != nil {
				return err
			}
			if _, err := s.AssignTickets(ctx, o.ID, ids); err != nil {
				return err
			}
			if err := locked.MarkFulfilled(ids); err != nil {
				return err
			}
			if err := s.UpdateOrderStatus(ctx, locked, model.OrderPending); err != nil {
				return err
			}
			close(inside)
			<-resume
			return nil
		})
	}()

	<-inside
	free, _ := s.FreeTicketIDs(context.Background(), tt.ID)
	got, _ := s.GetOrder(context.Background(), o.ID)
	if len(free) != 2 || got.Status != model.OrderPending || len(got.TicketIDs) != 0 {
		t.Fatalf("uncommitted claim visible: free=%v order=%+v", free, got)
	}
	close(resume)
	if err := <-result; err != nil {
		t.Fatalf("tx: %v", err)
	}

	free, _ = s.FreeTicketIDs(context.Background(), tt.ID)
	got, _ = s.GetOrder(context.Background(), o.ID)
	if len(free) != 0 || got.Status != model.OrderFulfilled || len(got.TicketIDs) != 2 {
		t.Fatalf("committed claim not visible: free=%v order=%+v", free, got)
	}
}

func TestUpdateOrderStatusGuardsTransition(t *testing.T) {
	t.Parallel()
	s := New()
	tt := seed(t, s, 1)
	o := newOrder(t, s, tt, 1)

	failed := o
	failed.Status = model.OrderFailed
	if err := s.UpdateOrderStatus(context.Background(), failed, model.OrderPending); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateOrderStatus(context.Background(), failed, model.OrderPending); !errors.Is(err, model.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestReleaseTicketsFreesOrder(t *testing.T) {
	t.Parallel()
	s := New()
	tt := seed(t, s, 4)
	o := newOrder(t, s, tt, 3)
	free, _ := s.FreeTicketIDs(context.Background(), tt.ID)
	if n, _ := s.AssignTickets(context.Background(), o.ID, free[:3]); n != 3 {
		t.Fatalf("expected 3 claimed, got %d", n)
	}

	n, err := s.ReleaseTickets(context.Background(), tt.ID, o.ID)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 released, got %d %v", n, err)
	}
	free, _ = s.FreeTicketIDs(context.Background(), tt.ID)
	got, _ := s.GetOrder(context.Background(), o.ID)
	if len(free) != 4 || len(got.TicketIDs) != 0 {
		t.Fatalf("release incomplete: free=%v order=%+v", free, got)
	}
}

func TestWithTxRollsBackOnCancelledContext(t *testing.T) {
	t.Parallel()
	s := New()
	tt := seed(t, s, 2)
	o := newOrder(t, s, tt, 2)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.WithTx(ctx, func(ctx context.Context) error {
		ids, err := s.LockFreeTickets(ctx, tt.ID, 2)
		if err != nil {
			return err
		}
		_, err = s.AssignTickets(ctx, o.ID, ids)
		cancel()
		return err
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	free, _ := s.FreeTicketIDs(context.Background(), tt.ID)
	if len(free) != 2 {
		t.Fatalf("expected rollback, %d free", len(free))
	}
}

func TestListOrdersByUserNewestFirst(t *testing.T) {
	t.Parallel()
	s := New()
	tt := seed(t, s, 1)
	base := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{base, base.Add(time.Minute)} {
		o := model.Order{UserID: 5, TicketTypeID: tt.ID, Quantity: 1, CreatedAt: at}
		if err := s.CreateOrder(context.Background(), &o); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	newOrder(t, s, tt, 1)

	list, err := s.ListOrdersByUser(context.Background(), 5)
	if err != nil || len(list) != 2 {
		t.Fatalf("unexpected list %v %v", list, err)
	}
	if !list[0].CreatedAt.After(list[1].CreatedAt) {
		t.Fatalf("expected newest first, got %v then %v", list[0].CreatedAt, list[1].CreatedAt)
	}
}
