package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

type fatalHelper interface {
	Helper()
	Fatalf(format string, args ...any)
}

// checkPool verifies that ticket ownership and order status agree for every
// order placed against the ticket type.
func checkPool(t fatalHelper, f *fixture, tt model.TicketType, orderIDs []string) {
	t.Helper()
	ctx := context.Background()
	tickets, err := f.store.Tickets(ctx, tt.ID)
	if err != nil {
		t.Fatalf("tickets: %v", err)
	}
	if len(tickets) != tt.Capacity {
		t.Fatalf("expected %d tickets, got %d", tt.Capacity, len(tickets))
	}
	owned := map[string]int{}
	for _, tk := range tickets {
		if !tk.Free() {
			owned[tk.OrderID]++
		}
	}
	for _, id := range orderIDs {
		o, err := f.store.GetOrder(ctx, id)
		if err != nil {
			t.Fatalf("get order %s: %v", id, err)
		}
		want := 0
		if o.Status == model.OrderFulfilled {
			want = o.Quantity
		}
		if owned[id] != want || len(o.TicketIDs) != want {
			t.Fatalf("order %s is %s with quantity %d but owns %d tickets (%d listed)",
				id, o.Status, o.Quantity, owned[id], len(o.TicketIDs))
		}
		delete(owned, id)
	}
	if len(owned) != 0 {
		t.Fatalf("tickets owned by unknown orders: %v", owned)
	}
}

func TestBookingProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		capacity := rapid.IntRange(1, 20).Draw(rt, "capacity")
		tt, err := f.inventory.CreateTicketType(ctx, "prop", capacity)
		if err != nil {
			rt.Fatalf("create: %v", err)
		}

		var ids []string
		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, fmt.Sprintf("action%d", i)) {
			case 0, 1:
				q := rapid.IntRange(1, 8).Draw(rt, fmt.Sprintf("quantity%d", i))
				free, _ := f.inventory.FreeTickets(ctx, tt.ID)
				o, err := f.booking.Submit(ctx, 1, tt.ID, q)
				if err != nil {
					rt.Fatalf("submit: %v", err)
				}
				if (o.Status == model.OrderFulfilled) != (len(free) >= q) {
					rt.Fatalf("quantity %d with %d free ended %s", q, len(free), o.Status)
				}
				ids = append(ids, o.ID)
			case 2:
				if len(ids) == 0 {
					continue
				}
				id := rapid.SampledFrom(ids).Draw(rt, fmt.Sprintf("cancel%d", i))
				before, _ := f.store.GetOrder(ctx, id)
				_, err := f.booking.Cancel(ctx, id)
				after, _ := f.store.GetOrder(ctx, id)
				if err != nil {
					if after.Status != before.Status {
						rt.Fatalf("rejected cancel changed %s to %s", before.Status, after.Status)
					}
				} else if before.Status != model.OrderFulfilled || after.Status != model.OrderCancelled {
					rt.Fatalf("cancel moved %s to %s", before.Status, after.Status)
				}
			}
			f.clock.Advance(time.Duration(rapid.IntRange(0, 12).Draw(rt, fmt.Sprintf("minutes%d", i))) * time.Minute)
			checkPool(rt, f, tt, ids)
		}
	})
}

func TestAllocateIsIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		capacity := rapid.IntRange(1, 10).Draw(rt, "capacity")
		q := rapid.IntRange(1, 12).Draw(rt, "quantity")
		tt, _ := f.inventory.CreateTicketType(ctx, "idem", capacity)

		o, err := f.booking.Submit(ctx, 1, tt.ID, q)
		if err != nil {
			rt.Fatalf("submit: %v", err)
		}
		free, _ := f.inventory.FreeTickets(ctx, tt.ID)
		if _, err := f.booking.Allocate(ctx, o.ID); !errors.Is(err, model.ErrAlreadyProcessed) {
			rt.Fatalf("expected ErrAlreadyProcessed, got %v", err)
		}
		again, _ := f.inventory.FreeTickets(ctx, tt.ID)
		if len(again) != len(free) {
			rt.Fatalf("second allocate moved free count from %d to %d", len(free), len(again))
		}
		checkPool(rt, f, tt, []string{o.ID})
	})
}

func TestCancelRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		capacity := rapid.IntRange(1, 15).Draw(rt, "capacity")
		q := rapid.IntRange(1, capacity).Draw(rt, "quantity")
		tt, _ := f.inventory.CreateTicketType(ctx, "round", capacity)

		before, _ := f.inventory.FreeTickets(ctx, tt.ID)
		o, err := f.booking.Submit(ctx, 1, tt.ID, q)
		if err != nil || o.Status != model.OrderFulfilled {
			rt.Fatalf("submit: %v %s", err, o.Status)
		}
		elapsed := time.Duration(rapid.IntRange(0, 29*60+59).Draw(rt, "seconds")) * time.Second
		f.clock.Advance(elapsed)
		if _, err := f.booking.Cancel(ctx, o.ID); err != nil {
			rt.Fatalf("cancel after %s: %v", elapsed, err)
		}
		after, _ := f.inventory.FreeTickets(ctx, tt.ID)
		if fmt.Sprint(after) != fmt.Sprint(before) {
			rt.Fatalf("free tickets %v, expected %v", after, before)
		}
	})
}
