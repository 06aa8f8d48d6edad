// Package memory is an in-process implementation of the booking store.
//
// Every ticket and order carries its own row lock.  Allocation takes ticket
// locks with a non-blocking try and skips tickets another unit of work is
// holding, which is the in-memory equivalent of SELECT ... FOR UPDATE SKIP
// LOCKED.  Writes are staged on the unit of work and published at commit
// under a per-ticket-type latch, so readers never observe a half-applied
// claim or release.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

type rowLock chan struct{}

func newRowLock() rowLock { return make(rowLock, 1) }

func (l rowLock) lock(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l rowLock) tryLock() bool {
	select {
	case l <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l rowLock) unlock() { <-l }

type ticket struct {
	id    uint64
	pool  *pool
	row   rowLock
	owner atomic.Pointer[string]
}

func (t *ticket) ownerID() string {
	if p := t.owner.Load(); p != nil {
		return *p
	}
	return ""
}

type pool struct {
	tt      model.TicketType
	tickets []*ticket
	// latch orders commits against snapshot reads of this pool and its orders.
	latch sync.RWMutex
}

type orderRow struct {
	row    rowLock
	id     string
	userID uint64
	typeID uint64
	order  model.Order
}

// Store keeps ticket types, tickets and orders in memory.
type Store struct {
	mu      sync.RWMutex
	pools   map[uint64]*pool
	typeIDs []uint64
	tickets map[uint64]*ticket
	orders  map[string]*orderRow

	nextType   atomic.Uint64
	nextTicket atomic.Uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		pools:   make(map[uint64]*pool),
		tickets: make(map[uint64]*ticket),
		orders:  make(map[string]*orderRow),
	}
}

type txKey struct{}

// unit is one unit of work.  It is owned by a single goroutine.
type unit struct {
	s *Store

	heldTickets []*ticket
	held        map[*ticket]struct{}
	owners      map[*ticket]string

	heldOrders []*orderRow
	locked     map[*orderRow]struct{}
	staged     map[*orderRow]model.Order

	newPools  []*pool
	newOrders map[string]*orderRow
}

func (s *Store) begin() *unit {
	return &unit{
		s:         s,
		held:      make(map[*ticket]struct{}),
		owners:    make(map[*ticket]string),
		locked:    make(map[*orderRow]struct{}),
		staged:    make(map[*orderRow]model.Order),
		newOrders: make(map[string]*orderRow),
	}
}

// WithTx runs fn inside a unit of work.  Nested calls join the outer unit.
// Staged writes are published only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*unit); ok {
		return fn(ctx)
	}
	u := s.begin()
	defer func() {
		if p := recover(); p != nil {
			u.release()
			panic(p)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, u)); err != nil {
		u.release()
		return err
	}
	if err := ctx.Err(); err != nil {
		u.release()
		return err
	}
	u.commit()
	return nil
}

func (s *Store) run(ctx context.Context, fn func(ctx context.Context, u *unit) error) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx, ctx.Value(txKey{}).(*unit))
	})
}

func unitFrom(ctx context.Context) *unit {
	u, _ := ctx.Value(txKey{}).(*unit)
	return u
}

func (u *unit) holdTicket(t *ticket) {
	u.held[t] = struct{}{}
	u.heldTickets = append(u.heldTickets, t)
}

func (u *unit) pool(id uint64) *pool {
	for _, p := range u.newPools {
		if p.tt.ID == id {
			return p
		}
	}
	return u.s.lookupPool(id)
}

func (u *unit) ticket(id uint64) *ticket {
	for _, p := range u.newPools {
		for _, t := range p.tickets {
			if t.id == id {
				return t
			}
		}
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	return u.s.tickets[id]
}

func (u *unit) orderRow(id string) *orderRow {
	if row, ok := u.newOrders[id]; ok {
		return row
	}
	return u.s.lookupOrder(id)
}

func (u *unit) lockOrder(ctx context.Context, row *orderRow) error {
	if _, ok := u.locked[row]; ok {
		return nil
	}
	if _, fresh := u.newOrders[row.id]; fresh {
		u.locked[row] = struct{}{}
		return nil
	}
	if err := row.row.lock(ctx); err != nil {
		return err
	}
	u.locked[row] = struct{}{}
	u.heldOrders = append(u.heldOrders, row)
	return nil
}

// current returns the order as this unit sees it.
func (u *unit) current(row *orderRow) model.Order {
	if o, ok := u.staged[row]; ok {
		return cloneOrder(o)
	}
	return u.s.readOrder(row)
}

func (u *unit) commit() {
	s := u.s
	touched := make(map[*pool]struct{})
	for t := range u.owners {
		touched[t.pool] = struct{}{}
	}
	for row := range u.staged {
		if p := u.pool(row.typeID); p != nil {
			touched[p] = struct{}{}
		}
	}
	pools := make([]*pool, 0, len(touched))
	for p := range touched {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].tt.ID < pools[j].tt.ID })
	for _, p := range pools {
		p.latch.Lock()
	}

	for row, o := range u.staged {
		ids := row.order.TicketIDs
		row.order = o
		row.order.TicketIDs = ids
	}
	changed := make(map[*orderRow]struct{})
	for t, owner := range u.owners {
		if prev := t.ownerID(); prev != "" {
			if row := u.orderRow(prev); row != nil {
				row.order.TicketIDs = removeID(row.order.TicketIDs, t.id)
				changed[row] = struct{}{}
			}
		}
		if owner == "" {
			t.owner.Store(nil)
			continue
		}
		v := owner
		t.owner.Store(&v)
		if row := u.orderRow(owner); row != nil {
			row.order.TicketIDs = append(row.order.TicketIDs, t.id)
			changed[row] = struct{}{}
		}
	}
	for row := range changed {
		sort.Slice(row.order.TicketIDs, func(i, j int) bool { return row.order.TicketIDs[i] < row.order.TicketIDs[j] })
	}

	if len(u.newPools) > 0 || len(u.newOrders) > 0 {
		s.mu.Lock()
		for _, p := range u.newPools {
			s.pools[p.tt.ID] = p
			s.typeIDs = append(s.typeIDs, p.tt.ID)
			for _, t := range p.tickets {
				s.tickets[t.id] = t
			}
		}
		for id, row := range u.newOrders {
			s.orders[id] = row
		}
		s.mu.Unlock()
	}

	for i := len(pools) - 1; i >= 0; i-- {
		pools[i].latch.Unlock()
	}
	u.release()
}

func (u *unit) release() {
	for _, t := range u.heldTickets {
		t.row.unlock()
	}
	for _, row := range u.heldOrders {
		row.row.unlock()
	}
	u.heldTickets, u.heldOrders = nil, nil
	u.held = make(map[*ticket]struct{})
	u.locked = make(map[*orderRow]struct{})
}

func (s *Store) lookupPool(id uint64) *pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools[id]
}

func (s *Store) lookupOrder(id string) *orderRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders[id]
}

func (s *Store) readOrder(row *orderRow) model.Order {
	if p := s.lookupPool(row.typeID); p != nil {
		p.latch.RLock()
		defer p.latch.RUnlock()
	}
	return cloneOrder(row.order)
}

// CreateTicketType assigns an id to tt and stages it.  It becomes visible
// together with its tickets when the unit of work commits.
func (s *Store) CreateTicketType(ctx context.Context, tt *model.TicketType) error {
	if err := model.ValidateCapacity(tt.Capacity); err != nil {
		return err
	}
	return s.run(ctx, func(_ context.Context, u *unit) error {
		tt.ID = s.nextType.Add(1)
		if tt.CreatedAt.IsZero() {
			tt.CreatedAt = time.Now().UTC()
		}
		u.newPools = append(u.newPools, &pool{tt: *tt})
		return nil
	})
}

// CreateTickets adds n free tickets to a ticket type created in the same
// unit of work.  Published ticket types never grow.
func (s *Store) CreateTickets(ctx context.Context, ticketTypeID uint64, n int) error {
	return s.run(ctx, func(_ context.Context, u *unit) error {
		var p *pool
		for _, np := range u.newPools {
			if np.tt.ID == ticketTypeID {
				p = np
			}
		}
		if p == nil {
			if s.lookupPool(ticketTypeID) != nil {
				return fmt.Errorf("memory: tickets of ticket type %d are fixed at creation", ticketTypeID)
			}
			return model.ErrTicketTypeNotFound
		}
		for i := 0; i < n; i++ {
			p.tickets = append(p.tickets, &ticket{id: s.nextTicket.Add(1), pool: p, row: newRowLock()})
		}
		return nil
	})
}

func (s *Store) GetTicketType(ctx context.Context, id uint64) (model.TicketType, error) {
	var p *pool
	if u := unitFrom(ctx); u != nil {
		p = u.pool(id)
	} else {
		p = s.lookupPool(id)
	}
	if p == nil {
		return model.TicketType{}, model.ErrTicketTypeNotFound
	}
	return p.tt, nil
}

func (s *Store) ListTicketTypes(ctx context.Context) ([]model.TicketType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TicketType, 0, len(s.typeIDs))
	for _, id := range s.typeIDs {
		out = append(out, s.pools[id].tt)
	}
	return out, nil
}

// FreeTicketIDs returns a committed snapshot of the free tickets.
func (s *Store) FreeTicketIDs(ctx context.Context, ticketTypeID uint64) ([]uint64, error) {
	p := s.lookupPool(ticketTypeID)
	if p == nil {
		return nil, model.ErrTicketTypeNotFound
	}
	p.latch.RLock()
	defer p.latch.RUnlock()
	ids := []uint64{}
	for _, t := range p.tickets {
		if t.owner.Load() == nil {
			ids = append(ids, t.id)
		}
	}
	return ids, nil
}

// Tickets returns a committed snapshot of every ticket of the type.
func (s *Store) Tickets(ctx context.Context, ticketTypeID uint64) ([]model.Ticket, error) {
	p := s.lookupPool(ticketTypeID)
	if p == nil {
		return nil, model.ErrTicketTypeNotFound
	}
	p.latch.RLock()
	defer p.latch.RUnlock()
	out := make([]model.Ticket, 0, len(p.tickets))
	for _, t := range p.tickets {
		out = append(out, model.Ticket{ID: t.id, TicketTypeID: p.tt.ID, OrderID: t.ownerID()})
	}
	return out, nil
}

func (s *Store) LockFreeTickets(ctx context.Context, ticketTypeID uint64, limit int) ([]uint64, error) {
	var ids []uint64
	err := s.run(ctx, func(_ context.Context, u *unit) error {
		p := u.pool(ticketTypeID)
		if p == nil {
			return model.ErrTicketTypeNotFound
		}
		for _, t := range p.tickets {
			if len(ids) >= limit {
				break
			}
			if _, mine := u.held[t]; mine {
				continue
			}
			if t.owner.Load() != nil || !t.row.tryLock() {
				continue
			}
			if t.owner.Load() != nil {
				t.row.unlock()
				continue
			}
			u.holdTicket(t)
			ids = append(ids, t.id)
		}
		return nil
	})
	return ids, err
}

func (s *Store) AssignTickets(ctx context.Context, orderID string, ticketIDs []uint64) (int, error) {
	claimed := 0
	err := s.run(ctx, func(_ context.Context, u *unit) error {
		for _, id := range ticketIDs {
			t := u.ticket(id)
			if t == nil {
				continue
			}
			if _, mine := u.held[t]; !mine {
				if !t.row.tryLock() {
					continue
				}
				u.holdTicket(t)
			}
			if t.owner.Load() != nil {
				continue
			}
			if cur, ok := u.owners[t]; ok && cur != "" {
				continue
			}
			u.owners[t] = orderID
			claimed++
		}
		return nil
	})
	return claimed, err
}

func (s *Store) ReleaseTickets(ctx context.Context, ticketTypeID uint64, orderID string) (int, error) {
	released := 0
	err := s.run(ctx, func(ctx context.Context, u *unit) error {
		p := u.pool(ticketTypeID)
		if p == nil {
			return model.ErrTicketTypeNotFound
		}
		for _, t := range p.tickets {
			if t.ownerID() != orderID {
				continue
			}
			if _, mine := u.held[t]; !mine {
				if err := t.row.lock(ctx); err != nil {
					return err
				}
				u.holdTicket(t)
				if t.ownerID() != orderID {
					continue
				}
			}
			if cur, ok := u.owners[t]; ok && cur == "" {
				continue
			}
			u.owners[t] = ""
			released++
		}
		return nil
	})
	return released, err
}

func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	return s.run(ctx, func(_ context.Context, u *unit) error {
		if u.pool(o.TicketTypeID) == nil {
			return model.ErrTicketTypeNotFound
		}
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		if u.orderRow(o.ID) != nil {
			return fmt.Errorf("memory: order %s already exists", o.ID)
		}
		if o.Status == "" {
			o.Status = model.OrderPending
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = time.Now().UTC()
		}
		row := &orderRow{row: newRowLock(), id: o.ID, userID: o.UserID, typeID: o.TicketTypeID, order: cloneOrder(*o)}
		row.order.TicketIDs = nil
		u.newOrders[o.ID] = row
		return nil
	})
}

func (s *Store) GetOrder(ctx context.Context, id string) (model.Order, error) {
	if u := unitFrom(ctx); u != nil {
		row := u.orderRow(id)
		if row == nil {
			return model.Order{}, model.ErrOrderNotFound
		}
		return u.current(row), nil
	}
	row := s.lookupOrder(id)
	if row == nil {
		return model.Order{}, model.ErrOrderNotFound
	}
	return s.readOrder(row), nil
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id string) (model.Order, error) {
	var o model.Order
	err := s.run(ctx, func(ctx context.Context, u *unit) error {
		row := u.orderRow(id)
		if row == nil {
			return model.ErrOrderNotFound
		}
		if err := u.lockOrder(ctx, row); err != nil {
			return err
		}
		o = u.current(row)
		return nil
	})
	return o, err
}

func (s *Store) UpdateOrderStatus(ctx context.Context, o model.Order, from model.OrderStatus) error {
	return s.run(ctx, func(ctx context.Context, u *unit) error {
		row := u.orderRow(o.ID)
		if row == nil {
			return model.ErrOrderNotFound
		}
		if err := u.lockOrder(ctx, row); err != nil {
			return err
		}
		next := u.current(row)
		if next.Status != from {
			return model.ErrAlreadyProcessed
		}
		next.Status = o.Status
		next.CancelledAt = o.CancelledAt
		u.staged[row] = next
		return nil
	})
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	s.mu.RLock()
	rows := make([]*orderRow, 0)
	for _, row := range s.orders {
		if row.userID == userID {
			rows = append(rows, row)
		}
	}
	s.mu.RUnlock()
	out := make([]model.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.readOrder(row))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func cloneOrder(o model.Order) model.Order {
	if o.TicketIDs != nil {
		o.TicketIDs = append([]uint64(nil), o.TicketIDs...)
	}
	if o.CancelledAt != nil {
		at := *o.CancelledAt
		o.CancelledAt = &at
	}
	return o
}

func removeID(ids []uint64, id uint64) []uint64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
