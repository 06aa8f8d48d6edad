package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/queue"
)

// DefaultCancelWindow is how long after creation a fulfilled order may be cancelled.
const DefaultCancelWindow = 30 * time.Minute

// errClaimConflict aborts an allocation whose locked tickets could not all
// be claimed.  The unit of work rolls back, so nothing is left half-claimed.
var errClaimConflict = errors.New("locked tickets changed owner before claim")

// errReleaseMismatch aborts a cancellation whose released ticket count does
// not match the order quantity.
var errReleaseMismatch = errors.New("released ticket count does not match order quantity")

// Publisher delivers order events after commit.
type Publisher interface {
	Publish(ctx context.Context, ev queue.OrderEvent) error
}

// BookingService runs the order lifecycle: submission, allocation and
// cancellation.
type BookingService struct {
	store     Store
	clock     clock.Clock
	window    time.Duration
	publisher Publisher
	metrics   *Metrics
	log       zerolog.Logger

	retryable func(error) bool
	attempts  int
}

type BookingOption func(*BookingService)

// WithCancelWindow overrides DefaultCancelWindow.
func WithCancelWindow(d time.Duration) BookingOption {
	return func(s *BookingService) {
		if d > 0 {
			s.window = d
		}
	}
}

func WithPublisher(p Publisher) BookingOption {
	return func(s *BookingService) { s.publisher = p }
}

func WithMetrics(m *Metrics) BookingOption {
	return func(s *BookingService) { s.metrics = m }
}

func WithLogger(log zerolog.Logger) BookingOption {
	return func(s *BookingService) { s.log = log }
}

// WithRetry reruns a unit of work that failed with an error for which
// retryable reports true, such as a deadlock, up to attempts times in total.
func WithRetry(retryable func(error) bool, attempts int) BookingOption {
	return func(s *BookingService) {
		if retryable != nil && attempts > 1 {
			s.retryable, s.attempts = retryable, attempts
		}
	}
}

func NewBookingService(store Store, clk clock.Clock, opts ...BookingOption) *BookingService {
	s := &BookingService{
		store:  store,
		clock:  clk,
		window: DefaultCancelWindow,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records a pending order and immediately allocates it.  Running out
// of tickets is not an error: the returned order is FAILED.
func (s *BookingService) Submit(ctx context.Context, userID, ticketTypeID uint64, quantity int) (model.Order, error) {
	if quantity < 1 {
		return model.Order{}, model.ErrInvalidQuantity
	}
	if _, err := s.store.GetTicketType(ctx, ticketTypeID); err != nil {
		return model.Order{}, err
	}
	o := model.Order{
		ID:           uuid.NewString(),
		UserID:       userID,
		TicketTypeID: ticketTypeID,
		Quantity:     quantity,
		Status:       model.OrderPending,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.CreateOrder(ctx, &o); err != nil {
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}
	return s.Allocate(ctx, o.ID)
}

// Allocate claims exactly Quantity free tickets for a pending order, or
// none.  Tickets locked by concurrent allocations are skipped, not waited
// on.  The claim and the status change commit together.
func (s *BookingService) Allocate(ctx context.Context, orderID string) (model.Order, error) {
	var order model.Order
	err := s.withTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.OrderPending {
			return model.ErrAlreadyProcessed
		}

		ids, err := s.store.LockFreeTickets(ctx, o.TicketTypeID, o.Quantity)
		if err != nil {
			return err
		}
		if len(ids) < o.Quantity {
			if err := o.MarkFailed(); err != nil {
				return err
			}
			if err := s.store.UpdateOrderStatus(ctx, o, model.OrderPending); err != nil {
				return err
			}
			order = o
			return nil
		}

		claimed, err := s.store.AssignTickets(ctx, o.ID, ids)
		if err != nil {
			return err
		}
		if claimed != len(ids) {
			return fmt.Errorf("order %s: claimed %d of %d: %w", o.ID, claimed, len(ids), errClaimConflict)
		}
		if err := o.MarkFulfilled(ids); err != nil {
			return err
		}
		if err := s.store.UpdateOrderStatus(ctx, o, model.OrderPending); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		if !errors.Is(err, model.ErrAlreadyProcessed) && !errors.Is(err, model.ErrOrderNotFound) {
			s.metrics.allocation(OutcomeError, 0)
			s.log.Error().Err(err).Str("order_id", orderID).Msg("allocation aborted")
		}
		return model.Order{}, err
	}

	if order.Status == model.OrderFailed {
		outcome := s.shortfallOutcome(ctx, order)
		s.metrics.allocation(outcome, 0)
		s.log.Info().
			Str("order_id", order.ID).
			Uint64("ticket_type_id", order.TicketTypeID).
			Int("quantity", order.Quantity).
			Str("reason", outcome).
			Msg("order failed")
		return order, nil
	}

	s.metrics.allocation(OutcomeFulfilled, len(order.TicketIDs))
	s.log.Info().Str("order_id", order.ID).Int("quantity", order.Quantity).Msg("order fulfilled")
	s.publish(ctx, queue.EventOrderFulfilled, order)
	return order, nil
}

// shortfallOutcome tells a pool that ran dry from one where enough tickets
// were free but held by concurrent allocations.  It reads a fresh snapshot
// after the failed attempt, so it is a best effort.
func (s *BookingService) shortfallOutcome(ctx context.Context, o model.Order) string {
	free, err := s.store.FreeTicketIDs(ctx, o.TicketTypeID)
	if err == nil && len(free) >= o.Quantity {
		return OutcomeContended
	}
	return OutcomeExhausted
}

// Cancel releases every ticket of a fulfilled order and marks it
// CANCELLED.  The checks run in order: already cancelled, not fulfilled,
// then the cancellation window measured from the order's creation.
func (s *BookingService) Cancel(ctx context.Context, orderID string) (model.Order, error) {
	var order model.Order
	err := s.withTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := o.CheckCancellable(now, s.window); err != nil {
			return err
		}
		released, err := s.store.ReleaseTickets(ctx, o.TicketTypeID, o.ID)
		if err != nil {
			return err
		}
		if released != o.Quantity {
			return fmt.Errorf("order %s: released %d of %d: %w", o.ID, released, o.Quantity, errReleaseMismatch)
		}
		if err := o.MarkCancelled(now); err != nil {
			return err
		}
		if err := s.store.UpdateOrderStatus(ctx, o, model.OrderFulfilled); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		s.metrics.cancellation(cancelOutcome(err), 0)
		if cancelOutcome(err) == OutcomeError {
			s.log.Error().Err(err).Str("order_id", orderID).Msg("cancellation aborted")
		}
		return model.Order{}, err
	}

	s.metrics.cancellation("cancelled", order.Quantity)
	s.log.Info().Str("order_id", order.ID).Int("quantity", order.Quantity).Msg("order cancelled")
	s.publish(ctx, queue.EventOrderCancelled, order)
	return order, nil
}

// withTx runs fn in a unit of work, rerunning it while the failure is
// retryable.  Backoff doubles from 10ms between attempts.
func (s *BookingService) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := 10 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := s.store.WithTx(ctx, fn)
		if err == nil || s.retryable == nil || attempt >= s.attempts || !s.retryable(err) {
			return err
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("retrying unit of work")
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		backoff *= 2
	}
}

func cancelOutcome(err error) string {
	switch {
	case errors.Is(err, model.ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, model.ErrNotFulfilled):
		return "not_fulfilled"
	case errors.Is(err, model.ErrWindowExpired):
		return "window_expired"
	case errors.Is(err, model.ErrOrderNotFound):
		return "not_found"
	}
	return OutcomeError
}

// GetOrder returns the order if it belongs to userID.  Orders of other users
// are reported as not found.
func (s *BookingService) GetOrder(ctx context.Context, userID uint64, orderID string) (model.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if o.UserID != userID {
		return model.Order{}, model.ErrOrderNotFound
	}
	return o, nil
}

// CancelForUser cancels the order after checking it belongs to userID.
func (s *BookingService) CancelForUser(ctx context.Context, userID uint64, orderID string) (model.Order, error) {
	if _, err := s.GetOrder(ctx, userID, orderID); err != nil {
		return model.Order{}, err
	}
	return s.Cancel(ctx, orderID)
}

func (s *BookingService) ListOrders(ctx context.Context, userID uint64) ([]model.Order, error) {
	return s.store.ListOrdersByUser(ctx, userID)
}

func (s *BookingService) publish(ctx context.Context, eventType string, o model.Order) {
	if s.publisher == nil {
		return
	}
	ev := queue.NewOrderEvent(eventType, o, s.clock.Now())
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn().Err(err).Str("order_id", o.ID).Str("event", eventType).Msg("publish order event failed")
	}
}
