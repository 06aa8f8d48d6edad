package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// StartOrderLogConsumer connects to RabbitMQ, declares the order event
// queues and appends every event to the file at path in a single-line,
// human-friendly format.  It reconnects with exponential backoff and only
// returns once ctx is cancelled.
func StartOrderLogConsumer(ctx context.Context, url, path string, log zerolog.Logger) error {
	log = log.With().Str("component", "order-log-consumer").Logger()
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, path, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, path string, log zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("set QoS failed")
	}

	deliveries := make(chan amqp.Delivery)
	done := make(chan error, len(EventTypes))
	stop := make(chan struct{})
	defer close(stop)
	for _, name := range EventTypes {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		go func(msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case deliveries <- d:
				case <-stop:
					return
				}
			}
			done <- errors.New("deliveries channel closed")
		}(msgs)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return err
		case d := <-deliveries:
			if err := appendEvent(path, d.Body); err != nil {
				log.Error().Err(err).Str("queue", d.RoutingKey).Msg("handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func appendEvent(path string, body []byte) error {
	var ev OrderEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev OrderEvent) string {
	ids := make([]string, 0, len(ev.TicketIDs))
	for _, id := range ev.TicketIDs {
		ids = append(ids, fmt.Sprint(id))
	}
	verb := "Order fulfilled"
	if ev.Type == EventOrderCancelled {
		verb = "Order cancelled"
	}
	return fmt.Sprintf("[%s] %s | order_id=%s | user_id=%d | ticket_type_id=%d | quantity=%d | tickets=[%s]\n",
		ev.OccurredAt, verb, ev.OrderID, ev.UserID, ev.TicketTypeID, ev.Quantity, strings.Join(ids, ","))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
