package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher sends order events to durable queues named after the event
// type.  The connection is opened lazily and dropped after any failure so
// the next publish redials.
type Publisher struct {
	url string
	log zerolog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewPublisher returns a publisher for the broker at url.  No connection is
// made until the first Publish.
func NewPublisher(url string, log zerolog.Logger) *Publisher {
	return &Publisher{
		url:      url,
		log:      log.With().Str("component", "order-publisher").Logger(),
		declared: map[string]bool{},
	}
}

// Publish sends ev as a persistent JSON message.  Errors are logged and
// returned so the caller can choose to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		p.log.Warn().Err(err).Str("event", ev.Type).Msg("rabbitmq connect failed")
		return err
	}
	if !p.declared[ev.Type] {
		// Durable so messages survive broker restarts.
		if _, err := ch.QueueDeclare(ev.Type, true, false, false, false, nil); err != nil {
			p.reset()
			p.log.Warn().Err(err).Str("queue", ev.Type).Msg("rabbitmq queue declare failed")
			return err
		}
		p.declared[ev.Type] = true
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    ev.OrderID + ":" + ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", ev.Type, false, false, pub); err != nil {
		p.reset()
		p.log.Warn().Err(err).Str("event", ev.Type).Str("order_id", ev.OrderID).Msg("rabbitmq publish failed")
		return err
	}
	return nil
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
	p.declared = map[string]bool{}
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
