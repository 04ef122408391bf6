package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends booking events to RabbitMQ.  It dials per publish:
// booking traffic is low and this keeps no connection state to repair.
type Publisher struct {
	url string
}

func NewPublisher(url string) *Publisher { return &Publisher{url: url} }

// Publish routes the event to the queue named after its type.  Messages
// are marked persistent.
func (p *Publisher) Publish(ctx context.Context, ev BookingEvent) error {
	pub, err := encode(ev)
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(ev.Type, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq declare %s: %w", ev.Type, err)
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		ev.Type, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", ev.Type, err)
	}
	return nil
}

func encode(ev BookingEvent) (amqp.Publishing, error) {
	switch ev.Type {
	case BookingConfirmed, BookingCancelled:
	default:
		return amqp.Publishing{}, fmt.Errorf("unknown booking event type %q", ev.Type)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}, nil
}
