// Package notify publishes finished-run summaries to a message broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"mdvrp/internal/model"
)

// Notifier receives terminal run events.
type Notifier interface {
	Notify(ctx context.Context, ev model.RunEvent) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, model.RunEvent) error { return nil }
func (Nop) Close() error                                 { return nil }

// AMQP publishes each event as a persistent JSON message on a durable queue.
type AMQP struct {
	conn    *amqp.Connection
	mu      sync.Mutex
	ch      *amqp.Channel
	queue   string
	timeout time.Duration
}

func NewAMQP(url, queue string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	return &AMQP{conn: conn, ch: ch, queue: queue, timeout: 5 * time.Second}, nil
}

func (a *AMQP) Notify(ctx context.Context, ev model.RunEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch.PublishWithContext(
		ctx,
		"",      // exchange
		a.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         ev.Type,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (a *AMQP) Close() error {
	a.ch.Close()
	return a.conn.Close()
}
