// Package broker publishes and consumes JSON messages on a RabbitMQ topic
// exchange. A broker built from an empty URL is disabled: publishing is a
// no-op and consuming returns immediately.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// ErrDisabled is returned by operations that need a live connection.
var ErrDisabled = errors.New("broker disabled")

// Publisher sends a message to the exchange under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, v any) error
}

// Broker owns one AMQP connection and a publishing channel.
type Broker struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	enabled  bool

	mu sync.Mutex // amqp channels are not safe for concurrent publishing
}

// New connects to url and declares a durable topic exchange.
func New(url, exchange string) (*Broker, error) {
	if url == "" {
		slog.Warn("broker URL is empty, messaging is disabled")
		return &Broker{exchange: exchange}, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Broker{conn: conn, channel: ch, exchange: exchange, enabled: true}, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	return nil
}

// Enabled reports whether the broker is connected.
func (b *Broker) Enabled() bool {
	return b.enabled
}

// Publish JSON-encodes v and sends it as a persistent message.
func (b *Broker) Publish(ctx context.Context, routingKey string, v any) error {
	if !b.enabled {
		slog.Debug("broker disabled, dropping message", "routing_key", routingKey)
		return nil
	}

	msg, err := encode(v)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.channel.PublishWithContext(ctx, b.exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publishing %s: %w", routingKey, err)
	}
	slog.Debug("published message", "routing_key", routingKey)
	return nil
}

func encode(v any) (amqp.Publishing, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encoding message: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

// Handler processes one message body. Returning an error dead-letters the
// message instead of requeueing it.
type Handler func(ctx context.Context, routingKey string, body []byte) error

// Consume binds a durable queue to keys and runs h for each delivery until
// ctx is cancelled. Each consumer uses its own channel.
func (b *Broker) Consume(ctx context.Context, queue string, keys []string, prefetch int, h Handler) error {
	if !b.enabled {
		return ErrDisabled
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening consumer channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declaring queue %s: %w", queue, err)
	}
	for _, key := range keys {
		if err := ch.QueueBind(q.Name, key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("binding %s to %s: %w", q.Name, key, err)
		}
	}
	if err := ch.Qos(max(prefetch, 1), 0, false); err != nil {
		return fmt.Errorf("setting QoS: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("registering consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", q.Name)
			}
			dispatch(ctx, d, h)
		}
	}
}

// acknowledger is the part of amqp.Delivery dispatch settles messages with.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func dispatch(ctx context.Context, d amqp.Delivery, h Handler) {
	settle(ctx, d.RoutingKey, d.Body, d, h)
}

func settle(ctx context.Context, key string, body []byte, ack acknowledger, h Handler) {
	if err := h(ctx, key, body); err != nil {
		slog.Error("message handler failed", "routing_key", key, "error", err)
		if err := ack.Nack(false, false); err != nil {
			slog.Warn("nack failed", "routing_key", key, "error", err)
		}
		return
	}
	if err := ack.Ack(false); err != nil {
		slog.Warn("ack failed", "routing_key", key, "error", err)
	}
}

// Close shuts down the channel and connection.
func (b *Broker) Close() error {
	if !b.enabled {
		return nil
	}
	if err := b.channel.Close(); err != nil {
		slog.Warn("closing broker channel", "error", err)
	}
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("closing broker connection: %w", err)
	}
	return nil
}
