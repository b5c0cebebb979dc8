package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQ publishes to a durable topic exchange. Consumers bind queues with
// patterns such as branch.<id>.# or branch.*.order.created.
type RabbitMQ struct {
	url      string
	exchange string
	log      *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitMQ(url, exchange string, log *zap.Logger) (*RabbitMQ, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &RabbitMQ{url: url, exchange: exchange, log: log}
	if err := r.connect(); err != nil {
		return nil, err
	}
	return r, nil
}

// connect dials and declares the exchange. Callers hold mu or own r exclusively.
func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(r.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", r.exchange, err)
	}
	r.conn = conn
	r.ch = ch
	return nil
}

// Publish sends m as a persistent JSON message. A closed connection is redialed once.
func (r *RabbitMQ) Publish(ctx context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() || r.ch == nil || r.ch.IsClosed() {
		r.log.Warn("rabbitmq connection closed, reconnecting")
		if err := r.connect(); err != nil {
			return err
		}
		r.log.Info("rabbitmq reconnected")
	}
	return r.ch.PublishWithContext(ctx, r.exchange, m.RoutingKey(), false, false, publishing(m))
}

func publishing(m Message) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(m.Type),
		Timestamp:    time.Now().UTC(),
		Body:         m.Body,
	}
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
