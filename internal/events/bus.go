// Package events is the in-process bus that carries order lifecycle events from
// the services (and the storefront client) to their subscribers.
//
// Publishers: service.OrderService (order.created, order.status_changed) and
// client.Router (order.submitted, order.confirmed, order.submission_failed).
// Subscribers: ws.Hub (pushes to branch devices) and broker.Relay (RabbitMQ / Kafka).
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Type string

const (
	OrderCreated          Type = "order.created"
	OrderStatusChanged    Type = "order.status_changed"
	OrderSubmitted        Type = "order.submitted"
	OrderConfirmed        Type = "order.confirmed"
	OrderSubmissionFailed Type = "order.submission_failed"
)

// OrderPayload is the order snapshot carried by order events.
type OrderPayload struct {
	ID           uuid.UUID `json:"id"`
	BranchID     uuid.UUID `json:"branch_id"`
	OrderNumber  string    `json:"order_number"`
	Status       string    `json:"status"`
	TotalAmount  string    `json:"total_amount"`
	CustomerName string    `json:"customer_name,omitempty"`
	DeviceID     string    `json:"device_id,omitempty"`
	ItemCount    int       `json:"item_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type Event struct {
	Type           Type          `json:"type"`
	BranchID       uuid.UUID     `json:"branch_id"`
	Order          *OrderPayload `json:"order,omitempty"`
	PreviousStatus string        `json:"previous_status,omitempty"`
	Message        string        `json:"message,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// Handler receives events. Handlers run on the publisher's goroutine and must not block.
type Handler func(ctx context.Context, e Event)

type subscription struct {
	id      uint64
	typ     Type // empty means every type
	handler Handler
}

type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	log    *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log}
}

// Subscribe registers h for events of type t and returns a function that removes it.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	return b.add(t, h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) func() {
	return b.add("", h)
}

func (b *Bus) add(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, typ: t, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every matching subscriber in registration order.
// A panicking handler is logged and skipped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.typ == "" || s.typ == e.Type {
			matched = append(matched, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		b.deliver(ctx, h, e)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("event_type", string(e.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, e)
}
