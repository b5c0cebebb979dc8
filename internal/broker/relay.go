package broker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/branchline/api/internal/events"
)

const (
	DefaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// Relay subscribes to the bus and hands server-side order events to a Publisher
// on its own goroutine, so a slow broker never blocks an HTTP request.
// When the queue is full the event is dropped and logged.
type Relay struct {
	pub     Publisher
	queue   chan Message
	timeout time.Duration
	log     *zap.Logger
	dropped atomic.Int64
}

func NewRelay(pub Publisher, queueSize int, log *zap.Logger) *Relay {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		pub:     pub,
		queue:   make(chan Message, queueSize),
		timeout: defaultPublishTimeout,
		log:     log,
	}
}

// Attach subscribes the relay to the order events the server emits.
func (r *Relay) Attach(bus *events.Bus) func() {
	unsubCreated := bus.Subscribe(events.OrderCreated, r.Handle)
	unsubChanged := bus.Subscribe(events.OrderStatusChanged, r.Handle)
	return func() {
		unsubCreated()
		unsubChanged()
	}
}

// Handle is an events.Handler. It never blocks.
func (r *Relay) Handle(ctx context.Context, e events.Event) {
	body, err := json.Marshal(e)
	if err != nil {
		r.log.Error("marshal event", zap.String("event_type", string(e.Type)), zap.Error(err))
		return
	}
	select {
	case r.queue <- Message{Type: e.Type, BranchID: e.BranchID, Body: body}:
	default:
		r.dropped.Add(1)
		r.log.Warn("broker queue full, event dropped",
			zap.String("event_type", string(e.Type)),
			zap.String("branch_id", e.BranchID.String()),
		)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Relay) Dropped() int64 { return r.dropped.Load() }

// Run publishes queued messages until ctx is cancelled, then flushes what is
// already queued.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case m := <-r.queue:
			r.publish(m)
		case <-ctx.Done():
			for {
				select {
				case m := <-r.queue:
					r.publish(m)
				default:
					return
				}
			}
		}
	}
}

func (r *Relay) publish(m Message) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.pub.Publish(ctx, m); err != nil {
		r.log.Error("publish event to broker",
			zap.String("routing_key", m.RoutingKey()),
			zap.Error(err),
		)
		return
	}
	r.log.Debug("event published to broker", zap.String("routing_key", m.RoutingKey()))
}
