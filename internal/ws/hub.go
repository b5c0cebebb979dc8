package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/events"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// branchEvent routes an event to one branch room
type branchEvent struct {
	BranchID uuid.UUID
	Event    Event
}

// Hub maintains the set of active device connections per branch and pushes
// order events to them
type Hub struct {
	// Registered clients by branch ID
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *branchEvent

	// Closed when Run returns so pending register/unregister sends give up
	done chan struct{}

	mu  sync.RWMutex
	log *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *branchEvent, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the hub's main loop and returns when ctx is cancelled, closing
// every remaining client. Run must be called at most once.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.branchID] == nil {
				h.rooms[client.branchID] = make(map[*Client]bool)
			}
			h.rooms[client.branchID][client] = true
			h.mu.Unlock()
			h.log.Debug("ws client registered", zap.String("branch_id", client.branchID.String()))

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.log.Error("ws marshal event", zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[event.BranchID] {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, drop it
					h.log.Warn("ws client too slow, disconnecting",
						zap.String("branch_id", event.BranchID.String()))
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove closes client.send and cleans up empty rooms. Caller holds h.mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.branchID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.branchID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for client := range clients {
			h.remove(client)
		}
	}
}

// ClientCount returns the number of connected clients for a branch.
func (h *Hub) ClientCount(branchID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[branchID])
}

// BroadcastToBranch queues an event for every client of a branch. It never
// blocks; when the hub is backed up the event is dropped and false is returned.
func (h *Hub) BroadcastToBranch(branchID uuid.UUID, event Event) bool {
	select {
	case h.broadcast <- &branchEvent{BranchID: branchID, Event: event}:
		return true
	default:
		h.log.Warn("ws broadcast queue full, dropping event",
			zap.String("branch_id", branchID.String()),
			zap.String("type", event.Type))
		return false
	}
}

// Subscribe forwards committed order events from the bus to branch rooms.
// The returned function removes the subscriptions.
func (h *Hub) Subscribe(bus *events.Bus) func() {
	handler := func(_ context.Context, e events.Event) {
		if e.Order == nil {
			return
		}
		payload, err := json.Marshal(e)
		if err != nil {
			h.log.Error("ws marshal bus event", zap.Error(err))
			return
		}
		h.BroadcastToBranch(e.BranchID, Event{Type: string(e.Type), Payload: payload})
	}
	unsubCreated := bus.Subscribe(events.OrderCreated, handler)
	unsubChanged := bus.Subscribe(events.OrderStatusChanged, handler)
	return func() {
		unsubCreated()
		unsubChanged()
	}
}
