package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/core-tools/hsu-governor/pkg/logging"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"
)

// StreamMessage is the envelope for every event pushed to websocket
// subscribers
type StreamMessage struct {
	Type      string                           `json:"type"` // "usage" or "violation"
	SessionID string                           `json:"session_id"`
	Timestamp time.Time                        `json:"timestamp"`
	Usage     *resourcequota.ResourceUsage     `json:"usage,omitempty"`
	Violation *resourcequota.ResourceViolation `json:"violation,omitempty"`
}

// envelope pairs an encoded message with the session it belongs to so
// the hub can honor per-client session filters
type envelope struct {
	sessionID string
	data      []byte
}

// Hub maintains active websocket connections and fans session events out
// to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound events to fan out
	broadcast chan envelope

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	logger logging.Logger
}

// NewHub creates a websocket hub. Run must be called for events to flow.
func NewHub(ctx context.Context, logger logging.Logger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        hubCtx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Run drives the hub event loop until the hub is stopped
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debugf("Websocket client registered, id: %s, clients: %d", client.id, h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debugf("Websocket client unregistered, id: %s", client.id)

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(event.sessionID) {
					continue
				}
				select {
				case client.send <- event.data:
				default:
					// Client cannot keep up, drop it. Send channels are
					// closed exactly where the client leaves the map.
					delete(h.clients, client)
					close(client.send)
					h.logger.Warnf("Websocket client evicted, send buffer full, id: %s", client.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop shuts the hub down and disconnects every client
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// BroadcastUsage pushes a usage sample to subscribers
func (h *Hub) BroadcastUsage(sessionID string, usage *resourcequota.ResourceUsage) {
	h.publish(StreamMessage{
		Type:      "usage",
		SessionID: sessionID,
		Timestamp: usage.Timestamp,
		Usage:     usage,
	})
}

// BroadcastViolation pushes a quota violation to subscribers
func (h *Hub) BroadcastViolation(sessionID string, violation *resourcequota.ResourceViolation) {
	h.publish(StreamMessage{
		Type:      "violation",
		SessionID: sessionID,
		Timestamp: violation.Timestamp,
		Violation: violation,
	})
}

func (h *Hub) publish(message StreamMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Errorf("Failed to encode stream message: %v", err)
		return
	}

	select {
	case h.broadcast <- envelope{sessionID: message.SessionID, data: data}:
	case <-h.ctx.Done():
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
