package notifications

import (
	"context"
	"errors"
	"log"
	"sync"

	"tegridy/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user across all watched targets
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

// Hub maps target channels to the websocket clients watching them. One
// client watches exactly one episode or character page.
type Hub struct {
	mu         sync.RWMutex
	watchers   map[string]map[*Client]struct{}
	perUser    map[uint]int
	totalConns int
	shutdown   chan struct{}
}

// NewHub creates a new Hub instance for fanning out comment events.
func NewHub() *Hub {
	return &Hub{
		watchers: make(map[string]map[*Client]struct{}),
		perUser:  make(map[uint]int),
		shutdown: make(chan struct{}),
	}
}

// Register adds a connection watching the given channel. Anonymous viewers
// register with userID zero and are exempt from the per-user cap.
func (h *Hub) Register(channel string, userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, errors.New("server connection limit reached")
	}
	if userID != 0 && h.perUser[userID] >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, errors.New("user connection limit reached")
	}

	m, ok := h.watchers[channel]
	if !ok {
		m = make(map[*Client]struct{})
		h.watchers[channel] = m
	}

	client := NewClient(h, conn, userID, channel)
	m[client] = struct{}{}
	if userID != 0 {
		h.perUser[userID]++
	}
	h.totalConns++
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	return client, nil
}

// UnregisterClient removes the client from its channel.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.watchers[client.Channel]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
			if client.UserID != 0 {
				h.perUser[client.UserID]--
				if h.perUser[client.UserID] <= 0 {
					delete(h.perUser, client.UserID)
				}
			}
		}
		if len(m) == 0 {
			delete(h.watchers, client.Channel)
		}
	}
	h.mu.Unlock()

	if removed {
		observability.WebSocketConnectionsTotal.Dec()
	}
}

// Broadcast sends a message to every client watching the channel.
func (h *Hub) Broadcast(channel string, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.watchers[channel]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// WatcherCount reports how many clients currently watch a channel.
func (h *Hub) WatcherCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[channel])
}

// StartWiring connects the Notifier to this hub: Redis messages for a
// target channel are forwarded to that channel's watchers.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartSubscriber(ctx, func(channel, payload string) {
		h.Broadcast(channel, payload)
	})
}

// Shutdown gracefully closes all websocket connections.
func (h *Hub) Shutdown(_ context.Context) error {
	close(h.shutdown)

	h.mu.Lock()
	for channel, clients := range h.watchers {
		for client := range clients {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				log.Printf("failed to write close message for channel %s: %v", channel, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for channel %s: %v", channel, err)
			}
		}
	}
	h.watchers = make(map[string]map[*Client]struct{})
	h.perUser = make(map[uint]int)
	h.totalConns = 0
	h.mu.Unlock()

	return nil
}
