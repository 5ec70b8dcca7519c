package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"glimmer/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const maxConnsPerUser = 8

// ErrConnectionLimit is returned when a user exceeds the per-process
// connection cap.
var ErrConnectionLimit = errors.New("user connection limit reached")

// ChannelHub manages WebSocket connections keyed by channel name. Delivery is
// strictly per-channel: a broadcast never crosses into another channel's
// connection set.
type ChannelHub struct {
	mu sync.RWMutex

	// Map: channelName -> set of clients on that channel
	channels map[string]map[*Client]bool

	// Map: userID -> number of active connections (per-user connection cap)
	userConns map[uint]int
}

// NewChannelHub creates a new ChannelHub instance.
func NewChannelHub() *ChannelHub {
	return &ChannelHub{
		channels:  make(map[string]map[*Client]bool),
		userConns: make(map[uint]int),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *ChannelHub) Name() string { return "channel hub" }

// Register adds a connection to its channel's fan-out set. Returns an error
// when the per-user connection limit is exceeded.
func (h *ChannelHub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.userConns[client.Identity.UserID] >= maxConnsPerUser {
		return ErrConnectionLimit
	}

	if h.channels[client.ChannelName] == nil {
		h.channels[client.ChannelName] = make(map[*Client]bool)
	}
	h.channels[client.ChannelName][client] = true
	h.userConns[client.Identity.UserID]++

	observability.WebSocketConnectionsTotal.Inc()
	observability.ChannelConnections.WithLabelValues(client.ChannelName).Set(float64(len(h.channels[client.ChannelName])))
	return nil
}

// UnregisterClient removes a connection from its channel's fan-out set.
func (h *ChannelHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.channels[client.ChannelName]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.channels, client.ChannelName)
	}

	if n := h.userConns[client.Identity.UserID]; n <= 1 {
		delete(h.userConns, client.Identity.UserID)
	} else {
		h.userConns[client.Identity.UserID] = n - 1
	}

	observability.WebSocketConnectionsTotal.Dec()
	observability.ChannelConnections.WithLabelValues(client.ChannelName).Set(float64(len(clients)))
}

// Broadcast sends a raw payload to every connection on the channel.
func (h *ChannelHub) Broadcast(channel string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.channels[channel] {
		client.TrySend(payload)
	}
}

// BroadcastJSON marshals v and sends it to every connection on the channel.
func (h *ChannelHub) BroadcastJSON(channel string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("ChannelHub: failed to marshal broadcast for channel %s: %v", channel, err)
		return
	}
	h.Broadcast(channel, payload)
}

// Count returns the number of local connections on the channel. Advisory
// only; the presence tracker owns the authoritative viewer count.
func (h *ChannelHub) Count(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Channels returns the channel names with at least one local connection.
func (h *ChannelHub) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.channels))
	for name := range h.channels {
		names = append(names, name)
	}
	return names
}

// Shutdown gracefully closes all websocket connections.
func (h *ChannelHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for channel, clients := range h.channels {
		for client := range clients {
			if err := client.Conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"status","status":"server_shutdown"}`)); err != nil {
				log.Printf("failed to write shutdown message on channel %s: %v", channel, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket on channel %s: %v", channel, err)
			}
		}
	}

	h.channels = make(map[string]map[*Client]bool)
	h.userConns = make(map[uint]int)
	return nil
}
