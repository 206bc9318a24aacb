// Package push is the real-time push boundary: one duplex channel per
// connected game server, used to deliver urgent invalidations ahead of
// normal event-bus latency. It carries the same envelope type as the bus.
package push

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/meridianmc/meridian-core/internal/events"
)

const sendBuffer = 64

// Hub tracks connected game servers and fans envelopes out to them. A
// server whose send queue is full is dropped rather than allowed to stall
// the rest of the fan-out.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[string]*Client)}
}

// Register attaches a server connection, superseding any previous one for
// the same server id.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	prev, ok := h.clients[c.serverID]
	h.clients[c.serverID] = c
	h.mu.Unlock()
	if ok {
		prev.close()
	}
	h.logger.Info("push client registered", slog.String("server", c.serverID))
}

// Unregister detaches a server connection; a stale unregister racing a newer
// register for the same id is ignored.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if current, ok := h.clients[c.serverID]; ok && current == c {
		delete(h.clients, c.serverID)
	}
	h.mu.Unlock()
	c.close()
}

// Push delivers an envelope to one server, if connected.
func (h *Hub) Push(serverID string, env events.Envelope) {
	h.mu.Lock()
	c, ok := h.clients[serverID]
	h.mu.Unlock()
	if ok {
		h.send(c, env)
	}
}

// Broadcast delivers an envelope to every connected server.
func (h *Hub) Broadcast(env events.Envelope) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		h.send(c, env)
	}
}

// Connected returns the number of attached servers.
func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) send(c *Client, env events.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("push marshal failed", slog.Any("error", err))
		return
	}
	if !c.enqueue(data) {
		h.logger.Warn("push client too slow, dropping",
			slog.String("server", c.serverID))
		h.Unregister(c)
	}
}
