package server

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// Hub fans table messages out to every connection watching the table
type Hub struct {
	clock  quartz.Clock
	logger *log.Logger

	mu          sync.RWMutex
	connections map[*Connection]bool
}

// NewHub creates an empty hub
func NewHub(clock quartz.Clock, logger *log.Logger) *Hub {
	return &Hub{
		clock:       clock,
		logger:      logger,
		connections: make(map[*Connection]bool),
	}
}

// Register adds a connection
func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	h.connections[c] = true
	total := len(h.connections)
	h.mu.Unlock()
	h.logger.Info("Client connected", "total", total)
}

// Unregister removes and closes a connection
func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	_, ok := h.connections[c]
	delete(h.connections, c)
	total := len(h.connections)
	h.mu.Unlock()

	if ok {
		_ = c.Close() // Ignore close errors during unregistration
		h.logger.Info("Client disconnected", "total", total)
	}
}

// Len returns the number of connections
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Broadcast sends data as a message of type t to every connection
func (h *Hub) Broadcast(t MessageType, data any) {
	msg, err := NewMessage(t, data, h.clock.Now())
	if err != nil {
		h.logger.Error("Failed to create message", "type", t, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for conn := range h.connections {
		if err := conn.SendMessage(msg); err != nil {
			h.logger.Debug("Failed to send message to client", "error", err)
		} else {
			count++
		}
	}
	h.logger.Debug("Broadcasted message", "type", t, "recipients", count)
}

// CloseAll drops every connection
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.connections
	h.connections = make(map[*Connection]bool)
	h.mu.Unlock()

	for conn := range conns {
		_ = conn.Close() // Ignore close errors during shutdown
	}
}
