package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Hub manages active WebSocket connections per participant and implements
// Publisher over them. A participant may hold several connections (one per
// open tab), keyed by client id.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewHub creates a new connection hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds a new WebSocket connection for a participant/client.
func (h *Hub) Register(participantID, clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[participantID]; !exists {
		h.active[participantID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := h.active[participantID][clientID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}

	h.active[participantID][clientID] = conn
	slog.Info("Event stream registered", "participant_id", participantID, "client_id", clientID)
}

// Unregister removes a WebSocket connection for a participant/client.
func (h *Hub) Unregister(participantID, clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.active[participantID]; ok {
		if current, exists := clients[clientID]; exists && current == conn {
			delete(clients, clientID)
			if len(clients) == 0 {
				delete(h.active, participantID)
			}
			slog.Info("Event stream unregistered", "participant_id", participantID, "client_id", clientID)
		}
	}
}

// ActiveConnections returns the number of live connections for a
// participant.
func (h *Hub) ActiveConnections(participantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[participantID])
}

// Publish delivers an event to every active connection of one participant.
// Best effort: write failures are logged and the event is dropped for that
// connection; clients reconcile via the session state endpoint.
func (h *Hub) Publish(ctx context.Context, participantID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.active[participantID]))
	for _, conn := range h.active[participantID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("Event write failed",
				"participant_id", participantID,
				"type", event.Type,
				"error", err)
		}
	}
}

// CloseAll forcefully terminates all active connections for a participant.
func (h *Hub) CloseAll(participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.active[participantID]
	if !ok {
		return
	}

	for cid, conn := range clients {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		slog.Info("Event stream closed", "participant_id", participantID, "client_id", cid)
	}
	delete(h.active, participantID)
}
