package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

const (
	TypeChallengeCompleted = "challenge_completed"
	TypeLeaderboardUpdated = "leaderboard_updated"
)

// Message is a live event pushed to every connected client.
type Message struct {
	Type         string `json:"type"`
	UserID       string `json:"user_id,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	ChallengeKey string `json:"challenge_key,omitempty"`
	Points       int    `json:"points,omitempty"`
	TotalPoints  int    `json:"total_points,omitempty"`
}

// ChallengeCompleted announces an award.
func ChallengeCompleted(userID, displayName, key string, points, total int) Message {
	return Message{
		Type:         TypeChallengeCompleted,
		UserID:       userID,
		DisplayName:  displayName,
		ChallengeKey: key,
		Points:       points,
		TotalPoints:  total,
	}
}

// LeaderboardUpdated tells clients to refetch the leaderboard.
func LeaderboardUpdated() Message {
	return Message{Type: TypeLeaderboardUpdated}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients. Clients whose buffer
// is full miss the message.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Debug("broadcast dropped for slow clients", "type", msg.Type, "dropped", dropped)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
