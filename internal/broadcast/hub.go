package broadcast

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mcoot/stakegame/internal/model"
)

// Buffer sizes for the hub's inbound queue and each subscriber's queue
const (
	hubBufferSize    = 256
	clientBufferSize = 256
)

// Frame is one event as delivered to a subscriber
type Frame struct {
	Event string
	Data  []byte
}

// Hub fans out the events of a single match to its subscribers
type Hub struct {
	matchID model.MatchID
	clients map[*Client]bool
	mu      sync.RWMutex
	logger  *slog.Logger

	broadcast chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a new Hub for a match
func NewHub(matchID model.MatchID, logger *slog.Logger) *Hub {
	return &Hub{
		matchID:   matchID,
		clients:   make(map[*Client]bool),
		logger:    logger.With(slog.String("match_id", string(matchID))),
		broadcast: make(chan Frame, hubBufferSize),
		done:      make(chan struct{}),
	}
}

// Run delivers queued frames until the hub is closed
func (h *Hub) Run() {
	h.logger.Debug("broadcast hub started")
	for {
		select {
		case frame := <-h.broadcast:
			h.deliver(frame)

		case <-h.done:
			h.mu.Lock()
			clientCount := len(h.clients)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Debug("broadcast hub stopped", slog.Int("disconnected_clients", clientCount))
			return
		}
	}
}

func (h *Hub) deliver(frame Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent, dropped := 0, 0
	for client := range h.clients {
		select {
		case client.send <- frame:
			sent++
		default:
			dropped++
			h.logger.Warn("broadcast message dropped - subscriber buffer full",
				slog.String("participant_id", string(client.participantID)))
		}
	}
	if dropped > 0 {
		h.logger.Warn("broadcast partial failure",
			slog.String("event", frame.Event),
			slog.Int("sent", sent),
			slog.Int("dropped", dropped))
	}
}

// Register adds a client to the hub. It reports false if the hub is closed.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	h.clients[client] = true
	h.logger.Info("subscriber registered",
		slog.String("participant_id", string(client.participantID)),
		slog.Int("total_clients", len(h.clients)))
	return true
}

// Unregister removes a client from the hub and closes its queue
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.logger.Info("subscriber unregistered",
		slog.String("participant_id", string(client.participantID)),
		slog.Duration("connection_duration", time.Since(client.connectedAt)),
		slog.Int("total_clients", len(h.clients)))
}

// Broadcast queues a frame for every subscriber. It never blocks.
func (h *Hub) Broadcast(frame Frame) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- frame:
	default:
		h.logger.Warn("broadcast dropped - hub buffer full", slog.String("event", frame.Event))
	}
}

// Close shuts down the hub, disconnecting every subscriber
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// formatSSEMessage formats a frame as an SSE message.
// Each line of data gets its own "data: " prefix.
func formatSSEMessage(eventName string, data []byte) []byte {
	var b strings.Builder
	b.WriteString("event: " + eventName + "\n")
	for _, line := range splitLines(string(data)) {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

// splitLines splits a string into lines, dropping carriage returns
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
