package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcoot/stakegame/internal/model"
)

// Coordinator owns one hub per match with subscribers
type Coordinator struct {
	hubs   map[model.MatchID]*Hub
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// NewCoordinator creates a new Coordinator
func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		hubs:   make(map[model.MatchID]*Hub),
		logger: logger.With(slog.String("component", "broadcast")),
	}
}

// Subscribe registers a new subscriber for a match, starting its hub if needed
func (c *Coordinator) Subscribe(matchID model.MatchID, participantID model.ParticipantID) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("broadcast coordinator closed: %w", model.ErrUnavailable)
	}

	hub, ok := c.hubs[matchID]
	if !ok {
		hub = NewHub(matchID, c.logger)
		c.hubs[matchID] = hub
		go hub.Run()
	}

	client := NewClient(hub, participantID)
	if !hub.Register(client) {
		return nil, fmt.Errorf("broadcast hub closed: %w", model.ErrUnavailable)
	}
	return client, nil
}

// Unsubscribe removes a subscriber. Its hub stays until the next cleanup.
func (c *Coordinator) Unsubscribe(client *Client) {
	client.hub.Unregister(client)
}

// Publish fans an event out to the match's subscribers. A match without
// subscribers has no hub and the event is discarded.
func (c *Coordinator) Publish(matchID model.MatchID, event model.Event) {
	c.mu.RLock()
	hub := c.hubs[matchID]
	c.mu.RUnlock()
	if hub == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to encode event",
			slog.String("match_id", string(matchID)),
			slog.String("event", string(event.Type)),
			slog.String("error", err.Error()))
		return
	}
	hub.Broadcast(Frame{Event: string(event.Type), Data: data})
}

// GetHub returns the hub for a match, or nil if it doesn't exist
func (c *Coordinator) GetHub(matchID model.MatchID) *Hub {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hubs[matchID]
}

// HubCount returns the number of live hubs
func (c *Coordinator) HubCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hubs)
}

// CleanupEmptyHubs removes hubs with no subscribers and returns how many
// were removed
func (c *Coordinator) CleanupEmptyHubs() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, hub := range c.hubs {
		if hub.ClientCount() == 0 {
			hub.Close()
			delete(c.hubs, id)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Info("empty broadcast hubs cleaned up", slog.Int("removed", removed))
	}
	return removed
}

// Close shuts every hub down and rejects further subscriptions
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, hub := range c.hubs {
		hub.Close()
		delete(c.hubs, id)
	}
}
