package broadcast

import (
	"time"

	"github.com/mcoot/stakegame/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Keepalive period for idle streams
	pingPeriod = 30 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Subscribers only send control frames
	maxMessageSize = 512
)

// Client is one subscriber to a match's events
type Client struct {
	hub           *Hub
	participantID model.ParticipantID
	send          chan Frame
	connectedAt   time.Time
}

// NewClient creates a client for a hub. The participant may be empty for
// spectators.
func NewClient(hub *Hub, participantID model.ParticipantID) *Client {
	return &Client{
		hub:           hub,
		participantID: participantID,
		send:          make(chan Frame, clientBufferSize),
		connectedAt:   time.Now(),
	}
}

// Events returns the client's frame queue. It is closed when the client is
// unregistered or the hub shuts down.
func (c *Client) Events() <-chan Frame {
	return c.send
}

// MatchID returns the match the client is subscribed to
func (c *Client) MatchID() model.MatchID {
	return c.hub.matchID
}
