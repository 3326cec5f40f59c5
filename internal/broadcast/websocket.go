package broadcast

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// NewUpgrader returns the WebSocket upgrader used for event subscriptions
func NewUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Events are public to the match; the bearer token gates the stream
			return true
		},
	}
}

// ServeWS upgrades the request and streams a subscribed client's events as
// JSON text messages. The client is unsubscribed when either side closes.
func (c *Coordinator) ServeWS(w http.ResponseWriter, r *http.Request, upgrader websocket.Upgrader, client *Client) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.Unsubscribe(client)
		c.logger.Warn("websocket upgrade failed",
			slog.String("match_id", string(client.MatchID())),
			slog.String("error", err.Error()))
		return
	}

	go c.readPump(conn, client)
	c.writePump(conn, client)
}

// readPump discards inbound messages and notices disconnects
func (c *Coordinator) readPump(conn *websocket.Conn, client *Client) {
	defer c.Unsubscribe(client)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error",
					slog.String("match_id", string(client.MatchID())),
					slog.String("error", err.Error()))
			}
			return
		}
	}
}

// writePump forwards frames to the peer and keeps the connection alive
func (c *Coordinator) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame.Data); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
