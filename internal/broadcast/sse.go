package broadcast

import (
	"net/http"
	"time"
)

// ServeSSE streams a subscribed client's events as server-sent events until
// the request ends or the hub drops the client. The client is unsubscribed
// on return.
func (c *Coordinator) ServeSSE(w http.ResponseWriter, r *http.Request, client *Client) {
	defer c.Unsubscribe(client)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	_, _ = w.Write(formatSSEMessage("connected", []byte(`{"match_id":"`+string(client.MatchID())+`"}`)))
	flusher.Flush()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-client.Events():
			if !ok {
				return
			}
			if _, err := w.Write(formatSSEMessage(frame.Event, frame.Data)); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
