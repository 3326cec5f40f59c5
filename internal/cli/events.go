package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var (
		jsonOutput bool
		useWS      bool
	)

	cmd := &cobra.Command{
		Use:   "events <match-id>",
		Short: "Stream live events from a match",
		Long: `Subscribe to a match and print its events as they happen.

Events include:
  - move_submitted: A direct move was played
  - commit_submitted: A participant committed to a hidden move
  - reveal_submitted: A participant opened their commitment
  - round_drawn: A commit-reveal round was drawn and a new one opened
  - match_finished: The match ended with an outcome
  - match_cancelled: The match was cancelled and refunded

Server-sent events are used by default; --ws switches to a WebSocket.
Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := &eventPrinter{w: cmd.OutOrStdout(), json: jsonOutput}
			var err error
			if useWS {
				err = streamWebSocket(ctx, args[0], p)
			} else {
				err = streamSSE(ctx, args[0], p)
			}
			if ctx.Err() != nil {
				err = nil
			}
			if !jsonOutput {
				fmt.Fprintln(cmd.OutOrStdout(), "Disconnected")
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON lines")
	cmd.Flags().BoolVar(&useWS, "ws", false, "Use the WebSocket endpoint")

	return cmd
}

// StreamEvent is one received event
type StreamEvent struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	Data  string    `json:"data"`
}

type eventPrinter struct {
	w    io.Writer
	json bool
}

func (p *eventPrinter) connected(matchID string) {
	if !p.json {
		fmt.Fprintf(p.w, "Connected to match %s\n", matchID)
	}
}

func (p *eventPrinter) print(event, data string) {
	now := time.Now()

	if p.json {
		line, _ := json.Marshal(StreamEvent{Time: now, Event: event, Data: data})
		fmt.Fprintln(p.w, string(line))
		return
	}

	displayData := strings.ReplaceAll(data, "\n", " ")
	if len(displayData) > 160 {
		displayData = displayData[:160] + "..."
	}
	fmt.Fprintf(p.w, "[%s] %s: %s\n", now.Format("2006-01-02 15:04:05"), event, displayData)
}

func streamSSE(ctx context.Context, matchID string, p *eventPrinter) error {
	url := strings.TrimSuffix(cfg.ServerURL, "/") + "/api/v1/matches/" + matchID + "/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	// No timeout for a long-lived stream
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	p.connected(matchID)
	return readSSE(resp.Body, p)
}

// readSSE parses an event stream until it ends
func readSSE(r io.Reader, p *eventPrinter) error {
	scanner := bufio.NewScanner(r)
	var currentEvent string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		case line == "":
			// "connected" is the stream handshake
			if currentEvent != "" && currentEvent != "connected" {
				p.print(currentEvent, strings.Join(dataLines, "\n"))
			}
			currentEvent = ""
			dataLines = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream error: %w", err)
	}
	return nil
}

func streamWebSocket(ctx context.Context, matchID string, p *eventPrinter) error {
	url := strings.TrimSuffix(cfg.ServerURL, "/") + "/api/v1/matches/" + matchID + "/ws"
	url = "ws" + strings.TrimPrefix(url, "http")

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connection failed: unexpected status %d", resp.StatusCode)
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	p.connected(matchID)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return fmt.Errorf("stream error: %w", err)
		}

		var envelope struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &envelope)
		p.print(envelope.Type, string(data))
	}
}
