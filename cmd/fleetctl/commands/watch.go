package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// frame mirrors the event stream protocol on /api/events/ws.
type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func watchCmd() *cobra.Command {
	var topics []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail plan and draft events",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient()
			u, err := c.WebsocketURL()
			if err != nil {
				return err
			}
			dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
			conn, _, err := dialer.DialContext(cmd.Context(), u, c.Header())
			if err != nil {
				return fmt.Errorf("dial %s: %w", u, err)
			}
			defer conn.Close()

			go func() {
				<-cmd.Context().Done()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = conn.Close()
			}()

			if err := conn.WriteJSON(frame{Type: "connection_init"}); err != nil {
				return err
			}
			for _, t := range topics {
				if err := conn.WriteJSON(frame{Type: "subscribe", ID: t, Topic: t}); err != nil {
					return err
				}
			}
			logger.Info("watching", "url", u, "topics", topics)
			return readFrames(cmd.Context(), conn, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&topics, "topic", []string{"plans", "drafts"}, "topics to subscribe to")
	return cmd
}

type frameReader interface {
	ReadJSON(v any) error
}

// readFrames prints each event until the connection closes or ctx ends.
func readFrames(ctx context.Context, conn frameReader, w io.Writer) error {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		switch f.Type {
		case "next":
			fmt.Fprintf(w, "%s %s/%s %s\n", time.Now().Format(time.TimeOnly), f.Topic, f.Event, f.Payload)
		case "error":
			fmt.Fprintf(w, "error on %s: %s\n", f.ID, f.Payload)
		case "complete":
			fmt.Fprintf(w, "subscription %s completed\n", f.ID)
		}
	}
}
