package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-fancycamera/pkg/hub"
)

// wsURL turns the service URL into the websocket URL of stream.
func wsURL(server, stream string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + stream
	return u.String(), nil
}

// formatEvent renders one event as a single line.
func formatEvent(e hub.Event) string {
	if len(e.Payload) == 0 {
		return fmt.Sprintf("%s  %s", e.Time.Format("15:04:05.000"), e.Type)
	}
	return fmt.Sprintf("%s  %-14s %s", e.Time.Format("15:04:05.000"), e.Type, e.Payload)
}

func newWatchCmd(opts *options) *cobra.Command {
	var stream string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print live events from a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch stream {
			case "status", "levels", "analysis":
			default:
				return fmt.Errorf("unknown stream %q", stream)
			}
			target, err := wsURL(opts.server, stream)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
			if err != nil {
				return fmt.Errorf("connect %s: %w", target, err)
			}
			defer conn.Close()

			go func() {
				<-ctx.Done()
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
			}()

			out := cmd.OutOrStdout()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
						return nil
					}
					return err
				}
				var e hub.Event
				if err := json.Unmarshal(data, &e); err != nil {
					fmt.Fprintln(out, string(data))
					continue
				}
				fmt.Fprintln(out, formatEvent(e))
			}
		},
	}

	cmd.Flags().StringVarP(&stream, "stream", "s", "status", "stream to follow: status, levels or analysis")
	return cmd
}
