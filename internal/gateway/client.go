package gateway

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"chartsync/internal/logger"
	"chartsync/internal/model"
)

// Client represents a single dashboard WebSocket peer.
//
// send is never closed: command handlers run on their own goroutines
// and may ack after the client is gone. done is the teardown signal;
// late sends drain into the buffer and are garbage collected with it.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	hub  *Hub
}

// sendInitialState replays the current chart so a fresh client starts
// in sync with everyone else.
func (c *Client) sendInitialState() {
	for _, op := range c.hub.replay.Replay() {
		select {
		case c.send <- op:
		default:
			return // buffer full already; the client will resync on reconnect
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: batch queued ops into a single frame
			// with newline separators
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch base.Type {
		case "SELECT":
			var sel SelectMsg
			if err := json.Unmarshal(msg, &sel); err != nil {
				SendError(c, "", "invalid SELECT: "+err.Error())
				continue
			}
			go c.handleSelect(sel)

		case "SET_INDICATOR":
			var ind IndicatorMsg
			if err := json.Unmarshal(msg, &ind); err != nil {
				SendError(c, "", "invalid SET_INDICATOR: "+err.Error())
				continue
			}
			c.hub.ctrl.SetIndicatorVisible(ind.Kind, ind.Config, ind.Visible)
			SendJSON(c, AckMsg{Type: "ack", ReqID: ind.ReqID, Of: "SET_INDICATOR"})

		case "PREVIEW":
			var prev PreviewMsg
			if err := json.Unmarshal(msg, &prev); err != nil {
				SendError(c, "", "invalid PREVIEW: "+err.Error())
				continue
			}
			c.hub.ctrl.SetSignalPreview(prev.Signal)
			SendJSON(c, AckMsg{Type: "ack", ReqID: prev.ReqID, Of: "PREVIEW"})

		case "CLEAR_PREVIEW":
			c.hub.ctrl.SetSignalPreview(nil)
			SendJSON(c, AckMsg{Type: "ack", Of: "CLEAR_PREVIEW"})

		case "SET_THEME":
			var th ThemeMsg
			if err := json.Unmarshal(msg, &th); err != nil {
				continue
			}
			c.hub.ctrl.SetTheme(th.Theme)

		case "SET_LAYOUT":
			var lay LayoutMsg
			if err := json.Unmarshal(msg, &lay); err != nil {
				continue
			}
			c.hub.ctrl.SetLayout(lay.Layout)

		default:
			if base.Ping > 0 {
				pong, _ := json.Marshal(map[string]any{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}

// handleSelect runs the (potentially slow) snapshot load off the read
// pump. The controller's generation guard makes concurrent selects
// safe; last one wins.
func (c *Client) handleSelect(msg SelectMsg) {
	tf, err := model.ParseTimeframe(msg.Timeframe)
	if err != nil {
		SendError(c, msg.ReqID, err.Error())
		return
	}
	sel := model.SeriesSelector{Symbol: msg.Symbol, Timeframe: tf}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(sel.Symbol, time.Now()))

	if err := c.hub.ctrl.Select(ctx, sel); err != nil {
		slog.Error("select failed",
			append([]any{slog.String("series", sel.Key()), slog.String("error", err.Error())},
				logger.LogWithTrace(ctx)...)...)
		SendError(c, msg.ReqID, "select failed: "+err.Error())
		return
	}
	SendJSON(c, AckMsg{Type: "ack", ReqID: msg.ReqID, Of: "SELECT"})
	slog.Info("series selected",
		append([]any{slog.String("series", sel.Key())}, logger.LogWithTrace(ctx)...)...)
}
