// Package gateway manages the dashboard WebSocket endpoint. The hub
// fans chart drawing operations out to every connected client and
// routes client commands (series selection, indicator toggles, signal
// previews, theme) to the sync controller.
package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chartsync/internal/chart"
	"chartsync/internal/metrics"
	"chartsync/internal/model"
)

// Controller is the command surface the hub drives. syncctl.Controller
// is the production implementation.
type Controller interface {
	Select(ctx context.Context, sel model.SeriesSelector) error
	Refresh(ctx context.Context) error
	Selector() (model.SeriesSelector, bool)
	Candles() []model.Candle
	SetIndicatorVisible(kind chart.OverlayKind, cfg chart.IndicatorConfig, visible bool)
	SetSignalPreview(sig *model.SignalPreview)
	SetPositionOverlay(pos *model.Position)
	SetTheme(t chart.Theme)
	SetLayout(l chart.Layout)
}

// Replayer supplies the op sequence that reconstructs the current
// chart for a newly connected client.
type Replayer interface {
	Replay() [][]byte
}

// History serves archived candles over REST. The SQLite archive is the
// production implementation.
type History interface {
	LoadRange(ctx context.Context, sel model.SeriesSelector, from, to time.Time) ([]model.Candle, error)
	LastTimestamp(sel model.SeriesSelector) (time.Time, error)
}

// Hub manages WebSocket clients and drawing-op fan-out.
type Hub struct {
	ctrl    Controller
	replay  Replayer
	met     *metrics.Metrics // optional
	history History          // optional

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a hub. met may be nil.
func NewHub(ctrl Controller, replay Replayer, met *metrics.Metrics) *Hub {
	return &Hub{
		ctrl:    ctrl,
		replay:  replay,
		met:     met,
		clients: make(map[*Client]bool),
	}
}

// AttachHistory enables the /api/archive endpoint. Call before Routes.
func (h *Hub) AttachHistory(hist History) {
	h.history = hist
}

// Broadcast queues one drawing op for every connected client. It is
// the stream renderer's sink; slow clients drop ops and resync on
// reconnect.
func (h *Hub) Broadcast(data []byte) {
	if h.met != nil {
		h.met.RenderOps.Inc()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
		hub:  h,
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.met != nil {
		h.met.WSClients.Set(float64(count))
	}
	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient drops a client from the hub. Idempotent; c.send stays
// open so an in-flight command handler can still ack harmlessly.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	if !present {
		return
	}
	close(c.done)

	if h.met != nil {
		h.met.WSClients.Set(float64(count))
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
