// Package feed implements the WebSocket client that consumes live
// market_update payloads from the quote gateway and hands them to the
// sync controller.
//
// The expected JSON message format on the wire is model.MarketUpdate:
//
//	{"type":"market_update","prices":{"EURUSD":{"bid":1.085,"ask":1.0852,...}},
//	 "positions":[...],"total_pnl":12.5,"account":{...},"timestamp":...}
//
// The client reconnects forever on a fixed delay; chart consumers only
// ever care about the most recent payload, so there is no replay.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"chartsync/internal/model"
)

// State is the client's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// Config holds configuration for the live feed client.
type Config struct {
	// URL of the market update WebSocket, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the fixed delay between reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
}

// Client consumes market updates from the gateway WebSocket.
//
// OnUpdate runs on the read goroutine; handlers must not block. Updates
// that fail to parse are dropped with a log line and the connection
// stays up.
type Client struct {
	cfg Config

	// OnUpdate is called for every well-formed market update.
	OnUpdate func(*model.MarketUpdate)

	// OnStateChange is called when the connection state flips.
	OnStateChange func(State)

	// OnReconnect is called each time a drop triggers a redial.
	OnReconnect func()

	mu     sync.RWMutex
	state  State
	latest *model.MarketUpdate
}

// New creates a feed client. Returns an error if the URL is unparseable.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg}, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Latest returns the most recent well-formed update, or nil before the
// first one arrives.
func (c *Client) Latest() *model.MarketUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.OnStateChange != nil {
		c.OnStateChange(s)
	}
}

// Run connects to the gateway and streams updates until ctx is
// cancelled. Reconnects automatically on disconnect with a fixed delay.
func (c *Client) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	policy := backoff.WithContext(backoff.NewConstantBackOff(c.cfg.ReconnectDelay), ctx)
	notify := func(err error, _ time.Duration) {
		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, c.cfg.ReconnectDelay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}
	}
	return backoff.RetryNotify(func() error {
		return c.runOnce(ctx)
	}, policy, notify)
}

// runOnce makes a single connection attempt and reads until disconnect
// or ctx cancel. A nil return means clean shutdown.
func (c *Client) runOnce(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}
	defer conn.Close()

	c.setState(StateConnected)
	log.Printf("[feed] connected to %s", c.cfg.URL)

	// Context watcher, scoped to this connection: done is closed when
	// the read loop returns so the watcher exits even if ctx outlives
	// many reconnects.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.setState(StateDisconnected)
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var upd model.MarketUpdate
		if err := json.Unmarshal(raw, &upd); err != nil {
			log.Printf("[feed] parse error: %v (raw: %.120s)", err, raw)
			continue
		}
		if upd.Type != "market_update" {
			continue
		}

		c.mu.Lock()
		c.latest = &upd
		c.mu.Unlock()

		if c.OnUpdate != nil {
			c.OnUpdate(&upd)
		}
	}
}
