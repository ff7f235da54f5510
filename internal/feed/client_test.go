package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chartsync/internal/model"
)

var upgrader = websocket.Upgrader{}

// wsServer runs handler for every incoming connection and returns a
// ws:// URL for it.
func wsServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestClient_ReceivesUpdates(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"market_update","prices":{"EURUSD":{"bid":1.085,"ask":1.0852,"spread":2,"time":1700000000}},"total_pnl":3.5,"timestamp":1700000000.5}`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := New(Config{URL: url})
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []*model.MarketUpdate
	c.OnUpdate = func(u *model.MarketUpdate) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	upd := got[0]
	mu.Unlock()
	q, ok := upd.Prices["EURUSD"]
	if !ok {
		t.Fatal("EURUSD quote missing")
	}
	if q.Bid != 1.085 || q.Ask != 1.0852 {
		t.Fatalf("quote = %+v", q)
	}
	if c.Latest() == nil || c.Latest().TotalPnL != 3.5 {
		t.Fatalf("Latest() = %+v", c.Latest())
	}
	if c.State() != StateConnected {
		t.Fatalf("state = %v, want CONNECTED", c.State())
	}
}

func TestClient_DropsMalformedMessages(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"market_update","prices":{},"timestamp":1}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := New(Config{URL: url})
	if err != nil {
		t.Fatal(err)
	}

	var updates atomic.Int32
	c.OnUpdate = func(*model.MarketUpdate) { updates.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return updates.Load() == 1 })

	// The bad frames must not have torn the connection down.
	if c.State() != StateConnected {
		t.Fatalf("state = %v, want CONNECTED", c.State())
	}
	if updates.Load() != 1 {
		t.Fatalf("updates = %d, want 1", updates.Load())
	}
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int32
	url := wsServer(t, func(conn *websocket.Conn) {
		n := conns.Add(1)
		if n == 1 {
			return // drop the first connection immediately
		}
		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"market_update","prices":{},"timestamp":2}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := New(Config{URL: url, ReconnectDelay: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	var reconnects atomic.Int32
	c.OnReconnect = func() { reconnects.Add(1) }
	var updates atomic.Int32
	c.OnUpdate = func(*model.MarketUpdate) { updates.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return updates.Load() >= 1 })

	if reconnects.Load() < 1 {
		t.Fatalf("reconnects = %d, want >= 1", reconnects.Load())
	}
	if conns.Load() < 2 {
		t.Fatalf("connections = %d, want >= 2", conns.Load())
	}
}

func TestClient_CleanShutdown(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := New(Config{URL: url})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return c.State() == StateConnected })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state = %v, want DISCONNECTED", c.State())
	}
}

func TestClient_NoGoroutineLeakAcrossReconnects(t *testing.T) {
	var conns atomic.Int32
	url := wsServer(t, func(conn *websocket.Conn) {
		conns.Add(1) // drop every connection immediately
	})

	c, err := New(Config{URL: url, ReconnectDelay: 5 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	before := runtime.NumGoroutine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, 2*time.Second, func() bool { return conns.Load() >= 20 })

	// Checked while ctx is still live: a watcher parked on ctx.Done()
	// survives its connection, so twenty reconnects leaving twenty
	// watchers would show up here.
	waitFor(t, 2*time.Second, func() bool {
		runtime.GC()
		return runtime.NumGoroutine() <= before+5
	})
}

func TestClient_BadURL(t *testing.T) {
	if _, err := New(Config{URL: "://not-a-url"}); err == nil {
		t.Fatal("expected error for bad URL")
	}
}
