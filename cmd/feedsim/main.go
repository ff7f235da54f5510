// cmd/feedsim — Demo terminal bridge.
// Serves simulated market_update pushes and synthetic candle history so
// chartd can run end to end without a real trading terminal.
//
// Update JSON shape is identical to model.MarketUpdate:
//
//	{"type":"market_update","prices":{"EURUSD":{"bid":1.085,...}},"timestamp":...}
//
// Config (env vars):
//
//	FEEDSIM_ADDR         — listen address (default: ":8000")
//	FEEDSIM_SYMBOLS      — comma-separated SYMBOL:PRICE:DIGITS triples
//	                       (default: "EURUSD:1.0850:5,XAUUSD:2350.00:2")
//	FEEDSIM_INTERVAL_MS  — push interval milliseconds (default: "500")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chartsync/internal/model"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	mu     sync.Mutex
	Symbol string
	Price  float64
	Digits int
	Spread float64 // in points
}

func (ins *instrument) point() float64 {
	return math.Pow(10, -float64(ins.Digits))
}

// quote returns the current bid/ask.
func (ins *instrument) quote(now time.Time) model.PriceQuote {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	return model.PriceQuote{
		Bid:    ins.Price,
		Ask:    ins.Price + ins.Spread*ins.point(),
		Spread: ins.Spread,
		Time:   now.Unix(),
	}
}

// walk applies a tiny random walk (±0.05%) to the price.
func (ins *instrument) walk() {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	pct := (rand.Float64()*0.1 - 0.05) / 100.0
	ins.Price += ins.Price * pct
	if ins.Price <= 0 {
		ins.Price = ins.point()
	}
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop update
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Update generator ─────────────────────────────────────────────────────────

func runGenerator(h *hub, instruments []*instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now().UTC()
		prices := make(map[string]model.PriceQuote, len(instruments))
		for _, ins := range instruments {
			ins.walk()
			prices[ins.Symbol] = ins.quote(now)
		}

		upd := model.MarketUpdate{
			Type:      "market_update",
			Prices:    prices,
			Positions: []model.Position{},
			Timestamp: float64(now.UnixNano()) / float64(time.Second),
		}
		b, err := json.Marshal(upd)
		if err != nil {
			continue
		}
		h.broadcast(b)
	}
}

// ─── REST: candle history ─────────────────────────────────────────────────────

// candlesHandler serves synthetic history generated backwards from the
// instrument's current price with the same random walk.
func candlesHandler(instruments map[string]*instrument) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		symbol := q.Get("symbol")
		tfName := q.Get("timeframe")
		count, _ := strconv.Atoi(q.Get("count"))
		if count <= 0 || count > 5000 {
			count = 500
		}

		ins, ok := instruments[symbol]
		if !ok {
			http.Error(w, `{"detail":"unknown symbol"}`, http.StatusNotFound)
			return
		}
		step, ok := bridgeTimeframes[tfName]
		if !ok {
			http.Error(w, `{"detail":"unknown timeframe"}`, http.StatusBadRequest)
			return
		}

		ins.mu.Lock()
		price := ins.Price
		digits := ins.Digits
		ins.mu.Unlock()

		type wireCandle struct {
			Time   int64   `json:"time"`
			Open   float64 `json:"open"`
			High   float64 `json:"high"`
			Low    float64 `json:"low"`
			Close  float64 `json:"close"`
			Volume int64   `json:"volume"`
		}

		end := time.Now().UTC().Truncate(step)
		candles := make([]wireCandle, count)
		// Walk backwards so the series ends at the live price.
		closeP := price
		for i := count - 1; i >= 0; i-- {
			pct := (rand.Float64()*0.2 - 0.1) / 100.0
			openP := closeP * (1 - pct)
			hi := math.Max(openP, closeP) * (1 + rand.Float64()*0.0005)
			lo := math.Min(openP, closeP) * (1 - rand.Float64()*0.0005)
			candles[i] = wireCandle{
				Time:   end.Add(-time.Duration(count-1-i) * step).Unix(),
				Open:   round(openP, digits),
				High:   round(hi, digits),
				Low:    round(lo, digits),
				Close:  round(closeP, digits),
				Volume: int64(rand.Intn(500) + 50),
			}
			closeP = openP
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candles": candles,
			"digits":  digits,
		})
	}
}

var bridgeTimeframes = map[string]time.Duration{
	"1M":  time.Minute,
	"5M":  5 * time.Minute,
	"15M": 15 * time.Minute,
	"30M": 30 * time.Minute,
	"1H":  time.Hour,
	"4H":  4 * time.Hour,
	"1D":  24 * time.Hour,
}

func round(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo terminal bridge...")

	addr := envOrDefault("FEEDSIM_ADDR", ":8000")
	symbolsEnv := envOrDefault("FEEDSIM_SYMBOLS", "EURUSD:1.0850:5,XAUUSD:2350.00:2")
	intervalMs := envIntOrDefault("FEEDSIM_INTERVAL_MS", 500)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[feedsim] no symbols configured via FEEDSIM_SYMBOLS")
	}
	bySymbol := make(map[string]*instrument, len(instruments))
	for _, ins := range instruments {
		bySymbol[ins.Symbol] = ins
		log.Printf("[feedsim] symbol %s @ %v (digits=%d)", ins.Symbol, ins.Price, ins.Digits)
	}
	log.Printf("[feedsim] push interval: %dms", intervalMs)

	h := newHub()
	go runGenerator(h, instruments, intervalMs)

	http.HandleFunc("/ws/market", wsHandler(h))
	http.HandleFunc("/api/market/candles", candlesHandler(bySymbol))
	http.HandleFunc("/api/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"token":"feedsim-session"}`)
	})
	http.HandleFunc("/api/account", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(model.Account{
			Balance: 10000, Equity: 10000, FreeMargin: 10000,
			Currency: "USD", Leverage: 100,
		})
	})
	http.HandleFunc("/api/positions", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"positions":[]}`)
	})
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s (WebSocket: ws://localhost%s/ws/market)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []*instrument {
	var result []*instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.Split(part, ":")
		if len(seg) != 3 {
			log.Printf("[feedsim] skipping invalid symbol spec: %q", part)
			continue
		}
		price, err1 := strconv.ParseFloat(strings.TrimSpace(seg[1]), 64)
		digits, err2 := strconv.Atoi(strings.TrimSpace(seg[2]))
		if err1 != nil || err2 != nil || price <= 0 {
			log.Printf("[feedsim] skipping invalid symbol spec: %q", part)
			continue
		}
		result = append(result, &instrument{
			Symbol: strings.TrimSpace(seg[0]),
			Price:  price,
			Digits: digits,
			Spread: 2,
		})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
