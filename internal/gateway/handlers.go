package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"chartsync/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Dashboard and API are served from different ports in dev.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Routes registers the gateway's HTTP endpoints on mux.
func (h *Hub) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/api/series", h.handleSeries)
	mux.HandleFunc("/api/candles", h.handleCandles)
	mux.HandleFunc("/api/refresh", h.handleRefresh)
	mux.HandleFunc("/api/archive", h.handleArchive)
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade failed: %v", err)
		return
	}
	h.HandleWSRequest(conn)
}

// handleSeries reports the active selection.
func (h *Hub) handleSeries(w http.ResponseWriter, r *http.Request) {
	sel, ok := h.ctrl.Selector()
	if !ok {
		http.Error(w, `{"error":"no series selected"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"symbol":    sel.Symbol,
		"timeframe": sel.Timeframe,
		"clients":   h.ClientCount(),
	})
}

// handleCandles dumps the active series' bars. Debug aid; the chart
// itself syncs over the WebSocket.
func (h *Hub) handleCandles(w http.ResponseWriter, r *http.Request) {
	sel, ok := h.ctrl.Selector()
	if !ok {
		http.Error(w, `{"error":"no series selected"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"symbol":    sel.Symbol,
		"timeframe": sel.Timeframe,
		"candles":   h.ctrl.Candles(),
	})
}

// handleRefresh forces a snapshot re-fetch of the active series.
func (h *Hub) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"POST only"}`, http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := h.ctrl.Refresh(ctx); err != nil {
		status := http.StatusBadGateway
		if _, ok := h.ctrl.Selector(); !ok {
			status = http.StatusNotFound
		}
		writeJSONStatus(w, status, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"status": "refreshed"})
}

// handleArchive reads archived bars for any series, not just the
// active one. ?symbol=EURUSD&timeframe=1m[&from=unix&to=unix]; the
// range defaults to the 24h up to the newest archived bar.
func (h *Hub) handleArchive(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, `{"error":"archive disabled"}`, http.StatusNotFound)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, `{"error":"symbol required"}`, http.StatusBadRequest)
		return
	}
	tf, err := model.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	sel := model.SeriesSelector{Symbol: symbol, Timeframe: tf}

	last, err := h.history.LastTimestamp(sel)
	if err != nil {
		writeJSONStatus(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	to := last
	if v := r.URL.Query().Get("to"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, `{"error":"bad to"}`, http.StatusBadRequest)
			return
		}
		to = time.Unix(sec, 0).UTC()
	}
	from := to.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("from"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, `{"error":"bad from"}`, http.StatusBadRequest)
			return
		}
		from = time.Unix(sec, 0).UTC()
	}

	candles, err := h.history.LoadRange(r.Context(), sel, from, to)
	if err != nil {
		writeJSONStatus(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	resp := map[string]any{
		"symbol":    sel.Symbol,
		"timeframe": sel.Timeframe,
		"candles":   candles,
	}
	if !last.IsZero() {
		resp["last_archived"] = last.Unix()
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(v)
}
