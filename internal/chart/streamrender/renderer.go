// Package streamrender implements chart.Renderer by serializing drawing
// operations as JSON envelopes pushed to dashboard UI clients. The
// browser holds the actual canvas; this renderer is the authoritative
// chart state it mirrors.
//
// Alongside the live op stream it keeps enough state to replay the
// current chart to a newly connected client.
package streamrender

import (
	"encoding/json"
	"sync"

	"chartsync/internal/chart"
	"chartsync/internal/indicator"
	"chartsync/internal/model"
)

// Op is one serialized drawing operation.
type Op struct {
	Op     string            `json:"op"`
	ID     chart.Handle      `json:"id,omitempty"`
	Name   string            `json:"name,omitempty"`
	Label  string            `json:"label,omitempty"`
	Price  float64           `json:"price,omitempty"`
	Digits int               `json:"digits,omitempty"`
	Theme  chart.Theme       `json:"theme,omitempty"`
	Layout *chart.Layout     `json:"layout,omitempty"`
	Style  *chart.LineStyle  `json:"style,omitempty"`
	Candle *model.Candle     `json:"candle,omitempty"`
	Chart  []model.Candle    `json:"candles,omitempty"`
	Points []indicator.Point `json:"points,omitempty"`
}

type lineState struct {
	name   string
	style  chart.LineStyle
	points []indicator.Point
}

type priceLineState struct {
	label string
	price float64
	style chart.LineStyle
}

// Renderer broadcasts ops through a sink and retains replayable state.
// The surface calls it from a single goroutine; the mutex only guards
// Replay against concurrent client connects.
type Renderer struct {
	sink func([]byte)

	mu         sync.RWMutex
	nextID     chart.Handle
	candles    []model.Candle
	digits     int
	theme      chart.Theme
	layout     chart.Layout
	lines      map[chart.Handle]*lineState
	priceLines map[chart.Handle]*priceLineState
	lineOrder  []chart.Handle
}

// New creates a stream renderer. sink receives each op as marshaled
// JSON; the gateway hub's Broadcast is the production sink.
func New(sink func([]byte)) *Renderer {
	return &Renderer{
		sink:       sink,
		theme:      chart.ThemeDark,
		layout:     chart.DefaultLayout,
		lines:      make(map[chart.Handle]*lineState),
		priceLines: make(map[chart.Handle]*priceLineState),
	}
}

func (r *Renderer) emit(op Op) {
	b, err := json.Marshal(op)
	if err != nil {
		return // ops are built from plain values; cannot realistically fail
	}
	r.sink(b)
}

// SetCandles replaces the base price series.
func (r *Renderer) SetCandles(candles []model.Candle) {
	r.mu.Lock()
	r.candles = append(r.candles[:0:0], candles...)
	r.mu.Unlock()
	r.emit(Op{Op: "set_candles", Chart: candles})
}

// UpdateCandle amends or extends the tail bar.
func (r *Renderer) UpdateCandle(c model.Candle) {
	r.mu.Lock()
	n := len(r.candles)
	switch {
	case n > 0 && c.Time.Equal(r.candles[n-1].Time):
		r.candles[n-1] = c
	case n == 0 || c.Time.After(r.candles[n-1].Time):
		r.candles = append(r.candles, c)
	}
	r.mu.Unlock()
	r.emit(Op{Op: "update_candle", Candle: &c})
}

// SetPricePrecision sets the price-axis decimal places.
func (r *Renderer) SetPricePrecision(digits int) {
	r.mu.Lock()
	r.digits = digits
	r.mu.Unlock()
	r.emit(Op{Op: "set_precision", Digits: digits})
}

// ResetTimeScale re-centers the visible range; stateless passthrough.
func (r *Renderer) ResetTimeScale() {
	r.emit(Op{Op: "reset_time_scale"})
}

// AddLineSeries allocates a new line series handle.
func (r *Renderer) AddLineSeries(name string, style chart.LineStyle) chart.Handle {
	r.mu.Lock()
	r.nextID++
	h := r.nextID
	r.lines[h] = &lineState{name: name, style: style}
	r.lineOrder = append(r.lineOrder, h)
	r.mu.Unlock()

	r.emit(Op{Op: "add_line", ID: h, Name: name, Style: &style})
	return h
}

// SetLineData replaces a line series' points. Unknown handles no-op.
func (r *Renderer) SetLineData(h chart.Handle, points []indicator.Point) {
	r.mu.Lock()
	ls, ok := r.lines[h]
	if ok {
		ls.points = points
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.emit(Op{Op: "set_line_data", ID: h, Points: points})
}

// RemoveSeries destroys a line series. Removing a dead handle no-ops.
func (r *Renderer) RemoveSeries(h chart.Handle) {
	r.mu.Lock()
	_, ok := r.lines[h]
	if ok {
		delete(r.lines, h)
		r.lineOrder = removeHandle(r.lineOrder, h)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.emit(Op{Op: "remove_series", ID: h})
}

// AddPriceLine draws a horizontal price level.
func (r *Renderer) AddPriceLine(label string, price float64, style chart.LineStyle) chart.Handle {
	r.mu.Lock()
	r.nextID++
	h := r.nextID
	r.priceLines[h] = &priceLineState{label: label, price: price, style: style}
	r.mu.Unlock()

	r.emit(Op{Op: "add_price_line", ID: h, Label: label, Price: price, Style: &style})
	return h
}

// RemovePriceLine clears a price level. Removing a dead handle no-ops.
func (r *Renderer) RemovePriceLine(h chart.Handle) {
	r.mu.Lock()
	_, ok := r.priceLines[h]
	if ok {
		delete(r.priceLines, h)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.emit(Op{Op: "remove_price_line", ID: h})
}

// ApplyTheme restyles the chart without touching series.
func (r *Renderer) ApplyTheme(t chart.Theme) {
	r.mu.Lock()
	r.theme = t
	r.mu.Unlock()
	r.emit(Op{Op: "set_theme", Theme: t})
}

// ApplyLayout resizes the chart panes without touching series.
func (r *Renderer) ApplyLayout(l chart.Layout) {
	r.mu.Lock()
	r.layout = l
	r.mu.Unlock()
	r.emit(Op{Op: "set_layout", Layout: &l})
}

// Replay returns the op sequence that reconstructs the current chart
// state on a fresh client, in creation order.
func (r *Renderer) Replay() [][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ops []Op
	ops = append(ops, Op{Op: "set_theme", Theme: r.theme})
	layout := r.layout
	ops = append(ops, Op{Op: "set_layout", Layout: &layout})
	if r.digits > 0 {
		ops = append(ops, Op{Op: "set_precision", Digits: r.digits})
	}
	if len(r.candles) > 0 {
		ops = append(ops, Op{Op: "set_candles", Chart: r.candles})
	}
	for _, h := range r.lineOrder {
		ls := r.lines[h]
		style := ls.style
		ops = append(ops, Op{Op: "add_line", ID: h, Name: ls.name, Style: &style})
		if len(ls.points) > 0 {
			ops = append(ops, Op{Op: "set_line_data", ID: h, Points: ls.points})
		}
	}
	for h, pl := range r.priceLines {
		style := pl.style
		ops = append(ops, Op{Op: "add_price_line", ID: h, Label: pl.label, Price: pl.price, Style: &style})
	}

	out := make([][]byte, 0, len(ops))
	for _, op := range ops {
		if b, err := json.Marshal(op); err == nil {
			out = append(out, b)
		}
	}
	return out
}

// LiveSeries returns how many line series are currently alive. Used by
// health reporting.
func (r *Renderer) LiveSeries() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lines)
}

func removeHandle(hs []chart.Handle, h chart.Handle) []chart.Handle {
	out := hs[:0]
	for _, x := range hs {
		if x != h {
			out = append(out, x)
		}
	}
	return out
}
