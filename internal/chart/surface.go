package chart

import (
	"chartsync/internal/indicator"
	"chartsync/internal/model"
)

// OverlayKind identifies one toggleable indicator overlay. Each kind
// maps to at most one live overlay at a time.
type OverlayKind string

const (
	OverlayEMA       OverlayKind = "ema"
	OverlaySMA       OverlayKind = "sma"
	OverlayRSI       OverlayKind = "rsi"
	OverlayMACD      OverlayKind = "macd"
	OverlayBollinger OverlayKind = "bollinger"
)

// IndicatorConfig holds the parameters for one overlay. Zero fields are
// filled with the conventional defaults per kind.
type IndicatorConfig struct {
	Period       int     `json:"period,omitempty"`
	FastPeriod   int     `json:"fast,omitempty"`
	SlowPeriod   int     `json:"slow,omitempty"`
	SignalPeriod int     `json:"signal,omitempty"`
	StdDevMult   float64 `json:"std_dev,omitempty"`
}

func (c IndicatorConfig) withDefaults(kind OverlayKind) IndicatorConfig {
	switch kind {
	case OverlayEMA, OverlaySMA:
		if c.Period == 0 {
			c.Period = 9
		}
	case OverlayRSI:
		if c.Period == 0 {
			c.Period = 14
		}
	case OverlayMACD:
		if c.FastPeriod == 0 {
			c.FastPeriod = 12
		}
		if c.SlowPeriod == 0 {
			c.SlowPeriod = 26
		}
		if c.SignalPeriod == 0 {
			c.SignalPeriod = 9
		}
	case OverlayBollinger:
		if c.Period == 0 {
			c.Period = 20
		}
		if c.StdDevMult == 0 {
			c.StdDevMult = 2.0
		}
	}
	return c
}

// overlay tracks the live graphics composing one indicator overlay.
type overlay struct {
	cfg     IndicatorConfig
	handles []Handle
}

// Price-line decoration roles. Signal preview and position overlay are
// keyed by role, not by signal identity, so re-invocation always
// replaces cleanly.
const (
	roleEntry      = "entry"
	roleStopLoss   = "stopLoss"
	roleTakeProfit = "takeProfit"
)

// Surface owns the mapping from logical overlay identity to renderer
// handles. All create/destroy goes through this one choke point, which
// is what makes overlay teardown idempotent.
//
// Single-writer: the sync controller (and the UI callbacks it serializes)
// is the only caller; no internal locking.
type Surface struct {
	r Renderer

	candles   []model.Candle
	precision int

	overlays      map[OverlayKind]*overlay
	signalLines   map[string]Handle
	positionLines map[string]Handle

	theme  Theme
	layout Layout
}

// NewSurface wraps a renderer. The surface starts with no base series,
// no overlays, and the dark theme.
func NewSurface(r Renderer) *Surface {
	return &Surface{
		r:             r,
		overlays:      make(map[OverlayKind]*overlay),
		signalLines:   make(map[string]Handle),
		positionLines: make(map[string]Handle),
		theme:         ThemeDark,
		layout:        DefaultLayout,
	}
}

// SetBaseSeries replaces the main price series wholesale, applies the
// instrument's price precision, re-centers the time axis, and
// re-populates every visible overlay from the new series.
func (s *Surface) SetBaseSeries(candles []model.Candle, pricePrecision int) {
	s.candles = append(s.candles[:0:0], candles...)
	s.precision = pricePrecision

	s.r.SetPricePrecision(pricePrecision)
	s.r.SetCandles(s.candles)
	s.r.ResetTimeScale()
	s.refreshOverlays()
}

// MergeBar folds one live bar into the base series (amend tail or
// append) and recomputes all visible overlays.
func (s *Surface) MergeBar(c model.Candle) {
	n := len(s.candles)
	switch {
	case n == 0 || c.Time.After(s.candles[n-1].Time):
		s.candles = append(s.candles, c)
	case c.Time.Equal(s.candles[n-1].Time):
		s.candles[n-1] = c
	default:
		return // stale bar; the store already filtered these
	}
	s.r.UpdateCandle(c)
	s.refreshOverlays()
}

// SetIndicatorVisible toggles an indicator overlay.
//
// Turning on creates the underlying graphics once and populates them;
// turning on again with a changed config re-populates the existing
// graphics rather than recreating them; turning off destroys the
// graphics and drops the handles. Either direction is idempotent.
func (s *Surface) SetIndicatorVisible(kind OverlayKind, cfg IndicatorConfig, visible bool) {
	cfg = cfg.withDefaults(kind)
	ov, exists := s.overlays[kind]

	if !visible {
		if !exists {
			return
		}
		for _, h := range ov.handles {
			s.r.RemoveSeries(h)
		}
		delete(s.overlays, kind)
		return
	}

	if exists {
		if ov.cfg == cfg {
			return
		}
		ov.cfg = cfg
		s.populateOverlay(kind, ov)
		return
	}

	ov = &overlay{cfg: cfg, handles: s.createHandles(kind)}
	s.overlays[kind] = ov
	s.populateOverlay(kind, ov)
}

// IndicatorVisible reports whether an overlay is currently shown.
func (s *Surface) IndicatorVisible(kind OverlayKind) bool {
	_, ok := s.overlays[kind]
	return ok
}

// createHandles allocates the renderer series composing one overlay.
// The handle order is fixed per kind and relied on by populateOverlay.
func (s *Surface) createHandles(kind OverlayKind) []Handle {
	switch kind {
	case OverlayEMA:
		return []Handle{s.r.AddLineSeries("ema", LineStyle{Color: "#f0b90b", Width: 2})}
	case OverlaySMA:
		return []Handle{s.r.AddLineSeries("sma", LineStyle{Color: "#9b59b6", Width: 2})}
	case OverlayRSI:
		return []Handle{s.r.AddLineSeries("rsi", LineStyle{Color: "#26a69a", Width: 2, Pane: PaneOscillator})}
	case OverlayMACD:
		return []Handle{
			s.r.AddLineSeries("macd", LineStyle{Color: "#2962ff", Width: 2, Pane: PaneOscillator}),
			s.r.AddLineSeries("macd_signal", LineStyle{Color: "#ff6d00", Width: 1, Pane: PaneOscillator}),
			s.r.AddLineSeries("macd_histogram", LineStyle{Color: "#787b86", Width: 1, Pane: PaneOscillator}),
		}
	case OverlayBollinger:
		return []Handle{
			s.r.AddLineSeries("bb_upper", LineStyle{Color: "#787b86", Width: 1}),
			s.r.AddLineSeries("bb_middle", LineStyle{Color: "#787b86", Width: 1, Dashed: true}),
			s.r.AddLineSeries("bb_lower", LineStyle{Color: "#787b86", Width: 1}),
		}
	}
	return nil
}

// populateOverlay recomputes one overlay's series from the current base
// candles. A too-short series yields empty projections, which clears
// the graphics without destroying them.
func (s *Surface) populateOverlay(kind OverlayKind, ov *overlay) {
	for i, data := range s.projectIndicator(kind, ov.cfg) {
		if i < len(ov.handles) {
			s.r.SetLineData(ov.handles[i], data)
		}
	}
}

// projectIndicator computes the per-handle point series for a kind, in
// the same order createHandles allocates the handles.
func (s *Surface) projectIndicator(kind OverlayKind, cfg IndicatorConfig) [][]indicator.Point {
	switch kind {
	case OverlayEMA:
		return [][]indicator.Point{indicator.EMA(s.candles, cfg.Period)}
	case OverlaySMA:
		return [][]indicator.Point{indicator.SMA(s.candles, cfg.Period)}
	case OverlayRSI:
		return [][]indicator.Point{indicator.RSI(s.candles, cfg.Period)}
	case OverlayMACD:
		m := indicator.MACD(s.candles, cfg.FastPeriod, cfg.SlowPeriod, cfg.SignalPeriod)
		return [][]indicator.Point{m.Line, m.Signal, m.Histogram}
	case OverlayBollinger:
		b := indicator.Bollinger(s.candles, cfg.Period, cfg.StdDevMult)
		return [][]indicator.Point{b.Upper, b.Middle, b.Lower}
	}
	return nil
}

// refreshOverlays re-populates every visible overlay from the current
// base series.
func (s *Surface) refreshOverlays() {
	for kind, ov := range s.overlays {
		s.populateOverlay(kind, ov)
	}
}

// SetSignalPreview draws entry/stop/target price lines for a pending
// signal, clearing any previously drawn preview first. Passing nil
// clears without drawing. Safe to call repeatedly in any order.
func (s *Surface) SetSignalPreview(sig *model.SignalPreview) {
	s.clearLines(s.signalLines)
	if sig == nil {
		return
	}

	entryColor := "#26a69a"
	if sig.Direction == model.DirectionSell {
		entryColor = "#ef5350"
	}
	s.signalLines[roleEntry] = s.r.AddPriceLine("Entry", sig.Entry, LineStyle{Color: entryColor, Width: 2})
	s.signalLines[roleStopLoss] = s.r.AddPriceLine("SL", sig.StopLoss, LineStyle{Color: "#ef5350", Width: 1, Dashed: true})
	s.signalLines[roleTakeProfit] = s.r.AddPriceLine("TP", sig.TakeProfit, LineStyle{Color: "#26a69a", Width: 1, Dashed: true})
}

// SetPositionOverlay draws the open position's entry/SL/TP levels.
// Same contract as the signal preview; the two sets are independent and
// may coexist. Zero SL/TP levels are not drawn.
func (s *Surface) SetPositionOverlay(pos *model.Position) {
	s.clearLines(s.positionLines)
	if pos == nil {
		return
	}

	label := pos.Type + " " + pos.Symbol
	s.positionLines[roleEntry] = s.r.AddPriceLine(label, pos.Entry, LineStyle{Color: "#f0b90b", Width: 2})
	if pos.SL != 0 {
		s.positionLines[roleStopLoss] = s.r.AddPriceLine("SL", pos.SL, LineStyle{Color: "#ef5350", Width: 1, Dashed: true})
	}
	if pos.TP != 0 {
		s.positionLines[roleTakeProfit] = s.r.AddPriceLine("TP", pos.TP, LineStyle{Color: "#26a69a", Width: 1, Dashed: true})
	}
}

func (s *Surface) clearLines(lines map[string]Handle) {
	for role, h := range lines {
		s.r.RemovePriceLine(h) // no-op if already gone
		delete(lines, role)
	}
}

// SetTheme restyles the chart. Style-only: series, overlays, and price
// lines all survive.
func (s *Surface) SetTheme(t Theme) {
	if t != ThemeDark && t != ThemeLight {
		return
	}
	s.theme = t
	s.r.ApplyTheme(t)
}

// Theme returns the active theme.
func (s *Surface) Theme() Theme { return s.theme }

// SetLayout resizes the chart panes. Style-only, like SetTheme.
// Invalid split ratios are ignored.
func (s *Surface) SetLayout(l Layout) {
	if l.SplitRatio <= 0 || l.SplitRatio >= 1 {
		return
	}
	s.layout = l
	s.r.ApplyLayout(l)
}

// Layout returns the active pane layout.
func (s *Surface) Layout() Layout { return s.layout }

// PricePrecision returns the active price-axis precision.
func (s *Surface) PricePrecision() int { return s.precision }
