// Package chart translates logical chart state into drawing calls on a
// single stateful rendering object, and guarantees that repeated
// toggles never leak duplicate or orphaned graphics.
package chart

import (
	"chartsync/internal/indicator"
	"chartsync/internal/model"
)

// Handle is an opaque reference to one drawn artifact (a line series or
// a horizontal price line). Handles are owned exclusively by Surface;
// callers request logical operations, never handles.
type Handle int64

// NoHandle is the zero Handle; renderers never return it for a live artifact.
const NoHandle Handle = 0

// Pane selects which chart pane a line series is drawn into.
const (
	PanePrice      = 0 // overlaid on the price candles
	PaneOscillator = 1 // separate sub-pane (RSI, MACD)
)

// LineStyle is the visual style of a line series or price line.
type LineStyle struct {
	Color  string `json:"color"`
	Width  int    `json:"width"`
	Dashed bool   `json:"dashed,omitempty"`
	Pane   int    `json:"pane,omitempty"`
}

// Theme is the chart color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Layout is the pane arrangement of the chart.
type Layout struct {
	// SplitRatio is the price pane's share of the height when an
	// oscillator pane is visible. Valid range (0, 1).
	SplitRatio float64 `json:"split_ratio"`
	ShowVolume bool    `json:"show_volume"`
}

// DefaultLayout is the pane arrangement before any client adjusts it.
var DefaultLayout = Layout{SplitRatio: 0.7, ShowVolume: true}

// Renderer is the stateful rendering object the surface draws on.
//
// Removal of a handle that no longer exists must be a no-op, never an
// error: multiple paths (selector change, explicit clear, toggle off)
// may race to clear the same artifact.
type Renderer interface {
	// SetCandles replaces the base price series wholesale.
	SetCandles(candles []model.Candle)
	// UpdateCandle amends or extends the tail of the base series.
	UpdateCandle(c model.Candle)
	// SetPricePrecision sets the price-axis decimal places.
	SetPricePrecision(digits int)
	// ResetTimeScale re-centers the visible time range on the data.
	ResetTimeScale()

	AddLineSeries(name string, style LineStyle) Handle
	SetLineData(h Handle, points []indicator.Point)
	RemoveSeries(h Handle)

	AddPriceLine(label string, price float64, style LineStyle) Handle
	RemovePriceLine(h Handle)

	// ApplyTheme restyles the existing chart. Style-only: series and
	// overlays survive untouched.
	ApplyTheme(t Theme)
	// ApplyLayout adjusts pane sizing. Style-only, like ApplyTheme.
	ApplyLayout(l Layout)
}
