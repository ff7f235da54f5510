package chart

import (
	"testing"
	"time"

	"chartsync/internal/indicator"
	"chartsync/internal/model"
)

// fakeRenderer records live graphics so tests can assert on handle
// lifecycles without a real drawing backend.
type fakeRenderer struct {
	nextID     Handle
	series     map[Handle]string // handle → series name
	seriesData map[Handle][]indicator.Point
	priceLines map[Handle]string // handle → label

	candles       []model.Candle
	precision     int
	theme         Theme
	layout        Layout
	timeResets    int
	doubleRemoves int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		series:     make(map[Handle]string),
		seriesData: make(map[Handle][]indicator.Point),
		priceLines: make(map[Handle]string),
	}
}

func (f *fakeRenderer) SetCandles(candles []model.Candle) { f.candles = candles }
func (f *fakeRenderer) UpdateCandle(c model.Candle)       {}
func (f *fakeRenderer) SetPricePrecision(digits int)      { f.precision = digits }
func (f *fakeRenderer) ResetTimeScale()                   { f.timeResets++ }
func (f *fakeRenderer) ApplyTheme(t Theme)                { f.theme = t }
func (f *fakeRenderer) ApplyLayout(l Layout)              { f.layout = l }

func (f *fakeRenderer) AddLineSeries(name string, _ LineStyle) Handle {
	f.nextID++
	f.series[f.nextID] = name
	return f.nextID
}

func (f *fakeRenderer) SetLineData(h Handle, points []indicator.Point) {
	if _, ok := f.series[h]; ok {
		f.seriesData[h] = points
	}
}

func (f *fakeRenderer) RemoveSeries(h Handle) {
	if _, ok := f.series[h]; !ok {
		f.doubleRemoves++
		return
	}
	delete(f.series, h)
	delete(f.seriesData, h)
}

func (f *fakeRenderer) AddPriceLine(label string, _ float64, _ LineStyle) Handle {
	f.nextID++
	f.priceLines[f.nextID] = label
	return f.nextID
}

func (f *fakeRenderer) RemovePriceLine(h Handle) {
	if _, ok := f.priceLines[h]; !ok {
		f.doubleRemoves++
		return
	}
	delete(f.priceLines, h)
}

func (f *fakeRenderer) seriesNamed(name string) int {
	n := 0
	for _, s := range f.series {
		if s == name {
			n++
		}
	}
	return n
}

func trendSeries(n int) []model.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		c := 1.08 + float64(i)*0.001
		out[i] = model.Candle{Time: base.Add(time.Duration(i) * time.Hour), Open: c, High: c + 0.001, Low: c - 0.001, Close: c, Volume: 50}
	}
	return out
}

func TestSurface_ToggleTwiceKeepsOneHandle(t *testing.T) {
	f := newFakeRenderer()
	s := NewSurface(f)
	s.SetBaseSeries(trendSeries(60), 5)

	cfg := IndicatorConfig{Period: 14}
	s.SetIndicatorVisible(OverlayRSI, cfg, true)
	s.SetIndicatorVisible(OverlayRSI, cfg, true)

	if got := f.seriesNamed("rsi"); got != 1 {
		t.Fatalf("expected exactly 1 rsi graphic, got %d", got)
	}
}

func TestSurface_ToggleOffDestroysGraphics(t *testing.T) {
	f := newFakeRenderer()
	s := NewSurface(f)
	s.SetBaseSeries(trendSeries(60), 5)

	s.SetIndicatorVisible(OverlayMACD, IndicatorConfig{}, true)
	if len(f.series) != 3 {
		t.Fatalf("expected 3 macd series, got %d", len(f.series))
	}

	s.SetIndicatorVisible(OverlayMACD, IndicatorConfig{}, false)
	if len(f.series) != 0 {
		t.Fatalf("expected 0 series after toggle off, got %d", len(f.series))
	}

	// Double toggle-off must be a silent no-op.
	s.SetIndicatorVisible(OverlayMACD, IndicatorConfig{}, false)
	if f.doubleRemoves != 0 {
		t.Error("toggle off of hidden overlay hit the renderer")
	}
}

func TestSurface_ConfigChangeRepopulatesWithoutRecreate(t *testing.T) {
	f := newFakeRenderer()
	s := NewSurface(f)
	s.SetBaseSeries(trendSeries(80), 5)

	s.SetIndicatorVisible(OverlayEMA, IndicatorConfig{Period: 9}, true)
	var h Handle
	for hh := range f.series {
		h = hh
	}
	before := len(f.seriesData[h])

	s.SetIndicatorVisible(OverlayEMA, IndicatorConfig{Period: 21}, true)
	if got := f.seriesNamed("ema"); got != 1 {
		t.Fatalf("config change must not create a second graphic, got %d", got)
	}
	after := len(f.seriesData[h])
	if before == after {
		t.Error("config change did not repopulate the series data")
	}
}

func TestSurface_SignalPreviewLifecycle(t *testing.T) {
	f := newFakeRenderer()
	s := NewSurface(f)
	s.SetBaseSeries(trendSeries(10), 5)

	sig := &model.SignalPreview{
		Symbol: "EURUSD", Direction: model.DirectionBuy,
		Entry: 1.0850, StopLoss: 1.0820, TakeProfit: 1.0890, Confidence: 85,
	}
	s.SetSignalPreview(sig)
	if len(f.priceLines) != 3 {
		t.Fatalf("expected 3 preview lines, got %d", len(f.priceLines))
	}

	// Replacing the preview must not accumulate lines.
	s.SetSignalPreview(sig)
	if len(f.priceLines) != 3 {
		t.Fatalf("expected 3 preview lines after replace, got %d", len(f.priceLines))
	}

	s.SetSignalPreview(nil)
	if len(f.priceLines) != 0 {
		t.Fatalf("expected 0 preview lines after clear, got %d", len(f.priceLines))
	}

	// Double clear is a no-op.
	s.SetSignalPreview(nil)
	if f.doubleRemoves != 0 {
		t.Error("double clear reached the renderer with dead handles")
	}
}

func TestSurface_SignalAndPositionOverlaysCoexist(t *testing.T) {
	f := newFakeRenderer()
	s := NewSurface(f)
	s.SetBaseSeries(trendSeries(10), 5)

	s.SetSignalPreview(&model.SignalPreview{
		Symbol: "EURUSD", Direction: model.DirectionSell,
		Entry: 1.0850, StopLoss: 1.0880, TakeProfit: 1.0800,
	})
	s.SetPositionOverlay(&model.Position{
		Ticket: 7, Symbol: "EURUSD", Type: "BUY",
		Entry: 1.0700, SL: 1.0650, TP: 1.0790,
	})

	if len(f.priceLines) != 6 {
		t.Fatalf("expected 6 lines (3 preview + 3 position), got %d", len(f.priceLines))
	}

	// Clearing one set leaves the other intact.
	s.SetSignalPreview(nil)
	if len(f.priceLines) != 3 {
		t.Fatalf("expected 3 position lines to survive, got %d", len(f.priceLines))
	}
}

func TestSurface_PositionWithoutStops(t *testing.T) {
	f := newFakeRenderer()
	s := NewSurface(f)

	s.SetPositionOverlay(&model.Position{Ticket: 1, Symbol: "XAUUSD", Type: "SELL", Entry: 2400.0})
	if len(f.priceLines) != 1 {
		t.Fatalf("expected entry line only, got %d lines", len(f.priceLines))
	}
}

func TestSurface_ThemeChangePreservesOverlays(t *testing.T) {
	f := newFakeRenderer()
	s := NewSurface(f)
	s.SetBaseSeries(trendSeries(60), 5)
	s.SetIndicatorVisible(OverlayBollinger, IndicatorConfig{}, true)

	s.SetTheme(ThemeLight)
	if f.theme != ThemeLight {
		t.Error("theme not applied to renderer")
	}
	if len(f.series) != 3 {
		t.Errorf("theme change disturbed overlay graphics: %d series", len(f.series))
	}
}

func TestSurface_LayoutChangePreservesOverlays(t *testing.T) {
	f := newFakeRenderer()
	s := NewSurface(f)
	s.SetBaseSeries(trendSeries(60), 5)
	s.SetIndicatorVisible(OverlayRSI, IndicatorConfig{Period: 14}, true)

	s.SetLayout(Layout{SplitRatio: 0.5, ShowVolume: false})
	if f.layout.SplitRatio != 0.5 {
		t.Error("layout not applied to renderer")
	}
	if len(f.series) != 1 {
		t.Errorf("layout change disturbed overlay graphics: %d series", len(f.series))
	}

	// Invalid ratios are ignored.
	s.SetLayout(Layout{SplitRatio: 1.5})
	if s.Layout().SplitRatio != 0.5 {
		t.Errorf("invalid split ratio accepted: %v", s.Layout())
	}
}

func TestSurface_BaseSeriesReplaceRepopulatesOverlays(t *testing.T) {
	f := newFakeRenderer()
	s := NewSurface(f)
	s.SetBaseSeries(trendSeries(60), 5)
	s.SetIndicatorVisible(OverlayRSI, IndicatorConfig{Period: 14}, true)

	var h Handle
	for hh := range f.series {
		h = hh
	}
	before := len(f.seriesData[h])

	s.SetBaseSeries(trendSeries(120), 3)
	after := len(f.seriesData[h])
	if after <= before {
		t.Errorf("overlay not repopulated on base replace: %d → %d points", before, after)
	}
	if f.precision != 3 {
		t.Errorf("price precision not applied: got %d", f.precision)
	}
	if f.timeResets != 2 {
		t.Errorf("expected time axis reset per base replace, got %d", f.timeResets)
	}
}

func TestSurface_ShortSeriesYieldsEmptyOverlay(t *testing.T) {
	f := newFakeRenderer()
	s := NewSurface(f)
	s.SetBaseSeries(trendSeries(5), 5)

	s.SetIndicatorVisible(OverlayRSI, IndicatorConfig{Period: 14}, true)
	if got := f.seriesNamed("rsi"); got != 1 {
		t.Fatalf("expected the graphic to exist even with no data, got %d", got)
	}
	for h, name := range f.series {
		if name == "rsi" && len(f.seriesData[h]) != 0 {
			t.Error("expected empty projection on short series")
		}
	}
}

func TestSurface_MergeBarExtendsAndAmends(t *testing.T) {
	f := newFakeRenderer()
	s := NewSurface(f)
	base := trendSeries(30)
	s.SetBaseSeries(base, 5)
	s.SetIndicatorVisible(OverlayEMA, IndicatorConfig{Period: 9}, true)

	var h Handle
	for hh := range f.series {
		h = hh
	}
	before := len(f.seriesData[h])

	// Append a new bar — the EMA projection grows by one.
	last := base[len(base)-1]
	next := model.Candle{Time: last.Time.Add(time.Hour), Open: last.Close, High: last.Close + 0.002, Low: last.Close, Close: last.Close + 0.001}
	s.MergeBar(next)
	if got := len(f.seriesData[h]); got != before+1 {
		t.Errorf("expected overlay to grow by 1 on append: %d → %d", before, got)
	}

	// Amend the same bar — the projection length must not change.
	next.Close += 0.0005
	s.MergeBar(next)
	if got := len(f.seriesData[h]); got != before+1 {
		t.Errorf("amend changed overlay length: got %d", got)
	}
}
