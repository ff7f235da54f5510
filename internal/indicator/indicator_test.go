package indicator

import (
	"math"
	"testing"
	"time"

	"chartsync/internal/model"
)

// makeSeries builds a 1m candle series from close prices, with
// open/high/low derived so each bar stays internally consistent.
func makeSeries(closes ...float64) []model.Candle {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		candles[i] = model.Candle{
			Time:   base.Add(time.Duration(i) * time.Minute),
			Open:   open,
			High:   math.Max(open, c) + 0.5,
			Low:    math.Min(open, c) - 0.5,
			Close:  c,
			Volume: 100,
		}
	}
	return candles
}

func TestRSI_Length(t *testing.T) {
	tests := []struct {
		name    string
		bars    int
		period  int
		wantLen int
	}{
		{"empty input", 0, 14, 0},
		{"exactly period", 14, 14, 0},
		{"one more than period", 15, 14, 1},
		{"long series", 100, 14, 86},
		{"short period", 10, 2, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closes := make([]float64, tt.bars)
			for i := range closes {
				closes[i] = 100 + float64(i%7)
			}
			got := RSI(makeSeries(closes...), tt.period)
			if len(got) != tt.wantLen {
				t.Errorf("RSI length: expected %d, got %d", tt.wantLen, len(got))
			}
		})
	}
}

func TestRSI_Bounds(t *testing.T) {
	// Mixed up/down closes — every value must stay in [0, 100].
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/3) + float64(i%5)
	}
	for _, p := range []int{2, 7, 14, 30} {
		for _, pt := range RSI(makeSeries(closes...), p) {
			if pt.Value < 0 || pt.Value > 100 {
				t.Fatalf("RSI(period=%d) out of bounds at %v: %v", p, pt.Time, pt.Value)
			}
		}
	}
}

func TestRSI_AllGains_Is100(t *testing.T) {
	// Strictly rising closes: average loss is zero, RSI defined as 100.
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	for _, pt := range RSI(makeSeries(closes...), 5) {
		if pt.Value != 100.0 {
			t.Errorf("expected RSI=100 on pure uptrend, got %v", pt.Value)
		}
	}
}

func TestRSI_UptrendAbove50(t *testing.T) {
	// 20-bar uptrend with small pullbacks should keep RSI above 50.
	closes := make([]float64, 20)
	price := 100.0
	for i := range closes {
		if i%4 == 3 {
			price -= 0.3 // shallow pullback
		} else {
			price += 1.0
		}
		closes[i] = price
	}
	pts := RSI(makeSeries(closes...), 2)
	if len(pts) != 18 {
		t.Fatalf("expected 18 points, got %d", len(pts))
	}
	above := 0
	for _, pt := range pts {
		if pt.Value > 50 {
			above++
		}
	}
	if above < len(pts)*3/4 {
		t.Errorf("expected most RSI values above 50 in uptrend, got %d/%d", above, len(pts))
	}
}

func TestEMA_SeedIsSimpleMean(t *testing.T) {
	candles := makeSeries(10, 20, 30, 40, 50, 60)
	got := EMA(candles, 4)
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got))
	}
	if got[0].Value != 25.0 { // (10+20+30+40)/4
		t.Errorf("EMA seed: expected 25.0, got %v", got[0].Value)
	}
	if !got[0].Time.Equal(candles[3].Time) {
		t.Errorf("EMA seed time: expected %v, got %v", candles[3].Time, got[0].Time)
	}
}

func TestEMA_Recurrence(t *testing.T) {
	candles := makeSeries(10, 20, 30, 40)
	got := EMA(candles, 2)
	// seed = 15, k = 2/3: then (30-15)*2/3+15 = 25, (40-25)*2/3+25 = 35
	want := []float64{15, 25, 35}
	for i, w := range want {
		if math.Abs(got[i].Value-w) > 1e-9 {
			t.Errorf("EMA[%d]: expected %v, got %v", i, w, got[i].Value)
		}
	}
}

func TestEMA_ShortSeriesEmpty(t *testing.T) {
	if got := EMA(makeSeries(1, 2, 3), 4); len(got) != 0 {
		t.Errorf("expected empty EMA on short series, got %d points", len(got))
	}
}

func TestSMA_Window(t *testing.T) {
	got := SMA(makeSeries(2, 4, 6, 8), 2)
	want := []float64{3, 5, 7}
	if len(got) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Value != w {
			t.Errorf("SMA[%d]: expected %v, got %v", i, w, got[i].Value)
		}
	}
}

func TestMACD_HistogramIsPointwiseDifference(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/8) + float64(i)/10
	}
	m := MACD(makeSeries(closes...), 12, 26, 9)

	if len(m.Line) == 0 || len(m.Signal) == 0 || len(m.Histogram) == 0 {
		t.Fatal("expected non-empty MACD outputs on 120-bar series")
	}
	if len(m.Signal) != len(m.Histogram) {
		t.Fatalf("signal/histogram length mismatch: %d vs %d", len(m.Signal), len(m.Histogram))
	}

	lineByTime := make(map[time.Time]float64, len(m.Line))
	for _, p := range m.Line {
		lineByTime[p.Time] = p.Value
	}
	for i, sp := range m.Signal {
		lv, ok := lineByTime[sp.Time]
		if !ok {
			t.Fatalf("signal point at %v has no matching line point", sp.Time)
		}
		if math.Abs(m.Histogram[i].Value-(lv-sp.Value)) > 1e-9 {
			t.Errorf("histogram at %v: expected %v, got %v", sp.Time, lv-sp.Value, m.Histogram[i].Value)
		}
		if !m.Histogram[i].Time.Equal(sp.Time) {
			t.Errorf("histogram/signal time mismatch at index %d", i)
		}
	}
}

func TestMACD_TimeAlignment(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 50 + float64(i%9)
	}
	candles := makeSeries(closes...)
	m := MACD(candles, 5, 10, 3)

	// Line must start where the slow EMA starts: candle index slow-1.
	if !m.Line[0].Time.Equal(candles[9].Time) {
		t.Errorf("MACD line start: expected %v, got %v", candles[9].Time, m.Line[0].Time)
	}
	// First line value must equal fastEMA - slowEMA at that timestamp.
	fast := EMA(candles, 5)
	slow := EMA(candles, 10)
	wantFirst := fast[5].Value - slow[0].Value // fast has 5 extra leading points
	if math.Abs(m.Line[0].Value-wantFirst) > 1e-9 {
		t.Errorf("MACD line[0]: expected %v, got %v", wantFirst, m.Line[0].Value)
	}
}

func TestMACD_ShortSeriesEmpty(t *testing.T) {
	m := MACD(makeSeries(1, 2, 3, 4, 5), 12, 26, 9)
	if len(m.Line) != 0 || len(m.Signal) != 0 || len(m.Histogram) != 0 {
		t.Error("expected all-empty MACD on 5-bar series")
	}
}

func TestBollinger_Bands(t *testing.T) {
	candles := makeSeries(2, 4, 6, 8, 10)
	b := Bollinger(candles, 3, 2.0)

	if len(b.Middle) != 3 {
		t.Fatalf("expected 3 points, got %d", len(b.Middle))
	}
	// First window {2,4,6}: mean 4, population stddev sqrt(8/3).
	sd := math.Sqrt(8.0 / 3.0)
	if math.Abs(b.Middle[0].Value-4) > 1e-9 {
		t.Errorf("middle[0]: expected 4, got %v", b.Middle[0].Value)
	}
	if math.Abs(b.Upper[0].Value-(4+2*sd)) > 1e-9 {
		t.Errorf("upper[0]: expected %v, got %v", 4+2*sd, b.Upper[0].Value)
	}
	if math.Abs(b.Lower[0].Value-(4-2*sd)) > 1e-9 {
		t.Errorf("lower[0]: expected %v, got %v", 4-2*sd, b.Lower[0].Value)
	}

	// Bands are symmetric around the middle at every point.
	for i := range b.Middle {
		up := b.Upper[i].Value - b.Middle[i].Value
		down := b.Middle[i].Value - b.Lower[i].Value
		if math.Abs(up-down) > 1e-9 {
			t.Errorf("asymmetric bands at index %d: +%v vs -%v", i, up, down)
		}
	}
}

func TestBollinger_ShortSeriesEmpty(t *testing.T) {
	b := Bollinger(makeSeries(1, 2), 20, 2.0)
	if len(b.Upper) != 0 || len(b.Middle) != 0 || len(b.Lower) != 0 {
		t.Error("expected empty bands on short series")
	}
}
