package indicator

import "chartsync/internal/model"

// MACDSeries holds the three MACD outputs. All series are aligned by
// timestamp: Line starts where the slow EMA starts, Signal and
// Histogram where the signal EMA becomes defined.
type MACDSeries struct {
	Line      []Point
	Signal    []Point
	Histogram []Point
}

// MACD computes the Moving Average Convergence Divergence.
//
// Line = EMA(fast) - EMA(slow), aligned on the slow series' time
// window. The fast and slow EMA sequences have different lengths, so
// alignment is by shared timestamps, not raw index arithmetic. Signal
// is an EMA of the line with the signal period; Histogram is the
// pointwise Line-Signal difference at each aligned timestamp.
//
// Line is empty if len(candles) < slow; Signal and Histogram are
// additionally empty while the line is shorter than the signal period.
func MACD(candles []model.Candle, fast, slow, signal int) MACDSeries {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return MACDSeries{}
	}

	fastEMA := EMA(candles, fast)
	slowEMA := EMA(candles, slow)
	if len(slowEMA) == 0 {
		return MACDSeries{}
	}

	// The fast series has slow-fast extra leading points; skipping them
	// lines both series up on the slow series' first timestamp.
	offset := slow - fast
	line := make([]Point, len(slowEMA))
	for i, sp := range slowEMA {
		fp := fastEMA[i+offset]
		line[i] = Point{Time: sp.Time, Value: fp.Value - sp.Value}
	}

	sig := emaOver(line, signal)
	if len(sig) == 0 {
		return MACDSeries{Line: line}
	}

	hist := make([]Point, len(sig))
	lineOffset := len(line) - len(sig)
	for i, sp := range sig {
		hist[i] = Point{Time: sp.Time, Value: line[i+lineOffset].Value - sp.Value}
	}

	return MACDSeries{Line: line, Signal: sig, Histogram: hist}
}
