package indicator

import "chartsync/internal/model"

// EMA computes the Exponential Moving Average of the closes.
//
// The seed is the simple mean of the first period closes, emitted at
// index period-1; later values follow ema += (close-ema)*k with
// k = 2/(period+1). Returns an empty series if len(candles) < period.
func EMA(candles []model.Candle, period int) []Point {
	return emaOver(closePoints(candles), period)
}

// emaOver runs the same recurrence over an arbitrary point series.
// Shared with the MACD signal line, which is an EMA of the MACD line.
func emaOver(points []Point, period int) []Point {
	if period <= 0 || len(points) < period {
		return nil
	}

	k := 2.0 / float64(period+1)
	ema := meanOf(points, 0, period)

	out := make([]Point, 0, len(points)-period+1)
	out = append(out, Point{Time: points[period-1].Time, Value: ema})
	for i := period; i < len(points); i++ {
		ema = (points[i].Value-ema)*k + ema
		out = append(out, Point{Time: points[i].Time, Value: ema})
	}
	return out
}

// SMA computes the simple moving average of the closes over a sliding
// window; the first value is emitted at index period-1.
func SMA(candles []model.Candle, period int) []Point {
	if period <= 0 || len(candles) < period {
		return nil
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += candles[i].Close
	}

	out := make([]Point, 0, len(candles)-period+1)
	out = append(out, Point{Time: candles[period-1].Time, Value: sum / float64(period)})
	for i := period; i < len(candles); i++ {
		sum += candles[i].Close - candles[i-period].Close
		out = append(out, Point{Time: candles[i].Time, Value: sum / float64(period)})
	}
	return out
}
