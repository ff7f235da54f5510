package indicator

import (
	"math"

	"chartsync/internal/model"
)

// BollingerSeries holds the three Bollinger Band outputs, index-aligned
// with each other.
type BollingerSeries struct {
	Upper  []Point
	Middle []Point
	Lower  []Point
}

// Bollinger computes Bollinger Bands: middle = SMA(period), upper/lower
// = middle ± mult × population standard deviation over the same window.
// Returns empty series if len(candles) < period.
func Bollinger(candles []model.Candle, period int, mult float64) BollingerSeries {
	if period <= 0 || len(candles) < period {
		return BollingerSeries{}
	}

	n := len(candles) - period + 1
	out := BollingerSeries{
		Upper:  make([]Point, 0, n),
		Middle: make([]Point, 0, n),
		Lower:  make([]Point, 0, n),
	}

	for i := period - 1; i < len(candles); i++ {
		window := candles[i-period+1 : i+1]

		sum := 0.0
		for _, c := range window {
			sum += c.Close
		}
		mean := sum / float64(period)

		sqSum := 0.0
		for _, c := range window {
			d := c.Close - mean
			sqSum += d * d
		}
		sd := math.Sqrt(sqSum / float64(period))

		ts := candles[i].Time
		out.Middle = append(out.Middle, Point{Time: ts, Value: mean})
		out.Upper = append(out.Upper, Point{Time: ts, Value: mean + mult*sd})
		out.Lower = append(out.Lower, Point{Time: ts, Value: mean - mult*sd})
	}

	return out
}
