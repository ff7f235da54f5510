// Package indicator provides pure technical indicator computations over
// an ordered candle series.
//
// All functions are referentially transparent: no shared state, no I/O.
// A series shorter than an indicator's minimum required length yields an
// empty result — insufficient history is a normal boundary case, never
// an error. Values are not pre-rounded; display rounding is a
// presentation concern.
package indicator

import (
	"time"

	"chartsync/internal/model"
)

// Point is one {time, value} pair of an indicator series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// closePoints projects the candle closes as points, preserving times.
func closePoints(candles []model.Candle) []Point {
	pts := make([]Point, len(candles))
	for i, c := range candles {
		pts[i] = Point{Time: c.Time, Value: c.Close}
	}
	return pts
}

// meanOf returns the arithmetic mean of values[i:i+n].
func meanOf(values []Point, i, n int) float64 {
	sum := 0.0
	for _, p := range values[i : i+n] {
		sum += p.Value
	}
	return sum / float64(n)
}
