package model

import (
	"fmt"
	"time"
)

// Timeframe is the bucket width of a candle series.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1H  Timeframe = "1H"
	TF4H  Timeframe = "4H"
	TF1D  Timeframe = "1D"
)

// Timeframes lists all supported timeframes in ascending bucket width.
var Timeframes = []Timeframe{TF1m, TF5m, TF15m, TF30m, TF1H, TF4H, TF1D}

var tfDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF30m: 30 * time.Minute,
	TF1H:  time.Hour,
	TF4H:  4 * time.Hour,
	TF1D:  24 * time.Hour,
}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := tfDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the bucket width.
func (tf Timeframe) Duration() time.Duration {
	return tfDurations[tf]
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := tfDurations[tf]
	return ok
}

// snapshotBarCap bounds snapshot requests so coarse lookback windows on
// fine timeframes don't ask the bridge for hundreds of thousands of bars.
const snapshotBarCap = 5000

// BarsForLookback returns how many bars cover roughly the given number
// of trading days at this granularity, capped at snapshotBarCap.
func (tf Timeframe) BarsForLookback(days int) int {
	if days <= 0 {
		days = 1
	}
	d := tf.Duration()
	barsPerDay := int(24 * time.Hour / d)
	if barsPerDay < 1 {
		barsPerDay = 1
	}
	bars := days * barsPerDay
	if bars > snapshotBarCap {
		bars = snapshotBarCap
	}
	return bars
}

// Bucket aligns a timestamp to the start of its timeframe bucket (UTC).
func (tf Timeframe) Bucket(t time.Time) time.Time {
	return t.UTC().Truncate(tf.Duration())
}
