package model

import (
	"testing"
	"time"
)

func TestParseTimeframe(t *testing.T) {
	for _, tf := range Timeframes {
		got, err := ParseTimeframe(string(tf))
		if err != nil {
			t.Errorf("ParseTimeframe(%q) error: %v", tf, err)
		}
		if got != tf {
			t.Errorf("ParseTimeframe(%q) = %q", tf, got)
		}
	}

	for _, bad := range []string{"", "2m", "1h", "1w", "60"} {
		if _, err := ParseTimeframe(bad); err == nil {
			t.Errorf("ParseTimeframe(%q) should fail", bad)
		}
	}
}

func TestBucket(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 47, 23, 0, time.UTC)

	tests := []struct {
		tf   Timeframe
		want time.Time
	}{
		{TF1m, time.Date(2024, 3, 15, 10, 47, 0, 0, time.UTC)},
		{TF5m, time.Date(2024, 3, 15, 10, 45, 0, 0, time.UTC)},
		{TF15m, time.Date(2024, 3, 15, 10, 45, 0, 0, time.UTC)},
		{TF30m, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{TF1H, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)},
		{TF4H, time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)},
		{TF1D, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		if got := tc.tf.Bucket(ts); !got.Equal(tc.want) {
			t.Errorf("%s.Bucket(%v) = %v, want %v", tc.tf, ts, got, tc.want)
		}
	}

	// Non-UTC input aligns to the same UTC bucket.
	ist := time.FixedZone("IST", 5*3600+1800)
	local := ts.In(ist)
	if got := TF1H.Bucket(local); !got.Equal(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Bucket should normalize to UTC, got %v", got)
	}
}

func TestBarsForLookback(t *testing.T) {
	tests := []struct {
		tf   Timeframe
		days int
		want int
	}{
		{TF1H, 30, 720},
		{TF4H, 30, 180},
		{TF1D, 30, 30},
		{TF1D, 0, 1},    // zero lookback clamps to one day
		{TF1m, 30, 5000}, // 43200 raw, capped
		{TF5m, 30, 5000}, // 8640 raw, capped
	}
	for _, tc := range tests {
		if got := tc.tf.BarsForLookback(tc.days); got != tc.want {
			t.Errorf("%s.BarsForLookback(%d) = %d, want %d", tc.tf, tc.days, got, tc.want)
		}
	}
}
