package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleWatchlist = `
symbols:
  - name: EURUSD
    description: Euro vs US Dollar
    category: forex
  - name: XAUUSD
    description: Gold vs US Dollar
    category: metals

presets:
  scalping:
    ema:
      period: 9
    rsi:
      period: 7
  swing:
    macd:
      fast: 12
      slow: 26
      signal: 9
    bollinger:
      period: 20
      stddev: 2.0
`

func writeWatchlist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watchlist.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadWatchlist(t *testing.T) {
	wl, err := LoadWatchlist(writeWatchlist(t, sampleWatchlist))
	if err != nil {
		t.Fatal(err)
	}

	if len(wl.Symbols) != 2 {
		t.Fatalf("symbols = %d, want 2", len(wl.Symbols))
	}
	if !wl.Contains("XAUUSD") || wl.Contains("BTCUSD") {
		t.Fatal("Contains gave wrong answers")
	}

	sc, ok := wl.Presets["scalping"]
	if !ok || sc.EMA == nil || sc.EMA.Period != 9 {
		t.Fatalf("scalping preset = %+v", sc)
	}
	sw := wl.Presets["swing"]
	if sw.MACD == nil || sw.MACD.Slow != 26 {
		t.Fatalf("swing preset = %+v", sw)
	}
	if sw.Bollinger == nil || sw.Bollinger.StdDevMult != 2.0 {
		t.Fatalf("swing bollinger = %+v", sw.Bollinger)
	}
}

func TestLoadWatchlist_Errors(t *testing.T) {
	if _, err := LoadWatchlist(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
	if _, err := LoadWatchlist(writeWatchlist(t, "symbols: []")); err == nil {
		t.Fatal("empty watchlist accepted")
	}
	if _, err := LoadWatchlist(writeWatchlist(t, "{{not yaml")); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}
