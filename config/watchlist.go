package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Watchlist is the operator-curated list of chartable symbols plus
// named indicator presets, loaded from YAML.
type Watchlist struct {
	Symbols []WatchSymbol     `yaml:"symbols"`
	Presets map[string]Preset `yaml:"presets"`
}

// WatchSymbol is one entry in the watchlist.
type WatchSymbol struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Category    string `yaml:"category,omitempty"` // forex, metals, indices, crypto
}

// Preset is a named set of indicator defaults applied from the UI.
type Preset struct {
	EMA       *PeriodSpec `yaml:"ema,omitempty"`
	SMA       *PeriodSpec `yaml:"sma,omitempty"`
	RSI       *PeriodSpec `yaml:"rsi,omitempty"`
	MACD      *MACDSpec   `yaml:"macd,omitempty"`
	Bollinger *BBSpec     `yaml:"bollinger,omitempty"`
}

type PeriodSpec struct {
	Period int `yaml:"period"`
}

type MACDSpec struct {
	Fast   int `yaml:"fast"`
	Slow   int `yaml:"slow"`
	Signal int `yaml:"signal"`
}

type BBSpec struct {
	Period     int     `yaml:"period"`
	StdDevMult float64 `yaml:"stddev"`
}

// LoadWatchlist parses the YAML watchlist at path.
func LoadWatchlist(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("watchlist read: %w", err)
	}

	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("watchlist parse: %w", err)
	}
	if len(wl.Symbols) == 0 {
		return nil, fmt.Errorf("watchlist %s has no symbols", path)
	}
	return &wl, nil
}

// Contains reports whether symbol is in the watchlist.
func (w *Watchlist) Contains(symbol string) bool {
	for _, s := range w.Symbols {
		if s.Name == symbol {
			return true
		}
	}
	return false
}
