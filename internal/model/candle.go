package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLC bar for a (symbol, timeframe) pair.
// Prices are float64; display rounding is the renderer's concern and
// is driven by the snapshot's price precision, never applied here.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// CandleSnapshot is a full historical series fetched from the broker
// bridge, plus the price-axis precision the bridge reports for the
// instrument (MT5 "digits").
type CandleSnapshot struct {
	Candles        []Candle `json:"candles"`
	PricePrecision int      `json:"digits"`
}
