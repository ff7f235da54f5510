package model

import "time"

// PriceQuote is the live bid/ask for one symbol as pushed by the feed.
type PriceQuote struct {
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Spread float64 `json:"spread"`
	Time   int64   `json:"time"` // Unix seconds
}

// QuoteTime returns the quote timestamp as a time.Time (UTC).
func (q PriceQuote) QuoteTime() time.Time {
	return time.Unix(q.Time, 0).UTC()
}

// MarketUpdate is the envelope delivered on the push feed. The charting
// core consumes only Prices; positions and account fields are forwarded
// opaquely to the terminal display.
type MarketUpdate struct {
	Type      string                `json:"type"` // always "market_update"
	Prices    map[string]PriceQuote `json:"prices"`
	Positions []Position            `json:"positions"`
	TotalPnL  float64               `json:"total_pnl"`
	Account   *Account              `json:"account,omitempty"`
	Timestamp float64               `json:"timestamp"` // Unix seconds, fractional
}
