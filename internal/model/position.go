package model

// Position is an open trade as reported by the broker bridge.
type Position struct {
	Ticket  int64   `json:"ticket"`
	Symbol  string  `json:"symbol"`
	Type    string  `json:"type"` // "BUY" or "SELL"
	Volume  float64 `json:"volume"`
	Entry   float64 `json:"entry"`
	Current float64 `json:"current"`
	SL      float64 `json:"sl"`
	TP      float64 `json:"tp"`
	PnL     float64 `json:"pnl"`
	Swap    float64 `json:"swap"`
}

// Account is the broker account snapshot forwarded to the terminal.
type Account struct {
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	FreeMargin  float64 `json:"free_margin"`
	MarginLevel float64 `json:"margin_level"`
	Profit      float64 `json:"profit"`
	Currency    string  `json:"currency"`
	Leverage    int     `json:"leverage"`
}
