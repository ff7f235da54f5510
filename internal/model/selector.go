package model

// SeriesSelector identifies which (symbol, timeframe) series is
// current. Exactly one selector is active at any time; changing it
// invalidates every outstanding request tied to the previous value.
type SeriesSelector struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
}

// Key returns a unique key for this selector: "symbol:timeframe".
func (s SeriesSelector) Key() string {
	return s.Symbol + ":" + string(s.Timeframe)
}

func (s SeriesSelector) String() string { return s.Key() }
