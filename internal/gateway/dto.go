package gateway

import (
	"encoding/json"

	"chartsync/internal/chart"
	"chartsync/internal/model"
)

// SelectMsg switches the active chart series.
type SelectMsg struct {
	Type      string `json:"type"` // "SELECT"
	ReqID     string `json:"req_id,omitempty"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// IndicatorMsg toggles an overlay.
type IndicatorMsg struct {
	Type    string                `json:"type"` // "SET_INDICATOR"
	ReqID   string                `json:"req_id,omitempty"`
	Kind    chart.OverlayKind     `json:"kind"`
	Visible bool                  `json:"visible"`
	Config  chart.IndicatorConfig `json:"config"`
}

// PreviewMsg draws a trade signal preview on the chart.
type PreviewMsg struct {
	Type   string               `json:"type"` // "PREVIEW"
	ReqID  string               `json:"req_id,omitempty"`
	Signal *model.SignalPreview `json:"signal"`
}

// ThemeMsg switches the chart theme.
type ThemeMsg struct {
	Type  string      `json:"type"` // "SET_THEME"
	Theme chart.Theme `json:"theme"`
}

// LayoutMsg resizes the chart panes.
type LayoutMsg struct {
	Type   string       `json:"type"` // "SET_LAYOUT"
	Layout chart.Layout `json:"layout"`
}

// AckMsg confirms a client command.
type AckMsg struct {
	Type  string `json:"type"` // "ack"
	ReqID string `json:"req_id,omitempty"`
	Of    string `json:"of"`
}

// ErrorMsg reports a failed client command.
type ErrorMsg struct {
	Type  string `json:"type"` // "error"
	ReqID string `json:"req_id,omitempty"`
	Error string `json:"error"`
}

// SendJSON marshals v and queues it for the client, dropping on a full
// send buffer.
func SendJSON(c *Client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// SendError queues an error message for the client.
func SendError(c *Client, reqID, msg string) {
	SendJSON(c, ErrorMsg{Type: "error", ReqID: reqID, Error: msg})
}
