// Package broker is the REST client for the trading terminal bridge
// that serves candle history, quotes, symbol metadata and account
// state. It mirrors the bridge's routes and session handling; the
// candle endpoint doubles as the snapshot provider for chart sync.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"chartsync/internal/model"
)

// Config holds configuration for the bridge client.
type Config struct {
	// BaseURL of the terminal bridge, e.g. "http://localhost:8000"
	BaseURL string

	// Login credentials for the bridge session.
	Login    string
	Password string
	Server   string

	// TOTPSecret, when set, generates a one-time code at login.
	TOTPSecret string

	Timeout time.Duration // default: 7s
	Debug   bool
}

// Client talks to the terminal bridge over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	token      string
}

var routes = map[string]string{
	"auth.login":     "/api/auth/login",
	"auth.logout":    "/api/auth/logout",
	"market.candles": "/api/market/candles",
	"market.prices":  "/api/market/prices",
	"market.symbols": "/api/market/symbols",
	"account.info":   "/api/account",
	"positions.list": "/api/positions",
}

// bridgeTimeframes maps chart timeframes to the bridge's identifiers.
var bridgeTimeframes = map[model.Timeframe]string{
	model.TF1m:  "1M",
	model.TF5m:  "5M",
	model.TF15m: "15M",
	model.TF30m: "30M",
	model.TF1H:  "1H",
	model.TF4H:  "4H",
	model.TF1D:  "1D",
}

// New creates a bridge client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Error is a non-2xx response from the bridge.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bridge: status %d: %s", e.StatusCode, e.Detail)
}

func (c *Client) buildURL(route string, q url.Values) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("unknown route: %s", route)
	}
	u := strings.TrimRight(c.cfg.BaseURL, "/") + uri
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u, nil
}

func (c *Client) doRequest(ctx context.Context, method, route string, q url.Values, body any, out any) error {
	fullURL, err := c.buildURL(route, q)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.cfg.Debug {
		log.Printf("[broker] %s %s", method, fullURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Detail == "" {
			e.Detail = strings.TrimSpace(string(raw))
		}
		return &Error{StatusCode: resp.StatusCode, Detail: e.Detail}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("couldn't parse bridge response: %w", err)
	}
	return nil
}

// Login opens a bridge session. When a TOTP secret is configured, a
// fresh one-time code is attached to the request.
func (c *Client) Login(ctx context.Context) error {
	body := map[string]string{
		"login":    c.cfg.Login,
		"password": c.cfg.Password,
		"server":   c.cfg.Server,
	}
	if c.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
		if err != nil {
			return fmt.Errorf("totp: %w", err)
		}
		body["totp"] = code
	}

	var res struct {
		Token string `json:"token"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "auth.login", nil, body, &res); err != nil {
		return err
	}
	c.token = res.Token
	return nil
}

// Logout closes the bridge session.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doRequest(ctx, http.MethodPost, "auth.logout", nil, nil, nil)
	c.token = ""
	return err
}

// FetchCandles returns up to count bars of history for sel, oldest
// first, along with the symbol's price precision.
func (c *Client) FetchCandles(ctx context.Context, sel model.SeriesSelector, count int) (*model.CandleSnapshot, error) {
	tf, ok := bridgeTimeframes[sel.Timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", sel.Timeframe)
	}

	q := url.Values{}
	q.Set("symbol", sel.Symbol)
	q.Set("timeframe", tf)
	q.Set("count", fmt.Sprint(count))

	var res struct {
		Candles []wireCandle `json:"candles"`
		Digits  int          `json:"digits"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "market.candles", q, nil, &res); err != nil {
		return nil, err
	}

	snap := &model.CandleSnapshot{
		Candles:        make([]model.Candle, 0, len(res.Candles)),
		PricePrecision: res.Digits,
	}
	for _, wc := range res.Candles {
		snap.Candles = append(snap.Candles, wc.candle())
	}
	return snap, nil
}

// wireCandle is the bridge's bar encoding: epoch seconds plus OHLCV.
type wireCandle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

func (w wireCandle) candle() model.Candle {
	return model.Candle{
		Time:   time.Unix(w.Time, 0).UTC(),
		Open:   w.Open,
		High:   w.High,
		Low:    w.Low,
		Close:  w.Close,
		Volume: w.Volume,
	}
}

// Prices returns the current quote for each requested symbol.
func (c *Client) Prices(ctx context.Context, symbols []string) (map[string]model.PriceQuote, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))

	var res map[string]model.PriceQuote
	if err := c.doRequest(ctx, http.MethodGet, "market.prices", q, nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Symbols returns metadata for the tradable instruments.
func (c *Client) Symbols(ctx context.Context) ([]model.SymbolInfo, error) {
	var res struct {
		Symbols []model.SymbolInfo `json:"symbols"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "market.symbols", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Symbols, nil
}

// Account returns the current account summary.
func (c *Client) Account(ctx context.Context) (*model.Account, error) {
	var res model.Account
	if err := c.doRequest(ctx, http.MethodGet, "account.info", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Positions returns the open positions.
func (c *Client) Positions(ctx context.Context) ([]model.Position, error) {
	var res struct {
		Positions []model.Position `json:"positions"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "positions.list", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Positions, nil
}
