// Package binance adapts Binance spot klines to the chart snapshot
// shape. It backs staging environments where no terminal bridge is
// available; the production provider is the broker client.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"chartsync/internal/model"
)

var intervals = map[model.Timeframe]string{
	model.TF1m:  "1m",
	model.TF5m:  "5m",
	model.TF15m: "15m",
	model.TF30m: "30m",
	model.TF1H:  "1h",
	model.TF4H:  "4h",
	model.TF1D:  "1d",
}

// Provider fetches candle snapshots from Binance spot klines.
type Provider struct {
	client *binance.Client

	// Digits is the price precision reported with each snapshot.
	// Binance does not return it per kline; defaults to 2.
	Digits int
}

// New creates a provider. Public kline data needs no credentials, so
// empty keys are fine.
func New(apiKey, secretKey string) *Provider {
	return &Provider{client: binance.NewClient(apiKey, secretKey), Digits: 2}
}

// FetchCandles returns up to count bars for sel, oldest first.
func (p *Provider) FetchCandles(ctx context.Context, sel model.SeriesSelector, count int) (*model.CandleSnapshot, error) {
	interval, ok := intervals[sel.Timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", sel.Timeframe)
	}

	klines, err := p.client.NewKlinesService().
		Symbol(sel.Symbol).
		Interval(interval).
		Limit(count).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	snap := &model.CandleSnapshot{
		Candles:        make([]model.Candle, 0, len(klines)),
		PricePrecision: p.Digits,
	}
	for _, k := range klines {
		c, err := toCandle(k)
		if err != nil {
			return nil, err
		}
		snap.Candles = append(snap.Candles, c)
	}
	return snap, nil
}

func toCandle(k *binance.Kline) (model.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("kline open %q: %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("kline high %q: %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("kline low %q: %w", k.Low, err)
	}
	closeP, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("kline close %q: %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("kline volume %q: %w", k.Volume, err)
	}

	return model.Candle{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closeP,
		Volume: int64(vol),
	}, nil
}
