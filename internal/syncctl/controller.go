// Package syncctl coordinates snapshot loads and live bar merges for
// the active chart series. It owns the candle store lifecycle: every
// symbol/timeframe selection swaps in a fresh store, fetches history
// from the snapshot provider (consulting the Redis cache first), and
// routes feed quotes into bucketed bar updates.
//
// The controller guards against slow snapshot responses with a
// generation counter: a response that arrives after the selection has
// moved on is discarded, never merged into the new series.
package syncctl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"chartsync/internal/candlestore"
	"chartsync/internal/chart"
	"chartsync/internal/metrics"
	"chartsync/internal/model"
)

// SnapshotProvider fetches candle history for a series. The broker
// bridge client is the production implementation.
type SnapshotProvider interface {
	FetchCandles(ctx context.Context, sel model.SeriesSelector, count int) (*model.CandleSnapshot, error)
}

// SnapshotCache holds last-good snapshots served ahead of a provider
// fetch. Get returns (nil, nil) on a miss.
type SnapshotCache interface {
	Get(ctx context.Context, sel model.SeriesSelector) (*model.CandleSnapshot, error)
	Put(ctx context.Context, sel model.SeriesSelector, snap *model.CandleSnapshot) error
	Invalidate(ctx context.Context, sel model.SeriesSelector) error
}

// Archiver receives every fetched snapshot for durable storage. Calls
// must not block; the SQLite writer batches internally.
type Archiver interface {
	Archive(sel model.SeriesSelector, candles []model.Candle)
}

// ErrNoSelection is returned by operations that need an active series.
var ErrNoSelection = errors.New("syncctl: no series selected")

// Config holds controller tuning.
type Config struct {
	// LookbackDays sizes snapshot requests per timeframe. Default 30.
	LookbackDays int

	// RefreshSpec is a cron expression for periodic snapshot refreshes.
	// Empty disables the schedule.
	RefreshSpec string

	// FetchTimeout bounds a single snapshot fetch. Default 10s.
	FetchTimeout time.Duration
}

func (c *Config) defaults() {
	if c.LookbackDays == 0 {
		c.LookbackDays = 30
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 10 * time.Second
	}
}

// Controller drives one chart surface. All exported methods are safe
// for concurrent use.
type Controller struct {
	cfg      Config
	provider SnapshotProvider
	cache    SnapshotCache // optional
	archive  Archiver      // optional
	surface  *chart.Surface
	met      *metrics.Metrics // optional

	mu    sync.Mutex
	gen   uint64
	sel   model.SeriesSelector
	store *candlestore.Store
	pos   *model.Position // open position currently mirrored on the chart

	cron *cron.Cron
}

// New creates a controller. cache, archive and met may be nil.
func New(cfg Config, provider SnapshotProvider, surface *chart.Surface, opts ...Option) *Controller {
	cfg.defaults()
	c := &Controller{
		cfg:      cfg,
		provider: provider,
		surface:  surface,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures optional controller collaborators.
type Option func(*Controller)

// WithCache attaches a snapshot cache.
func WithCache(cache SnapshotCache) Option {
	return func(c *Controller) { c.cache = cache }
}

// WithArchiver attaches a snapshot archiver.
func WithArchiver(a Archiver) Option {
	return func(c *Controller) { c.archive = a }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.met = m }
}

// Selector returns the active series, or false before the first Select.
func (c *Controller) Selector() (model.SeriesSelector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel, c.store != nil
}

// Candles returns a copy of the active series' bars.
func (c *Controller) Candles() []model.Candle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	return c.store.Snapshot()
}

// Select switches the active series. The old store is dropped
// immediately so no stale bars can leak into the new chart; history is
// fetched synchronously and applied only if no newer selection raced
// past this one. On fetch failure the chart keeps its previous content.
func (c *Controller) Select(ctx context.Context, sel model.SeriesSelector) error {
	if sel.Symbol == "" {
		return errors.New("syncctl: empty symbol")
	}
	if !sel.Timeframe.Valid() {
		return fmt.Errorf("syncctl: invalid timeframe %q", sel.Timeframe)
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.sel = sel
	c.store = candlestore.New(sel)
	// Overlays priced for the old symbol make no sense on the new one.
	c.surface.SetSignalPreview(nil)
	c.surface.SetPositionOverlay(nil)
	c.pos = nil
	c.mu.Unlock()

	log.Printf("[syncctl] selecting %s (gen %d)", sel.Key(), gen)
	return c.load(ctx, gen, sel, true)
}

// Refresh re-fetches the active series, bypassing the cache. Scheduled
// refreshes and manual pulls share this path.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.store == nil {
		c.mu.Unlock()
		return ErrNoSelection
	}
	gen := c.gen
	sel := c.sel
	c.mu.Unlock()

	if c.met != nil {
		c.met.RefreshRuns.Inc()
	}
	return c.load(ctx, gen, sel, false)
}

// load fetches a snapshot for sel and applies it under the generation
// guard. useCache controls whether the Redis cache is consulted first.
func (c *Controller) load(ctx context.Context, gen uint64, sel model.SeriesSelector, useCache bool) error {
	count := sel.Timeframe.BarsForLookback(c.cfg.LookbackDays)

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	// A cached series is served immediately as last-good data; the
	// fresh fetch below then replaces it under the same generation
	// token, so a selection racing past this load still wins.
	cachedApplied := false
	if useCache && c.cache != nil {
		snap, err := c.cache.Get(fetchCtx, sel)
		if err != nil {
			log.Printf("[syncctl] cache read for %s failed: %v", sel.Key(), err)
		} else if snap != nil {
			if c.met != nil {
				c.met.SnapshotCacheHits.Inc()
			}
			if err := c.apply(gen, sel, snap); err != nil {
				log.Printf("[syncctl] cached snapshot for %s rejected: %v (invalidating)", sel.Key(), err)
				if err := c.cache.Invalidate(fetchCtx, sel); err != nil {
					log.Printf("[syncctl] cache invalidate for %s failed: %v", sel.Key(), err)
				}
			} else {
				cachedApplied = true
			}
		}
	}

	if c.met != nil {
		c.met.SnapshotFetches.Inc()
	}
	start := time.Now()
	snap, err := c.provider.FetchCandles(fetchCtx, sel, count)
	if c.met != nil {
		c.met.SnapshotFetchDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if c.met != nil {
			c.met.SnapshotFetchFailures.Inc()
		}
		if cachedApplied {
			log.Printf("[syncctl] snapshot fetch for %s failed: %v (serving cached series)", sel.Key(), err)
			return nil
		}
		log.Printf("[syncctl] snapshot fetch for %s failed: %v (keeping last good state)", sel.Key(), err)
		return fmt.Errorf("snapshot fetch %s: %w", sel.Key(), err)
	}

	if err := c.apply(gen, sel, snap); err != nil {
		return err
	}

	if c.cache != nil {
		if err := c.cache.Put(fetchCtx, sel, snap); err != nil {
			log.Printf("[syncctl] cache write for %s failed: %v", sel.Key(), err)
		}
	}
	if c.archive != nil {
		c.archive.Archive(sel, snap.Candles)
	}
	return nil
}

// apply installs a snapshot. A generation mismatch means the selection
// changed while the fetch was in flight; drop the response.
func (c *Controller) apply(gen uint64, sel model.SeriesSelector, snap *model.CandleSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		if c.met != nil {
			c.met.StaleResponsesDropped.Inc()
		}
		log.Printf("[syncctl] dropping stale snapshot for %s (gen %d, current %d)", sel.Key(), gen, c.gen)
		return nil
	}

	if err := c.store.Replace(snap.Candles); err != nil {
		return fmt.Errorf("apply snapshot %s: %w", sel.Key(), err)
	}

	start := time.Now()
	c.surface.SetBaseSeries(c.store.Snapshot(), snap.PricePrecision)
	if c.met != nil {
		c.met.IndicatorComputeDur.Observe(time.Since(start).Seconds())
	}
	log.Printf("[syncctl] applied %d bars for %s", c.store.Len(), sel.Key())
	return nil
}

// OnMarketUpdate folds a live quote into the active series. The quote
// for the selected symbol is bucketed to the series timeframe: a quote
// in the tail bar's bucket amends that bar, a later bucket opens a new
// one, anything older is dropped.
func (c *Controller) OnMarketUpdate(u *model.MarketUpdate) {
	if c.met != nil {
		c.met.FeedUpdates.Inc()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return
	}

	c.syncPositionOverlay(u.Positions)

	quote, ok := u.Prices[c.sel.Symbol]
	if !ok || quote.Bid == 0 {
		return
	}

	bar := c.bucketQuote(quote)
	result := c.store.Merge(bar)
	if c.met != nil {
		c.met.CandleMerges.WithLabelValues(result.String()).Inc()
	}

	switch result {
	case candlestore.MergeAmended, candlestore.MergeAppended:
		start := time.Now()
		c.surface.MergeBar(bar)
		if c.met != nil {
			c.met.IndicatorComputeDur.Observe(time.Since(start).Seconds())
		}
	}
}

// syncPositionOverlay mirrors the open position for the charted symbol
// onto the surface. Redraws only when the drawn lines would change.
func (c *Controller) syncPositionOverlay(positions []model.Position) {
	var open *model.Position
	for i := range positions {
		if positions[i].Symbol == c.sel.Symbol {
			open = &positions[i]
			break
		}
	}

	switch {
	case open == nil && c.pos == nil:
		return
	case open != nil && c.pos != nil &&
		open.Ticket == c.pos.Ticket && open.Entry == c.pos.Entry &&
		open.SL == c.pos.SL && open.TP == c.pos.TP:
		return
	}

	if open == nil {
		c.pos = nil
		c.surface.SetPositionOverlay(nil)
		return
	}
	p := *open
	c.pos = &p
	c.surface.SetPositionOverlay(&p)
}

// bucketQuote turns a quote into the bar it belongs to. Charts plot
// bid prices; an amend keeps the bar's open and stretches its range.
func (c *Controller) bucketQuote(q model.PriceQuote) model.Candle {
	bucket := c.sel.Timeframe.Bucket(q.QuoteTime())

	if last, ok := c.store.Last(); ok && last.Time.Equal(bucket) {
		bar := last
		if q.Bid > bar.High {
			bar.High = q.Bid
		}
		if q.Bid < bar.Low {
			bar.Low = q.Bid
		}
		bar.Close = q.Bid
		bar.Volume++
		return bar
	}

	return model.Candle{
		Time: bucket,
		Open: q.Bid, High: q.Bid, Low: q.Bid, Close: q.Bid,
		Volume: 1,
	}
}

// The surface itself is not goroutine safe; gateway handlers and the
// feed loop both mutate it, so those paths go through the controller
// mutex.

// SetIndicatorVisible toggles an overlay on the active chart.
func (c *Controller) SetIndicatorVisible(kind chart.OverlayKind, cfg chart.IndicatorConfig, visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface.SetIndicatorVisible(kind, cfg, visible)
}

// SetSignalPreview draws or clears the signal preview lines.
func (c *Controller) SetSignalPreview(sig *model.SignalPreview) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface.SetSignalPreview(sig)
}

// SetPositionOverlay draws or clears the open position lines.
func (c *Controller) SetPositionOverlay(pos *model.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface.SetPositionOverlay(pos)
}

// SetTheme switches the chart theme.
func (c *Controller) SetTheme(t chart.Theme) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface.SetTheme(t)
}

// SetLayout resizes the chart panes.
func (c *Controller) SetLayout(l chart.Layout) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface.SetLayout(l)
}

// StartRefreshSchedule begins periodic refreshes per cfg.RefreshSpec.
// No-op when the spec is empty.
func (c *Controller) StartRefreshSchedule(ctx context.Context) error {
	if c.cfg.RefreshSpec == "" {
		return nil
	}
	cr := cron.New()
	_, err := cr.AddFunc(c.cfg.RefreshSpec, func() {
		if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrNoSelection) {
			log.Printf("[syncctl] scheduled refresh failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("refresh schedule %q: %w", c.cfg.RefreshSpec, err)
	}
	cr.Start()
	c.cron = cr
	log.Printf("[syncctl] refresh schedule %q started", c.cfg.RefreshSpec)
	return nil
}

// StopRefreshSchedule stops the refresh schedule and waits for any
// running job to finish.
func (c *Controller) StopRefreshSchedule() {
	if c.cron != nil {
		<-c.cron.Stop().Done()
		c.cron = nil
	}
}
