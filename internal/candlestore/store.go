// Package candlestore owns the ordered candle series for exactly one
// (symbol, timeframe) selection.
//
// The store has two states, EMPTY and LOADED. It starts EMPTY, becomes
// LOADED on the first successful Replace, and stays LOADED until it is
// discarded on a selector change. Merges that arrive while EMPTY (the
// live feed can outrun the snapshot fetch) are parked in a bounded ring
// buffer and reconciled against the snapshot when it lands.
//
// Single-writer: the sync controller is the only component permitted to
// mutate a store. Readers get copied snapshots.
package candlestore

import (
	"errors"
	"fmt"

	"chartsync/internal/model"
	"chartsync/internal/ringbuf"
)

// ErrNotAscending is returned by Replace when the input series is not
// strictly time-ascending. The prior contents are retained untouched.
var ErrNotAscending = errors.New("candlestore: series not strictly time-ascending")

// MergeResult describes what a Merge call did.
type MergeResult int

const (
	// MergeDropped: the bar was older than the stored tail and was
	// silently discarded. An expected race with the live feed.
	MergeDropped MergeResult = iota
	// MergeAmended: the bar replaced the in-progress tail bar in place.
	MergeAmended
	// MergeAppended: the bar extended the series.
	MergeAppended
	// MergeBuffered: the store is EMPTY; the bar was parked for
	// reconciliation after the first Replace.
	MergeBuffered
)

func (r MergeResult) String() string {
	switch r {
	case MergeDropped:
		return "dropped"
	case MergeAmended:
		return "amended"
	case MergeAppended:
		return "appended"
	case MergeBuffered:
		return "buffered"
	}
	return "unknown"
}

// pendingCap bounds how many live bars can pile up before the snapshot
// arrives. On overflow the oldest parked bar is evicted: reconciliation
// only keeps bars past the snapshot tail, so the newest must survive.
const pendingCap = 256

// Store holds one time-ordered candle series.
type Store struct {
	selector model.SeriesSelector
	candles  []model.Candle
	loaded   bool
	pending  *ringbuf.Ring
}

// New creates an EMPTY store bound to the given selector.
func New(sel model.SeriesSelector) *Store {
	return &Store{
		selector: sel,
		pending:  ringbuf.New(pendingCap),
	}
}

// Selector returns the selector this store is bound to.
func (s *Store) Selector() model.SeriesSelector { return s.selector }

// Loaded reports whether the first snapshot has been applied.
func (s *Store) Loaded() bool { return s.loaded }

// Len returns the number of stored candles.
func (s *Store) Len() int { return len(s.candles) }

// Replace atomically discards prior content and installs a new
// fully-ordered series. Rejects input that is not strictly ascending by
// time; on rejection the prior state is retained. Live bars buffered
// while EMPTY are reconciled afterwards: bars newer than the new tail
// are merged in, the rest are dropped as superseded by the snapshot.
func (s *Store) Replace(candles []model.Candle) error {
	for i := 1; i < len(candles); i++ {
		if !candles[i].Time.After(candles[i-1].Time) {
			return fmt.Errorf("%w: index %d (%v) not after index %d (%v)",
				ErrNotAscending, i, candles[i].Time, i-1, candles[i-1].Time)
		}
	}

	s.candles = append(s.candles[:0:0], candles...)
	s.loaded = true

	// Buffered bars are degenerate single-tick candles; only those
	// strictly past the snapshot tail add information. An equal-time
	// bar must NOT amend the tail — that would overwrite the
	// snapshot's authoritative open/high/low/volume.
	for {
		c, ok := s.pending.Pop()
		if !ok {
			break
		}
		if n := len(s.candles); n > 0 && !c.Time.After(s.candles[n-1].Time) {
			continue
		}
		s.candles = append(s.candles, c)
	}
	return nil
}

// Merge folds one live bar into the series.
//
// While EMPTY the bar is buffered. Once LOADED: a bar matching the tail
// timestamp amends the tail in place (in-progress bar update), a newer
// bar is appended, and an older bar is dropped silently.
func (s *Store) Merge(c model.Candle) MergeResult {
	if !s.loaded {
		s.pending.Push(c) // full ring evicts the oldest parked bar
		return MergeBuffered
	}
	return s.apply(c)
}

func (s *Store) apply(c model.Candle) MergeResult {
	n := len(s.candles)
	if n == 0 {
		s.candles = append(s.candles, c)
		return MergeAppended
	}

	last := s.candles[n-1]
	switch {
	case c.Time.Equal(last.Time):
		s.candles[n-1] = c
		return MergeAmended
	case c.Time.After(last.Time):
		s.candles = append(s.candles, c)
		return MergeAppended
	default:
		return MergeDropped
	}
}

// Snapshot returns a copy of the current series. Callers must treat it
// as immutable and must not rely on it reflecting later mutations.
func (s *Store) Snapshot() []model.Candle {
	out := make([]model.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Last returns the tail candle, if any.
func (s *Store) Last() (model.Candle, bool) {
	if len(s.candles) == 0 {
		return model.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}
