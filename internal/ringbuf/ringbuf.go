// Package ringbuf provides a bounded ring buffer for model.Candle with
// overwrite-oldest eviction. The candle store parks live bars here when
// they arrive before the first snapshot lands; once the ring fills, the
// oldest parked bar gives way to the newest, because only bars past the
// snapshot tail can survive reconciliation anyway.
//
// Single-owner: both ends are driven by the candle store's sole writer,
// so no internal synchronization is needed.
package ringbuf

import "chartsync/internal/model"

// Ring is a bounded candle buffer that evicts the oldest entry on
// overflow. Capacity is rounded up to a power of two for bitwise
// index wrapping.
type Ring struct {
	buf  []model.Candle
	mask uint64

	head uint64 // next write slot
	tail uint64 // next read slot

	evicted uint64
}

// New creates a ring buffer. capacity is rounded up to the next power
// of two; minimum capacity is 2.
func New(capacity int) *Ring {
	cap := nextPow2(capacity)
	if cap < 2 {
		cap = 2
	}
	return &Ring{
		buf:  make([]model.Candle, cap),
		mask: uint64(cap - 1),
	}
}

// Push appends a candle. When the ring is full the oldest entry is
// evicted to make room; Push reports whether an eviction happened.
func (r *Ring) Push(c model.Candle) bool {
	evict := r.head-r.tail >= uint64(len(r.buf))
	if evict {
		r.tail++
		r.evicted++
	}
	r.buf[r.head&r.mask] = c
	r.head++
	return !evict
}

// Pop removes and returns the oldest candle. Returns false when empty.
func (r *Ring) Pop() (model.Candle, bool) {
	if r.tail >= r.head {
		return model.Candle{}, false
	}
	c := r.buf[r.tail&r.mask]
	r.tail++
	return c, true
}

// Len returns the current number of buffered candles.
func (r *Ring) Len() int {
	return int(r.head - r.tail)
}

// Cap returns the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Evicted returns how many candles have been overwritten on overflow.
func (r *Ring) Evicted() uint64 {
	return r.evicted
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
