// Package ringbuf provides a fixed-capacity history ring for
// model.MarketSnapshot. When the ring is full the oldest entry is
// evicted, bounding memory regardless of how long the feed runs.
//
// The ring is not safe for concurrent use; the market feed guards it
// with its own lock.
package ringbuf

import (
	"time"

	"autotraderv1/internal/model"
)

// Ring is a bounded, ordered sequence of snapshots.
// Capacity is rounded up to a power of two for fast bitwise modulo.
type Ring struct {
	buf  []model.MarketSnapshot
	mask uint64
	head uint64 // total number of pushes
}

// New creates a ring buffer. capacity is rounded up to the next power of
// two. Minimum capacity is 2.
func New(capacity int) *Ring {
	c := nextPow2(capacity)
	if c < 2 {
		c = 2
	}
	return &Ring{
		buf:  make([]model.MarketSnapshot, c),
		mask: uint64(c - 1),
	}
}

// Push appends a snapshot, evicting the oldest entry if the ring is full.
func (r *Ring) Push(s model.MarketSnapshot) {
	r.buf[r.head&r.mask] = s
	r.head++
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	if r.head > uint64(len(r.buf)) {
		return len(r.buf)
	}
	return int(r.head)
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Latest returns the most recent snapshot.
func (r *Ring) Latest() (model.MarketSnapshot, bool) {
	return r.Back(0)
}

// Back returns the snapshot n entries before the most recent one
// (Back(0) is the latest, Back(1) the one before it).
func (r *Ring) Back(n int) (model.MarketSnapshot, bool) {
	if n < 0 || n >= r.Len() {
		return model.MarketSnapshot{}, false
	}
	idx := r.head - 1 - uint64(n)
	return r.buf[idx&r.mask], true
}

// Since returns all retained snapshots with TS >= t, oldest first.
func (r *Ring) Since(t time.Time) []model.MarketSnapshot {
	n := r.Len()
	out := make([]model.MarketSnapshot, 0, n)
	for i := 0; i < n; i++ {
		s := r.buf[(r.head-uint64(n-i))&r.mask]
		if !s.TS.Before(t) {
			out = append(out, s)
		}
	}
	return out
}

// Values returns a copy of all retained snapshots, oldest first.
func (r *Ring) Values() []model.MarketSnapshot {
	n := r.Len()
	out := make([]model.MarketSnapshot, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head-uint64(n-i))&r.mask]
	}
	return out
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
