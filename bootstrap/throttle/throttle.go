// Package throttle implements the sliding window of recent "useful
// reply" booleans described in spec.md §4.6 (component C6). It slows the
// database-sweep worker when the network has nothing new to offer.
package throttle

import "math"

// MinSize is the floor below which the ring is never resized, regardless
// of how small account_count is.
const MinSize = 16

// Throttle is a fixed-capacity ring of booleans recording whether recent
// replies were useful. Not safe for concurrent use; callers serialize
// access under the orchestrator's lock.
type Throttle struct {
	samples   []bool
	next      int
	filled    int
	threshold float64
}

// New creates a Throttle with the given ring size and the fraction of
// "useful" samples below which Throttled reports true.
func New(size int, threshold float64) *Throttle {
	if size < MinSize {
		size = MinSize
	}
	return &Throttle{
		samples:   make([]bool, size),
		threshold: threshold,
	}
}

// Add pushes a new sample, evicting the oldest once the ring is full.
func (t *Throttle) Add(useful bool) {
	t.samples[t.next] = useful
	t.next = (t.next + 1) % len(t.samples)
	if t.filled < len(t.samples) {
		t.filled++
	}
}

// Throttled reports whether the ratio of useful replies among the
// currently filled samples is below the configured threshold. An empty
// window is never throttled.
func (t *Throttle) Throttled() bool {
	if t.filled == 0 {
		return false
	}
	useful := 0
	for i := 0; i < t.filled; i++ {
		if t.samples[i] {
			useful++
		}
	}
	ratio := float64(useful) / float64(t.filled)
	return ratio < t.threshold
}

// Size returns the ring's current capacity.
func (t *Throttle) Size() int {
	return len(t.samples)
}

// Resize changes the ring's capacity, preserving the most recent entries
// (spec §4.6 "resize(n) preserves the most recent entries").
func (t *Throttle) Resize(n int) {
	if n < MinSize {
		n = MinSize
	}
	if n == len(t.samples) {
		return
	}

	recent := t.recentInOrder()
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}

	t.samples = make([]bool, n)
	copy(t.samples, recent)
	t.filled = len(recent)
	t.next = t.filled % n
}

// recentInOrder returns the filled samples ordered oldest-first.
func (t *Throttle) recentInOrder() []bool {
	if t.filled < len(t.samples) {
		out := make([]bool, t.filled)
		copy(out, t.samples[:t.filled])
		return out
	}
	out := make([]bool, len(t.samples))
	for i := 0; i < len(t.samples); i++ {
		out[i] = t.samples[(t.next+i)%len(t.samples)]
	}
	return out
}

// SizeFor computes the throttle size prescribed by spec §6
// ("throttle_coefficient"): coefficient * ln(account_count), floored at
// MinSize.
func SizeFor(coefficient float64, accountCount uint64) int {
	if accountCount < 1 {
		accountCount = 1
	}
	size := int(coefficient * math.Log(float64(accountCount)))
	if size < MinSize {
		size = MinSize
	}
	return size
}
