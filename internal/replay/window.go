// Package replay implements turret's anti-replay window (spec.md §4.3):
// a sliding, in-memory set of (principal, nonce) pairs, purely
// timestamp-bounded, discarded wholesale at disengage.
package replay

import (
	"sync"
	"time"
)

// Tolerance is the maximum allowed skew between an envelope's ts_ms and
// wall clock, in both directions.
const Tolerance = 120 * time.Second

type key struct {
	principal string
	nonce     string
}

type entry struct {
	tsMs int64
}

// Window tracks seen (principal, nonce) pairs within Tolerance of now.
// Safe for concurrent use.
type Window struct {
	mu      sync.Mutex
	entries map[key]entry
}

// New returns an empty window. A fresh Window is created at each engage
// (spec.md §3: "The replay window is a sliding map discarded on
// disengage").
func New() *Window {
	return &Window{entries: make(map[key]entry)}
}

// Check accepts (principal, nonce, tsMs) if tsMs is within Tolerance of
// nowMs and the pair has not been seen before within the window; it
// records the pair on acceptance. A second occurrence of the same pair
// within the window, or a timestamp outside tolerance, is rejected.
func (w *Window) Check(principal, nonce string, tsMs int64, nowMs int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.sweepLocked(nowMs)

	skew := tsMs - nowMs
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(Tolerance/time.Millisecond) {
		return false
	}

	k := key{principal: principal, nonce: nonce}
	if _, seen := w.entries[k]; seen {
		return false
	}
	w.entries[k] = entry{tsMs: tsMs}
	return true
}

// sweepLocked drops entries older than Tolerance from nowMs. Called with
// mu held. Lazy eviction on insert is sufficient per spec.md §4.3.
func (w *Window) sweepLocked(nowMs int64) {
	cutoff := nowMs - int64(Tolerance/time.Millisecond)
	for k, e := range w.entries {
		if e.tsMs < cutoff {
			delete(w.entries, k)
		}
	}
}

// Len reports the number of entries currently retained, for tests and
// metrics.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Evict drops every entry older than Tolerance from nowMs. Check already
// sweeps lazily on every insert (spec.md §4.3: "lazy sweep on insert is
// sufficient"); Evict exists so a periodic caller (internal/daemon's
// cron tick) can also bound memory during a lull with no inserts.
func (w *Window) Evict(nowMs int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sweepLocked(nowMs)
}
