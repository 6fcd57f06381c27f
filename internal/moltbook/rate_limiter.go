package moltbook

import (
	"sync"
	"time"
)

// Rate limit defaults for Moltbook API.
const (
	DefaultBroadcastSpacing = 30 * time.Minute
	DefaultCommentSpacing   = 20 * time.Second
)

// Window is a fixed-window limiter: an action is allowed once spacing has
// elapsed since the last recorded attempt. Idle time earns no credit.
// Callers pass the time of the check so the recorded attempt is the instant
// the decision was made, not when the send returned.
type Window struct {
	spacing time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewWindow returns a window that has never been used.
func NewWindow(spacing time.Duration) *Window {
	return &Window{spacing: spacing}
}

// Allow reports whether an attempt may be made at now and, if not, how long
// until it may. It has no side effects.
func (w *Window) Allow(now time.Time) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last.IsZero() {
		return true, 0
	}
	elapsed := now.Sub(w.last)
	if elapsed < w.spacing {
		return false, w.spacing - elapsed
	}
	return true, 0
}

// Record marks an attempt made at at.
func (w *Window) Record(at time.Time) {
	w.mu.Lock()
	w.last = at
	w.mu.Unlock()
}

// Last returns the last recorded attempt, zero if none.
func (w *Window) Last() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Restore sets the last attempt, typically from a persisted snapshot.
func (w *Window) Restore(last time.Time) {
	w.mu.Lock()
	w.last = last
	w.mu.Unlock()
}
