package vrrp

import (
	"sync"
	"time"
)

// intervalLimiter allows one event through per period; extra calls within
// the same window report false. Hand-rolled rather than pulled from
// golang.org/x/time/rate: this single at-most-once-per-window concern
// doesn't warrant a token-bucket dependency (see DESIGN.md).
type intervalLimiter struct {
	period time.Duration

	mu   sync.Mutex
	next time.Time
}

func newIntervalLimiter(period time.Duration) *intervalLimiter {
	return &intervalLimiter{period: period}
}

// Allow reports whether the caller may act now, and if so advances the
// window.
func (l *intervalLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Before(l.next) {
		return false
	}
	l.next = now.Add(l.period)
	return true
}
