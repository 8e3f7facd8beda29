package vrrp

import (
	"time"
)

// Timer is the tagged-union timer a VRI carries: exactly one of Kind !=
// TimerNone is armed at any instant (spec §3 invariant), represented as
// an absolute deadline rather than a decrementing counter, per design
// note §9 (the source's decrementing-counter style drifts with tick
// granularity).
type Timer struct {
	Kind     TimerKind
	Deadline time.Time
}

// Armed reports whether the timer has a live deadline.
func (t Timer) Armed() bool { return t.Kind != TimerNone }

// Expired reports whether now is at or past the deadline.
func (t Timer) Expired(now time.Time) bool {
	return t.Armed() && !now.Before(t.Deadline)
}

func armAdvertisement(now time.Time, p FSMParams) Timer {
	return Timer{Kind: TimerAdvertisement, Deadline: now.Add(time.Duration(p.AdvertInterval) * time.Second)}
}

func armMasterDown(now time.Time, p FSMParams) Timer {
	return Timer{Kind: TimerMasterDown, Deadline: now.Add(secondsToDuration(p.MasterDownSeconds))}
}

func armMasterDownSkew(now time.Time, p FSMParams) Timer {
	return Timer{Kind: TimerMasterDown, Deadline: now.Add(secondsToDuration(p.SkewSeconds))}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// TickInterval is the Timer Loop's cooperative polling granularity (spec
// §4.7: "≤100ms granularity").
const TickInterval = 50 * time.Millisecond

// TimerLoop observes a VRI's single pending timer and, when it expires,
// reports it through the supplied OnExpiry callback. It never touches the
// FSM directly: it only reads the timer (under the caller-supplied
// accessor, which must acquire the VRI mutex per spec §4.7's "timer reads
// must happen under the VRI mutex") and, on expiry, calls OnExpiry — which
// for a VRI delivers the event through the Observer, where the mutex is
// taken (spec §5's single-Observer-entrypoint rule).
type TimerLoop struct {
	// ReadTimer returns the currently-armed timer. Must acquire the VRI
	// mutex internally; must not block.
	ReadTimer func() Timer
	// OnExpiry is invoked with the kind of timer that just fired.
	// TimerAdvertisement firing means "send the periodic advertisement
	// and re-arm"; TimerMasterDown firing means "declare MasterDown".
	OnExpiry func(kind TimerKind)
	// Now defaults to time.Now; overridable for deterministic tests.
	Now func() time.Time
	// Done is closed to stop the loop (spec §5's cancellation: "Workers
	// exit on Shutdown signal checked at their suspension point").
	Done <-chan struct{}
}

// Run blocks until Done is closed, polling at TickInterval.
func (l *TimerLoop) Run() {
	now := l.Now
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.Done:
			return
		case <-ticker.C:
			timer := l.ReadTimer()
			if timer.Expired(now()) {
				l.OnExpiry(timer.Kind)
			}
		}
	}
}
