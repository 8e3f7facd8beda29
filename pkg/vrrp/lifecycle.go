package vrrp

import (
	"fmt"
	"time"
)

// shutdownGrace bounds how long Stop waits for the Receive/Timer workers
// to notice Done and return before giving up (spec §5: "failure to exit
// within a bounded grace period is logged but non-fatal").
const shutdownGrace = 2 * time.Second

// Start brings the VRI up: it fires the Startup event (arming either the
// Master or Backup path per spec §4.3) and spawns the Receive and Timer
// workers. Start must be called at most once per VRI.
func (v *VRI) Start() {
	v.observe(Event{Kind: EventStartup})

	v.wg.Add(3)
	go v.runWorker("receive-vrrp", v.ReceiveVRRP)
	go v.runWorker("receive-arp", v.ReceiveARP)
	go v.runWorker("timer-loop", func() {
		loop := &TimerLoop{
			ReadTimer: v.readTimer,
			OnExpiry:  v.onTimerExpiry,
			Done:      v.Done(),
		}
		loop.Run()
	})
}

// runWorker recovers a panicking worker instead of letting it take down
// the process (spec §7's InternalError: "that VRI is stopped, process
// continues"). The recovered instance is stopped asynchronously, since
// Stop joins this same waitgroup and would deadlock if called before
// this goroutine's own wg.Done.
func (v *VRI) runWorker(name string, fn func()) {
	defer v.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			err := &InternalError{Reason: fmt.Sprintf("%s worker panicked: %v", name, r)}
			v.log.WithError(err).Error("worker panicked, stopping this instance")
			go v.Stop()
		}
	}()
	fn()
}

// onTimerExpiry translates a fired timer into the Observer event it
// represents (spec §4.7): the advertisement timer firing means "send and
// re-arm", the master-down timer firing means MasterDown.
func (v *VRI) onTimerExpiry(kind TimerKind) {
	switch kind {
	case TimerAdvertisement:
		v.observe(Event{Kind: EventAdvertisementTimer})
	case TimerMasterDown:
		v.observe(Event{Kind: EventMasterDown})
	}
}

// Stop runs the graceful shutdown sequence (spec §5's Cancellation): fire
// Shutdown (which cancels the timer, sends the Master-release
// advertisement if applicable, and detaches virtual addresses), close the
// done channel so both workers unblock at their suspension points, close
// the network collaborators so any blocked Read returns, then join with a
// bounded grace period.
func (v *VRI) Stop() {
	v.observe(Event{Kind: EventShutdown})

	v.mu.Lock()
	select {
	case <-v.done:
	default:
		close(v.done)
	}
	conn := v.Conn
	announcer := v.Announcer
	v.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if announcer != nil {
		_ = announcer.Close()
	}

	done := make(chan struct{})
	go func() { v.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		v.log.Warn("workers did not exit within grace period")
	}
}
