// Package clock abstracts delayed continuations so timed state transitions can
// be driven deterministically in tests.
package clock

import "time"

// Timer is a pending continuation.
type Timer interface {
	// Stop prevents the continuation from running. It reports whether the
	// call stopped the timer (false if it already fired or was stopped).
	Stop() bool
}

// Scheduler runs fn once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real schedules continuations on the runtime timer heap.
type Real struct{}

// AfterFunc implements Scheduler using time.AfterFunc.
func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
