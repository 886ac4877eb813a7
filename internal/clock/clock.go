// Package clock provides an injectable time source so score windows,
// dismissal windows, and feedback-window expiry can be tested deterministically
// without sleeping real wall-clock time.
package clock

import "time"

// Clock is the seam every time-dependent component receives explicitly
// instead of calling time.Now directly.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTimer(d time.Duration) Timer
}

// Timer mirrors the subset of *time.Timer the engines need, so a fake clock
// can hand back a fake timer under test.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Real is the production Clock backed by the standard library.
type Real struct{}

// New returns the production clock.
func New() Clock { return Real{} }

func (Real) Now() time.Time                         { return time.Now() }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (Real) NewTimer(d time.Duration) Timer         { return &realTimer{t: time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (r *realTimer) C() <-chan time.Time { return r.t.C }
func (r *realTimer) Stop() bool          { return r.t.Stop() }
