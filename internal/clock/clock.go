// Package clock abstracts "now" so the dispatcher's expiry arithmetic and
// the table's lazy-expiry checks can be driven by a fake clock in tests
// instead of wall time, the same indirection an eviction policy needs to be
// deterministically testable.
//
// © 2025 cuckoomc authors. MIT License.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock reports the current time as Unix seconds. Unix seconds (rather than
// a process-local monotonic counter) are required because the wire
// protocol's exptime field can carry an absolute Unix timestamp directly.
type Clock interface {
	Now() uint64
}

// Real returns the system wall clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() uint64 { return uint64(time.Now().Unix()) }

// Fake is a settable clock for deterministic expiry tests.
type Fake struct {
	now atomic.Uint64
}

// NewFake returns a Fake clock initialized to t.
func NewFake(t uint64) *Fake {
	f := &Fake{}
	f.now.Store(t)
	return f
}

// Now returns the fake clock's current value.
func (f *Fake) Now() uint64 { return f.now.Load() }

// Set moves the fake clock to t.
func (f *Fake) Set(t uint64) { f.now.Store(t) }

// Advance moves the fake clock forward by delta seconds.
func (f *Fake) Advance(delta uint64) { f.now.Add(delta) }
