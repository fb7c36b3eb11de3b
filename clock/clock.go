// Package clock provides the monotonic microsecond clock consumed by
// timingwheel.Wheel as its sole time source. It reduces the caller's
// contract to a single NowUs() method plus an injectable override
// (Mock) for deterministic tests, wrapping
// github.com/intuitivelabs/timestamp for monotonic time the same way
// wtimer.go used to call timestamp.Now()/timestamp.TS directly.
package clock

import (
	"sync/atomic"
	"time"

	"github.com/intuitivelabs/timestamp"
)

// Clock returns monotonic microseconds since an arbitrary reference
// point. Implementations must never report time going backwards; any
// observed decrease is treated as zero delta.
type Clock interface {
	NowUs() int64
}

// startRef anchors System's microsecond counter. timestamp.TS has no
// direct conversion to an absolute integer, and wtimer.go only ever
// uses Now()/Sub()/Before()/Add(), so System derives an
// elapsed-microseconds value the same way (Sub against a fixed
// reference taken at package init).
var startRef = timestamp.Now()

// System is the production Clock, backed by timestamp.Now().
type System struct{}

// NowUs returns the current monotonic time in microseconds, elapsed
// since this process's corekit/clock package was initialised.
func (System) NowUs() int64 {
	return int64(timestamp.Now().Sub(startRef) / time.Microsecond)
}

// Mock is a deterministic Clock for tests. Its zero value starts at 0
// and only moves forward via Advance.
type Mock struct {
	us int64
}

// NewMock returns a Mock clock starting at startUs.
func NewMock(startUs int64) *Mock {
	m := &Mock{}
	atomic.StoreInt64(&m.us, startUs)
	return m
}

// NowUs returns the mock's current time.
func (m *Mock) NowUs() int64 {
	return atomic.LoadInt64(&m.us)
}

// Advance moves the mock clock forward by deltaUs. A negative or zero
// delta is a no-op, mirroring the "never goes backwards" contract real
// monotonic clocks provide.
func (m *Mock) Advance(deltaUs int64) {
	if deltaUs <= 0 {
		return
	}
	atomic.AddInt64(&m.us, deltaUs)
}

// Set pins the mock clock to an absolute value, refusing to move it
// backwards.
func (m *Mock) Set(us int64) {
	for {
		cur := atomic.LoadInt64(&m.us)
		if us <= cur {
			return
		}
		if atomic.CompareAndSwapInt64(&m.us, cur, us) {
			return
		}
	}
}
