package node

import (
	"sync/atomic"
	"time"
)

// AdaptiveTimeout is the ACK timeout shared by the retry scheduler and the
// heartbeat monitor. It starts at a configured value and only grows: whenever
// a round trip exceeds it, it becomes twice that round trip.
type AdaptiveTimeout struct {
	nanos int64
}

// NewAdaptiveTimeout ...
func NewAdaptiveTimeout(initial time.Duration) *AdaptiveTimeout {
	return &AdaptiveTimeout{nanos: int64(initial)}
}

// Get returns the current timeout.
func (a *AdaptiveTimeout) Get() time.Duration {
	return time.Duration(atomic.LoadInt64(&a.nanos))
}

// Observe records a round trip time. It returns the resulting timeout and
// whether it changed.
func (a *AdaptiveTimeout) Observe(rtt time.Duration) (time.Duration, bool) {
	for {
		cur := atomic.LoadInt64(&a.nanos)
		if int64(rtt) <= cur {
			return time.Duration(cur), false
		}
		next := 2 * int64(rtt)
		if atomic.CompareAndSwapInt64(&a.nanos, cur, next) {
			return time.Duration(next), true
		}
	}
}
