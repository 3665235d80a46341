package lifecycle

import (
	"sync/atomic"
	"time"
)

// Lifecycle holds process state shared by handlers. While draining, readiness
// fails and new WebSocket upgrades are refused.
type Lifecycle struct {
	draining atomic.Bool
	since    atomic.Int64
}

// StartDraining flips the gateway into draining and reports whether this call
// did it.
func (l *Lifecycle) StartDraining(now time.Time) bool {
	if l == nil {
		return false
	}
	if !l.draining.CompareAndSwap(false, true) {
		return false
	}
	l.since.Store(now.UnixNano())
	return true
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// DrainingSince is zero unless draining.
func (l *Lifecycle) DrainingSince() time.Time {
	if l == nil || !l.draining.Load() {
		return time.Time{}
	}
	return time.Unix(0, l.since.Load())
}
