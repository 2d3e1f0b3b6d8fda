// Package lifecycle shares process drain state between the shutdown path and
// the handlers that must stop accepting new calls.
package lifecycle

import "sync/atomic"

type Lifecycle struct {
	draining atomic.Bool
}

// SetDraining flips the gateway into drain mode. Readiness reports not-ready
// and new call upgrades are refused while draining.
func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
