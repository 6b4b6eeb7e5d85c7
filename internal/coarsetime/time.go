// Package coarsetime provides a coarse time source to reduce the overhead of
// frequent time.Now() calls on pool hot paths. The current time is refreshed
// at a fixed 50ms interval by a background goroutine.
package coarsetime

import (
	"sync/atomic"
	"time"
)

const tick = 50 * time.Millisecond

var now atomic.Value

func init() {
	now.Store(time.Now())

	ticker := time.NewTicker(tick)
	go func() {
		for range ticker.C {
			now.Store(time.Now())
		}
	}()
}

// Now returns the cached time, at most one tick behind the real clock.
func Now() time.Time {
	return now.Load().(time.Time)
}
