// Package clock supplies monotonic session time behind one interface. The
// virtual implementation drives backtests; the wall implementation wraps
// the OS clock for live trading. Both guarantee non-decreasing time within
// a session.
package clock

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Clock reports the current session time in nanoseconds.
type Clock interface {
	Now() int64
}

// Virtual is a replayable clock advanced explicitly by the backtest loop.
// It is not safe for concurrent use; the backtest path is single-threaded.
type Virtual struct {
	now int64
}

// NewVirtual creates a virtual clock starting at the given timestamp.
func NewVirtual(start int64) *Virtual {
	return &Virtual{now: start}
}

// Now returns the current simulated time.
func (c *Virtual) Now() int64 {
	return c.now
}

// AdvanceTo moves simulated time forward to ts. Moving time backward is a
// determinism violation and therefore a programming error: the session must
// abort rather than produce silently-wrong results.
func (c *Virtual) AdvanceTo(ts int64) {
	if ts < c.now {
		panic(fmt.Sprintf("clock: advance backward from %d to %d", c.now, ts))
	}
	c.now = ts
}

// Wall wraps the OS clock and clamps it to be monotonic non-decreasing,
// which protects downstream consumers from wall-clock steps. Safe for
// concurrent use.
type Wall struct {
	last atomic.Int64
}

// NewWall creates a wall clock.
func NewWall() *Wall {
	return &Wall{}
}

// Now returns current wall time, never earlier than a previously returned
// value.
func (c *Wall) Now() int64 {
	now := time.Now().UTC().UnixNano()
	for {
		last := c.last.Load()
		if now <= last {
			return last
		}
		if c.last.CompareAndSwap(last, now) {
			return now
		}
	}
}

// SetTime records an externally observed timestamp (e.g. a venue clock
// sync) as the floor for subsequent reads. Attempting to move time backward
// is ignored; the clock only ratchets forward.
func (c *Wall) SetTime(ts int64) {
	for {
		last := c.last.Load()
		if ts <= last {
			return
		}
		if c.last.CompareAndSwap(last, ts) {
			return
		}
	}
}
