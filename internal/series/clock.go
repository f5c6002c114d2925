package series

import (
	"sync"
	"time"
)

// Clock issues strictly increasing sample timestamps in unix seconds.
//
// Next returns max(now, floor+1). When called more than once per second the
// returned values run ahead of the wall clock; holder counts are trend data,
// so that drift is acceptable.
type Clock struct {
	mu    sync.Mutex
	floor int64
	now   func() time.Time
}

// NewClock creates a clock reading time from now. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns the next timestamp and raises the floor to it
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().Unix()
	if ts <= c.floor {
		ts = c.floor + 1
	}
	c.floor = ts
	return ts
}

// Floor returns the last issued timestamp (zero after Reset)
func (c *Clock) Floor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.floor
}

// Reset drops the floor back to zero. Used when the tracked subject changes.
func (c *Clock) Reset() {
	c.mu.Lock()
	c.floor = 0
	c.mu.Unlock()
}
