package core

import "time"

// Clock is a monotonic microsecond clock. The zero value starts counting at
// the first call.
type Clock struct {
	start time.Time
}

func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// Usec returns microseconds since the clock was created.
func (c *Clock) Usec() uint64 {
	if c.start.IsZero() {
		c.start = time.Now()
	}
	return uint64(time.Since(c.start).Microseconds())
}

// Msec returns milliseconds since the clock was created.
func (c *Clock) Msec() uint64 {
	return c.Usec() / 1000
}

// TimeSource is what the renderer needs from a clock; tests substitute a
// manual one.
type TimeSource interface {
	Usec() uint64
}

// ManualClock is a TimeSource advanced explicitly.
type ManualClock struct {
	Now uint64
}

func (m *ManualClock) Usec() uint64 { return m.Now }

// Advance moves the clock forward by d.
func (m *ManualClock) Advance(d time.Duration) {
	m.Now += uint64(d.Microseconds())
}
