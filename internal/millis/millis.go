// Package millis provides the free-running millisecond counter the clock
// measures elapsed time with. The counter is 32 bits wide and wraps.
package millis

import "time"

// Counter reads a monotonic millisecond tick count.
type Counter interface {
	// Millis returns the current count. It wraps to zero after 2^32 ms.
	Millis() uint32
}

// SystemCounter counts milliseconds since it was created, using Go's
// monotonic clock reading. Wall-clock steps do not affect it.
type SystemCounter struct {
	start time.Time
	now   func() time.Time
}

// NewSystemCounter creates a counter starting at zero.
func NewSystemCounter() *SystemCounter {
	return &SystemCounter{start: time.Now(), now: time.Now}
}

// Millis returns milliseconds since creation, truncated to 32 bits.
func (c *SystemCounter) Millis() uint32 {
	return uint32(c.now().Sub(c.start).Milliseconds())
}
