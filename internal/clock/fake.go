package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests that assert on code TTLs
// and ticket used_at stamps. Safe for concurrent readers.
type FakeClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFakeClock pins the clock to the given instant, normalized to UTC like
// the system clock.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward, e.g. past a payment code's TTL.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
