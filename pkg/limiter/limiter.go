package limiter

import (
	"sync"
	"time"
)

// DurationLimiter allows an operation to run at most limit times per
// duration. Callers block in Lock until a slot frees up.
type DurationLimiter struct {
	mu sync.Mutex

	limit    int32
	duration time.Duration

	resetsAt  time.Time
	available int32
}

// NewDurationLimiter creates a DurationLimiter allowing limit operations
// per duration.
func NewDurationLimiter(limit int32, duration time.Duration) *DurationLimiter {
	return &DurationLimiter{
		limit:    limit,
		duration: duration,
	}
}

// Lock blocks until a slot is available in the current window, then
// consumes it.
func (l *DurationLimiter) Lock() {
	for {
		l.mu.Lock()

		now := time.Now()

		if now.After(l.resetsAt) {
			l.resetsAt = now.Add(l.duration)
			l.available = l.limit
		}

		if l.available > 0 {
			l.available--
			l.mu.Unlock()

			return
		}

		wait := time.Until(l.resetsAt)
		l.mu.Unlock()

		time.Sleep(wait)
	}
}

// Reset pushes the window forward, emptying the current allowance.
func (l *DurationLimiter) Reset() {
	l.mu.Lock()
	l.resetsAt = time.Now().Add(l.duration)
	l.available = 0
	l.mu.Unlock()
}
