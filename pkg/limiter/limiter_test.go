package limiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockWithinAllowanceDoesNotBlock(t *testing.T) {
	l := NewDurationLimiter(3, time.Second)

	start := time.Now()

	l.Lock()
	l.Lock()
	l.Lock()

	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLockBlocksWhenExhausted(t *testing.T) {
	window := 50 * time.Millisecond
	l := NewDurationLimiter(1, window)

	l.Lock()

	start := time.Now()
	l.Lock()

	assert.GreaterOrEqual(t, time.Since(start), window/2)
}

func TestResetEmptiesAllowance(t *testing.T) {
	window := 50 * time.Millisecond
	l := NewDurationLimiter(5, window)

	l.Reset()

	start := time.Now()
	l.Lock()

	assert.GreaterOrEqual(t, time.Since(start), window/2)
}
