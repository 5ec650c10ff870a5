package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(5)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d should be allowed", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_IsolatesIPs(t *testing.T) {
	rl := NewRateLimiter(2)
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2)
	defer rl.Stop()

	ip := "10.0.0.1"
	assert.True(t, rl.Allow(ip))
	assert.True(t, rl.Allow(ip))
	assert.False(t, rl.Allow(ip))

	// Age the recorded requests out of the window.
	rl.mu.Lock()
	old := time.Now().Add(-2 * time.Minute)
	rl.limits[ip] = []time.Time{old, old}
	rl.mu.Unlock()

	assert.True(t, rl.Allow(ip))
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	assert.Equal(t, 0, rl.RetryAfter("10.0.0.1"))

	assert.True(t, rl.Allow("10.0.0.1"))
	retry := rl.RetryAfter("10.0.0.1")
	assert.Greater(t, retry, 0)
	assert.LessOrEqual(t, retry, 60)
}

func TestRateLimiter_CleanupDropsStaleIPs(t *testing.T) {
	rl := NewRateLimiter(10)
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.mu.Lock()
	rl.limits["10.0.0.1"] = []time.Time{time.Now().Add(-2 * time.Minute)}
	rl.mu.Unlock()

	rl.cleanup()

	rl.mu.Lock()
	_, exists := rl.limits["10.0.0.1"]
	rl.mu.Unlock()
	assert.False(t, exists)
}
