package webhook

import (
	"sync"
	"time"
)

// RateLimiter implements per-IP rate limiting with a sliding one-minute
// window. It protects the ingest path from a single chatty client; the
// per-sender unauthorized throttle is a separate concern downstream.
type RateLimiter struct {
	limits          map[string][]time.Time
	maxPerMinute    int
	mu              sync.Mutex
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a rate limiter allowing maxPerMinute requests per IP.
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		limits:          make(map[string][]time.Time),
		maxPerMinute:    maxPerMinute,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	go rl.runCleanup()
	return rl
}

// Allow reports whether a request from ip is within budget and records it.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := pruneOlderThan(rl.limits[ip], now.Add(-time.Minute))

	if len(recent) >= rl.maxPerMinute {
		rl.limits[ip] = recent
		return false
	}

	rl.limits[ip] = append(recent, now)
	return true
}

// RetryAfter returns the seconds until the oldest recorded request for ip
// leaves the window, rounded up.
func (rl *RateLimiter) RetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	reqs := rl.limits[ip]
	if len(reqs) == 0 {
		return 0
	}

	remaining := time.Minute - time.Since(reqs[0])
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}

func (rl *RateLimiter) runCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-time.Minute)
	for ip, reqs := range rl.limits {
		recent := pruneOlderThan(reqs, cutoff)
		if len(recent) == 0 {
			delete(rl.limits, ip)
		} else {
			rl.limits[ip] = recent
		}
	}
}

// Stop halts the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func pruneOlderThan(reqs []time.Time, cutoff time.Time) []time.Time {
	out := reqs[:0]
	for _, t := range reqs {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
