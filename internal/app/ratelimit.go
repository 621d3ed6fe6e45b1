package app

import (
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiters hands out one token bucket per key (user id). A zero or
// negative rate disables limiting entirely.
type rateLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newRateLimiters(rps float64, burst int) *rateLimiters {
	return &rateLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *rateLimiters) allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
