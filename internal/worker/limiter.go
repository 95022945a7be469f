package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter applies per-source rate limits. Sources without a declared rate
// share a default limiter.
type Limiter struct {
	mu           sync.RWMutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter with the given default rate.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 3
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// SetSourceRate declares a custom rate for one source id.
func (l *Limiter) SetSourceRate(sourceID string, requestsPerSecond float64, burst int) {
	if requestsPerSecond <= 0 {
		return
	}
	if burst <= 0 {
		burst = l.defaultBurst
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[sourceID] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the source's limiter admits one call or the context is
// cancelled.
func (l *Limiter) Wait(ctx context.Context, sourceID string) error {
	return l.get(sourceID).Wait(ctx)
}

// Allow reports whether a call would be admitted right now without waiting.
func (l *Limiter) Allow(sourceID string) bool {
	return l.get(sourceID).Allow()
}

func (l *Limiter) get(sourceID string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[sourceID]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok = l.limiters[sourceID]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[sourceID] = limiter
	return limiter
}
