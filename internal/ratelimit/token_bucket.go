// Package ratelimit provides a per-key rate limiter built on
// golang.org/x/time/rate, used to bound how often a single node can hit the
// metadata authority's heartbeat endpoint.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// PerKeyLimiter lazily creates and caches one rate.Limiter per key (e.g. a
// node ID or client IP), mirroring the teacher bootstrap service's
// per-client limiter map.
type PerKeyLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPerKeyLimiter returns a limiter allowing eventsPerSecond sustained,
// with up to burst events admitted instantaneously, per distinct key.
func NewPerKeyLimiter(eventsPerSecond float64, burst int) *PerKeyLimiter {
	return &PerKeyLimiter{
		limit:    rate.Limit(eventsPerSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether an event for key may proceed now, consuming a token
// from that key's bucket if so.
func (p *PerKeyLimiter) Allow(key string) bool {
	return p.limiterFor(key).Allow()
}

func (p *PerKeyLimiter) limiterFor(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[key] = l
	}
	return l
}

// Forget drops a key's limiter, e.g. once a node has been absent long
// enough that reserving memory for it is no longer worthwhile.
func (p *PerKeyLimiter) Forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.limiters, key)
}
