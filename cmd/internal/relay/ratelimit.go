package relay

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter for one source.
type RateLimiter struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter constructs a RateLimiter with safe defaults when inputs are invalid.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = ingestRateEvents
	}
	if window <= 0 {
		window = ingestRateWindow
	}
	return &RateLimiter{
		events: make([]time.Time, 0, limit+8),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an event at time "now" should be permitted.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cut := now.Add(-r.window)
	dst := r.events[:0]
	for _, t := range r.events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	r.events = dst

	if len(r.events) >= r.limit {
		return false
	}
	r.events = append(r.events, now)
	return true
}

// SourceLimiter applies a sliding-window limit per source key (webhook
// ingest uses the page id). Limiters are created on first sight of a key
// and live for the process lifetime; the key space is the tenant set, which
// is small and bounded.
type SourceLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	sources map[string]*RateLimiter
}

// NewSourceLimiter constructs a keyed limiter.
func NewSourceLimiter(limit int, window time.Duration) *SourceLimiter {
	if limit <= 0 {
		limit = ingestRateEvents
	}
	if window <= 0 {
		window = ingestRateWindow
	}
	return &SourceLimiter{
		limit:   limit,
		window:  window,
		sources: make(map[string]*RateLimiter),
	}
}

// Allow reports whether an event from key at time "now" should be permitted.
func (l *SourceLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	r := l.sources[key]
	if r == nil {
		r = NewRateLimiter(l.limit, l.window)
		l.sources[key] = r
	}
	l.mu.Unlock()

	return r.Allow(now)
}
