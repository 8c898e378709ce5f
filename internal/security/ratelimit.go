package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client exceeds its request budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// DefaultRequestsPerMinute is the per-client budget of the HTTP API.
const DefaultRequestsPerMinute = 120

// RateLimiter is a sliding-window limiter keyed by client (usually the
// remote IP). Each key tracks the timestamps of its recent requests.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	events []time.Time
}

// Decision describes the outcome of one Allow call. It carries what the
// HTTP layer needs for the X-RateLimit-* headers.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// NewRateLimiter returns a limiter allowing limit events per window for
// each key. Non-positive values fall back to 120 per minute.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRequestsPerMinute
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow records one event for key if the budget permits it.
func (rl *RateLimiter) Allow(key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{}
		rl.buckets[key] = b
	}
	b.evict(now.Add(-rl.window))

	d := Decision{Limit: rl.limit, Reset: now.Add(rl.window)}
	if len(b.events) > 0 {
		d.Reset = b.events[0].Add(rl.window)
	}
	if len(b.events) >= rl.limit {
		return d
	}

	b.events = append(b.events, now)
	d.Allowed = true
	d.Remaining = rl.limit - len(b.events)
	return d
}

// Err is Allow reduced to an error for callers that ignore headers.
func (rl *RateLimiter) Err(key string) error {
	if !rl.Allow(key).Allowed {
		return ErrRateLimited
	}
	return nil
}

// Sweep drops buckets with no events inside the window. The server calls
// it periodically so idle clients do not accumulate.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	removed := 0
	for key, b := range rl.buckets {
		b.evict(cutoff)
		if len(b.events) == 0 {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// evict removes events older than cutoff. Events are chronological.
func (b *bucket) evict(cutoff time.Time) {
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
