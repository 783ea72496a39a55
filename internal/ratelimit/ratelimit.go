// Package ratelimit provides a keyed token-bucket limiter for inbound requests.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL       = 10 * time.Minute
	defaultSweepInterval = time.Minute
)

// Config describes the per-key bucket. Rate is tokens per Interval.
type Config struct {
	Rate     float64
	Interval time.Duration
	Burst    int
	// IdleTTL drops buckets of keys not seen for this long.
	IdleTTL time.Duration
	Clock   func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter gives every key its own independent limiter.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	clock   func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter and starts the background sweep of idle keys.
// A non-positive rate disables limiting.
func New(cfg Config) *KeyedRateLimiter {
	limit := rate.Inf
	if cfg.Rate > 0 && cfg.Interval > 0 {
		limit = rate.Limit(cfg.Rate / cfg.Interval.Seconds())
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	limiter := &KeyedRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		burst:   burst,
		idleTTL: idleTTL,
		clock:   clock,
		done:    make(chan struct{}),
	}
	go limiter.sweepLoop(defaultSweepInterval)
	return limiter
}

// Allow reports whether a request for key may proceed now. It never blocks.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	now := krl.clock()

	krl.mu.Lock()
	entry, exists := krl.buckets[key]
	if !exists {
		entry = &bucket{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.buckets[key] = entry
	}
	entry.lastSeen = now
	krl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.buckets)
}

// Sweep forgets keys idle for longer than the configured TTL.
func (krl *KeyedRateLimiter) Sweep() {
	cutoff := krl.clock().Add(-krl.idleTTL)

	krl.mu.Lock()
	defer krl.mu.Unlock()
	for key, entry := range krl.buckets {
		if entry.lastSeen.Before(cutoff) {
			delete(krl.buckets, key)
		}
	}
}

// Stop shuts down the sweep goroutine.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

func (krl *KeyedRateLimiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-krl.done:
			return
		case <-ticker.C:
			krl.Sweep()
		}
	}
}
