package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Config contains the rate limit applied to every (agent, tool) pair.
type Config struct {
	// MaxPerMinute is the sustained rate. Tokens refill at
	// MaxPerMinute/60 per second.
	MaxPerMinute int

	// BurstSize is the bucket capacity: the number of calls that may be
	// made back-to-back before refill matters.
	BurstSize int
}

// DefaultConfig returns a limiter configuration of 60 calls per minute
// with a burst of 10.
func DefaultConfig() Config {
	return Config{MaxPerMinute: 60, BurstSize: 10}
}

// Limiter applies a token bucket per (agent, tool) key.
//
// Buckets are created lazily on first reference and live for the
// process. The bucket map is guarded by its own mutex; each bucket has a
// per-key lock so a check observes tokens and last-refill together.
type Limiter struct {
	config  Config
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

type bucketKey struct {
	agentID string
	tool    string
}

// bucket holds the refillable token count for one key. Tokens are
// fractional so slow refill rates accumulate correctly between checks.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewLimiter creates a limiter with the given configuration.
func NewLimiter(config Config) *Limiter {
	if config.MaxPerMinute <= 0 {
		config.MaxPerMinute = DefaultConfig().MaxPerMinute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = DefaultConfig().BurstSize
	}
	return &Limiter{
		config:  config,
		buckets: make(map[bucketKey]*bucket),
	}
}

// Allow refills the bucket for (agentID, tool) and consumes one token.
// It returns false, without consuming, when less than one token is
// available.
func (l *Limiter) Allow(agentID, tool string) bool {
	b := l.bucket(agentID, tool)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(l.refillRate(), float64(l.config.BurstSize))
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the whole tokens currently available for the key,
// after refill.
func (l *Limiter) Remaining(agentID, tool string) int {
	b := l.bucket(agentID, tool)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(l.refillRate(), float64(l.config.BurstSize))
	return int(math.Floor(b.tokens))
}

// Reset clears the bucket for the key. The next check starts from a full
// bucket.
func (l *Limiter) Reset(agentID, tool string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, bucketKey{agentID, tool})
}

// refillRate is the token refill rate in tokens per second.
func (l *Limiter) refillRate() float64 {
	return float64(l.config.MaxPerMinute) / 60.0
}

// bucket returns the bucket for the key, creating it full on first use.
func (l *Limiter) bucket(agentID, tool string) *bucket {
	key := bucketKey{agentID, tool}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			tokens:     float64(l.config.BurstSize),
			lastRefill: time.Now(),
		}
		l.buckets[key] = b
	}
	return b
}

// refillLocked adds tokens for the time elapsed since the last refill,
// capped at capacity. Caller must hold the bucket lock.
func (b *bucket) refillLocked(rate, capacity float64) {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	b.tokens += elapsed * rate
	if b.tokens > capacity {
		b.tokens = capacity
	}
	b.lastRefill = now
}
