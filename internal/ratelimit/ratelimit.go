// Package ratelimit provides per-key request throttling for scan initiation.
// Limiter state lives in an injectable store, not package-level globals, so
// multi-instance deployments can swap in a shared implementation.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Store tracks limiter state per key (typically a client IP).
type Store interface {
	// Allow reports whether the key may proceed right now.
	Allow(key string) bool
}

// Config controls limiter creation.
type Config struct {
	// RequestsPerMinute is the sustained rate per key.
	RequestsPerMinute int

	// Burst is the instantaneous allowance per key.
	Burst int
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: 10, Burst: 3}
}

func (c Config) withDefaults() Config {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 10
	}
	if c.Burst <= 0 {
		c.Burst = 3
	}
	return c
}

// MemoryStore keeps one token bucket per key in process memory. Entries idle
// past the expiry are dropped on the next sweep.
type MemoryStore struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const entryTTL = 10 * time.Minute

func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*entry),
	}
}

func (s *MemoryStore) Allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(float64(s.cfg.RequestsPerMinute)/60.0), s.cfg.Burst)}
		s.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// Sweep drops buckets not seen within the TTL. Called periodically by the
// application janitor.
func (s *MemoryStore) Sweep() int {
	cutoff := time.Now().Add(-entryTTL)
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Unlimited is a Store that always allows. Used when rate limiting is
// disabled.
type Unlimited struct{}

func (Unlimited) Allow(string) bool { return true }
