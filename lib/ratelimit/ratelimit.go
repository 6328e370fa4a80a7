// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit guards the transport against abusive message
// rates with one token bucket per source address.
//
// A source that empties its bucket is blocked outright for a fixed
// window; while blocked, every message is refused regardless of how
// many tokens have refilled. Buckets are driven by an injected clock
// so tests can step through refill and block expiry exactly.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/tandem/lib/clock"
)

// Config sizes every bucket the Limiter creates.
type Config struct {
	// TokensPerSecond is the sustained refill rate.
	TokensPerSecond float64

	// Burst is the bucket capacity. Zero means TokensPerSecond
	// rounded up.
	Burst int

	// BlockFor is how long a source is refused after exhausting its
	// bucket.
	BlockFor time.Duration
}

// DefaultConfig allows 100 messages per second and blocks violators
// for 10 seconds.
func DefaultConfig() Config {
	return Config{TokensPerSecond: 100, Burst: 100, BlockFor: 10 * time.Second}
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool

	// RetryAfter is how long the source stays blocked. Zero when
	// Allowed.
	RetryAfter time.Duration
}

// Limiter tracks buckets keyed by source address. Safe for concurrent
// use.
type Limiter struct {
	config Config
	clock  clock.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens       *rate.Limiter
	blockedUntil time.Time
	lastSeen     time.Time
}

// New returns a Limiter. A zero Config field takes its DefaultConfig
// value.
func New(config Config, clk clock.Clock) *Limiter {
	defaults := DefaultConfig()
	if config.TokensPerSecond <= 0 {
		config.TokensPerSecond = defaults.TokensPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = int(config.TokensPerSecond)
		if float64(config.Burst) < config.TokensPerSecond {
			config.Burst++
		}
	}
	if config.BlockFor <= 0 {
		config.BlockFor = defaults.BlockFor
	}
	return &Limiter{
		config:  config,
		clock:   clk,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token from source's bucket.
func (l *Limiter) Allow(source string) Decision {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.buckets[source]
	if !exists {
		entry = &bucket{tokens: rate.NewLimiter(rate.Limit(l.config.TokensPerSecond), l.config.Burst)}
		// Start the bucket full at the injected time, not wall time.
		entry.tokens.SetLimitAt(now, rate.Limit(l.config.TokensPerSecond))
		l.buckets[source] = entry
	}
	entry.lastSeen = now

	if now.Before(entry.blockedUntil) {
		return Decision{RetryAfter: entry.blockedUntil.Sub(now)}
	}
	if entry.tokens.AllowN(now, 1) {
		return Decision{Allowed: true}
	}
	entry.blockedUntil = now.Add(l.config.BlockFor)
	return Decision{RetryAfter: l.config.BlockFor}
}

// Prune forgets sources idle for longer than idle that are not
// currently blocked. Returns the number removed.
func (l *Limiter) Prune(idle time.Duration) int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for source, entry := range l.buckets {
		if now.Before(entry.blockedUntil) {
			continue
		}
		if now.Sub(entry.lastSeen) > idle {
			delete(l.buckets, source)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sources.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
