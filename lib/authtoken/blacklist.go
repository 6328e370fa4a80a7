// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authtoken

import (
	"sync"
	"time"
)

// Blacklist is a concurrency-safe set of revoked credential ids. Each
// entry remembers the credential's natural expiry so Cleanup can drop
// entries that expiry alone would reject.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewBlacklist returns an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]time.Time)}
}

// Revoke blacklists tokenID until expiresAt.
func (b *Blacklist) Revoke(tokenID string, expiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[tokenID] = expiresAt
}

// IsRevoked reports whether tokenID is blacklisted.
func (b *Blacklist) IsRevoked(tokenID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, revoked := b.entries[tokenID]
	return revoked
}

// Cleanup removes entries whose credential has expired by now and
// returns how many were removed.
func (b *Blacklist) Cleanup(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for tokenID, expiresAt := range b.entries {
		if !now.Before(expiresAt) {
			delete(b.entries, tokenID)
			removed++
		}
	}
	return removed
}

// Len returns the number of blacklisted ids.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
