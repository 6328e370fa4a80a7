// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"testing"
	"time"

	"github.com/bureau-foundation/tandem/lib/clock"
)

var epoch = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func TestBurstOfOneHundredAndOne(t *testing.T) {
	limiter := New(DefaultConfig(), clock.Fake(epoch))

	allowed, refused := 0, 0
	for i := 0; i < 101; i++ {
		if limiter.Allow("10.0.0.1").Allowed {
			allowed++
		} else {
			refused++
		}
	}
	if allowed > 100 {
		t.Errorf("allowed %d messages, want at most 100", allowed)
	}
	if refused < 1 {
		t.Error("no message was refused")
	}
}

func TestBlockWindowOutlastsRefill(t *testing.T) {
	fake := clock.Fake(epoch)
	limiter := New(DefaultConfig(), fake)

	for i := 0; i < 100; i++ {
		limiter.Allow("10.0.0.1")
	}
	decision := limiter.Allow("10.0.0.1")
	if decision.Allowed {
		t.Fatal("101st message was allowed")
	}
	if decision.RetryAfter != 10*time.Second {
		t.Errorf("RetryAfter = %v, want 10s", decision.RetryAfter)
	}

	// The bucket has long since refilled, but the block still holds.
	fake.Advance(5 * time.Second)
	decision = limiter.Allow("10.0.0.1")
	if decision.Allowed {
		t.Fatal("message allowed during block window")
	}
	if decision.RetryAfter != 5*time.Second {
		t.Errorf("RetryAfter = %v, want 5s", decision.RetryAfter)
	}

	fake.Advance(5 * time.Second)
	if !limiter.Allow("10.0.0.1").Allowed {
		t.Error("message refused after block window ended")
	}
}

func TestSourcesAreIndependent(t *testing.T) {
	limiter := New(Config{TokensPerSecond: 2, Burst: 2}, clock.Fake(epoch))

	limiter.Allow("a")
	limiter.Allow("a")
	if limiter.Allow("a").Allowed {
		t.Fatal("third message from a allowed with burst 2")
	}
	if !limiter.Allow("b").Allowed {
		t.Error("b was refused because of a")
	}
}

func TestSustainedRateIsAllowed(t *testing.T) {
	fake := clock.Fake(epoch)
	limiter := New(Config{TokensPerSecond: 10, Burst: 10}, fake)

	for second := 0; second < 5; second++ {
		for i := 0; i < 10; i++ {
			if !limiter.Allow("steady").Allowed {
				t.Fatalf("message %d in second %d refused", i, second)
			}
		}
		fake.Advance(time.Second)
	}
}

func TestPruneKeepsBlockedSources(t *testing.T) {
	fake := clock.Fake(epoch)
	limiter := New(Config{TokensPerSecond: 1, Burst: 1, BlockFor: time.Minute}, fake)

	limiter.Allow("idle")
	limiter.Allow("abuser")
	limiter.Allow("abuser")

	fake.Advance(30 * time.Second)
	if removed := limiter.Prune(10 * time.Second); removed != 1 {
		t.Errorf("Prune removed %d, want 1", removed)
	}
	if limiter.Len() != 1 {
		t.Errorf("Len = %d, want 1 (the blocked source)", limiter.Len())
	}
}
