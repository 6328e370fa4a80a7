// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the passage of time so that liveness sweeps,
// rate limiting, credential expiry, and autosave can be tested without
// real sleeps.
//
// Components hold a Clock field. Binaries wire Real(); tests wire
// Fake() and drive time explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go registry.RunLiveness(ctx)
//	fake.WaitForTimers(1)          // the sweep loop has created its ticker
//	fake.Advance(30 * time.Second) // one sweep fires
//
// WaitForTimers closes the race between a goroutine registering a
// ticker and the test advancing past it.
package clock
