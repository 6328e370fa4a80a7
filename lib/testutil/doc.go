// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so that a broken test fails instead of hanging. They
// are the only place tests touch the wall clock; everything else in
// the suite runs on clock.Fake. [RequireNoReceive] asserts that a
// channel stays quiet, which is how multi-instance tests check that a
// message did not cross a degraded bridge.
//
// [UniqueID] produces distinct identifiers for rooms, users, and
// envelopes so parallel tests never collide.
package testutil
