// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge mirrors room traffic between tandem processes.
//
// A [Backbone] is a publish/subscribe transport: [RedisBackbone] in
// production, [MemoryBus] backbones in tests, and [Noop] when there is
// nothing to talk to. A [Relay] sits on top of one backbone, encodes
// room broadcasts and membership churn as CBOR [Frame]s on four
// channels, and hands frames from peers to a callback.
//
// The relay never blocks its caller and never fails it. Publishing
// enqueues; a background loop drains the queue. The first backbone
// error disables the relay for the life of the process: it swaps in
// [Noop], logs once, and from then on every process serves only its
// own connections. Frames lost during or after a failure are not
// retried.
package bridge
