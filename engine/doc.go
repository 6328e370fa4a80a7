// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine routes client envelopes to the connection registry,
// the room directory, and the collaboration store, and fans the
// results out to room members on this process and, through a
// [bridge.Relay], on its peers.
//
// A transport hands each accepted connection to [Engine.Connect],
// every inbound frame to [Engine.Handle], and the end of the read loop
// to [Engine.Disconnect]. [Engine.Run] drives the background work:
// relaying peer frames, heartbeats with stale-connection eviction, and
// session autosave.
//
// Envelope processing is serialized by one mutex. Authentication and
// namespace handlers run outside it, so a slow token check or a slow
// plugin never holds up room traffic.
package engine
