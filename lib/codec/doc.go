// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by the engine's
// internal formats.
//
// Two serialization formats meet in tandem:
//
//   - JSON on the client wire: every envelope a browser or agent
//     exchanges with the server (package wire).
//   - CBOR between server processes and inside credentials: relay
//     frames mirrored over the pub/sub backbone (package bridge) and
//     signed tokens (package authtoken).
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so equal
// values produce equal bytes. That property matters for credentials,
// where the signature covers the encoded payload.
package codec
