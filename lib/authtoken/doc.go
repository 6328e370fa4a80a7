// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package authtoken mints and verifies the credentials clients present
// in the authenticate handshake.
//
// A credential is a CBOR-encoded [Token] followed by a 64-byte Ed25519
// signature, carried on the JSON wire as unpadded base64url text. The
// account system that owns user records holds the private key and
// mints credentials; tandem servers hold only the public key. Nothing
// about the account system leaks into the engine beyond the user id
// and display name a verified token yields.
//
// [Verifier] is the piece the engine calls. It checks the signature,
// the audience, expiry against an injected clock, and the revocation
// [Blacklist].
package authtoken
