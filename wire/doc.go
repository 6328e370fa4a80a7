// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the JSON envelope every client message travels
// in, in both directions, and the closed vocabularies it draws from.
//
// An inbound frame goes through [Parse], which checks the schema with
// gjson before decoding so a malformed frame is rejected with the name
// of the offending field and never reaches a handler. [Event] is a
// closed enumeration: dispatch tables are indexed by it, so adding an
// event means adding a constant, a name, and a handler together.
// Event names outside the vocabulary still parse (the envelope keeps
// the raw name) so that namespace-specific extensions can claim them.
//
// Request payload types live here too, since they are the contract
// clients code against.
package wire
