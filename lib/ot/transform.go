// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ot

// Transform returns incoming adjusted for applied, a change the
// document already contains but the author of incoming had not seen.
func Transform(incoming, applied Change) Change {
	if incoming.Kind != KindInsert || applied.Kind != KindInsert {
		return incoming
	}
	if incoming.Position != applied.Position {
		return incoming
	}
	if applied.Author < incoming.Author {
		incoming.Position = applied.end()
	}
	return incoming
}

// Concurrent reports whether applied is an entry the author of
// incoming had not observed.
func Concurrent(incoming, applied Change) bool {
	return applied.Author != incoming.Author && applied.Timestamp > incoming.Timestamp
}

// Rebase transforms incoming against every concurrent entry of
// history, in history order.
func Rebase(incoming Change, history []Change) Change {
	for _, applied := range history {
		if Concurrent(incoming, applied) {
			incoming = Transform(incoming, applied)
		}
	}
	return incoming
}
