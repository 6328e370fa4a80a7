// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds the collaborative state of every room: who is
// participating and in which role, the files being edited, the branch
// and commit graph, comment threads, drawings, and recent chat.
//
// A [Store] owns one [State] per room id. A State is created when the
// first participant joins a room that has none and is destroyed when
// its last active participant leaves. Participants who leave are kept
// inactive so a reconnecting user gets its role back.
//
// Edits flow through [Store.ApplyChange], which checks the author's
// edit permission, rebases the change over concurrent history with
// [ot.Rebase], splices it into the file content, and advances the
// file's version. Every other mutation is a plain append or update
// gated by the acting participant's [Permissions].
//
// Permissions are never stored. They are computed from the role on
// every check, so a role change takes effect immediately.
package session
