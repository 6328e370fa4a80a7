// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ot resolves concurrent edits to line-addressed text.
//
// A [Change] is an insert, delete, or replace at a (line, column)
// position. Its Timestamp is a logical clock: the document version the
// author had observed when making the edit. The server stamps every
// change it applies with the version that change produced, so a
// history entry whose Timestamp is greater than an incoming change's
// Timestamp is one the author had not yet seen when editing.
//
// [Rebase] transforms an incoming change against exactly those
// entries, skipping the author's own (which the author's view already
// includes). [Transform] holds the pairwise rules:
//
//   - insert vs insert at different positions: unchanged. Positions
//     are not re-based across each other.
//   - insert vs insert at the identical position: the author whose id
//     sorts first lexicographically goes first; the other insert moves
//     to the end of the first insert's text. For single-line content
//     that is the column plus its rune length; content with newlines
//     moves it down to the column after the last newline.
//   - every pair involving a delete or replace: unchanged.
//
// The pass-through cases mean a concurrent delete can land on shifted
// text. Clients compute the same merge locally, so these rules must
// change in lockstep with them.
//
// Transform and Rebase return copies. History is never mutated.
package ot
