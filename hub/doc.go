// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hub tracks who is connected and where they are.
//
// [Registry] owns every live connection of this process: its
// authentication state, current namespace, joined rooms, and last
// activity. [Directory] maps room ids to their local members and to
// the members peer processes have announced. [Mailbox] holds messages
// for users who are not online.
//
// The types here only keep books. Deciding what to broadcast when a
// connection goes away belongs to the caller, which reads the rooms a
// connection held from the value [Registry.Deregister] returns.
package hub
