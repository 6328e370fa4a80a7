// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/bureau-foundation/tandem/bridge"
	"github.com/bureau-foundation/tandem/hub"
	"github.com/bureau-foundation/tandem/wire"
)

// handleFrame applies a frame from a peer process. Mirrored envelopes
// go only to local connections; they are never re-published.
func (e *Engine) handleFrame(frame bridge.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch frame.Kind {
	case bridge.KindRoomBroadcast:
		e.fanOut(frame.RoomID, "", frame.Payload)
	case bridge.KindRoomJoin:
		e.directory.AddRemoteMember(frame.RoomID, frame.Origin, hub.Member{
			UserID:   frame.UserID,
			Username: frame.Username,
		})
	case bridge.KindRoomLeave:
		e.directory.RemoveRemoteMember(frame.RoomID, frame.Origin, frame.UserID)
	case bridge.KindGlobalBroadcast:
		for _, connectionID := range e.registry.InNamespace(wire.Namespace(frame.Namespace)) {
			e.deliver(connectionID, frame.Payload)
		}
	default:
		e.logger.Warn("unknown peer frame", "kind", frame.Kind, "origin", frame.Origin)
	}
}

// watchRelay forgets peer members once the relay disables itself. No
// more room-leave frames will arrive, so join replies would otherwise
// list those users forever.
func (e *Engine) watchRelay(ctx context.Context) {
	select {
	case <-e.relay.Disabled():
	case <-ctx.Done():
		return
	}
	e.mu.Lock()
	dropped := e.directory.ClearRemote()
	e.mu.Unlock()
	if dropped > 0 {
		e.logger.Warn("bridge disabled; dropped remote members", "members", dropped)
	}
}
