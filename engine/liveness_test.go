// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/bureau-foundation/tandem/lib/testutil"
	"github.com/bureau-foundation/tandem/wire"
)

// A member that answers pings survives; one that stays silent for the
// stale threshold is closed and leaves its rooms.
func TestLivenessEvictsSilentConnections(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.engine.runLiveness(ctx)
	h.clock.WaitForTimers(1)

	alive := h.login("alive")
	silent := h.login("silent")
	alive.join("r1")
	silent.join("r1")
	alive.expect(wire.EventUserJoined)

	h.clock.Advance(30 * time.Second)
	alive.expect(wire.EventPing)
	silent.expect(wire.EventPing)
	alive.send(wire.EventPong, struct{}{})

	h.clock.Advance(30 * time.Second)
	testutil.RequireClosed(t, silent.conn.closed, receiveTimeout, "silent connection not closed")
	left := decodeData[UserLeftData](t, alive.await(wire.EventUserLeft))
	if left.UserID != "silent" {
		t.Errorf("user-left for %s, want silent", left.UserID)
	}
	alive.expect(wire.EventPing)

	select {
	case <-alive.conn.closed:
		t.Fatal("responsive connection was closed")
	default:
	}
	room, _ := h.engine.Room("r1")
	if got := memberIDs(room.Members); len(got) != 1 || got[0] != "alive" {
		t.Errorf("members = %v, want [alive]", got)
	}
}

func TestRunClosesConnectionsOnShutdown(t *testing.T) {
	h := newHarness(t)
	c := h.login("u1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.engine.Run(ctx)
		close(done)
	}()
	h.clock.WaitForTimers(2)
	cancel()

	testutil.RequireClosed(t, done, receiveTimeout, "Run did not return")
	testutil.RequireClosed(t, c.conn.closed, receiveTimeout, "connection not closed on shutdown")
}
