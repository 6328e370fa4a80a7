// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/bureau-foundation/tandem/wire"
)

func (e *Engine) runLiveness(ctx context.Context) {
	ticker := e.clock.NewTicker(e.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

// sweep evicts connections silent for staleAfter and pings the rest.
func (e *Engine) sweep() {
	for _, connectionID := range e.registry.Stale(e.staleAfter) {
		e.logger.Info("evicting stale connection", "connection_id", connectionID)
		e.registry.Close(connectionID, "heartbeat timeout")
		e.Disconnect(connectionID)
	}

	ping := PingData{Time: e.clock.Now().UnixMilli()}
	for _, connectionID := range e.registry.IDs() {
		namespace := wire.NamespaceCollaboration
		if connection, ok := e.registry.Get(connectionID); ok && connection.Namespace != "" {
			namespace = connection.Namespace
		}
		e.send(connectionID, namespace, wire.EventPing, "", ping)
	}

	if pruned := e.limiter.Prune(e.staleAfter); pruned > 0 {
		e.logger.Debug("pruned idle rate limit buckets", "count", pruned)
	}
}

func (e *Engine) runAutosave(ctx context.Context) {
	ticker := e.clock.NewTicker(e.autosaveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.autosave(ctx)
		}
	}
}

// autosave hands every session whose autosave interval has elapsed to
// the sink.
func (e *Engine) autosave(ctx context.Context) {
	for _, snapshot := range e.sessions.AutosaveDue() {
		if err := e.sink.SaveSnapshot(ctx, snapshot); err != nil {
			e.logger.Error("autosave failed",
				"room_id", snapshot.RoomID,
				"session_id", snapshot.ID,
				"error", err,
			)
		}
	}
}
