// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/tandem/hub"
	"github.com/bureau-foundation/tandem/wire"
)

// NamespaceHandler serves an event outside the collaboration
// vocabulary. A non-nil reply is sent back to the caller as an
// envelope with the same event name; a returned error is sent as an
// error envelope.
//
// Handlers run without the engine lock and may call Notify and
// BroadcastNamespace.
type NamespaceHandler func(ctx context.Context, caller Caller, data []byte) (reply any, err error)

// Caller identifies the connection a namespace event came from.
type Caller struct {
	ConnectionID  string
	UserID        string
	Authenticated bool
	RoomID        string
}

// RegisterNamespaceHandler serves event in namespace with handler,
// replacing any previous handler. Events of the collaboration
// vocabulary cannot be overridden.
func (e *Engine) RegisterNamespaceHandler(namespace wire.Namespace, event string, handler NamespaceHandler) error {
	if !namespace.Valid() {
		return fmt.Errorf("engine: unknown namespace %q", namespace)
	}
	if _, reserved := wire.ParseEvent(event); reserved {
		return fmt.Errorf("engine: event %q is reserved", event)
	}
	if handler == nil {
		return errors.New("engine: nil namespace handler")
	}

	e.namespaceMu.Lock()
	defer e.namespaceMu.Unlock()
	events, ok := e.namespaceHandlers[namespace]
	if !ok {
		events = make(map[string]NamespaceHandler)
		e.namespaceHandlers[namespace] = events
	}
	events[event] = handler
	return nil
}

func (e *Engine) dispatchNamespace(ctx context.Context, connection hub.Connection, envelope wire.Envelope) error {
	e.namespaceMu.RLock()
	handler := e.namespaceHandlers[envelope.Namespace][envelope.Event]
	e.namespaceMu.RUnlock()

	if handler == nil {
		e.logger.Warn("unknown event",
			"connection_id", connection.ID,
			"namespace", envelope.Namespace,
			"event", envelope.Event,
		)
		return nil
	}

	reply, err := handler(ctx, Caller{
		ConnectionID:  connection.ID,
		UserID:        connection.UserID,
		Authenticated: connection.Authenticated,
		RoomID:        envelope.RoomID,
	}, envelope.Data)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	response, err := wire.NewNamed(envelope.Namespace, envelope.Event, reply, e.clock.Now())
	if err != nil {
		return err
	}
	response.RoomID = envelope.RoomID
	payload, err := response.Marshal()
	if err != nil {
		return err
	}
	e.deliver(connection.ID, payload)
	return nil
}

// Notify delivers a notification to every connection of userID on this
// process, or queues it for the user's next authentication when there
// is none.
func (e *Engine) Notify(userID string, notification NotificationData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notifyLocked(userID, notification)
}

func (e *Engine) notifyLocked(userID string, notification NotificationData) error {
	payload, err := e.envelope(wire.NamespaceNotifications, wire.EventNotification, "", userID, notification)
	if err != nil {
		return err
	}

	delivered := false
	for _, connectionID := range e.registry.ByUser(userID) {
		e.deliver(connectionID, payload)
		delivered = true
	}
	if delivered {
		return nil
	}
	if dropped := e.mailbox.Enqueue(userID, payload); dropped {
		e.logger.Warn("mailbox full, dropped oldest notification", "user_id", userID)
	}
	return nil
}

// BroadcastNamespace sends an event to every connection whose current
// namespace is namespace, on this process and its peers.
func (e *Engine) BroadcastNamespace(namespace wire.Namespace, event string, data any) error {
	envelope, err := wire.NewNamed(namespace, event, data, e.clock.Now())
	if err != nil {
		return err
	}
	payload, err := envelope.Marshal()
	if err != nil {
		return err
	}
	for _, connectionID := range e.registry.InNamespace(namespace) {
		e.deliver(connectionID, payload)
	}
	e.relay.PublishGlobal(string(namespace), payload)
	return nil
}
