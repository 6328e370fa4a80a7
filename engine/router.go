// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bureau-foundation/tandem/hub"
	"github.com/bureau-foundation/tandem/lib/ot"
	"github.com/bureau-foundation/tandem/session"
	"github.com/bureau-foundation/tandem/wire"
)

var (
	// ErrNotAuthenticated rejects events other than authenticate,
	// ping, pong, and heartbeat before authentication.
	ErrNotAuthenticated = errors.New("engine: connection is not authenticated")

	// ErrAuthenticationFailed wraps an Authenticator failure.
	ErrAuthenticationFailed = errors.New("engine: authentication failed")

	// ErrNotInRoom rejects room events from connections that have not
	// joined the room.
	ErrNotInRoom = errors.New("engine: not in room")

	// ErrInvalidRequest wraps payloads that cannot be acted on.
	ErrInvalidRequest = errors.New("engine: invalid request")
)

// request is one parsed inbound envelope.
type request struct {
	ctx        context.Context
	connection hub.Connection
	envelope   wire.Envelope
	event      wire.Event
}

// roomID resolves the room an event addresses: the payload's room
// when it names one, else the envelope's.
func (r *request) roomID(fromPayload string) string {
	if fromPayload != "" {
		return fromPayload
	}
	return r.envelope.RoomID
}

func (r *request) decode(target any) error {
	if err := r.envelope.Decode(target); err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	return nil
}

type handler struct {
	fn func(*Engine, *request) error

	// public handlers run before authentication.
	public bool
	// unlocked handlers acquire e.mu themselves.
	unlocked bool
}

// handlers is indexed by event. Server-originated events have no
// entry; a client sending one is logged and otherwise ignored.
var handlers = [wire.EventCount]handler{
	wire.EventAuthenticate:    {fn: (*Engine).handleAuthenticate, public: true, unlocked: true},
	wire.EventPing:            {fn: (*Engine).handlePing, public: true},
	wire.EventPong:            {fn: (*Engine).handleHeartbeat, public: true},
	wire.EventHeartbeat:       {fn: (*Engine).handleHeartbeat, public: true},
	wire.EventJoinRoom:        {fn: (*Engine).handleJoinRoom},
	wire.EventLeaveRoom:       {fn: (*Engine).handleLeaveRoom},
	wire.EventSyncRequest:     {fn: (*Engine).handleSyncRequest},
	wire.EventNotification:    {fn: (*Engine).handleNotification},
	wire.EventCursorMove:      {fn: (*Engine).handleCursorMove},
	wire.EventSelectionChange: {fn: (*Engine).handleSelectionChange},
	wire.EventContentChange:   {fn: (*Engine).handleContentChange},
	wire.EventFileOpen:        {fn: (*Engine).handleFileOpen},
	wire.EventFileClose:       {fn: (*Engine).handleFileClose},
	wire.EventFileLock:        {fn: (*Engine).handleFileLock},
	wire.EventFileUnlock:      {fn: (*Engine).handleFileUnlock},
	wire.EventCommentAdd:      {fn: (*Engine).handleCommentAdd},
	wire.EventCommentUpdate:   {fn: (*Engine).handleCommentUpdate},
	wire.EventCommentDelete:   {fn: (*Engine).handleCommentDelete},
	wire.EventBranchCreate:    {fn: (*Engine).handleBranchCreate},
	wire.EventBranchCommit:    {fn: (*Engine).handleBranchCommit},
	wire.EventDriverChange:    {fn: (*Engine).handleDriverChange},
	wire.EventRoleChange:      {fn: (*Engine).handleRoleChange},
	wire.EventChatMessage:     {fn: (*Engine).handleChatMessage},
	wire.EventDrawingAdd:      {fn: (*Engine).handleDrawingAdd},
}

// Handle processes one inbound frame from connectionID.
//
// Malformed frames get an error envelope and nothing else. Frames over
// the sender's rate limit get an error envelope with the wait before
// the next accepted frame. Every other frame that asks for an ack gets
// one after processing, whether processing succeeded or not.
func (e *Engine) Handle(ctx context.Context, connectionID string, raw []byte) {
	connection, ok := e.registry.Get(connectionID)
	if !ok {
		return
	}
	e.registry.Touch(connectionID)

	envelope, err := wire.Parse(raw)
	if err != nil {
		e.logger.Debug("malformed envelope",
			"connection_id", connectionID,
			"error", err,
		)
		e.sendError(connectionID, connection.Namespace, wire.ErrorData{
			Code:    wire.CodeMalformedEnvelope,
			Message: err.Error(),
			Ref:     gjson.GetBytes(raw, "id").String(),
		})
		return
	}

	decision := e.limiter.Allow(rateLimitSource(connection.RemoteAddr))
	if !decision.Allowed {
		e.sendError(connectionID, envelope.Namespace, wire.ErrorData{
			Code:         wire.CodeRateLimitExceeded,
			Message:      rateLimitMessage(decision.RetryAfter),
			Ref:          envelope.ID,
			RetryAfterMs: decision.RetryAfter.Milliseconds(),
		})
		return
	}

	e.registry.SetNamespace(connectionID, envelope.Namespace)
	connection.Namespace = envelope.Namespace

	if err := e.dispatch(ctx, connection, envelope); err != nil {
		e.sendError(connectionID, envelope.Namespace, wire.ErrorData{
			Code:    errorCode(err),
			Message: err.Error(),
			Ref:     envelope.ID,
		})
	}

	if envelope.Ack {
		e.send(connectionID, envelope.Namespace, wire.EventAck, envelope.RoomID, wire.AckData{Ref: envelope.ID})
	}
}

func (e *Engine) dispatch(ctx context.Context, connection hub.Connection, envelope wire.Envelope) error {
	event, known := wire.ParseEvent(envelope.Event)
	if !known {
		return e.dispatchNamespace(ctx, connection, envelope)
	}

	entry := handlers[event]
	if entry.fn == nil {
		e.logger.Warn("client sent server-originated event",
			"connection_id", connection.ID,
			"event", envelope.Event,
		)
		return nil
	}
	if !entry.public && !connection.Authenticated {
		return ErrNotAuthenticated
	}

	r := &request{ctx: ctx, connection: connection, envelope: envelope, event: event}
	if entry.unlocked {
		return entry.fn(e, r)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// The connection may have been evicted or closed while this frame
	// waited for the lock. Acting on the stale copy would add a member
	// that no Disconnect will ever remove.
	current, ok := e.registry.Get(connection.ID)
	if !ok {
		e.logger.Debug("dropping event for closed connection",
			"connection_id", connection.ID,
			"event", envelope.Event,
		)
		return nil
	}
	r.connection = current
	return entry.fn(e, r)
}

// errorCode maps a handler error to the code clients see.
func errorCode(err error) wire.Code {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return wire.CodeNotAuthenticated
	case errors.Is(err, ErrAuthenticationFailed):
		return wire.CodeAuthenticationFailed
	case errors.Is(err, ErrNotInRoom),
		errors.Is(err, session.ErrNotParticipant),
		errors.Is(err, session.ErrSessionNotFound):
		return wire.CodeNotInRoom
	case errors.Is(err, session.ErrPermissionDenied):
		return wire.CodePermissionDenied
	case errors.Is(err, session.ErrSessionFull):
		return wire.CodeSessionFull
	case errors.Is(err, hub.ErrRoomFull):
		return wire.CodeRoomFull
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, session.ErrFileNotFound),
		errors.Is(err, session.ErrStaleChange),
		errors.Is(err, session.ErrInvalidChange),
		errors.Is(err, session.ErrInvalidRole),
		errors.Is(err, session.ErrInvalidMode),
		errors.Is(err, session.ErrCommentNotFound),
		errors.Is(err, session.ErrBranchExists),
		errors.Is(err, session.ErrBranchNotFound),
		errors.Is(err, session.ErrInvalidTarget),
		errors.Is(err, session.ErrInvalidName),
		errors.Is(err, ot.ErrInvalidKind),
		errors.Is(err, ot.ErrInvalidPosition),
		errors.Is(err, ot.ErrInvalidLength):
		return wire.CodeInvalidRequest
	default:
		return wire.CodeInternal
	}
}

// rateLimitMessage tells a throttled client how long to back off.
func rateLimitMessage(wait time.Duration) string {
	if wait < time.Second {
		return fmt.Sprintf("rate limit exceeded; retry in %dms", wait.Milliseconds())
	}
	return fmt.Sprintf("rate limit exceeded; retry in %s", wait.Round(time.Second))
}

// rateLimitSource buckets connections by remote host so reconnecting
// does not reset a client's budget.
func rateLimitSource(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// requireRoom checks that the request's connection has joined roomID.
func (e *Engine) requireRoom(r *request, roomID string) error {
	if roomID == "" {
		return errors.Join(ErrInvalidRequest, errors.New("roomId is required"))
	}
	if !e.registry.InRoom(r.connection.ID, roomID) {
		return ErrNotInRoom
	}
	return nil
}
