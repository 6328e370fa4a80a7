// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/tandem/hub"
	"github.com/bureau-foundation/tandem/session"
	"github.com/bureau-foundation/tandem/wire"
)

func (e *Engine) handleAuthenticate(r *request) error {
	var payload wire.AuthenticateRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	if payload.Token == "" {
		return errors.Join(ErrInvalidRequest, errors.New("token is required"))
	}

	// Verification may block on I/O and runs without e.mu.
	identity, err := e.authenticator.Authenticate(r.ctx, payload.Token)
	if err != nil {
		e.logger.Info("authentication failed",
			"connection_id", r.connection.ID,
			"remote_addr", r.connection.RemoteAddr,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.registry.Get(r.connection.ID)
	if !ok {
		return nil
	}
	if current.Authenticated && current.UserID != identity.UserID {
		return errors.Join(ErrInvalidRequest, errors.New("connection is bound to another user"))
	}
	if err := e.registry.MarkAuthenticated(r.connection.ID, identity.UserID, identity.DisplayName); err != nil {
		return err
	}
	e.logger.Info("connection authenticated",
		"connection_id", r.connection.ID,
		"user_id", identity.UserID,
	)

	e.send(r.connection.ID, r.envelope.Namespace, wire.EventAuthenticate, "", wire.AuthenticateReply{
		Success:  true,
		UserID:   identity.UserID,
		Username: identity.DisplayName,
	})
	for _, payload := range e.mailbox.Drain(identity.UserID) {
		e.deliver(r.connection.ID, payload)
	}
	return nil
}

func (e *Engine) handlePing(r *request) error {
	e.send(r.connection.ID, r.envelope.Namespace, wire.EventPong, "", PingData{Time: e.clock.Now().UnixMilli()})
	return nil
}

// handleHeartbeat covers pong and heartbeat. Handle already recorded
// the activity.
func (e *Engine) handleHeartbeat(*request) error { return nil }

func (e *Engine) handleJoinRoom(r *request) error {
	var payload wire.JoinRoomRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if roomID == "" {
		return errors.Join(ErrInvalidRequest, errors.New("roomId is required"))
	}
	namespace := payload.Namespace
	if namespace == "" {
		namespace = r.envelope.Namespace
	}
	if !namespace.Valid() {
		return errors.Join(ErrInvalidRequest, fmt.Errorf("unknown namespace %q", namespace))
	}
	mode, err := session.ParseMode(payload.Mode)
	if err != nil {
		return err
	}
	role, err := session.ParseRole(payload.Role)
	if err != nil {
		return err
	}

	connection := r.connection
	member := hub.Member{UserID: connection.UserID, Username: connection.DisplayName}
	alreadyJoined := e.registry.InRoom(connection.ID, roomID)

	options := hub.JoinOptions{Name: payload.Name, Metadata: payload.Metadata}
	if payload.Settings != nil {
		options.Settings = &hub.RoomSettings{
			MaxMembers:     payload.Settings.MaxMembers,
			Persistent:     payload.Settings.Persistent,
			RecordActivity: payload.Settings.RecordActivity,
		}
	}
	room, err := e.directory.Join(roomID, connection.ID, member, namespace, options)
	if err != nil {
		return err
	}

	joined, err := e.sessions.Join(roomID, session.JoinRequest{
		UserID:      connection.UserID,
		DisplayName: connection.DisplayName,
		Avatar:      payload.Avatar,
		Role:        role,
		Mode:        mode,
		Settings:    sessionSettings(payload.SessionSettings),
	})
	if err != nil {
		if !alreadyJoined {
			e.directory.Leave(roomID, connection.ID)
		}
		return err
	}
	e.registry.AddRoom(connection.ID, roomID)

	snapshot, _ := e.sessions.Snapshot(roomID)
	e.send(connection.ID, room.Namespace, wire.EventJoinRoom, roomID, JoinRoomReply{
		RoomID:      roomID,
		Namespace:   string(room.Namespace),
		Name:        room.Name,
		Metadata:    room.Metadata,
		Settings:    room.Settings,
		Members:     room.Members,
		Participant: joined.Participant,
		Session:     snapshot,
	})

	if alreadyJoined {
		return nil
	}
	e.logger.Info("joined room",
		"connection_id", connection.ID,
		"user_id", connection.UserID,
		"room_id", roomID,
		"role", joined.Participant.Role,
	)
	e.relay.PublishJoin(roomID, connection.UserID, connection.DisplayName)
	e.broadcast(roomID, room.Namespace, wire.EventUserJoined, connection.UserID, connection.ID, UserJoinedData{
		RoomID:      roomID,
		UserID:      connection.UserID,
		Username:    connection.DisplayName,
		Participant: joined.Participant,
	})
	return nil
}

func sessionSettings(settings *wire.SessionSettings) *session.Settings {
	if settings == nil {
		return nil
	}
	return &session.Settings{
		MaxParticipants:  settings.MaxParticipants,
		GuestAccess:      settings.GuestAccess,
		ApprovalRequired: settings.ApprovalRequired,
		RecordSession:    settings.RecordSession,
		AIEnabled:        settings.AIEnabled,
		Autosave:         settings.Autosave,
		AutosaveInterval: time.Duration(settings.AutosaveSeconds) * time.Second,
	}
}

func (e *Engine) handleLeaveRoom(r *request) error {
	var payload wire.RoomRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	e.leaveRoom(r.connection, roomID)
	return nil
}

// leaveRoom removes connection from roomID. When it was the user's
// last connection in the room the user also leaves the session, and
// the room and peers hear user-left. Callers hold e.mu.
func (e *Engine) leaveRoom(connection hub.Connection, roomID string) {
	namespace := connection.Namespace
	if room, ok := e.directory.Snapshot(roomID); ok {
		namespace = room.Namespace
	}

	result := e.directory.Leave(roomID, connection.ID)
	e.registry.RemoveRoom(connection.ID, roomID)
	if !result.Left || result.UserRemains {
		return
	}

	destroyed := e.sessions.Leave(roomID, connection.UserID)
	e.logger.Info("left room",
		"connection_id", connection.ID,
		"user_id", connection.UserID,
		"room_id", roomID,
		"room_deleted", result.Deleted,
		"session_destroyed", destroyed,
	)
	e.relay.PublishLeave(roomID, connection.UserID)
	e.broadcast(roomID, namespace, wire.EventUserLeft, connection.UserID, connection.ID, UserLeftData{
		RoomID: roomID,
		UserID: connection.UserID,
	})
}

func (e *Engine) handleSyncRequest(r *request) error {
	var payload wire.SyncRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	room, ok := e.directory.Snapshot(roomID)
	if !ok {
		return ErrNotInRoom
	}
	snapshot, ok := e.sessions.Snapshot(roomID)
	if !ok {
		return session.ErrSessionNotFound
	}
	if payload.ChatSince > 0 {
		snapshot.Chat = e.sessions.ChatSince(roomID, payload.ChatSince)
	}
	e.send(r.connection.ID, room.Namespace, wire.EventSyncResponse, roomID, SyncResponseData{
		RoomID:   roomID,
		Members:  room.Members,
		Session:  snapshot,
		Activity: e.directory.Activity(roomID),
	})
	return nil
}

func (e *Engine) handleNotification(r *request) error {
	var payload wire.NotificationRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	if payload.TargetUserID == "" {
		return errors.Join(ErrInvalidRequest, errors.New("targetUserId is required"))
	}
	return e.notifyLocked(payload.TargetUserID, NotificationData{
		From:    r.connection.UserID,
		Title:   payload.Title,
		Body:    payload.Body,
		Payload: payload.Payload,
	})
}
