// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"

	"github.com/bureau-foundation/tandem/hub"
	"github.com/bureau-foundation/tandem/lib/ot"
	"github.com/bureau-foundation/tandem/session"
)

// Server-to-client payloads. Each is the data field of the envelope
// named in its comment.

// JoinRoomReply answers join-room.
type JoinRoomReply struct {
	RoomID      string                      `json:"roomId"`
	Namespace   string                      `json:"namespace"`
	Name        string                      `json:"name,omitempty"`
	Metadata    map[string]any              `json:"metadata,omitempty"`
	Settings    hub.RoomSettings            `json:"settings"`
	Members     []hub.Member                `json:"members"`
	Participant session.ParticipantSnapshot `json:"participant"`
	Session     session.Snapshot            `json:"session"`
}

// UserJoinedData is user-joined.
type UserJoinedData struct {
	RoomID      string                      `json:"roomId"`
	UserID      string                      `json:"userId"`
	Username    string                      `json:"username"`
	Participant session.ParticipantSnapshot `json:"participant"`
}

// UserLeftData is user-left.
type UserLeftData struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// SyncResponseData answers sync-request with the full room state.
type SyncResponseData struct {
	RoomID   string           `json:"roomId"`
	Members  []hub.Member     `json:"members"`
	Session  session.Snapshot `json:"session"`
	Activity []hub.Activity   `json:"activity,omitempty"`
}

// CursorData is cursor-move.
type CursorData struct {
	RoomID string         `json:"roomId"`
	UserID string         `json:"userId"`
	Cursor session.Cursor `json:"cursor"`
}

// SelectionData is selection-change.
type SelectionData struct {
	RoomID    string            `json:"roomId"`
	UserID    string            `json:"userId"`
	Selection session.Selection `json:"selection"`
}

// ContentChangeData is content-change: the change as applied and the
// version it produced.
type ContentChangeData struct {
	RoomID  string    `json:"roomId"`
	Path    string    `json:"path"`
	UserID  string    `json:"userId"`
	Change  ot.Change `json:"change"`
	Version int64     `json:"version"`
}

// FileOpenReply answers file-open with the file's current state.
type FileOpenReply struct {
	RoomID string               `json:"roomId"`
	File   session.FileSnapshot `json:"file"`
}

// FileData is file-open and file-close as seen by other members, and
// file-unlock.
type FileData struct {
	RoomID string `json:"roomId"`
	Path   string `json:"path"`
	UserID string `json:"userId"`
}

// FileLockData is file-lock.
type FileLockData struct {
	RoomID string           `json:"roomId"`
	Path   string           `json:"path"`
	Lock   session.LineLock `json:"lock"`
}

// CommentData is comment-add and comment-update.
type CommentData struct {
	RoomID  string          `json:"roomId"`
	Comment session.Comment `json:"comment"`
}

// CommentDeletedData is comment-delete.
type CommentDeletedData struct {
	RoomID    string `json:"roomId"`
	CommentID string `json:"commentId"`
	UserID    string `json:"userId"`
}

// BranchData is branch-create.
type BranchData struct {
	RoomID string         `json:"roomId"`
	Branch session.Branch `json:"branch"`
}

// CommitData is branch-commit.
type CommitData struct {
	RoomID string         `json:"roomId"`
	Branch string         `json:"branch"`
	Commit session.Commit `json:"commit"`
}

// DriverChangeData is driver-change: every participant whose role
// changed.
type DriverChangeData struct {
	RoomID       string                        `json:"roomId"`
	Participants []session.ParticipantSnapshot `json:"participants"`
}

// RoleChangeData is role-change.
type RoleChangeData struct {
	RoomID      string                      `json:"roomId"`
	Participant session.ParticipantSnapshot `json:"participant"`
}

// ChatData is chat-message.
type ChatData struct {
	RoomID  string              `json:"roomId"`
	Message session.ChatMessage `json:"message"`
}

// DrawingData is drawing-add.
type DrawingData struct {
	RoomID  string          `json:"roomId"`
	Drawing session.Drawing `json:"drawing"`
}

// NotificationData is notification as delivered.
type NotificationData struct {
	From    string          `json:"from,omitempty"`
	Title   string          `json:"title,omitempty"`
	Body    string          `json:"body,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PingData is ping and pong.
type PingData struct {
	Time int64 `json:"time"`
}
