// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"

	"github.com/bureau-foundation/tandem/lib/ot"
)

// Every room-scoped request may name its room in the payload or in the
// envelope's roomId; the payload wins.

type AuthenticateRequest struct {
	Token string `json:"token"`
}

type AuthenticateReply struct {
	Success  bool   `json:"success"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RoomSettings are honored only by the join that creates the room.
type RoomSettings struct {
	MaxMembers     int  `json:"maxMembers,omitempty"`
	Persistent     bool `json:"persistent,omitempty"`
	RecordActivity bool `json:"recordActivity,omitempty"`
}

// SessionSettings are honored only by the join that creates the
// session.
type SessionSettings struct {
	MaxParticipants  int   `json:"maxParticipants,omitempty"`
	GuestAccess      bool  `json:"guestAccess,omitempty"`
	ApprovalRequired bool  `json:"approvalRequired,omitempty"`
	RecordSession    bool  `json:"recordSession,omitempty"`
	AIEnabled        bool  `json:"aiEnabled,omitempty"`
	Autosave         bool  `json:"autosave,omitempty"`
	AutosaveSeconds  int64 `json:"autosaveSeconds,omitempty"`
}

type JoinRoomRequest struct {
	RoomID    string         `json:"roomId"`
	Namespace Namespace      `json:"namespace,omitempty"`
	Name      string         `json:"name,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Settings  *RoomSettings  `json:"settings,omitempty"`

	Mode            string           `json:"mode,omitempty"`
	Role            string           `json:"role,omitempty"`
	Avatar          string           `json:"avatar,omitempty"`
	SessionSettings *SessionSettings `json:"sessionSettings,omitempty"`
}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// SyncRequest asks for the full room state. A non-zero ChatSince limits
// the returned chat to messages after that sequence.
type SyncRequest struct {
	RoomID    string `json:"roomId"`
	ChatSince uint64 `json:"chatSince,omitempty"`
}

type Cursor struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	File   string `json:"file"`
}

type Selection struct {
	Start ot.Position `json:"start"`
	End   ot.Position `json:"end"`
	File  string      `json:"file"`
}

type CursorMoveRequest struct {
	RoomID string `json:"roomId"`
	Cursor Cursor `json:"cursor"`
}

type SelectionChangeRequest struct {
	RoomID    string    `json:"roomId"`
	Selection Selection `json:"selection"`
}

type ContentChangeRequest struct {
	RoomID string    `json:"roomId"`
	Path   string    `json:"path"`
	Change ot.Change `json:"change"`
}

type FileOpenRequest struct {
	RoomID  string  `json:"roomId"`
	Path    string  `json:"path"`
	Content *string `json:"content,omitempty"`
}

type FileRequest struct {
	RoomID string `json:"roomId"`
	Path   string `json:"path"`
}

type FileLockRequest struct {
	RoomID    string `json:"roomId"`
	Path      string `json:"path"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

type CommentAddRequest struct {
	RoomID string `json:"roomId"`
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Text   string `json:"text"`
}

// CommentUpdateRequest carries any combination of a new text, a new
// resolved flag, and a reply to append.
type CommentUpdateRequest struct {
	RoomID    string  `json:"roomId"`
	CommentID string  `json:"commentId"`
	Text      *string `json:"text,omitempty"`
	Resolved  *bool   `json:"resolved,omitempty"`
	Reply     *string `json:"reply,omitempty"`
}

type CommentDeleteRequest struct {
	RoomID    string `json:"roomId"`
	CommentID string `json:"commentId"`
}

type BranchCreateRequest struct {
	RoomID     string `json:"roomId"`
	Name       string `json:"name"`
	BaseCommit string `json:"baseCommit,omitempty"`
}

type BranchCommitRequest struct {
	RoomID  string `json:"roomId"`
	Branch  string `json:"branch"`
	Message string `json:"message"`
}

type DriverChangeRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type RoleChangeRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type ChatMessageRequest struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

type DrawingAddRequest struct {
	RoomID string          `json:"roomId"`
	Shape  json.RawMessage `json:"shape"`
}

// NotificationRequest addresses a notification to one user. Delivery
// is to every online connection of that user, or to the user's next
// authenticated connection.
type NotificationRequest struct {
	TargetUserID string          `json:"targetUserId"`
	Title        string          `json:"title,omitempty"`
	Body         string          `json:"body,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}
