// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Event is the closed vocabulary of envelope events.
type Event uint8

const (
	EventAuthenticate Event = iota
	EventJoinRoom
	EventLeaveRoom
	EventCursorMove
	EventSelectionChange
	EventContentChange
	EventFileOpen
	EventFileClose
	EventFileLock
	EventFileUnlock
	EventCommentAdd
	EventCommentUpdate
	EventCommentDelete
	EventBranchCreate
	EventBranchCommit
	EventDriverChange
	EventRoleChange
	EventChatMessage
	EventDrawingAdd
	EventSyncRequest
	EventSyncResponse
	EventUserJoined
	EventUserLeft
	EventNotification
	EventPing
	EventPong
	EventHeartbeat
	EventError
	EventAck

	// EventCount is the size of the vocabulary. Dispatch tables are
	// arrays of this length.
	EventCount
)

var eventNames = [EventCount]string{
	EventAuthenticate:    "authenticate",
	EventJoinRoom:        "join-room",
	EventLeaveRoom:       "leave-room",
	EventCursorMove:      "cursor-move",
	EventSelectionChange: "selection-change",
	EventContentChange:   "content-change",
	EventFileOpen:        "file-open",
	EventFileClose:       "file-close",
	EventFileLock:        "file-lock",
	EventFileUnlock:      "file-unlock",
	EventCommentAdd:      "comment-add",
	EventCommentUpdate:   "comment-update",
	EventCommentDelete:   "comment-delete",
	EventBranchCreate:    "branch-create",
	EventBranchCommit:    "branch-commit",
	EventDriverChange:    "driver-change",
	EventRoleChange:      "role-change",
	EventChatMessage:     "chat-message",
	EventDrawingAdd:      "drawing-add",
	EventSyncRequest:     "sync-request",
	EventSyncResponse:    "sync-response",
	EventUserJoined:      "user-joined",
	EventUserLeft:        "user-left",
	EventNotification:    "notification",
	EventPing:            "ping",
	EventPong:            "pong",
	EventHeartbeat:       "heartbeat",
	EventError:           "error",
	EventAck:             "ack",
}

var eventsByName = func() map[string]Event {
	index := make(map[string]Event, EventCount)
	for event, name := range eventNames {
		index[name] = Event(event)
	}
	return index
}()

// String returns the wire name of e.
func (e Event) String() string {
	if e >= EventCount {
		return "unknown"
	}
	return eventNames[e]
}

// ParseEvent maps a wire name to its Event.
func ParseEvent(name string) (Event, bool) {
	event, ok := eventsByName[name]
	return event, ok
}

// ServerOriginated reports whether e only ever flows from server to
// client.
func (e Event) ServerOriginated() bool {
	switch e {
	case EventSyncResponse, EventUserJoined, EventUserLeft, EventError, EventAck:
		return true
	}
	return false
}
