// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"

	"github.com/bureau-foundation/tandem/session"
	"github.com/bureau-foundation/tandem/wire"
)

// Collaboration handlers. Each resolves the room, checks membership,
// mutates the session store (which enforces role permissions), and
// broadcasts the result. Presence and edits skip the sender, who
// already has them; everything else goes to the whole room so the
// sender sees the server-assigned ids and ordering.

func (e *Engine) handleCursorMove(r *request) error {
	var payload wire.CursorMoveRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	cursor := session.Cursor(payload.Cursor)
	if err := e.sessions.UpdateCursor(roomID, r.connection.UserID, cursor); err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventCursorMove, r.connection.UserID, r.connection.ID, CursorData{
		RoomID: roomID,
		UserID: r.connection.UserID,
		Cursor: cursor,
	})
	return nil
}

func (e *Engine) handleSelectionChange(r *request) error {
	var payload wire.SelectionChangeRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	selection := session.Selection(payload.Selection)
	if err := e.sessions.UpdateSelection(roomID, r.connection.UserID, selection); err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventSelectionChange, r.connection.UserID, r.connection.ID, SelectionData{
		RoomID:    roomID,
		UserID:    r.connection.UserID,
		Selection: selection,
	})
	return nil
}

func (e *Engine) handleContentChange(r *request) error {
	var payload wire.ContentChangeRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	applied, version, err := e.sessions.ApplyChange(roomID, r.connection.UserID, payload.Path, payload.Change)
	if err != nil {
		e.logger.Debug("change rejected",
			"room_id", roomID,
			"user_id", r.connection.UserID,
			"path", payload.Path,
			"error", err,
		)
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventContentChange, r.connection.UserID, r.connection.ID, ContentChangeData{
		RoomID:  roomID,
		Path:    payload.Path,
		UserID:  r.connection.UserID,
		Change:  applied,
		Version: version,
	})
	return nil
}

func (e *Engine) handleFileOpen(r *request) error {
	var payload wire.FileOpenRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	var initial string
	if payload.Content != nil {
		initial = *payload.Content
	}
	file, err := e.sessions.OpenFile(roomID, r.connection.UserID, payload.Path, initial)
	if err != nil {
		return err
	}
	e.send(r.connection.ID, r.envelope.Namespace, wire.EventFileOpen, roomID, FileOpenReply{RoomID: roomID, File: file})
	e.broadcast(roomID, r.envelope.Namespace, wire.EventFileOpen, r.connection.UserID, r.connection.ID, FileData{
		RoomID: roomID,
		Path:   payload.Path,
		UserID: r.connection.UserID,
	})
	return nil
}

func (e *Engine) handleFileClose(r *request) error {
	var payload wire.FileRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	if err := e.sessions.CloseFile(roomID, r.connection.UserID, payload.Path); err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventFileClose, r.connection.UserID, "", FileData{
		RoomID: roomID,
		Path:   payload.Path,
		UserID: r.connection.UserID,
	})
	return nil
}

func (e *Engine) handleFileLock(r *request) error {
	var payload wire.FileLockRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	lock, err := e.sessions.LockLines(roomID, r.connection.UserID, payload.Path, payload.StartLine, payload.EndLine)
	if err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventFileLock, r.connection.UserID, "", FileLockData{
		RoomID: roomID,
		Path:   payload.Path,
		Lock:   lock,
	})
	return nil
}

func (e *Engine) handleFileUnlock(r *request) error {
	var payload wire.FileRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	if err := e.sessions.UnlockLines(roomID, r.connection.UserID, payload.Path); err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventFileUnlock, r.connection.UserID, "", FileData{
		RoomID: roomID,
		Path:   payload.Path,
		UserID: r.connection.UserID,
	})
	return nil
}

func (e *Engine) handleCommentAdd(r *request) error {
	var payload wire.CommentAddRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	comment, err := e.sessions.AddComment(roomID, r.connection.UserID, payload.Path, payload.Line, payload.Text)
	if err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventCommentAdd, r.connection.UserID, "", CommentData{RoomID: roomID, Comment: comment})
	return nil
}

func (e *Engine) handleCommentUpdate(r *request) error {
	var payload wire.CommentUpdateRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	if payload.Text == nil && payload.Resolved == nil && payload.Reply == nil {
		return errors.Join(ErrInvalidRequest, errors.New("update changes nothing"))
	}
	comment, err := e.sessions.UpdateComment(roomID, r.connection.UserID, payload.CommentID, session.CommentUpdate{
		Text:     payload.Text,
		Resolved: payload.Resolved,
		Reply:    payload.Reply,
	})
	if err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventCommentUpdate, r.connection.UserID, "", CommentData{RoomID: roomID, Comment: comment})
	return nil
}

func (e *Engine) handleCommentDelete(r *request) error {
	var payload wire.CommentDeleteRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	if err := e.sessions.DeleteComment(roomID, r.connection.UserID, payload.CommentID); err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventCommentDelete, r.connection.UserID, "", CommentDeletedData{
		RoomID:    roomID,
		CommentID: payload.CommentID,
		UserID:    r.connection.UserID,
	})
	return nil
}

func (e *Engine) handleBranchCreate(r *request) error {
	var payload wire.BranchCreateRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	branch, err := e.sessions.CreateBranch(roomID, r.connection.UserID, payload.Name, payload.BaseCommit)
	if err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventBranchCreate, r.connection.UserID, "", BranchData{RoomID: roomID, Branch: branch})
	return nil
}

func (e *Engine) handleBranchCommit(r *request) error {
	var payload wire.BranchCommitRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	commit, err := e.sessions.Commit(roomID, r.connection.UserID, payload.Branch, payload.Message)
	if err != nil {
		return err
	}
	branch := payload.Branch
	if branch == "" {
		snapshot, _ := e.sessions.Snapshot(roomID)
		branch = snapshot.CurrentBranch
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventBranchCommit, r.connection.UserID, "", CommitData{
		RoomID: roomID,
		Branch: branch,
		Commit: commit,
	})
	return nil
}

func (e *Engine) handleDriverChange(r *request) error {
	var payload wire.DriverChangeRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	changed, err := e.sessions.ChangeDriver(roomID, r.connection.UserID, payload.UserID)
	if err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventDriverChange, r.connection.UserID, "", DriverChangeData{
		RoomID:       roomID,
		Participants: changed,
	})
	return nil
}

func (e *Engine) handleRoleChange(r *request) error {
	var payload wire.RoleChangeRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	role, err := session.ParseRole(payload.Role)
	if err != nil {
		return err
	}
	if role == "" {
		return errors.Join(ErrInvalidRequest, errors.New("role is required"))
	}
	participant, err := e.sessions.ChangeRole(roomID, r.connection.UserID, payload.UserID, role)
	if err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventRoleChange, r.connection.UserID, "", RoleChangeData{
		RoomID:      roomID,
		Participant: participant,
	})
	return nil
}

func (e *Engine) handleChatMessage(r *request) error {
	var payload wire.ChatMessageRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	message, err := e.sessions.AddChat(roomID, r.connection.UserID, payload.Text)
	if err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventChatMessage, r.connection.UserID, "", ChatData{RoomID: roomID, Message: message})
	return nil
}

func (e *Engine) handleDrawingAdd(r *request) error {
	var payload wire.DrawingAddRequest
	if err := r.decode(&payload); err != nil {
		return err
	}
	roomID := r.roomID(payload.RoomID)
	if err := e.requireRoom(r, roomID); err != nil {
		return err
	}
	if len(payload.Shape) == 0 {
		return errors.Join(ErrInvalidRequest, errors.New("shape is required"))
	}
	drawing, err := e.sessions.AddDrawing(roomID, r.connection.UserID, payload.Shape)
	if err != nil {
		return err
	}
	e.broadcast(roomID, r.envelope.Namespace, wire.EventDrawingAdd, r.connection.UserID, "", DrawingData{RoomID: roomID, Drawing: drawing})
	return nil
}
