// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "errors"

var (
	ErrSessionNotFound  = errors.New("session: no session for room")
	ErrNotParticipant   = errors.New("session: not an active participant")
	ErrPermissionDenied = errors.New("session: permission denied")
	ErrSessionFull      = errors.New("session: participant limit reached")
	ErrFileNotFound     = errors.New("session: file not open in session")
	ErrStaleChange      = errors.New("session: change already applied or out of order")
	ErrInvalidChange    = errors.New("session: invalid change")
	ErrInvalidRole      = errors.New("session: invalid role")
	ErrInvalidMode      = errors.New("session: invalid mode")
	ErrCommentNotFound  = errors.New("session: comment not found")
	ErrBranchExists     = errors.New("session: branch already exists")
	ErrBranchNotFound   = errors.New("session: branch not found")
	ErrInvalidTarget    = errors.New("session: invalid target participant")
	ErrInvalidName      = errors.New("session: invalid name")
)
