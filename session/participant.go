// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"time"

	"github.com/bureau-foundation/tandem/lib/ot"
)

// Cursor is a participant's caret.
type Cursor struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	File   string `json:"file"`
}

// Selection is a participant's highlighted range.
type Selection struct {
	Start ot.Position `json:"start"`
	End   ot.Position `json:"end"`
	File  string      `json:"file"`
}

// Participant is a user's membership in a session. It outlives the
// user's connections so a reconnect keeps the role.
type Participant struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	DisplayName string     `json:"displayName"`
	Avatar      string     `json:"avatar,omitempty"`
	Role        Role       `json:"role"`
	Color       string     `json:"color"`
	Cursor      *Cursor    `json:"cursor,omitempty"`
	Selection   *Selection `json:"selection,omitempty"`
	Active      bool       `json:"active"`
	Speaking    bool       `json:"speaking"`
	Sharing     bool       `json:"screenSharing"`
	JoinedAt    time.Time  `json:"joinedAt"`
}

// Permissions returns the capabilities of the participant's role.
func (p *Participant) Permissions() Permissions {
	return p.Role.Permissions()
}

// participantColors are assigned round-robin in join order.
var participantColors = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#42d4f4", "#f032e6", "#9a6324",
}
