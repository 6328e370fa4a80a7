// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "fmt"

// Role is a participant's function in a session.
type Role string

const (
	RoleHost      Role = "host"
	RoleDriver    Role = "driver"
	RoleNavigator Role = "navigator"
	RoleObserver  Role = "observer"
	RoleReviewer  Role = "reviewer"
	RoleStudent   Role = "student"
	RoleTeacher   Role = "teacher"
)

// Permissions is the capability set derived from a Role.
type Permissions struct {
	CanEdit    bool `json:"canEdit"`
	CanComment bool `json:"canComment"`
	CanDraw    bool `json:"canDraw"`
	CanShare   bool `json:"canShare"`
}

var rolePermissions = map[Role]Permissions{
	RoleHost:      {CanEdit: true, CanComment: true, CanDraw: true, CanShare: true},
	RoleTeacher:   {CanEdit: true, CanComment: true, CanDraw: true, CanShare: true},
	RoleDriver:    {CanEdit: true, CanComment: true, CanDraw: true},
	RoleNavigator: {CanComment: true, CanDraw: true},
	RoleStudent:   {CanComment: true, CanDraw: true},
	RoleReviewer:  {CanComment: true},
	RoleObserver:  {},
}

// Permissions returns the capabilities of r. Unknown roles have none.
func (r Role) Permissions() Permissions {
	return rolePermissions[r]
}

// Moderates reports whether r may manage other participants and edit
// or delete anyone's comments.
func (r Role) Moderates() bool {
	return r == RoleHost || r == RoleTeacher
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// ParseRole converts a wire role name. The empty string is returned as
// the empty Role so callers can apply their own default.
func ParseRole(name string) (Role, error) {
	if name == "" {
		return "", nil
	}
	role := Role(name)
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, name)
	}
	return role, nil
}

// Mode is the kind of collaboration a session hosts. It changes what
// clients render, not what the server enforces.
type Mode string

const (
	ModePairProgramming Mode = "pair-programming"
	ModeReview          Mode = "review"
	ModeBrainstorm      Mode = "brainstorm"
	ModeDebug           Mode = "debug"
	ModeTeach           Mode = "teach"
	ModeWhiteboard      Mode = "whiteboard"
)

// ParseMode converts a wire mode name, defaulting to pair programming.
func ParseMode(name string) (Mode, error) {
	switch mode := Mode(name); mode {
	case "":
		return ModePairProgramming, nil
	case ModePairProgramming, ModeReview, ModeBrainstorm, ModeDebug, ModeTeach, ModeWhiteboard:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, name)
	}
}
