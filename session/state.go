// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sort"
	"time"
)

// Settings are fixed by the join that creates a session.
type Settings struct {
	// MaxParticipants caps active participants. Zero is unlimited.
	MaxParticipants  int           `json:"maxParticipants"`
	GuestAccess      bool          `json:"guestAccess"`
	ApprovalRequired bool          `json:"approvalRequired"`
	RecordSession    bool          `json:"recordSession"`
	AIEnabled        bool          `json:"aiEnabled"`
	Autosave         bool          `json:"autosave"`
	AutosaveInterval time.Duration `json:"autosaveInterval"`
}

// State is the collaboration document of one room.
type State struct {
	ID            string
	RoomID        string
	Mode          Mode
	Settings      Settings
	CreatedAt     time.Time
	CurrentBranch string

	participants map[string]*Participant
	files        map[string]*FileState
	branches     map[string]*Branch
	comments     []*Comment
	drawings     []Drawing
	chat         *ChatBuffer

	// joinCount drives color assignment.
	joinCount int
	// lastSaved is when autosave last captured the session.
	lastSaved time.Time
}

func (s *State) activeParticipants() int {
	count := 0
	for _, participant := range s.participants {
		if participant.Active {
			count++
		}
	}
	return count
}

func (s *State) activeParticipant(userID string) (*Participant, error) {
	participant, ok := s.participants[userID]
	if !ok || !participant.Active {
		return nil, ErrNotParticipant
	}
	return participant, nil
}

func (s *State) findComment(commentID string) (int, *Comment) {
	for index, comment := range s.comments {
		if comment.ID == commentID {
			return index, comment
		}
	}
	return -1, nil
}

// fileContents copies the current content of every file.
func (s *State) fileContents() map[string]string {
	contents := make(map[string]string, len(s.files))
	for path, file := range s.files {
		contents[path] = file.Content
	}
	return contents
}

// ParticipantSnapshot is a participant with its derived permissions.
type ParticipantSnapshot struct {
	Participant
	Permissions Permissions `json:"permissions"`
}

// Snapshot is a deep copy of a session, safe to serialize and hand to
// other goroutines.
type Snapshot struct {
	ID            string                `json:"id"`
	RoomID        string                `json:"roomId"`
	Mode          Mode                  `json:"mode"`
	Settings      Settings              `json:"settings"`
	CreatedAt     time.Time             `json:"createdAt"`
	CurrentBranch string                `json:"currentBranch"`
	Participants  []ParticipantSnapshot `json:"participants"`
	Files         []FileSnapshot        `json:"files"`
	Branches      []Branch              `json:"branches"`
	Comments      []Comment             `json:"comments"`
	Drawings      []Drawing             `json:"drawings"`
	Chat          []ChatMessage         `json:"chat"`
}

func (s *State) snapshot() Snapshot {
	snapshot := Snapshot{
		ID:            s.ID,
		RoomID:        s.RoomID,
		Mode:          s.Mode,
		Settings:      s.Settings,
		CreatedAt:     s.CreatedAt,
		CurrentBranch: s.CurrentBranch,
		Participants:  make([]ParticipantSnapshot, 0, len(s.participants)),
		Files:         make([]FileSnapshot, 0, len(s.files)),
		Branches:      make([]Branch, 0, len(s.branches)),
		Comments:      make([]Comment, 0, len(s.comments)),
		Drawings:      append([]Drawing(nil), s.drawings...),
		Chat:          s.chat.Recent(),
	}

	for _, participant := range s.participants {
		copied := *participant
		if participant.Cursor != nil {
			cursor := *participant.Cursor
			copied.Cursor = &cursor
		}
		if participant.Selection != nil {
			selection := *participant.Selection
			copied.Selection = &selection
		}
		snapshot.Participants = append(snapshot.Participants, ParticipantSnapshot{
			Participant: copied,
			Permissions: participant.Permissions(),
		})
	}
	sort.Slice(snapshot.Participants, func(i, j int) bool {
		return snapshot.Participants[i].JoinedAt.Before(snapshot.Participants[j].JoinedAt) ||
			(snapshot.Participants[i].JoinedAt.Equal(snapshot.Participants[j].JoinedAt) &&
				snapshot.Participants[i].UserID < snapshot.Participants[j].UserID)
	})

	for _, file := range s.files {
		snapshot.Files = append(snapshot.Files, file.snapshot())
	}
	sort.Slice(snapshot.Files, func(i, j int) bool { return snapshot.Files[i].Path < snapshot.Files[j].Path })

	for _, branch := range s.branches {
		snapshot.Branches = append(snapshot.Branches, branch.clone())
	}
	sort.Slice(snapshot.Branches, func(i, j int) bool { return snapshot.Branches[i].Name < snapshot.Branches[j].Name })

	for _, comment := range s.comments {
		snapshot.Comments = append(snapshot.Comments, comment.clone())
	}
	return snapshot
}
