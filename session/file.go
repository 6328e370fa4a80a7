// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/tandem/lib/ot"
)

// LineLock is an advisory claim on a range of lines. Locks never block
// edits; clients use them to warn before touching someone else's
// lines.
type LineLock struct {
	Holder    string `json:"holder"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// FileState is one editable document in a session.
type FileState struct {
	Path    string
	Content string

	// Version counts applied changes. It starts at zero when the file
	// is opened and increases by exactly one per change.
	Version int64

	// History holds applied changes in application order, each
	// stamped with the version it produced.
	History []ot.Change

	// locks is keyed by holder user id.
	locks map[string]LineLock

	// openBy is the set of user ids with the file open.
	openBy map[string]struct{}

	// appliedIDs and lastTimestamp reject replays: a change id may be
	// applied once, and each author's logical timestamps must
	// strictly increase.
	appliedIDs    map[string]struct{}
	lastTimestamp map[string]int64
}

func newFileState(path, content string) *FileState {
	return &FileState{
		Path:          path,
		Content:       content,
		locks:         make(map[string]LineLock),
		openBy:        make(map[string]struct{}),
		appliedIDs:    make(map[string]struct{}),
		lastTimestamp: make(map[string]int64),
	}
}

// Checksum is the hex BLAKE3 digest of the current content.
func (f *FileState) Checksum() string {
	return contentChecksum(f.Content)
}

func contentChecksum(content string) string {
	digest := blake3.Sum256([]byte(content))
	return hex.EncodeToString(digest[:])
}

// Pending reports whether the file has applied changes since it was
// opened.
func (f *FileState) Pending() bool {
	return len(f.History) > 0
}

// FileSnapshot is the wire view of a FileState.
type FileSnapshot struct {
	Path     string     `json:"path"`
	Content  string     `json:"content"`
	Version  int64      `json:"version"`
	Checksum string     `json:"checksum"`
	OpenBy   []string   `json:"openBy"`
	Locks    []LineLock `json:"locks"`
	Pending  bool       `json:"pending"`
}

func (f *FileState) snapshot() FileSnapshot {
	openBy := make([]string, 0, len(f.openBy))
	for userID := range f.openBy {
		openBy = append(openBy, userID)
	}
	sort.Strings(openBy)

	locks := make([]LineLock, 0, len(f.locks))
	for _, lock := range f.locks {
		locks = append(locks, lock)
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].Holder < locks[j].Holder })

	return FileSnapshot{
		Path:     f.Path,
		Content:  f.Content,
		Version:  f.Version,
		Checksum: f.Checksum(),
		OpenBy:   openBy,
		Locks:    locks,
		Pending:  f.Pending(),
	}
}
