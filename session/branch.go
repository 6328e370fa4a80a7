// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/binary"
	"encoding/hex"
	"sort"
	"time"

	"github.com/zeebo/blake3"
)

// DefaultBranch is the branch every session starts on.
const DefaultBranch = "main"

// Commit is a named snapshot of a branch's files.
type Commit struct {
	ID        string    `json:"id"`
	Parent    string    `json:"parent,omitempty"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Branch is a line of commits over a snapshot of file contents.
type Branch struct {
	Name       string            `json:"name"`
	BaseCommit string            `json:"baseCommit,omitempty"`
	Commits    []Commit          `json:"commits"`
	Files      map[string]string `json:"files"`
	CreatedBy  string            `json:"createdBy,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Head returns the id of the branch's latest commit, or its base
// commit when it has none of its own.
func (b *Branch) Head() string {
	if len(b.Commits) == 0 {
		return b.BaseCommit
	}
	return b.Commits[len(b.Commits)-1].ID
}

func (b *Branch) clone() Branch {
	files := make(map[string]string, len(b.Files))
	for path, content := range b.Files {
		files[path] = content
	}
	clone := *b
	clone.Commits = append([]Commit(nil), b.Commits...)
	clone.Files = files
	return clone
}

// commitID hashes the parent id, the commit metadata, and every file
// in path order. Each variable-length field is length-prefixed so
// distinct inputs cannot collide by concatenation.
func commitID(parent, author, message string, timestamp time.Time, files map[string]string) string {
	hasher := blake3.New()
	writeField := func(value string) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(value)))
		hasher.Write(length[:])
		hasher.Write([]byte(value))
	}

	writeField(parent)
	writeField(author)
	writeField(message)
	var stamp [8]byte
	binary.BigEndian.PutUint64(stamp[:], uint64(timestamp.UnixNano()))
	hasher.Write(stamp[:])

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		writeField(path)
		writeField(files[path])
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
