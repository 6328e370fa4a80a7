// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"time"
)

// Reply is one message in a comment thread.
type Reply struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Comment is a thread anchored to a file line.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Path      string    `json:"path"`
	Line      int       `json:"line"`
	Text      string    `json:"text"`
	Resolved  bool      `json:"resolved"`
	Replies   []Reply   `json:"replies"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *Comment) clone() Comment {
	clone := *c
	clone.Replies = append([]Reply(nil), c.Replies...)
	return clone
}

// CommentUpdate is a partial update. Nil fields are left unchanged.
type CommentUpdate struct {
	Text     *string
	Resolved *bool
	Reply    *string
}

// Drawing is an opaque whiteboard shape.
type Drawing struct {
	ID        string          `json:"id"`
	Author    string          `json:"author"`
	Shape     json.RawMessage `json:"shape"`
	Timestamp time.Time       `json:"timestamp"`
}
