// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ot

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Kind is the edit verb of a Change.
type Kind string

const (
	KindInsert  Kind = "insert"
	KindDelete  Kind = "delete"
	KindReplace Kind = "replace"
)

// Position addresses a rune within a line. Both coordinates are
// zero-based.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Before reports whether p sorts strictly before q in document order.
func (p Position) Before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Column < q.Column
}

// Change is one atomic edit.
type Change struct {
	ID       string   `json:"id"`
	Author   string   `json:"author"`
	Kind     Kind     `json:"kind"`
	Position Position `json:"position"`

	// Content is the inserted text for insert and replace.
	Content string `json:"content,omitempty"`

	// Length is the number of runes removed by delete and replace.
	Length int `json:"length,omitempty"`

	// Timestamp is the logical clock described in the package
	// documentation.
	Timestamp int64 `json:"timestamp"`
}

var (
	ErrInvalidKind     = errors.New("ot: unknown change kind")
	ErrInvalidPosition = errors.New("ot: negative position")
	ErrInvalidLength   = errors.New("ot: invalid length")
)

// Validate checks the structural invariants of a single change.
func (c Change) Validate() error {
	switch c.Kind {
	case KindInsert:
		if c.Content == "" {
			return fmt.Errorf("%w: insert without content", ErrInvalidLength)
		}
	case KindDelete:
		if c.Length <= 0 {
			return fmt.Errorf("%w: delete of %d runes", ErrInvalidLength, c.Length)
		}
	case KindReplace:
		if c.Length < 0 {
			return fmt.Errorf("%w: replace of %d runes", ErrInvalidLength, c.Length)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, c.Kind)
	}
	if c.Position.Line < 0 || c.Position.Column < 0 {
		return fmt.Errorf("%w: (%d, %d)", ErrInvalidPosition, c.Position.Line, c.Position.Column)
	}
	return nil
}

// end is the position just past the text an insert adds. For
// single-line content that is the same line, Column plus the rune
// length; multi-line content ends on a later line.
func (c Change) end() Position {
	lastNewline := strings.LastIndexByte(c.Content, '\n')
	if lastNewline < 0 {
		return Position{
			Line:   c.Position.Line,
			Column: saturatingAdd(c.Position.Column, utf8.RuneCountInString(c.Content)),
		}
	}
	return Position{
		Line:   saturatingAdd(c.Position.Line, strings.Count(c.Content, "\n")),
		Column: utf8.RuneCountInString(c.Content[lastNewline+1:]),
	}
}

// saturatingAdd adds two non-negative ints, stopping at math.MaxInt.
func saturatingAdd(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}
