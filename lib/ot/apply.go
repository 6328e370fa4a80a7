// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ot

// Apply splices change into content and returns the new content.
// Positions past the end of a line clamp to the line end; lines past
// the end of the document clamp to the document end. Deletes clamp to
// the end of the document.
func Apply(content string, change Change) (string, error) {
	if err := change.Validate(); err != nil {
		return content, err
	}

	runes := []rune(content)
	offset := runeOffset(runes, change.Position)

	switch change.Kind {
	case KindInsert:
		return splice(runes, offset, 0, change.Content), nil
	case KindDelete:
		return splice(runes, offset, change.Length, ""), nil
	default:
		return splice(runes, offset, change.Length, change.Content), nil
	}
}

// runeOffset converts a (line, column) position into an index into
// runes, clamping as Apply documents.
func runeOffset(runes []rune, position Position) int {
	line := 0
	index := 0
	for line < position.Line {
		next := indexOfNewline(runes, index)
		if next < 0 {
			return len(runes)
		}
		index = next + 1
		line++
	}

	lineEnd := indexOfNewline(runes, index)
	if lineEnd < 0 {
		lineEnd = len(runes)
	}
	if position.Column > lineEnd-index {
		return lineEnd
	}
	return index + position.Column
}

func indexOfNewline(runes []rune, from int) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}

func splice(runes []rune, offset, remove int, insert string) string {
	if remove > len(runes)-offset {
		remove = len(runes) - offset
	}
	end := offset + remove
	result := make([]rune, 0, len(runes)-(end-offset)+len(insert))
	result = append(result, runes[:offset]...)
	result = append(result, []rune(insert)...)
	result = append(result, runes[end:]...)
	return string(result)
}
