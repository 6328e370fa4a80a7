// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "time"

// DefaultChatHistory is the number of chat messages a session keeps.
const DefaultChatHistory = 100

// ChatMessage is one line of session chat.
type ChatMessage struct {
	ID          string    `json:"id"`
	Sequence    uint64    `json:"sequence"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChatBuffer is a fixed-size circular buffer of recent chat messages.
// New messages overwrite the oldest once the buffer is full.
//
// Every message gets a monotonically increasing sequence number so a
// reconnecting client can ask for "everything since N". ChatBuffer is
// not safe for concurrent use; the owning Store serializes access.
type ChatBuffer struct {
	messages []ChatMessage
	capacity int
	// writePosition is the next slot to write (0 to capacity-1).
	writePosition int
	// totalWritten is the number of messages ever appended. The buffer
	// holds sequences (totalWritten - stored, totalWritten].
	totalWritten uint64
}

// NewChatBuffer creates a buffer holding at most capacity messages.
// A non-positive capacity uses DefaultChatHistory.
func NewChatBuffer(capacity int) *ChatBuffer {
	if capacity <= 0 {
		capacity = DefaultChatHistory
	}
	return &ChatBuffer{
		messages: make([]ChatMessage, capacity),
		capacity: capacity,
	}
}

// Append stores message, assigning and returning its sequence number.
func (ring *ChatBuffer) Append(message ChatMessage) ChatMessage {
	ring.totalWritten++
	message.Sequence = ring.totalWritten
	ring.messages[ring.writePosition] = message
	ring.writePosition = (ring.writePosition + 1) % ring.capacity
	return message
}

// Since returns the retained messages with a sequence greater than
// sequence, oldest first. Messages already overwritten are skipped.
func (ring *ChatBuffer) Since(sequence uint64) []ChatMessage {
	if sequence >= ring.totalWritten {
		return nil
	}

	stored := ring.totalWritten
	if stored > uint64(ring.capacity) {
		stored = uint64(ring.capacity)
	}
	oldest := ring.totalWritten - stored + 1
	if sequence+1 > oldest {
		oldest = sequence + 1
	}

	count := int(ring.totalWritten - oldest + 1)
	result := make([]ChatMessage, 0, count)
	// The newest message is at writePosition-1; the oldest wanted one
	// is count slots before it.
	readPosition := (ring.writePosition - count + ring.capacity) % ring.capacity
	for i := 0; i < count; i++ {
		result = append(result, ring.messages[readPosition])
		readPosition = (readPosition + 1) % ring.capacity
	}
	return result
}

// Recent returns every retained message, oldest first.
func (ring *ChatBuffer) Recent() []ChatMessage {
	return ring.Since(0)
}

// Len returns the number of retained messages.
func (ring *ChatBuffer) Len() int {
	if ring.totalWritten < uint64(ring.capacity) {
		return int(ring.totalWritten)
	}
	return ring.capacity
}
