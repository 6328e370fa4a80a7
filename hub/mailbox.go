// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import "sync"

// DefaultMailboxSize bounds each user's queue.
const DefaultMailboxSize = 100

// Mailbox queues encoded envelopes for users with no connection. When
// a queue is full the oldest entry is dropped.
type Mailbox struct {
	limit int

	mu     sync.Mutex
	queues map[string][][]byte
}

// NewMailbox creates a mailbox holding at most limit entries per user.
func NewMailbox(limit int) *Mailbox {
	if limit <= 0 {
		limit = DefaultMailboxSize
	}
	return &Mailbox{
		limit:  limit,
		queues: make(map[string][][]byte),
	}
}

// Enqueue appends payload to userID's queue and reports whether an
// older entry was dropped to make room.
func (m *Mailbox) Enqueue(userID string, payload []byte) (dropped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := append(m.queues[userID], payload)
	if len(queue) > m.limit {
		queue = queue[len(queue)-m.limit:]
		dropped = true
	}
	m.queues[userID] = queue
	return dropped
}

// Drain removes and returns userID's queue, oldest first.
func (m *Mailbox) Drain(userID string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.queues[userID]
	delete(m.queues, userID)
	return queue
}

// Len returns the number of entries queued for userID.
func (m *Mailbox) Len(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[userID])
}
