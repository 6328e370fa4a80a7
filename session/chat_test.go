// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"testing"
)

func TestChatBufferOverwritesOldest(t *testing.T) {
	ring := NewChatBuffer(3)
	for i := 1; i <= 5; i++ {
		ring.Append(ChatMessage{Text: fmt.Sprintf("m%d", i)})
	}

	recent := ring.Recent()
	if len(recent) != 3 || ring.Len() != 3 {
		t.Fatalf("retained %d messages, want 3", len(recent))
	}
	for i, want := range []string{"m3", "m4", "m5"} {
		if recent[i].Text != want || recent[i].Sequence != uint64(i+3) {
			t.Errorf("recent[%d] = %+v, want %s", i, recent[i], want)
		}
	}
}

func TestChatBufferSince(t *testing.T) {
	ring := NewChatBuffer(4)
	for i := 1; i <= 6; i++ {
		ring.Append(ChatMessage{Text: fmt.Sprintf("m%d", i)})
	}

	tests := []struct {
		since uint64
		want  []uint64
	}{
		{0, []uint64{3, 4, 5, 6}},
		{1, []uint64{3, 4, 5, 6}},
		{4, []uint64{5, 6}},
		{6, nil},
		{9, nil},
	}
	for _, test := range tests {
		got := ring.Since(test.since)
		if len(got) != len(test.want) {
			t.Errorf("Since(%d) returned %d messages, want %d", test.since, len(got), len(test.want))
			continue
		}
		for i := range got {
			if got[i].Sequence != test.want[i] {
				t.Errorf("Since(%d)[%d].Sequence = %d, want %d", test.since, i, got[i].Sequence, test.want[i])
			}
		}
	}
}

func TestChatBufferEmpty(t *testing.T) {
	ring := NewChatBuffer(0)
	if ring.Recent() != nil || ring.Len() != 0 {
		t.Error("empty buffer returned messages")
	}
}
