// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/tandem/lib/clock"
	"github.com/bureau-foundation/tandem/wire"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed string
}

func (c *recordingConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, payload)
	return nil
}

func (c *recordingConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = reason
}

func TestRegistryLifecycle(t *testing.T) {
	fake := clock.Fake(epoch)
	registry := NewRegistry(fake)
	conn := &recordingConn{}

	id := registry.Register(conn, "10.0.0.1:5000", "test-agent")
	if id == "" {
		t.Fatal("Register returned an empty id")
	}

	entry, ok := registry.Get(id)
	if !ok || entry.Authenticated || entry.RemoteAddr != "10.0.0.1:5000" || entry.UserAgent != "test-agent" {
		t.Fatalf("entry = %+v", entry)
	}

	if err := registry.MarkAuthenticated(id, "u1", "User One"); err != nil {
		t.Fatalf("MarkAuthenticated: %v", err)
	}
	if err := registry.MarkAuthenticated("nope", "u1", ""); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("unknown id error = %v, want ErrUnknownConnection", err)
	}

	registry.AddRoom(id, "r1")
	registry.AddRoom(id, "r2")
	registry.SetNamespace(id, wire.NamespaceCollaboration)

	if got := registry.ByUser("u1"); len(got) != 1 || got[0] != id {
		t.Errorf("ByUser = %v", got)
	}
	if got := registry.InNamespace(wire.NamespaceCollaboration); len(got) != 1 {
		t.Errorf("InNamespace = %v", got)
	}

	if err := registry.Send(id, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(conn.sent) != 1 {
		t.Errorf("conn received %d payloads, want 1", len(conn.sent))
	}

	final, ok := registry.Deregister(id)
	if !ok {
		t.Fatal("Deregister reported unknown id")
	}
	if len(final.Rooms) != 2 || final.Rooms[0] != "r1" || final.Rooms[1] != "r2" {
		t.Errorf("final rooms = %v", final.Rooms)
	}
	if registry.Len() != 0 {
		t.Errorf("registry holds %d connections after deregister", registry.Len())
	}
	if _, ok := registry.Deregister(id); ok {
		t.Error("second Deregister succeeded")
	}
}

func TestRegistryStale(t *testing.T) {
	fake := clock.Fake(epoch)
	registry := NewRegistry(fake)
	quiet := registry.Register(&recordingConn{}, "", "")
	chatty := registry.Register(&recordingConn{}, "", "")

	fake.Advance(45 * time.Second)
	registry.Touch(chatty)
	fake.Advance(15 * time.Second)

	stale := registry.Stale(60 * time.Second)
	if len(stale) != 1 || stale[0] != quiet {
		t.Errorf("stale = %v, want only %s", stale, quiet)
	}
}

func TestDirectoryJoinLeave(t *testing.T) {
	directory := NewDirectory(clock.Fake(epoch), 0, 0)

	snapshot, err := directory.Join("r1", "c1", Member{UserID: "u1", Username: "one"}, wire.NamespaceCollaboration, JoinOptions{
		Name:     "pairing",
		Metadata: map[string]any{"project": "p1"},
	})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(snapshot.Members) != 1 || snapshot.Members[0].UserID != "u1" {
		t.Errorf("members = %+v", snapshot.Members)
	}
	if snapshot.Settings.MaxMembers != DefaultMaxMembers || snapshot.Metadata["project"] != "p1" {
		t.Errorf("snapshot = %+v", snapshot)
	}

	// A second connection of the same user is listed once.
	snapshot, _ = directory.Join("r1", "c2", Member{UserID: "u1", Username: "one"}, wire.NamespaceCollaboration, JoinOptions{})
	if len(snapshot.Members) != 1 {
		t.Errorf("members = %+v, want u1 once", snapshot.Members)
	}

	result := directory.Leave("r1", "c1")
	if !result.Left || result.Deleted || !result.UserRemains {
		t.Errorf("leave c1 = %+v", result)
	}
	result = directory.Leave("r1", "c2")
	if !result.Left || !result.Deleted || result.UserRemains {
		t.Errorf("leave c2 = %+v", result)
	}
	if directory.Exists("r1") {
		t.Error("empty non-persistent room still exists")
	}
	if result := directory.Leave("r1", "c2"); result.Left {
		t.Error("leave from a deleted room reported Left")
	}
}

func TestDirectoryPersistentRoomSurvivesEmpty(t *testing.T) {
	directory := NewDirectory(clock.Fake(epoch), 0, 0)
	_, err := directory.Join("lobby", "c1", Member{UserID: "u1"}, wire.NamespaceCollaboration, JoinOptions{
		Settings: &RoomSettings{Persistent: true},
	})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if result := directory.Leave("lobby", "c1"); result.Deleted {
		t.Error("persistent room was deleted")
	}
	if !directory.Exists("lobby") || directory.MemberCount("lobby") != 0 {
		t.Error("persistent room missing or not empty")
	}
}

func TestDirectoryRoomFull(t *testing.T) {
	directory := NewDirectory(clock.Fake(epoch), 2, 0)
	for _, id := range []string{"c1", "c2"} {
		if _, err := directory.Join("r1", id, Member{UserID: id}, wire.NamespaceQA, JoinOptions{}); err != nil {
			t.Fatalf("Join(%s): %v", id, err)
		}
	}
	if _, err := directory.Join("r1", "c3", Member{UserID: "c3"}, wire.NamespaceQA, JoinOptions{}); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("third join error = %v, want ErrRoomFull", err)
	}
	// Rejoining an existing member is not a new seat.
	if _, err := directory.Join("r1", "c1", Member{UserID: "c1"}, wire.NamespaceQA, JoinOptions{}); err != nil {
		t.Errorf("rejoin error = %v", err)
	}
}

// After N joins and M leaves on distinct connections the room holds
// N-M members, and an emptied room is gone.
func TestDirectoryMembershipCount(t *testing.T) {
	random := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		directory := NewDirectory(clock.Fake(epoch), 1000, 0)
		joins := 1 + random.Intn(40)
		leaves := random.Intn(joins + 1)

		for i := 0; i < joins; i++ {
			id := fmt.Sprintf("c%d", i)
			if _, err := directory.Join("r", id, Member{UserID: id}, wire.NamespaceAgents, JoinOptions{}); err != nil {
				t.Fatalf("Join: %v", err)
			}
		}
		for _, index := range random.Perm(joins)[:leaves] {
			directory.Leave("r", fmt.Sprintf("c%d", index))
		}

		want := joins - leaves
		if got := directory.MemberCount("r"); got != want {
			t.Fatalf("trial %d: %d joins %d leaves left %d members", trial, joins, leaves, got)
		}
		if want == 0 && directory.Exists("r") {
			t.Fatalf("trial %d: empty room still exists", trial)
		}
	}
}

func TestDirectoryConnectionsExclude(t *testing.T) {
	directory := NewDirectory(clock.Fake(epoch), 0, 0)
	for _, id := range []string{"c1", "c2", "c3"} {
		directory.Join("r1", id, Member{UserID: id}, wire.NamespaceQA, JoinOptions{})
	}
	got := directory.Connections("r1", "c2")
	if len(got) != 2 || got[0] != "c1" || got[1] != "c3" {
		t.Errorf("Connections = %v, want [c1 c3]", got)
	}
}

func TestDirectoryRemoteMembers(t *testing.T) {
	directory := NewDirectory(clock.Fake(epoch), 0, 0)
	directory.AddRemoteMember("r1", "peer-a", Member{UserID: "u9", Username: "nine"})
	directory.AddRemoteMember("r1", "peer-a", Member{UserID: "u1", Username: "one"})

	snapshot, _ := directory.Join("r1", "c1", Member{UserID: "u1", Username: "one"}, wire.NamespaceQA, JoinOptions{})
	if len(snapshot.Members) != 2 || snapshot.Members[0].UserID != "u1" || snapshot.Members[1].UserID != "u9" {
		t.Errorf("members = %+v, want local u1 then remote u9", snapshot.Members)
	}

	directory.RemoveRemoteMember("r1", "peer-a", "u9")
	snapshot, _ = directory.Snapshot("r1")
	if len(snapshot.Members) != 1 {
		t.Errorf("members after remote leave = %+v", snapshot.Members)
	}

	directory.AddRemoteMember("r1", "peer-a", Member{UserID: "u7"})
	directory.AddRemoteMember("r2", "peer-b", Member{UserID: "u8"})
	if dropped := directory.ClearRemote(); dropped != 2 {
		t.Errorf("ClearRemote dropped %d, want 2", dropped)
	}
	snapshot, _ = directory.Snapshot("r1")
	if len(snapshot.Members) != 1 || snapshot.Members[0].UserID != "u1" {
		t.Errorf("members after ClearRemote = %+v, want only local u1", snapshot.Members)
	}
}

func TestDirectoryActivityLog(t *testing.T) {
	directory := NewDirectory(clock.Fake(epoch), 0, 3)
	directory.Join("rec", "c1", Member{UserID: "u1"}, wire.NamespaceQA, JoinOptions{
		Settings: &RoomSettings{RecordActivity: true},
	})
	directory.Join("quiet", "c1", Member{UserID: "u1"}, wire.NamespaceQA, JoinOptions{})

	for _, event := range []string{"cursor-move", "content-change", "chat-message"} {
		directory.Record("rec", event, "u1")
		directory.Record("quiet", event, "u1")
	}

	activity := directory.Activity("rec")
	if len(activity) != 3 || activity[0].Event != "cursor-move" || activity[2].Event != "chat-message" {
		t.Errorf("activity = %+v", activity)
	}
	if len(directory.Activity("quiet")) != 0 {
		t.Error("non-recording room kept activity")
	}
}

func TestMailbox(t *testing.T) {
	mailbox := NewMailbox(2)
	mailbox.Enqueue("u1", []byte("a"))
	mailbox.Enqueue("u1", []byte("b"))
	if dropped := mailbox.Enqueue("u1", []byte("c")); !dropped {
		t.Error("overflow did not report a drop")
	}

	queued := mailbox.Drain("u1")
	if len(queued) != 2 || string(queued[0]) != "b" || string(queued[1]) != "c" {
		t.Errorf("drained %q, want [b c]", queued)
	}
	if mailbox.Len("u1") != 0 || mailbox.Drain("u1") != nil {
		t.Error("mailbox not empty after drain")
	}
}
