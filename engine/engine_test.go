// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/tandem/bridge"
	"github.com/bureau-foundation/tandem/hub"
	"github.com/bureau-foundation/tandem/lib/authtoken"
	"github.com/bureau-foundation/tandem/lib/clock"
	"github.com/bureau-foundation/tandem/lib/ot"
	"github.com/bureau-foundation/tandem/lib/testutil"
	"github.com/bureau-foundation/tandem/session"
	"github.com/bureau-foundation/tandem/wire"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const receiveTimeout = 5 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errQueueFull = errors.New("test conn: queue full")

// testConn is an in-memory hub.Conn.
type testConn struct {
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newTestConn() *testConn {
	return &testConn{out: make(chan []byte, 512), closed: make(chan struct{})}
}

func (c *testConn) Send(payload []byte) error {
	select {
	case c.out <- payload:
		return nil
	default:
		return errQueueFull
	}
}

func (c *testConn) Close(string) {
	c.closeOnce.Do(func() { close(c.closed) })
}

// prefixAuthenticator accepts "token-<user>" for any user.
type prefixAuthenticator struct{}

func (prefixAuthenticator) Authenticate(_ context.Context, credential string) (authtoken.Identity, error) {
	userID, ok := strings.CutPrefix(credential, "token-")
	if !ok || userID == "" {
		return authtoken.Identity{}, authtoken.ErrMalformed
	}
	return authtoken.Identity{UserID: userID, DisplayName: strings.ToUpper(userID)}, nil
}

type harness struct {
	t      *testing.T
	engine *Engine
	clock  *clock.FakeClock
}

var hostCounter atomic.Int64

func newHarness(t *testing.T, configure ...func(*Config)) *harness {
	t.Helper()
	fake := clock.Fake(epoch)
	config := Config{
		Clock:         fake,
		Logger:        discardLogger(),
		Authenticator: prefixAuthenticator{},
	}
	for _, apply := range configure {
		apply(&config)
	}
	engine, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{t: t, engine: engine, clock: fake}
}

type client struct {
	t      *testing.T
	engine *Engine
	clock  clock.Clock
	id     string
	conn   *testConn
}

// connect opens a connection from its own remote host so rate limits
// do not interact across clients.
func (h *harness) connect() *client {
	conn := newTestConn()
	n := hostCounter.Add(1)
	address := fmt.Sprintf("10.0.%d.%d:40000", n/250, n%250)
	id := h.engine.Connect(conn, address, "engine-test")
	return &client{t: h.t, engine: h.engine, clock: h.clock, id: id, conn: conn}
}

// login connects and authenticates as userID.
func (h *harness) login(userID string) *client {
	h.t.Helper()
	c := h.connect()
	c.send(wire.EventAuthenticate, wire.AuthenticateRequest{Token: "token-" + userID})
	reply := decodeData[wire.AuthenticateReply](h.t, c.expect(wire.EventAuthenticate))
	if !reply.Success || reply.UserID != userID {
		h.t.Fatalf("authenticate reply = %+v, want success for %s", reply, userID)
	}
	return c
}

// send handles one envelope from the client and returns its id.
func (c *client) send(event wire.Event, data any) string {
	return c.sendEnvelope(wire.NamespaceCollaboration, event.String(), data, false)
}

func (c *client) sendEnvelope(namespace wire.Namespace, event string, data any, ack bool) string {
	c.t.Helper()
	encoded, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("encoding %s payload: %v", event, err)
	}
	envelope := wire.Envelope{
		ID:        uuid.NewString(),
		Namespace: namespace,
		Event:     event,
		Data:      encoded,
		Timestamp: c.clock.Now().UnixMilli(),
		Ack:       ack,
	}
	raw, err := envelope.Marshal()
	if err != nil {
		c.t.Fatalf("encoding envelope: %v", err)
	}
	c.engine.Handle(context.Background(), c.id, raw)
	return envelope.ID
}

func (c *client) next() wire.Envelope {
	c.t.Helper()
	raw := testutil.RequireReceive(c.t, c.conn.out, receiveTimeout, "waiting for envelope on %s", c.id)
	var envelope wire.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.t.Fatalf("decoding envelope %s: %v", raw, err)
	}
	return envelope
}

// expect returns the next envelope, which must be event.
func (c *client) expect(event wire.Event) wire.Envelope {
	c.t.Helper()
	envelope := c.next()
	if envelope.Event != event.String() {
		c.t.Fatalf("got %s envelope %s, want %s", envelope.Event, envelope.Data, event)
	}
	return envelope
}

// await skips envelopes until one of event arrives.
func (c *client) await(event wire.Event) wire.Envelope {
	c.t.Helper()
	for {
		envelope := c.next()
		if envelope.Event == event.String() {
			return envelope
		}
	}
}

func (c *client) expectError(code wire.Code) wire.ErrorData {
	c.t.Helper()
	data := decodeData[wire.ErrorData](c.t, c.expect(wire.EventError))
	if data.Code != code {
		c.t.Fatalf("error code = %s (%s), want %s", data.Code, data.Message, code)
	}
	return data
}

func (c *client) quiet() {
	c.t.Helper()
	testutil.RequireNoReceive(c.t, c.conn.out, 20*time.Millisecond, "unexpected envelope on %s", c.id)
}

func (c *client) join(roomID string) JoinRoomReply {
	c.t.Helper()
	c.send(wire.EventJoinRoom, wire.JoinRoomRequest{RoomID: roomID})
	return decodeData[JoinRoomReply](c.t, c.expect(wire.EventJoinRoom))
}

func decodeData[T any](t *testing.T, envelope wire.Envelope) T {
	t.Helper()
	var data T
	if err := envelope.Decode(&data); err != nil {
		t.Fatalf("%v", err)
	}
	return data
}

func memberIDs(members []hub.Member) []string {
	ids := make([]string, len(members))
	for i, member := range members {
		ids[i] = member.UserID
	}
	return ids
}

// Authenticate with a signed credential and join a room: the reply
// lists exactly the one member.
func TestAuthenticateAndJoin(t *testing.T) {
	public, private, err := authtoken.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	fake := clock.Fake(epoch)
	h := newHarness(t, func(config *Config) {
		config.Clock = fake
		config.Authenticator = authtoken.NewVerifier(public, fake)
	})
	credential, err := authtoken.Mint(private, &authtoken.Token{
		Subject:   "u1",
		Name:      "Ada",
		Audience:  authtoken.DefaultAudience,
		ID:        "credential-1",
		IssuedAt:  epoch.Unix(),
		ExpiresAt: epoch.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	c := h.connect()
	c.send(wire.EventAuthenticate, wire.AuthenticateRequest{Token: credential})
	auth := decodeData[wire.AuthenticateReply](t, c.expect(wire.EventAuthenticate))
	if auth.UserID != "u1" || auth.Username != "Ada" {
		t.Errorf("authenticate reply = %+v", auth)
	}

	reply := c.join("r1")
	if len(reply.Members) != 1 || reply.Members[0].UserID != "u1" {
		t.Fatalf("members = %+v, want exactly u1", reply.Members)
	}
	if reply.Participant.Role != session.RoleHost {
		t.Errorf("first participant role = %s, want host", reply.Participant.Role)
	}
	if reply.Session.RoomID != "r1" || reply.Session.Mode != session.ModePairProgramming {
		t.Errorf("session = %+v", reply.Session)
	}
	c.quiet()
}

func TestAuthenticationFailureKeepsConnection(t *testing.T) {
	h := newHarness(t)
	c := h.connect()

	c.send(wire.EventAuthenticate, wire.AuthenticateRequest{Token: "forged"})
	c.expectError(wire.CodeAuthenticationFailed)

	c.send(wire.EventJoinRoom, wire.JoinRoomRequest{RoomID: "r1"})
	c.expectError(wire.CodeNotAuthenticated)

	c.send(wire.EventAuthenticate, wire.AuthenticateRequest{Token: "token-u1"})
	c.expect(wire.EventAuthenticate)
	c.join("r1")
}

// Two members; the first inserts into a file nobody opened. The
// other receives the applied change at version 1 and the sender gets
// nothing back.
func TestContentChangeBroadcast(t *testing.T) {
	h := newHarness(t)
	u1 := h.login("u1")
	u2 := h.login("u2")
	u1.join("r1")
	joined := u2.join("r1")
	if got := memberIDs(joined.Members); len(got) != 2 || got[0] != "u1" || got[1] != "u2" {
		t.Errorf("members = %v, want [u1 u2]", got)
	}
	if joined.Participant.Role != session.RoleNavigator {
		t.Errorf("second participant role = %s, want navigator", joined.Participant.Role)
	}
	presence := decodeData[UserJoinedData](t, u1.expect(wire.EventUserJoined))
	if presence.UserID != "u2" {
		t.Errorf("user-joined for %s, want u2", presence.UserID)
	}

	u1.send(wire.EventContentChange, wire.ContentChangeRequest{
		RoomID: "r1",
		Path:   "a.txt",
		Change: otInsert("c1", 0, 0, "X", 0),
	})

	change := decodeData[ContentChangeData](t, u2.expect(wire.EventContentChange))
	if change.Version != 1 {
		t.Errorf("version = %d, want 1", change.Version)
	}
	if change.Path != "a.txt" || change.Change.Content != "X" || change.Change.Author != "u1" {
		t.Errorf("change = %+v", change)
	}
	u1.quiet()

	snapshot, _ := h.engine.Session("r1")
	if len(snapshot.Files) != 1 || snapshot.Files[0].Content != "X" {
		t.Errorf("files = %+v", snapshot.Files)
	}
}

// Concurrent edits from two members converge on the server.
func TestConcurrentEditsTransform(t *testing.T) {
	h := newHarness(t)
	u1 := h.login("u1")
	u2 := h.login("u2")
	u1.join("r1")
	u2.join("r1")
	u1.expect(wire.EventUserJoined)

	content := "hello"
	u1.send(wire.EventFileOpen, wire.FileOpenRequest{RoomID: "r1", Path: "a.txt", Content: &content})
	u1.expect(wire.EventFileOpen)
	u2.expect(wire.EventFileOpen)
	u1.send(wire.EventDriverChange, wire.DriverChangeRequest{RoomID: "r1", UserID: "u2"})
	u1.expect(wire.EventDriverChange)
	u2.expect(wire.EventDriverChange)

	// Both edit version 0: u1 appends, u2 prepends.
	u1.send(wire.EventContentChange, wire.ContentChangeRequest{RoomID: "r1", Path: "a.txt", Change: otInsert("a", 0, 5, "!", 0)})
	u2.expect(wire.EventContentChange)
	u2.send(wire.EventContentChange, wire.ContentChangeRequest{RoomID: "r1", Path: "a.txt", Change: otInsert("b", 0, 0, ">", 0)})
	second := decodeData[ContentChangeData](t, u1.expect(wire.EventContentChange))
	if second.Version != 2 {
		t.Errorf("version = %d, want 2", second.Version)
	}

	snapshot, _ := h.engine.Session("r1")
	if got := snapshot.Files[0].Content; got != ">hello!" {
		t.Errorf("content = %q, want %q", got, ">hello!")
	}
}

// A user connected to two rooms disconnects. The shared room hears
// user-left; the room only that user was in is deleted along with its
// session.
func TestDisconnectCascade(t *testing.T) {
	h := newHarness(t)
	u1 := h.login("u1")
	u2 := h.login("u2")
	u1.join("r1")
	u1.join("r2")
	u2.join("r1")
	u1.expect(wire.EventUserJoined)

	h.engine.Disconnect(u1.id)

	left := decodeData[UserLeftData](t, u2.expect(wire.EventUserLeft))
	if left.UserID != "u1" || left.RoomID != "r1" {
		t.Errorf("user-left = %+v, want u1 in r1", left)
	}
	if _, ok := h.engine.Room("r2"); ok {
		t.Error("r2 still exists after its only member disconnected")
	}
	if _, ok := h.engine.Session("r2"); ok {
		t.Error("r2 session still exists")
	}
	room, ok := h.engine.Room("r1")
	if !ok {
		t.Fatal("r1 deleted while u2 is still a member")
	}
	if got := memberIDs(room.Members); len(got) != 1 || got[0] != "u2" {
		t.Errorf("r1 members = %v, want [u2]", got)
	}
	if h.engine.Connections() != 1 {
		t.Errorf("connections = %d, want 1", h.engine.Connections())
	}

	// Disconnecting twice is harmless.
	h.engine.Disconnect(u1.id)
}

func TestLeaveRoomKeepsRoleForRejoin(t *testing.T) {
	h := newHarness(t)
	u1 := h.login("u1")
	u2 := h.login("u2")
	u1.join("r1")
	u2.join("r1")
	u1.expect(wire.EventUserJoined)

	u1.send(wire.EventLeaveRoom, wire.RoomRequest{RoomID: "r1"})
	u1.quiet()
	u2.expect(wire.EventUserLeft)

	rejoined := u1.join("r1")
	if rejoined.Participant.Role != session.RoleHost {
		t.Errorf("role after rejoin = %s, want host", rejoined.Participant.Role)
	}
	u2.expect(wire.EventUserJoined)

	u2.send(wire.EventLeaveRoom, wire.RoomRequest{RoomID: "r9"})
	u2.expectError(wire.CodeNotInRoom)
}

// With the backbone unreachable, two engines each serve their own
// connections and nothing crosses between them.
func TestUnreachableBackboneKeepsEnginesLocal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newEngine := func() *harness {
		backbone := bridge.Connect(ctx, bridge.RedisOptions{
			Address:        "127.0.0.1:1",
			ConnectTimeout: 200 * time.Millisecond,
		}, discardLogger())
		relay := bridge.NewRelay(backbone, bridge.RelayConfig{Logger: discardLogger()})
		if relay.Enabled() {
			t.Fatal("relay enabled without a backbone")
		}
		h := newHarness(t, func(config *Config) { config.Relay = relay })
		go h.engine.Run(ctx)
		return h
	}
	a := newEngine()
	b := newEngine()

	a1 := a.login("u1")
	a2 := a.login("u2")
	b3 := b.login("u3")
	a1.join("r1")
	a2.join("r1")
	a1.expect(wire.EventUserJoined)
	if reply := b3.join("r1"); len(reply.Members) != 1 {
		t.Errorf("engine b members = %v, want only u3", memberIDs(reply.Members))
	}

	a1.send(wire.EventChatMessage, wire.ChatMessageRequest{RoomID: "r1", Text: "hi"})
	chat := decodeData[ChatData](t, a2.expect(wire.EventChatMessage))
	if chat.Message.Text != "hi" {
		t.Errorf("chat = %+v", chat.Message)
	}
	a1.expect(wire.EventChatMessage)
	b3.quiet()
}

// Two engines on one bus: membership and broadcasts reach the peer's
// local members.
func TestRelayMirrorsAcrossEngines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := bridge.NewMemoryBus()
	newEngine := func(origin string) *harness {
		relay := bridge.NewRelay(bus.Backbone(), bridge.RelayConfig{
			Origin:               origin,
			ChannelPrefix:        "tandem:",
			Compression:          bridge.CompressionZstd,
			CompressionThreshold: 64,
			Logger:               discardLogger(),
		})
		h := newHarness(t, func(config *Config) { config.Relay = relay })
		go h.engine.Run(ctx)
		return h
	}
	a := newEngine("a")
	b := newEngine("b")
	bus.WaitForSubscribers(2)

	remote := b.login("u2")
	remote.join("r1")
	local := a.login("u1")
	local.join("r1")

	joined := decodeData[UserJoinedData](t, remote.expect(wire.EventUserJoined))
	if joined.UserID != "u1" {
		t.Errorf("mirrored user-joined for %s, want u1", joined.UserID)
	}
	room, _ := b.engine.Room("r1")
	if got := memberIDs(room.Members); len(got) != 2 || got[0] != "u2" || got[1] != "u1" {
		t.Errorf("engine b members = %v, want [u2 u1]", got)
	}

	local.send(wire.EventChatMessage, wire.ChatMessageRequest{RoomID: "r1", Text: strings.Repeat("compressible ", 20)})
	// u2's own user-joined may reach u1 first, depending on when
	// engine a processed it.
	local.await(wire.EventChatMessage)
	chat := decodeData[ChatData](t, remote.expect(wire.EventChatMessage))
	if chat.Message.UserID != "u1" {
		t.Errorf("mirrored chat from %s, want u1", chat.Message.UserID)
	}

	a.engine.Disconnect(local.id)
	left := decodeData[UserLeftData](t, remote.expect(wire.EventUserLeft))
	if left.UserID != "u1" {
		t.Errorf("mirrored user-left for %s", left.UserID)
	}
	room, _ = b.engine.Room("r1")
	if got := memberIDs(room.Members); len(got) != 1 {
		t.Errorf("engine b members after leave = %v, want [u2]", got)
	}
}

func TestDisabledRelayForgetsRemoteMembers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := bridge.NewMemoryBus()
	newEngine := func(origin string) (*harness, *bridge.Relay) {
		relay := bridge.NewRelay(bus.Backbone(), bridge.RelayConfig{Origin: origin, Logger: discardLogger()})
		h := newHarness(t, func(config *Config) { config.Relay = relay })
		go h.engine.Run(ctx)
		return h, relay
	}
	a, _ := newEngine("a")
	b, relayB := newEngine("b")
	bus.WaitForSubscribers(2)

	remote := b.login("u2")
	remote.join("r1")
	a.login("u1").join("r1")
	remote.expect(wire.EventUserJoined)
	if room, _ := b.engine.Room("r1"); len(room.Members) != 2 {
		t.Fatalf("engine b members = %v, want [u2 u1]", memberIDs(room.Members))
	}

	bus.Fail(errors.New("backbone gone"))
	testutil.RequireClosed(t, relayB.Disabled(), receiveTimeout, "relay not disabled")
	// Run's watcher may still be between the close and the clear.
	b.engine.watchRelay(ctx)

	room, _ := b.engine.Room("r1")
	if got := memberIDs(room.Members); len(got) != 1 || got[0] != "u2" {
		t.Errorf("engine b members after bridge loss = %v, want [u2]", got)
	}
}

func TestBroadcastNamespaceReachesPeers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := bridge.NewMemoryBus()
	newEngine := func() *harness {
		relay := bridge.NewRelay(bus.Backbone(), bridge.RelayConfig{Logger: discardLogger()})
		h := newHarness(t, func(config *Config) { config.Relay = relay })
		go h.engine.Run(ctx)
		return h
	}
	a := newEngine()
	b := newEngine()
	bus.WaitForSubscribers(2)

	watcher := b.connect()
	watcher.sendEnvelope(wire.NamespaceQA, wire.EventPing.String(), struct{}{}, false)
	watcher.expect(wire.EventPong)
	bystander := b.connect()
	bystander.send(wire.EventPing, struct{}{})
	bystander.expect(wire.EventPong)

	if err := a.engine.BroadcastNamespace(wire.NamespaceQA, "suite-finished", map[string]int{"failed": 0}); err != nil {
		t.Fatalf("BroadcastNamespace: %v", err)
	}
	envelope := watcher.next()
	if envelope.Event != "suite-finished" || envelope.Namespace != wire.NamespaceQA {
		t.Errorf("got %s/%s, want qa/suite-finished", envelope.Namespace, envelope.Event)
	}
	bystander.quiet()
}

type recordingSink struct {
	saved chan session.Snapshot
}

func (s recordingSink) SaveSnapshot(_ context.Context, snapshot session.Snapshot) error {
	s.saved <- snapshot
	return nil
}

func TestAutosave(t *testing.T) {
	sink := recordingSink{saved: make(chan session.Snapshot, 4)}
	h := newHarness(t, func(config *Config) {
		config.SnapshotSink = sink
		config.AutosaveInterval = 10 * time.Second
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.engine.runAutosave(ctx)
	h.clock.WaitForTimers(1)

	u1 := h.login("u1")
	u1.send(wire.EventJoinRoom, wire.JoinRoomRequest{
		RoomID:          "r1",
		SessionSettings: &wire.SessionSettings{Autosave: true},
	})
	u1.expect(wire.EventJoinRoom)
	h.login("u2").join("r2")

	h.clock.Advance(10 * time.Second)
	saved := testutil.RequireReceive(t, sink.saved, receiveTimeout, "autosave")
	if saved.RoomID != "r1" {
		t.Errorf("autosaved %s, want r1", saved.RoomID)
	}
	testutil.RequireNoReceive(t, sink.saved, 20*time.Millisecond, "r2 does not autosave")
}

func otInsert(id string, line, column int, content string, observed int64) ot.Change {
	return ot.Change{
		ID:        id,
		Kind:      ot.KindInsert,
		Position:  ot.Position{Line: line, Column: column},
		Content:   content,
		Timestamp: observed,
	}
}
