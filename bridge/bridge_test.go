// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/tandem/lib/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompressionRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"event":"cursor-move","data":{"line":1}}`), 64)
	for _, algorithm := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(algorithm.String(), func(t *testing.T) {
			compressed, used, err := compress(payload, algorithm)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			if used != algorithm {
				t.Errorf("used %s, want %s", used, algorithm)
			}
			if algorithm != CompressionNone && len(compressed) >= len(payload) {
				t.Errorf("compressed %d bytes to %d", len(payload), len(compressed))
			}
			restored, err := decompress(compressed, used, len(payload))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(restored, payload) {
				t.Error("round trip changed the payload")
			}
		})
	}
}

func TestCompressionFallsBackForIncompressible(t *testing.T) {
	payload := []byte("xy")
	compressed, used, err := compress(payload, CompressionZstd)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if used != CompressionNone || !bytes.Equal(compressed, payload) {
		t.Errorf("used %s for a two-byte payload", used)
	}
}

func TestDecompressRejectsSizeMismatch(t *testing.T) {
	if _, err := decompress([]byte("abc"), CompressionNone, 4); err == nil {
		t.Error("size mismatch accepted")
	}
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		parsed, err := ParseCompression(name)
		if err != nil || parsed.String() != name {
			t.Errorf("ParseCompression(%q) = %s, %v", name, parsed, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("gzip accepted")
	}
}

type relayPeer struct {
	relay  *Relay
	frames chan Frame
}

func startRelay(t *testing.T, ctx context.Context, backbone Backbone, origin string, compression Compression) relayPeer {
	t.Helper()
	peer := relayPeer{
		relay: NewRelay(backbone, RelayConfig{
			Origin:        origin,
			ChannelPrefix: "test:",
			Compression:   compression,
			Logger:        discardLogger(),
		}),
		frames: make(chan Frame, 16),
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		peer.relay.Run(ctx, func(frame Frame) { peer.frames <- frame })
	}()
	t.Cleanup(func() { <-done })
	return peer
}

func TestRelayMirrorsBetweenPeers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewMemoryBus()
	alpha := startRelay(t, ctx, bus.Backbone(), "alpha", CompressionZstd)
	beta := startRelay(t, ctx, bus.Backbone(), "beta", CompressionNone)
	bus.WaitForSubscribers(2)

	payload := bytes.Repeat([]byte("content-change "), 200)
	alpha.relay.PublishRoom("r1", payload)

	frame := testutil.RequireReceive(t, beta.frames, 5*time.Second, "room broadcast")
	if frame.Kind != KindRoomBroadcast || frame.RoomID != "r1" || frame.Origin != "alpha" {
		t.Errorf("frame = %+v", frame)
	}
	if !bytes.Equal(frame.Payload, payload) || frame.Compression != CompressionNone {
		t.Error("payload was not decompressed for the handler")
	}

	beta.relay.PublishJoin("r1", "u2", "two")
	join := testutil.RequireReceive(t, alpha.frames, 5*time.Second, "room join")
	if join.Kind != KindRoomJoin || join.UserID != "u2" || join.Username != "two" {
		t.Errorf("join = %+v", join)
	}

	beta.relay.PublishLeave("r1", "u2")
	leave := testutil.RequireReceive(t, alpha.frames, 5*time.Second, "room leave")
	if leave.Kind != KindRoomLeave || leave.UserID != "u2" {
		t.Errorf("leave = %+v", leave)
	}

	alpha.relay.PublishGlobal("notifications", []byte(`{}`))
	global := testutil.RequireReceive(t, beta.frames, 5*time.Second, "global broadcast")
	if global.Kind != KindGlobalBroadcast || global.Namespace != "notifications" {
		t.Errorf("global = %+v", global)
	}

	// Neither relay saw its own frames.
	testutil.RequireNoReceive(t, alpha.frames, 50*time.Millisecond, "alpha echo")
	testutil.RequireNoReceive(t, beta.frames, 50*time.Millisecond, "beta echo")
}

func TestRelayDisablesOnBackboneFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewMemoryBus()
	alpha := startRelay(t, ctx, bus.Backbone(), "alpha", CompressionNone)
	bus.WaitForSubscribers(1)

	if !alpha.relay.Enabled() {
		t.Fatal("relay disabled before failure")
	}
	bus.Fail(errors.New("connection reset"))

	testutil.RequireClosed(t, alpha.relay.Disabled(), 5*time.Second, "relay did not disable")
	if alpha.relay.Enabled() {
		t.Error("Enabled after failure")
	}
	// Publishing after failure is a silent no-op.
	alpha.relay.PublishRoom("r1", []byte("x"))
}

func TestNoopRelay(t *testing.T) {
	relay := NewRelay(Noop{}, RelayConfig{Logger: discardLogger()})
	if relay.Enabled() {
		t.Error("Noop relay reports enabled")
	}
	testutil.RequireClosed(t, relay.Disabled(), time.Second, "Noop relay not disabled")
	relay.PublishRoom("r1", []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx, func(Frame) { t.Error("Noop relay delivered a frame") })
		close(done)
	}()
	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "Run did not return")
}

func TestRelayDropsWhenQueueFull(t *testing.T) {
	bus := NewMemoryBus()
	relay := NewRelay(bus.Backbone(), RelayConfig{QueueDepth: 2, Logger: discardLogger()})
	// Run is not started, so nothing drains the queue.
	for i := 0; i < 5; i++ {
		relay.PublishRoom("r1", []byte("x"))
	}
	if relay.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", relay.Dropped())
	}
}

func TestConnectUnreachableRedisReturnsNoop(t *testing.T) {
	// Port 1 on loopback refuses connections immediately.
	backbone := Connect(context.Background(), RedisOptions{
		Address:        "127.0.0.1:1",
		ConnectTimeout: 2 * time.Second,
	}, discardLogger())
	if _, ok := backbone.(Noop); !ok {
		t.Fatalf("Connect returned %T, want Noop", backbone)
	}
	relay := NewRelay(backbone, RelayConfig{Logger: discardLogger()})
	if relay.Enabled() {
		t.Error("relay over an unreachable backbone is enabled")
	}
}
