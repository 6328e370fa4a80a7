// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bureau-foundation/tandem/lib/codec"
)

// RelayConfig configures a Relay.
type RelayConfig struct {
	// Origin identifies this process to its peers. Empty generates
	// a random id.
	Origin string

	// ChannelPrefix namespaces the four channels, e.g. "tandem:".
	ChannelPrefix string

	// Compression is applied to payloads of at least
	// CompressionThreshold bytes.
	Compression          Compression
	CompressionThreshold int

	// QueueDepth bounds frames waiting to be published. Frames beyond
	// it are dropped. Zero means 1024.
	QueueDepth int

	Logger *slog.Logger
}

type outbound struct {
	channel string
	payload []byte
}

// Relay mirrors room and namespace traffic over a Backbone.
type Relay struct {
	origin string
	config RelayConfig
	logger *slog.Logger
	queue  chan outbound

	mu       sync.Mutex
	backbone Backbone

	enabled     atomic.Bool
	disableOnce sync.Once
	disabled    chan struct{}
	dropped     atomic.Uint64
}

// NewRelay creates a relay over backbone. A nil or Noop backbone gives
// a relay that is disabled from the start.
func NewRelay(backbone Backbone, config RelayConfig) *Relay {
	if config.Origin == "" {
		config.Origin = uuid.NewString()
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = 1024
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	relay := &Relay{
		origin:   config.Origin,
		config:   config,
		logger:   config.Logger.With("component", "bridge", "origin", config.Origin),
		queue:    make(chan outbound, config.QueueDepth),
		disabled: make(chan struct{}),
	}
	switch backbone.(type) {
	case nil, Noop:
		relay.backbone = Noop{}
		relay.disableOnce.Do(func() { close(relay.disabled) })
	default:
		relay.backbone = backbone
		relay.enabled.Store(true)
	}
	return relay
}

// Origin returns this process's relay id.
func (r *Relay) Origin() string { return r.origin }

// Enabled reports whether frames still reach peers.
func (r *Relay) Enabled() bool { return r.enabled.Load() }

// Disabled is closed once the relay stops reaching peers.
func (r *Relay) Disabled() <-chan struct{} { return r.disabled }

// Dropped returns the number of frames dropped on a full queue.
func (r *Relay) Dropped() uint64 { return r.dropped.Load() }

// Channel returns the backbone channel for kind.
func (r *Relay) Channel(kind FrameKind) string {
	return r.config.ChannelPrefix + frameKindChannels[kind]
}

// Run publishes queued frames and delivers peer frames to handler
// until ctx is cancelled. A backbone failure disables the relay but
// does not end Run.
func (r *Relay) Run(ctx context.Context, handler func(Frame)) {
	if !r.Enabled() {
		<-ctx.Done()
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.publishLoop(ctx)
	}()

	channels := []string{
		r.Channel(KindRoomBroadcast),
		r.Channel(KindRoomJoin),
		r.Channel(KindRoomLeave),
		r.Channel(KindGlobalBroadcast),
	}
	err := r.current().Subscribe(ctx, channels, func(message Message) {
		r.receive(message, handler)
	})
	if err != nil {
		r.disable(err)
	}

	<-ctx.Done()
	wg.Wait()
}

// PublishRoom mirrors an envelope sent to roomID.
func (r *Relay) PublishRoom(roomID string, payload []byte) {
	r.publish(Frame{Kind: KindRoomBroadcast, RoomID: roomID, Payload: payload})
}

// PublishJoin announces that userID joined roomID here.
func (r *Relay) PublishJoin(roomID, userID, username string) {
	r.publish(Frame{Kind: KindRoomJoin, RoomID: roomID, UserID: userID, Username: username})
}

// PublishLeave announces that userID left roomID here.
func (r *Relay) PublishLeave(roomID, userID string) {
	r.publish(Frame{Kind: KindRoomLeave, RoomID: roomID, UserID: userID})
}

// PublishGlobal mirrors an envelope sent to every connection in
// namespace.
func (r *Relay) PublishGlobal(namespace string, payload []byte) {
	r.publish(Frame{Kind: KindGlobalBroadcast, Namespace: namespace, Payload: payload})
}

func (r *Relay) publish(frame Frame) {
	if !r.Enabled() {
		return
	}
	frame.Origin = r.origin

	if len(frame.Payload) > 0 && len(frame.Payload) >= r.config.CompressionThreshold {
		compressed, algorithm, err := compress(frame.Payload, r.config.Compression)
		if err != nil {
			r.logger.Error("compressing frame", "kind", frame.Kind, "error", err)
			return
		}
		frame.Size = len(frame.Payload)
		frame.Payload = compressed
		frame.Compression = algorithm
	} else {
		frame.Size = len(frame.Payload)
	}

	encoded, err := codec.Marshal(frame)
	if err != nil {
		r.logger.Error("encoding frame", "kind", frame.Kind, "error", err)
		return
	}

	select {
	case r.queue <- outbound{channel: r.Channel(frame.Kind), payload: encoded}:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("bridge queue full; dropping frames", "depth", r.config.QueueDepth)
		}
	}
}

func (r *Relay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-r.queue:
			if !r.Enabled() {
				continue
			}
			if err := r.current().Publish(ctx, item.channel, item.payload); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.disable(err)
			}
		}
	}
}

func (r *Relay) receive(message Message, handler func(Frame)) {
	var frame Frame
	if err := codec.Unmarshal(message.Payload, &frame); err != nil {
		r.logger.Warn("discarding undecodable frame", "channel", message.Channel, "error", err)
		return
	}
	if frame.Origin == r.origin {
		return
	}
	payload, err := decompress(frame.Payload, frame.Compression, frame.Size)
	if err != nil {
		r.logger.Warn("discarding corrupt frame", "channel", message.Channel, "origin", frame.Origin, "error", err)
		return
	}
	frame.Payload = payload
	frame.Compression = CompressionNone
	handler(frame)
}

func (r *Relay) current() Backbone {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backbone
}

// disable switches the relay to Noop for the rest of the process.
func (r *Relay) disable(cause error) {
	r.disableOnce.Do(func() {
		r.enabled.Store(false)
		defer close(r.disabled)

		r.mu.Lock()
		failed := r.backbone
		r.backbone = Noop{}
		r.mu.Unlock()

		r.logger.Warn("bridge disabled; continuing in single-process mode", "error", cause)
		if err := failed.Close(); err != nil {
			r.logger.Debug("closing failed backbone", "error", err)
		}
	})
}
