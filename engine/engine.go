// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/tandem/bridge"
	"github.com/bureau-foundation/tandem/hub"
	"github.com/bureau-foundation/tandem/lib/authtoken"
	"github.com/bureau-foundation/tandem/lib/clock"
	"github.com/bureau-foundation/tandem/lib/ratelimit"
	"github.com/bureau-foundation/tandem/session"
	"github.com/bureau-foundation/tandem/wire"
)

// Authenticator resolves a client credential to an identity.
// *authtoken.Verifier satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (authtoken.Identity, error)
}

// SnapshotSink receives autosaved sessions.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snapshot session.Snapshot) error
}

// Config configures an Engine. Zero values take the defaults noted on
// each field.
type Config struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// Authenticator is required.
	Authenticator Authenticator

	// Relay mirrors room traffic to peer processes. Nil runs
	// single-process.
	Relay *bridge.Relay

	// RateLimit applies per remote address. Zero uses
	// ratelimit.DefaultConfig.
	RateLimit ratelimit.Config

	// PingInterval is the heartbeat period; 30s. Connections silent for
	// StaleAfter (60s) are evicted on the next heartbeat.
	PingInterval time.Duration
	StaleAfter   time.Duration

	// MaxRoomMembers caps rooms whose creator sets no limit; 100.
	MaxRoomMembers int
	// ActivityLogSize bounds the log of recording rooms; 1000.
	ActivityLogSize int
	// MailboxSize bounds queued notifications per offline user; 100.
	MailboxSize int

	// ChatHistory, MaxParticipants, and AutosaveInterval configure the
	// session store. See session.StoreConfig.
	ChatHistory      int
	MaxParticipants  int
	AutosaveInterval time.Duration

	// SnapshotSink receives autosaved sessions. Nil logs them.
	SnapshotSink SnapshotSink
}

// Engine is the message router. All methods are safe for concurrent
// use.
type Engine struct {
	clock         clock.Clock
	logger        *slog.Logger
	authenticator Authenticator
	relay         *bridge.Relay
	sink          SnapshotSink
	pingInterval  time.Duration
	staleAfter    time.Duration
	autosaveEvery time.Duration

	registry  *hub.Registry
	directory *hub.Directory
	mailbox   *hub.Mailbox
	sessions  *session.Store
	limiter   *ratelimit.Limiter

	// mu serializes envelope processing, peer frames, and
	// disconnects.
	mu sync.Mutex

	namespaceMu       sync.RWMutex
	namespaceHandlers map[wire.Namespace]map[string]NamespaceHandler
}

// New creates an Engine. Call Run to start background work.
func New(config Config) (*Engine, error) {
	if config.Authenticator == nil {
		return nil, errors.New("engine: Authenticator is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RateLimit == (ratelimit.Config{}) {
		config.RateLimit = ratelimit.DefaultConfig()
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 60 * time.Second
	}
	if config.MaxRoomMembers <= 0 {
		config.MaxRoomMembers = hub.DefaultMaxMembers
	}
	if config.ActivityLogSize <= 0 {
		config.ActivityLogSize = 1000
	}
	if config.MailboxSize <= 0 {
		config.MailboxSize = 100
	}
	if config.AutosaveInterval <= 0 {
		config.AutosaveInterval = 30 * time.Second
	}

	logger := config.Logger.With("component", "engine")
	if config.Relay == nil {
		config.Relay = bridge.NewRelay(nil, bridge.RelayConfig{Logger: config.Logger})
	}
	if config.SnapshotSink == nil {
		config.SnapshotSink = logSink{logger: logger}
	}

	return &Engine{
		clock:         config.Clock,
		logger:        logger,
		authenticator: config.Authenticator,
		relay:         config.Relay,
		sink:          config.SnapshotSink,
		pingInterval:  config.PingInterval,
		staleAfter:    config.StaleAfter,
		autosaveEvery: config.AutosaveInterval,
		registry:      hub.NewRegistry(config.Clock),
		directory:     hub.NewDirectory(config.Clock, config.MaxRoomMembers, config.ActivityLogSize),
		mailbox:       hub.NewMailbox(config.MailboxSize),
		sessions: session.NewStore(session.StoreConfig{
			Clock:            config.Clock,
			Logger:           config.Logger,
			ChatHistory:      config.ChatHistory,
			MaxParticipants:  config.MaxParticipants,
			AutosaveInterval: config.AutosaveInterval,
		}),
		limiter:           ratelimit.New(config.RateLimit, config.Clock),
		namespaceHandlers: make(map[wire.Namespace]map[string]NamespaceHandler),
	}, nil
}

// Connect registers a newly accepted connection and returns its id.
func (e *Engine) Connect(conn hub.Conn, remoteAddr, userAgent string) string {
	connectionID := e.registry.Register(conn, remoteAddr, userAgent)
	e.logger.Debug("connection opened",
		"connection_id", connectionID,
		"remote_addr", remoteAddr,
	)
	return connectionID
}

// Disconnect removes a connection from every room it joined. Calling
// it for an unknown id is a no-op.
func (e *Engine) Disconnect(connectionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	connection, ok := e.registry.Deregister(connectionID)
	if !ok {
		return
	}
	for _, roomID := range connection.Rooms {
		e.leaveRoom(connection, roomID)
	}
	e.logger.Debug("connection closed",
		"connection_id", connectionID,
		"user_id", connection.UserID,
		"rooms", len(connection.Rooms),
	)
}

// Run relays peer frames, sends heartbeats, evicts stale connections,
// and autosaves sessions until ctx is cancelled. It then closes every
// remaining connection.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		e.relay.Run(ctx, e.handleFrame)
	}()
	go func() {
		defer wg.Done()
		e.watchRelay(ctx)
	}()
	go func() {
		defer wg.Done()
		e.runLiveness(ctx)
	}()
	go func() {
		defer wg.Done()
		e.runAutosave(ctx)
	}()
	wg.Wait()

	for _, connectionID := range e.registry.IDs() {
		e.registry.Close(connectionID, "server shutting down")
	}
}

// Connections returns the number of live connections.
func (e *Engine) Connections() int { return e.registry.Len() }

// Room returns a copy of a room on this process.
func (e *Engine) Room(roomID string) (hub.RoomSnapshot, bool) {
	return e.directory.Snapshot(roomID)
}

// Session returns a copy of a room's collaboration session.
func (e *Engine) Session(roomID string) (session.Snapshot, bool) {
	return e.sessions.Snapshot(roomID)
}

type logSink struct {
	logger *slog.Logger
}

func (s logSink) SaveSnapshot(_ context.Context, snapshot session.Snapshot) error {
	s.logger.Info("session autosaved",
		"room_id", snapshot.RoomID,
		"session_id", snapshot.ID,
		"files", len(snapshot.Files),
		"participants", len(snapshot.Participants),
	)
	return nil
}

// envelope builds a server envelope, stamping the room and user it
// concerns.
func (e *Engine) envelope(namespace wire.Namespace, event wire.Event, roomID, userID string, data any) ([]byte, error) {
	envelope, err := wire.New(namespace, event, data, e.clock.Now())
	if err != nil {
		return nil, err
	}
	envelope.RoomID = roomID
	envelope.UserID = userID
	payload, err := envelope.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", event, err)
	}
	return payload, nil
}

// deliver queues payload on one connection. A connection whose queue
// is full is closed as a slow consumer; its transport then calls
// Disconnect.
func (e *Engine) deliver(connectionID string, payload []byte) {
	err := e.registry.Send(connectionID, payload)
	if err == nil || errors.Is(err, hub.ErrUnknownConnection) {
		return
	}
	e.logger.Warn("closing slow consumer",
		"connection_id", connectionID,
		"error", err,
	)
	e.registry.Close(connectionID, "send queue full")
}

// send builds and delivers an envelope to one connection.
func (e *Engine) send(connectionID string, namespace wire.Namespace, event wire.Event, roomID string, data any) {
	payload, err := e.envelope(namespace, event, roomID, "", data)
	if err != nil {
		e.logger.Error("building envelope", "event", event, "error", err)
		return
	}
	e.deliver(connectionID, payload)
}

func (e *Engine) sendError(connectionID string, namespace wire.Namespace, data wire.ErrorData) {
	if namespace == "" {
		namespace = wire.NamespaceCollaboration
	}
	e.send(connectionID, namespace, wire.EventError, "", data)
}

// broadcast sends an envelope to the room's local connections, except
// exclude, and mirrors it to peers. userID names the member the event
// concerns.
func (e *Engine) broadcast(roomID string, namespace wire.Namespace, event wire.Event, userID, exclude string, data any) {
	payload, err := e.envelope(namespace, event, roomID, userID, data)
	if err != nil {
		e.logger.Error("building broadcast", "event", event, "room_id", roomID, "error", err)
		return
	}
	e.fanOut(roomID, exclude, payload)
	e.directory.Record(roomID, event.String(), userID)
	e.relay.PublishRoom(roomID, payload)
}

func (e *Engine) fanOut(roomID, exclude string, payload []byte) {
	for _, connectionID := range e.directory.Connections(roomID, exclude) {
		e.deliver(connectionID, payload)
	}
}
