// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/tandem/lib/clock"
	"github.com/bureau-foundation/tandem/wire"
)

// ErrUnknownConnection is returned for an id the registry does not hold.
var ErrUnknownConnection = errors.New("hub: unknown connection")

// Conn is the transport half of a connection.
type Conn interface {
	// Send queues payload for delivery and never blocks. An error
	// means the payload was not queued.
	Send(payload []byte) error

	// Close shuts the connection down. The transport deregisters it
	// once its read loop exits.
	Close(reason string)
}

// Connection is a copy of a registry entry.
type Connection struct {
	ID            string
	UserID        string
	DisplayName   string
	Namespace     wire.Namespace
	Rooms         []string
	Authenticated bool
	RemoteAddr    string
	UserAgent     string
	ConnectedAt   time.Time
	LastActivity  time.Time
}

type connection struct {
	id            string
	conn          Conn
	userID        string
	displayName   string
	namespace     wire.Namespace
	rooms         map[string]struct{}
	authenticated bool
	remoteAddr    string
	userAgent     string
	connectedAt   time.Time
	lastActivity  time.Time
}

func (c *connection) copy() Connection {
	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return Connection{
		ID:            c.id,
		UserID:        c.userID,
		DisplayName:   c.displayName,
		Namespace:     c.namespace,
		Rooms:         rooms,
		Authenticated: c.authenticated,
		RemoteAddr:    c.remoteAddr,
		UserAgent:     c.userAgent,
		ConnectedAt:   c.connectedAt,
		LastActivity:  c.lastActivity,
	}
}

// Registry holds the live connections of this process. All methods
// are safe for concurrent use.
type Registry struct {
	clock clock.Clock

	mu          sync.Mutex
	connections map[string]*connection
}

// NewRegistry creates an empty registry.
func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{
		clock:       clk,
		connections: make(map[string]*connection),
	}
}

// Register adds conn and returns its server-assigned id.
func (r *Registry) Register(conn Conn, remoteAddr, userAgent string) string {
	now := r.clock.Now()
	entry := &connection{
		id:           uuid.NewString(),
		conn:         conn,
		rooms:        make(map[string]struct{}),
		remoteAddr:   remoteAddr,
		userAgent:    userAgent,
		connectedAt:  now,
		lastActivity: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[entry.id] = entry
	return entry.id
}

// MarkAuthenticated binds connectionID to a user identity.
func (r *Registry) MarkAuthenticated(connectionID, userID, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.connections[connectionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connectionID)
	}
	entry.userID = userID
	entry.displayName = displayName
	entry.authenticated = true
	return nil
}

// Touch records activity on connectionID.
func (r *Registry) Touch(connectionID string) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.connections[connectionID]; ok {
		entry.lastActivity = now
	}
}

// SetNamespace records the namespace connectionID last addressed.
func (r *Registry) SetNamespace(connectionID string, namespace wire.Namespace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.connections[connectionID]; ok {
		entry.namespace = namespace
	}
}

// AddRoom records that connectionID joined roomID.
func (r *Registry) AddRoom(connectionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.connections[connectionID]; ok {
		entry.rooms[roomID] = struct{}{}
	}
}

// RemoveRoom records that connectionID left roomID.
func (r *Registry) RemoveRoom(connectionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.connections[connectionID]; ok {
		delete(entry.rooms, roomID)
	}
}

// InRoom reports whether connectionID has joined roomID.
func (r *Registry) InRoom(connectionID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.connections[connectionID]
	if !ok {
		return false
	}
	_, joined := entry.rooms[roomID]
	return joined
}

// Deregister removes connectionID and returns its final state. The
// caller runs the room-leave cascade over the returned Rooms.
func (r *Registry) Deregister(connectionID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.connections[connectionID]
	if !ok {
		return Connection{}, false
	}
	delete(r.connections, connectionID)
	return entry.copy(), true
}

// Get returns a copy of connectionID's entry.
func (r *Registry) Get(connectionID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.connections[connectionID]
	if !ok {
		return Connection{}, false
	}
	return entry.copy(), true
}

// Send queues payload on connectionID.
func (r *Registry) Send(connectionID string, payload []byte) error {
	r.mu.Lock()
	entry, ok := r.connections[connectionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connectionID)
	}
	return entry.conn.Send(payload)
}

// Close closes connectionID's transport. The entry stays registered
// until the transport calls back to deregister it.
func (r *Registry) Close(connectionID, reason string) {
	r.mu.Lock()
	entry, ok := r.connections[connectionID]
	r.mu.Unlock()
	if ok {
		entry.conn.Close(reason)
	}
}

// ByUser returns the ids of every authenticated connection of userID.
func (r *Registry) ByUser(userID string) []string {
	return r.filter(func(entry *connection) bool {
		return entry.authenticated && entry.userID == userID
	})
}

// InNamespace returns the ids of every connection whose current
// namespace is namespace.
func (r *Registry) InNamespace(namespace wire.Namespace) []string {
	return r.filter(func(entry *connection) bool {
		return entry.namespace == namespace
	})
}

// Stale returns the ids of connections with no activity for at least
// threshold.
func (r *Registry) Stale(threshold time.Duration) []string {
	now := r.clock.Now()
	return r.filter(func(entry *connection) bool {
		return now.Sub(entry.lastActivity) >= threshold
	})
}

// IDs returns every registered connection id.
func (r *Registry) IDs() []string {
	return r.filter(func(*connection) bool { return true })
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections)
}

func (r *Registry) filter(match func(*connection) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, entry := range r.connections {
		if match(entry) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
