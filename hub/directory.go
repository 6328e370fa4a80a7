// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bureau-foundation/tandem/lib/clock"
	"github.com/bureau-foundation/tandem/wire"
)

// DefaultMaxMembers caps rooms created without an explicit limit.
const DefaultMaxMembers = 100

// ErrRoomFull is returned by Join once a room holds its maximum number
// of local members.
var ErrRoomFull = errors.New("hub: room is full")

// RoomSettings are fixed by the join that creates a room.
type RoomSettings struct {
	MaxMembers     int  `json:"maxMembers"`
	Persistent     bool `json:"persistent"`
	RecordActivity bool `json:"recordActivity"`
}

// Member identifies a room member for presence lists.
type Member struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Activity is one entry of a recording room's log.
type Activity struct {
	Event  string    `json:"event"`
	UserID string    `json:"userId,omitempty"`
	At     time.Time `json:"at"`
}

// RoomSnapshot is a copy of a room for replies and inspection.
type RoomSnapshot struct {
	ID        string         `json:"roomId"`
	Namespace wire.Namespace `json:"namespace"`
	Name      string         `json:"name,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Settings  RoomSettings   `json:"settings"`

	// Members lists each user once, local members in join order
	// followed by users only present on peer processes.
	Members []Member `json:"members"`
}

// JoinOptions apply only when the join creates the room.
type JoinOptions struct {
	Name     string
	Metadata map[string]any
	Settings *RoomSettings
}

// LeaveResult reports the outcome of Leave.
type LeaveResult struct {
	// Left is set when the connection was a member.
	Left bool
	// Deleted is set when the leave emptied a non-persistent room.
	Deleted bool
	// UserRemains is set when another local connection of the same
	// user is still in the room.
	UserRemains bool
}

type roomMember struct {
	connectionID string
	member       Member
	sequence     uint64
}

type room struct {
	id        string
	namespace wire.Namespace
	name      string
	metadata  map[string]any
	createdAt time.Time
	settings  RoomSettings
	members   map[string]*roomMember
	activity  []Activity
}

// Directory maps room ids to local membership, settings, and the
// membership peers have announced. All methods are safe for
// concurrent use.
type Directory struct {
	clock           clock.Clock
	maxMembers      int
	activityLogSize int

	mu       sync.Mutex
	rooms    map[string]*room
	sequence uint64

	// remote is keyed by room id, then by origin and user id.
	remote map[string]map[remoteKey]Member
}

type remoteKey struct {
	origin string
	userID string
}

// NewDirectory creates an empty directory. maxMembers applies to rooms
// whose creator does not set a limit; activityLogSize bounds the log
// of recording rooms.
func NewDirectory(clk clock.Clock, maxMembers, activityLogSize int) *Directory {
	if maxMembers <= 0 {
		maxMembers = DefaultMaxMembers
	}
	if activityLogSize <= 0 {
		activityLogSize = 1000
	}
	return &Directory{
		clock:           clk,
		maxMembers:      maxMembers,
		activityLogSize: activityLogSize,
		rooms:           make(map[string]*room),
		remote:          make(map[string]map[remoteKey]Member),
	}
}

// Join adds connectionID to roomID, creating the room on first join.
// Joining a room the connection is already in succeeds without
// changing membership.
func (d *Directory) Join(roomID, connectionID string, member Member, namespace wire.Namespace, options JoinOptions) (RoomSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	target, exists := d.rooms[roomID]
	if !exists {
		settings := RoomSettings{MaxMembers: d.maxMembers}
		if options.Settings != nil {
			settings = *options.Settings
			if settings.MaxMembers <= 0 {
				settings.MaxMembers = d.maxMembers
			}
		}
		target = &room{
			id:        roomID,
			namespace: namespace,
			name:      options.Name,
			metadata:  options.Metadata,
			createdAt: d.clock.Now(),
			settings:  settings,
			members:   make(map[string]*roomMember),
		}
	}

	if _, already := target.members[connectionID]; !already {
		if len(target.members) >= target.settings.MaxMembers {
			return RoomSnapshot{}, ErrRoomFull
		}
		d.sequence++
		target.members[connectionID] = &roomMember{
			connectionID: connectionID,
			member:       member,
			sequence:     d.sequence,
		}
	}
	if !exists {
		d.rooms[roomID] = target
	}
	d.recordLocked(target, "join-room", member.UserID)
	return d.snapshotLocked(target), nil
}

// Leave removes connectionID from roomID. A non-persistent room left
// empty is deleted before Leave returns.
func (d *Directory) Leave(roomID, connectionID string) LeaveResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	target, ok := d.rooms[roomID]
	if !ok {
		return LeaveResult{}
	}
	leaving, ok := target.members[connectionID]
	if !ok {
		return LeaveResult{}
	}
	delete(target.members, connectionID)
	d.recordLocked(target, "leave-room", leaving.member.UserID)

	result := LeaveResult{Left: true}
	for _, remaining := range target.members {
		if remaining.member.UserID == leaving.member.UserID {
			result.UserRemains = true
			break
		}
	}
	if len(target.members) == 0 && !target.settings.Persistent {
		delete(d.rooms, roomID)
		result.Deleted = true
	}
	return result
}

// Connections returns the local member connection ids of roomID in
// join order, omitting exclude.
func (d *Directory) Connections(roomID, exclude string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	target, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	ordered := orderedMembers(target)
	ids := make([]string, 0, len(ordered))
	for _, member := range ordered {
		if member.connectionID != exclude {
			ids = append(ids, member.connectionID)
		}
	}
	return ids
}

// Snapshot returns a copy of roomID.
func (d *Directory) Snapshot(roomID string) (RoomSnapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	target, ok := d.rooms[roomID]
	if !ok {
		return RoomSnapshot{}, false
	}
	return d.snapshotLocked(target), true
}

// Record appends event to roomID's activity log when the room records
// activity.
func (d *Directory) Record(roomID, event, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if target, ok := d.rooms[roomID]; ok {
		d.recordLocked(target, event, userID)
	}
}

// Activity returns a copy of roomID's activity log, oldest first.
func (d *Directory) Activity(roomID string) []Activity {
	d.mu.Lock()
	defer d.mu.Unlock()
	target, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]Activity(nil), target.activity...)
}

func (d *Directory) recordLocked(target *room, event, userID string) {
	if !target.settings.RecordActivity {
		return
	}
	target.activity = append(target.activity, Activity{Event: event, UserID: userID, At: d.clock.Now()})
	if overflow := len(target.activity) - d.activityLogSize; overflow > 0 {
		target.activity = append(target.activity[:0], target.activity[overflow:]...)
	}
}

// AddRemoteMember records that a peer process has member in roomID.
func (d *Directory) AddRemoteMember(roomID, origin string, member Member) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.remote[roomID]
	if !ok {
		members = make(map[remoteKey]Member)
		d.remote[roomID] = members
	}
	members[remoteKey{origin: origin, userID: member.UserID}] = member
}

// RemoveRemoteMember forgets a peer's member of roomID.
func (d *Directory) RemoveRemoteMember(roomID, origin, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.remote[roomID]
	if !ok {
		return
	}
	delete(members, remoteKey{origin: origin, userID: userID})
	if len(members) == 0 {
		delete(d.remote, roomID)
	}
}

// ClearRemote forgets every peer's members, for when the bridge to
// the peers is gone. It returns the number of members dropped.
func (d *Directory) ClearRemote() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	dropped := 0
	for _, members := range d.remote {
		dropped += len(members)
	}
	clear(d.remote)
	return dropped
}

// Exists reports whether roomID is in the directory.
func (d *Directory) Exists(roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.rooms[roomID]
	return ok
}

// MemberCount returns the number of local member connections of roomID.
func (d *Directory) MemberCount(roomID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if target, ok := d.rooms[roomID]; ok {
		return len(target.members)
	}
	return 0
}

// Len returns the number of rooms.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

func (d *Directory) snapshotLocked(target *room) RoomSnapshot {
	var metadata map[string]any
	if target.metadata != nil {
		metadata = make(map[string]any, len(target.metadata))
		for key, value := range target.metadata {
			metadata[key] = value
		}
	}

	seen := make(map[string]bool)
	members := make([]Member, 0, len(target.members))
	for _, local := range orderedMembers(target) {
		if seen[local.member.UserID] {
			continue
		}
		seen[local.member.UserID] = true
		members = append(members, local.member)
	}

	var remote []Member
	for _, member := range d.remote[target.id] {
		if seen[member.UserID] {
			continue
		}
		seen[member.UserID] = true
		remote = append(remote, member)
	}
	sort.Slice(remote, func(i, j int) bool { return remote[i].UserID < remote[j].UserID })

	return RoomSnapshot{
		ID:        target.id,
		Namespace: target.namespace,
		Name:      target.name,
		Metadata:  metadata,
		CreatedAt: target.createdAt,
		Settings:  target.settings,
		Members:   append(members, remote...),
	}
}

func orderedMembers(target *room) []*roomMember {
	ordered := make([]*roomMember, 0, len(target.members))
	for _, member := range target.members {
		ordered = append(ordered, member)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].sequence < ordered[j].sequence })
	return ordered
}
