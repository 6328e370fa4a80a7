// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/tandem/lib/clock"
	"github.com/bureau-foundation/tandem/lib/ot"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// ChatHistory is the recent-chat capacity of each session.
	ChatHistory int

	// MaxParticipants applies to sessions created without one.
	MaxParticipants int

	// AutosaveInterval applies to autosaving sessions created without
	// one.
	AutosaveInterval time.Duration
}

// Store owns the session of every room. All methods are safe for
// concurrent use.
type Store struct {
	clock  clock.Clock
	logger *slog.Logger
	config StoreConfig

	mu       sync.Mutex
	sessions map[string]*State
}

// NewStore creates an empty Store.
func NewStore(config StoreConfig) *Store {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ChatHistory <= 0 {
		config.ChatHistory = DefaultChatHistory
	}
	if config.AutosaveInterval <= 0 {
		config.AutosaveInterval = 30 * time.Second
	}
	return &Store{
		clock:    config.Clock,
		logger:   config.Logger.With("component", "session"),
		config:   config,
		sessions: make(map[string]*State),
	}
}

// JoinRequest describes a user entering a room's session.
type JoinRequest struct {
	UserID      string
	DisplayName string
	Avatar      string

	// Role is the requested role. Empty requests the default
	// (navigator). Host cannot be requested: the first participant
	// becomes host and nobody else does.
	Role Role

	// Mode and Settings apply only when the join creates the session.
	Mode     Mode
	Settings *Settings
}

// JoinResult reports the outcome of Join.
type JoinResult struct {
	Participant ParticipantSnapshot
	// Created is set when this join created the session.
	Created bool
	// Rejoined is set when an inactive participant was reactivated
	// with its previous role.
	Rejoined bool
}

// Join adds or reactivates request.UserID in the session of roomID,
// creating the session when the room has none.
func (s *Store) Join(roomID string, request JoinRequest) (JoinResult, error) {
	if request.Role != "" && !request.Role.Valid() {
		return JoinResult{}, fmt.Errorf("%w: %q", ErrInvalidRole, request.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	state, exists := s.sessions[roomID]
	created := false
	if !exists {
		state = s.newState(roomID, request, now)
		created = true
	}

	if participant, ok := state.participants[request.UserID]; ok {
		rejoined := !participant.Active
		if rejoined && state.Settings.MaxParticipants > 0 && state.activeParticipants() >= state.Settings.MaxParticipants {
			return JoinResult{}, ErrSessionFull
		}
		participant.Active = true
		if request.DisplayName != "" {
			participant.DisplayName = request.DisplayName
		}
		if request.Avatar != "" {
			participant.Avatar = request.Avatar
		}
		return JoinResult{
			Participant: ParticipantSnapshot{Participant: *participant, Permissions: participant.Permissions()},
			Rejoined:    rejoined,
		}, nil
	}

	if state.Settings.MaxParticipants > 0 && state.activeParticipants() >= state.Settings.MaxParticipants {
		return JoinResult{}, ErrSessionFull
	}

	role := s.assignRole(state, request.Role)
	participant := &Participant{
		ID:          uuid.NewString(),
		UserID:      request.UserID,
		DisplayName: request.DisplayName,
		Avatar:      request.Avatar,
		Role:        role,
		Color:       participantColors[state.joinCount%len(participantColors)],
		Active:      true,
		JoinedAt:    now,
	}
	state.joinCount++
	state.participants[request.UserID] = participant

	if created {
		s.sessions[roomID] = state
		s.logger.Info("session created", "room_id", roomID, "session_id", state.ID, "mode", state.Mode, "host", request.UserID)
	}

	return JoinResult{
		Participant: ParticipantSnapshot{Participant: *participant, Permissions: participant.Permissions()},
		Created:     created,
	}, nil
}

func (s *Store) newState(roomID string, request JoinRequest, now time.Time) *State {
	mode := request.Mode
	if mode == "" {
		mode = ModePairProgramming
	}
	settings := Settings{MaxParticipants: s.config.MaxParticipants}
	if request.Settings != nil {
		settings = *request.Settings
		if settings.MaxParticipants == 0 {
			settings.MaxParticipants = s.config.MaxParticipants
		}
	}
	if settings.Autosave && settings.AutosaveInterval <= 0 {
		settings.AutosaveInterval = s.config.AutosaveInterval
	}

	return &State{
		ID:            uuid.NewString(),
		RoomID:        roomID,
		Mode:          mode,
		Settings:      settings,
		CreatedAt:     now,
		CurrentBranch: DefaultBranch,
		participants:  make(map[string]*Participant),
		files:         make(map[string]*FileState),
		branches: map[string]*Branch{
			DefaultBranch: {Name: DefaultBranch, Files: map[string]string{}, CreatedAt: now},
		},
		chat:      NewChatBuffer(s.config.ChatHistory),
		lastSaved: now,
	}
}

func (s *Store) assignRole(state *State, requested Role) Role {
	if len(state.participants) == 0 {
		return RoleHost
	}
	if state.Settings.ApprovalRequired {
		return RoleObserver
	}
	if requested == "" || requested == RoleHost {
		return RoleNavigator
	}
	return requested
}

// Leave marks userID inactive in the session of roomID. When no active
// participant remains the session is destroyed and destroyed is true.
func (s *Store) Leave(roomID, userID string) (destroyed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[roomID]
	if !ok {
		return false
	}
	participant, ok := state.participants[userID]
	if !ok {
		return false
	}
	participant.Active = false
	participant.Cursor = nil
	participant.Selection = nil
	for _, file := range state.files {
		delete(file.openBy, userID)
		delete(file.locks, userID)
	}

	if state.activeParticipants() > 0 {
		return false
	}
	delete(s.sessions, roomID)
	s.logger.Info("session destroyed", "room_id", roomID, "session_id", state.ID)
	return true
}

// lookup returns the session of roomID and the active participant
// userID in it. Callers hold s.mu.
func (s *Store) lookup(roomID, userID string) (*State, *Participant, error) {
	state, ok := s.sessions[roomID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	participant, err := state.activeParticipant(userID)
	if err != nil {
		return nil, nil, err
	}
	return state, participant, nil
}

// UpdateCursor records userID's caret.
func (s *Store) UpdateCursor(roomID, userID string, cursor Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, participant, err := s.lookup(roomID, userID)
	if err != nil {
		return err
	}
	participant.Cursor = &cursor
	return nil
}

// UpdateSelection records userID's selection.
func (s *Store) UpdateSelection(roomID, userID string, selection Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, participant, err := s.lookup(roomID, userID)
	if err != nil {
		return err
	}
	participant.Selection = &selection
	return nil
}

// OpenFile adds userID to the readers of path, creating the file with
// initialContent on first open. initialContent is ignored for a file
// that already exists.
func (s *Store) OpenFile(roomID, userID, path string, initialContent string) (FileSnapshot, error) {
	if path == "" {
		return FileSnapshot{}, fmt.Errorf("%w: empty path", ErrInvalidName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, _, err := s.lookup(roomID, userID)
	if err != nil {
		return FileSnapshot{}, err
	}
	file, ok := state.files[path]
	if !ok {
		file = newFileState(path, initialContent)
		state.files[path] = file
	}
	file.openBy[userID] = struct{}{}
	return file.snapshot(), nil
}

// CloseFile removes userID from the readers of path. The file itself
// lives as long as the session.
func (s *Store) CloseFile(roomID, userID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, _, err := s.lookup(roomID, userID)
	if err != nil {
		return err
	}
	file, ok := state.files[path]
	if !ok {
		return ErrFileNotFound
	}
	delete(file.openBy, userID)
	delete(file.locks, userID)
	return nil
}

// LockLines records userID's advisory lock on a line range of path,
// replacing any lock userID already held on it.
func (s *Store) LockLines(roomID, userID, path string, startLine, endLine int) (LineLock, error) {
	if startLine < 0 || endLine < startLine {
		return LineLock{}, fmt.Errorf("%w: line range %d-%d", ErrInvalidChange, startLine, endLine)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, participant, err := s.lookup(roomID, userID)
	if err != nil {
		return LineLock{}, err
	}
	if !participant.Permissions().CanEdit {
		return LineLock{}, ErrPermissionDenied
	}
	file, ok := state.files[path]
	if !ok {
		return LineLock{}, ErrFileNotFound
	}
	lock := LineLock{Holder: userID, StartLine: startLine, EndLine: endLine}
	file.locks[userID] = lock
	return lock, nil
}

// UnlockLines drops userID's lock on path, if any.
func (s *Store) UnlockLines(roomID, userID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, _, err := s.lookup(roomID, userID)
	if err != nil {
		return err
	}
	file, ok := state.files[path]
	if !ok {
		return ErrFileNotFound
	}
	delete(file.locks, userID)
	return nil
}

// ApplyChange applies an edit by userID to path and returns the change
// as applied together with the file's new version.
//
// change.Timestamp is the file version the author had observed. The
// change is rebased over every history entry from another author with
// a greater version, spliced into the content, stamped with the new
// version, and appended to history. The author field is always set to
// userID.
//
// A path that is not open yet starts as an empty file.
//
// A change is rejected with ErrStaleChange when its id was already
// applied, when its timestamp does not exceed the author's previous
// one, or when it claims a version the file has not reached.
func (s *Store) ApplyChange(roomID, userID, path string, change ot.Change) (ot.Change, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, participant, err := s.lookup(roomID, userID)
	if err != nil {
		return ot.Change{}, 0, err
	}
	if !participant.Permissions().CanEdit {
		return ot.Change{}, 0, ErrPermissionDenied
	}
	if path == "" {
		return ot.Change{}, 0, fmt.Errorf("%w: empty path", ErrInvalidName)
	}
	// A change to a path nobody opened edits a new, empty file. The
	// file joins the session only if the change applies.
	file, exists := state.files[path]
	if !exists {
		file = newFileState(path, "")
	}

	change.Author = userID
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if err := change.Validate(); err != nil {
		return ot.Change{}, 0, fmt.Errorf("%w: %w", ErrInvalidChange, err)
	}
	if _, seen := file.appliedIDs[change.ID]; seen {
		return ot.Change{}, 0, fmt.Errorf("%w: change %s already applied", ErrStaleChange, change.ID)
	}
	if change.Timestamp < 0 || change.Timestamp > file.Version {
		return ot.Change{}, 0, fmt.Errorf("%w: timestamp %d outside [0, %d]", ErrStaleChange, change.Timestamp, file.Version)
	}
	if last, ok := file.lastTimestamp[userID]; ok && change.Timestamp <= last {
		return ot.Change{}, 0, fmt.Errorf("%w: timestamp %d not after %d", ErrStaleChange, change.Timestamp, last)
	}

	observed := change.Timestamp
	transformed := ot.Rebase(change, file.History)
	content, err := ot.Apply(file.Content, transformed)
	if err != nil {
		return ot.Change{}, 0, fmt.Errorf("%w: %w", ErrInvalidChange, err)
	}

	if !exists {
		state.files[path] = file
	}
	file.Content = content
	file.Version++
	transformed.Timestamp = file.Version
	file.History = append(file.History, transformed)
	file.appliedIDs[transformed.ID] = struct{}{}
	file.lastTimestamp[userID] = observed

	return transformed, file.Version, nil
}

// AddComment starts a comment thread on a line of path.
func (s *Store) AddComment(roomID, userID, path string, line int, text string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, participant, err := s.lookup(roomID, userID)
	if err != nil {
		return Comment{}, err
	}
	if !participant.Permissions().CanComment {
		return Comment{}, ErrPermissionDenied
	}
	comment := &Comment{
		ID:        uuid.NewString(),
		Author:    userID,
		Path:      path,
		Line:      line,
		Text:      text,
		Replies:   []Reply{},
		Timestamp: s.clock.Now(),
	}
	state.comments = append(state.comments, comment)
	return comment.clone(), nil
}

// UpdateComment applies update to a comment. Changing the text needs
// the comment's author or a moderator; resolving and replying need
// comment permission.
func (s *Store) UpdateComment(roomID, userID, commentID string, update CommentUpdate) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, participant, err := s.lookup(roomID, userID)
	if err != nil {
		return Comment{}, err
	}
	if !participant.Permissions().CanComment {
		return Comment{}, ErrPermissionDenied
	}
	_, comment := state.findComment(commentID)
	if comment == nil {
		return Comment{}, ErrCommentNotFound
	}
	if update.Text != nil && comment.Author != userID && !participant.Role.Moderates() {
		return Comment{}, ErrPermissionDenied
	}

	if update.Text != nil {
		comment.Text = *update.Text
	}
	if update.Resolved != nil {
		comment.Resolved = *update.Resolved
	}
	if update.Reply != nil {
		comment.Replies = append(comment.Replies, Reply{
			ID:        uuid.NewString(),
			Author:    userID,
			Text:      *update.Reply,
			Timestamp: s.clock.Now(),
		})
	}
	return comment.clone(), nil
}

// DeleteComment removes a thread. Only its author or a moderator may.
func (s *Store) DeleteComment(roomID, userID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, participant, err := s.lookup(roomID, userID)
	if err != nil {
		return err
	}
	if !participant.Permissions().CanComment {
		return ErrPermissionDenied
	}
	index, comment := state.findComment(commentID)
	if comment == nil {
		return ErrCommentNotFound
	}
	if comment.Author != userID && !participant.Role.Moderates() {
		return ErrPermissionDenied
	}
	state.comments = append(state.comments[:index], state.comments[index+1:]...)
	return nil
}

// CreateBranch snapshots the session's files into a new branch. An
// empty baseCommit bases the branch on the current branch's head.
// Editing continues on the current branch.
func (s *Store) CreateBranch(roomID, userID, name, baseCommit string) (Branch, error) {
	if name == "" {
		return Branch{}, fmt.Errorf("%w: empty branch name", ErrInvalidName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, participant, err := s.lookup(roomID, userID)
	if err != nil {
		return Branch{}, err
	}
	if !participant.Permissions().CanEdit {
		return Branch{}, ErrPermissionDenied
	}
	if _, exists := state.branches[name]; exists {
		return Branch{}, fmt.Errorf("%w: %s", ErrBranchExists, name)
	}
	if baseCommit == "" {
		baseCommit = state.branches[state.CurrentBranch].Head()
	}

	branch := &Branch{
		Name:       name,
		BaseCommit: baseCommit,
		Files:      state.fileContents(),
		CreatedBy:  userID,
		CreatedAt:  s.clock.Now(),
	}
	state.branches[name] = branch
	return branch.clone(), nil
}

// Commit records the session's current files on branchName.
func (s *Store) Commit(roomID, userID, branchName, message string) (Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, participant, err := s.lookup(roomID, userID)
	if err != nil {
		return Commit{}, err
	}
	if !participant.Permissions().CanEdit {
		return Commit{}, ErrPermissionDenied
	}
	if branchName == "" {
		branchName = state.CurrentBranch
	}
	branch, ok := state.branches[branchName]
	if !ok {
		return Commit{}, fmt.Errorf("%w: %s", ErrBranchNotFound, branchName)
	}

	now := s.clock.Now()
	files := state.fileContents()
	parent := branch.Head()
	commit := Commit{
		ID:        commitID(parent, userID, message, now, files),
		Parent:    parent,
		Author:    userID,
		Message:   message,
		Timestamp: now,
	}
	branch.Commits = append(branch.Commits, commit)
	branch.Files = files
	return commit, nil
}

// ChangeDriver makes targetID the driver. The previous driver becomes
// a navigator. Only a moderator or the current driver may hand off,
// and a moderator cannot be made driver.
func (s *Store) ChangeDriver(roomID, actorID, targetID string) ([]ParticipantSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, actor, err := s.lookup(roomID, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Moderates() && actor.Role != RoleDriver {
		return nil, ErrPermissionDenied
	}
	target, err := state.activeParticipant(targetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, targetID)
	}
	if target.Role.Moderates() {
		return nil, fmt.Errorf("%w: %s already moderates", ErrInvalidTarget, targetID)
	}

	var changed []*Participant
	for _, participant := range state.participants {
		if participant.Role == RoleDriver && participant != target {
			participant.Role = RoleNavigator
			changed = append(changed, participant)
		}
	}
	if target.Role != RoleDriver {
		target.Role = RoleDriver
		changed = append(changed, target)
	}
	return participantSnapshots(changed), nil
}

// ChangeRole sets targetID's role. Only a moderator may, and nobody
// can be given or stripped of the host role this way.
func (s *Store) ChangeRole(roomID, actorID, targetID string, role Role) (ParticipantSnapshot, error) {
	if !role.Valid() || role == RoleHost {
		return ParticipantSnapshot{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, actor, err := s.lookup(roomID, actorID)
	if err != nil {
		return ParticipantSnapshot{}, err
	}
	if !actor.Role.Moderates() {
		return ParticipantSnapshot{}, ErrPermissionDenied
	}
	target, ok := state.participants[targetID]
	if !ok {
		return ParticipantSnapshot{}, fmt.Errorf("%w: %s", ErrInvalidTarget, targetID)
	}
	if target.Role == RoleHost {
		return ParticipantSnapshot{}, fmt.Errorf("%w: cannot change the host's role", ErrInvalidTarget)
	}
	target.Role = role
	return ParticipantSnapshot{Participant: *target, Permissions: target.Permissions()}, nil
}

// AddChat appends a chat message from userID.
func (s *Store) AddChat(roomID, userID, text string) (ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, participant, err := s.lookup(roomID, userID)
	if err != nil {
		return ChatMessage{}, err
	}
	return state.chat.Append(ChatMessage{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: participant.DisplayName,
		Text:        text,
		Timestamp:   s.clock.Now(),
	}), nil
}

// ChatSince returns the retained chat of roomID after sequence.
func (s *Store) ChatSince(roomID string, sequence uint64) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[roomID]
	if !ok {
		return nil
	}
	return state.chat.Since(sequence)
}

// AddDrawing appends a whiteboard shape from userID.
func (s *Store) AddDrawing(roomID, userID string, shape json.RawMessage) (Drawing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, participant, err := s.lookup(roomID, userID)
	if err != nil {
		return Drawing{}, err
	}
	if !participant.Permissions().CanDraw {
		return Drawing{}, ErrPermissionDenied
	}
	drawing := Drawing{
		ID:        uuid.NewString(),
		Author:    userID,
		Shape:     append(json.RawMessage(nil), shape...),
		Timestamp: s.clock.Now(),
	}
	state.drawings = append(state.drawings, drawing)
	return drawing, nil
}

// Snapshot returns a deep copy of the session of roomID.
func (s *Store) Snapshot(roomID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[roomID]
	if !ok {
		return Snapshot{}, false
	}
	return state.snapshot(), true
}

// Participant returns userID's record in the session of roomID.
func (s *Store) Participant(roomID, userID string) (ParticipantSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[roomID]
	if !ok {
		return ParticipantSnapshot{}, false
	}
	participant, ok := state.participants[userID]
	if !ok {
		return ParticipantSnapshot{}, false
	}
	return ParticipantSnapshot{Participant: *participant, Permissions: participant.Permissions()}, true
}

// AutosaveDue returns snapshots of every autosaving session whose
// interval has elapsed since its last save, and marks them saved.
func (s *Store) AutosaveDue() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var due []Snapshot
	for _, state := range s.sessions {
		if !state.Settings.Autosave {
			continue
		}
		if now.Sub(state.lastSaved) < state.Settings.AutosaveInterval {
			continue
		}
		state.lastSaved = now
		due = append(due, state.snapshot())
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RoomID < due[j].RoomID })
	return due
}

// Exists reports whether roomID has a session.
func (s *Store) Exists(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[roomID]
	return ok
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func participantSnapshots(participants []*Participant) []ParticipantSnapshot {
	snapshots := make([]ParticipantSnapshot, 0, len(participants))
	for _, participant := range participants {
		snapshots = append(snapshots, ParticipantSnapshot{Participant: *participant, Permissions: participant.Permissions()})
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].UserID < snapshots[j].UserID })
	return snapshots
}
