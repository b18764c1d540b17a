// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds the authoritative per-process meeting state: the
// rolling transcript window, the board and mindmap states with their
// version counters, session-scoped overrides, and the registry of
// connected websocket clients.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/meetingcanvas/services/realtime/board"
	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/mindmap"
	"github.com/AleutianAI/meetingcanvas/services/realtime/observability"
	"github.com/AleutianAI/meetingcanvas/services/realtime/textmatch"
)

// Client is a connected consumer of state broadcasts. SendJSON must be
// safe to call from any goroutine.
type Client interface {
	SendJSON(payload any) error
}

// Persister receives durability hints. Both methods must be non-blocking;
// the store calls them while holding no locks.
type Persister interface {
	ScheduleSave()
	ScheduleClear()
}

// Config bounds the transcript ring.
type Config struct {
	// TranscriptMaxEvents caps the ring length.
	TranscriptMaxEvents int

	// TranscriptMaxAge evicts events older than this on every append.
	TranscriptMaxAge time.Duration
}

// DefaultConfig returns the transcript window bounds used in production.
func DefaultConfig() Config {
	return Config{
		TranscriptMaxEvents: 50,
		TranscriptMaxAge:    120 * time.Second,
	}
}

type timedEvent struct {
	at    time.Time
	event datatypes.TranscriptEvent
}

// Store is the lock-guarded session state. All methods are safe for
// concurrent use. The client registry has its own lock so a slow
// broadcast never blocks state mutation.
//
// # Thread Safety
//
// stateMu guards everything below it; clientsMu guards only the client
// set. Neither is ever held while calling out to a Client or the
// Persister.
type Store struct {
	cfg       Config
	reducer   *board.Reducer
	rootID    string
	persister Persister
	logger    *slog.Logger
	now       func() time.Time

	clientsMu sync.Mutex
	clients   map[Client]struct{}

	stateMu           sync.Mutex
	transcript        []timedEvent
	transcriptVersion int
	boardState        datatypes.BoardState
	boardVersion      int
	mindmapState      datatypes.MindmapState
	mindmapVersion    int
	defaultLocation   *string
	noBrowse          *bool
	mindmapAI         *bool
}

// New returns an empty Store. rootID seeds the empty mindmap state.
func New(cfg Config, reducer *board.Reducer, rootID string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cfg:          cfg,
		reducer:      reducer,
		rootID:       rootID,
		logger:       logger,
		now:          time.Now,
		clients:      map[Client]struct{}{},
		boardState:   datatypes.EmptyBoardState(),
		mindmapState: datatypes.EmptyMindmapState(rootID),
	}
}

// SetPersister attaches the durability hook. Call before serving traffic.
func (s *Store) SetPersister(p Persister) {
	s.persister = p
}

func (s *Store) scheduleSave() {
	if s.persister != nil {
		s.persister.ScheduleSave()
	}
}

// === Client registry ===

// AddClient registers a broadcast recipient.
func (s *Store) AddClient(c Client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[c] = struct{}{}
}

// RemoveClient unregisters a recipient. Unknown clients are ignored.
func (s *Store) RemoveClient(c Client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, c)
}

// Broadcast sends payload to every registered client, best effort.
// Clients whose send fails are evicted.
func (s *Store) Broadcast(payload any) {
	if m := observability.DefaultMetrics; m != nil {
		m.BroadcastsTotal.WithLabelValues(payloadType(payload)).Inc()
	}

	s.clientsMu.Lock()
	clients := make([]Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	var failed []Client
	for _, c := range clients {
		if err := c.SendJSON(payload); err != nil {
			failed = append(failed, c)
		}
	}
	if len(failed) == 0 {
		return
	}
	s.clientsMu.Lock()
	for _, c := range failed {
		delete(s.clients, c)
	}
	s.clientsMu.Unlock()
	s.logger.Debug("evicted unreachable clients", "count", len(failed))
}

func payloadType(payload any) string {
	switch p := payload.(type) {
	case datatypes.BoardActionsPayload:
		return p.Type
	case datatypes.MindmapActionsPayload:
		return p.Type
	case datatypes.MindmapStatusPayload:
		return p.Type
	case map[string]any:
		if t, ok := p["type"].(string); ok {
			return t
		}
	}
	return "other"
}

// Status broadcasts a human-readable status line.
func (s *Store) Status(message string) {
	s.Broadcast(map[string]any{"type": "status", "message": message})
}

// Error broadcasts an error line, with optional structured details.
func (s *Store) Error(message string, details map[string]any) {
	payload := map[string]any{"type": "error", "message": message}
	if details != nil {
		payload["details"] = details
	}
	s.Broadcast(payload)
}

// === Transcript ===

// AddTranscriptEvent appends an event to the rolling window. An event
// carrying an already-seen event_id replaces that entry in place (interim
// to final promotion). An id-less event identical to the newest entry
// (same speaker, same normalized text) is dropped. Age and length bounds
// are enforced on every call.
func (s *Store) AddTranscriptEvent(event datatypes.TranscriptEvent) {
	now := s.now()
	cutoff := now.Add(-s.cfg.TranscriptMaxAge)

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	replaced := false
	if event.EventID != "" {
		for idx := range s.transcript {
			if s.transcript[idx].event.EventID == event.EventID {
				s.transcript[idx].event = event
				s.transcriptVersion++
				replaced = true
				break
			}
		}
	}

	if !replaced {
		if event.EventID == "" && len(s.transcript) > 0 {
			last := s.transcript[len(s.transcript)-1].event
			if textmatch.NormalizeSpeaker(last.Speaker) == textmatch.NormalizeSpeaker(event.Speaker) &&
				textmatch.NormalizeTranscriptText(last.Text) == textmatch.NormalizeTranscriptText(event.Text) {
				return
			}
		}
		s.transcript = append(s.transcript, timedEvent{at: now, event: event})
		s.transcriptVersion++
	}

	for len(s.transcript) > 0 && s.transcript[0].at.Before(cutoff) {
		s.transcript = s.transcript[1:]
	}
	for len(s.transcript) > s.cfg.TranscriptMaxEvents {
		s.transcript = s.transcript[1:]
	}
}

func (s *Store) transcriptEventsLocked() []datatypes.TranscriptEvent {
	events := make([]datatypes.TranscriptEvent, 0, len(s.transcript))
	for _, te := range s.transcript {
		events = append(events, te.event)
	}
	return events
}

// === Snapshots ===

// BoardSnapshot returns the board version, the transcript window, and
// the board state, read atomically.
func (s *Store) BoardSnapshot() (int, []datatypes.TranscriptEvent, datatypes.BoardState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.boardVersion, s.transcriptEventsLocked(), s.boardState
}

// MindmapSnapshot returns the mindmap version, the transcript version,
// the transcript window, the mindmap state, and the session's mindmap-AI
// override, read atomically.
func (s *Store) MindmapSnapshot() (int, int, []datatypes.TranscriptEvent, datatypes.MindmapState, *bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.mindmapVersion, s.transcriptVersion, s.transcriptEventsLocked(), s.mindmapState, s.mindmapAI
}

// MindmapState returns the current mindmap state.
func (s *Store) MindmapState() datatypes.MindmapState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.mindmapState
}

// TranscriptVersion returns the transcript change counter.
func (s *Store) TranscriptVersion() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.transcriptVersion
}

// === Board mutation ===

// ApplyBoard applies actions only if the board version still equals
// expectedVersion. It returns the new state and true on success, or the
// zero state and false on a version conflict (state unchanged).
func (s *Store) ApplyBoard(expectedVersion int, actions []datatypes.BoardAction) (datatypes.BoardState, bool) {
	s.stateMu.Lock()
	if s.boardVersion != expectedVersion {
		s.stateMu.Unlock()
		return datatypes.BoardState{}, false
	}
	next := s.boardState
	for _, action := range actions {
		next = s.reducer.Apply(next, action)
	}
	s.boardState = next
	s.boardVersion++
	s.stateMu.Unlock()

	s.scheduleSave()
	return next, true
}

// ApplyBoardNow applies actions unconditionally and returns the new
// version and state.
func (s *Store) ApplyBoardNow(actions []datatypes.BoardAction) (int, datatypes.BoardState) {
	s.stateMu.Lock()
	next := s.boardState
	for _, action := range actions {
		next = s.reducer.Apply(next, action)
	}
	s.boardState = next
	s.boardVersion++
	version := s.boardVersion
	s.stateMu.Unlock()

	s.scheduleSave()
	return version, next
}

// === Mindmap mutation ===

// ApplyMindmapNow applies actions unconditionally and returns the new
// version and state.
func (s *Store) ApplyMindmapNow(actions []datatypes.MindmapAction) (int, datatypes.MindmapState) {
	s.stateMu.Lock()
	next := s.mindmapState
	for _, action := range actions {
		next = mindmap.Apply(next, action)
	}
	s.mindmapState = next
	s.mindmapVersion++
	version := s.mindmapVersion
	s.stateMu.Unlock()

	s.scheduleSave()
	return version, next
}

// UpdateMindmap runs fn against the transcript window and mindmap state
// under the lock and installs fn's result. When fn produces no actions
// the state is untouched and ok is false.
func (s *Store) UpdateMindmap(fn func(events []datatypes.TranscriptEvent, state datatypes.MindmapState) ([]datatypes.MindmapAction, datatypes.MindmapState)) ([]datatypes.MindmapAction, datatypes.MindmapState, bool) {
	s.stateMu.Lock()
	actions, next := fn(s.transcriptEventsLocked(), s.mindmapState)
	if len(actions) == 0 {
		s.stateMu.Unlock()
		return nil, datatypes.MindmapState{}, false
	}
	s.mindmapState = next
	s.mindmapVersion++
	s.stateMu.Unlock()

	s.scheduleSave()
	return actions, next, true
}

// === Overrides ===

// DefaultLocation returns the session's default research location, or
// nil when unset.
func (s *Store) DefaultLocation() *string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.defaultLocation
}

// SetDefaultLocation stores the default research location.
func (s *Store) SetDefaultLocation(value string) {
	s.stateMu.Lock()
	s.defaultLocation = &value
	s.stateMu.Unlock()
	s.scheduleSave()
}

// NoBrowseOverride returns the session's browsing override: nil means
// follow the server default.
func (s *Store) NoBrowseOverride() *bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.noBrowse
}

// SetNoBrowseOverride stores the browsing override; nil clears it.
func (s *Store) SetNoBrowseOverride(value *bool) {
	s.stateMu.Lock()
	s.noBrowse = value
	s.stateMu.Unlock()
	s.scheduleSave()
}

// MindmapAIOverride returns the session's mindmap extractor override:
// nil means follow the server default.
func (s *Store) MindmapAIOverride() *bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.mindmapAI
}

// SetMindmapAIOverride stores the extractor override; nil clears it.
func (s *Store) SetMindmapAIOverride(value *bool) {
	s.stateMu.Lock()
	s.mindmapAI = value
	s.stateMu.Unlock()
	s.scheduleSave()
}

// === Export / import / reset ===

// ExportSnapshot is the durable-or-exportable slice of session state.
type ExportSnapshot struct {
	BoardState      datatypes.BoardState
	MindmapState    datatypes.MindmapState
	DefaultLocation *string
	NoBrowse        *bool
	MindmapAI       *bool
}

// Export returns the exportable state, read atomically.
func (s *Store) Export() ExportSnapshot {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return ExportSnapshot{
		BoardState:      s.boardState,
		MindmapState:    s.mindmapState,
		DefaultLocation: s.defaultLocation,
		NoBrowse:        s.noBrowse,
		MindmapAI:       s.mindmapAI,
	}
}

// ReplaceOptions controls which overrides an import touches. An import
// payload that omits a field leaves the current override alone.
type ReplaceOptions struct {
	HasDefaultLocation bool
	DefaultLocation    *string
	HasNoBrowse        bool
	NoBrowse           *bool
}

// ReplaceBoardState swaps in an imported board state wholesale and bumps
// the board version.
func (s *Store) ReplaceBoardState(state datatypes.BoardState, opts ReplaceOptions) datatypes.BoardState {
	s.stateMu.Lock()
	s.boardState = state
	if opts.HasDefaultLocation {
		s.defaultLocation = opts.DefaultLocation
	}
	if opts.HasNoBrowse {
		s.noBrowse = opts.NoBrowse
	}
	s.boardVersion++
	s.stateMu.Unlock()

	s.scheduleSave()
	return state
}

// Restore installs previously persisted state without bumping versions
// past one generation. Intended for process startup, before clients
// connect.
func (s *Store) Restore(snap ExportSnapshot) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.boardState = snap.BoardState
	s.mindmapState = snap.MindmapState
	if s.mindmapState.Nodes == nil {
		s.mindmapState = datatypes.EmptyMindmapState(s.rootID)
	}
	if s.boardState.Cards == nil {
		s.boardState = datatypes.EmptyBoardState()
	}
	s.defaultLocation = snap.DefaultLocation
	s.noBrowse = snap.NoBrowse
	s.mindmapAI = snap.MindmapAI
	s.boardVersion++
	s.mindmapVersion++
}

// Reset drops every piece of session state and schedules a durable
// clear. Version counters advance so in-flight optimistic writes fail.
func (s *Store) Reset() {
	s.stateMu.Lock()
	s.transcript = nil
	s.transcriptVersion++
	s.boardState = datatypes.EmptyBoardState()
	s.mindmapState = datatypes.EmptyMindmapState(s.rootID)
	s.defaultLocation = nil
	s.noBrowse = nil
	s.mindmapAI = nil
	s.boardVersion++
	s.mindmapVersion++
	s.stateMu.Unlock()

	if s.persister != nil {
		s.persister.ScheduleClear()
	}
}
