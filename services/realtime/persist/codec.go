// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persist

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

// Well-known keys. Values under these keys are JSON documents.
const (
	BoardStateKey      = "board_state"
	MindmapStateKey    = "mindmap_state"
	DefaultLocationKey = "default_location"
	NoBrowseKey        = "no_browse"
	MindmapAIKey       = "mindmap_ai"
)

// AllKeys lists every key a clear removes.
func AllKeys() []string {
	return []string{BoardStateKey, MindmapStateKey, DefaultLocationKey, NoBrowseKey, MindmapAIKey}
}

// Snapshot is the durable slice of session state.
type Snapshot struct {
	BoardState      datatypes.BoardState
	MindmapState    datatypes.MindmapState
	DefaultLocation *string
	NoBrowse        *bool
	MindmapAI       *bool
}

// Encode serializes the snapshot into per-key JSON documents.
func Encode(snap Snapshot) (map[string][]byte, error) {
	board, err := json.Marshal(snap.BoardState)
	if err != nil {
		return nil, fmt.Errorf("encode board state: %w", err)
	}
	mindmap, err := json.Marshal(snap.MindmapState)
	if err != nil {
		return nil, fmt.Errorf("encode mindmap state: %w", err)
	}
	location, err := json.Marshal(snap.DefaultLocation)
	if err != nil {
		return nil, fmt.Errorf("encode default location: %w", err)
	}
	noBrowse, err := json.Marshal(snap.NoBrowse)
	if err != nil {
		return nil, fmt.Errorf("encode no_browse: %w", err)
	}
	mindmapAI, err := json.Marshal(snap.MindmapAI)
	if err != nil {
		return nil, fmt.Errorf("encode mindmap_ai: %w", err)
	}
	return map[string][]byte{
		BoardStateKey:      board,
		MindmapStateKey:    mindmap,
		DefaultLocationKey: location,
		NoBrowseKey:        noBrowse,
		MindmapAIKey:       mindmapAI,
	}, nil
}

// Load reads every well-known key from the store. Absent or malformed
// values fall back to the given defaults: a restart never fails because
// of a bad persisted document.
func Load(store KVStore, rootID string) (Snapshot, error) {
	snap := Snapshot{
		BoardState:   datatypes.EmptyBoardState(),
		MindmapState: datatypes.EmptyMindmapState(rootID),
	}

	if raw, ok, err := store.Get(BoardStateKey); err != nil {
		return snap, err
	} else if ok {
		var state datatypes.BoardState
		if json.Unmarshal(raw, &state) == nil && state.Cards != nil {
			snap.BoardState = state
		}
	}

	if raw, ok, err := store.Get(MindmapStateKey); err != nil {
		return snap, err
	} else if ok {
		var state datatypes.MindmapState
		if json.Unmarshal(raw, &state) == nil && state.Nodes != nil && state.RootID != "" {
			snap.MindmapState = state
		}
	}

	if raw, ok, err := store.Get(DefaultLocationKey); err != nil {
		return snap, err
	} else if ok {
		var value *string
		if json.Unmarshal(raw, &value) == nil && value != nil && strings.TrimSpace(*value) != "" {
			snap.DefaultLocation = value
		}
	}

	if raw, ok, err := store.Get(NoBrowseKey); err != nil {
		return snap, err
	} else if ok {
		var value *bool
		if json.Unmarshal(raw, &value) == nil {
			snap.NoBrowse = value
		}
	}

	if raw, ok, err := store.Get(MindmapAIKey); err != nil {
		return snap, err
	} else if ok {
		var value *bool
		if json.Unmarshal(raw, &value) == nil {
			snap.MindmapAI = value
		}
	}

	return snap, nil
}

// Empty reports whether the snapshot carries nothing worth restoring.
func (s Snapshot) Empty() bool {
	return len(s.BoardState.Cards) == 0 &&
		len(s.BoardState.Layout) == 0 &&
		len(s.BoardState.Dismissed) == 0 &&
		len(s.MindmapState.Nodes) == 0 &&
		s.DefaultLocation == nil &&
		s.NoBrowse == nil &&
		s.MindmapAI == nil
}
