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
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SetMany(map[string][]byte{
		"a": []byte(`1`),
		"b": []byte(`"two"`),
	}))
	raw, ok, err := store.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`1`), raw)

	require.NoError(t, store.DeleteMany([]string{"a", "missing"}))
	_, ok, err = store.Get("a")
	require.NoError(t, err)
	require.False(t, ok)
}

func sampleSnapshot(t *testing.T) Snapshot {
	t.Helper()
	props, err := json.Marshal(datatypes.ListCardProps{Title: "Decisions"})
	require.NoError(t, err)
	board := datatypes.EmptyBoardState()
	board.Cards["list-decisions"] = datatypes.Card{
		CardID: "list-decisions",
		Kind:   datatypes.CardKindList,
		Props:  props,
	}
	location := "Portland"
	yes := true
	return Snapshot{
		BoardState:      board,
		MindmapState:    datatypes.EmptyMindmapState("mm:root"),
		DefaultLocation: &location,
		NoBrowse:        &yes,
	}
}

func TestEncodeLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	snap := sampleSnapshot(t)

	values, err := Encode(snap)
	require.NoError(t, err)
	require.NoError(t, store.SetMany(values))

	loaded, err := Load(store, "mm:root")
	require.NoError(t, err)
	require.Contains(t, loaded.BoardState.Cards, "list-decisions")
	require.Equal(t, "Portland", *loaded.DefaultLocation)
	require.True(t, *loaded.NoBrowse)
	require.Nil(t, loaded.MindmapAI)
	require.False(t, loaded.Empty())
}

func TestLoadToleratesMalformedValues(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SetMany(map[string][]byte{
		BoardStateKey:      []byte(`{not json`),
		DefaultLocationKey: []byte(`"   "`),
	}))

	loaded, err := Load(store, "mm:root")
	require.NoError(t, err)
	require.Empty(t, loaded.BoardState.Cards)
	require.Nil(t, loaded.DefaultLocation)
	require.True(t, loaded.Empty())
}

// snapshotSource hands out a mutable snapshot under a lock, standing in
// for the live session store.
type snapshotSource struct {
	mu   sync.Mutex
	snap Snapshot
}

func (s *snapshotSource) get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *snapshotSource) set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestDebouncedPersisterWritesFreshSnapshot(t *testing.T) {
	store := openTestStore(t)
	source := &snapshotSource{snap: Snapshot{
		BoardState:   datatypes.EmptyBoardState(),
		MindmapState: datatypes.EmptyMindmapState("mm:root"),
	}}

	persister := NewDebouncedPersister(store, source.get, 20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go persister.Run(ctx)

	persister.ScheduleSave()
	// Mutate during the debounce window; the flush must carry it.
	source.set(sampleSnapshot(t))

	waitFor(t, func() bool {
		raw, ok, err := store.Get(BoardStateKey)
		if err != nil || !ok {
			return false
		}
		var state datatypes.BoardState
		if json.Unmarshal(raw, &state) != nil {
			return false
		}
		_, present := state.Cards["list-decisions"]
		return present
	})
}

func TestDebouncedPersisterClearWinsOverSave(t *testing.T) {
	store := openTestStore(t)
	source := &snapshotSource{snap: sampleSnapshot(t)}

	persister := NewDebouncedPersister(store, source.get, 10*time.Millisecond, nil)
	require.NoError(t, persister.SaveNow())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go persister.Run(ctx)

	persister.ScheduleSave()
	persister.ScheduleClear()

	waitFor(t, func() bool {
		_, ok, err := store.Get(BoardStateKey)
		return err == nil && !ok
	})

	// Nothing reappears afterwards: the save was cancelled, not delayed.
	time.Sleep(50 * time.Millisecond)
	_, ok, err := store.Get(BoardStateKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveNowBypassesDebounce(t *testing.T) {
	store := openTestStore(t)
	source := &snapshotSource{snap: sampleSnapshot(t)}
	persister := NewDebouncedPersister(store, source.get, time.Hour, nil)

	require.NoError(t, persister.SaveNow())
	_, ok, err := store.Get(BoardStateKey)
	require.NoError(t, err)
	require.True(t, ok)
}
