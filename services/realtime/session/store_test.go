// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/meetingcanvas/services/realtime/board"
	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

type fakeClient struct {
	payloads []any
	fail     bool
}

func (c *fakeClient) SendJSON(payload any) error {
	if c.fail {
		return errors.New("gone")
	}
	c.payloads = append(c.payloads, payload)
	return nil
}

type fakePersister struct {
	saves  int
	clears int
}

func (p *fakePersister) ScheduleSave()  { p.saves++ }
func (p *fakePersister) ScheduleClear() { p.clears++ }

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(DefaultConfig(), board.NewReducer(), "mm:root", nil)
}

func listCreate(t *testing.T, id, title string) datatypes.BoardAction {
	t.Helper()
	raw, err := json.Marshal(datatypes.ListCardProps{Title: title})
	require.NoError(t, err)
	card := datatypes.Card{CardID: id, Kind: datatypes.CardKindList, Props: raw}
	return datatypes.BoardAction{Type: datatypes.ActionCreateCard, Card: &card}
}

func TestAddTranscriptEventReplacesByEventID(t *testing.T) {
	store := newStore(t)
	store.AddTranscriptEvent(datatypes.TranscriptEvent{EventID: "e1", Text: "draft wording"})
	store.AddTranscriptEvent(datatypes.TranscriptEvent{EventID: "e1", Text: "final wording", IsFinal: true})

	_, events, _ := store.BoardSnapshot()
	require.Len(t, events, 1)
	require.Equal(t, "final wording", events[0].Text)
	require.True(t, events[0].IsFinal)
}

func TestAddTranscriptEventSuppressesConsecutiveDuplicate(t *testing.T) {
	store := newStore(t)
	store.AddTranscriptEvent(datatypes.TranscriptEvent{Speaker: "Dana", Text: "Hello there."})
	store.AddTranscriptEvent(datatypes.TranscriptEvent{Speaker: "dana", Text: "  hello  there. "})

	_, events, _ := store.BoardSnapshot()
	require.Len(t, events, 1)

	// Normalization is case and whitespace only; trailing punctuation
	// makes a different event.
	store.AddTranscriptEvent(datatypes.TranscriptEvent{Speaker: "dana", Text: "hello there"})
	_, events, _ = store.BoardSnapshot()
	require.Len(t, events, 2)

	// A different speaker saying the same words is kept.
	store.AddTranscriptEvent(datatypes.TranscriptEvent{Speaker: "Lee", Text: "hello there"})
	_, events, _ = store.BoardSnapshot()
	require.Len(t, events, 3)
}

func TestAddTranscriptEventEnforcesBounds(t *testing.T) {
	store := New(Config{TranscriptMaxEvents: 3, TranscriptMaxAge: time.Hour}, board.NewReducer(), "mm:root", nil)
	for _, text := range []string{"a", "b", "c", "d"} {
		store.AddTranscriptEvent(datatypes.TranscriptEvent{Text: text})
	}
	_, events, _ := store.BoardSnapshot()
	require.Len(t, events, 3)
	require.Equal(t, "b", events[0].Text)
}

func TestAddTranscriptEventEvictsByAge(t *testing.T) {
	store := New(Config{TranscriptMaxEvents: 50, TranscriptMaxAge: 120 * time.Second}, board.NewReducer(), "mm:root", nil)
	base := time.Now()
	current := base
	store.now = func() time.Time { return current }

	store.AddTranscriptEvent(datatypes.TranscriptEvent{Text: "old"})
	current = base.Add(121 * time.Second)
	store.AddTranscriptEvent(datatypes.TranscriptEvent{Text: "new"})

	_, events, _ := store.BoardSnapshot()
	require.Len(t, events, 1)
	require.Equal(t, "new", events[0].Text)
}

func TestApplyBoardVersionConflict(t *testing.T) {
	store := newStore(t)
	version, _, _ := store.BoardSnapshot()

	// A concurrent write advances the version between snapshot and apply.
	store.ApplyBoardNow([]datatypes.BoardAction{listCreate(t, "card-1", "First")})

	_, ok := store.ApplyBoard(version, []datatypes.BoardAction{listCreate(t, "card-2", "Second")})
	require.False(t, ok)

	_, _, state := store.BoardSnapshot()
	require.Contains(t, state.Cards, "card-1")
	require.NotContains(t, state.Cards, "card-2")

	// Retrying against the fresh version succeeds.
	freshVersion, _, _ := store.BoardSnapshot()
	next, ok := store.ApplyBoard(freshVersion, []datatypes.BoardAction{listCreate(t, "card-2", "Second")})
	require.True(t, ok)
	require.Contains(t, next.Cards, "card-2")
}

func TestBroadcastEvictsFailedClients(t *testing.T) {
	store := newStore(t)
	good := &fakeClient{}
	bad := &fakeClient{fail: true}
	store.AddClient(good)
	store.AddClient(bad)

	store.Status("hello")
	require.Len(t, good.payloads, 1)

	// The failed client is gone; only the good one receives the next send.
	store.Status("again")
	require.Len(t, good.payloads, 2)
}

func TestResetClearsEverythingAndSchedulesClear(t *testing.T) {
	store := newStore(t)
	persister := &fakePersister{}
	store.SetPersister(persister)

	store.AddTranscriptEvent(datatypes.TranscriptEvent{Text: "hello"})
	store.ApplyBoardNow([]datatypes.BoardAction{listCreate(t, "card-1", "First")})
	store.SetDefaultLocation("Austin")
	yes := true
	store.SetNoBrowseOverride(&yes)

	boardVersion, _, _ := store.BoardSnapshot()
	store.Reset()

	newVersion, events, state := store.BoardSnapshot()
	require.Empty(t, events)
	require.Empty(t, state.Cards)
	require.Greater(t, newVersion, boardVersion)
	require.Nil(t, store.DefaultLocation())
	require.Nil(t, store.NoBrowseOverride())
	require.Equal(t, 1, persister.clears)
}

func TestUpdateMindmapInstallsResultOnlyWithActions(t *testing.T) {
	store := newStore(t)

	_, _, ok := store.UpdateMindmap(func(_ []datatypes.TranscriptEvent, state datatypes.MindmapState) ([]datatypes.MindmapAction, datatypes.MindmapState) {
		return nil, state
	})
	require.False(t, ok)

	parent := "mm:root"
	actions, next, ok := store.UpdateMindmap(func(_ []datatypes.TranscriptEvent, state datatypes.MindmapState) ([]datatypes.MindmapAction, datatypes.MindmapState) {
		node := datatypes.MindmapNode{NodeID: "mm:root", Text: "Mindmap"}
		child := datatypes.MindmapNode{NodeID: "n1", ParentID: &parent, Text: "topic"}
		out := state.Clone()
		out.Nodes[node.NodeID] = node
		out.Nodes[child.NodeID] = child
		return []datatypes.MindmapAction{
			{Type: datatypes.ActionUpsertNode, Node: &node},
			{Type: datatypes.ActionUpsertNode, Node: &child},
		}, out
	})
	require.True(t, ok)
	require.Len(t, actions, 2)
	require.Contains(t, next.Nodes, "n1")
	require.Equal(t, next, store.MindmapState())
}

func TestExportAndReplaceBoardState(t *testing.T) {
	store := newStore(t)
	store.ApplyBoardNow([]datatypes.BoardAction{listCreate(t, "card-1", "First")})
	loc := "Boston"
	store.SetDefaultLocation(loc)

	snap := store.Export()
	require.Contains(t, snap.BoardState.Cards, "card-1")
	require.Equal(t, "Boston", *snap.DefaultLocation)

	fresh := newStore(t)
	fresh.ReplaceBoardState(snap.BoardState, ReplaceOptions{
		HasDefaultLocation: true,
		DefaultLocation:    snap.DefaultLocation,
	})
	_, _, state := fresh.BoardSnapshot()
	require.Contains(t, state.Cards, "card-1")
	require.Equal(t, "Boston", *fresh.DefaultLocation())
}

func TestPersisterSaveScheduledOnMutation(t *testing.T) {
	store := newStore(t)
	persister := &fakePersister{}
	store.SetPersister(persister)

	store.ApplyBoardNow(nil)
	store.ApplyMindmapNow(nil)
	store.SetMindmapAIOverride(nil)
	require.Equal(t, 3, persister.saves)
}
