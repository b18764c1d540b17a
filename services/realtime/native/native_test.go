// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package native

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/meetingcanvas/services/realtime/board"
	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/mindmap"
)

func event(id, text string) datatypes.TranscriptEvent {
	return datatypes.TranscriptEvent{EventID: id, Text: text, IsFinal: true}
}

func TestExtractItemsBucketsPrefixedLines(t *testing.T) {
	events := []datatypes.TranscriptEvent{
		event("e1", "Decision: ship on Friday"),
		event("e2", "action item - Dana books the venue"),
		event("e3", "Risk: vendor may slip\nNext step: confirm budget"),
		event("e4", "just chatting, nothing tagged"),
	}
	buckets := ExtractItems(events)

	require.Equal(t, []string{"ship on Friday"}, buckets["list-decisions"])
	require.Equal(t, []string{"Dana books the venue"}, buckets["list-actions"])
	require.Equal(t, []string{"vendor may slip"}, buckets["list-risks"])
	require.Equal(t, []string{"confirm budget"}, buckets["list-next-steps"])
	require.NotContains(t, buckets, "list-questions")
}

func TestSeedRectTwoColumnLayout(t *testing.T) {
	require.Equal(t, datatypes.Rect{X: 16, Y: 16, W: 420, H: 280}, SeedRect(0))
	require.Equal(t, datatypes.Rect{X: 452, Y: 16, W: 420, H: 280}, SeedRect(1))
	require.Equal(t, datatypes.Rect{X: 16, Y: 312, W: 420, H: 280}, SeedRect(2))
}

func TestSeedActionsOnlyForReferencedMissingCards(t *testing.T) {
	state := datatypes.EmptyBoardState()
	batch := []datatypes.BoardAction{
		{Type: datatypes.ActionUpdateCard, CardID: "list-decisions", Patch: map[string]any{}},
	}
	seeded := SeedActions(state, batch)
	require.Len(t, seeded, 1)
	require.Equal(t, datatypes.ActionCreateCard, seeded[0].Type)
	require.Equal(t, "list-decisions", seeded[0].Card.CardID)
	require.Equal(t, SeedRect(0), *seeded[0].Rect)

	// Not seeded when dismissed.
	state.Dismissed["list-decisions"] = "user closed it"
	require.Empty(t, SeedActions(state, batch))
}

func TestSeedActionsSkipsUnreferencedBatches(t *testing.T) {
	state := datatypes.EmptyBoardState()
	batch := []datatypes.BoardAction{
		{Type: datatypes.ActionMoveCard, CardID: "card-x", Rect: &datatypes.Rect{X: 1, Y: 1, W: 2, H: 2}},
	}
	require.Empty(t, SeedActions(state, batch))
}

func TestCreateOrUpdateActionsSeedsThenAppends(t *testing.T) {
	reducer := board.NewReducer()
	state := datatypes.EmptyBoardState()

	items := map[string][]string{"list-decisions": {"ship on Friday", "Ship on Friday."}}
	actions, next := CreateOrUpdateActions(reducer, state, items, 5)

	require.Len(t, actions, 1)
	require.Equal(t, datatypes.ActionCreateCard, actions[0].Type)
	card := next.Cards["list-decisions"]
	var props datatypes.ListCardProps
	require.NoError(t, json.Unmarshal(card.Props, &props))
	require.Len(t, props.Items, 1, "near-duplicate items collapse")
	require.Equal(t, "ship on Friday", props.Items[0].Text)

	// Second pass appends a genuinely new item to the existing card.
	more := map[string][]string{"list-decisions": {"ship on Friday", "hire a caterer"}}
	actions2, next2 := CreateOrUpdateActions(reducer, next, more, 5)
	require.Len(t, actions2, 1)
	require.Equal(t, datatypes.ActionUpdateCard, actions2[0].Type)
	require.NoError(t, json.Unmarshal(next2.Cards["list-decisions"].Props, &props))
	require.Len(t, props.Items, 2)
}

func TestCreateOrUpdateActionsHonorsItemBudget(t *testing.T) {
	reducer := board.NewReducer()
	state := datatypes.EmptyBoardState()

	items := map[string][]string{
		"list-decisions": {"one", "two", "three"},
		"list-actions":   {"four", "five"},
	}
	_, next := CreateOrUpdateActions(reducer, state, items, 3)

	total := 0
	for _, cardID := range []string{"list-decisions", "list-actions"} {
		card, ok := next.Cards[cardID]
		if !ok {
			continue
		}
		var props datatypes.ListCardProps
		require.NoError(t, json.Unmarshal(card.Props, &props))
		total += len(props.Items)
	}
	require.Equal(t, 3, total)
}

func TestCreateOrUpdateActionsSkipsDismissedCards(t *testing.T) {
	reducer := board.NewReducer()
	state := datatypes.EmptyBoardState()
	state.Dismissed["list-decisions"] = "closed"

	actions, next := CreateOrUpdateActions(reducer, state, map[string][]string{"list-decisions": {"x"}}, 5)
	require.Empty(t, actions)
	require.NotContains(t, next.Cards, "list-decisions")
}

func TestEnsureMindmapItemsAddsLeavesIdempotently(t *testing.T) {
	cfg := mindmap.NewConfig()
	state := datatypes.EmptyMindmapState(cfg.RootID)

	items := map[string][]string{"list-decisions": {"ship on Friday"}}
	actions, next := EnsureMindmapItems(state, cfg, items)
	require.NotEmpty(t, actions)

	leafID := mindmap.LeafNodeID("mm:decisions", "ship on Friday")
	leaf, ok := next.Nodes[leafID]
	require.True(t, ok)
	require.Equal(t, "mm:decisions", *leaf.ParentID)
	require.Contains(t, next.Layout, leafID)

	again, final := EnsureMindmapItems(next, cfg, items)
	require.Empty(t, again)
	require.Equal(t, next, final)
}
