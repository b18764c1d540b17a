// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package native maintains the fixed meeting-native artifacts: the five
// well-known list cards (Decisions, Action Items, Open Questions,
// Risks / Blockers, Next Steps) and their mirror categories in the
// mindmap. Items are extracted from transcript lines with simple
// prefix patterns, so the pipeline works with no model in the loop.
package native

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/AleutianAI/meetingcanvas/services/realtime/board"
	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/mindmap"
	"github.com/AleutianAI/meetingcanvas/services/realtime/textmatch"
)

// ListCard is one of the fixed meeting-native list cards.
type ListCard struct {
	CardID string
	Title  string
}

// BaseListCards is the fixed card catalog, in seed order. The order
// decides each card's slot in the 2-column auto layout.
var BaseListCards = []ListCard{
	{CardID: "list-decisions", Title: "Decisions"},
	{CardID: "list-actions", Title: "Action Items"},
	{CardID: "list-questions", Title: "Open Questions"},
	{CardID: "list-risks", Title: "Risks / Blockers"},
	{CardID: "list-next-steps", Title: "Next Steps"},
}

// BaseListCardIDs returns the card-id set, for rate-limit bypass checks.
func BaseListCardIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(BaseListCards))
	for _, card := range BaseListCards {
		ids[card.CardID] = struct{}{}
	}
	return ids
}

// extractPatterns match spoken prefixes like "Decision: ..." at the start
// of a transcript line. First match wins per line.
var extractPatterns = []struct {
	cardID  string
	pattern *regexp.Regexp
}{
	{"list-decisions", regexp.MustCompile(`(?i)^\s*(?:decision|decisions)\s*[:\-–]\s*(.+)$`)},
	{"list-actions", regexp.MustCompile(`(?i)^\s*(?:action item|action items|action)\s*[:\-–]\s*(.+)$`)},
	{"list-questions", regexp.MustCompile(`(?i)^\s*(?:open question|open questions|question|questions)\s*[:\-–]\s*(.+)$`)},
	{"list-risks", regexp.MustCompile(`(?i)^\s*(?:risk|risks|blocker|blockers|risk\s*/\s*blocker)\s*[:\-–]\s*(.+)$`)},
	{"list-next-steps", regexp.MustCompile(`(?i)^\s*(?:next step|next steps)\s*[:\-–]\s*(.+)$`)},
}

// ExtractItems scans transcript events line by line and buckets prefixed
// statements by target card id. Cards with no hits are omitted.
func ExtractItems(events []datatypes.TranscriptEvent) map[string][]string {
	buckets := map[string][]string{}
	for _, event := range events {
		if strings.TrimSpace(event.Text) == "" {
			continue
		}
		for _, rawLine := range strings.Split(event.Text, "\n") {
			line := strings.TrimSpace(rawLine)
			if line == "" {
				continue
			}
			for _, entry := range extractPatterns {
				match := entry.pattern.FindStringSubmatch(line)
				if match == nil {
					continue
				}
				if item := strings.TrimSpace(match[1]); item != "" {
					buckets[entry.cardID] = append(buckets[entry.cardID], item)
				}
				break
			}
		}
	}
	return buckets
}

// SeedRect mirrors the frontend's 2-column auto layout for slot index.
func SeedRect(index int) datatypes.Rect {
	const (
		gutter = 16
		w      = 420
		h      = 280
	)
	col := index % 2
	row := index / 2
	return datatypes.Rect{
		X: gutter + float64(col)*(w+gutter),
		Y: gutter + float64(row)*(h+gutter),
		W: w,
		H: h,
	}
}

func emptyListCard(cardID, title string, items []datatypes.ListItem) (datatypes.Card, error) {
	raw, err := json.Marshal(datatypes.ListCardProps{Title: title, Items: items})
	if err != nil {
		return datatypes.Card{}, err
	}
	return datatypes.Card{
		CardID:  cardID,
		Kind:    datatypes.CardKindList,
		Props:   raw,
		Sources: []datatypes.Citation{},
	}, nil
}

// SeedActions returns creates for any base list card a planner batch
// references but that does not yet exist on the board. Cards already
// created in the batch, present, or dismissed are skipped.
func SeedActions(state datatypes.BoardState, actions []datatypes.BoardAction) []datatypes.BoardAction {
	createIDs := map[string]struct{}{}
	referenced := map[string]struct{}{}
	ids := BaseListCardIDs()
	for _, action := range actions {
		switch action.Type {
		case datatypes.ActionCreateCard:
			if action.Card == nil {
				continue
			}
			createIDs[action.Card.CardID] = struct{}{}
			if _, ok := ids[action.Card.CardID]; ok {
				referenced[action.Card.CardID] = struct{}{}
			}
		case datatypes.ActionUpdateCard:
			if _, ok := ids[action.CardID]; ok {
				referenced[action.CardID] = struct{}{}
			}
		}
	}
	if len(referenced) == 0 {
		return nil
	}

	var seeded []datatypes.BoardAction
	for idx, base := range BaseListCards {
		if _, ok := referenced[base.CardID]; !ok {
			continue
		}
		if _, ok := createIDs[base.CardID]; ok {
			continue
		}
		if _, ok := state.Cards[base.CardID]; ok {
			continue
		}
		if _, ok := state.Dismissed[base.CardID]; ok {
			continue
		}
		card, err := emptyListCard(base.CardID, base.Title, []datatypes.ListItem{})
		if err != nil {
			continue
		}
		rect := SeedRect(idx)
		seeded = append(seeded, datatypes.BoardAction{
			Type: datatypes.ActionCreateCard,
			Card: &card,
			Rect: &rect,
		})
	}
	return seeded
}

// listItemsOf decodes the items of an existing list card, or nil.
func listItemsOf(card datatypes.Card) []datatypes.ListItem {
	if card.Kind != datatypes.CardKindList {
		return nil
	}
	var props datatypes.ListCardProps
	if err := json.Unmarshal(card.Props, &props); err != nil {
		return nil
	}
	return props.Items
}

func listItemsToPatch(items []datatypes.ListItem) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		entry := map[string]any{"text": item.Text}
		if item.URL != "" {
			entry["url"] = item.URL
		}
		if item.Meta != "" {
			entry["meta"] = item.Meta
		}
		out = append(out, entry)
	}
	return out
}

// updateActions appends new, non-duplicate items to existing base list
// cards, consuming at most maxNewItems across all cards. remaining is
// returned so callers can split the budget with card creation.
func updateActions(state datatypes.BoardState, itemsByCardID map[string][]string, maxNewItems int) ([]datatypes.BoardAction, int) {
	remaining := maxNewItems
	if remaining <= 0 {
		return nil, 0
	}

	var updates []datatypes.BoardAction
	for _, base := range BaseListCards {
		if remaining <= 0 {
			break
		}
		items := itemsByCardID[base.CardID]
		if len(items) == 0 {
			continue
		}
		existing, ok := state.Cards[base.CardID]
		if !ok || existing.Kind != datatypes.CardKindList {
			continue
		}

		existingItems := listItemsOf(existing)
		seen := map[string]struct{}{}
		for _, item := range existingItems {
			if key := textmatch.NormalizeListItemText(item.Text); key != "" {
				seen[key] = struct{}{}
			}
		}

		nextItems := append([]datatypes.ListItem{}, existingItems...)
		added := 0
		for _, raw := range items {
			if remaining <= 0 {
				break
			}
			key := textmatch.NormalizeListItemText(raw)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			nextItems = append(nextItems, datatypes.ListItem{Text: strings.TrimSpace(raw)})
			seen[key] = struct{}{}
			added++
			remaining--
		}
		if added == 0 {
			continue
		}
		updates = append(updates, datatypes.BoardAction{
			Type:   datatypes.ActionUpdateCard,
			CardID: base.CardID,
			Patch:  map[string]any{"props": map[string]any{"items": listItemsToPatch(nextItems)}},
		})
	}
	return updates, remaining
}

// CreateOrUpdateActions is the offline path: it turns extracted transcript
// items into card mutations without a model. Missing base cards get
// created pre-filled; existing ones get appended to. At most maxNewItems
// list items are introduced per call. The returned state has the actions
// already applied, so callers can chain further planning on it.
func CreateOrUpdateActions(
	reducer *board.Reducer,
	state datatypes.BoardState,
	itemsByCardID map[string][]string,
	maxNewItems int,
) ([]datatypes.BoardAction, datatypes.BoardState) {
	remaining := maxNewItems
	if remaining <= 0 {
		return nil, state
	}

	var actions []datatypes.BoardAction
	nextState := state

	for idx, base := range BaseListCards {
		if remaining <= 0 {
			break
		}
		if _, dismissed := state.Dismissed[base.CardID]; dismissed {
			continue
		}
		items := itemsByCardID[base.CardID]
		if len(items) == 0 {
			continue
		}
		if _, exists := nextState.Cards[base.CardID]; exists {
			continue
		}

		seen := map[string]struct{}{}
		var seedItems []datatypes.ListItem
		for _, raw := range items {
			if remaining <= 0 {
				break
			}
			key := textmatch.NormalizeListItemText(raw)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			seedItems = append(seedItems, datatypes.ListItem{Text: strings.TrimSpace(raw)})
			remaining--
		}
		if len(seedItems) == 0 {
			continue
		}

		card, err := emptyListCard(base.CardID, base.Title, seedItems)
		if err != nil {
			continue
		}
		rect := SeedRect(idx)
		create := datatypes.BoardAction{Type: datatypes.ActionCreateCard, Card: &card, Rect: &rect}
		actions = append(actions, create)
		nextState = reducer.Apply(nextState, create)
	}

	if remaining <= 0 {
		return actions, nextState
	}

	filtered := map[string][]string{}
	for cardID, items := range itemsByCardID {
		if len(items) == 0 {
			continue
		}
		if _, dismissed := state.Dismissed[cardID]; dismissed {
			continue
		}
		filtered[cardID] = items
	}
	updates, _ := updateActions(nextState, filtered, remaining)
	for _, update := range updates {
		actions = append(actions, update)
		nextState = reducer.Apply(nextState, update)
	}
	return actions, nextState
}

// EnsureMindmapItems seeds the mindmap scaffold and adds one leaf per new
// extracted item under its category, with content-derived node ids so
// re-extraction of the same line is a no-op.
func EnsureMindmapItems(state mindmap.State, cfg mindmap.Config, itemsByCardID map[string][]string) ([]mindmap.Action, mindmap.State) {
	actions, nextState := mindmap.EnsureScaffold(state, cfg)

	for idx, cat := range cfg.Categories {
		rawItems := itemsByCardID[cat.CardID]
		if len(rawItems) == 0 {
			continue
		}

		leafIndex := 0
		for _, node := range nextState.Nodes {
			if node.ParentID != nil && *node.ParentID == cat.NodeID {
				leafIndex++
			}
		}

		for _, raw := range rawItems {
			text := strings.TrimSpace(raw)
			if text == "" {
				continue
			}
			leafID := mindmap.LeafNodeID(cat.NodeID, text)
			if _, exists := nextState.Nodes[leafID]; exists {
				continue
			}

			parentID := cat.NodeID
			upsert := mindmap.Action{
				Type: datatypes.ActionUpsertNode,
				Node: &mindmap.Node{NodeID: leafID, ParentID: &parentID, Text: text},
			}
			actions = append(actions, upsert)
			nextState = mindmap.Apply(nextState, upsert)

			if _, placed := nextState.Layout[leafID]; !placed {
				pos := cfg.LeafPos(idx, leafIndex)
				posAction := mindmap.Action{Type: datatypes.ActionSetNodePos, NodeID: leafID, Pos: &pos}
				actions = append(actions, posAction)
				nextState = mindmap.Apply(nextState, posAction)
			}
			leafIndex++
		}
	}
	return actions, nextState
}
