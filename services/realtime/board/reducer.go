// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package board implements the pure board-state reducer.
//
// # Description
//
// Apply takes one snapshot and one action and returns the next snapshot.
// It never mutates its input and never fails: structurally invalid actions
// are no-ops on the affected entity only. Card updates are deep-merged
// patches re-validated against the card's kind-specific schema, with a
// one-shot sanitization retry that strips clearly-invalid optional fields
// rather than dropping the whole card.
//
// # Thread Safety
//
// All functions are pure; safe for concurrent use.
package board

import (
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

// Reducer applies board actions. It carries the validator so card schema
// checks reuse one instance.
type Reducer struct {
	validate *validator.Validate
}

// NewReducer returns a ready Reducer.
func NewReducer() *Reducer {
	return &Reducer{validate: NewValidator()}
}

// Apply returns the next board state after one action.
//
// Invariants maintained: a card id is never present in both cards and
// dismissed; layout entries are pruned when a card is dismissed; a create
// of a previously-dismissed id clears the tombstone; update never changes
// a card's kind.
func (r *Reducer) Apply(state datatypes.BoardState, action datatypes.BoardAction) datatypes.BoardState {
	next := state.Clone()

	switch action.Type {
	case datatypes.ActionCreateCard:
		if action.Card == nil || action.Card.CardID == "" {
			return next
		}
		card := *action.Card
		next.Cards[card.CardID] = card
		if action.Rect != nil {
			next.Layout[card.CardID] = *action.Rect
		}
		delete(next.Dismissed, card.CardID)
		return next

	case datatypes.ActionUpdateCard:
		existing, ok := next.Cards[action.CardID]
		if !ok {
			return next
		}
		if updated, ok := r.patchCard(existing, action.Patch); ok {
			next.Cards[action.CardID] = updated
		}
		return next

	case datatypes.ActionMoveCard:
		if _, ok := next.Cards[action.CardID]; ok && action.Rect != nil {
			next.Layout[action.CardID] = *action.Rect
		}
		return next

	case datatypes.ActionDismissCard:
		delete(next.Cards, action.CardID)
		delete(next.Layout, action.CardID)
		next.Dismissed[action.CardID] = action.Reason
		return next
	}

	return next
}

// patchCard deep-merges patch into the card's full representation and
// re-validates. On validation failure it sanitizes once and retries; if
// that still fails the update is discarded and ok is false.
func (r *Reducer) patchCard(existing datatypes.Card, patch map[string]any) (datatypes.Card, bool) {
	raw, err := cardToMap(existing)
	if err != nil {
		return datatypes.Card{}, false
	}

	merged := applyPatch(raw, patch)

	// Identity and kind are fixed for the card's lifetime; a patch that
	// tries to change either fails validation rather than being "fixed".
	if id, ok := merged["card_id"].(string); !ok || id != existing.CardID {
		return datatypes.Card{}, false
	}
	if kind, ok := merged["kind"].(string); !ok || kind != string(existing.Kind) {
		return datatypes.Card{}, false
	}

	if card, err := r.decodeValid(merged); err == nil {
		return card, true
	}

	sanitized := sanitizeCardMap(merged)
	if card, err := r.decodeValid(sanitized); err == nil {
		return card, true
	}
	return datatypes.Card{}, false
}

func (r *Reducer) decodeValid(raw map[string]any) (datatypes.Card, error) {
	card, err := cardFromMap(raw)
	if err != nil {
		return datatypes.Card{}, err
	}
	if err := ValidateCard(r.validate, card); err != nil {
		return datatypes.Card{}, err
	}
	return card, nil
}

// applyPatch recursively merges patch into obj: when both sides of a key
// are objects the merge recurses, otherwise the incoming value replaces
// the existing one wholesale (so a list can be replaced in full while a
// sibling scalar stays untouched).
func applyPatch(obj map[string]any, patch map[string]any) map[string]any {
	result := make(map[string]any, len(obj)+len(patch))
	for k, v := range obj {
		result[k] = v
	}
	for key, value := range patch {
		incoming, incomingIsMap := value.(map[string]any)
		current, currentIsMap := result[key].(map[string]any)
		if incomingIsMap && currentIsMap {
			result[key] = applyPatch(current, incoming)
		} else {
			result[key] = value
		}
	}
	return result
}
