// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package board

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

// NewValidator returns the validator instance used for card schemas.
func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// ValidateCard checks a card's envelope, its kind-specific props schema
// (strict: unknown props fields are rejected), and its source citations.
func ValidateCard(v *validator.Validate, card datatypes.Card) error {
	if err := v.Struct(card); err != nil {
		return fmt.Errorf("card envelope: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(card.Props))
	dec.DisallowUnknownFields()

	switch card.Kind {
	case datatypes.CardKindChart:
		var props datatypes.ChartCardProps
		if err := dec.Decode(&props); err != nil {
			return fmt.Errorf("chart props: %w", err)
		}
		if err := v.Struct(props); err != nil {
			return fmt.Errorf("chart props: %w", err)
		}
	case datatypes.CardKindList:
		var props datatypes.ListCardProps
		if err := dec.Decode(&props); err != nil {
			return fmt.Errorf("list props: %w", err)
		}
		if err := v.Struct(props); err != nil {
			return fmt.Errorf("list props: %w", err)
		}
	default:
		return fmt.Errorf("unknown card kind: %q", card.Kind)
	}

	for i, cite := range card.Sources {
		if err := v.Struct(cite); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
	}
	return nil
}

// sanitizeCardMap strips clearly-invalid optional sub-fields from a card's
// generic representation so a re-validation can succeed: list items with an
// empty or missing url lose the url field, and source entries with an empty
// or missing url are dropped outright. It never removes required fields.
func sanitizeCardMap(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	if props, ok := out["props"].(map[string]any); ok {
		nextProps := make(map[string]any, len(props))
		for k, v := range props {
			nextProps[k] = v
		}
		if items, ok := nextProps["items"].([]any); ok {
			nextItems := make([]any, 0, len(items))
			for _, item := range items {
				m, ok := item.(map[string]any)
				if !ok {
					nextItems = append(nextItems, item)
					continue
				}
				if url, present := m["url"]; present && isEmptyURL(url) {
					cleaned := make(map[string]any, len(m))
					for k, v := range m {
						if k != "url" {
							cleaned[k] = v
						}
					}
					m = cleaned
				}
				nextItems = append(nextItems, m)
			}
			nextProps["items"] = nextItems
		}
		out["props"] = nextProps
	}

	if sources, ok := out["sources"].([]any); ok {
		kept := make([]any, 0, len(sources))
		for _, src := range sources {
			m, ok := src.(map[string]any)
			if !ok {
				continue
			}
			url, present := m["url"]
			if !present || isEmptyURL(url) {
				continue
			}
			kept = append(kept, m)
		}
		out["sources"] = kept
	}

	return out
}

func isEmptyURL(v any) bool {
	s, ok := v.(string)
	if !ok {
		return v == nil
	}
	return s == ""
}

// cardFromMap round-trips a generic card representation back into a typed
// card. The Props field keeps raw JSON; ValidateCard does the schema work.
func cardFromMap(raw map[string]any) (datatypes.Card, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return datatypes.Card{}, err
	}
	var card datatypes.Card
	if err := json.Unmarshal(data, &card); err != nil {
		return datatypes.Card{}, err
	}
	return card, nil
}

// cardToMap converts a typed card into the generic representation the
// deep-merge operates on.
func cardToMap(card datatypes.Card) (map[string]any, error) {
	data, err := json.Marshal(card)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
