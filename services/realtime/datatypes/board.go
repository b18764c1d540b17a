// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "encoding/json"

// CardKind discriminates a card's props schema. Fixed at creation.
type CardKind string

const (
	CardKindChart CardKind = "chart"
	CardKindList  CardKind = "list"
)

// ChartSeriesPoint is one labeled value in a chart card series.
type ChartSeriesPoint struct {
	Label string  `json:"label" validate:"required"`
	Value float64 `json:"value"`
}

// ChartCardProps is the props schema for kind=chart.
type ChartCardProps struct {
	Title    string             `json:"title" validate:"required"`
	Subtitle string             `json:"subtitle,omitempty"`
	XLabel   string             `json:"x_label,omitempty"`
	YLabel   string             `json:"y_label,omitempty"`
	Points   []ChartSeriesPoint `json:"points" validate:"required,dive"`
}

// ListItem is one entry in a list card. URL is optional; when present it
// must parse as a URL (the board sanitizer strips invalid ones rather than
// rejecting the whole card).
type ListItem struct {
	Text string `json:"text" validate:"required"`
	URL  string `json:"url,omitempty" validate:"omitempty,url"`
	Meta string `json:"meta,omitempty"`
}

// ListCardProps is the props schema for kind=list.
type ListCardProps struct {
	Title string     `json:"title" validate:"required"`
	Items []ListItem `json:"items" validate:"dive"`
}

// Card is a board artifact. Props is kept as raw JSON so the reducer can
// deep-merge partial patches generically; the board package decodes and
// validates it against the kind-specific schema.
type Card struct {
	CardID  string          `json:"card_id" validate:"required"`
	Kind    CardKind        `json:"kind" validate:"required,oneof=chart list"`
	Props   json.RawMessage `json:"props" validate:"required"`
	Sources []Citation      `json:"sources"`
}

// Title extracts the card's props title for fuzzy matching. Returns ""
// when props are malformed or untitled.
func (c Card) Title() string {
	var probe struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(c.Props, &probe); err != nil {
		return ""
	}
	return probe.Title
}

// Rect is a card's position and size on the board.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w" validate:"gt=0"`
	H float64 `json:"h" validate:"gt=0"`
}

// BoardState is one immutable board snapshot. A card id appears in at most
// one of Cards or Dismissed; Layout entries exist only for active cards.
type BoardState struct {
	Cards     map[string]Card   `json:"cards"`
	Layout    map[string]Rect   `json:"layout"`
	Dismissed map[string]string `json:"dismissed"`
}

// EmptyBoardState returns a board with all maps allocated.
func EmptyBoardState() BoardState {
	return BoardState{
		Cards:     map[string]Card{},
		Layout:    map[string]Rect{},
		Dismissed: map[string]string{},
	}
}

// Clone returns a copy sharing no map structure with the receiver. Card
// values are treated as immutable; the reducer replaces cards wholesale
// instead of mutating them in place.
func (s BoardState) Clone() BoardState {
	next := BoardState{
		Cards:     make(map[string]Card, len(s.Cards)),
		Layout:    make(map[string]Rect, len(s.Layout)),
		Dismissed: make(map[string]string, len(s.Dismissed)),
	}
	for id, card := range s.Cards {
		next.Cards[id] = card
	}
	for id, rect := range s.Layout {
		next.Layout[id] = rect
	}
	for id, reason := range s.Dismissed {
		next.Dismissed[id] = reason
	}
	return next
}
