// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mindmap

import "github.com/AleutianAI/meetingcanvas/services/realtime/textmatch"

// Category is one fixed meeting-native bucket (Decisions, Risks, ...).
// CardID names the board list card the bucket mirrors.
type Category struct {
	NodeID string
	Title  string
	CardID string
}

// Config names the well-known nodes of a meeting mindmap and how free-text
// segments route into them. Constructed once at startup and passed to the
// components that need it; there is no package-level default.
type Config struct {
	RootID     string
	RootTitle  string
	Categories []Category

	reserved map[string]string
}

// NewConfig returns the meeting-native catalog: a fixed root plus the five
// category buckets, with the label aliases that route into each.
func NewConfig() Config {
	cfg := Config{
		RootID:    "mm:root",
		RootTitle: "Mindmap",
		Categories: []Category{
			{NodeID: "mm:decisions", Title: "Decisions", CardID: "list-decisions"},
			{NodeID: "mm:actions", Title: "Action Items", CardID: "list-actions"},
			{NodeID: "mm:questions", Title: "Open Questions", CardID: "list-questions"},
			{NodeID: "mm:risks", Title: "Risks / Blockers", CardID: "list-risks"},
			{NodeID: "mm:next-steps", Title: "Next Steps", CardID: "list-next-steps"},
		},
	}

	aliases := map[string][]string{
		cfg.RootID:      {"mindmap"},
		"mm:decisions":  {"decisions", "decision"},
		"mm:actions":    {"action items", "action item"},
		"mm:questions":  {"open questions", "open question", "questions", "question"},
		"mm:risks":      {"risks blockers", "risks and blockers", "risk", "risks", "blocker", "blockers"},
		"mm:next-steps": {"next steps", "next step", "follow ups", "follow up"},
	}
	cfg.reserved = map[string]string{}
	for nodeID, labels := range aliases {
		for _, label := range labels {
			cfg.reserved[label] = nodeID
		}
	}
	return cfg
}

// ReservedTarget maps a segment to a well-known node id, if the segment is
// a reserved category label (case/punctuation-insensitive).
func (c Config) ReservedTarget(text string) (string, bool) {
	key := textmatch.NormalizeTitle(text)
	if key == "" {
		return "", false
	}
	id, ok := c.reserved[key]
	return id, ok
}

// IsCategory reports whether nodeID is one of the fixed category buckets.
func (c Config) IsCategory(nodeID string) bool {
	for _, cat := range c.Categories {
		if cat.NodeID == nodeID {
			return true
		}
	}
	return false
}

// RootPos is the fixed root node position.
func (c Config) RootPos() Point {
	return Point{X: 40, Y: 40}
}

// CategoryPos is the fixed position of the index-th category bucket.
func (c Config) CategoryPos(index int) Point {
	return Point{X: 300, Y: 60 + float64(index)*150}
}

// LeafPos places the itemIndex-th leaf under the index-th category.
func (c Config) LeafPos(categoryIndex, itemIndex int) Point {
	return Point{X: 660, Y: 120 + float64(categoryIndex)*150 + float64(itemIndex)*70}
}
