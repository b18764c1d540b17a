// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package postprocess gates machine-proposed board mutations before they
// reach the reducer: similar-title creates are rewritten into updates of
// the existing card, and remaining creates pass through a sliding-window
// rate limiter. Well-known bootstrap cards bypass both.
package postprocess

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/textmatch"
)

// window is the sliding interval the per-minute creation budget covers.
const window = 60 * time.Second

// Config tunes the processor. BypassCardIDs lists card ids (the fixed
// meeting-native lists) exempt from both dedup and rate limiting.
type Config struct {
	DedupeEnabled     bool
	MaxPerMinute      int
	MinBetweenCreates time.Duration
	BypassCardIDs     map[string]struct{}
}

// Processor holds the rolling creation-rate state for one producer. Not
// safe for concurrent use; each scheduler owns exactly one.
type Processor struct {
	cfg              Config
	createTimestamps []time.Time
	lastCreateAt     time.Time
}

// New returns a Processor with empty rate history.
func New(cfg Config) *Processor {
	return &Processor{cfg: cfg}
}

// Result is the outcome of one batch. Deduped counts creates rewritten
// into updates; Throttled counts creates dropped by rate limiting.
type Result struct {
	Actions   []datatypes.BoardAction
	Deduped   int
	Throttled int
}

// ThrottleMessage is the single summary status line for dropped creates,
// or "" when none were dropped.
func (r Result) ThrottleMessage(cfg Config) string {
	if r.Throttled == 0 {
		return ""
	}
	return fmt.Sprintf("Throttled %d create_card action(s) (max %d/min, min %ds between creates).",
		r.Throttled, cfg.MaxPerMinute, int(cfg.MinBetweenCreates.Seconds()))
}

// Config returns the processor's configuration.
func (p *Processor) Config() Config {
	return p.cfg
}

// Process dedupes and rate-limits one proposed batch against the given
// board snapshot. Rejected creates are dropped, not queued for later.
// Rate state advances only for admitted creates.
func (p *Processor) Process(state datatypes.BoardState, actions []datatypes.BoardAction, now time.Time) Result {
	deduped := p.dedupe(state, actions)
	rewritten := 0
	for i, action := range deduped {
		if action.Type != actions[i].Type {
			rewritten++
		}
	}

	// Prune the sliding window before admitting anything.
	pruned := p.createTimestamps[:0:0]
	for _, ts := range p.createTimestamps {
		if now.Sub(ts) <= window {
			pruned = append(pruned, ts)
		}
	}

	nextTimestamps := pruned
	nextLastCreate := p.lastCreateAt
	// The cool-down gate compares against the last creation *before*
	// this batch; within a batch only the per-minute window binds.
	batchEntryLast := p.lastCreateAt
	throttled := 0
	var output []datatypes.BoardAction

	for _, action := range deduped {
		if action.Type != datatypes.ActionCreateCard || p.bypassed(action) {
			output = append(output, action)
			continue
		}

		if p.cfg.MinBetweenCreates > 0 && now.Sub(batchEntryLast) < p.cfg.MinBetweenCreates {
			throttled++
			continue
		}
		if p.cfg.MaxPerMinute <= 0 || len(nextTimestamps) >= p.cfg.MaxPerMinute {
			throttled++
			continue
		}

		output = append(output, action)
		nextTimestamps = append(nextTimestamps, now)
		nextLastCreate = now
	}

	p.createTimestamps = nextTimestamps
	p.lastCreateAt = nextLastCreate

	return Result{Actions: output, Deduped: rewritten, Throttled: throttled}
}

func (p *Processor) bypassed(action datatypes.BoardAction) bool {
	if action.Card == nil {
		return false
	}
	_, ok := p.cfg.BypassCardIDs[action.Card.CardID]
	return ok
}

// dedupe rewrites each create whose title is very similar to an existing
// active card of the same kind into an update of that card, carrying the
// new props (and sources, when present) as a patch.
func (p *Processor) dedupe(state datatypes.BoardState, actions []datatypes.BoardAction) []datatypes.BoardAction {
	out := make([]datatypes.BoardAction, 0, len(actions))
	for _, action := range actions {
		if action.Type != datatypes.ActionCreateCard || action.Card == nil ||
			!p.cfg.DedupeEnabled || p.bypassed(action) {
			out = append(out, action)
			continue
		}

		card := *action.Card
		title := card.Title()
		if title == "" {
			out = append(out, action)
			continue
		}

		similarID, ok := findSimilarCard(state, card.Kind, title)
		if !ok {
			out = append(out, action)
			continue
		}

		patch := map[string]any{}
		var props any
		if err := json.Unmarshal(card.Props, &props); err == nil {
			patch["props"] = props
		}
		var citations []datatypes.Citation
		if len(card.Sources) > 0 {
			raw, err := json.Marshal(card.Sources)
			if err == nil {
				var generic any
				if err := json.Unmarshal(raw, &generic); err == nil {
					patch["sources"] = generic
				}
			}
			citations = card.Sources
		}

		out = append(out, datatypes.BoardAction{
			Type:      datatypes.ActionUpdateCard,
			CardID:    similarID,
			Patch:     patch,
			Citations: citations,
		})
	}
	return out
}

// findSimilarCard returns the active card of the same kind whose title is
// most similar to title, if any is "very similar".
func findSimilarCard(state datatypes.BoardState, kind datatypes.CardKind, title string) (string, bool) {
	bestID := ""
	bestScore := 0.0
	for cardID, card := range state.Cards {
		if card.Kind != kind {
			continue
		}
		existingTitle := card.Title()
		if existingTitle == "" || !textmatch.VerySimilarTitle(existingTitle, title) {
			continue
		}
		if score := textmatch.TitleSimilarity(existingTitle, title); score > bestScore {
			bestID = cardID
			bestScore = score
		}
	}
	return bestID, bestID != ""
}
