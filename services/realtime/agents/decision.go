// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/mindmap"
)

// ArtifactProposal is one card the orchestrator wants on the board.
type ArtifactProposal struct {
	ProposalID    string             `json:"proposal_id"`
	Title         string             `json:"title"`
	Kind          datatypes.CardKind `json:"kind"`
	Rationale     string             `json:"rationale"`
	Priority      int                `json:"priority"`
	RequiredTasks []string           `json:"required_tasks,omitempty"`
}

// Decision is the orchestrator's output: research to run plus proposals
// the planner should turn into actions.
type Decision struct {
	ResearchTasks []datatypes.ResearchTask `json:"research_tasks"`
	Proposals     []ArtifactProposal       `json:"proposals"`
}

// extractJSON trims markdown fences and prose around a model's JSON
// output. Models occasionally wrap structured output despite being asked
// not to.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if len(s) > 0 && s[0] != '{' && s[0] != '[' {
		objStart := strings.IndexAny(s, "{[")
		if objStart >= 0 {
			closing := byte('}')
			if s[objStart] == '[' {
				closing = ']'
			}
			if end := strings.LastIndexByte(s, closing); end > objStart {
				s = s[objStart : end+1]
			}
		}
	}
	return s
}

// DecodeDecision parses an orchestrator response.
func DecodeDecision(raw string) (Decision, error) {
	var decision Decision
	if err := json.Unmarshal([]byte(extractJSON(raw)), &decision); err != nil {
		return Decision{}, fmt.Errorf("decode orchestrator decision: %w", err)
	}
	return decision, nil
}

// DecodeBoardActions parses a planner response. It accepts either a bare
// JSON array or an object wrapping it under "actions". Actions that fail
// shape validation are dropped; the count of dropped actions is returned
// so the caller can log it.
func DecodeBoardActions(raw string) ([]datatypes.BoardAction, int, error) {
	text := extractJSON(raw)

	var actions []datatypes.BoardAction
	if err := json.Unmarshal([]byte(text), &actions); err != nil {
		var wrapper struct {
			Actions []datatypes.BoardAction `json:"actions"`
		}
		if err2 := json.Unmarshal([]byte(text), &wrapper); err2 != nil {
			return nil, 0, fmt.Errorf("decode board actions: %w", err)
		}
		actions = wrapper.Actions
	}

	valid := make([]datatypes.BoardAction, 0, len(actions))
	dropped := 0
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			dropped++
			continue
		}
		valid = append(valid, a)
	}
	return valid, dropped, nil
}

// DecodePathProposals parses a mindmap extractor response. It accepts a
// bare array of {"path": [...]} objects or an object wrapping it under
// "proposals". Empty paths are dropped; paths longer than six segments
// are truncated.
func DecodePathProposals(raw string) ([]mindmap.PathProposal, error) {
	text := extractJSON(raw)

	var proposals []mindmap.PathProposal
	if err := json.Unmarshal([]byte(text), &proposals); err != nil {
		var wrapper struct {
			Proposals []mindmap.PathProposal `json:"proposals"`
		}
		if err2 := json.Unmarshal([]byte(text), &wrapper); err2 != nil {
			return nil, fmt.Errorf("decode path proposals: %w", err)
		}
		proposals = wrapper.Proposals
	}

	const maxSegments = 6
	valid := make([]mindmap.PathProposal, 0, len(proposals))
	for _, p := range proposals {
		segments := make([]string, 0, len(p.Path))
		for _, seg := range p.Path {
			if seg = strings.TrimSpace(seg); seg != "" {
				segments = append(segments, seg)
			}
		}
		if len(segments) == 0 {
			continue
		}
		if len(segments) > maxSegments {
			segments = segments[:maxSegments]
		}
		valid = append(valid, mindmap.PathProposal{Path: segments})
	}
	return valid, nil
}
