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

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/textmatch"
)

// globalDedupeSimilarity is the extra bar a whole-tree match must clear;
// parent-scoped matches use the regular VerySimilarTitle check.
const globalDedupeSimilarity = 0.88

// maxSegmentLen truncates absurdly long proposed segments.
const maxSegmentLen = 120

// truncateSegment caps a segment at max characters, never splitting a
// rune; node text and the ids derived from it stay valid UTF-8.
func truncateSegment(value string, max int) string {
	if utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	return string(runes[:max])
}

// PathProposal is one hierarchical text path from a topical root down to a
// specific point, as produced by the mindmap proposal service.
type PathProposal struct {
	Path []string `json:"path"`
}

// Budgets caps node creation for one path-application run. Interim
// transcript input uses much tighter budgets than finalized input.
type Budgets struct {
	MaxNewNodes      int
	MaxNewRootTopics int
}

func stableID(prefix, parentID, text string) string {
	normalized := textmatch.NormalizeText(text)
	sum := sha1.Sum([]byte(parentID + "\n" + normalized))
	return prefix + hex.EncodeToString(sum[:])[:12]
}

// PathNodeID derives the deterministic id for a path-created node, making
// "propose this path again" naturally idempotent.
func PathNodeID(parentID, text string) string {
	return stableID("mm:path:", parentID, text)
}

// LeafNodeID derives the deterministic id for a meeting-native leaf item.
func LeafNodeID(parentID, text string) string {
	return stableID("mm:item:", parentID, text)
}

// AutoChildPos computes a position for a new child based on its parent's
// position and how many siblings already exist.
func AutoChildPos(state State, cfg Config, parentID string, siblingIndex int) Point {
	if parentID == cfg.RootID {
		baseY := 60.0 + float64(len(cfg.Categories))*150.0
		return Point{X: 300, Y: baseY + float64(siblingIndex)*110}
	}
	parentPos, ok := state.Layout[parentID]
	if !ok {
		parentPos = cfg.RootPos()
	}
	return Point{X: parentPos.X + 360, Y: parentPos.Y + float64(siblingIndex)*90}
}

// EnsureScaffold returns the actions (and resulting state) that create the
// root and the fixed category buckets wherever they are missing. Applying
// it to an already-scaffolded state yields no actions.
func EnsureScaffold(state State, cfg Config) ([]Action, State) {
	var actions []Action
	next := state
	if next.RootID != cfg.RootID {
		next = next.Clone()
		next.RootID = cfg.RootID
	}

	appendAction := func(a Action) {
		actions = append(actions, a)
		next = Apply(next, a)
	}

	if _, ok := next.Nodes[cfg.RootID]; !ok {
		appendAction(Action{Type: datatypes.ActionUpsertNode, Node: &Node{NodeID: cfg.RootID, Text: cfg.RootTitle}})
	}
	if _, ok := next.Layout[cfg.RootID]; !ok {
		pos := cfg.RootPos()
		appendAction(Action{Type: datatypes.ActionSetNodePos, NodeID: cfg.RootID, Pos: &pos})
	}

	for idx, cat := range cfg.Categories {
		if _, ok := next.Nodes[cat.NodeID]; !ok {
			parent := cfg.RootID
			appendAction(Action{Type: datatypes.ActionUpsertNode, Node: &Node{
				NodeID:   cat.NodeID,
				ParentID: &parent,
				Text:     cat.Title,
			}})
		}
		if _, ok := next.Layout[cat.NodeID]; !ok {
			pos := cfg.CategoryPos(idx)
			appendAction(Action{Type: datatypes.ActionSetNodePos, NodeID: cat.NodeID, Pos: &pos})
		}
	}

	return actions, next
}

// findChildByText returns the child of parentID whose text exactly or
// fuzzily matches text, preferring the highest-similarity match.
func findChildByText(state State, parentID, text string) (string, bool) {
	wanted := textmatch.NormalizeText(text)
	if wanted == "" {
		return "", false
	}
	bestID := ""
	bestScore := 0.0
	for nodeID, node := range state.Nodes {
		if node.ParentID == nil || *node.ParentID != parentID {
			continue
		}
		if textmatch.NormalizeText(node.Text) == wanted {
			return nodeID, true
		}
		if textmatch.VerySimilarTitle(node.Text, text) {
			if score := textmatch.TitleSimilarity(node.Text, text); score > bestScore {
				bestID = nodeID
				bestScore = score
			}
		}
	}
	return bestID, bestID != ""
}

// findAnySimilarNode searches the whole tree for a node similar to text,
// used to keep a recurring topic from reappearing under different parents.
// Category buckets only match on exact normalized text.
func findAnySimilarNode(state State, cfg Config, text string) (string, bool) {
	wanted := textmatch.NormalizeText(text)
	if wanted == "" {
		return "", false
	}
	bestID := ""
	bestScore := 0.0
	for nodeID, node := range state.Nodes {
		if nodeID == state.RootID {
			continue
		}
		if cfg.IsCategory(nodeID) && textmatch.NormalizeText(node.Text) != wanted {
			continue
		}
		score := textmatch.TitleSimilarity(node.Text, text)
		similar := textmatch.VerySimilarTitle(node.Text, text)
		if score < globalDedupeSimilarity && !similar {
			continue
		}
		if similar && score < globalDedupeSimilarity {
			score = globalDedupeSimilarity
		}
		if score > bestScore {
			bestID = nodeID
			bestScore = score
		}
	}
	return bestID, bestID != ""
}

// ApplyPathProposals walks each proposed path from the root, reusing
// reserved categories and existing similar nodes and creating the rest,
// within the given creation budgets. Returns the actions taken and the
// resulting state.
func ApplyPathProposals(state State, cfg Config, proposals []PathProposal, budgets Budgets) ([]Action, State) {
	actions, next := EnsureScaffold(state, cfg)

	maxNewNodes := max(0, budgets.MaxNewNodes)
	maxNewRootTopics := max(0, budgets.MaxNewRootTopics)
	created := 0
	createdRootTopics := 0
	seenPaths := map[string]struct{}{}

	appendAction := func(a Action) {
		actions = append(actions, a)
		next = Apply(next, a)
	}

	for _, proposal := range proposals {
		var parts []string
		for _, seg := range proposal.Path {
			cleaned := strings.TrimSpace(seg)
			if cleaned == "" {
				continue
			}
			cleaned = truncateSegment(cleaned, maxSegmentLen)
			parts = append(parts, cleaned)
		}
		if len(parts) == 0 {
			continue
		}

		normalized := make([]string, len(parts))
		for i, p := range parts {
			normalized[i] = textmatch.NormalizeText(p)
		}
		signature := strings.Join(normalized, " > ")
		if signature == "" {
			continue
		}
		if _, dup := seenPaths[signature]; dup {
			continue
		}
		seenPaths[signature] = struct{}{}

		parentID := next.RootID
		for _, seg := range parts {
			if reserved, ok := cfg.ReservedTarget(seg); ok {
				if _, exists := next.Nodes[reserved]; exists {
					parentID = reserved
					continue
				}
			}

			// A segment matching an existing top-level topic reuses that
			// topic instead of duplicating it under another branch.
			if parentID != cfg.RootID {
				if rootMatch, ok := findChildByText(next, cfg.RootID, seg); ok {
					parentID = rootMatch
					continue
				}
			}

			if textmatch.SpecificEnoughForGlobalDedupe(seg) {
				if globalMatch, ok := findAnySimilarNode(next, cfg, seg); ok {
					parentID = globalMatch
					continue
				}
			}

			if existing, ok := findChildByText(next, parentID, seg); ok {
				parentID = existing
				continue
			}

			if created >= maxNewNodes {
				break
			}

			nodeID := PathNodeID(parentID, seg)
			isRootTopic := parentID == cfg.RootID && !cfg.IsCategory(nodeID)
			if isRootTopic && createdRootTopics >= maxNewRootTopics {
				break
			}

			parent := parentID
			appendAction(Action{Type: datatypes.ActionUpsertNode, Node: &Node{
				NodeID:   nodeID,
				ParentID: &parent,
				Text:     seg,
			}})
			created++
			if isRootTopic {
				createdRootTopics++
			}

			if _, ok := next.Layout[nodeID]; !ok {
				siblingIndex := 0
				for id, node := range next.Nodes {
					if id == nodeID || node.ParentID == nil || *node.ParentID != parentID {
						continue
					}
					if parentID == cfg.RootID && cfg.IsCategory(id) {
						continue
					}
					siblingIndex++
				}
				pos := AutoChildPos(next, cfg, parentID, siblingIndex)
				appendAction(Action{Type: datatypes.ActionSetNodePos, NodeID: nodeID, Pos: &pos})
			}

			parentID = nodeID
		}
	}

	return actions, next
}

// Summarize renders the tree as an indented outline for prompt context,
// bounded by maxNodes total and maxChildren per parent. Collapsed nodes
// hide their subtrees.
func Summarize(state State, maxNodes, maxChildren int) string {
	if len(state.Nodes) == 0 {
		return "(empty mindmap)"
	}
	if _, ok := state.Nodes[state.RootID]; !ok {
		return fmt.Sprintf("(mindmap has %d nodes; missing root_id=%q)", len(state.Nodes), state.RootID)
	}

	childrenByParent := map[string][]Node{}
	for _, node := range state.Nodes {
		if node.ParentID == nil {
			continue
		}
		childrenByParent[*node.ParentID] = append(childrenByParent[*node.ParentID], node)
	}
	for parentID := range childrenByParent {
		children := childrenByParent[parentID]
		sort.Slice(children, func(i, j int) bool {
			return textmatch.NormalizeText(children[i].Text) < textmatch.NormalizeText(children[j].Text)
		})
		childrenByParent[parentID] = children
	}

	var lines []string
	count := 0
	var visit func(nodeID string, depth int)
	visit = func(nodeID string, depth int) {
		if count >= maxNodes {
			return
		}
		node, ok := state.Nodes[nodeID]
		if !ok {
			return
		}
		lines = append(lines, strings.Repeat("  ", depth)+"- "+node.Text)
		count++
		if node.Collapsed {
			return
		}
		children := childrenByParent[nodeID]
		if len(children) > maxChildren {
			children = children[:maxChildren]
		}
		for _, child := range children {
			visit(child.NodeID, depth+1)
		}
	}
	visit(state.RootID, 0)

	if remaining := len(state.Nodes) - count; remaining > 0 {
		lines = append(lines, fmt.Sprintf("- …and %d more node(s)", remaining))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
