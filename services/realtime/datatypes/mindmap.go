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

// Point is a mindmap node position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MindmapNode is one node in the mindmap forest. ParentID is nil only for
// the root node.
type MindmapNode struct {
	NodeID    string     `json:"node_id" validate:"required"`
	ParentID  *string    `json:"parent_id"`
	Text      string     `json:"text" validate:"required"`
	Collapsed bool       `json:"collapsed"`
	Sources   []Citation `json:"sources,omitempty"`
}

// MindmapState is one immutable mindmap snapshot. The parent graph is a
// forest rooted at RootID; the mindmap engine rejects mutations that would
// violate that.
type MindmapState struct {
	RootID string                 `json:"root_id"`
	Nodes  map[string]MindmapNode `json:"nodes"`
	Layout map[string]Point       `json:"layout"`
}

// EmptyMindmapState returns a mindmap with no nodes, rooted at rootID.
func EmptyMindmapState(rootID string) MindmapState {
	return MindmapState{
		RootID: rootID,
		Nodes:  map[string]MindmapNode{},
		Layout: map[string]Point{},
	}
}

// Clone returns a copy sharing no map structure with the receiver.
func (s MindmapState) Clone() MindmapState {
	next := MindmapState{
		RootID: s.RootID,
		Nodes:  make(map[string]MindmapNode, len(s.Nodes)),
		Layout: make(map[string]Point, len(s.Layout)),
	}
	for id, node := range s.Nodes {
		next.Nodes[id] = node
	}
	for id, pos := range s.Layout {
		next.Layout[id] = pos
	}
	return next
}

// ChildrenOf returns the ids of nodes whose parent is parentID.
func (s MindmapState) ChildrenOf(parentID string) []string {
	var out []string
	for id, node := range s.Nodes {
		if node.ParentID != nil && *node.ParentID == parentID {
			out = append(out, id)
		}
	}
	return out
}
