// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mindmap implements the pure mindmap tree engine: the action
// reducer, well-known category routing, deterministic node-id derivation,
// and the path-application algorithm that turns proposed text paths into
// tree mutations.
//
// The tree is an arena of nodes keyed by id with parent pointers only.
// Cycle checks and cascading deletes run breadth-first over a
// parent-indexed view recomputed on demand; transient violations are
// rejected, never silently repaired.
package mindmap

import (
	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

// Aliases for the shared wire types; the engine operates on these.
type (
	Point  = datatypes.Point
	Node   = datatypes.MindmapNode
	State  = datatypes.MindmapState
	Action = datatypes.MindmapAction
)

// Apply returns the next mindmap state after one action. Pure: the input
// snapshot is never mutated, and invalid actions are no-ops.
func Apply(state State, action Action) State {
	switch action.Type {
	case datatypes.ActionUpsertNode:
		if action.Node == nil || action.Node.NodeID == "" {
			return state
		}
		next := state.Clone()
		next.Nodes[action.Node.NodeID] = *action.Node
		return next

	case datatypes.ActionSetNodePos:
		if action.Pos == nil {
			return state
		}
		next := state.Clone()
		next.Layout[action.NodeID] = *action.Pos
		return next

	case datatypes.ActionSetCollapsed:
		node, ok := state.Nodes[action.NodeID]
		if !ok || action.Collapsed == nil {
			return state
		}
		next := state.Clone()
		node.Collapsed = *action.Collapsed
		next.Nodes[action.NodeID] = node
		return next

	case datatypes.ActionRenameNode:
		node, ok := state.Nodes[action.NodeID]
		if !ok || action.Text == nil {
			return state
		}
		next := state.Clone()
		node.Text = *action.Text
		next.Nodes[action.NodeID] = node
		return next

	case datatypes.ActionDeleteSubtree:
		return deleteSubtree(state, action.NodeID)

	case datatypes.ActionReparentNode:
		return reparent(state, action.NodeID, action.NewParentID)
	}

	return state
}

// deleteSubtree removes nodeID and all transitive children from nodes and
// layout. Deleting the root resets the whole mindmap to empty.
func deleteSubtree(state State, nodeID string) State {
	if nodeID == state.RootID {
		return datatypes.EmptyMindmapState(state.RootID)
	}

	doomed := collectSubtree(state, nodeID)
	next := state.Clone()
	for _, id := range doomed {
		delete(next.Nodes, id)
		delete(next.Layout, id)
	}
	return next
}

// reparent moves nodeID under newParentID (nil detaches to no parent).
// Rejected as a no-op when nodeID is the root, the target parent does not
// exist, or the target is the node itself or one of its descendants.
func reparent(state State, nodeID string, newParentID *string) State {
	if nodeID == state.RootID {
		return state
	}
	node, ok := state.Nodes[nodeID]
	if !ok {
		return state
	}
	if newParentID != nil {
		if _, ok := state.Nodes[*newParentID]; !ok {
			return state
		}
		if *newParentID == nodeID {
			return state
		}
		for _, id := range collectSubtree(state, nodeID) {
			if id == *newParentID {
				return state
			}
		}
	}

	next := state.Clone()
	node.ParentID = newParentID
	next.Nodes[nodeID] = node
	return next
}

// collectSubtree gathers nodeID and every transitive child, breadth-first
// over a parent-indexed adjacency view built once per call.
func collectSubtree(state State, nodeID string) []string {
	childrenByParent := make(map[string][]string, len(state.Nodes))
	for id, node := range state.Nodes {
		if node.ParentID == nil {
			continue
		}
		childrenByParent[*node.ParentID] = append(childrenByParent[*node.ParentID], id)
	}

	collected := []string{nodeID}
	for cursor := 0; cursor < len(collected); cursor++ {
		collected = append(collected, childrenByParent[collected[cursor]]...)
	}
	return collected
}
