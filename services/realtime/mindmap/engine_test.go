// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mindmap

import (
	"testing"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

func newTree(t *testing.T, edges map[string]string) State {
	t.Helper()
	state := datatypes.EmptyMindmapState("mm:root")
	state.Nodes["mm:root"] = Node{NodeID: "mm:root", Text: "Mindmap"}
	for child, parent := range edges {
		p := parent
		state.Nodes[child] = Node{NodeID: child, ParentID: &p, Text: child}
		state.Layout[child] = Point{X: 1, Y: 1}
	}
	return state
}

func upsert(node Node) Action {
	return Action{Type: datatypes.ActionUpsertNode, Node: &node}
}

func TestApply_UpsertAndRename(t *testing.T) {
	state := newTree(t, nil)
	root := "mm:root"
	state = Apply(state, upsert(Node{NodeID: "a", ParentID: &root, Text: "Alpha"}))
	if state.Nodes["a"].Text != "Alpha" {
		t.Fatal("upsert did not insert node")
	}

	text := "Alpha renamed"
	state = Apply(state, Action{Type: datatypes.ActionRenameNode, NodeID: "a", Text: &text})
	if state.Nodes["a"].Text != "Alpha renamed" {
		t.Error("rename did not apply")
	}

	missing := "nope"
	next := Apply(state, Action{Type: datatypes.ActionRenameNode, NodeID: "ghost", Text: &missing})
	if len(next.Nodes) != len(state.Nodes) {
		t.Error("rename of missing node should be a no-op")
	}
}

func TestApply_SetCollapsedMissingNodeIsNoOp(t *testing.T) {
	state := newTree(t, map[string]string{"a": "mm:root"})
	collapsed := true
	next := Apply(state, Action{Type: datatypes.ActionSetCollapsed, NodeID: "ghost", Collapsed: &collapsed})
	if len(next.Nodes) != len(state.Nodes) {
		t.Error("expected no-op")
	}

	next = Apply(state, Action{Type: datatypes.ActionSetCollapsed, NodeID: "a", Collapsed: &collapsed})
	if !next.Nodes["a"].Collapsed {
		t.Error("collapsed not set")
	}
	if state.Nodes["a"].Collapsed {
		t.Error("input state mutated")
	}
}

func TestApply_ReparentToDescendantRejected(t *testing.T) {
	// root -> a -> b -> c
	state := newTree(t, map[string]string{"a": "mm:root", "b": "a", "c": "b"})

	target := "c"
	next := Apply(state, Action{Type: datatypes.ActionReparentNode, NodeID: "a", NewParentID: &target})
	if got := *next.Nodes["a"].ParentID; got != "mm:root" {
		t.Errorf("reparent under own descendant must be rejected; parent = %q", got)
	}

	self := "a"
	next = Apply(state, Action{Type: datatypes.ActionReparentNode, NodeID: "a", NewParentID: &self})
	if got := *next.Nodes["a"].ParentID; got != "mm:root" {
		t.Errorf("reparent under self must be rejected; parent = %q", got)
	}

	ghost := "ghost"
	next = Apply(state, Action{Type: datatypes.ActionReparentNode, NodeID: "a", NewParentID: &ghost})
	if got := *next.Nodes["a"].ParentID; got != "mm:root" {
		t.Errorf("reparent under missing parent must be rejected; parent = %q", got)
	}
}

func TestApply_ReparentRootRejected(t *testing.T) {
	state := newTree(t, map[string]string{"a": "mm:root"})
	target := "a"
	next := Apply(state, Action{Type: datatypes.ActionReparentNode, NodeID: "mm:root", NewParentID: &target})
	if next.Nodes["mm:root"].ParentID != nil {
		t.Error("root must not be reparented")
	}
}

func TestApply_ReparentValidTarget(t *testing.T) {
	state := newTree(t, map[string]string{"a": "mm:root", "b": "mm:root"})
	target := "b"
	next := Apply(state, Action{Type: datatypes.ActionReparentNode, NodeID: "a", NewParentID: &target})
	if got := *next.Nodes["a"].ParentID; got != "b" {
		t.Errorf("parent = %q, want b", got)
	}
}

func TestApply_DeleteSubtreeCascades(t *testing.T) {
	// P with children A, B; A with child C.
	state := newTree(t, map[string]string{"p": "mm:root", "a": "p", "b": "p", "c": "a"})

	next := Apply(state, Action{Type: datatypes.ActionDeleteSubtree, NodeID: "a"})
	for _, gone := range []string{"a", "c"} {
		if _, ok := next.Nodes[gone]; ok {
			t.Errorf("node %q should be deleted", gone)
		}
		if _, ok := next.Layout[gone]; ok {
			t.Errorf("layout for %q should be deleted", gone)
		}
	}
	for _, kept := range []string{"p", "b", "mm:root"} {
		if _, ok := next.Nodes[kept]; !ok {
			t.Errorf("node %q should be preserved", kept)
		}
	}
}

func TestApply_DeleteRootResetsMindmap(t *testing.T) {
	state := newTree(t, map[string]string{"a": "mm:root", "b": "a"})
	next := Apply(state, Action{Type: datatypes.ActionDeleteSubtree, NodeID: "mm:root"})
	if len(next.Nodes) != 0 || len(next.Layout) != 0 {
		t.Errorf("delete_subtree(root) must empty the mindmap; nodes=%d layout=%d", len(next.Nodes), len(next.Layout))
	}
	if next.RootID != "mm:root" {
		t.Errorf("root id must be preserved, got %q", next.RootID)
	}
}
