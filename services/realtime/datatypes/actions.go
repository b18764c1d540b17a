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

import "fmt"

// Board action discriminators.
const (
	ActionCreateCard  = "create_card"
	ActionUpdateCard  = "update_card"
	ActionMoveCard    = "move_card"
	ActionDismissCard = "dismiss_card"
)

// BoardAction is the flat tagged union of board mutations. Which fields
// are meaningful depends on Type; Validate enforces the per-type shape.
type BoardAction struct {
	Type string `json:"type"`

	// create_card
	Card *Card `json:"card,omitempty"`
	Rect *Rect `json:"rect,omitempty"`

	// update_card / move_card / dismiss_card
	CardID    string         `json:"card_id,omitempty"`
	Patch     map[string]any `json:"patch,omitempty"`
	Citations []Citation     `json:"citations,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// Validate checks that the action carries the fields its type requires.
func (a BoardAction) Validate() error {
	switch a.Type {
	case ActionCreateCard:
		if a.Card == nil {
			return fmt.Errorf("create_card: card is required")
		}
		if a.Card.CardID == "" {
			return fmt.Errorf("create_card: card.card_id is required")
		}
	case ActionUpdateCard:
		if a.CardID == "" {
			return fmt.Errorf("update_card: card_id is required")
		}
		if a.Patch == nil {
			return fmt.Errorf("update_card: patch is required")
		}
	case ActionMoveCard:
		if a.CardID == "" {
			return fmt.Errorf("move_card: card_id is required")
		}
		if a.Rect == nil {
			return fmt.Errorf("move_card: rect is required")
		}
	case ActionDismissCard:
		if a.CardID == "" {
			return fmt.Errorf("dismiss_card: card_id is required")
		}
	default:
		return fmt.Errorf("unknown board action type: %q", a.Type)
	}
	return nil
}

// Mindmap action discriminators.
const (
	ActionUpsertNode       = "upsert_node"
	ActionSetNodePos       = "set_node_pos"
	ActionSetCollapsed     = "set_collapsed"
	ActionRenameNode       = "rename_node"
	ActionReparentNode     = "reparent_node"
	ActionDeleteSubtree    = "delete_subtree"
)

// MindmapAction is the flat tagged union of mindmap mutations.
type MindmapAction struct {
	Type string `json:"type"`

	// upsert_node
	Node *MindmapNode `json:"node,omitempty"`

	// everything else
	NodeID      string   `json:"node_id,omitempty"`
	Pos         *Point   `json:"pos,omitempty"`
	Collapsed   *bool    `json:"collapsed,omitempty"`
	Text        *string  `json:"text,omitempty"`
	NewParentID *string  `json:"new_parent_id,omitempty"`
}

// Validate checks that the action carries the fields its type requires.
func (a MindmapAction) Validate() error {
	switch a.Type {
	case ActionUpsertNode:
		if a.Node == nil {
			return fmt.Errorf("upsert_node: node is required")
		}
		if a.Node.NodeID == "" {
			return fmt.Errorf("upsert_node: node.node_id is required")
		}
	case ActionSetNodePos:
		if a.NodeID == "" {
			return fmt.Errorf("set_node_pos: node_id is required")
		}
		if a.Pos == nil {
			return fmt.Errorf("set_node_pos: pos is required")
		}
	case ActionSetCollapsed:
		if a.NodeID == "" {
			return fmt.Errorf("set_collapsed: node_id is required")
		}
		if a.Collapsed == nil {
			return fmt.Errorf("set_collapsed: collapsed is required")
		}
	case ActionRenameNode:
		if a.NodeID == "" {
			return fmt.Errorf("rename_node: node_id is required")
		}
		if a.Text == nil {
			return fmt.Errorf("rename_node: text is required")
		}
	case ActionReparentNode:
		if a.NodeID == "" {
			return fmt.Errorf("reparent_node: node_id is required")
		}
	case ActionDeleteSubtree:
		if a.NodeID == "" {
			return fmt.Errorf("delete_subtree: node_id is required")
		}
	default:
		return fmt.Errorf("unknown mindmap action type: %q", a.Type)
	}
	return nil
}
