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

// Outbound websocket message types.
const (
	MsgStatus         = "status"
	MsgError          = "error"
	MsgPong           = "pong"
	MsgBoardActions   = "board_actions"
	MsgMindmapActions = "mindmap_actions"
	MsgMindmapStatus  = "mindmap_status"
	MsgBoardExport    = "board_export"
)

// BoardActionsPayload carries an applied batch plus the resulting board
// snapshot so late-joining clients can resync from any message.
type BoardActionsPayload struct {
	Type    string        `json:"type"`
	Actions []BoardAction `json:"actions"`
	State   BoardState    `json:"state"`
}

// NewBoardActionsPayload builds a board_actions broadcast. A nil actions
// slice marshals as [] so clients never see null.
func NewBoardActionsPayload(actions []BoardAction, state BoardState) BoardActionsPayload {
	if actions == nil {
		actions = []BoardAction{}
	}
	return BoardActionsPayload{Type: MsgBoardActions, Actions: actions, State: state}
}

// MindmapActionsPayload mirrors BoardActionsPayload for the mindmap.
type MindmapActionsPayload struct {
	Type    string          `json:"type"`
	Actions []MindmapAction `json:"actions"`
	State   MindmapState    `json:"state"`
}

// NewMindmapActionsPayload builds a mindmap_actions broadcast.
func NewMindmapActionsPayload(actions []MindmapAction, state MindmapState) MindmapActionsPayload {
	if actions == nil {
		actions = []MindmapAction{}
	}
	return MindmapActionsPayload{Type: MsgMindmapActions, Actions: actions, State: state}
}

// MindmapStatusPayload signals extractor activity ("running" / "idle").
type MindmapStatusPayload struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// NewMindmapStatusPayload builds a mindmap_status broadcast.
func NewMindmapStatusPayload(status string) MindmapStatusPayload {
	return MindmapStatusPayload{Type: MsgMindmapStatus, Status: status}
}
