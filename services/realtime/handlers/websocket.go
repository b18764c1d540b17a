// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes the realtime websocket protocol over gin.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/meetingcanvas/services/realtime/board"
	"github.com/AleutianAI/meetingcanvas/services/realtime/config"
	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/mindmap"
	"github.com/AleutianAI/meetingcanvas/services/realtime/native"
	"github.com/AleutianAI/meetingcanvas/services/realtime/observability"
	"github.com/AleutianAI/meetingcanvas/services/realtime/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

// Deps wires the websocket handler to the rest of the service. The two
// Request callbacks poke the board / mindmap schedulers; SaveNow forces
// an immediate durable write and may be nil.
type Deps struct {
	Cfg               config.Config
	Store             *session.Store
	Mindmap           mindmap.Config
	Logger            *slog.Logger
	RequestBoardRun   func()
	RequestMindmapRun func()
	SaveNow           func() error
}

// wsClient adapts one gorilla connection to session.Client. gorilla
// connections allow a single concurrent writer, and broadcasts arrive
// from producer goroutines, so every write takes the mutex.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) SendJSON(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(payload)
}

type boardExportPayload struct {
	Type            string               `json:"type"`
	State           datatypes.BoardState `json:"state"`
	DefaultLocation *string              `json:"default_location,omitempty"`
	NoBrowse        *bool                `json:"no_browse,omitempty"`
}

func errorPayload(message string, details map[string]any) map[string]any {
	payload := map[string]any{"type": datatypes.MsgError, "message": message}
	if details != nil {
		payload["details"] = details
	}
	return payload
}

// HandleRealtimeWebSocket serves the /ws protocol: a handshake snapshot
// followed by a client message loop. Session mutations broadcast to every
// connected client; validation errors go only to the sender.
func HandleRealtimeWebSocket(deps Deps) gin.HandlerFunc {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	validate := board.NewValidator()

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		client := &wsClient{conn: conn}
		deps.Store.AddClient(client)
		defer deps.Store.RemoveClient(client)
		if m := observability.DefaultMetrics; m != nil {
			m.ConnectedClients.Inc()
			defer m.ConnectedClients.Dec()
		}
		logger.Info("websocket client connected")

		if err := sendHandshake(client, deps.Store); err != nil {
			return
		}

		for {
			var raw map[string]json.RawMessage
			if err := conn.ReadJSON(&raw); err != nil {
				logger.Info("websocket client disconnected", "error", err.Error())
				return
			}
			if raw == nil {
				_ = client.SendJSON(errorPayload("Invalid message; expected JSON object.", nil))
				continue
			}

			var msgType string
			if t, ok := raw["type"]; ok {
				_ = json.Unmarshal(t, &msgType)
			}
			if m := observability.DefaultMetrics; m != nil {
				m.MessagesTotal.WithLabelValues(msgType).Inc()
			}

			switch msgType {
			case "ping":
				if client.SendJSON(map[string]any{"type": datatypes.MsgPong}) != nil {
					return
				}

			case "reset":
				handleReset(deps)

			case "export_board":
				snap := deps.Store.Export()
				payload := boardExportPayload{
					Type:            datatypes.MsgBoardExport,
					State:           snap.BoardState,
					DefaultLocation: snap.DefaultLocation,
					NoBrowse:        snap.NoBrowse,
				}
				if client.SendJSON(payload) != nil {
					return
				}

			case "import_board":
				handleImportBoard(deps, validate, client, raw)

			case "transcript_event":
				handleTranscriptEvent(deps, validate, client, raw)

			case "run_ai":
				_ = client.SendJSON(map[string]any{"type": datatypes.MsgStatus, "message": "AI run requested by user."})
				if deps.RequestBoardRun != nil {
					deps.RequestBoardRun()
				}

			case "set_session_context":
				handleSetSessionContext(deps, client, raw)

			case "client_board_action":
				handleClientBoardAction(deps, client, raw)

			case "client_mindmap_action":
				handleClientMindmapAction(deps, client, raw)

			default:
				_ = client.SendJSON(errorPayload(
					fmt.Sprintf("Unknown message type: %q", msgType),
					map[string]any{"type": msgType},
				))
			}
		}
	}
}

// sendHandshake gives a fresh client everything it needs to render:
// current board, current mindmap, and an idle extractor.
func sendHandshake(client *wsClient, store *session.Store) error {
	if err := client.SendJSON(map[string]any{"type": datatypes.MsgStatus, "message": "Connected."}); err != nil {
		return err
	}
	_, _, boardState := store.BoardSnapshot()
	if err := client.SendJSON(datatypes.NewBoardActionsPayload(nil, boardState)); err != nil {
		return err
	}
	if err := client.SendJSON(datatypes.NewMindmapActionsPayload(nil, store.MindmapState())); err != nil {
		return err
	}
	return client.SendJSON(datatypes.NewMindmapStatusPayload("idle"))
}

func handleReset(deps Deps) {
	deps.Store.Reset()
	deps.Store.Status("State reset.")
	deps.Store.Broadcast(datatypes.NewBoardActionsPayload(nil, datatypes.EmptyBoardState()))
	deps.Store.Broadcast(datatypes.NewMindmapActionsPayload(nil, datatypes.EmptyMindmapState(deps.Mindmap.RootID)))
	deps.Store.Broadcast(datatypes.NewMindmapStatusPayload("idle"))
}

func handleImportBoard(deps Deps, validate *validator.Validate, client *wsClient, raw map[string]json.RawMessage) {
	stateRaw, ok := raw["state"]
	if !ok || !isJSONObject(stateRaw) {
		_ = client.SendJSON(errorPayload("Invalid import_board payload.",
			map[string]any{"state": "Expected JSON object."}))
		return
	}

	var nextState datatypes.BoardState
	if err := json.Unmarshal(stateRaw, &nextState); err != nil {
		_ = client.SendJSON(errorPayload("Invalid import_board payload.",
			map[string]any{"errors": err.Error()}))
		return
	}
	for cardID, card := range nextState.Cards {
		if err := board.ValidateCard(validate, card); err != nil {
			_ = client.SendJSON(errorPayload("Invalid import_board payload.",
				map[string]any{"errors": fmt.Sprintf("card %s: %v", cardID, err)}))
			return
		}
	}
	if nextState.Cards == nil {
		nextState.Cards = map[string]datatypes.Card{}
	}
	if nextState.Layout == nil {
		nextState.Layout = map[string]datatypes.Rect{}
	}
	if nextState.Dismissed == nil {
		nextState.Dismissed = map[string]string{}
	}

	opts := session.ReplaceOptions{}
	if locRaw, present := raw["default_location"]; present {
		opts.HasDefaultLocation = true
		if !isJSONNull(locRaw) {
			var loc string
			if err := json.Unmarshal(locRaw, &loc); err != nil || strings.TrimSpace(loc) == "" {
				_ = client.SendJSON(errorPayload("Invalid import_board payload.",
					map[string]any{"default_location": "Expected non-empty string or null."}))
				return
			}
			trimmed := strings.TrimSpace(loc)
			opts.DefaultLocation = &trimmed
		}
	}
	if nbRaw, present := raw["no_browse"]; present {
		opts.HasNoBrowse = true
		if !isJSONNull(nbRaw) {
			var nb bool
			if err := json.Unmarshal(nbRaw, &nb); err != nil {
				_ = client.SendJSON(errorPayload("Invalid import_board payload.",
					map[string]any{"no_browse": "Expected boolean or null."}))
				return
			}
			opts.NoBrowse = &nb
		}
	}

	imported := deps.Store.ReplaceBoardState(nextState, opts)
	if deps.SaveNow != nil {
		if err := deps.SaveNow(); err != nil && deps.Logger != nil {
			deps.Logger.Warn("post-import save failed", "error", err)
		}
	}

	deps.Store.Status("Board imported.")
	deps.Store.Broadcast(datatypes.NewBoardActionsPayload(nil, imported))
}

func handleTranscriptEvent(deps Deps, validate *validator.Validate, client *wsClient, raw map[string]json.RawMessage) {
	eventRaw, ok := raw["event"]
	if !ok {
		_ = client.SendJSON(errorPayload("Invalid transcript_event payload.",
			map[string]any{"event": "Expected JSON object."}))
		return
	}

	var event datatypes.TranscriptEvent
	if err := json.Unmarshal(eventRaw, &event); err != nil {
		_ = client.SendJSON(errorPayload("Invalid transcript_event payload.",
			map[string]any{"errors": err.Error()}))
		return
	}
	if err := validate.Struct(event); err != nil {
		_ = client.SendJSON(errorPayload("Invalid transcript_event payload.",
			map[string]any{"errors": err.Error()}))
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	deps.Store.AddTranscriptEvent(event)

	// Prefix-matched items (Decision:, Action item:, ...) land on the
	// mindmap immediately, without waiting for the extractor.
	actions, nextState, changed := deps.Store.UpdateMindmap(
		func(events []datatypes.TranscriptEvent, state datatypes.MindmapState) ([]datatypes.MindmapAction, datatypes.MindmapState) {
			return native.EnsureMindmapItems(state, deps.Mindmap, native.ExtractItems(events))
		})
	if changed {
		deps.Store.Broadcast(datatypes.NewMindmapActionsPayload(actions, nextState))
	}

	mindmapAI := deps.Cfg.MindmapAI
	if override := deps.Store.MindmapAIOverride(); override != nil {
		mindmapAI = *override
	}
	if mindmapAI && deps.RequestMindmapRun != nil {
		deps.RequestMindmapRun()
	}
	if event.IsFinal && deps.RequestBoardRun != nil {
		deps.RequestBoardRun()
	}
}

func handleSetSessionContext(deps Deps, client *wsClient, raw map[string]json.RawMessage) {
	var defaultLocation *string
	hasDefaultLocation := false
	if locRaw, present := raw["default_location"]; present {
		hasDefaultLocation = true
		var loc string
		if err := json.Unmarshal(locRaw, &loc); err != nil || strings.TrimSpace(loc) == "" {
			_ = client.SendJSON(errorPayload("Invalid set_session_context payload.",
				map[string]any{"default_location": "Expected non-empty string."}))
			return
		}
		trimmed := strings.TrimSpace(loc)
		defaultLocation = &trimmed
	}

	var noBrowse *bool
	if nbRaw, present := raw["no_browse"]; present {
		var nb bool
		if err := json.Unmarshal(nbRaw, &nb); err != nil {
			_ = client.SendJSON(errorPayload("Invalid set_session_context payload.",
				map[string]any{"no_browse": "Expected boolean."}))
			return
		}
		noBrowse = &nb
	}

	var mindmapAI *bool
	if aiRaw, present := raw["mindmap_ai"]; present {
		var ai bool
		if err := json.Unmarshal(aiRaw, &ai); err != nil {
			_ = client.SendJSON(errorPayload("Invalid set_session_context payload.",
				map[string]any{"mindmap_ai": "Expected boolean."}))
			return
		}
		mindmapAI = &ai
	}

	if defaultLocation != nil {
		deps.Store.SetDefaultLocation(*defaultLocation)
	} else if deps.Store.DefaultLocation() == nil {
		deps.Store.SetDefaultLocation(deps.Cfg.DefaultLocation)
	}
	if noBrowse != nil {
		deps.Store.SetNoBrowseOverride(noBrowse)
	}
	if mindmapAI != nil {
		deps.Store.SetMindmapAIOverride(mindmapAI)
	}

	var parts []string
	if defaultLocation != nil {
		parts = append(parts, "location="+*defaultLocation)
	}
	if noBrowse != nil {
		state := "on"
		if *noBrowse {
			state = "off"
		}
		parts = append(parts, "external_research="+state)
	}
	if mindmapAI != nil {
		state := "off"
		if *mindmapAI {
			state = "on"
		}
		parts = append(parts, "mindmap_ai="+state)
	}

	message := "Session context updated."
	switch {
	case noBrowse != nil || mindmapAI != nil:
		message = fmt.Sprintf("Session context updated (%s).", strings.Join(parts, ", "))
	case hasDefaultLocation && defaultLocation != nil:
		message = fmt.Sprintf("Session default location set to %s.", *defaultLocation)
	}
	_ = client.SendJSON(map[string]any{"type": datatypes.MsgStatus, "message": message})
}

func handleClientBoardAction(deps Deps, client *wsClient, raw map[string]json.RawMessage) {
	actionRaw, ok := raw["action"]
	if !ok || !isJSONObject(actionRaw) {
		_ = client.SendJSON(errorPayload("Invalid client_board_action payload.",
			map[string]any{"action": "Expected JSON object."}))
		return
	}

	var action datatypes.BoardAction
	if err := json.Unmarshal(actionRaw, &action); err != nil {
		_ = client.SendJSON(errorPayload("Invalid board action payload.",
			map[string]any{"errors": err.Error()}))
		return
	}
	if err := action.Validate(); err != nil {
		_ = client.SendJSON(errorPayload("Invalid board action payload.",
			map[string]any{"errors": err.Error()}))
		return
	}

	// Clients only move and dismiss; card content stays producer-owned.
	if action.Type != datatypes.ActionMoveCard && action.Type != datatypes.ActionDismissCard {
		_ = client.SendJSON(errorPayload("Unsupported board action type.",
			map[string]any{"allowed": []string{"move_card", "dismiss_card"}, "type": action.Type}))
		return
	}

	_, next := deps.Store.ApplyBoardNow([]datatypes.BoardAction{action})
	deps.Store.Broadcast(datatypes.NewBoardActionsPayload([]datatypes.BoardAction{action}, next))
}

var clientMindmapActionTypes = map[string]struct{}{
	datatypes.ActionSetNodePos:    {},
	datatypes.ActionSetCollapsed:  {},
	datatypes.ActionRenameNode:    {},
	datatypes.ActionReparentNode:  {},
	datatypes.ActionDeleteSubtree: {},
}

func handleClientMindmapAction(deps Deps, client *wsClient, raw map[string]json.RawMessage) {
	actionRaw, ok := raw["action"]
	if !ok || !isJSONObject(actionRaw) {
		_ = client.SendJSON(errorPayload("Invalid client_mindmap_action payload.",
			map[string]any{"action": "Expected JSON object."}))
		return
	}

	var action datatypes.MindmapAction
	if err := json.Unmarshal(actionRaw, &action); err != nil {
		_ = client.SendJSON(errorPayload("Invalid mindmap action payload.",
			map[string]any{"errors": err.Error()}))
		return
	}
	if err := action.Validate(); err != nil {
		_ = client.SendJSON(errorPayload("Invalid mindmap action payload.",
			map[string]any{"errors": err.Error()}))
		return
	}

	// Node creation is producer-owned; clients rearrange and prune.
	if _, allowed := clientMindmapActionTypes[action.Type]; !allowed {
		_ = client.SendJSON(errorPayload("Unsupported mindmap action type.",
			map[string]any{
				"allowed": []string{"set_node_pos", "set_collapsed", "rename_node", "reparent_node", "delete_subtree"},
				"type":    action.Type,
			}))
		return
	}

	_, next := deps.Store.ApplyMindmapNow([]datatypes.MindmapAction{action})
	deps.Store.Broadcast(datatypes.NewMindmapActionsPayload([]datatypes.MindmapAction{action}, next))
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
