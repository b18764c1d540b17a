// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/meetingcanvas/services/realtime/board"
	"github.com/AleutianAI/meetingcanvas/services/realtime/config"
	"github.com/AleutianAI/meetingcanvas/services/realtime/mindmap"
	"github.com/AleutianAI/meetingcanvas/services/realtime/session"
)

type testRig struct {
	conn        *websocket.Conn
	store       *session.Store
	boardRuns   *atomic.Int64
	mindmapRuns *atomic.Int64
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		DefaultLocation: "Seattle",
		MindmapAI:       true,
	}
	mmCfg := mindmap.NewConfig()
	store := session.New(session.Config{
		TranscriptMaxEvents: 50,
		TranscriptMaxAge:    2 * time.Minute,
	}, board.NewReducer(), mmCfg.RootID, slog.Default())

	boardRuns := &atomic.Int64{}
	mindmapRuns := &atomic.Int64{}

	router := gin.New()
	router.GET("/ws", HandleRealtimeWebSocket(Deps{
		Cfg:               cfg,
		Store:             store,
		Mindmap:           mmCfg,
		Logger:            slog.Default(),
		RequestBoardRun:   func() { boardRuns.Add(1) },
		RequestMindmapRun: func() { mindmapRuns.Add(1) },
	}))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	return &testRig{conn: conn, store: store, boardRuns: boardRuns, mindmapRuns: mindmapRuns}
}

func (r *testRig) read(t *testing.T) map[string]any {
	t.Helper()
	require.NoError(t, r.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, r.conn.ReadJSON(&msg))
	return msg
}

func (r *testRig) write(t *testing.T, msg map[string]any) {
	t.Helper()
	require.NoError(t, r.conn.WriteJSON(msg))
}

// drainHandshake consumes the four connect-time messages.
func (r *testRig) drainHandshake(t *testing.T) {
	t.Helper()
	for i := 0; i < 4; i++ {
		r.read(t)
	}
}

func TestWebSocket_Handshake(t *testing.T) {
	rig := newTestRig(t)

	msg := rig.read(t)
	assert.Equal(t, "status", msg["type"])
	assert.Equal(t, "Connected.", msg["message"])

	msg = rig.read(t)
	assert.Equal(t, "board_actions", msg["type"])
	assert.Empty(t, msg["actions"])
	assert.NotNil(t, msg["state"])

	msg = rig.read(t)
	assert.Equal(t, "mindmap_actions", msg["type"])

	msg = rig.read(t)
	assert.Equal(t, "mindmap_status", msg["type"])
	assert.Equal(t, "idle", msg["status"])
}

func TestWebSocket_PingPong(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{"type": "ping"})
	assert.Equal(t, "pong", rig.read(t)["type"])
}

func TestWebSocket_UnknownType(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{"type": "bogus"})
	msg := rig.read(t)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "Unknown message type")
}

func TestWebSocket_TranscriptEventUpdatesMindmapAndSchedules(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{
		"type": "transcript_event",
		"event": map[string]any{
			"speaker":  "Ada",
			"text":     "Decision: ship the beta on Friday",
			"is_final": true,
		},
	})

	// Prefix extraction lands on the mindmap without a model round.
	msg := rig.read(t)
	require.Equal(t, "mindmap_actions", msg["type"])
	assert.NotEmpty(t, msg["actions"])

	require.Eventually(t, func() bool {
		return rig.boardRuns.Load() == 1 && rig.mindmapRuns.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	state := rig.store.MindmapState()
	assert.NotEmpty(t, state.Nodes)
}

func TestWebSocket_TranscriptEventRejectsMissingText(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{
		"type":  "transcript_event",
		"event": map[string]any{"speaker": "Ada"},
	})
	msg := rig.read(t)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Invalid transcript_event payload.", msg["message"])
	assert.Zero(t, rig.boardRuns.Load())
}

func TestWebSocket_RunAI(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{"type": "run_ai"})
	msg := rig.read(t)
	assert.Equal(t, "status", msg["type"])
	assert.Equal(t, "AI run requested by user.", msg["message"])
	require.Eventually(t, func() bool { return rig.boardRuns.Load() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_SetSessionContext(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{
		"type":             "set_session_context",
		"default_location": "Portland, OR",
		"no_browse":        true,
	})
	msg := rig.read(t)
	assert.Equal(t, "status", msg["type"])
	assert.Equal(t, "Session context updated (location=Portland, OR, external_research=off).", msg["message"])

	require.Eventually(t, func() bool {
		loc := rig.store.DefaultLocation()
		nb := rig.store.NoBrowseOverride()
		return loc != nil && *loc == "Portland, OR" && nb != nil && *nb
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_SetSessionContextRejectsEmptyLocation(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{
		"type":             "set_session_context",
		"default_location": "   ",
	})
	msg := rig.read(t)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Invalid set_session_context payload.", msg["message"])
}

func TestWebSocket_ClientBoardActionRejectsCreates(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{
		"type": "client_board_action",
		"action": map[string]any{
			"type": "create_card",
			"card": map[string]any{
				"card_id": "c1",
				"kind":    "list",
				"props":   map[string]any{"title": "Sneaky", "items": []any{}},
			},
		},
	})
	msg := rig.read(t)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Unsupported board action type.", msg["message"])
}

func TestWebSocket_ClientMindmapActionAllowsMoves(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{
		"type": "client_mindmap_action",
		"action": map[string]any{
			"type":    "set_node_pos",
			"node_id": "mm:root",
			"pos":     map[string]any{"x": 10, "y": 20},
		},
	})
	msg := rig.read(t)
	assert.Equal(t, "mindmap_actions", msg["type"])
}

func TestWebSocket_ClientMindmapActionRejectsUpserts(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{
		"type": "client_mindmap_action",
		"action": map[string]any{
			"type": "upsert_node",
			"node": map[string]any{"node_id": "n1", "text": "nope"},
		},
	})
	msg := rig.read(t)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Unsupported mindmap action type.", msg["message"])
}

func TestWebSocket_ResetBroadcastsEmptyState(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{"type": "reset"})

	msg := rig.read(t)
	assert.Equal(t, "status", msg["type"])
	assert.Equal(t, "State reset.", msg["message"])
	assert.Equal(t, "board_actions", rig.read(t)["type"])
	assert.Equal(t, "mindmap_actions", rig.read(t)["type"])
	assert.Equal(t, "mindmap_status", rig.read(t)["type"])
}

func TestWebSocket_ExportImportRoundTrip(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{
		"type": "import_board",
		"state": map[string]any{
			"cards": map[string]any{
				"c1": map[string]any{
					"card_id": "c1",
					"kind":    "list",
					"props":   map[string]any{"title": "Imported", "items": []any{}},
					"sources": []any{},
				},
			},
			"layout":    map[string]any{"c1": map[string]any{"x": 0, "y": 0, "w": 100, "h": 100}},
			"dismissed": map[string]any{},
		},
		"default_location": "Boston",
		"no_browse":        false,
	})

	msg := rig.read(t)
	assert.Equal(t, "status", msg["type"])
	assert.Equal(t, "Board imported.", msg["message"])
	msg = rig.read(t)
	require.Equal(t, "board_actions", msg["type"])
	state := msg["state"].(map[string]any)
	assert.Contains(t, state["cards"], "c1")

	rig.write(t, map[string]any{"type": "export_board"})
	msg = rig.read(t)
	require.Equal(t, "board_export", msg["type"])
	assert.Equal(t, "Boston", msg["default_location"])
	assert.Equal(t, false, msg["no_browse"])
	exported := msg["state"].(map[string]any)
	assert.Contains(t, exported["cards"], "c1")
}

func TestWebSocket_ImportRejectsMalformedState(t *testing.T) {
	rig := newTestRig(t)
	rig.drainHandshake(t)

	rig.write(t, map[string]any{"type": "import_board", "state": "not an object"})
	msg := rig.read(t)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Invalid import_board payload.", msg["message"])
}
