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
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/meetingcanvas/services/llm"
	"github.com/AleutianAI/meetingcanvas/services/realtime/board"
	"github.com/AleutianAI/meetingcanvas/services/realtime/config"
	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/mindmap"
	"github.com/AleutianAI/meetingcanvas/services/realtime/native"
	"github.com/AleutianAI/meetingcanvas/services/realtime/postprocess"
	"github.com/AleutianAI/meetingcanvas/services/realtime/research"
	"github.com/AleutianAI/meetingcanvas/services/realtime/session"
)

type recordingClient struct {
	payloads []any
}

func (c *recordingClient) SendJSON(payload any) error {
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *recordingClient) statuses() []string {
	var out []string
	for _, p := range c.payloads {
		if msg, ok := p.(map[string]any); ok && msg["type"] == datatypes.MsgStatus {
			out = append(out, msg["message"].(string))
		}
	}
	return out
}

func (c *recordingClient) lastBoardActions() (datatypes.BoardActionsPayload, bool) {
	for i := len(c.payloads) - 1; i >= 0; i-- {
		if payload, ok := c.payloads[i].(datatypes.BoardActionsPayload); ok {
			return payload, true
		}
	}
	return datatypes.BoardActionsPayload{}, false
}

func testConfig() config.Config {
	return config.Config{
		Model:                     "test",
		DefaultLocation:           "Seattle",
		MindmapAI:                 true,
		FakeAI:                    true,
		MindmapStubMaxPhrases:     16,
		TranscriptMaxEvents:       50,
		TranscriptMaxAge:          2 * time.Minute,
		DedupeTitleSimilarity:     true,
		MaxCreatesPerMinute:       2,
		MinBetweenCreates:         20 * time.Second,
		MindmapFinalBudgets:       config.MindmapBudgets{MaxNewNodes: 12, MaxNewRootTopics: 4},
		MindmapInterimBudgets:     config.MindmapBudgets{MaxNewNodes: 3, MaxNewRootTopics: 0},
		MindmapBeforeFinalBudgets: config.MindmapBudgets{MaxNewNodes: 6, MaxNewRootTopics: 2},
	}
}

func newTestStore(t *testing.T) (*session.Store, *recordingClient) {
	t.Helper()
	store := session.New(session.Config{
		TranscriptMaxEvents: 50,
		TranscriptMaxAge:    2 * time.Minute,
	}, board.NewReducer(), "mm:root", slog.Default())
	client := &recordingClient{}
	store.AddClient(client)
	return store, client
}

func newBoardProducer(cfg config.Config, store *session.Store, client llm.Client) *BoardProducer {
	proc := postprocess.New(postprocess.Config{
		DedupeEnabled:     cfg.DedupeTitleSimilarity,
		MaxPerMinute:      cfg.MaxCreatesPerMinute,
		MinBetweenCreates: cfg.MinBetweenCreates,
		BypassCardIDs:     native.BaseListCardIDs(),
	})
	return NewBoardProducer(cfg, store, client, research.NewRegistry(), board.NewReducer(), proc, slog.Default())
}

func addFinalEvent(store *session.Store, text string) {
	store.AddTranscriptEvent(datatypes.TranscriptEvent{
		Timestamp: time.Now(),
		Speaker:   "Ada",
		Text:      text,
		IsFinal:   true,
	})
}

func TestBoardProducer_OfflineExtractsNativeCards(t *testing.T) {
	store, client := newTestStore(t)
	addFinalEvent(store, "Decision: adopt the phased rollout plan")
	addFinalEvent(store, "Action item: Maya drafts the migration checklist")

	producer := newBoardProducer(testConfig(), store, nil)
	producer.Run(context.Background())

	_, _, state := store.BoardSnapshot()
	require.Contains(t, state.Cards, "list-decisions")
	require.Contains(t, state.Cards, "list-actions")

	var props datatypes.ListCardProps
	require.NoError(t, json.Unmarshal(state.Cards["list-decisions"].Props, &props))
	require.Len(t, props.Items, 1)
	assert.Equal(t, "adopt the phased rollout plan", props.Items[0].Text)

	payload, ok := client.lastBoardActions()
	require.True(t, ok, "expected a board_actions broadcast")
	assert.NotEmpty(t, payload.Actions)
	assert.Contains(t, payload.State.Cards, "list-decisions")
}

func TestBoardProducer_OfflineNoMatchesIsQuiet(t *testing.T) {
	store, client := newTestStore(t)
	addFinalEvent(store, "Just some casual chatter about lunch")

	producer := newBoardProducer(testConfig(), store, nil)
	producer.Run(context.Background())

	_, _, state := store.BoardSnapshot()
	assert.Empty(t, state.Cards)
	_, ok := client.lastBoardActions()
	assert.False(t, ok)
}

func TestBoardProducer_ModelPathAppliesPlannerActions(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	store, client := newTestStore(t)
	addFinalEvent(store, "We should track the dashboard workstream")

	stub := &llm.StubClient{
		Responses: map[string]string{
			"Return a single JSON decision object": `{"research_tasks": [], "proposals": []}`,
			"Output a JSON array of board action objects": `[
				{
					"type": "create_card",
					"card": {
						"card_id": "c-dashboard",
						"kind": "list",
						"props": {"title": "Dashboard Workstream", "items": [{"text": "Track progress weekly"}]}
					},
					"rect": {"x": 40, "y": 40, "w": 420, "h": 280}
				}
			]`,
		},
	}

	cfg := testConfig()
	cfg.Model = "openai:gpt-4o-mini"
	cfg.FakeAI = false
	producer := newBoardProducer(cfg, store, stub)
	producer.Run(context.Background())

	require.Len(t, stub.Calls, 2, "orchestrator then planner")

	_, _, state := store.BoardSnapshot()
	require.Contains(t, state.Cards, "c-dashboard")

	statuses := client.statuses()
	assert.Contains(t, statuses, "Running orchestrator…")
	assert.Contains(t, statuses, "Running board planner…")
}

func TestBoardProducer_ModelFailureBroadcastsHumanizedError(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	store, client := newTestStore(t)
	addFinalEvent(store, "We should track the dashboard workstream")

	stub := &llm.StubClient{Err: errors.New("status code: 429 insufficient_quota")}

	cfg := testConfig()
	cfg.Model = "openai:gpt-4o-mini"
	cfg.FakeAI = false
	producer := newBoardProducer(cfg, store, stub)
	producer.Run(context.Background())

	var sawError bool
	for _, p := range client.payloads {
		msg, ok := p.(map[string]any)
		if !ok || msg["type"] != datatypes.MsgError {
			continue
		}
		sawError = true
		assert.Equal(t, "AI loop failed: provider quota/rate limit (HTTP 429).", msg["message"])
	}
	assert.True(t, sawError, "expected an error broadcast")
}

func TestBoardProducer_NoBrowseSanitizesSourcedActions(t *testing.T) {
	store, client := newTestStore(t)
	producer := newBoardProducer(testConfig(), store, nil)

	props, err := json.Marshal(datatypes.ListCardProps{Title: "Sourced", Items: nil})
	require.NoError(t, err)
	actions := []datatypes.BoardAction{
		{
			Type: datatypes.ActionCreateCard,
			Card: &datatypes.Card{
				CardID:  "c-sourced",
				Kind:    datatypes.CardKindList,
				Props:   props,
				Sources: []datatypes.Citation{{URL: "https://example.com", RetrievedAt: time.Now()}},
			},
		},
		{
			Type:      datatypes.ActionUpdateCard,
			CardID:    "c-existing",
			Patch:     map[string]any{"props": map[string]any{"title": "T"}, "sources": []any{}},
			Citations: []datatypes.Citation{{URL: "https://example.com", RetrievedAt: time.Now()}},
		},
		{
			Type:   datatypes.ActionDismissCard,
			CardID: "c-other",
		},
	}

	sanitized := producer.sanitizeNoBrowse(actions)

	require.Len(t, sanitized, 2)
	assert.Equal(t, datatypes.ActionUpdateCard, sanitized[0].Type)
	assert.NotContains(t, sanitized[0].Patch, "sources")
	assert.Empty(t, sanitized[0].Citations)
	assert.Equal(t, datatypes.ActionDismissCard, sanitized[1].Type)

	statuses := client.statuses()
	assert.Contains(t, statuses, "Skipped 1 action(s) with external citations (external research is off).")
	assert.Contains(t, statuses, "Removed citations from 1 action(s) (external research is off).")
}

func TestMindmapProducer_StubRunBuildsTranscriptTopic(t *testing.T) {
	store, client := newTestStore(t)
	addFinalEvent(store, "We agreed to launch the beta program next month.")

	producer := NewMindmapProducer(testConfig(), mindmap.NewConfig(), store, nil, slog.Default())
	producer.Run(context.Background())

	state := store.MindmapState()
	require.NotEmpty(t, state.Nodes)

	var sawTranscriptTopic bool
	for _, node := range state.Nodes {
		if node.Text == "Transcript" {
			sawTranscriptTopic = true
		}
	}
	assert.True(t, sawTranscriptTopic, "expected a Transcript topic node")

	var sawRunning, sawIdle, sawActions bool
	for _, p := range client.payloads {
		switch payload := p.(type) {
		case datatypes.MindmapStatusPayload:
			if payload.Status == "running" {
				sawRunning = true
			}
			if payload.Status == "idle" {
				sawIdle = true
			}
		case datatypes.MindmapActionsPayload:
			sawActions = true
			assert.NotEmpty(t, payload.Actions)
		}
	}
	assert.True(t, sawRunning)
	assert.True(t, sawIdle)
	assert.True(t, sawActions)
}

func TestMindmapProducer_SkipsWhenTranscriptUnchanged(t *testing.T) {
	store, client := newTestStore(t)
	addFinalEvent(store, "We agreed to launch the beta program next month.")

	producer := NewMindmapProducer(testConfig(), mindmap.NewConfig(), store, nil, slog.Default())
	producer.Run(context.Background())
	broadcastsAfterFirst := len(client.payloads)

	producer.Run(context.Background())
	assert.Equal(t, broadcastsAfterFirst, len(client.payloads), "unchanged transcript should not rebroadcast")
}

func TestMindmapProducer_DisabledByOverride(t *testing.T) {
	store, client := newTestStore(t)
	addFinalEvent(store, "We agreed to launch the beta program next month.")
	off := false
	store.SetMindmapAIOverride(&off)

	producer := NewMindmapProducer(testConfig(), mindmap.NewConfig(), store, nil, slog.Default())
	producer.Run(context.Background())

	assert.Empty(t, store.MindmapState().Nodes)
	assert.Empty(t, client.payloads)
}

func TestMindmapWindow_PrefersFinalsPlusSubstantialInterim(t *testing.T) {
	base := time.Now()
	var events []datatypes.TranscriptEvent
	for i := 0; i < 25; i++ {
		events = append(events, datatypes.TranscriptEvent{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Text:      "final utterance with enough words to matter",
			IsFinal:   true,
		})
	}
	events = append(events, datatypes.TranscriptEvent{
		Timestamp: base.Add(30 * time.Second),
		Text:      "this interim line is clearly long enough",
		IsFinal:   false,
	})

	window := mindmapWindow(events)
	require.Len(t, window, 19)
	assert.False(t, window[len(window)-1].IsFinal)

	// A short interim tail is ignored.
	events[len(events)-1].Text = "too short"
	window = mindmapWindow(events)
	require.Len(t, window, 18)
	assert.True(t, window[len(window)-1].IsFinal)
}

func TestStubPathProposals_ChunksAndDedupes(t *testing.T) {
	events := []datatypes.TranscriptEvent{
		{Text: "[00:01] Ada: We need to finalize the launch checklist before Friday", IsFinal: true},
		{Text: "We need to finalize the launch checklist before Friday", IsFinal: true},
	}

	proposals := StubPathProposals(events, 16)
	require.NotEmpty(t, proposals)
	for _, p := range proposals {
		require.Len(t, p.Path, 2)
		assert.Equal(t, "Transcript", p.Path[0])
	}

	// The duplicated sentence contributes no extra phrases.
	seen := map[string]int{}
	for _, p := range proposals {
		seen[p.Path[1]]++
	}
	for phrase, count := range seen {
		assert.Equal(t, 1, count, "phrase %q repeated", phrase)
	}
}

func TestStubPathProposals_RespectsMaxPhrases(t *testing.T) {
	events := []datatypes.TranscriptEvent{
		{Text: "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu", IsFinal: true},
	}
	proposals := StubPathProposals(events, 2)
	assert.Len(t, proposals, 2)
	assert.Empty(t, StubPathProposals(events, 0))
}

func TestDecodeDecision_ToleratesFences(t *testing.T) {
	raw := "```json\n{\"research_tasks\": [{\"task_id\": \"t1\", \"kind\": \"december_headlines\", \"query\": \"q\"}], \"proposals\": []}\n```"
	decision, err := DecodeDecision(raw)
	require.NoError(t, err)
	require.Len(t, decision.ResearchTasks, 1)
	assert.Equal(t, "t1", decision.ResearchTasks[0].TaskID)
}

func TestDecodeBoardActions_WrapperAndValidation(t *testing.T) {
	raw := `{"actions": [
		{"type": "dismiss_card", "card_id": "c1"},
		{"type": "update_card", "card_id": ""}
	]}`
	actions, dropped, err := DecodeBoardActions(raw)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, datatypes.ActionDismissCard, actions[0].Type)
	assert.Equal(t, 1, dropped)

	_, _, err = DecodeBoardActions("not json at all")
	assert.Error(t, err)
}

func TestDecodePathProposals_BareArrayAndWrapper(t *testing.T) {
	bare := `[{"path": ["Topic", "Point one"]}, {"path": ["  "]}]`
	proposals, err := DecodePathProposals(bare)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, []string{"Topic", "Point one"}, proposals[0].Path)

	wrapped := `{"proposals": [{"path": ["A", "B", "C", "D", "E", "F", "G", "H"]}]}`
	proposals, err = DecodePathProposals(wrapped)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Len(t, proposals[0].Path, 6)
}

func TestHumanizeAIError(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	assert.Equal(t, "AI loop failed: provider quota/rate limit (HTTP 429).",
		HumanizeAIError(errors.New("rate limit exceeded"), "openai:gpt-4o-mini"))
	assert.Equal(t, "AI loop failed: invalid API key (HTTP 401).",
		HumanizeAIError(errors.New("invalid_api_key"), "openai:gpt-4o-mini"))
	assert.Equal(t, "AI loop failed.",
		HumanizeAIError(errors.New("boom"), "openai:gpt-4o-mini"))
}

func TestFormatBoardSummary(t *testing.T) {
	assert.Equal(t, "Board is empty (no active or dismissed cards).",
		FormatBoardSummary(datatypes.EmptyBoardState()))

	props, err := json.Marshal(datatypes.ListCardProps{
		Title: "Decisions",
		Items: []datatypes.ListItem{{Text: "Ship it"}},
	})
	require.NoError(t, err)

	state := datatypes.EmptyBoardState()
	state.Cards["list-decisions"] = datatypes.Card{
		CardID: "list-decisions",
		Kind:   datatypes.CardKindList,
		Props:  props,
	}
	state.Dismissed["c-old"] = "stale"

	summary := FormatBoardSummary(state)
	assert.Contains(t, summary, `- list-decisions (list) title="Decisions", items=1, sources=0`)
	assert.Contains(t, summary, "Dismissed cards:")
	assert.Contains(t, summary, `- c-old reason="stale"`)
}
