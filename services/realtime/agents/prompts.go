// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agents runs the model-driven producers of the realtime service:
// the board producer (orchestrator + planner) and the mindmap extractor.
// Each producer is a single Run function wired into a coalescing runner;
// runs never overlap.
package agents

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const orchestratorSystemPrompt = `You observe a live meeting transcript and decide what would be helpful to place on a shared whiteboard.

Rules:
- Prefer usefulness over novelty; avoid distractions.
- Use the board-state summary to avoid duplicates: prefer updating an existing topic/card over proposing a new one.
- Prefer updating existing cards; avoid proposing new ones unless it's a truly new topic (the backend may throttle/de-dupe creates).
- Propose research tasks only when a question/data-need is explicit or strongly implied.
- When creating research tasks, set fields deliberately:
  - kind:
    - weather_december_history: when people want historical December weather by year (e.g., "last 10 years").
    - december_headlines: when people want notable headlines/news for a given December time period/topic.
  - query: a short, specific search-style query; include the metric and timeframe.
  - location: only for weather tasks; default to the meeting's default location if the user doesn't specify.
  - month: use 12 for December-related tasks when applicable.
  - years: set to a small integer window when "last N years" is requested (e.g., 5, 10); otherwise omit.
  - assumptions: include any inferred choices (units C/F, "monthly average", what counts as "major headlines", etc.).
- Be conservative with assumptions; when unsure, include the assumption in the task/proposal.
- Proposals should be board-friendly and map cleanly to card kinds:
  - kind=chart for time-series style numeric data (e.g., weather history by year).
  - kind=list for headline lists or meeting notes.
- Output must be a single JSON object with "research_tasks" and "proposals" arrays.

Example (weather history request):
{
  "research_tasks": [
    {
      "task_id": "wx_dec_hist_seattle_10y",
      "kind": "weather_december_history",
      "query": "Average December temperature in Seattle by year (last 10 years)",
      "location": "Seattle, WA",
      "month": 12,
      "years": 10,
      "assumptions": {"units": "F", "definition": "monthly average temperature"}
    }
  ],
  "proposals": [
    {
      "proposal_id": "chart_dec_temp_seattle_10y",
      "title": "Seattle: Avg December Temperature (Last 10 Years)",
      "kind": "chart",
      "rationale": "Supports discussion about winter temperature trends with a simple by-year chart.",
      "priority": 80,
      "required_tasks": ["wx_dec_hist_seattle_10y"]
    }
  ]
}`

const plannerSystemPrompt = `You convert orchestrator proposals and research results into concrete board actions.

Rules:
- Prefer updating existing cards (same topic) over creating new ones.
- Prefer update_card over create_card unless it's a truly new topic (creates may be throttled/de-duped by the backend).
- Never create a chart/list that implies factual data without citations.
- Include citations in created cards via card.sources and in updates via citations when relevant.
- Output must be a JSON array of board action objects, each with a "type" of create_card, update_card, move_card, or dismiss_card.`

const mindmapSystemPrompt = `You maintain a live mindmap of a meeting from streaming transcript text.

You will receive:
- a transcript window (some lines may be INTERIM / partial)
- a summary of the existing mindmap nodes

Your job:
- Propose NEW mindmap paths that should exist based on what was said.
- Keep it stable and low-noise: do not add nodes for incomplete/interim fragments.
- Prefer reusing existing node text exactly when it matches an existing topic (avoid near-duplicates).
- Each path should be short and readable (1-6 segments; each segment ideally 2-6 words, max 8).

Title quality rules:
- Each segment must be understandable standalone and include a concrete, specific noun.
- Rewrite transcript fragments into crisp summaries (<= 8 words) that stay faithful to what was said.
- Forbid vague filler words ("things", "stuff", "concepts", "matters", "nice", etc.), pronouns-only
  segments, or overly short fragments.
- When applicable, route under meeting-native buckets: Decisions / Action Items / Open Questions /
  Risks / Next Steps.
- Prefer fewer, higher-quality paths over many low-quality ones.

Rules:
- Do NOT delete, merge, or reparent nodes.
- Do NOT invent facts; only reflect what is in the transcript window.
- Stay conservative: if unsure, output fewer paths.
- Output must be a JSON array of objects, each of the form {"path": ["Topic", ..., "Point"]}.`

// FormatTranscriptWindow renders events as prompt bullet lines.
func FormatTranscriptWindow(events []datatypes.TranscriptEvent) string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		who := ""
		if e.Speaker != "" {
			who = e.Speaker + ": "
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s%s", e.Timestamp.Format(time.RFC3339), who, e.Text))
	}
	return strings.Join(lines, "\n")
}

// FormatMindmapTranscriptWindow is like FormatTranscriptWindow but tags
// each line as final or interim so the extractor can discount fragments.
func FormatMindmapTranscriptWindow(events []datatypes.TranscriptEvent) string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		status := "interim"
		if e.IsFinal {
			status = "final"
		}
		who := ""
		if e.Speaker != "" {
			who = e.Speaker + ": "
		}
		lines = append(lines, fmt.Sprintf("- [%s] (%s) %s%s", e.Timestamp.Format(time.RFC3339), status, who, e.Text))
	}
	return strings.Join(lines, "\n")
}

// FormatBoardSummary renders the board so the model can update existing
// cards instead of duplicating them.
func FormatBoardSummary(state datatypes.BoardState) string {
	if len(state.Cards) == 0 && len(state.Dismissed) == 0 {
		return "Board is empty (no active or dismissed cards)."
	}

	var lines []string
	if len(state.Cards) > 0 {
		lines = append(lines, "Active cards:")
		for _, cardID := range sortedKeys(state.Cards) {
			card := state.Cards[cardID]
			detail := cardSummaryDetail(card)
			lines = append(lines, fmt.Sprintf("- %s (%s) title=%q%s, sources=%d",
				cardID, card.Kind, card.Title(), detail, len(card.Sources)))
		}
	}

	if len(state.Dismissed) > 0 {
		lines = append(lines, "", "Dismissed cards:")
		for _, cardID := range sortedKeys(state.Dismissed) {
			lines = append(lines, fmt.Sprintf("- %s reason=%q", cardID, strings.TrimSpace(state.Dismissed[cardID])))
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func cardSummaryDetail(card datatypes.Card) string {
	switch card.Kind {
	case datatypes.CardKindChart:
		var props datatypes.ChartCardProps
		if err := json.Unmarshal(card.Props, &props); err != nil {
			return ""
		}
		return fmt.Sprintf(", points=%d, y_label=%q", len(props.Points), props.YLabel)
	case datatypes.CardKindList:
		var props datatypes.ListCardProps
		if err := json.Unmarshal(card.Props, &props); err != nil {
			return ""
		}
		return fmt.Sprintf(", items=%d", len(props.Items))
	}
	return ""
}

func orchestratorUserPrompt(transcriptWindow, boardSummary, defaultLocation string, noBrowse bool) string {
	return strings.TrimSpace(strings.Join([]string{
		"Meeting transcript window:",
		transcriptWindow,
		"",
		"Current board state:",
		boardSummary,
		"",
		fmt.Sprintf("Default location: %s", defaultLocation),
		fmt.Sprintf("External browsing/research enabled: %t", !noBrowse),
		"Meeting-native artifacts are ALWAYS allowed (decisions, action items, questions, risks/blockers, next steps) and do not require research tasks.",
		"Noise controls:",
		"- Prefer updating existing cards; avoid creating new ones unless it's a truly new topic.",
		"- The backend may throttle or convert `create_card` actions to reduce duplicates.",
		"",
		"Return a single JSON decision object for this context.",
	}, "\n"))
}

func plannerUserPrompt(transcriptWindow, boardSummary string, decision Decision, results []datatypes.ResearchResult, noBrowse bool) (string, error) {
	decisionJSON, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode decision: %w", err)
	}
	if results == nil {
		results = []datatypes.ResearchResult{}
	}
	resultsJSON, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode research results: %w", err)
	}

	prompt := strings.TrimSpace(strings.Join([]string{
		"Meeting transcript window:",
		transcriptWindow,
		"",
		"Current board state:",
		boardSummary,
		"",
		"Noise controls:",
		"- Prefer `update_card` over `create_card` when possible.",
		"- Creating new cards is rate-limited; some creates may be dropped.",
		"- Similar-title creates may be converted into updates.",
		"- Meeting-native artifacts (decisions/actions/questions/risks/next steps) are always allowed even if external research is disabled; they should have sources=[] and no citations.",
		"",
		"Orchestrator decision (JSON):",
		string(decisionJSON),
		"",
		"Research results (JSON):",
		string(resultsJSON),
		"",
		"Output a JSON array of board action objects.",
	}, "\n"))
	if noBrowse {
		prompt += "\n\nNote: external research is disabled; avoid creating factual external-data cards."
	}
	return prompt, nil
}

func mindmapUserPrompt(transcriptWindow, mindmapSummary string) string {
	return strings.TrimSpace(strings.Join([]string{
		"Meeting transcript window:",
		transcriptWindow,
		"",
		"Existing mindmap (reuse exact node text when it matches):",
		mindmapSummary,
		"",
		"Return a JSON array of path proposal objects.",
	}, "\n"))
}
