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
	"regexp"
	"strings"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/mindmap"
	"github.com/AleutianAI/meetingcanvas/services/realtime/textmatch"
)

// The stub extractor turns transcript text into short noun-ish phrases
// without a model. Output quality is deliberately rough; it exists so the
// mindmap pipeline can run fully offline.

const stubTopic = "Transcript"

var (
	stubTimestampRe = regexp.MustCompile(`^\s*\[\d{2}:\d{2}\]\s*`)
	stubSpeakerRe   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 .'-]{0,32}:\s+`)
	stubSentenceRe  = regexp.MustCompile(`[.!?]\s+`)
	stubLineRe      = regexp.MustCompile(`\n+`)
)

const stubPunctCutset = " ,.;:()[]"

func stubStripTimestampAndSpeaker(text string) string {
	cleaned := strings.TrimSpace(stubTimestampRe.ReplaceAllString(text, ""))
	cleaned = stubSpeakerRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func stubSentenceCandidates(text string) []string {
	text = strings.ReplaceAll(text, "\r", "\n")
	var sentences []string
	for _, rawLine := range stubLineRe.Split(text, -1) {
		line := stubStripTimestampAndSpeaker(strings.TrimSpace(rawLine))
		if line == "" {
			continue
		}
		line = strings.ReplaceAll(line, "—", ". ")
		for _, part := range stubSentenceRe.Split(line, -1) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			// Long comma-ridden run-ons split better on commas.
			if len(strings.Fields(part)) > 18 && strings.Contains(part, ",") {
				for _, seg := range strings.Split(part, ",") {
					if seg = strings.TrimSpace(seg); seg != "" {
						sentences = append(sentences, seg)
					}
				}
			} else {
				sentences = append(sentences, part)
			}
		}
	}
	return sentences
}

func stubPhraseCandidates(sentence string) []string {
	cleaned := strings.Trim(strings.TrimSpace(sentence), "\"'`")
	cleaned = strings.Trim(cleaned, stubPunctCutset)
	if prefix, rest, found := strings.Cut(cleaned, ":"); found {
		if len(strings.Fields(prefix)) <= 3 {
			cleaned = strings.TrimSpace(rest)
		}
	}
	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return nil
	}

	const chunkWords = 3
	var phrases []string
	for idx := 0; idx < len(tokens); idx += chunkWords {
		end := idx + chunkWords
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := tokens[idx:end]
		if len(chunk) < chunkWords {
			continue
		}
		phrases = append(phrases, strings.Join(chunk, " "))
		if len(phrases) >= 6 {
			break
		}
	}
	if len(phrases) == 0 {
		head := tokens
		if len(head) > 8 {
			head = head[:8]
		}
		phrases = append(phrases, strings.Join(head, " "))
	}

	out := phrases[:0]
	for _, p := range phrases {
		if p = strings.Trim(p, stubPunctCutset); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StubPathProposals extracts up to maxPhrases deduplicated phrases from
// the window and files each under the catch-all Transcript topic.
func StubPathProposals(events []datatypes.TranscriptEvent, maxPhrases int) []mindmap.PathProposal {
	if maxPhrases <= 0 {
		return nil
	}

	seen := map[string]struct{}{}
	var phrases []string
collect:
	for _, event := range events {
		for _, sentence := range stubSentenceCandidates(event.Text) {
			for _, phrase := range stubPhraseCandidates(sentence) {
				if len(strings.Fields(phrase)) < 3 && len(phrase) < 12 {
					continue
				}
				norm := textmatch.NormalizeTitle(phrase)
				if norm == "" {
					continue
				}
				if _, dup := seen[norm]; dup {
					continue
				}
				seen[norm] = struct{}{}
				phrases = append(phrases, phrase)
				if len(phrases) >= maxPhrases {
					break collect
				}
			}
		}
	}

	if len(phrases) == 0 {
		// Last resort: anything phrase-shaped from the raw event text.
	fallback:
		for _, event := range events {
			for _, phrase := range stubPhraseCandidates(event.Text) {
				if phrase != "" {
					phrases = append(phrases, phrase)
					break fallback
				}
			}
		}
	}

	proposals := make([]mindmap.PathProposal, 0, len(phrases))
	for _, phrase := range phrases {
		proposals = append(proposals, mindmap.PathProposal{Path: []string{stubTopic, phrase}})
	}
	return proposals
}
