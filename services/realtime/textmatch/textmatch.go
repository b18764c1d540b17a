// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package textmatch provides the canonicalization and fuzzy title matching
// used for card and mindmap-node deduplication. All functions are pure.
package textmatch

import (
	"regexp"
	"strings"
)

var (
	nonAlnum       = regexp.MustCompile(`[^a-z0-9]+`)
	whitespace     = regexp.MustCompile(`\s+`)
	listItemPrefix = regexp.MustCompile(`^[\s\-\*\x{2022}\d\)\.]+`)
)

// NormalizeTitle lowercases and collapses a string to space-separated
// alphanumeric tokens. The canonical form used by all similarity checks.
func NormalizeTitle(value string) string {
	cleaned := nonAlnum.ReplaceAllString(strings.ToLower(value), " ")
	return strings.Join(strings.Fields(cleaned), " ")
}

// NormalizeText trims and collapses whitespace and strips trailing
// sentence punctuation. Used for mindmap node text identity.
func NormalizeText(value string) string {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	cleaned = whitespace.ReplaceAllString(cleaned, " ")
	return strings.Trim(cleaned, " \t\r\n.;")
}

// NormalizeListItemText canonicalizes a list item for per-card dedupe,
// stripping leading bullets/numbering in addition to whitespace.
func NormalizeListItemText(value string) string {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	cleaned = listItemPrefix.ReplaceAllString(cleaned, "")
	cleaned = whitespace.ReplaceAllString(cleaned, " ")
	return strings.Trim(cleaned, " \t\r\n.;")
}

// NormalizeTranscriptText canonicalizes transcript text for duplicate
// event suppression.
func NormalizeTranscriptText(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(value))), " ")
}

// NormalizeSpeaker canonicalizes a speaker label the same way.
func NormalizeSpeaker(value string) string {
	return NormalizeTranscriptText(value)
}

func tokenSet(normalized string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(normalized) {
		set[tok] = struct{}{}
	}
	return set
}

// TitleSimilarity returns the token-set Jaccard index of the two strings'
// normalized forms, or 1.0 on exact normalized match.
func TitleSimilarity(a, b string) float64 {
	aNorm := NormalizeTitle(a)
	bNorm := NormalizeTitle(b)
	if aNorm == "" || bNorm == "" {
		return 0.0
	}
	if aNorm == bNorm {
		return 1.0
	}
	aTokens := tokenSet(aNorm)
	bTokens := tokenSet(bNorm)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0.0
	}
	intersection := 0
	for tok := range aTokens {
		if _, ok := bTokens[tok]; ok {
			intersection++
		}
	}
	union := len(aTokens) + len(bTokens) - intersection
	return float64(intersection) / float64(union)
}

// VerySimilarTitle reports whether two strings name the same thing:
// exact normalized match, Jaccard >= 0.85, one normalized string contained
// in the other with the shorter at least 12 chars, or the smaller token
// set overlapping the larger at >= 0.9.
func VerySimilarTitle(a, b string) bool {
	aNorm := NormalizeTitle(a)
	bNorm := NormalizeTitle(b)
	if aNorm == "" || bNorm == "" {
		return false
	}
	if aNorm == bNorm {
		return true
	}
	if TitleSimilarity(aNorm, bNorm) >= 0.85 {
		return true
	}
	if (strings.Contains(bNorm, aNorm) || strings.Contains(aNorm, bNorm)) &&
		min(len(aNorm), len(bNorm)) >= 12 {
		return true
	}
	aTokens := tokenSet(aNorm)
	bTokens := tokenSet(bNorm)
	intersection := 0
	for tok := range aTokens {
		if _, ok := bTokens[tok]; ok {
			intersection++
		}
	}
	smaller := min(len(aTokens), len(bTokens))
	if smaller == 0 {
		return false
	}
	return float64(intersection)/float64(smaller) >= 0.9
}

// SpecificEnoughForGlobalDedupe reports whether a segment is long enough
// to dedupe against the whole tree. Short generic segments (e.g.
// "Timeline") are exempt to avoid over-merging unrelated branches.
func SpecificEnoughForGlobalDedupe(text string) bool {
	normalized := NormalizeTitle(text)
	if len(normalized) < 14 {
		return false
	}
	return len(strings.Fields(normalized)) >= 3
}
