// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package research

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

const gdeltDocURL = "https://api.gdeltproject.org/api/v2/doc/doc"

// HeadlinesTool queries the GDELT 2.1 DOC API for notable articles in a
// given month across several past years.
type HeadlinesTool struct {
	Client HTTPClient

	// MaxPerYear caps articles kept per queried year. Zero means 8.
	MaxPerYear int
}

func gdeltTimestamp(t time.Time) string {
	return t.UTC().Format("20060102150405")
}

// parseGdeltTime handles the API's "2024-12-03 12:34:56.000" shape.
func parseGdeltTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	value = strings.ReplaceAll(value, ".000", "")
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05Z"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}

// Handle implements the news.headlines_by_month tool. Args: query
// (required), month (default 12), years (default 5).
func (t *HeadlinesTool) Handle(ctx context.Context, args map[string]any) (ToolResult, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return ToolResult{}, fmt.Errorf("query is required")
	}
	month := intArg(args, "month", 12)
	if month < 1 || month > 12 {
		return ToolResult{}, fmt.Errorf("month out of range: %d", month)
	}
	years := intArg(args, "years", 5)
	if years < 1 {
		years = 1
	}
	maxPerYear := t.MaxPerYear
	if maxPerYear <= 0 {
		maxPerYear = 8
	}

	nowYear := time.Now().UTC().Year()
	endYear := nowYear - 1
	startYear := nowYear - years
	if startYear < 1900 {
		startYear = 1900
	}

	var items []datatypes.HeadlineItem
	var citations []datatypes.Citation

	for year := startYear; year <= endYear; year++ {
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).Add(-time.Second)

		params := url.Values{}
		params.Set("query", query)
		params.Set("mode", "ArtList")
		params.Set("format", "json")
		params.Set("maxrecords", strconv.Itoa(maxPerYear))
		params.Set("sort", "HybridRel")
		params.Set("startdatetime", gdeltTimestamp(start))
		params.Set("enddatetime", gdeltTimestamp(end))
		full := gdeltDocURL + "?" + params.Encode()

		var payload struct {
			Articles []struct {
				Title         string `json:"title"`
				URL           string `json:"url"`
				Source        string `json:"source"`
				SourceCountry string `json:"sourceCountry"`
				SeenDate      string `json:"seendate"`
			} `json:"articles"`
		}
		if err := fetchJSON(ctx, t.Client, full, &payload); err != nil {
			return ToolResult{}, err
		}

		for _, article := range payload.Articles {
			if article.Title == "" || article.URL == "" {
				continue
			}
			source := article.SourceCountry
			if source == "" {
				source = article.Source
			}
			items = append(items, datatypes.HeadlineItem{
				Title:       article.Title,
				URL:         article.URL,
				Source:      source,
				PublishedAt: parseGdeltTime(article.SeenDate),
			})
		}

		citations = append(citations, datatypes.Citation{
			URL:   full,
			Title: "GDELT 2.1 DOC API",
		})
	}

	data := datatypes.HeadlinesData{Query: query, Items: items}
	return ToolResult{
		Data:      datatypes.ResearchPayload{Headlines: &data},
		Citations: citations,
	}, nil
}
