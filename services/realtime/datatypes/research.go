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

import "time"

// Legacy research kinds, kept for producers that predate named tools.
const (
	ResearchKindWeatherDecemberHistory = "weather_december_history"
	ResearchKindDecemberHeadlines      = "december_headlines"
)

// ResearchTask describes one external data fetch. Either ToolName+Args
// (named tool) or Kind plus the legacy free-form fields is populated.
type ResearchTask struct {
	TaskID      string         `json:"task_id" validate:"required"`
	ToolName    string         `json:"tool_name,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Kind        string         `json:"kind,omitempty"`
	Query       string         `json:"query,omitempty"`
	Location    string         `json:"location,omitempty"`
	Month       int            `json:"month,omitempty" validate:"omitempty,gte=1,lte=12"`
	Years       int            `json:"years,omitempty" validate:"omitempty,gte=1,lte=50"`
	Assumptions map[string]any `json:"assumptions,omitempty"`
}

// Label names the task in status messages.
func (t ResearchTask) Label() string {
	if t.ToolName != "" {
		return t.ToolName
	}
	return t.Kind
}

// WeatherPoint is one year's averaged temperature for the requested month.
type WeatherPoint struct {
	Year     int     `json:"year" validate:"gte=1900,lte=3000"`
	AvgTempC float64 `json:"avg_temp_c"`
	AvgTempF float64 `json:"avg_temp_f"`
}

// WeatherHistoryData is a multi-year monthly temperature series.
type WeatherHistoryData struct {
	LocationLabel string         `json:"location_label"`
	Month         int            `json:"month" validate:"gte=1,lte=12"`
	Points        []WeatherPoint `json:"points"`
}

// HeadlineItem is one news headline.
type HeadlineItem struct {
	Title       string     `json:"title" validate:"required"`
	URL         string     `json:"url" validate:"required,url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Source      string     `json:"source,omitempty"`
}

// HeadlinesData is a headline search result set.
type HeadlinesData struct {
	Query string         `json:"query"`
	Items []HeadlineItem `json:"items"`
}

// ResearchPayload is the typed union of research tool outputs. Exactly one
// field is non-nil.
type ResearchPayload struct {
	Weather   *WeatherHistoryData `json:"weather,omitempty"`
	Headlines *HeadlinesData      `json:"headlines,omitempty"`
}

// ResearchResult pairs a task id with its payload and source citations.
type ResearchResult struct {
	TaskID    string          `json:"task_id"`
	Result    ResearchPayload `json:"result"`
	Citations []Citation      `json:"citations"`
}
