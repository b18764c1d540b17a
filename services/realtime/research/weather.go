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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

const (
	geocodeURL = "https://geocoding-api.open-meteo.com/v1/search"
	archiveURL = "https://archive-api.open-meteo.com/v1/archive"
)

// WeatherTool fetches month-averaged historical temperatures from
// Open-Meteo: one geocoding call, then one archive call per year.
type WeatherTool struct {
	Client HTTPClient
}

type geoLocation struct {
	Label     string
	Latitude  float64
	Longitude float64
}

func fetchJSON(ctx context.Context, client HTTPClient, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (t *WeatherTool) geocode(ctx context.Context, location string) (geoLocation, datatypes.Citation, error) {
	params := url.Values{}
	params.Set("name", location)
	params.Set("count", "1")
	params.Set("language", "en")
	params.Set("format", "json")
	full := geocodeURL + "?" + params.Encode()

	var payload struct {
		Results []struct {
			Name      string  `json:"name"`
			Admin1    string  `json:"admin1"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := fetchJSON(ctx, t.Client, full, &payload); err != nil {
		return geoLocation{}, datatypes.Citation{}, err
	}
	if len(payload.Results) == 0 {
		return geoLocation{}, datatypes.Citation{}, fmt.Errorf("could not geocode location: %s", location)
	}

	r0 := payload.Results[0]
	var parts []string
	for _, p := range []string{r0.Name, r0.Admin1, r0.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	geo := geoLocation{Label: strings.Join(parts, ", "), Latitude: r0.Latitude, Longitude: r0.Longitude}
	cite := datatypes.Citation{URL: full, Title: "Open-Meteo Geocoding API"}
	return geo, cite, nil
}

func (t *WeatherTool) fetchMonthAvg(ctx context.Context, geo geoLocation, month, year int) (*datatypes.WeatherPoint, datatypes.Citation, error) {
	startDate := fmt.Sprintf("%04d-%02d-01", year, month)
	endDate := fmt.Sprintf("%04d-%02d-%02d", year, month, daysInMonth(month, year))

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%g", geo.Latitude))
	params.Set("longitude", fmt.Sprintf("%g", geo.Longitude))
	params.Set("start_date", startDate)
	params.Set("end_date", endDate)
	params.Set("daily", "temperature_2m_mean")
	params.Set("timezone", "UTC")
	full := archiveURL + "?" + params.Encode()

	var payload struct {
		Daily struct {
			Temperature []*float64 `json:"temperature_2m_mean"`
		} `json:"daily"`
	}
	if err := fetchJSON(ctx, t.Client, full, &payload); err != nil {
		return nil, datatypes.Citation{}, err
	}

	var sum float64
	var count int
	for _, temp := range payload.Daily.Temperature {
		if temp != nil {
			sum += *temp
			count++
		}
	}
	if count == 0 {
		return nil, datatypes.Citation{}, nil
	}

	avgC := sum / float64(count)
	retrieved := time.Now().UTC()
	point := &datatypes.WeatherPoint{
		Year:     year,
		AvgTempC: avgC,
		AvgTempF: avgC*9.0/5.0 + 32.0,
	}
	cite := datatypes.Citation{
		URL:         full,
		Title:       "Open-Meteo Historical Weather API (archive)",
		RetrievedAt: retrieved,
	}
	return point, cite, nil
}

func daysInMonth(month, year int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Handle implements the weather.history_by_month tool. Args: location
// (required), month (default 12), years (default 10).
func (t *WeatherTool) Handle(ctx context.Context, args map[string]any) (ToolResult, error) {
	location, _ := args["location"].(string)
	if strings.TrimSpace(location) == "" {
		return ToolResult{}, fmt.Errorf("location is required")
	}
	month := intArg(args, "month", 12)
	if month < 1 || month > 12 {
		return ToolResult{}, fmt.Errorf("month out of range: %d", month)
	}
	years := intArg(args, "years", 10)
	if years < 1 {
		years = 1
	}

	geo, geoCite, err := t.geocode(ctx, location)
	if err != nil {
		return ToolResult{}, err
	}

	// Only complete years: the archive lags the current one.
	endYear := time.Now().UTC().Year() - 1
	startYear := endYear - (years - 1)
	if startYear < 1900 {
		startYear = 1900
	}

	var points []datatypes.WeatherPoint
	citations := []datatypes.Citation{geoCite}
	for year := startYear; year <= endYear; year++ {
		point, cite, err := t.fetchMonthAvg(ctx, geo, month, year)
		if err != nil {
			return ToolResult{}, err
		}
		if point == nil {
			continue
		}
		points = append(points, *point)
		citations = append(citations, cite)
	}

	data := datatypes.WeatherHistoryData{
		LocationLabel: geo.Label,
		Month:         month,
		Points:        points,
	}
	return ToolResult{
		Data:      datatypes.ResearchPayload{Weather: &data},
		Citations: citations,
	}, nil
}

// intArg reads an integer argument that may arrive as JSON float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return fallback
}
