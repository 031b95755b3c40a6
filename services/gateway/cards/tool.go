// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cards synthesizes the suggestion-card payloads for the tool and
// rule branches of the assistant endpoint. Cards are ordered; the first one
// becomes the primary the client renders prominently.
package cards

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stationwise/stationwise/services/gateway/datatypes"
	"github.com/stationwise/stationwise/services/gateway/facilities"
)

// facilityListLimit bounds the aggregator facility listing per request.
const facilityListLimit = 10

// Aggregator fetches the merged facility picture. *facilities.Client
// satisfies this.
type Aggregator interface {
	Aggregate(ctx context.Context, nodeID string, limit int) (*facilities.Aggregate, error)
}

// ToolResponder turns facility data into suggestion cards. It never fails:
// aggregator errors degrade to whatever hint cards the query earned, or to
// a "service unavailable" card when there is nothing else, so the endpoint
// can always answer 200.
type ToolResponder struct {
	agg Aggregator
}

// NewToolResponder wires a responder; agg may be nil when no aggregator is
// configured, in which case every response degrades.
func NewToolResponder(agg Aggregator) *ToolResponder {
	return &ToolResponder{agg: agg}
}

// Respond builds the card payload for a tool-intent query.
//
// Card order is fixed: optional weather and navigation hint cards first
// (when the query asks for them), then transit status, shared bikes (only
// when at least one bike is available), wifi, toilet, and charging cards
// as the data allows. The first card is the primary.
func (r *ToolResponder) Respond(ctx context.Context, query, nodeID string) datatypes.FallbackPayload {
	var out []datatypes.Card

	if mentionsWeather(query) {
		out = append(out, datatypes.Card{
			Title: "天氣提醒",
			Desc:  "出發前記得確認即時天氣與降雨資訊。",
		})
	}
	if mentionsNavigation(query) {
		out = append(out, datatypes.Card{
			Title: "路線導航",
			Desc:  "告訴我目的地，我可以為你規劃步行與大眾運輸路線。",
		})
	}

	facility, ok := r.facilityCards(ctx, nodeID)
	out = append(out, facility...)

	// The unavailable card only stands in when nothing else qualified; a
	// weather or navigation hint already makes a useful answer.
	if !ok && len(out) == 0 {
		out = append(out, unavailableCard())
	}

	if len(out) == 0 {
		out = append(out, datatypes.Card{
			Title: "探索附近",
			Desc:  "告訴我你的需求，我可以推薦附近的設施與景點。",
		})
	}
	return toPayload(out)
}

// facilityCards reports ok=false when the aggregator is absent or failed.
func (r *ToolResponder) facilityCards(ctx context.Context, nodeID string) ([]datatypes.Card, bool) {
	if r.agg == nil {
		return nil, false
	}

	agg, err := r.agg.Aggregate(ctx, nodeID, facilityListLimit)
	if err != nil {
		slog.Warn("facilities aggregator unavailable, degrading",
			"nodeId", nodeID,
			"error", err,
		)
		return nil, false
	}

	var out []datatypes.Card
	if c, ok := transitCard(agg.Live.Transit); ok {
		out = append(out, c)
	}
	if c, ok := bikeCard(agg.Live.Mobility); ok {
		out = append(out, c)
	}
	if hasFacilityTag(agg.Facilities, "wifi") {
		out = append(out, datatypes.Card{Title: "Wi-Fi 熱點", Desc: "附近有免費 Wi-Fi 可以使用。"})
	}
	if hasFacilityTag(agg.Facilities, "toilet") || hasFacilityTag(agg.Facilities, "restroom") {
		out = append(out, datatypes.Card{Title: "洗手間", Desc: "附近設有公共洗手間。"})
	}
	if hasFacilityTag(agg.Facilities, "charging") || hasFacilityTag(agg.Facilities, "power") {
		out = append(out, datatypes.Card{Title: "充電站", Desc: "附近可以找到充電插座或行動電源租借。"})
	}
	return out, true
}

func transitCard(t facilities.Transit) (datatypes.Card, bool) {
	switch t.Status {
	case facilities.TransitNormal:
		return datatypes.Card{Title: "交通狀況", Desc: "目前列車行駛正常。"}, true
	case facilities.TransitDelayed:
		desc := "部分列車延誤，出發前請再確認時刻。"
		if t.Detail != "" {
			desc = t.Detail
		}
		return datatypes.Card{Title: "交通狀況", Desc: desc}, true
	case facilities.TransitSuspended:
		desc := "目前有路線停駛，請改用替代交通方式。"
		if t.Detail != "" {
			desc = t.Detail
		}
		return datatypes.Card{Title: "交通狀況", Desc: desc}, true
	default:
		return datatypes.Card{}, false
	}
}

func bikeCard(stations []facilities.MobilityStation) (datatypes.Card, bool) {
	total := 0
	docks := 0
	for _, s := range stations {
		if s.AvailableBikes > 0 {
			total += s.AvailableBikes
			docks++
		}
	}
	if total == 0 {
		return datatypes.Card{}, false
	}
	return datatypes.Card{
		Title: "共享單車",
		Desc:  fmt.Sprintf("附近 %d 個站點共有 %d 輛可借單車。", docks, total),
	}, true
}

func hasFacilityTag(items []facilities.Facility, tag string) bool {
	for _, f := range items {
		if f.HasTag(tag) {
			return true
		}
	}
	return false
}

func unavailableCard() datatypes.Card {
	return datatypes.Card{
		Title: "服務暫時無法使用",
		Desc:  "設施資訊暫時無法取得，請稍後再試。",
	}
}

func mentionsWeather(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range []string{"天氣", "下雨", "雨具", "weather", "rain", "umbrella"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func mentionsNavigation(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range []string{"導航", "怎麼去", "怎麼走", "帶我去", "navigate", "directions", "route to"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// toPayload splits an ordered card list into primary and secondary.
func toPayload(cards []datatypes.Card) datatypes.FallbackPayload {
	payload := datatypes.FallbackPayload{
		Primary:   cards[0],
		Secondary: []datatypes.Card{},
	}
	if len(cards) > 1 {
		payload.Secondary = cards[1:]
	}
	return payload
}
