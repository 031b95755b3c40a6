// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cards

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationwise/stationwise/services/gateway/datatypes"
	"github.com/stationwise/stationwise/services/gateway/facilities"
)

type fakeAggregator struct {
	agg *facilities.Aggregate
	err error
}

func (f *fakeAggregator) Aggregate(_ context.Context, _ string, _ int) (*facilities.Aggregate, error) {
	return f.agg, f.err
}

func fullAggregate() *facilities.Aggregate {
	return &facilities.Aggregate{
		Live: facilities.Live{
			Transit: facilities.Transit{Status: facilities.TransitNormal},
			Mobility: []facilities.MobilityStation{
				{Name: "站前", AvailableBikes: 3},
				{Name: "公園", AvailableBikes: 0},
				{Name: "市場", AvailableBikes: 2},
			},
		},
		Facilities: []facilities.Facility{
			{Name: "車站大廳", Tags: []string{"WiFi", "toilet"}},
			{Name: "便利商店", Tags: []string{"charging"}},
		},
	}
}

func TestRespondFullAggregateCardOrder(t *testing.T) {
	r := NewToolResponder(&fakeAggregator{agg: fullAggregate()})
	got := r.Respond(context.Background(), "附近有什麼設施", "node-1")

	assert.Equal(t, "交通狀況", got.Primary.Title)
	require.Len(t, got.Secondary, 4)
	assert.Equal(t, "共享單車", got.Secondary[0].Title)
	assert.Contains(t, got.Secondary[0].Desc, "2 個站點")
	assert.Contains(t, got.Secondary[0].Desc, "5 輛")
	assert.Equal(t, "Wi-Fi 熱點", got.Secondary[1].Title)
	assert.Equal(t, "洗手間", got.Secondary[2].Title)
	assert.Equal(t, "充電站", got.Secondary[3].Title)
}

func TestRespondToiletQueryIncludesToiletCard(t *testing.T) {
	r := NewToolResponder(&fakeAggregator{agg: fullAggregate()})
	got := r.Respond(context.Background(), "附近有廁所嗎", "node-1")

	all := append([]string{got.Primary.Title}, titles(got.Secondary)...)
	assert.Contains(t, all, "洗手間")
}

func TestRespondSkipsBikeCardWhenNoneAvailable(t *testing.T) {
	agg := fullAggregate()
	for i := range agg.Live.Mobility {
		agg.Live.Mobility[i].AvailableBikes = 0
	}
	r := NewToolResponder(&fakeAggregator{agg: agg})
	got := r.Respond(context.Background(), "附近", "node-1")

	all := append([]string{got.Primary.Title}, titles(got.Secondary)...)
	assert.NotContains(t, all, "共享單車")
}

func TestRespondWeatherHintPrepended(t *testing.T) {
	r := NewToolResponder(&fakeAggregator{agg: fullAggregate()})
	got := r.Respond(context.Background(), "等等會下雨嗎", "node-1")
	assert.Equal(t, "天氣提醒", got.Primary.Title)
}

func TestRespondNavigationHintPrepended(t *testing.T) {
	r := NewToolResponder(&fakeAggregator{agg: fullAggregate()})
	got := r.Respond(context.Background(), "怎麼去美術館", "node-1")
	assert.Equal(t, "路線導航", got.Primary.Title)
}

func TestRespondDegradesOnAggregatorError(t *testing.T) {
	r := NewToolResponder(&fakeAggregator{err: errors.New("timeout")})
	got := r.Respond(context.Background(), "附近有廁所嗎", "node-1")
	assert.Equal(t, "服務暫時無法使用", got.Primary.Title)
}

func TestRespondHintCardsSuppressUnavailable(t *testing.T) {
	r := NewToolResponder(&fakeAggregator{err: errors.New("timeout")})
	got := r.Respond(context.Background(), "等等會下雨嗎", "node-1")

	assert.Equal(t, "天氣提醒", got.Primary.Title)
	all := append([]string{got.Primary.Title}, titles(got.Secondary)...)
	assert.NotContains(t, all, "服務暫時無法使用")
}

func TestRespondGenericCardWhenNothingToShow(t *testing.T) {
	empty := &facilities.Aggregate{Live: facilities.Live{Transit: facilities.Transit{Status: "unknown"}}}
	r := NewToolResponder(&fakeAggregator{agg: empty})
	got := r.Respond(context.Background(), "附近", "node-1")

	assert.Equal(t, "探索附近", got.Primary.Title)
	assert.Empty(t, got.Secondary)
}

func TestRespondNilAggregatorDegrades(t *testing.T) {
	r := NewToolResponder(nil)
	got := r.Respond(context.Background(), "附近有廁所嗎", "")
	assert.Equal(t, "服務暫時無法使用", got.Primary.Title)
}

func TestRuleCards(t *testing.T) {
	got := RuleCards([]string{"第一條", "第二條"})
	assert.Equal(t, "在地嚮導", got.Primary.Title)
	require.Len(t, got.Secondary, 2)
	assert.Equal(t, "提醒", got.Secondary[0].Title)
	assert.Equal(t, "第一條", got.Secondary[0].Desc)
	assert.Equal(t, "第二條", got.Secondary[1].Desc)
}

func titles(cards []datatypes.Card) []string {
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.Title)
	}
	return out
}
