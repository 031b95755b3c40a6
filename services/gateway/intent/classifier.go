// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package intent classifies user queries into the dispatch branch the
// assistant endpoint should take.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the dispatch branch for a query.
type Intent string

const (
	// IntentTool answers from the facilities aggregator with suggestion cards.
	IntentTool Intent = "tool"
	// IntentRule answers from curated trap warnings when node context exists.
	IntentRule Intent = "rule"
	// IntentLLM streams the query through the configured AI provider.
	IntentLLM Intent = "llm"
)

// toolTriggers are matched as case-insensitive substrings. Order does not
// matter; any hit routes to the tool branch before the rule patterns run.
var toolTriggers = []string{
	"附近",
	"廁所",
	"洗手間",
	"化妝室",
	"wifi",
	"wi-fi",
	"充電",
	"插座",
	"youbike",
	"ubike",
	"共享單車",
	"租車",
	"天氣",
	"下雨",
	"雨具",
	"導航",
	"怎麼去",
	"怎麼走",
	"帶我去",
	"nearby",
	"toilet",
	"restroom",
	"bathroom",
	"charging",
	"charger",
	"bike share",
	"shared bike",
	"weather",
	"rain",
	"navigate",
	"directions",
}

var (
	// Delay, schedule and service-status questions.
	ruleDelayPattern = regexp.MustCompile(`(?i)(延誤|誤點|停駛|末班|首班|頭班|幾點(開|關|發車)|時刻表|班距|delay|delayed|suspend|last train|first train|timetable|schedule)`)
	// Transfer, exit and walking-distance questions.
	ruleTransferPattern = regexp.MustCompile(`(?i)(轉乘|換乘|換線|出口|月台|月臺|多遠|走多久|幾分鐘.*(到|走)|transfer|platform|exit|how far|walking time)`)
)

// Classify routes a query: tool triggers win over rule patterns, and
// anything unmatched goes to the LLM.
func Classify(query string) Intent {
	lower := strings.ToLower(query)
	for _, trigger := range toolTriggers {
		if strings.Contains(lower, trigger) {
			return IntentTool
		}
	}
	if ruleDelayPattern.MatchString(query) || ruleTransferPattern.MatchString(query) {
		return IntentRule
	}
	return IntentLLM
}
