// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package traps evaluates curated "tourist trap" warnings for a node: the
// per-node rules stored in node metadata plus the built-in station
// heuristics table. Matching is deliberately forgiving; a broken rule must
// never break a request.
package traps

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/stationwise/stationwise/services/gateway/datatypes"
)

// Match evaluates rules against the query and returns the warning messages
// of every rule that fires, in rule order, deduplicated by exact text.
//
// A rule fires when any keyword appears in the query (case-insensitive
// substring) or when its regex matches (compiled case-insensitively). A
// regex that fails to compile is skipped, never an error. When a firing
// rule carries BufferMinutes and the query mentions a clock time, a
// lead-time sentence is appended to the message.
func Match(query string, rules []datatypes.TrapRule) []string {
	var warnings []string
	seen := make(map[string]struct{})
	lower := strings.ToLower(query)

	for _, rule := range rules {
		if !ruleFires(query, lower, rule) {
			continue
		}
		msg := rule.Message
		if rule.BufferMinutes > 0 {
			if token, ok := ParseTimeToken(query); ok {
				msg = fmt.Sprintf("%s 你提到 %s，請至少提前 %d 分鐘完成這段行程。", msg, token, rule.BufferMinutes)
			}
		}
		if _, dup := seen[msg]; dup {
			continue
		}
		seen[msg] = struct{}{}
		warnings = append(warnings, msg)
	}
	return warnings
}

func ruleFires(query, lowerQuery string, rule datatypes.TrapRule) bool {
	for _, kw := range rule.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowerQuery, strings.ToLower(kw)) {
			return true
		}
	}
	if rule.Regex != "" {
		re, err := regexp.Compile("(?i)" + rule.Regex)
		if err == nil && re.MatchString(query) {
			return true
		}
	}
	return false
}

var (
	clockPattern = regexp.MustCompile(`([0-9０-９]{1,2})[:：]([0-9０-９]{2})`)
	hourPattern  = regexp.MustCompile(`([0-9０-９]{1,2})[點時]`)
)

// ParseTimeToken extracts the first clock time mentioned in the query and
// returns it normalized as "H:MM". Recognized forms: "18:30", full-width
// "１８：３０", and hour-only "6點" / "6時" (minutes assumed :00). Returns
// false when no valid time is present.
func ParseTimeToken(query string) (string, bool) {
	normalized := strings.Map(normalizeDigit, query)

	if m := clockPattern.FindStringSubmatch(normalized); m != nil {
		if token, ok := formatClock(m[1], m[2]); ok {
			return token, true
		}
	}
	if m := hourPattern.FindStringSubmatch(normalized); m != nil {
		if token, ok := formatClock(m[1], "00"); ok {
			return token, true
		}
	}
	return "", false
}

func formatClock(hourStr, minStr string) (string, bool) {
	hour := atoiSmall(hourStr)
	min := atoiSmall(minStr)
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return "", false
	}
	return fmt.Sprintf("%d:%02d", hour, min), true
}

// atoiSmall parses the 1-2 digit strings the patterns capture.
func atoiSmall(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// normalizeDigit maps full-width digits onto their ASCII counterparts so
// one set of patterns covers both scripts.
func normalizeDigit(r rune) rune {
	if r >= '０' && r <= '９' {
		return '0' + (r - '０')
	}
	return r
}
