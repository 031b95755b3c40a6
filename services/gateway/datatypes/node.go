// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// FallbackNodeName is used when a node record carries no usable locale name.
const FallbackNodeName = "這個地點"

// NodeRecord is a place/station document fetched from the node store.
type NodeRecord struct {
	ID       string            `json:"id"`
	Names    map[string]string `json:"names"`
	Persona  string            `json:"persona"`
	Metadata NodeMetadata      `json:"metadata"`
}

// NodeMetadata carries per-node curation: custom trap rules and numeric
// buffer overrides consumed by the built-in station heuristics.
type NodeMetadata struct {
	Traps   []TrapRule     `json:"traps,omitempty"`
	Buffers map[string]int `json:"buffers,omitempty"`
}

// TrapRule is one curated warning attached to a node.
//
// A rule matches when any keyword appears in the query (case-insensitive
// substring) or when Regex matches it (compiled case-insensitively; a
// malformed pattern is treated as a non-match). BufferMinutes, when positive,
// turns a time token in the query into an extra lead-time sentence.
type TrapRule struct {
	ID            string   `json:"id" yaml:"id"`
	Keywords      []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Regex         string   `json:"regex,omitempty" yaml:"regex,omitempty"`
	Message       string   `json:"message" yaml:"message"`
	BufferMinutes int      `json:"buffer_minutes,omitempty" yaml:"buffer_minutes,omitempty"`
}

// DisplayName resolves the node's user-facing name with locale fallback:
// zh-TW first, then zh, then en, then the generic placeholder.
func (n *NodeRecord) DisplayName() string {
	for _, locale := range []string{"zh-TW", "zh", "en"} {
		if name, ok := n.Names[locale]; ok && name != "" {
			return name
		}
	}
	return FallbackNodeName
}

// EnglishName returns the node's English name, or empty when absent. The
// built-in heuristics table matches against this value.
func (n *NodeRecord) EnglishName() string {
	return n.Names["en"]
}

// BufferMinutes looks up a buffer override by key, falling back to def when
// the key is absent or non-positive.
func (m NodeMetadata) BufferMinutes(key string, def int) int {
	if v, ok := m.Buffers[key]; ok && v > 0 {
		return v
	}
	return def
}
