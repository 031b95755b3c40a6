// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package nodecontext assembles the per-location system prompt injected
// into AI requests: persona, behavioral instructions, and the immediate
// reminders produced by trap matching.
package nodecontext

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stationwise/stationwise/services/gateway/datatypes"
	"github.com/stationwise/stationwise/services/gateway/traps"
)

// NodeStore fetches node records. *nodestore.Client satisfies this.
type NodeStore interface {
	Get(ctx context.Context, nodeID string) (*datatypes.NodeRecord, error)
}

// Context is the outcome of one build: the prompt text and the raw trap
// warnings, which the stream layer also surfaces as an alerts frame.
// Empty() is the signal that the request proceeds without location context.
type Context struct {
	Text     string
	Warnings []string
}

// Empty reports whether no context could be built.
func (c Context) Empty() bool {
	return c.Text == ""
}

// Builder composes location context from the node store and trap rules.
type Builder struct {
	store    NodeStore
	builtins *traps.Table
}

// NewBuilder wires a Builder. store may be nil when no catalog is
// configured; every build then yields an empty context.
func NewBuilder(store NodeStore, builtins *traps.Table) *Builder {
	return &Builder{store: store, builtins: builtins}
}

// Build fetches the node and composes the prompt. Missing node id, store
// errors, and unknown nodes all soft-fail to an empty context; the request
// continues as a plain conversation.
func (b *Builder) Build(ctx context.Context, nodeID, query string) Context {
	if nodeID == "" || b.store == nil {
		return Context{}
	}

	record, err := b.store.Get(ctx, nodeID)
	if err != nil {
		slog.Warn("node context unavailable, continuing without it",
			"nodeId", nodeID,
			"error", err,
		)
		return Context{}
	}

	warnings := traps.Match(query, record.Metadata.Traps)
	if b.builtins != nil {
		warnings = dedupe(warnings, b.builtins.Match(record.EnglishName(), query, record.Metadata))
	}

	return Context{
		Text:     composePrompt(record, warnings),
		Warnings: warnings,
	}
}

// dedupe appends extra onto base, dropping messages already present.
func dedupe(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, w := range base {
		seen[w] = struct{}{}
	}
	for _, w := range extra {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		base = append(base, w)
	}
	return base
}

func composePrompt(record *datatypes.NodeRecord, warnings []string) string {
	name := record.DisplayName()

	var sb strings.Builder
	fmt.Fprintf(&sb, "你是「%s」的在地嚮導。", name)
	if record.Persona != "" {
		sb.WriteString(record.Persona)
	}
	sb.WriteString("\n\n")
	sb.WriteString("回答時請遵守：\n")
	fmt.Fprintf(&sb, "- 以 %s 為中心，優先給出可以立刻行動的建議。\n", name)
	sb.WriteString("- 回答控制在三到四句，使用與提問相同的語言。\n")
	sb.WriteString("- 涉及安全或班次異動時，先提醒再回答。\n")
	sb.WriteString("- 結尾可以提出一個延伸問題，但不要重複提問內容。\n")

	if len(warnings) > 0 {
		sb.WriteString("\n【立即提醒】\n")
		for _, w := range warnings {
			sb.WriteString("- ")
			sb.WriteString(w)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
