// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package traps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/stationwise/stationwise/services/gateway/datatypes"
)

// BuiltinRule is one row of the station heuristics table: hard-won local
// knowledge (long transfer corridors, confusing exits) that applies to any
// node whose English name contains NameSubstring, without per-node curation.
//
// Message is a fmt template with a single %d verb for the buffer minutes.
// MetadataKey selects a per-node override from the node's metadata buffers;
// DefaultMinutes applies when the node has none.
type BuiltinRule struct {
	NameSubstring  string   `yaml:"name_substring"`
	Keywords       []string `yaml:"keywords,omitempty"`
	Regex          string   `yaml:"regex,omitempty"`
	Message        string   `yaml:"message"`
	MetadataKey    string   `yaml:"metadata_key,omitempty"`
	DefaultMinutes int      `yaml:"default_minutes"`
}

// DefaultBuiltins returns the compiled-in heuristics table, used when no
// rules file is configured or the configured file cannot be read.
func DefaultBuiltins() []BuiltinRule {
	return []BuiltinRule{
		{
			NameSubstring:  "tokyo",
			Keywords:       []string{"京成", "keisei", "skyliner", "成田", "narita"},
			Message:        "東京車站到京成線的轉乘通道很長，請預留至少 %d 分鐘步行時間。",
			MetadataKey:    "keisei_transfer",
			DefaultMinutes: 15,
		},
		{
			NameSubstring:  "shinjuku",
			Keywords:       []string{"出口", "exit", "轉乘", "transfer"},
			Message:        "新宿車站出口超過兩百個，找到正確出口平均需要 %d 分鐘，請先確認出口編號。",
			MetadataKey:    "exit_buffer",
			DefaultMinutes: 10,
		},
		{
			NameSubstring:  "taipei main",
			Keywords:       []string{"高鐵", "台鐵", "轉乘", "transfer", "hsr"},
			Message:        "台北車站地下層動線複雜，轉乘高鐵或台鐵請預留 %d 分鐘。",
			MetadataKey:    "transfer_buffer",
			DefaultMinutes: 10,
		},
	}
}

type rulesFile struct {
	Rules []BuiltinRule `yaml:"rules"`
}

// Table holds the active heuristics rules and supports hot reload from a
// YAML file. The zero value is not usable; construct with NewTable.
type Table struct {
	mu    sync.RWMutex
	rules []BuiltinRule
	path  string
}

// NewTable loads the rules file at path, or the compiled-in defaults when
// path is empty or unreadable.
func NewTable(path string) *Table {
	t := &Table{path: path, rules: DefaultBuiltins()}
	if path == "" {
		return t
	}
	if err := t.Reload(); err != nil {
		slog.Warn("builtin trap rules file unusable, keeping defaults",
			"path", path,
			"error", err,
		)
	}
	return t
}

// Reload re-reads the rules file and swaps the table atomically. The old
// table stays active when the file is missing or malformed.
func (t *Table) Reload() error {
	if t.path == "" {
		return nil
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read builtin rules: %w", err)
	}
	var parsed rulesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse builtin rules: %w", err)
	}
	if len(parsed.Rules) == 0 {
		return fmt.Errorf("builtin rules file %s contains no rules", t.path)
	}

	t.mu.Lock()
	t.rules = parsed.Rules
	t.mu.Unlock()

	slog.Info("builtin trap rules loaded", "path", t.path, "rules", len(parsed.Rules))
	return nil
}

// Rules returns a snapshot of the active table.
func (t *Table) Rules() []BuiltinRule {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]BuiltinRule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Watch reloads the table whenever the rules file changes on disk. Blocks
// until ctx is done; returns immediately when no file is configured.
func (t *Table) Watch(ctx context.Context) error {
	if t.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory; editors often replace the file wholesale, which
	// only the parent directory observes reliably.
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		return fmt.Errorf("watch rules dir: %w", err)
	}

	target := filepath.Clean(t.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := t.Reload(); err != nil {
				slog.Warn("builtin trap rules reload failed, keeping previous table",
					"path", t.path,
					"error", err,
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("builtin trap rules watcher error", "error", err)
		}
	}
}

// Match evaluates the table for one node and query. A rule applies when the
// node's English name contains NameSubstring and the query hits one of the
// rule's keywords or its regex. Buffer minutes come from the node metadata
// override when present, otherwise the rule default.
func (t *Table) Match(englishName, query string, meta datatypes.NodeMetadata) []string {
	if englishName == "" {
		return nil
	}
	lowerName := strings.ToLower(englishName)
	lowerQuery := strings.ToLower(query)

	var warnings []string
	seen := make(map[string]struct{})
	for _, rule := range t.Rules() {
		if rule.NameSubstring == "" || !strings.Contains(lowerName, strings.ToLower(rule.NameSubstring)) {
			continue
		}
		if !builtinFires(query, lowerQuery, rule) {
			continue
		}
		minutes := meta.BufferMinutes(rule.MetadataKey, rule.DefaultMinutes)
		msg := fmt.Sprintf(rule.Message, minutes)
		if _, dup := seen[msg]; dup {
			continue
		}
		seen[msg] = struct{}{}
		warnings = append(warnings, msg)
	}
	return warnings
}

func builtinFires(query, lowerQuery string, rule BuiltinRule) bool {
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
