// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation persists the mapping from client key to upstream
// conversation id so follow-up questions continue the same provider thread.
package conversation

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultTTL bounds how long an idle thread mapping survives.
const DefaultTTL = 24 * time.Hour

// Store maps client keys to upstream conversation ids. Writes are
// last-write-wins; a missing key simply starts a fresh conversation, so
// implementations degrade by losing entries, never by failing requests.
type Store interface {
	// Get returns the conversation id for key, if one is known.
	Get(key string) (string, bool)
	// Set records the conversation id for key, refreshing its TTL.
	Set(key, conversationID string)
	// Close releases backing resources.
	Close() error
}

// New builds a Store from config. kind selects the backing: "badger" opens
// a persistent store at path, anything else yields the in-memory store.
func New(kind, path string, ttl time.Duration) (Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if strings.EqualFold(strings.TrimSpace(kind), "badger") {
		return NewBadgerStore(path, ttl)
	}
	return NewMemoryStore(ttl), nil
}

type memoryEntry struct {
	id        string
	expiresAt time.Time
}

// MemoryStore is the default backing: a mutexed map with a background
// sweep that evicts idle entries so the map cannot grow without bound.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore builds a memory store and starts its sweep goroutine.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Get implements Store. Expired entries are treated as absent even before
// the sweep reaps them.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return "", false
	}
	return entry.id, true
}

// Set implements Store.
func (s *MemoryStore) Set(key, conversationID string) {
	if key == "" || conversationID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{id: conversationID, expiresAt: s.now().Add(s.ttl)}
}

// Len reports live entries, for metrics and tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the sweep goroutine. Idempotent.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) sweepLoop() {
	interval := s.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			removed := s.sweep()
			if removed > 0 {
				slog.Debug("conversation store sweep", "removed", removed)
			}
		}
	}
}

func (s *MemoryStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

var _ Store = (*MemoryStore)(nil)

func validateStoreConfig(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("badger conversation store requires a data path")
	}
	return nil
}
