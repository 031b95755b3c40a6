// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore persists conversation ids across restarts. TTL eviction is
// delegated to badger's native entry expiry.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerStore opens (or creates) the store at path.
func NewBadgerStore(path string, ttl time.Duration) (*BadgerStore, error) {
	if err := validateStoreConfig(path); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open conversation store at %s: %w", path, err)
	}
	return &BadgerStore{db: db, ttl: ttl}, nil
}

// Get implements Store. Read errors degrade to "not found".
func (s *BadgerStore) Get(key string) (string, bool) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("conversation store read failed", "error", err)
		}
		return "", false
	}
	return id, true
}

// Set implements Store. Write errors are logged and dropped; losing a
// mapping only costs thread continuity.
func (s *BadgerStore) Set(key, conversationID string) {
	if key == "" || conversationID == "" {
		return
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), []byte(conversationID)).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		slog.Warn("conversation store write failed", "error", err)
	}
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
