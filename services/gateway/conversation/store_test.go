// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()

	_, ok := s.Get("client-a")
	assert.False(t, ok)

	s.Set("client-a", "conv-1")
	got, ok := s.Get("client-a")
	require.True(t, ok)
	assert.Equal(t, "conv-1", got)
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()

	s.Set("client-a", "conv-1")
	s.Set("client-a", "conv-2")
	got, _ := s.Get("client-a")
	assert.Equal(t, "conv-2", got)
}

func TestMemoryStoreIgnoresEmptyValues(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()

	s.Set("", "conv-1")
	s.Set("client-a", "")
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()

	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	s.Set("client-a", "conv-1")
	_, ok := s.Get("client-a")
	require.True(t, ok)

	now = now.Add(2 * time.Hour)
	_, ok = s.Get("client-a")
	assert.False(t, ok)
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()

	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	s.Set("a", "conv-1")
	s.Set("b", "conv-2")
	now = now.Add(2 * time.Hour)
	s.Set("c", "conv-3")

	assert.Equal(t, 2, s.sweep())
	assert.Equal(t, 1, s.Len())
}

func TestNewSelectsBacking(t *testing.T) {
	mem, err := New("memory", "", time.Hour)
	require.NoError(t, err)
	defer mem.Close()
	assert.IsType(t, &MemoryStore{}, mem)

	bad, err := New("badger", t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer bad.Close()
	assert.IsType(t, &BadgerStore{}, bad)

	_, err = New("badger", "", time.Hour)
	assert.Error(t, err)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	s, err := NewBadgerStore(t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.Get("client-a")
	assert.False(t, ok)

	s.Set("client-a", "conv-1")
	got, ok := s.Get("client-a")
	require.True(t, ok)
	assert.Equal(t, "conv-1", got)

	s.Set("client-a", "conv-2")
	got, _ = s.Get("client-a")
	assert.Equal(t, "conv-2", got)
}
