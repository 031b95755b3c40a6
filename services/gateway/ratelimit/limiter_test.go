// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantMax    int
		wantWindow time.Duration
		wantOff    bool
	}{
		{"valid", "5,30", 5, 30 * time.Second, false},
		{"valid with spaces", " 10 , 60 ", 10, 60 * time.Second, false},
		{"sentinel off", "off", 0, 0, true},
		{"sentinel false", "FALSE", 0, 0, true},
		{"sentinel zero", "0", 0, 0, true},
		{"empty uses defaults", "", DefaultMax, DefaultWindow, false},
		{"garbage uses defaults", "banana", DefaultMax, DefaultWindow, false},
		{"negative uses defaults", "-1,60", DefaultMax, DefaultWindow, false},
		{"partial uses defaults", "5,", DefaultMax, DefaultWindow, false},
		{"too many fields", "5,60,7", DefaultMax, DefaultWindow, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			max, window, off := ParseConfig(tt.in)
			assert.Equal(t, tt.wantOff, off)
			if !tt.wantOff {
				assert.Equal(t, tt.wantMax, max)
				assert.Equal(t, tt.wantWindow, window)
			}
		})
	}
}

func TestCheckRejectsOverLimit(t *testing.T) {
	l := New("1,1")

	first := l.Check("client-a")
	require.True(t, first.OK)

	second := l.Check("client-a")
	require.False(t, second.OK)
	assert.GreaterOrEqual(t, second.RetryAfterSeconds, 1)
}

func TestCheckIsPerKey(t *testing.T) {
	l := New("1,60")
	assert.True(t, l.Check("a").OK)
	assert.True(t, l.Check("b").OK)
	assert.False(t, l.Check("a").OK)
}

func TestCheckWindowReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewWithClock("2,60", func() time.Time { return now })

	require.True(t, l.Check("k").OK)
	require.True(t, l.Check("k").OK)
	require.False(t, l.Check("k").OK)

	// Advance past the window; the counter restarts lazily.
	now = now.Add(61 * time.Second)
	assert.True(t, l.Check("k").OK)
}

func TestRetryAfterRoundsUp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewWithClock("1,60", func() time.Time { return now })

	require.True(t, l.Check("k").OK)

	now = now.Add(59*time.Second + 500*time.Millisecond)
	res := l.Check("k")
	require.False(t, res.OK)
	assert.Equal(t, 1, res.RetryAfterSeconds)
}

func TestDisabledAdmitsEverything(t *testing.T) {
	l := New("off")
	assert.True(t, l.Disabled())
	for i := 0; i < 100; i++ {
		assert.True(t, l.Check("k").OK)
	}
}

func TestSweepDropsExpiredBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewWithClock("5,60", func() time.Time { return now })

	l.Check("a")
	l.Check("b")
	require.Equal(t, 2, l.Len())

	now = now.Add(2 * time.Minute)
	removed := l.Sweep()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, l.Len())
}

func TestSweepLoopDropsExpiredBuckets(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	l := NewWithClock("5,1", func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})

	l.Check("a")
	l.Check("b")
	require.Equal(t, 2, l.Len())

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, l.SweepLoop(ctx, 5*time.Millisecond))
	}()

	assert.Eventually(t, func() bool { return l.Len() == 0 },
		time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop on context cancellation")
	}
}
