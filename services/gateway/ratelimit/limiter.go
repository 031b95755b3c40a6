// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit implements the per-client fixed-window counter that
// guards the assistant endpoint.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMax and DefaultWindow apply when the config string is absent
	// or malformed.
	DefaultMax    = 20
	DefaultWindow = 60 * time.Second
)

// Result reports one admission decision.
type Result struct {
	OK                bool
	RetryAfterSeconds int
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window counter keyed by client identity.
//
// # Description
//
// Each key owns a window of `window` length. The first request in a window
// sets resetAt = now + window; subsequent requests increment the counter
// until it exceeds max, after which they are rejected with the seconds
// remaining until the window resets (rounded up, never below 1). The
// check-and-increment runs under one mutex so concurrent requests for the
// same key cannot both slip under the limit.
//
// A disabled limiter admits everything.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	max      int
	window   time.Duration
	disabled bool
	now      func() time.Time
}

// ParseConfig interprets the limiter config string.
//
// Accepted forms: "max,windowSeconds" with both positive integers, or one of
// the sentinels "off", "false", "0" (case-insensitive) to disable limiting.
// Anything else falls back to the defaults and logs a warning.
func ParseConfig(s string) (max int, window time.Duration, disabled bool) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	switch trimmed {
	case "off", "false", "0":
		return 0, 0, true
	case "":
		return DefaultMax, DefaultWindow, false
	}

	parts := strings.Split(trimmed, ",")
	if len(parts) == 2 {
		m, errM := strconv.Atoi(strings.TrimSpace(parts[0]))
		w, errW := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errM == nil && errW == nil && m > 0 && w > 0 {
			return m, time.Duration(w) * time.Second, false
		}
	}

	slog.Warn("unparseable rate limit config, using defaults",
		"config", s,
		"max", DefaultMax,
		"windowSeconds", int(DefaultWindow.Seconds()),
	)
	return DefaultMax, DefaultWindow, false
}

// New builds a Limiter from the config string (see ParseConfig).
func New(config string) *Limiter {
	max, window, disabled := ParseConfig(config)
	return &Limiter{
		buckets:  make(map[string]*bucket),
		max:      max,
		window:   window,
		disabled: disabled,
		now:      time.Now,
	}
}

// NewWithClock is New with an injectable clock for tests.
func NewWithClock(config string, now func() time.Time) *Limiter {
	l := New(config)
	l.now = now
	return l
}

// Disabled reports whether the limiter admits everything.
func (l *Limiter) Disabled() bool {
	return l.disabled
}

// Check records one request for key and reports whether it is admitted.
func (l *Limiter) Check(key string) Result {
	if l.disabled {
		return Result{OK: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		l.buckets[key] = &bucket{count: 1, resetAt: now.Add(l.window)}
		return Result{OK: true}
	}

	b.count++
	if b.count <= l.max {
		return Result{OK: true}
	}

	retry := int(math.Ceil(b.resetAt.Sub(now).Seconds()))
	if retry < 1 {
		retry = 1
	}
	return Result{OK: false, RetryAfterSeconds: retry}
}

// Sweep drops buckets whose window has already passed. SweepLoop drives it
// on a ticker so idle keys do not accumulate forever.
func (l *Limiter) Sweep() int {
	if l.disabled {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// SweepLoop calls Sweep every interval until ctx ends. It always returns
// nil so it composes as an errgroup worker.
func (l *Limiter) SweepLoop(ctx context.Context, interval time.Duration) error {
	if l.disabled {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				slog.Debug("swept expired rate limit buckets", "removed", removed)
			}
		}
	}
}

// Len reports the number of live buckets, for metrics and tests.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
