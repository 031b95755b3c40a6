// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy bounds the connect-phase retries of an adapter. The wait before
// attempt n+1 is Interval*n, so retries back off linearly.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration

	// OnRetry, when set, is invoked once per retry, before the wait.
	OnRetry func()
}

// DefaultPolicy matches the upstream client behavior: three attempts with
// a 300ms base interval.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Interval: 300 * time.Millisecond}
}

// WithRetry runs fn until it succeeds or the policy is exhausted. Only the
// last error is returned. Context cancellation stops retrying immediately.
func WithRetry(ctx context.Context, p Policy, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry()
		}
		wait := p.Interval * time.Duration(attempt)
		slog.Warn("upstream attempt failed, retrying",
			"attempt", attempt,
			"maxAttempts", attempts,
			"wait", wait.String(),
			"error", lastErr,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
