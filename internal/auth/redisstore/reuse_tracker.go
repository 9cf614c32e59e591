// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package redisstore keeps short-lived security counters in Redis.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/kyonggi-board/authcore/internal/auth"
)

// DefaultReuseWindow is how long a reuse counter survives after its first hit.
const DefaultReuseWindow = 24 * time.Hour

const defaultKeyPrefix = "authcore:"

var _ auth.ReuseObserver = (*ReuseTracker)(nil)

// ReuseTracker counts refresh token reuse detections per identity within a
// rolling window that starts at the first detection.
type ReuseTracker struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
}

// ReuseTrackerOption customizes a ReuseTracker.
type ReuseTrackerOption func(*ReuseTracker)

// WithKeyPrefix namespaces every key written by the tracker.
func WithKeyPrefix(prefix string) ReuseTrackerOption {
	return func(t *ReuseTracker) { t.prefix = prefix }
}

// WithWindow sets the counter lifetime. Non-positive values keep the default.
func WithWindow(window time.Duration) ReuseTrackerOption {
	return func(t *ReuseTracker) {
		if window > 0 {
			t.window = window
		}
	}
}

// NewReuseTracker creates a ReuseTracker.
func NewReuseTracker(client redis.UniversalClient, opts ...ReuseTrackerOption) (*ReuseTracker, error) {
	if client == nil {
		return nil, oops.Errorf("redis client is required")
	}
	t := &ReuseTracker{client: client, prefix: defaultKeyPrefix, window: DefaultReuseWindow}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *ReuseTracker) key(identityID ulid.ULID) string {
	return t.prefix + "refresh_reuse:" + identityID.String()
}

// ObserveReuse increments the counter for identityID. The expiry is set only
// on the first increment so the window does not slide.
func (t *ReuseTracker) ObserveReuse(ctx context.Context, identityID, sessionID ulid.ULID) error {
	key := t.key(identityID)
	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return oops.Code("REUSE_TRACK_FAILED").
			With("operation", "incr").
			With("identity_id", identityID.String()).
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	if count == 1 {
		if err := t.client.Expire(ctx, key, t.window).Err(); err != nil {
			return oops.Code("REUSE_TRACK_FAILED").
				With("operation", "expire").
				With("identity_id", identityID.String()).
				Wrap(err)
		}
	}
	return nil
}

// Count returns the reuse detections for identityID in the current window.
func (t *ReuseTracker) Count(ctx context.Context, identityID ulid.ULID) (int64, error) {
	count, err := t.client.Get(ctx, t.key(identityID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, oops.Code("REUSE_COUNT_FAILED").
			With("identity_id", identityID.String()).
			Wrap(err)
	}
	return count, nil
}

// Reset clears the counter for identityID.
func (t *ReuseTracker) Reset(ctx context.Context, identityID ulid.ULID) error {
	if err := t.client.Del(ctx, t.key(identityID)).Err(); err != nil {
		return oops.Code("REUSE_RESET_FAILED").
			With("identity_id", identityID.String()).
			Wrap(err)
	}
	return nil
}

// Ping checks connectivity, for readiness probes.
func (t *ReuseTracker) Ping(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return oops.Code("REDIS_UNAVAILABLE").Wrap(err)
	}
	return nil
}
