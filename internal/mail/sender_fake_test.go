// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package mail

import (
	"context"
	"sync"
)

type sentMail struct {
	email string
	code  string
}

// fakeSender fails the first failures calls with err, then succeeds. When
// gate is set each call blocks on it after signalling started.
type fakeSender struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	sent     []sentMail

	started chan struct{}
	gate    chan struct{}
}

func (f *fakeSender) SendOtp(ctx context.Context, email, code string) error {
	if f.gate != nil {
		f.started <- struct{}{}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	f.sent = append(f.sent, sentMail{email: email, code: code})
	return nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSender) delivered() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMail, len(f.sent))
	copy(out, f.sent)
	return out
}
