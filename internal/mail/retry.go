// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package mail

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/kyonggi-board/authcore/internal/auth"
	"github.com/kyonggi-board/authcore/pkg/errutil"
)

var _ auth.MailSender = (*RetryingSender)(nil)

// RetryPolicy bounds the retries of a RetryingSender.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times starting at 200ms, capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.BaseDelay)
	b = retry.WithJitterPercent(10, b)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// RetryingSender retries transient failures of another MailSender with
// exponential backoff. SMTP 5xx replies and context errors are not retried.
type RetryingSender struct {
	next   auth.MailSender
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetryingSender wraps next.
func NewRetryingSender(next auth.MailSender, policy RetryPolicy, logger *slog.Logger) (*RetryingSender, error) {
	if next == nil {
		return nil, oops.Errorf("mail sender is required")
	}
	if policy.BaseDelay <= 0 {
		return nil, oops.Code("MAIL_RETRY_INVALID").Errorf("base delay must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingSender{next: next, policy: policy, logger: logger}, nil
}

// SendOtp delivers through the wrapped sender, retrying transient errors.
func (s *RetryingSender) SendOtp(ctx context.Context, email, code string) error {
	attempt := 0
	err := retry.Do(ctx, s.policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := s.next.SendOtp(ctx, email, code)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		errutil.LogWarn(ctx, s.logger, "otp mail attempt failed", err, "email", email, "attempt", attempt)
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("email", email).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
