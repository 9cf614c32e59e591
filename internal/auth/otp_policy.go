// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Default OTP policy values.
const (
	DefaultOtpTTL            = 10 * time.Minute
	DefaultOtpResendCooldown = 60 * time.Second
	DefaultOtpDailySendLimit = 5
	DefaultOtpMaxFailures    = 5
)

// OtpPolicy holds the anti-abuse limits applied to OTP challenges.
type OtpPolicy struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	DailySendLimit int
	MaxFailures    int
	// Location defines the calendar day used by the daily send counter.
	Location *time.Location
}

// DefaultOtpPolicy returns the default limits with days counted in UTC.
func DefaultOtpPolicy() OtpPolicy {
	return OtpPolicy{
		TTL:            DefaultOtpTTL,
		ResendCooldown: DefaultOtpResendCooldown,
		DailySendLimit: DefaultOtpDailySendLimit,
		MaxFailures:    DefaultOtpMaxFailures,
		Location:       time.UTC,
	}
}

// Validate rejects non-positive limits.
func (p OtpPolicy) Validate() error {
	switch {
	case p.TTL <= 0:
		return oops.Code("OTP_POLICY_INVALID").With("field", "ttl").Errorf("ttl must be positive")
	case p.ResendCooldown < 0:
		return oops.Code("OTP_POLICY_INVALID").With("field", "resend_cooldown").Errorf("resend cooldown cannot be negative")
	case p.DailySendLimit < 1:
		return oops.Code("OTP_POLICY_INVALID").With("field", "daily_send_limit").Errorf("daily send limit must be at least 1")
	case p.MaxFailures < 1:
		return oops.Code("OTP_POLICY_INVALID").With("field", "max_failures").Errorf("max failures must be at least 1")
	}
	return nil
}

// Today returns the calendar day containing now, as midnight UTC of that date.
func (p OtpPolicy) Today(now time.Time) time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CheckRequest decides whether a new code may be sent given the existing
// challenge, which may be nil. Checks run in order: already verified,
// cooldown, daily limit.
func (p OtpPolicy) CheckRequest(c *OtpChallenge, now time.Time) error {
	if c == nil {
		return nil
	}

	if c.IsVerified() && !c.IsExpiredAt(now) {
		return oops.Code(CodeOtpAlreadyVerified).
			With("email", c.Email).
			Errorf("email already verified; complete registration")
	}

	if now.Before(c.ResendAvailableAt) {
		return oops.Code(CodeOtpCooldown).
			With("email", c.Email).
			With("retry_after_seconds", retryAfterSeconds(c.ResendAvailableAt.Sub(now))).
			Errorf("verification code was sent recently")
	}

	if c.SendsOn(p.Today(now)) >= p.DailySendLimit {
		return oops.Code(CodeOtpDailyLimit).
			With("email", c.Email).
			With("limit", p.DailySendLimit).
			Errorf("daily verification code limit reached")
	}

	return nil
}

// CheckAttempt decides whether a code may be compared against c.
// Checks run in order: expired, too many failures.
func (p OtpPolicy) CheckAttempt(c *OtpChallenge, now time.Time) error {
	if c.IsExpiredAt(now) {
		return oops.Code(CodeOtpExpired).
			With("email", c.Email).
			Errorf("verification code has expired")
	}
	if c.FailedAttempts >= p.MaxFailures {
		return oops.Code(CodeOtpTooManyFailures).
			With("email", c.Email).
			With("max_failures", p.MaxFailures).
			Errorf("too many failed verification attempts")
	}
	return nil
}
