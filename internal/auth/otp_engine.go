// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// maxInsertAttempts bounds how often Request re-reads after losing the
// first-row insert race.
const maxInsertAttempts = 3

// OtpPolicyEngine issues and verifies OTP challenges for one purpose.
type OtpPolicyEngine struct {
	tx         Transactor
	challenges OtpChallengeRepository
	hasher     Hasher
	clock      Clock
	policy     OtpPolicy
	emails     EmailPolicy
	purpose    Purpose
	metrics    *Metrics
	generate   func() (string, error)
}

// OtpEngineOption customizes an OtpPolicyEngine.
type OtpEngineOption func(*OtpPolicyEngine)

// WithOtpMetrics records request and verification outcomes.
func WithOtpMetrics(m *Metrics) OtpEngineOption {
	return func(e *OtpPolicyEngine) { e.metrics = m }
}

// WithOtpCodeGenerator replaces the crypto/rand code generator.
func WithOtpCodeGenerator(gen func() (string, error)) OtpEngineOption {
	return func(e *OtpPolicyEngine) { e.generate = gen }
}

// NewOtpPolicyEngine creates an engine for SIGNUP challenges.
func NewOtpPolicyEngine(
	tx Transactor,
	challenges OtpChallengeRepository,
	hasher Hasher,
	clock Clock,
	policy OtpPolicy,
	emails EmailPolicy,
	opts ...OtpEngineOption,
) (*OtpPolicyEngine, error) {
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if challenges == nil {
		return nil, oops.Errorf("otp challenge repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("hasher is required")
	}
	if clock == nil {
		return nil, oops.Errorf("clock is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	e := &OtpPolicyEngine{
		tx:         tx,
		challenges: challenges,
		hasher:     hasher,
		clock:      clock,
		policy:     policy,
		emails:     emails,
		purpose:    PurposeSignup,
		generate:   GenerateOtpCode,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Request issues a new code for email, creating or reissuing its challenge.
// The returned delivery must be handed to a MailSender by the caller; the
// state change is already committed when Request returns.
func (e *OtpPolicyEngine) Request(ctx context.Context, email string) (*OtpDelivery, error) {
	delivery, err := e.request(ctx, email)
	e.metrics.otpRequest(err)
	return delivery, err
}

func (e *OtpPolicyEngine) request(ctx context.Context, email string) (*OtpDelivery, error) {
	normalized, err := e.emails.Check(email)
	if err != nil {
		return nil, err
	}

	code, err := e.generate()
	if err != nil {
		return nil, err
	}
	// Hash before the transaction so the row lock is not held during argon2.
	digest, err := e.hasher.Hash(code)
	if err != nil {
		return nil, oops.Code("OTP_REQUEST_FAILED").With("operation", "hash code").Wrap(err)
	}

	var delivery *OtpDelivery
	err = e.tx.InTransaction(ctx, func(ctx context.Context) error {
		now := e.clock.Now()
		issue := OtpIssue{
			CodeDigest: digest,
			Now:        now,
			Today:      e.policy.Today(now),
			TTL:        e.policy.TTL,
			Cooldown:   e.policy.ResendCooldown,
		}

		for attempt := 0; attempt < maxInsertAttempts; attempt++ {
			existing, err := e.challenges.GetForUpdate(ctx, normalized, e.purpose)
			if errors.Is(err, ErrNotFound) {
				challenge, err := NewOtpChallenge(normalized, e.purpose, issue)
				if err != nil {
					return err
				}
				err = e.challenges.Insert(ctx, challenge)
				if errors.Is(err, ErrDuplicate) {
					// A concurrent request created the row first; re-read it
					// under lock and apply the same policy.
					continue
				}
				if err != nil {
					return oops.Code("OTP_REQUEST_FAILED").With("operation", "insert challenge").Wrap(err)
				}
				delivery = &OtpDelivery{Email: normalized, Code: code, ExpiresAt: challenge.ExpiresAt}
				return nil
			}
			if err != nil {
				return oops.Code("OTP_REQUEST_FAILED").With("operation", "lock challenge").Wrap(err)
			}

			if err := e.policy.CheckRequest(existing, now); err != nil {
				return err
			}
			existing.Reissue(issue)
			if err := e.challenges.Update(ctx, existing); err != nil {
				return oops.Code("OTP_REQUEST_FAILED").With("operation", "reissue challenge").Wrap(err)
			}
			delivery = &OtpDelivery{Email: normalized, Code: code, ExpiresAt: existing.ExpiresAt}
			return nil
		}

		return oops.Code(CodeOtpChallengeRace).
			With("email", normalized).
			With("attempts", maxInsertAttempts).
			Errorf("otp challenge row kept disappearing during insert")
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

// Verify checks code against the challenge for email.
//
// Order: not found, already verified (success), expired, too many failures,
// mismatch. A mismatch commits the failure counter before OTP_INVALID is
// returned.
func (e *OtpPolicyEngine) Verify(ctx context.Context, email, code string) error {
	err := e.verify(ctx, email, code)
	e.metrics.otpVerify(err)
	return err
}

func (e *OtpPolicyEngine) verify(ctx context.Context, email, code string) error {
	normalized, err := e.emails.Check(email)
	if err != nil {
		return err
	}
	if err := validateOtpCode(code); err != nil {
		return err
	}

	var outcome error
	err = e.tx.InTransaction(ctx, func(ctx context.Context) error {
		challenge, err := e.lock(ctx, normalized)
		if err != nil {
			return err
		}
		if challenge.IsVerified() {
			return nil
		}

		now := e.clock.Now()
		matched, err := e.attempt(ctx, challenge, code, now)
		if err != nil {
			return err
		}
		if !matched {
			outcome = e.invalidCode(challenge)
			return nil
		}

		challenge.MarkVerified(now)
		if err := e.challenges.Update(ctx, challenge); err != nil {
			return oops.Code("OTP_VERIFY_FAILED").With("operation", "mark verified").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return outcome
}

// Consume completes a verified challenge: within one transaction it checks
// the challenge is verified, unexpired and matches code, runs fn with the
// transaction context and the normalized email, and deletes the challenge.
// A mismatched code is counted exactly like in Verify.
func (e *OtpPolicyEngine) Consume(ctx context.Context, email, code string, fn func(ctx context.Context, email string) error) error {
	normalized, err := e.emails.Check(email)
	if err != nil {
		return err
	}
	if err := validateOtpCode(code); err != nil {
		return err
	}

	var outcome error
	err = e.tx.InTransaction(ctx, func(ctx context.Context) error {
		challenge, err := e.lock(ctx, normalized)
		if err != nil {
			return err
		}
		if !challenge.IsVerified() {
			return oops.Code(CodeOtpNotVerified).
				With("email", normalized).
				Errorf("email has not been verified")
		}

		matched, err := e.attempt(ctx, challenge, code, e.clock.Now())
		if err != nil {
			return err
		}
		if !matched {
			outcome = e.invalidCode(challenge)
			return nil
		}

		if err := fn(ctx, normalized); err != nil {
			return err
		}
		if err := e.challenges.Delete(ctx, normalized, e.purpose); err != nil {
			return oops.Code("OTP_CONSUME_FAILED").With("operation", "delete challenge").Wrap(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return outcome
}

func (e *OtpPolicyEngine) lock(ctx context.Context, email string) (*OtpChallenge, error) {
	challenge, err := e.challenges.GetForUpdate(ctx, email, e.purpose)
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code(CodeOtpNotFound).
			With("email", email).
			Errorf("no verification code was requested for this email")
	}
	if err != nil {
		return nil, oops.Code("OTP_LOOKUP_FAILED").With("operation", "lock challenge").Wrap(err)
	}
	return challenge, nil
}

// attempt applies the attempt policy and compares code. On mismatch the
// failure counter is incremented and persisted.
func (e *OtpPolicyEngine) attempt(ctx context.Context, challenge *OtpChallenge, code string, now time.Time) (bool, error) {
	if err := e.policy.CheckAttempt(challenge, now); err != nil {
		return false, err
	}

	matched, err := e.hasher.Verify(code, challenge.CodeDigest)
	if err != nil {
		return false, oops.Code("OTP_VERIFY_FAILED").With("operation", "compare code").Wrap(err)
	}
	if matched {
		return true, nil
	}

	challenge.IncreaseFailure(now)
	if err := e.challenges.Update(ctx, challenge); err != nil {
		return false, oops.Code("OTP_VERIFY_FAILED").With("operation", "record failure").Wrap(err)
	}
	return false, nil
}

func (e *OtpPolicyEngine) invalidCode(challenge *OtpChallenge) error {
	remaining := e.policy.MaxFailures - challenge.FailedAttempts
	if remaining < 0 {
		remaining = 0
	}
	return oops.Code(CodeOtpInvalid).
		With("email", challenge.Email).
		With("remaining_attempts", remaining).
		Errorf("verification code does not match")
}
