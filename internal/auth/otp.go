// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/samber/oops"
)

// Purpose scopes an OTP challenge to one flow.
type Purpose string

// PurposeSignup is the only purpose currently issued.
const PurposeSignup Purpose = "SIGNUP"

// OTP code range: six digits, never a leading zero.
const (
	otpCodeMin = 100000
	otpCodeMax = 999999
)

var otpCodeSpan = big.NewInt(otpCodeMax - otpCodeMin + 1)

// OtpChallenge is the single pending verification for an (email, purpose) pair.
type OtpChallenge struct {
	Email             string
	Purpose           Purpose
	CodeDigest        string
	ExpiresAt         time.Time
	VerifiedAt        *time.Time
	FailedAttempts    int
	LastSentAt        time.Time
	ResendAvailableAt time.Time
	SendCountDate     time.Time // midnight UTC of the calendar day counted
	SendCount         int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OtpIssue holds the timing inputs for issuing or reissuing a challenge.
type OtpIssue struct {
	CodeDigest string
	Now        time.Time
	Today      time.Time
	TTL        time.Duration
	Cooldown   time.Duration
}

// NewOtpChallenge creates the first challenge for email and purpose.
func NewOtpChallenge(email string, purpose Purpose, issue OtpIssue) (*OtpChallenge, error) {
	if email == "" {
		return nil, oops.Code("OTP_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if purpose == "" {
		return nil, oops.Code("OTP_INVALID_PURPOSE").Errorf("purpose cannot be empty")
	}
	if issue.CodeDigest == "" {
		return nil, oops.Code("OTP_INVALID_DIGEST").Errorf("code digest cannot be empty")
	}
	if issue.TTL <= 0 {
		return nil, oops.Code("OTP_INVALID_TTL").Errorf("ttl must be positive")
	}

	c := &OtpChallenge{
		Email:         email,
		Purpose:       purpose,
		CreatedAt:     issue.Now,
		SendCountDate: issue.Today,
	}
	c.apply(issue, 1)
	return c, nil
}

// Reissue replaces the code in place and resets verification state.
// The daily counter restarts at one when the calendar day rolled over.
func (c *OtpChallenge) Reissue(issue OtpIssue) {
	count := c.SendCount + 1
	if !c.SendCountDate.Equal(issue.Today) {
		c.SendCountDate = issue.Today
		count = 1
	}
	c.apply(issue, count)
}

func (c *OtpChallenge) apply(issue OtpIssue, sendCount int) {
	c.CodeDigest = issue.CodeDigest
	c.VerifiedAt = nil
	c.FailedAttempts = 0
	c.ExpiresAt = issue.Now.Add(issue.TTL)
	c.ResendAvailableAt = issue.Now.Add(issue.Cooldown)
	c.LastSentAt = issue.Now
	c.SendCount = sendCount
	c.UpdatedAt = issue.Now
}

// MarkVerified records the first successful verification. Later calls keep
// the original timestamp.
func (c *OtpChallenge) MarkVerified(now time.Time) {
	if c.VerifiedAt != nil {
		return
	}
	c.VerifiedAt = &now
	c.UpdatedAt = now
}

// IncreaseFailure counts one mismatched code.
func (c *OtpChallenge) IncreaseFailure(now time.Time) {
	c.FailedAttempts++
	c.UpdatedAt = now
}

// IsVerified reports whether a code has been accepted.
func (c *OtpChallenge) IsVerified() bool {
	return c.VerifiedAt != nil
}

// IsExpiredAt reports whether the challenge is expired at t.
func (c *OtpChallenge) IsExpiredAt(t time.Time) bool {
	return !t.Before(c.ExpiresAt)
}

// SendsOn returns how many codes were sent on the calendar day today.
func (c *OtpChallenge) SendsOn(today time.Time) int {
	if !c.SendCountDate.Equal(today) {
		return 0
	}
	return c.SendCount
}

// GenerateOtpCode returns a uniformly random six-digit code from crypto/rand.
func GenerateOtpCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpCodeSpan)
	if err != nil {
		return "", oops.Code("OTP_CODE_GENERATE_FAILED").
			With("operation", "crypto/rand.Int").
			Wrap(err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpCodeMin), nil
}

// OtpChallengeRepository manages OTP challenge persistence.
//
// Methods ending in ForUpdate lock the row and are only meaningful inside
// Transactor.InTransaction.
type OtpChallengeRepository interface {
	// GetForUpdate reads and locks the challenge for email and purpose.
	// Returns ErrNotFound when no row exists.
	GetForUpdate(ctx context.Context, email string, purpose Purpose) (*OtpChallenge, error)

	// Insert stores a new challenge. Returns ErrDuplicate when a concurrent
	// transaction already created the row.
	Insert(ctx context.Context, challenge *OtpChallenge) error

	// Update persists the mutable fields of an existing challenge.
	Update(ctx context.Context, challenge *OtpChallenge) error

	// Delete removes the challenge for email and purpose.
	Delete(ctx context.Context, email string, purpose Purpose) error
}
