// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/kyonggi-board/authcore/internal/auth"
)

const challengeColumns = `email, purpose, code_digest, expires_at, verified_at, failed_attempts,
	last_sent_at, resend_available_at, send_count_date, send_count, created_at, updated_at`

var _ auth.OtpChallengeRepository = (*OtpChallengeRepository)(nil)

// OtpChallengeRepository implements auth.OtpChallengeRepository using PostgreSQL.
type OtpChallengeRepository struct {
	pool poolIface
}

// NewOtpChallengeRepository creates a new OtpChallengeRepository.
func NewOtpChallengeRepository(pool poolIface) *OtpChallengeRepository {
	return &OtpChallengeRepository{pool: pool}
}

// GetForUpdate reads the challenge with SELECT ... FOR UPDATE.
func (r *OtpChallengeRepository) GetForUpdate(ctx context.Context, email string, purpose auth.Purpose) (*auth.OtpChallenge, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+challengeColumns+`
		FROM otp_challenges
		WHERE email = $1 AND purpose = $2
		FOR UPDATE
	`, email, string(purpose))

	challenge, err := scanChallenge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("OTP_CHALLENGE_NOT_FOUND").
			With("email", email).
			With("purpose", string(purpose)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("OTP_CHALLENGE_GET_FAILED").
			With("operation", "lock otp challenge").
			With("email", email).
			Wrap(err)
	}
	return challenge, nil
}

// Insert stores a new challenge. A concurrent insert of the same
// (email, purpose) yields auth.ErrDuplicate without aborting the
// surrounding transaction.
func (r *OtpChallengeRepository) Insert(ctx context.Context, c *auth.OtpChallenge) error {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO otp_challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (email, purpose) DO NOTHING
	`,
		c.Email,
		string(c.Purpose),
		c.CodeDigest,
		c.ExpiresAt,
		c.VerifiedAt,
		c.FailedAttempts,
		c.LastSentAt,
		c.ResendAvailableAt,
		c.SendCountDate,
		c.SendCount,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return oops.Code("OTP_CHALLENGE_INSERT_FAILED").
			With("operation", "insert otp challenge").
			With("email", c.Email).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("OTP_CHALLENGE_DUPLICATE").
			With("email", c.Email).
			Wrap(auth.ErrDuplicate)
	}
	return nil
}

// Update persists the mutable fields of an existing challenge.
func (r *OtpChallengeRepository) Update(ctx context.Context, c *auth.OtpChallenge) error {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE otp_challenges SET
			code_digest = $3,
			expires_at = $4,
			verified_at = $5,
			failed_attempts = $6,
			last_sent_at = $7,
			resend_available_at = $8,
			send_count_date = $9,
			send_count = $10,
			updated_at = $11
		WHERE email = $1 AND purpose = $2
	`,
		c.Email,
		string(c.Purpose),
		c.CodeDigest,
		c.ExpiresAt,
		c.VerifiedAt,
		c.FailedAttempts,
		c.LastSentAt,
		c.ResendAvailableAt,
		c.SendCountDate,
		c.SendCount,
		c.UpdatedAt,
	)
	if err != nil {
		return oops.Code("OTP_CHALLENGE_UPDATE_FAILED").
			With("operation", "update otp challenge").
			With("email", c.Email).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("OTP_CHALLENGE_NOT_FOUND").
			With("email", c.Email).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes the challenge. Deleting a missing row is not an error.
func (r *OtpChallengeRepository) Delete(ctx context.Context, email string, purpose auth.Purpose) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM otp_challenges WHERE email = $1 AND purpose = $2`, email, string(purpose))
	if err != nil {
		return oops.Code("OTP_CHALLENGE_DELETE_FAILED").
			With("operation", "delete otp challenge").
			With("email", email).
			Wrap(err)
	}
	return nil
}

func scanChallenge(row pgx.Row) (*auth.OtpChallenge, error) {
	var (
		c          auth.OtpChallenge
		purpose    string
		verifiedAt *time.Time
	)

	err := row.Scan(
		&c.Email,
		&purpose,
		&c.CodeDigest,
		&c.ExpiresAt,
		&verifiedAt,
		&c.FailedAttempts,
		&c.LastSentAt,
		&c.ResendAvailableAt,
		&c.SendCountDate,
		&c.SendCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Wrapf(err, "scan otp challenge")
	}

	c.Purpose = auth.Purpose(purpose)
	c.VerifiedAt = verifiedAt
	c.SendCountDate = c.SendCountDate.UTC()
	return &c, nil
}
