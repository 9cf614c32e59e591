// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/kyonggi-board/authcore/internal/auth"
)

const sessionColumns = `id, identity_id, token_hash, remember_me, expires_at, created_at,
	last_used_at, revoked_at, revoke_reason, user_agent, ip_address`

var _ auth.SessionRepository = (*SessionRepository)(nil)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool poolIface
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool poolIface) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		session.ID.String(),
		session.IdentityID.String(),
		session.TokenHash,
		session.RememberMe,
		session.ExpiresAt,
		session.CreatedAt,
		session.LastUsedAt,
		session.RevokedAt,
		nullableReason(session.RevokeReason),
		session.UserAgent,
		session.IPAddress,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("session_id", session.ID.String()).
			With("identity_id", session.IdentityID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHashForUpdate reads and locks the session with tokenHash.
func (r *SessionRepository) GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*auth.Session, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE token_hash = $1
		FOR UPDATE
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "lock session by token hash").
			Wrap(err)
	}
	return session, nil
}

// Update persists last_used_at and the revocation fields.
func (r *SessionRepository) Update(ctx context.Context, session *auth.Session) error {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE sessions
		SET last_used_at = $2, revoked_at = $3, revoke_reason = $4
		WHERE id = $1
	`,
		session.ID.String(),
		session.LastUsedAt,
		session.RevokedAt,
		nullableReason(session.RevokeReason),
	)
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").
			With("operation", "update session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("session_id", session.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ListByIdentity returns every session of identityID, newest first.
func (r *SessionRepository) ListByIdentity(ctx context.Context, identityID ulid.ULID) ([]*auth.Session, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE identity_id = $1
		ORDER BY created_at DESC, id DESC
	`, identityID.String())
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list sessions").
			With("identity_id", identityID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_LIST_FAILED").
				With("operation", "scan session").
				With("identity_id", identityID.String()).
				Wrap(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "iterate sessions").
			With("identity_id", identityID.String()).
			Wrap(err)
	}
	return sessions, nil
}

func nullableReason(reason auth.RevokeReason) *string {
	if reason == "" {
		return nil
	}
	s := string(reason)
	return &s
}

func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr, identityStr string
		session            auth.Session
		lastUsedAt         *time.Time
		revokedAt          *time.Time
		reason             *string
	)

	err := row.Scan(
		&idStr,
		&identityStr,
		&session.TokenHash,
		&session.RememberMe,
		&session.ExpiresAt,
		&session.CreatedAt,
		&lastUsedAt,
		&revokedAt,
		&reason,
		&session.UserAgent,
		&session.IPAddress,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Wrapf(err, "scan session")
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", idStr).Wrap(err)
	}
	identityID, err := ulid.Parse(identityStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_IDENTITY_ID").With("identity_id", identityStr).Wrap(err)
	}

	session.ID = id
	session.IdentityID = identityID
	session.LastUsedAt = lastUsedAt
	session.RevokedAt = revokedAt
	if reason != nil {
		session.RevokeReason = auth.RevokeReason(*reason)
	}
	return &session, nil
}
