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

// Unique indexes on identities, see 000001_init.up.sql.
const (
	identityEmailKey       = "identities_email_key"
	identityDisplayNameKey = "identities_display_name_key"
)

const identityColumns = `id, email, credential_digest, display_name, role, status, created_at, updated_at, last_login_at`

var _ auth.IdentityRepository = (*IdentityRepository)(nil)

// IdentityRepository implements auth.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	pool poolIface
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(pool poolIface) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Create stores a new identity. Unique violations map to
// EMAIL_ALREADY_EXISTS or DISPLAY_NAME_ALREADY_EXISTS.
func (r *IdentityRepository) Create(ctx context.Context, identity *auth.Identity) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		identity.ID.String(),
		identity.Email,
		identity.CredentialDigest,
		identity.DisplayName,
		string(identity.Role),
		string(identity.Status),
		identity.CreatedAt,
		identity.UpdatedAt,
		identity.LastLoginAt,
	)
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case identityEmailKey:
			return oops.Code(auth.CodeEmailAlreadyExists).
				With("email", identity.Email).
				Wrapf(err, "email is already registered")
		case identityDisplayNameKey:
			return oops.Code(auth.CodeDisplayNameAlreadyExists).
				With("display_name", identity.DisplayName).
				Wrapf(err, "display name is already taken")
		}
	}
	if err != nil {
		return oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "insert identity").
			With("identity_id", identity.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an identity by ID.
func (r *IdentityRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
	`, id.String())

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_FAILED").
			With("operation", "get identity by id").
			With("id", id.String()).
			Wrap(err)
	}
	return identity, nil
}

// GetByEmail retrieves an identity by normalized email.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE email = $1
	`, email)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_FAILED").
			With("operation", "get identity by email").
			Wrap(err)
	}
	return identity, nil
}

// ExistsByEmail reports whether an identity uses email.
func (r *IdentityRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identities WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, oops.Code("IDENTITY_EXISTS_FAILED").
			With("operation", "check email").
			Wrap(err)
	}
	return exists, nil
}

// ExistsByDisplayName reports whether an identity uses displayName, ignoring case.
func (r *IdentityRepository) ExistsByDisplayName(ctx context.Context, displayName string) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identities WHERE lower(display_name) = lower($1))`, displayName).Scan(&exists)
	if err != nil {
		return false, oops.Code("IDENTITY_EXISTS_FAILED").
			With("operation", "check display name").
			Wrap(err)
	}
	return exists, nil
}

// UpdateLastLogin stamps the last successful login time.
func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return r.update(ctx, "update last login", id, `
		UPDATE identities SET last_login_at = $2, updated_at = $2 WHERE id = $1
	`, at)
}

// UpdateCredential replaces the credential digest.
func (r *IdentityRepository) UpdateCredential(ctx context.Context, id ulid.ULID, digest string) error {
	return r.update(ctx, "update credential", id, `
		UPDATE identities SET credential_digest = $2, updated_at = now() WHERE id = $1
	`, digest)
}

func (r *IdentityRepository) update(ctx context.Context, operation string, id ulid.ULID, sql string, value any) error {
	result, err := conn(ctx, r.pool).Exec(ctx, sql, id.String(), value)
	if err != nil {
		return oops.Code("IDENTITY_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanIdentity(row pgx.Row) (*auth.Identity, error) {
	var (
		idStr       string
		identity    auth.Identity
		role        string
		status      string
		lastLoginAt *time.Time
	)

	err := row.Scan(
		&idStr,
		&identity.Email,
		&identity.CredentialDigest,
		&identity.DisplayName,
		&role,
		&status,
		&identity.CreatedAt,
		&identity.UpdatedAt,
		&lastLoginAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Wrapf(err, "scan identity")
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("IDENTITY_INVALID_ID").
			With("operation", "parse identity id").
			With("id", idStr).
			Wrap(err)
	}

	identity.ID = id
	identity.Role = auth.Role(role)
	identity.Status = auth.Status(status)
	identity.LastLoginAt = lastLoginAt
	return &identity, nil
}
