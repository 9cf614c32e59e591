// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"regexp"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the single authorization claim carried by an identity.
type Role string

// Roles.
const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Status is the account state of an identity.
type Status string

// Statuses.
const (
	StatusActive   Status = "ACTIVE"
	StatusDisabled Status = "DISABLED"
)

// Password constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 64
)

// Display name constraints.
const (
	MinDisplayNameLength = 2
	MaxDisplayNameLength = 20
)

// displayNameRegex allows letters (any script), digits and underscores.
var displayNameRegex = regexp.MustCompile(`^[\p{L}\p{N}_]+$`)

// Identity is a registered user.
type Identity struct {
	ID               ulid.ULID
	Email            string
	CredentialDigest string
	DisplayName      string
	Role             Role
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastLoginAt      *time.Time
}

// NewIdentity creates a validated, active USER identity.
// email must already be normalized; displayName must pass ValidateDisplayName.
func NewIdentity(email, credentialDigest, displayName string, now time.Time) (*Identity, error) {
	if email == "" {
		return nil, oops.Code("IDENTITY_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if credentialDigest == "" {
		return nil, oops.Code("IDENTITY_INVALID_CREDENTIAL").Errorf("credential digest cannot be empty")
	}
	if err := ValidateDisplayName(displayName); err != nil {
		return nil, err
	}

	return &Identity{
		ID:               ulid.Make(),
		Email:            email,
		CredentialDigest: credentialDigest,
		DisplayName:      displayName,
		Role:             RoleUser,
		Status:           StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// IsActive reports whether the identity may log in.
func (i *Identity) IsActive() bool {
	return i.Status == StatusActive
}

// ValidateDisplayName checks length and character class of a display name.
func ValidateDisplayName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < MinDisplayNameLength || n > MaxDisplayNameLength {
		return oops.Code(CodeDisplayNameInvalid).
			With("length", n).
			Errorf("display name must be %d-%d characters", MinDisplayNameLength, MaxDisplayNameLength)
	}
	if !displayNameRegex.MatchString(name) {
		return oops.Code(CodeDisplayNameInvalid).
			Errorf("display name may contain only letters, digits and underscores")
	}
	return nil
}

// ValidatePassword enforces the password policy: 8-64 characters with at
// least one letter and one digit.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return oops.Code(CodePasswordWeak).
			Errorf("password must be %d-%d characters", MinPasswordLength, MaxPasswordLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsSpace(r):
			return oops.Code(CodePasswordWeak).Errorf("password cannot contain whitespace")
		}
	}
	if !hasLetter || !hasDigit {
		return oops.Code(CodePasswordWeak).Errorf("password must contain a letter and a digit")
	}
	return nil
}

// IdentityRepository manages identity persistence.
type IdentityRepository interface {
	// Create stores a new identity. Returns an EMAIL_ALREADY_EXISTS or
	// DISPLAY_NAME_ALREADY_EXISTS error when a unique constraint rejects it.
	Create(ctx context.Context, identity *Identity) error

	// GetByID retrieves an identity by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Identity, error)

	// GetByEmail retrieves an identity by normalized email.
	GetByEmail(ctx context.Context, email string) (*Identity, error)

	// ExistsByEmail reports whether an identity uses email.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// ExistsByDisplayName reports whether an identity uses displayName.
	ExistsByDisplayName(ctx context.Context, displayName string) (bool, error)

	// UpdateLastLogin stamps the last successful login time.
	UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// UpdateCredential replaces the credential digest.
	UpdateCredential(ctx context.Context, id ulid.ULID, digest string) error
}
