// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"strings"

	"github.com/samber/oops"
)

// RegisterRequest carries the signup form.
type RegisterRequest struct {
	Email           string
	Code            string
	Password        string
	PasswordConfirm string
	DisplayName     string
}

// validate checks the fields that do not need storage. It runs before any
// hashing or locking.
func (r RegisterRequest) validate() (displayName string, err error) {
	if err := ValidatePassword(r.Password); err != nil {
		return "", err
	}
	if r.Password != r.PasswordConfirm {
		return "", oops.Code(CodePasswordMismatch).Errorf("password confirmation does not match")
	}
	displayName = strings.TrimSpace(r.DisplayName)
	if err := ValidateDisplayName(displayName); err != nil {
		return "", err
	}
	return displayName, nil
}

// RegisterWithOtp creates an identity for a verified email. The challenge is
// consumed in the same transaction as the insert, so a code registers at
// most one identity.
func (s *Service) RegisterWithOtp(ctx context.Context, req RegisterRequest) (_ *Identity, err error) {
	ctx, span := s.startSpan(ctx, "auth.register")
	defer func() { endSpan(span, err) }()

	displayName, err := req.validate()
	if err != nil {
		return nil, err
	}

	// Hash outside the transaction; argon2 is slow and holds no locks.
	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	var created *Identity
	err = s.otp.Consume(ctx, req.Email, req.Code, func(ctx context.Context, email string) error {
		identity, err := s.createIdentity(ctx, email, digest, displayName)
		if err != nil {
			return err
		}
		created = identity
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "identity registered",
		"identity_id", created.ID.String(),
		"email", created.Email,
	)
	return created, nil
}

func (s *Service) createIdentity(ctx context.Context, email, digest, displayName string) (*Identity, error) {
	exists, err := s.identities.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "check email").Wrap(err)
	}
	if exists {
		return nil, oops.Code(CodeEmailAlreadyExists).With("email", email).Errorf("email is already registered")
	}

	exists, err = s.identities.ExistsByDisplayName(ctx, displayName)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "check display name").Wrap(err)
	}
	if exists {
		return nil, oops.Code(CodeDisplayNameAlreadyExists).
			With("display_name", displayName).
			Errorf("display name is already taken")
	}

	identity, err := NewIdentity(email, digest, displayName, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		// A concurrent signup can still win the unique index.
		if KindOf(err) == KindConflict {
			return nil, err
		}
		return nil, oops.Code("REGISTER_FAILED").With("operation", "create identity").Wrap(err)
	}
	return identity, nil
}
