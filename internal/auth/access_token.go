// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultAccessTokenTTL is the lifetime of an access token.
const DefaultAccessTokenTTL = 15 * time.Minute

// Principal is the authenticated caller behind an access token.
type Principal struct {
	IdentityID ulid.ULID
	Role       Role
}

// AccessToken is a signed access token and its expiry.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// AccessTokenEngine issues and verifies stateless access tokens. It never
// touches storage.
type AccessTokenEngine struct {
	signer Signer
	issuer string
	ttl    time.Duration
	clock  Clock
}

// NewAccessTokenEngine creates an AccessTokenEngine. Tokens carry the
// signer's issuer so Verify accepts every token Issue produces.
func NewAccessTokenEngine(signer Signer, ttl time.Duration, clock Clock) (*AccessTokenEngine, error) {
	if signer == nil {
		return nil, oops.Errorf("signer is required")
	}
	issuer := signer.Issuer()
	if issuer == "" {
		return nil, oops.Code("SIGNER_ISSUER_REQUIRED").Errorf("issuer is required")
	}
	if ttl <= 0 {
		return nil, oops.Code("ACCESS_TOKEN_TTL_INVALID").Errorf("access token ttl must be positive")
	}
	if clock == nil {
		return nil, oops.Errorf("clock is required")
	}
	return &AccessTokenEngine{signer: signer, issuer: issuer, ttl: ttl, clock: clock}, nil
}

// Issue signs an access token for identityID with role.
func (e *AccessTokenEngine) Issue(identityID ulid.ULID, role Role) (*AccessToken, error) {
	if identityID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("ACCESS_TOKEN_ISSUE_FAILED").Errorf("identity ID cannot be zero")
	}
	if !role.Valid() {
		return nil, oops.Code("ACCESS_TOKEN_ISSUE_FAILED").With("role", string(role)).Errorf("unknown role")
	}

	now := e.clock.Now().Truncate(time.Second)
	expiresAt := now.Add(e.ttl)
	token, err := e.signer.Sign(AccessClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.issuer,
			Subject:   identityID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return nil, err
	}
	return &AccessToken{Token: token, ExpiresAt: expiresAt}, nil
}

// Verify returns the principal of a valid token. Every failure is
// ACCESS_TOKEN_INVALID.
func (e *AccessTokenEngine) Verify(token string) (*Principal, error) {
	if token == "" {
		return nil, oops.Code(CodeAccessTokenInvalid).Errorf("access token is empty")
	}

	claims, err := e.signer.Verify(token)
	if err != nil {
		return nil, oops.Code(CodeAccessTokenInvalid).Wrap(err)
	}

	identityID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, oops.Code(CodeAccessTokenInvalid).Wrapf(err, "subject is not a valid identity ID")
	}
	role := Role(claims.Role)
	if !role.Valid() {
		return nil, oops.Code(CodeAccessTokenInvalid).
			With("role", claims.Role).
			Errorf("role claim is missing or unknown")
	}

	return &Principal{IdentityID: identityID, Role: role}, nil
}
