// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// MinSigningSecretBytes is the shortest HMAC secret accepted at startup.
const MinSigningSecretBytes = 32

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Signer signs and verifies access token claims.
type Signer interface {
	// Issuer is the only issuer Verify accepts.
	Issuer() string
	Sign(claims AccessClaims) (string, error)
	// Verify checks signature, algorithm, issuer and expiry.
	Verify(token string) (*AccessClaims, error)
}

// HS256Signer implements Signer with HMAC-SHA256 JWTs.
type HS256Signer struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewHS256Signer creates a signer bound to one issuer. The secret must be
// at least MinSigningSecretBytes long.
func NewHS256Signer(secret []byte, issuer string, clock Clock) (*HS256Signer, error) {
	if len(secret) < MinSigningSecretBytes {
		return nil, oops.Code("SIGNER_SECRET_TOO_SHORT").
			With("min_bytes", MinSigningSecretBytes).
			With("actual_bytes", len(secret)).
			Errorf("signing secret must be at least %d bytes", MinSigningSecretBytes)
	}
	if issuer == "" {
		return nil, oops.Code("SIGNER_ISSUER_REQUIRED").Errorf("issuer is required")
	}
	if clock == nil {
		return nil, oops.Errorf("clock is required")
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &HS256Signer{
		secret: key,
		issuer: issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(clock.Now),
		),
	}, nil
}

// Issuer returns the issuer the signer was created for.
func (s *HS256Signer) Issuer() string {
	return s.issuer
}

// Sign returns the compact serialization of claims.
func (s *HS256Signer) Sign(claims AccessClaims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("ACCESS_TOKEN_SIGN_FAILED").Wrap(err)
	}
	return token, nil
}

// Verify parses token and validates its registered claims.
func (s *HS256Signer) Verify(token string) (*AccessClaims, error) {
	var claims AccessClaims
	parsed, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, oops.Code(CodeAccessTokenInvalid).Wrapf(err, "access token is not valid")
	}
	if !parsed.Valid {
		return nil, oops.Code(CodeAccessTokenInvalid).Errorf("access token is not valid")
	}
	return &claims, nil
}
