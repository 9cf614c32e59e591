// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Refresh token configuration.
const (
	RefreshTokenBytes    = 48 // 64 base64url chars
	DefaultSessionTTL    = 24 * time.Hour
	DefaultRememberMeTTL = 7 * 24 * time.Hour
)

// RevokeReason records why a session stopped being live.
type RevokeReason string

// Revoke reasons.
const (
	RevokeRotated RevokeReason = "ROTATED"
	RevokeLogout  RevokeReason = "LOGOUT"
)

// ClientInfo is optional audit metadata about the presenting client.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// Session is one issued refresh token. Only the token digest is stored.
type Session struct {
	ID           ulid.ULID
	IdentityID   ulid.ULID
	TokenHash    string
	RememberMe   bool
	ExpiresAt    time.Time
	CreatedAt    time.Time
	LastUsedAt   *time.Time
	RevokedAt    *time.Time
	RevokeReason RevokeReason
	UserAgent    string
	IPAddress    string
}

// NewSession creates a validated live Session.
// UserAgent and IPAddress are optional and may be empty.
func NewSession(identityID ulid.ULID, tokenHash string, rememberMe bool, client ClientInfo, now, expiresAt time.Time) (*Session, error) {
	if identityID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_IDENTITY").Errorf("identity ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(now) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be after creation time")
	}

	return &Session{
		ID:         ulid.Make(),
		IdentityID: identityID,
		TokenHash:  tokenHash,
		RememberMe: rememberMe,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		UserAgent:  client.UserAgent,
		IPAddress:  client.IPAddress,
	}, nil
}

// IsRevoked reports whether the session was revoked for any reason.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsExpiredAt reports whether the session is expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// IsLiveAt reports whether the session can be rotated at t.
func (s *Session) IsLiveAt(t time.Time) bool {
	return !s.IsRevoked() && !s.IsExpiredAt(t)
}

// Revoke ends the session. Revoking an already revoked session keeps the
// first reason and timestamp.
func (s *Session) Revoke(now time.Time, reason RevokeReason) {
	if s.IsRevoked() {
		return
	}
	s.RevokedAt = &now
	s.RevokeReason = reason
}

// Touch records that the token was presented at now.
func (s *Session) Touch(now time.Time) {
	s.LastUsedAt = &now
}

// GenerateRefreshToken creates a random raw token and its digest.
// Returns (raw_token, sha256_hex, error). Only the digest is persisted.
func GenerateRefreshToken() (token, hash string, err error) {
	tokenBytes := make([]byte, RefreshTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("REFRESH_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", RefreshTokenBytes).
			Wrap(err)
	}

	token = base64.RawURLEncoding.EncodeToString(tokenBytes)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken computes the SHA-256 hex digest of a raw refresh token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages refresh session persistence.
//
// Methods ending in ForUpdate lock the row and are only meaningful inside
// Transactor.InTransaction.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHashForUpdate reads and locks the session with tokenHash.
	// Returns ErrNotFound when no row matches.
	GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*Session, error)

	// Update persists revocation and last-use fields.
	Update(ctx context.Context, session *Session) error

	// ListByIdentity returns every session of an identity, newest first.
	ListByIdentity(ctx context.Context, identityID ulid.ULID) ([]*Session, error)
}
