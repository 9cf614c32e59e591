// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyonggi-board/authcore/internal/auth"
	"github.com/kyonggi-board/authcore/internal/auth/authtest"
	"github.com/kyonggi-board/authcore/pkg/errutil"
)

func newAccessEngine(t *testing.T, clock auth.Clock) *auth.AccessTokenEngine {
	t.Helper()
	signer, err := auth.NewHS256Signer(testSecret, "kyonggi-board", clock)
	require.NoError(t, err)
	engine, err := auth.NewAccessTokenEngine(signer, auth.DefaultAccessTokenTTL, clock)
	require.NoError(t, err)
	return engine
}

func TestNewHS256Signer(t *testing.T) {
	clock := authtest.NewManualClock(testStart)

	_, err := auth.NewHS256Signer([]byte("too-short"), "kyonggi-board", clock)
	errutil.AssertErrorCode(t, err, "SIGNER_SECRET_TOO_SHORT")

	_, err = auth.NewHS256Signer(testSecret, "", clock)
	errutil.AssertErrorCode(t, err, "SIGNER_ISSUER_REQUIRED")

	_, err = auth.NewHS256Signer(testSecret, "kyonggi-board", nil)
	assert.ErrorContains(t, err, "clock is required")
}

func TestAccessTokenEngine_RoundTrip(t *testing.T) {
	clock := authtest.NewManualClock(testStart.Add(500 * time.Millisecond))
	engine := newAccessEngine(t, clock)
	id := ulid.Make()

	token, err := engine.Issue(id, auth.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, testStart.Add(auth.DefaultAccessTokenTTL), token.ExpiresAt, "issued at is truncated to seconds")

	principal, err := engine.Verify(token.Token)
	require.NoError(t, err)
	assert.Equal(t, id, principal.IdentityID)
	assert.Equal(t, auth.RoleAdmin, principal.Role)
}

type issuerlessSigner struct{ auth.Signer }

func (issuerlessSigner) Issuer() string { return "" }

func TestNewAccessTokenEngine_UsesSignerIssuer(t *testing.T) {
	clock := authtest.NewManualClock(testStart)
	signer, err := auth.NewHS256Signer(testSecret, "campus-auth", clock)
	require.NoError(t, err)
	engine, err := auth.NewAccessTokenEngine(signer, auth.DefaultAccessTokenTTL, clock)
	require.NoError(t, err)

	token, err := engine.Issue(ulid.Make(), auth.RoleUser)
	require.NoError(t, err)

	var claims auth.AccessClaims
	_, _, err = jwt.NewParser().ParseUnverified(token.Token, &claims)
	require.NoError(t, err)
	assert.Equal(t, "campus-auth", claims.Issuer)

	_, err = engine.Verify(token.Token)
	require.NoError(t, err)

	_, err = auth.NewAccessTokenEngine(issuerlessSigner{signer}, auth.DefaultAccessTokenTTL, clock)
	errutil.AssertErrorCode(t, err, "SIGNER_ISSUER_REQUIRED")
}

func TestAccessTokenEngine_Issue_Rejects(t *testing.T) {
	engine := newAccessEngine(t, authtest.NewManualClock(testStart))

	_, err := engine.Issue(ulid.ULID{}, auth.RoleUser)
	errutil.AssertErrorCode(t, err, "ACCESS_TOKEN_ISSUE_FAILED")

	_, err = engine.Issue(ulid.Make(), auth.Role("ROOT"))
	errutil.AssertErrorCode(t, err, "ACCESS_TOKEN_ISSUE_FAILED")
}

func TestAccessTokenEngine_Verify_Rejects(t *testing.T) {
	clock := authtest.NewManualClock(testStart)
	engine := newAccessEngine(t, clock)
	id := ulid.Make()

	sign := func(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() auth.AccessClaims {
		return auth.AccessClaims{
			Role: string(auth.RoleUser),
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "kyonggi-board",
				Subject:   id.String(),
				IssuedAt:  jwt.NewNumericDate(testStart),
				ExpiresAt: jwt.NewNumericDate(testStart.Add(time.Minute)),
			},
		}
	}

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"empty", func(*testing.T) string { return "" }},
		{"garbage", func(*testing.T) string { return "not.a.jwt" }},
		{"wrong secret", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"), valid())
		}},
		{"wrong algorithm", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS512, testSecret, valid())
		}},
		{"none algorithm", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid())
		}},
		{"wrong issuer", func(t *testing.T) string {
			c := valid()
			c.Issuer = "someone-else"
			return sign(t, jwt.SigningMethodHS256, testSecret, c)
		}},
		{"missing expiry", func(t *testing.T) string {
			c := valid()
			c.ExpiresAt = nil
			return sign(t, jwt.SigningMethodHS256, testSecret, c)
		}},
		{"bad subject", func(t *testing.T) string {
			c := valid()
			c.Subject = "player-1"
			return sign(t, jwt.SigningMethodHS256, testSecret, c)
		}},
		{"missing role", func(t *testing.T) string {
			c := valid()
			c.Role = ""
			return sign(t, jwt.SigningMethodHS256, testSecret, c)
		}},
		{"unknown role", func(t *testing.T) string {
			c := valid()
			c.Role = "ROOT"
			return sign(t, jwt.SigningMethodHS256, testSecret, c)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Verify(tt.token(t))
			errutil.AssertErrorCode(t, err, auth.CodeAccessTokenInvalid)
			assert.Equal(t, auth.KindInvalidCredential, auth.KindOf(err))
		})
	}

	t.Run("expired", func(t *testing.T) {
		token, err := engine.Issue(id, auth.RoleUser)
		require.NoError(t, err)

		clock.Advance(auth.DefaultAccessTokenTTL)
		_, err = engine.Verify(token.Token)
		errutil.AssertErrorCode(t, err, auth.CodeAccessTokenInvalid)
	})
}
