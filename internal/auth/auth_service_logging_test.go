// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyonggi-board/authcore/internal/auth"
)

func TestService_RequestOtp_MailFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	f.mailer.Fail(errors.New("smtp: 421 service not available"))

	receipt, err := f.svc.RequestOtp(t.Context(), testEmail)
	require.NoError(t, err, "mail failure does not undo the committed request")
	assert.Equal(t, testEmail, receipt.Email)

	_, ok := f.store.Challenge(testEmail, auth.PurposeSignup)
	assert.True(t, ok)

	entry := findLog(f.logEntries(t), "failed to dispatch otp mail")
	require.NotNil(t, entry)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, testEmail, entry["email"])
	assert.Contains(t, entry["error"], "421")
}

func TestService_Login_LastLoginFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	f.registered(t, testEmail, "password1", "kyonggi_user")

	f.store.FailNext("identities.UpdateLastLogin", errors.New("deadlock detected"))
	tokens, err := f.svc.Login(t.Context(), testEmail, "password1", false, auth.ClientInfo{})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.RefreshToken)

	entry := findLog(f.logEntries(t), "failed to record last login")
	require.NotNil(t, entry)
	assert.Equal(t, "WARN", entry["level"])
}

func TestService_Logout_StorageFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext("sessions.GetByTokenHashForUpdate", errors.New("connection refused"))

	f.svc.Logout(t.Context(), "some-token")

	entry := findLog(f.logEntries(t), "failed to revoke refresh token on logout")
	require.NotNil(t, entry)
	assert.Equal(t, "SESSION_REVOKE_FAILED", entry["code"])
}

func TestService_Register_LogsWithoutSecrets(t *testing.T) {
	f := newFixture(t, withCodes("482913"))
	f.registered(t, testEmail, "password1", "kyonggi_user")

	entry := findLog(f.logEntries(t), "identity registered")
	require.NotNil(t, entry)
	assert.Equal(t, testEmail, entry["email"])
	assert.NotContains(t, f.logs.String(), "password1")
	assert.NotContains(t, f.logs.String(), "482913")
}
