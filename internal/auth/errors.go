// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"errors"
	"math"
	"time"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by repositories when an insert lost a uniqueness race.
var ErrDuplicate = errors.New("duplicate")

// Error codes surfaced to callers.
const (
	CodeEmailInvalid             = "EMAIL_INVALID"
	CodeEmailDomainNotAllowed    = "EMAIL_DOMAIN_NOT_ALLOWED"
	CodeOtpCodeMalformed         = "OTP_CODE_MALFORMED"
	CodeOtpAlreadyVerified       = "OTP_ALREADY_VERIFIED"
	CodeOtpCooldown              = "OTP_COOLDOWN"
	CodeOtpDailyLimit            = "OTP_DAILY_LIMIT"
	CodeOtpNotFound              = "OTP_NOT_FOUND"
	CodeOtpExpired               = "OTP_EXPIRED"
	CodeOtpTooManyFailures       = "OTP_TOO_MANY_FAILURES"
	CodeOtpInvalid               = "OTP_INVALID"
	CodeOtpNotVerified           = "OTP_NOT_VERIFIED"
	CodeOtpChallengeRace         = "OTP_CHALLENGE_RACE"
	CodeRefreshInvalid           = "REFRESH_INVALID"
	CodeRefreshReused            = "REFRESH_REUSED"
	CodeRefreshRevoked           = "REFRESH_REVOKED"
	CodeRefreshExpired           = "REFRESH_EXPIRED"
	CodeIdentityNotFound         = "IDENTITY_NOT_FOUND"
	CodeInvalidCredentials       = "INVALID_CREDENTIALS"
	CodeAccountDisabled          = "ACCOUNT_DISABLED"
	CodeAccessTokenInvalid       = "ACCESS_TOKEN_INVALID"
	CodePasswordWeak             = "PASSWORD_WEAK"
	CodePasswordMismatch         = "PASSWORD_MISMATCH"
	CodeDisplayNameInvalid       = "DISPLAY_NAME_INVALID"
	CodeEmailAlreadyExists       = "EMAIL_ALREADY_EXISTS"
	CodeDisplayNameAlreadyExists = "DISPLAY_NAME_ALREADY_EXISTS"
)

// Kind classifies an error for the transport layer.
type Kind string

// Error kinds.
const (
	KindInvalidInput       Kind = "invalid_input"
	KindPolicyRejected     Kind = "policy_rejected"
	KindNotFound           Kind = "not_found"
	KindInvalidCredential  Kind = "invalid_credential"
	KindConflict           Kind = "conflict"
	KindExpired            Kind = "expired"
	KindIntegrityViolation Kind = "integrity_violation"
	KindInternal           Kind = "internal"
)

var codeKinds = map[string]Kind{
	CodeEmailInvalid:             KindInvalidInput,
	CodeOtpCodeMalformed:         KindInvalidInput,
	CodePasswordWeak:             KindInvalidInput,
	CodePasswordMismatch:         KindInvalidInput,
	CodeDisplayNameInvalid:       KindInvalidInput,
	CodeEmailDomainNotAllowed:    KindPolicyRejected,
	CodeOtpAlreadyVerified:       KindPolicyRejected,
	CodeOtpCooldown:              KindPolicyRejected,
	CodeOtpDailyLimit:            KindPolicyRejected,
	CodeOtpTooManyFailures:       KindPolicyRejected,
	CodeOtpNotVerified:           KindPolicyRejected,
	CodeAccountDisabled:          KindPolicyRejected,
	CodeOtpNotFound:              KindNotFound,
	CodeIdentityNotFound:         KindNotFound,
	CodeOtpInvalid:               KindInvalidCredential,
	CodeRefreshInvalid:           KindInvalidCredential,
	CodeRefreshRevoked:           KindInvalidCredential,
	CodeInvalidCredentials:       KindInvalidCredential,
	CodeAccessTokenInvalid:       KindInvalidCredential,
	CodeRefreshReused:            KindConflict,
	CodeEmailAlreadyExists:       KindConflict,
	CodeDisplayNameAlreadyExists: KindConflict,
	CodeOtpExpired:               KindExpired,
	CodeRefreshExpired:           KindExpired,
	CodeOtpChallengeRace:         KindIntegrityViolation,
}

// KindOf reports the kind of err. Errors without a known code are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if kind, ok := codeKinds[ErrorCode(err)]; ok {
		return kind
	}
	return KindInternal
}

// ErrorCode returns the oops code carried by err, or "" when there is none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// RetryAfter returns the cooldown hint attached to an OTP_COOLDOWN error.
func RetryAfter(err error) (time.Duration, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0, false
	}
	switch v := oopsErr.Context()["retry_after_seconds"].(type) {
	case int64:
		return time.Duration(v) * time.Second, true
	case int:
		return time.Duration(v) * time.Second, true
	default:
		return 0, false
	}
}

// retryAfterSeconds rounds a positive wait up to whole seconds, never below one.
func retryAfterSeconds(wait time.Duration) int64 {
	secs := int64(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
