// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

var validate = validator.New()

// DefaultAllowedDomain is the only domain accepted for signup and login.
const DefaultAllowedDomain = "kyonggi.ac.kr"

// NormalizeEmail trims surrounding whitespace and lower-cases email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailPolicy is the static domain predicate applied to every address.
type EmailPolicy struct {
	suffix string
}

// NewEmailPolicy returns a policy accepting only addresses in domain.
func NewEmailPolicy(domain string) EmailPolicy {
	domain = strings.TrimPrefix(NormalizeEmail(domain), "@")
	return EmailPolicy{suffix: "@" + domain}
}

// Check normalizes email and validates its shape and domain.
// Returns the normalized address.
func (p EmailPolicy) Check(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if err := validate.Var(normalized, "required,email,max=254"); err != nil {
		return "", oops.Code(CodeEmailInvalid).Wrapf(err, "malformed email address")
	}
	if !strings.HasSuffix(normalized, p.suffix) || len(normalized) == len(p.suffix) {
		return "", oops.Code(CodeEmailDomainNotAllowed).
			With("domain", strings.TrimPrefix(p.suffix, "@")).
			Errorf("email domain is not allowed")
	}
	return normalized, nil
}

// validateOtpCode rejects anything that is not exactly six ASCII digits.
func validateOtpCode(code string) error {
	if err := validate.Var(code, "required,len=6,number"); err != nil {
		return oops.Code(CodeOtpCodeMalformed).Wrapf(err, "verification code must be 6 digits")
	}
	return nil
}
