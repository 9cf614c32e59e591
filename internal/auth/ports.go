// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Transactor runs fn inside a database transaction. Repository calls made
// with the context passed to fn join that transaction. A nil return commits;
// any error rolls back and is returned unchanged.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MailSender delivers verification codes. It is never called while a
// transaction is open.
type MailSender interface {
	SendOtp(ctx context.Context, email, code string) error
}

// OtpDelivery is the deferred mail effect of a committed OTP request.
type OtpDelivery struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

// ReuseObserver is notified after a rotated refresh token was presented again.
type ReuseObserver interface {
	ObserveReuse(ctx context.Context, identityID, sessionID ulid.ULID) error
}
