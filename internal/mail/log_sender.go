// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/kyonggi-board/authcore/internal/auth"
)

var _ auth.MailSender = (*LogSender)(nil)

// LogSender writes OTP mails to the log instead of sending them. It is meant
// for local development.
type LogSender struct {
	logger *slog.Logger
	reveal bool
}

// NewLogSender creates a LogSender. The code itself is only logged, under
// dev_code, when reveal is true.
func NewLogSender(logger *slog.Logger, reveal bool) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, reveal: reveal}
}

// SendOtp logs the delivery.
func (s *LogSender) SendOtp(ctx context.Context, email, code string) error {
	attrs := []any{"email", email, "subject", OtpSubject}
	if s.reveal {
		attrs = append(attrs, "dev_code", code)
	}
	s.logger.InfoContext(ctx, "otp mail (log sender)", attrs...)
	return nil
}
