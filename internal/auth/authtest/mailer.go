// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package authtest

import (
	"context"
	"sync"
)

// SentOtp is one message captured by RecordingMailer.
type SentOtp struct {
	Email string
	Code  string
}

// RecordingMailer is an auth.MailSender that keeps every message in memory.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []SentOtp
	err  error
}

// SendOtp records the message, or returns the configured failure.
func (m *RecordingMailer) SendOtp(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, SentOtp{Email: email, Code: code})
	return nil
}

// Fail makes every later SendOtp return err. A nil err restores delivery.
func (m *RecordingMailer) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Sent returns a copy of every recorded message.
func (m *RecordingMailer) Sent() []SentOtp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentOtp(nil), m.sent...)
}

// LastCode returns the most recent code sent to email.
func (m *RecordingMailer) LastCode(email string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Email == email {
			return m.sent[i].Code, true
		}
	}
	return "", false
}
