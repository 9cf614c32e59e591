// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/kyonggi-board/authcore/internal/auth"
)

var _ auth.MailSender = (*SMTPSender)(nil)

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// StartTLS upgrades the connection when the server offers it.
	// Required when Username is set.
	StartTLS bool
	Timeout  time.Duration
	// CodeValidity is quoted in the mail body when positive.
	CodeValidity time.Duration
}

// SMTPSender sends OTP mails through an SMTP relay.
type SMTPSender struct {
	cfg       SMTPConfig
	tlsConfig *tls.Config
	now       func() time.Time
}

// NewSMTPSender validates cfg and creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	switch {
	case cfg.Host == "":
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("field", "host").Errorf("smtp host is required")
	case cfg.Port <= 0 || cfg.Port > 65535:
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("field", "port").Errorf("smtp port is out of range")
	case cfg.From == "":
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("field", "from").Errorf("sender address is required")
	case cfg.Username != "" && !cfg.StartTLS:
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("field", "starttls").
			Errorf("authentication requires starttls")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPSender{
		cfg:       cfg,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		now:       time.Now,
	}, nil
}

// SendOtp delivers code to email.
func (s *SMTPSender) SendOtp(ctx context.Context, email, code string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return oops.Code("SMTP_DIAL_FAILED").With("addr", addr).Wrap(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return oops.Code("SMTP_HANDSHAKE_FAILED").With("addr", addr).Wrap(err)
	}
	defer func() { _ = client.Close() }()

	if err := s.deliver(client, email, code); err != nil {
		return err
	}
	if err := client.Quit(); err != nil {
		return oops.Code("SMTP_QUIT_FAILED").Wrap(err)
	}
	return nil
}

func (s *SMTPSender) deliver(client *smtp.Client, email, code string) error {
	if s.cfg.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(s.tlsConfig); err != nil {
				return oops.Code("SMTP_STARTTLS_FAILED").Wrap(err)
			}
		}
	}
	if s.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return oops.Code("SMTP_AUTH_FAILED").Wrap(err)
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("step", "mail").Wrap(err)
	}
	if err := client.Rcpt(email); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("step", "rcpt").With("email", email).Wrap(err)
	}

	w, err := client.Data()
	if err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("step", "data").Wrap(err)
	}
	if _, err := w.Write(buildOtpMessage(s.cfg.From, email, code, s.cfg.CodeValidity, s.now())); err != nil {
		_ = w.Close()
		return oops.Code("SMTP_SEND_FAILED").With("step", "write").Wrap(err)
	}
	if err := w.Close(); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("step", "data").Wrap(err)
	}
	return nil
}

// IsPermanent reports whether err is an SMTP 5xx reply, which retrying
// will not fix.
func IsPermanent(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500 && tpErr.Code < 600
}
