// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package app composes the authentication service from configuration and
// live connections.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/kyonggi-board/authcore/internal/auth"
	"github.com/kyonggi-board/authcore/internal/auth/postgres"
	"github.com/kyonggi-board/authcore/internal/config"
	"github.com/kyonggi-board/authcore/internal/mail"
)

// Database is the subset of *pgxpool.Pool the service needs.
type Database interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Resources are the live connections App is built on. Observer, Registry,
// Logger and Hasher are optional.
type Resources struct {
	DB       Database
	Observer auth.ReuseObserver
	Registry prometheus.Registerer
	Logger   *slog.Logger
	// Hasher overrides the argon2id default, mostly to keep tests fast.
	Hasher auth.Hasher
	Clock  auth.Clock
	// Mail replaces the configured mail transport. Retries and the async
	// dispatcher still wrap it.
	Mail auth.MailSender
}

// App is the composed service plus the background pieces that need closing.
type App struct {
	Service    *auth.Service
	Sessions   *auth.SessionRotationEngine
	Identities *postgres.IdentityRepository
	dispatcher *mail.Dispatcher
}

// New wires every engine from cfg. cfg must already be validated.
func New(cfg *config.Config, res Resources) (*App, error) {
	if res.DB == nil {
		return nil, oops.Code("APP_INVALID").Errorf("database is required")
	}
	logger := res.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := res.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	hasher := res.Hasher
	if hasher == nil {
		hasher = auth.NewArgon2idHasher()
	}
	clock := res.Clock
	if clock == nil {
		clock = auth.SystemClock{}
	}

	policy, err := cfg.OtpPolicy()
	if err != nil {
		return nil, err
	}

	tx := postgres.NewTransactor(res.DB)
	identities := postgres.NewIdentityRepository(res.DB)
	challenges := postgres.NewOtpChallengeRepository(res.DB)
	sessions := postgres.NewSessionRepository(res.DB)
	metrics := auth.NewMetrics(reg)
	emails := auth.NewEmailPolicy(cfg.Otp.AllowedDomain)

	otp, err := auth.NewOtpPolicyEngine(tx, challenges, hasher, clock, policy, emails,
		auth.WithOtpMetrics(metrics))
	if err != nil {
		return nil, oops.Code("APP_INVALID").With("component", "otp engine").Wrap(err)
	}

	sessionEngine, err := auth.NewSessionRotationEngine(tx, sessions, identities, clock, cfg.SessionTTLs(),
		auth.WithReuseObserver(res.Observer),
		auth.WithSessionMetrics(metrics),
		auth.WithSessionLogger(logger),
	)
	if err != nil {
		return nil, oops.Code("APP_INVALID").With("component", "session engine").Wrap(err)
	}

	signer, err := auth.NewHS256Signer([]byte(cfg.JWT.Secret), cfg.JWT.Issuer, clock)
	if err != nil {
		return nil, err
	}
	access, err := auth.NewAccessTokenEngine(signer, cfg.JWT.AccessTTL, clock)
	if err != nil {
		return nil, err
	}

	dispatcher, err := newMailPipeline(cfg, res.Mail, reg, logger)
	if err != nil {
		return nil, err
	}

	service, err := auth.NewService(auth.ServiceDeps{
		Otp:        otp,
		Sessions:   sessionEngine,
		Access:     access,
		Identities: identities,
		Hasher:     hasher,
		Mail:       dispatcher,
		Emails:     emails,
		Clock:      clock,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		_ = dispatcher.Close(context.Background())
		return nil, oops.Code("APP_INVALID").With("component", "service").Wrap(err)
	}

	return &App{
		Service:    service,
		Sessions:   sessionEngine,
		Identities: identities,
		dispatcher: dispatcher,
	}, nil
}

// newMailPipeline builds dispatcher -> retrying sender -> transport.
func newMailPipeline(cfg *config.Config, transport auth.MailSender, reg prometheus.Registerer, logger *slog.Logger) (*mail.Dispatcher, error) {
	switch {
	case transport != nil:
	case cfg.Mail.Mode == config.MailModeSMTP:
		smtpSender, err := mail.NewSMTPSender(cfg.SMTP())
		if err != nil {
			return nil, err
		}
		transport = smtpSender
	case cfg.Mail.Mode == config.MailModeLog:
		transport = mail.NewLogSender(logger, cfg.Mail.RevealCode)
	default:
		return nil, oops.Code("CONFIG_INVALID").With("field", "mail.mode").Errorf("unknown mail mode %q", cfg.Mail.Mode)
	}

	retrying, err := mail.NewRetryingSender(transport, cfg.RetryPolicy(), logger)
	if err != nil {
		return nil, err
	}
	return mail.NewDispatcher(retrying, cfg.Dispatcher(), mail.NewDispatcherMetrics(reg), logger)
}

// PendingMail returns the number of OTP mails waiting for delivery.
func (a *App) PendingMail() int {
	return a.dispatcher.Pending()
}

// Close drains the mail queue.
func (a *App) Close(ctx context.Context) error {
	return a.dispatcher.Close(ctx)
}
