// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/kyonggi-board/authcore/internal/auth"
	"github.com/kyonggi-board/authcore/internal/auth/authtest"
)

const testEmail = "u@kyonggi.ac.kr"

var (
	// 2026-03-02 12:00 in Seoul.
	testStart  = time.Date(2026, time.March, 2, 3, 0, 0, 0, time.UTC)
	testSecret = []byte("0123456789abcdef0123456789abcdef")
)

type fixture struct {
	store    *authtest.MemoryStore
	clock    *authtest.ManualClock
	mailer   *authtest.RecordingMailer
	hasher   auth.Hasher
	policy   auth.OtpPolicy
	otp      *auth.OtpPolicyEngine
	sessions *auth.SessionRotationEngine
	access   *auth.AccessTokenEngine
	svc      *auth.Service
	logs     *bytes.Buffer
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	policy       auth.OtpPolicy
	hasher       auth.Hasher
	sessionOpts  []auth.SessionEngineOption
	codeSequence []string
	tracer       trace.Tracer
}

func withPolicy(mutate func(*auth.OtpPolicy)) fixtureOption {
	return func(c *fixtureConfig) { mutate(&c.policy) }
}

func withHasher(h auth.Hasher) fixtureOption {
	return func(c *fixtureConfig) { c.hasher = h }
}

func withSessionOptions(opts ...auth.SessionEngineOption) fixtureOption {
	return func(c *fixtureConfig) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

func withTracer(tr trace.Tracer) fixtureOption {
	return func(c *fixtureConfig) { c.tracer = tr }
}

// withCodes makes the engine issue the given codes in order.
func withCodes(codes ...string) fixtureOption {
	return func(c *fixtureConfig) { c.codeSequence = codes }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	cfg := fixtureConfig{policy: auth.DefaultOtpPolicy(), hasher: authtest.PlainHasher{}}
	cfg.policy.Location = seoul
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &fixture{
		store:  authtest.NewMemoryStore(),
		clock:  authtest.NewManualClock(testStart),
		mailer: &authtest.RecordingMailer{},
		hasher: cfg.hasher,
		policy: cfg.policy,
		logs:   &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var otpOpts []auth.OtpEngineOption
	if len(cfg.codeSequence) > 0 {
		codes := cfg.codeSequence
		next := 0
		otpOpts = append(otpOpts, auth.WithOtpCodeGenerator(func() (string, error) {
			code := codes[next%len(codes)]
			next++
			return code, nil
		}))
	}

	emails := auth.NewEmailPolicy(auth.DefaultAllowedDomain)
	f.otp, err = auth.NewOtpPolicyEngine(f.store, f.store.Challenges(), f.hasher, f.clock, cfg.policy, emails, otpOpts...)
	require.NoError(t, err)

	sessionOpts := append([]auth.SessionEngineOption{auth.WithSessionLogger(logger)}, cfg.sessionOpts...)
	f.sessions, err = auth.NewSessionRotationEngine(f.store, f.store.Sessions(), f.store.Identities(), f.clock,
		auth.DefaultSessionTTLs(), sessionOpts...)
	require.NoError(t, err)

	signer, err := auth.NewHS256Signer(testSecret, "kyonggi-board", f.clock)
	require.NoError(t, err)
	f.access, err = auth.NewAccessTokenEngine(signer, auth.DefaultAccessTokenTTL, f.clock)
	require.NoError(t, err)

	f.svc, err = auth.NewService(auth.ServiceDeps{
		Otp:        f.otp,
		Sessions:   f.sessions,
		Access:     f.access,
		Identities: f.store.Identities(),
		Hasher:     f.hasher,
		Mail:       f.mailer,
		Emails:     emails,
		Clock:      f.clock,
		Logger:     logger,
		Tracer:     cfg.tracer,
	})
	require.NoError(t, err)

	return f
}

// logEntries decodes every JSON log line written so far.
func (f *fixture) logEntries(t *testing.T) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(f.logs.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

// verifiedEmail requests and verifies a code for email, returning the code.
func (f *fixture) verifiedEmail(t *testing.T, email string) string {
	t.Helper()
	ctx := t.Context()
	_, err := f.svc.RequestOtp(ctx, email)
	require.NoError(t, err)
	code, ok := f.mailer.LastCode(auth.NormalizeEmail(email))
	require.True(t, ok)
	require.NoError(t, f.svc.VerifyOtp(ctx, email, code))
	return code
}

// registered creates an identity through the public flow.
func (f *fixture) registered(t *testing.T, email, password, displayName string) *auth.Identity {
	t.Helper()
	code := f.verifiedEmail(t, email)
	identity, err := f.svc.RegisterWithOtp(t.Context(), auth.RegisterRequest{
		Email:           email,
		Code:            code,
		Password:        password,
		PasswordConfirm: password,
		DisplayName:     displayName,
	})
	require.NoError(t, err)
	return identity
}
