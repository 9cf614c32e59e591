// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kyonggi-board/authcore/internal/auth"
)

type recordedSpan struct {
	noop.Span
	mu     sync.Mutex
	name   string
	attrs  map[attribute.Key]attribute.Value
	status codes.Code
	ended  bool
}

func (s *recordedSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}

func (s *recordedSpan) SetStatus(code codes.Code, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

func (s *recordedSpan) End(...trace.SpanEndOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

type recordingTracer struct {
	embedded.Tracer
	mu    sync.Mutex
	spans []*recordedSpan
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	span := &recordedSpan{name: name, attrs: map[attribute.Key]attribute.Value{}}
	cfg := trace.NewSpanStartConfig(opts...)
	span.SetAttributes(cfg.Attributes()...)

	r.mu.Lock()
	r.spans = append(r.spans, span)
	r.mu.Unlock()
	return trace.ContextWithSpan(ctx, span), span
}

// last returns the most recent span called name.
func (r *recordingTracer) last(t *testing.T, name string) *recordedSpan {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.spans) - 1; i >= 0; i-- {
		if r.spans[i].name == name {
			return r.spans[i]
		}
	}
	require.Failf(t, "span not found", "no span named %q", name)
	return nil
}

func TestService_Spans(t *testing.T) {
	t.Run("signup flow", func(t *testing.T) {
		tracer := &recordingTracer{}
		f := newFixture(t, withTracer(tracer))
		f.registered(t, testEmail, "password1", "kyonggi_user")

		for _, name := range []string{"auth.request_otp", "auth.verify_otp", "auth.register"} {
			span := tracer.last(t, name)
			assert.True(t, span.ended, "%s not ended", name)
			assert.Equal(t, codes.Unset, span.status, "%s marked failed", name)
		}
	})

	t.Run("successful login", func(t *testing.T) {
		tracer := &recordingTracer{}
		f := newFixture(t, withTracer(tracer))
		identity := f.registered(t, testEmail, "password1", "kyonggi_user")

		_, err := f.svc.Login(t.Context(), testEmail, "password1", true, auth.ClientInfo{})
		require.NoError(t, err)

		span := tracer.last(t, "auth.login")
		assert.True(t, span.ended)
		assert.True(t, span.attrs["auth.remember_me"].AsBool())
		assert.Equal(t, identity.ID.String(), span.attrs["auth.identity_id"].AsString())
	})

	t.Run("failed login carries the code", func(t *testing.T) {
		tracer := &recordingTracer{}
		f := newFixture(t, withTracer(tracer))
		f.registered(t, testEmail, "password1", "kyonggi_user")

		_, err := f.svc.Login(t.Context(), testEmail, "password2", false, auth.ClientInfo{})
		require.Error(t, err)

		span := tracer.last(t, "auth.login")
		assert.Equal(t, codes.Error, span.status)
		assert.Equal(t, auth.CodeInvalidCredentials, span.attrs["auth.error_code"].AsString())
		assert.Equal(t, string(auth.KindInvalidCredential), span.attrs["auth.error_kind"].AsString())
		assert.NotContains(t, span.attrs, attribute.Key("auth.identity_id"))
	})

	t.Run("reused refresh token is not recorded", func(t *testing.T) {
		tracer := &recordingTracer{}
		f := newFixture(t, withTracer(tracer))
		f.registered(t, testEmail, "password1", "kyonggi_user")
		tokens, err := f.svc.Login(t.Context(), testEmail, "password1", false, auth.ClientInfo{})
		require.NoError(t, err)
		_, err = f.svc.Refresh(t.Context(), tokens.RefreshToken, auth.ClientInfo{})
		require.NoError(t, err)

		_, err = f.svc.Refresh(t.Context(), tokens.RefreshToken, auth.ClientInfo{})
		require.Error(t, err)

		span := tracer.last(t, "auth.refresh")
		assert.Equal(t, auth.CodeRefreshReused, span.attrs["auth.error_code"].AsString())
		for key, value := range span.attrs {
			assert.False(t, strings.Contains(value.Emit(), tokens.RefreshToken), "attribute %s carries the token", key)
		}
	})

	t.Run("logout always ends its span", func(t *testing.T) {
		tracer := &recordingTracer{}
		f := newFixture(t, withTracer(tracer))

		f.svc.Logout(t.Context(), "never-issued")
		assert.True(t, tracer.last(t, "auth.logout").ended)
	})
}
