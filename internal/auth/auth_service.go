// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kyonggi-board/authcore/pkg/errutil"
)

// ServiceDeps wires a Service. Metrics, Logger and Tracer are optional.
type ServiceDeps struct {
	Otp        *OtpPolicyEngine
	Sessions   *SessionRotationEngine
	Access     *AccessTokenEngine
	Identities IdentityRepository
	Hasher     Hasher
	Mail       MailSender
	Emails     EmailPolicy
	Clock      Clock
	Metrics    *Metrics
	Logger     *slog.Logger
	// Tracer defaults to the global otel provider.
	Tracer trace.Tracer
}

// Service is the authentication facade: the only component that composes
// more than one engine.
type Service struct {
	otp        *OtpPolicyEngine
	sessions   *SessionRotationEngine
	access     *AccessTokenEngine
	identities IdentityRepository
	hasher     Hasher
	mail       MailSender
	emails     EmailPolicy
	clock      Clock
	metrics    *Metrics
	logger     *slog.Logger
	tracer     trace.Tracer

	// dummyDigest is verified against when the email is unknown so that
	// unknown and known accounts take the same time to reject.
	dummyDigest string
}

// fallbackDummyDigest is used if the configured hasher cannot produce one.
// It is not a credential and never matches any password.
//
//nolint:gosec // G101: intentionally fake digest for timing equalization.
const fallbackDummyDigest = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// rehasher is implemented by hashers that can tell when a digest uses
// outdated parameters.
type rehasher interface {
	NeedsRehash(digest string) bool
}

// NewService creates a Service.
func NewService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Otp == nil:
		return nil, oops.Errorf("otp engine is required")
	case deps.Sessions == nil:
		return nil, oops.Errorf("session engine is required")
	case deps.Access == nil:
		return nil, oops.Errorf("access token engine is required")
	case deps.Identities == nil:
		return nil, oops.Errorf("identity repository is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("hasher is required")
	case deps.Mail == nil:
		return nil, oops.Errorf("mail sender is required")
	case deps.Clock == nil:
		return nil, oops.Errorf("clock is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = defaultTracer()
	}

	dummy, err := deps.Hasher.Hash("authcore-timing-equalizer")
	if err != nil {
		dummy = fallbackDummyDigest
	}

	return &Service{
		otp:         deps.Otp,
		sessions:    deps.Sessions,
		access:      deps.Access,
		identities:  deps.Identities,
		hasher:      deps.Hasher,
		mail:        deps.Mail,
		emails:      deps.Emails,
		clock:       deps.Clock,
		metrics:     deps.Metrics,
		logger:      logger,
		tracer:      tracer,
		dummyDigest: dummy,
	}, nil
}

// OtpReceipt acknowledges a committed OTP request.
type OtpReceipt struct {
	Email     string
	ExpiresAt time.Time
}

// Tokens is the credential pair returned by Login and Refresh.
type Tokens struct {
	IdentityID       ulid.ULID
	Role             Role
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	RememberMe       bool
}

// RequestOtp issues a signup code for email and mails it after commit.
// Mail failures are logged and counted, never returned.
func (s *Service) RequestOtp(ctx context.Context, email string) (_ *OtpReceipt, err error) {
	ctx, span := s.startSpan(ctx, "auth.request_otp")
	defer func() { endSpan(span, err) }()

	delivery, err := s.otp.Request(ctx, email)
	if err != nil {
		return nil, err
	}

	// The request may be cancelled once the state is committed; the mail
	// must still go out.
	if err := s.mail.SendOtp(context.WithoutCancel(ctx), delivery.Email, delivery.Code); err != nil {
		s.metrics.mailFailure()
		errutil.LogError(ctx, s.logger, "failed to dispatch otp mail", err, "email", delivery.Email)
	}

	return &OtpReceipt{Email: delivery.Email, ExpiresAt: delivery.ExpiresAt}, nil
}

// VerifyOtp checks a signup code.
func (s *Service) VerifyOtp(ctx context.Context, email, code string) error {
	ctx, span := s.startSpan(ctx, "auth.verify_otp")
	err := s.otp.Verify(ctx, email, code)
	endSpan(span, err)
	return err
}

// Login authenticates email and password and issues a token pair.
// Unknown email and wrong password both fail with INVALID_CREDENTIALS.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool, client ClientInfo) (*Tokens, error) {
	ctx, span := s.startSpan(ctx, "auth.login", attribute.Bool("auth.remember_me", rememberMe))
	tokens, err := s.login(ctx, email, password, rememberMe, client)
	s.metrics.login(err)
	if err == nil {
		span.SetAttributes(attribute.String("auth.identity_id", tokens.IdentityID.String()))
	}
	endSpan(span, err)
	return tokens, err
}

func (s *Service) login(ctx context.Context, email, password string, rememberMe bool, client ClientInfo) (*Tokens, error) {
	normalized, err := s.emails.Check(email)
	if err != nil {
		return nil, err
	}

	identity, lookupErr := s.identities.GetByEmail(ctx, normalized)

	var targetDigest string
	var exists bool
	switch {
	case lookupErr == nil:
		targetDigest = identity.CredentialDigest
		exists = true
	case errors.Is(lookupErr, ErrNotFound):
		targetDigest = s.dummyDigest
	default:
		return nil, oops.Code("LOGIN_FAILED").
			With("operation", "get identity by email").
			Wrap(lookupErr)
	}

	// Always verify so both paths cost the same.
	valid, verifyErr := s.hasher.Verify(password, targetDigest)
	if verifyErr != nil {
		if !exists {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("LOGIN_FAILED").
			With("operation", "verify password").
			With("identity_id", identity.ID.String()).
			Wrap(verifyErr)
	}
	if !exists || !valid {
		return nil, invalidCredentials()
	}

	if !identity.IsActive() {
		return nil, oops.Code(CodeAccountDisabled).
			With("identity_id", identity.ID.String()).
			Errorf("account is disabled")
	}

	s.upgradeDigest(ctx, identity, password)
	if err := s.identities.UpdateLastLogin(ctx, identity.ID, s.clock.Now()); err != nil {
		errutil.LogWarn(ctx, s.logger, "failed to record last login", err, "identity_id", identity.ID.String())
	}

	return s.issueTokens(ctx, identity, rememberMe, client)
}

func (s *Service) issueTokens(ctx context.Context, identity *Identity, rememberMe bool, client ClientInfo) (*Tokens, error) {
	access, err := s.access.Issue(identity.ID, identity.Role)
	if err != nil {
		return nil, err
	}
	issued, err := s.sessions.Issue(ctx, identity.ID, rememberMe, client)
	if err != nil {
		return nil, err
	}

	return &Tokens{
		IdentityID:       identity.ID,
		Role:             identity.Role,
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     issued.RawToken,
		RefreshExpiresAt: issued.ExpiresAt,
		RememberMe:       rememberMe,
	}, nil
}

// upgradeDigest re-hashes the password when the stored digest uses outdated
// parameters. Failures leave the old digest in place.
func (s *Service) upgradeDigest(ctx context.Context, identity *Identity, password string) {
	rh, ok := s.hasher.(rehasher)
	if !ok || !rh.NeedsRehash(identity.CredentialDigest) {
		return
	}
	digest, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogWarn(ctx, s.logger, "failed to rehash credential", err, "identity_id", identity.ID.String())
		return
	}
	if err := s.identities.UpdateCredential(ctx, identity.ID, digest); err != nil {
		errutil.LogWarn(ctx, s.logger, "failed to store rehashed credential", err, "identity_id", identity.ID.String())
	}
}

// Refresh rotates raw and mints a new access token for its owner. If the
// owner was disabled since the session was issued, the fresh successor is
// revoked and ACCOUNT_DISABLED returned.
func (s *Service) Refresh(ctx context.Context, raw string, client ClientInfo) (_ *Tokens, err error) {
	ctx, span := s.startSpan(ctx, "auth.refresh")
	defer func() { endSpan(span, err) }()

	rotation, err := s.sessions.Rotate(ctx, raw, client)
	if err != nil {
		return nil, err
	}

	identity, err := s.identities.GetByID(ctx, rotation.IdentityID)
	if err != nil {
		s.discard(ctx, rotation)
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeIdentityNotFound).
				With("identity_id", rotation.IdentityID.String()).
				Errorf("identity no longer exists")
		}
		return nil, oops.Code("REFRESH_FAILED").With("operation", "load identity").Wrap(err)
	}
	if !identity.IsActive() {
		s.discard(ctx, rotation)
		return nil, oops.Code(CodeAccountDisabled).
			With("identity_id", identity.ID.String()).
			Errorf("account is disabled")
	}

	access, err := s.access.Issue(identity.ID, identity.Role)
	if err != nil {
		s.discard(ctx, rotation)
		return nil, err
	}

	return &Tokens{
		IdentityID:       identity.ID,
		Role:             identity.Role,
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     rotation.RawToken,
		RefreshExpiresAt: rotation.ExpiresAt,
		RememberMe:       rotation.RememberMe,
	}, nil
}

// discard revokes a successor that will not be handed to the client.
func (s *Service) discard(ctx context.Context, rotation *Rotation) {
	if err := s.sessions.RevokeIfPresent(ctx, rotation.RawToken, RevokeLogout); err != nil {
		errutil.LogError(ctx, s.logger, "failed to revoke discarded refresh token", err,
			"identity_id", rotation.IdentityID.String())
	}
}

// Logout revokes raw if it names a live session. It always succeeds.
func (s *Service) Logout(ctx context.Context, raw string) {
	ctx, span := s.startSpan(ctx, "auth.logout")
	defer span.End()

	if err := s.sessions.RevokeIfPresent(ctx, raw, RevokeLogout); err != nil {
		errutil.LogError(ctx, s.logger, "failed to revoke refresh token on logout", err)
	}
}

// Authenticate verifies an access token.
func (s *Service) Authenticate(_ context.Context, accessToken string) (*Principal, error) {
	return s.access.Verify(accessToken)
}

// Me loads the identity behind principal.
func (s *Service) Me(ctx context.Context, principal *Principal) (*Identity, error) {
	if principal == nil {
		return nil, oops.Code(CodeAccessTokenInvalid).Errorf("principal is required")
	}
	identity, err := s.identities.GetByID(ctx, principal.IdentityID)
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code(CodeIdentityNotFound).
			With("identity_id", principal.IdentityID.String()).
			Errorf("identity no longer exists")
	}
	if err != nil {
		return nil, oops.Code("ME_FAILED").With("operation", "get identity").Wrap(err)
	}
	return identity, nil
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}
