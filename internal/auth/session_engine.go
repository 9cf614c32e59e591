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

	"github.com/kyonggi-board/authcore/pkg/errutil"
)

// SessionTTLs selects the lifetime of a refresh session.
type SessionTTLs struct {
	Session    time.Duration
	RememberMe time.Duration
}

// DefaultSessionTTLs returns 24h sessions and 7d remember-me sessions.
func DefaultSessionTTLs() SessionTTLs {
	return SessionTTLs{Session: DefaultSessionTTL, RememberMe: DefaultRememberMeTTL}
}

func (t SessionTTLs) forRememberMe(rememberMe bool) time.Duration {
	if rememberMe {
		return t.RememberMe
	}
	return t.Session
}

// IssuedSession is a freshly issued refresh token. RawToken is never stored.
type IssuedSession struct {
	RawToken  string
	ExpiresAt time.Time
	Session   *Session
}

// Rotation is the successor produced by a successful Rotate.
type Rotation struct {
	RawToken   string
	ExpiresAt  time.Time
	RememberMe bool
	IdentityID ulid.ULID
}

// SessionRotationEngine issues, rotates and revokes refresh sessions.
type SessionRotationEngine struct {
	tx         Transactor
	sessions   SessionRepository
	identities IdentityRepository
	clock      Clock
	ttls       SessionTTLs
	observer   ReuseObserver
	metrics    *Metrics
	logger     *slog.Logger
}

// SessionEngineOption customizes a SessionRotationEngine.
type SessionEngineOption func(*SessionRotationEngine)

// WithReuseObserver reports reuse detections to o.
func WithReuseObserver(o ReuseObserver) SessionEngineOption {
	return func(e *SessionRotationEngine) { e.observer = o }
}

// WithSessionMetrics records rotation outcomes.
func WithSessionMetrics(m *Metrics) SessionEngineOption {
	return func(e *SessionRotationEngine) { e.metrics = m }
}

// WithSessionLogger sets the logger used for security events.
func WithSessionLogger(l *slog.Logger) SessionEngineOption {
	return func(e *SessionRotationEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewSessionRotationEngine creates a SessionRotationEngine.
func NewSessionRotationEngine(
	tx Transactor,
	sessions SessionRepository,
	identities IdentityRepository,
	clock Clock,
	ttls SessionTTLs,
	opts ...SessionEngineOption,
) (*SessionRotationEngine, error) {
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session repository is required")
	}
	if identities == nil {
		return nil, oops.Errorf("identity repository is required")
	}
	if clock == nil {
		return nil, oops.Errorf("clock is required")
	}
	if ttls.Session <= 0 || ttls.RememberMe <= 0 {
		return nil, oops.Code("SESSION_TTL_INVALID").Errorf("session ttls must be positive")
	}

	e := &SessionRotationEngine{
		tx:         tx,
		sessions:   sessions,
		identities: identities,
		clock:      clock,
		ttls:       ttls,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Issue persists a new live session for identityID and returns its raw token.
func (e *SessionRotationEngine) Issue(ctx context.Context, identityID ulid.ULID, rememberMe bool, client ClientInfo) (*IssuedSession, error) {
	return e.issue(ctx, identityID, rememberMe, client, e.clock.Now())
}

func (e *SessionRotationEngine) issue(ctx context.Context, identityID ulid.ULID, rememberMe bool, client ClientInfo, now time.Time) (*IssuedSession, error) {
	token, hash, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	session, err := NewSession(identityID, hash, rememberMe, client, now, now.Add(e.ttls.forRememberMe(rememberMe)))
	if err != nil {
		return nil, oops.Code("SESSION_ISSUE_FAILED").With("identity_id", identityID.String()).Wrap(err)
	}
	if err := e.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "persist session").
			With("identity_id", identityID.String()).
			Wrap(err)
	}

	return &IssuedSession{RawToken: token, ExpiresAt: session.ExpiresAt, Session: session}, nil
}

// Rotate exchanges raw for a successor token. The presented session is
// revoked as ROTATED and the successor inserted in the same transaction.
//
// Failures, in order: REFRESH_INVALID, REFRESH_REUSED, REFRESH_REVOKED,
// REFRESH_EXPIRED, IDENTITY_NOT_FOUND.
func (e *SessionRotationEngine) Rotate(ctx context.Context, raw string, client ClientInfo) (*Rotation, error) {
	rotation, reused, err := e.rotate(ctx, raw, client)
	if reused != nil {
		e.reportReuse(ctx, reused)
	}
	e.metrics.rotation(err)
	return rotation, err
}

func (e *SessionRotationEngine) rotate(ctx context.Context, raw string, client ClientInfo) (*Rotation, *Session, error) {
	if raw == "" {
		return nil, nil, invalidRefresh()
	}
	hash := HashRefreshToken(raw)

	var rotation *Rotation
	var reused *Session
	err := e.tx.InTransaction(ctx, func(ctx context.Context) error {
		session, err := e.sessions.GetByTokenHashForUpdate(ctx, hash)
		if errors.Is(err, ErrNotFound) {
			return invalidRefresh()
		}
		if err != nil {
			return oops.Code("SESSION_ROTATE_FAILED").With("operation", "lock session").Wrap(err)
		}

		now := e.clock.Now()
		if session.IsRevoked() {
			if session.RevokeReason == RevokeRotated {
				reused = session
				return oops.Code(CodeRefreshReused).
					With("session_id", session.ID.String()).
					Errorf("refresh token was already used")
			}
			return oops.Code(CodeRefreshRevoked).
				With("session_id", session.ID.String()).
				Errorf("refresh token has been revoked")
		}
		if session.IsExpiredAt(now) {
			return oops.Code(CodeRefreshExpired).
				With("session_id", session.ID.String()).
				Errorf("refresh token has expired")
		}

		if _, err := e.identities.GetByID(ctx, session.IdentityID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code(CodeIdentityNotFound).
					With("identity_id", session.IdentityID.String()).
					Errorf("identity no longer exists")
			}
			return oops.Code("SESSION_ROTATE_FAILED").With("operation", "load identity").Wrap(err)
		}

		session.Touch(now)
		session.Revoke(now, RevokeRotated)
		if err := e.sessions.Update(ctx, session); err != nil {
			return oops.Code("SESSION_ROTATE_FAILED").
				With("operation", "revoke rotated session").
				With("session_id", session.ID.String()).
				Wrap(err)
		}

		successor, err := e.issue(ctx, session.IdentityID, session.RememberMe, client, now)
		if err != nil {
			return err
		}
		rotation = &Rotation{
			RawToken:   successor.RawToken,
			ExpiresAt:  successor.ExpiresAt,
			RememberMe: session.RememberMe,
			IdentityID: session.IdentityID,
		}
		return nil
	})
	if err != nil {
		return nil, reused, err
	}
	return rotation, nil, nil
}

// RevokeIfPresent revokes the live session behind raw with reason. Empty,
// unknown and already revoked tokens are not errors.
func (e *SessionRotationEngine) RevokeIfPresent(ctx context.Context, raw string, reason RevokeReason) error {
	if raw == "" {
		return nil
	}
	hash := HashRefreshToken(raw)

	return e.tx.InTransaction(ctx, func(ctx context.Context) error {
		session, err := e.sessions.GetByTokenHashForUpdate(ctx, hash)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return oops.Code("SESSION_REVOKE_FAILED").With("operation", "lock session").Wrap(err)
		}
		if session.IsRevoked() {
			return nil
		}

		session.Revoke(e.clock.Now(), reason)
		if err := e.sessions.Update(ctx, session); err != nil {
			return oops.Code("SESSION_REVOKE_FAILED").
				With("operation", "revoke session").
				With("session_id", session.ID.String()).
				Wrap(err)
		}
		return nil
	})
}

// Sessions lists every session of identityID, newest first.
func (e *SessionRotationEngine) Sessions(ctx context.Context, identityID ulid.ULID) ([]*Session, error) {
	sessions, err := e.sessions.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").With("identity_id", identityID.String()).Wrap(err)
	}
	return sessions, nil
}

func (e *SessionRotationEngine) reportReuse(ctx context.Context, session *Session) {
	e.metrics.reuse()
	e.logger.WarnContext(ctx, "refresh token reuse detected",
		"security_event", "refresh_token_reuse",
		"identity_id", session.IdentityID.String(),
		"session_id", session.ID.String(),
	)
	if e.observer == nil {
		return
	}
	if err := e.observer.ObserveReuse(ctx, session.IdentityID, session.ID); err != nil {
		errutil.LogWarn(ctx, e.logger, "failed to record refresh token reuse", err,
			"identity_id", session.IdentityID.String())
	}
}

func invalidRefresh() error {
	return oops.Code(CodeRefreshInvalid).Errorf("refresh token is not valid")
}
