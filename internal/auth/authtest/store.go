// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package authtest provides in-memory fakes for exercising the auth engines
// without PostgreSQL.
package authtest

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/kyonggi-board/authcore/internal/auth"
)

type txKey struct{}

type challengeKey struct {
	email   string
	purpose auth.Purpose
}

type snapshot struct {
	identities map[ulid.ULID]auth.Identity
	challenges map[challengeKey]auth.OtpChallenge
	sessions   map[ulid.ULID]auth.Session
}

// MemoryStore is an in-memory Transactor and repository set.
//
// Transactions are fully serialized: one transaction holds the store for its
// whole duration and rolls back to a snapshot on error. Calls made outside a
// transaction run as single-statement transactions.
type MemoryStore struct {
	mu         sync.Mutex
	identities map[ulid.ULID]auth.Identity
	challenges map[challengeKey]auth.OtpChallenge
	sessions   map[ulid.ULID]auth.Session

	faults       map[string]error
	transactions int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[ulid.ULID]auth.Identity),
		challenges: make(map[challengeKey]auth.OtpChallenge),
		sessions:   make(map[ulid.ULID]auth.Session),
		faults:     make(map[string]error),
	}
}

var (
	_ auth.Transactor             = (*MemoryStore)(nil)
	_ auth.IdentityRepository     = (*MemoryIdentities)(nil)
	_ auth.OtpChallengeRepository = (*MemoryChallenges)(nil)
	_ auth.SessionRepository      = (*MemorySessions)(nil)
)

// InTransaction runs fn holding the store. Nested calls join the outer
// transaction.
func (s *MemoryStore) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions++

	saved := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

// Transactions returns how many top-level transactions have run.
func (s *MemoryStore) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions
}

// FailNext makes the next call to op return err. op is "<repo>.<Method>",
// for example "sessions.Update" or "challenges.Insert".
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// Identities returns the identity repository view of the store.
func (s *MemoryStore) Identities() *MemoryIdentities { return &MemoryIdentities{s: s} }

// Challenges returns the OTP challenge repository view of the store.
func (s *MemoryStore) Challenges() *MemoryChallenges { return &MemoryChallenges{s: s} }

// Sessions returns the session repository view of the store.
func (s *MemoryStore) Sessions() *MemorySessions { return &MemorySessions{s: s} }

// Challenge returns a copy of the stored challenge, if any.
func (s *MemoryStore) Challenge(email string, purpose auth.Purpose) (*auth.OtpChallenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeKey{email: email, purpose: purpose}]
	if !ok {
		return nil, false
	}
	return &c, true
}

// ChallengeCount returns the number of stored challenges.
func (s *MemoryStore) ChallengeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// PutChallenge stores c as is, replacing any existing row.
func (s *MemoryStore) PutChallenge(c *auth.OtpChallenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[challengeKey{email: c.Email, purpose: c.Purpose}] = *c
}

// PutIdentity stores identity as is, replacing any existing row.
func (s *MemoryStore) PutIdentity(identity *auth.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity.ID] = *identity
}

// SetStatus changes the status of a stored identity.
func (s *MemoryStore) SetStatus(id ulid.ULID, status auth.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity, ok := s.identities[id]; ok {
		identity.Status = status
		s.identities[id] = identity
	}
}

// DeleteIdentity removes a stored identity.
func (s *MemoryStore) DeleteIdentity(id ulid.ULID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, id)
}

// SessionsOf returns copies of every session of identityID, oldest first.
func (s *MemoryStore) SessionsOf(identityID ulid.ULID) []auth.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Session
	for _, sess := range s.sessions {
		if sess.IdentityID == identityID {
			out = append(out, sess)
		}
	}
	slices.SortFunc(out, func(a, b auth.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
	return out
}

// exec runs fn under the store lock, joining the caller's transaction if
// there is one.
func (s *MemoryStore) exec(ctx context.Context, op string, fn func() error) error {
	if !inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	return fn()
}

func (s *MemoryStore) snapshot() snapshot {
	return snapshot{
		identities: cloneMap(s.identities),
		challenges: cloneMap(s.challenges),
		sessions:   cloneMap(s.sessions),
	}
}

func (s *MemoryStore) restore(saved snapshot) {
	s.identities = saved.identities
	s.challenges = saved.challenges
	s.sessions = saved.sessions
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*MemoryStore)
	return ok
}

// MemoryIdentities implements auth.IdentityRepository on a MemoryStore.
type MemoryIdentities struct{ s *MemoryStore }

// Create stores identity, enforcing email and display name uniqueness.
func (r *MemoryIdentities) Create(ctx context.Context, identity *auth.Identity) error {
	return r.s.exec(ctx, "identities.Create", func() error {
		for _, existing := range r.s.identities {
			if existing.Email == identity.Email {
				return oops.Code(auth.CodeEmailAlreadyExists).With("email", identity.Email).Errorf("email is already registered")
			}
			if strings.EqualFold(existing.DisplayName, identity.DisplayName) {
				return oops.Code(auth.CodeDisplayNameAlreadyExists).
					With("display_name", identity.DisplayName).
					Errorf("display name is already taken")
			}
		}
		r.s.identities[identity.ID] = *identity
		return nil
	})
}

// GetByID returns a copy of the identity with id.
func (r *MemoryIdentities) GetByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	var out *auth.Identity
	err := r.s.exec(ctx, "identities.GetByID", func() error {
		identity, ok := r.s.identities[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = &identity
		return nil
	})
	return out, err
}

// GetByEmail returns a copy of the identity with email.
func (r *MemoryIdentities) GetByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	var out *auth.Identity
	err := r.s.exec(ctx, "identities.GetByEmail", func() error {
		for _, identity := range r.s.identities {
			if identity.Email == email {
				out = &identity
				return nil
			}
		}
		return auth.ErrNotFound
	})
	return out, err
}

// ExistsByEmail reports whether email is taken.
func (r *MemoryIdentities) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var found bool
	err := r.s.exec(ctx, "identities.ExistsByEmail", func() error {
		for _, identity := range r.s.identities {
			if identity.Email == email {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// ExistsByDisplayName reports whether displayName is taken, ignoring case.
func (r *MemoryIdentities) ExistsByDisplayName(ctx context.Context, displayName string) (bool, error) {
	var found bool
	err := r.s.exec(ctx, "identities.ExistsByDisplayName", func() error {
		for _, identity := range r.s.identities {
			if strings.EqualFold(identity.DisplayName, displayName) {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// UpdateLastLogin stamps LastLoginAt.
func (r *MemoryIdentities) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return r.s.exec(ctx, "identities.UpdateLastLogin", func() error {
		identity, ok := r.s.identities[id]
		if !ok {
			return auth.ErrNotFound
		}
		identity.LastLoginAt = &at
		identity.UpdatedAt = at
		r.s.identities[id] = identity
		return nil
	})
}

// UpdateCredential replaces the credential digest.
func (r *MemoryIdentities) UpdateCredential(ctx context.Context, id ulid.ULID, digest string) error {
	return r.s.exec(ctx, "identities.UpdateCredential", func() error {
		identity, ok := r.s.identities[id]
		if !ok {
			return auth.ErrNotFound
		}
		identity.CredentialDigest = digest
		r.s.identities[id] = identity
		return nil
	})
}

// MemoryChallenges implements auth.OtpChallengeRepository on a MemoryStore.
type MemoryChallenges struct{ s *MemoryStore }

// GetForUpdate returns a copy of the challenge. The store lock held by the
// transaction stands in for the row lock.
func (r *MemoryChallenges) GetForUpdate(ctx context.Context, email string, purpose auth.Purpose) (*auth.OtpChallenge, error) {
	var out *auth.OtpChallenge
	err := r.s.exec(ctx, "challenges.GetForUpdate", func() error {
		c, ok := r.s.challenges[challengeKey{email: email, purpose: purpose}]
		if !ok {
			return auth.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

// Insert stores a new challenge. Returns auth.ErrDuplicate when the key exists.
func (r *MemoryChallenges) Insert(ctx context.Context, challenge *auth.OtpChallenge) error {
	return r.s.exec(ctx, "challenges.Insert", func() error {
		key := challengeKey{email: challenge.Email, purpose: challenge.Purpose}
		if _, ok := r.s.challenges[key]; ok {
			return auth.ErrDuplicate
		}
		r.s.challenges[key] = *challenge
		return nil
	})
}

// Update replaces an existing challenge.
func (r *MemoryChallenges) Update(ctx context.Context, challenge *auth.OtpChallenge) error {
	return r.s.exec(ctx, "challenges.Update", func() error {
		key := challengeKey{email: challenge.Email, purpose: challenge.Purpose}
		if _, ok := r.s.challenges[key]; !ok {
			return auth.ErrNotFound
		}
		r.s.challenges[key] = *challenge
		return nil
	})
}

// Delete removes the challenge; deleting a missing row is not an error.
func (r *MemoryChallenges) Delete(ctx context.Context, email string, purpose auth.Purpose) error {
	return r.s.exec(ctx, "challenges.Delete", func() error {
		delete(r.s.challenges, challengeKey{email: email, purpose: purpose})
		return nil
	})
}

// MemorySessions implements auth.SessionRepository on a MemoryStore.
type MemorySessions struct{ s *MemoryStore }

// Create stores a session, enforcing token hash uniqueness.
func (r *MemorySessions) Create(ctx context.Context, session *auth.Session) error {
	return r.s.exec(ctx, "sessions.Create", func() error {
		for _, existing := range r.s.sessions {
			if existing.TokenHash == session.TokenHash {
				return auth.ErrDuplicate
			}
		}
		r.s.sessions[session.ID] = *session
		return nil
	})
}

// GetByTokenHashForUpdate returns a copy of the session with tokenHash.
func (r *MemorySessions) GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*auth.Session, error) {
	var out *auth.Session
	err := r.s.exec(ctx, "sessions.GetByTokenHashForUpdate", func() error {
		for _, session := range r.s.sessions {
			if session.TokenHash == tokenHash {
				out = &session
				return nil
			}
		}
		return auth.ErrNotFound
	})
	return out, err
}

// Update replaces an existing session.
func (r *MemorySessions) Update(ctx context.Context, session *auth.Session) error {
	return r.s.exec(ctx, "sessions.Update", func() error {
		if _, ok := r.s.sessions[session.ID]; !ok {
			return auth.ErrNotFound
		}
		r.s.sessions[session.ID] = *session
		return nil
	})
}

// ListByIdentity returns copies of every session of identityID, newest first.
func (r *MemorySessions) ListByIdentity(ctx context.Context, identityID ulid.ULID) ([]*auth.Session, error) {
	var out []*auth.Session
	err := r.s.exec(ctx, "sessions.ListByIdentity", func() error {
		for _, session := range r.s.sessions {
			if session.IdentityID == identityID {
				out = append(out, &session)
			}
		}
		slices.SortFunc(out, func(a, b *auth.Session) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return b.ID.Compare(a.ID)
		})
		return nil
	})
	return out, err
}
