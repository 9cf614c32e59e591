// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package auth implements the credential and session lifecycle for authcore:
// email OTP signup, password login, and refresh/access token sessions.
//
// # Domain Types
//
// Domain types (Identity, OtpChallenge, Session) are created through their
// constructors and mutated only through their transition methods:
//   - NewIdentity - validated identity with a credential digest
//   - NewOtpChallenge, Reissue, MarkVerified, IncreaseFailure
//   - NewSession, Revoke, Touch
//
// Direct struct initialization bypasses validation and may create invalid state.
//
// # Engines
//
// Each engine owns one invariant and one table:
//   - OtpPolicyEngine - cooldown, daily limit, failure limit and expiry of OTP challenges
//   - SessionRotationEngine - single-use refresh tokens with reuse detection
//   - AccessTokenEngine - stateless signed access tokens
//
// Service composes the engines into the user-facing use cases. It is the only
// type that talks to more than one engine.
//
// # Transactions
//
// Repository methods named ...ForUpdate take a row lock and are only valid
// inside Transactor.InTransaction. Mail is dispatched only after the issuing
// transaction committed.
package auth
