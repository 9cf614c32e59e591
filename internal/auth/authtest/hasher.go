// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package authtest

import (
	"strings"

	"github.com/kyonggi-board/authcore/internal/auth"
)

const plainPrefix = "plain:"

// PlainHasher is a reversible auth.Hasher for tests where argon2 would only
// slow things down.
type PlainHasher struct{}

// Hash returns "plain:" + secret.
func (PlainHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", auth.ErrEmptySecret
	}
	return plainPrefix + secret, nil
}

// Verify compares secret with the digest produced by Hash.
func (PlainHasher) Verify(secret, digest string) (bool, error) {
	stored, ok := strings.CutPrefix(digest, plainPrefix)
	if !ok {
		return false, nil
	}
	return stored == secret, nil
}

// FastArgon2 returns a real argon2id hasher with minimal cost parameters.
func FastArgon2() *auth.Argon2idHasher {
	return auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Time:    1,
		Memory:  64,
		Threads: 1,
		SaltLen: 16,
		KeyLen:  32,
	})
}
