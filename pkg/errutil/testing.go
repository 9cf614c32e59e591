// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package errutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error with the given code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err is an oops error with the given context key/value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	ctx := oopsErr.Context()
	assert.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertNoSecret asserts that secret appears neither in the message of err
// nor in any context value attached to it.
func AssertNoSecret(t *testing.T, err error, secret string) {
	t.Helper()
	require.NotEmpty(t, secret, "secret must not be empty")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), secret)
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return
	}
	for key, value := range oopsErr.Context() {
		assert.False(t, strings.Contains(fmt.Sprint(value), secret), "context key %q carries the secret", key)
	}
}
