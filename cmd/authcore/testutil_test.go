// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/kyonggi-board/authcore/internal/config"
	"github.com/kyonggi-board/authcore/internal/store"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// testEnv points configuration at an empty XDG dir and sets the
// environment fallbacks.
func testEnv(t *testing.T, databaseURL string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvDatabaseURL, databaseURL)
	t.Setenv(config.EnvJWTSecret, testJWTSecret)
	configFile = ""
}

// mockDatabase returns a pgxmock pool and a factory handing it out.
func mockDatabase(t *testing.T) (pgxmock.PgxPoolIface, func(context.Context, string, store.PoolOptions) (Database, error)) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	return pool, func(context.Context, string, store.PoolOptions) (Database, error) {
		return pool, nil
	}
}

// overrideConfig loads configuration and then applies mutate.
func overrideConfig(mutate func(*config.Config)) func(string, *pflag.FlagSet) (*config.Config, error) {
	return func(path string, flags *pflag.FlagSet) (*config.Config, error) {
		cfg, err := config.Load(path, flags)
		if err != nil {
			return nil, err
		}
		mutate(cfg)
		return cfg, nil
	}
}
