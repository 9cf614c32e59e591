// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyonggi-board/authcore/internal/config"
	"github.com/kyonggi-board/authcore/pkg/errutil"
)

func TestRunServe_StartsAndStops(t *testing.T) {
	testEnv(t, "postgres://authcore@localhost/authcore")
	_, factory := mockDatabase(t)
	mr := miniredis.RunT(t)

	migrator := &fakeMigrations{}
	deps := &Deps{
		DatabaseFactory: factory,
		MigratorFactory: func(string) (Migrations, error) { return migrator, nil },
	}

	cmd := NewServeCmd(deps)
	var stderr, stdout bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetOut(&stdout)
	require.NoError(t, cmd.ParseFlags([]string{
		"--metrics-addr", "127.0.0.1:0",
		"--redis-addr", mr.Addr(),
		"--log-format", "text",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cmd, &serveOptions{autoMigrate: true, ready: ready}, deps)
	}()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for serve to start")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for serve to stop")
	}

	assert.Equal(t, []string{"up"}, migrator.calls)
	assert.Contains(t, stdout.String(), "authcore started")
	logs := stderr.String()
	assert.Contains(t, logs, "refresh reuse tracking enabled")
	assert.Contains(t, logs, "authcore ready")
	assert.NotContains(t, logs, "level=DEBUG", "default level is info")
}

func TestRunServe_ConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		deps     func(t *testing.T) *Deps
		wantCode string
	}{
		{
			name: "missing jwt secret",
			deps: func(*testing.T) *Deps {
				return &Deps{ConfigLoader: overrideConfig(func(c *config.Config) { c.JWT.Secret = "" })}
			},
			wantCode: "CONFIG_INVALID",
		},
		{
			name: "unknown log level",
			deps: func(*testing.T) *Deps {
				return &Deps{ConfigLoader: overrideConfig(func(c *config.Config) { c.Log.Level = "chatty" })}
			},
			wantCode: "LOG_LEVEL_INVALID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testEnv(t, "postgres://authcore@localhost/authcore")
			deps := tt.deps(t)

			cmd := NewServeCmd(deps)
			cmd.SetErr(new(bytes.Buffer))
			err := runServe(context.Background(), cmd, &serveOptions{}, deps)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}
