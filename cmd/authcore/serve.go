// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/kyonggi-board/authcore/internal/app"
	"github.com/kyonggi-board/authcore/internal/auth"
	"github.com/kyonggi-board/authcore/internal/auth/redisstore"
	"github.com/kyonggi-board/authcore/internal/config"
	"github.com/kyonggi-board/authcore/internal/logging"
	"github.com/kyonggi-board/authcore/internal/observability"
	"github.com/kyonggi-board/authcore/internal/store"
	"github.com/kyonggi-board/authcore/pkg/errutil"
)

const serviceName = "authcore"

// shutdownTimeout bounds the mail drain and server shutdown.
const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	autoMigrate bool
	// ready, when set, is closed once the service is up. Tests use it.
	ready chan<- struct{}
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authentication service",
		Long: `Run the authentication service: connect to PostgreSQL and Redis,
start the OTP mail dispatcher and expose metrics and health probes
until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts, deps)
		},
	}

	cmd.Flags().BoolVar(&opts.autoMigrate, "auto-migrate", false, "apply pending migrations before starting")
	cmd.Flags().String("redis-addr", "", "Redis address for refresh reuse tracking (empty = disabled)")
	cmd.Flags().String("mail-mode", config.MailModeLog, "OTP mail delivery: log or smtp")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "json", "log format (json or text)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("otp-time-zone", "Asia/Seoul", "time zone of the daily OTP send limit")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *serveOptions, deps *Deps) error {
	deps = deps.withDefaults()

	cfg, err := deps.ConfigLoader(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, cmd.ErrOrStderr(), logging.WithLevel(level))
	slog.SetDefault(logger)

	logger.InfoContext(ctx, "starting authcore",
		"version", version,
		"mail_mode", cfg.Mail.Mode,
		"otp_time_zone", cfg.Otp.TimeZone,
	)

	if opts.autoMigrate {
		if err := migrateUp(deps, cfg.Database.URL); err != nil {
			return err
		}
		logger.InfoContext(ctx, "migrations applied")
	}

	db, err := deps.DatabaseFactory(ctx, cfg.Database.URL, cfg.PoolOptions())
	if err != nil {
		return err
	}
	defer db.Close()
	logger.InfoContext(ctx, "connected to database")

	var observer auth.ReuseObserver
	checks := []observability.Option{
		observability.WithLogger(logger),
		observability.WithCheck("database", store.Ready(db)),
	}
	if cfg.Redis.Addr != "" {
		client := deps.RedisFactory(cfg.Redis)
		defer func() { _ = client.Close() }()

		tracker, err := newReuseTracker(client, cfg.Redis)
		if err != nil {
			return err
		}
		observer = tracker
		checks = append(checks, observability.WithCheck("redis", tracker.Ping))
		logger.InfoContext(ctx, "refresh reuse tracking enabled", "redis_addr", cfg.Redis.Addr)
	}

	obsServer := observability.NewServer(cfg.Metrics.Addr, version, checks...)

	application, err := app.New(cfg, app.Resources{
		DB:       db,
		Observer: observer,
		Registry: obsServer.Registry(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := application.Close(drainCtx); err != nil {
			errutil.LogError(drainCtx, logger, "failed to drain mail queue", err, "pending", application.PendingMail())
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Metrics.Addr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer stopCancel()
			if err := obsServer.Stop(stopCtx); err != nil {
				errutil.LogWarn(stopCtx, logger, "error stopping observability server", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("authcore started")
	logger.InfoContext(ctx, "authcore ready", "metrics_addr", obsServer.Addr())
	if opts.ready != nil {
		close(opts.ready)
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down")
	return nil
}

func newReuseTracker(client redis.UniversalClient, cfg config.RedisConfig) (*redisstore.ReuseTracker, error) {
	var opts []redisstore.ReuseTrackerOption
	if cfg.KeyPrefix != "" {
		opts = append(opts, redisstore.WithKeyPrefix(cfg.KeyPrefix))
	}
	if cfg.ReuseWindow > 0 {
		opts = append(opts, redisstore.WithWindow(cfg.ReuseWindow))
	}
	tracker, err := redisstore.NewReuseTracker(client, opts...)
	if err != nil {
		return nil, oops.Code("REDIS_SETUP_FAILED").Wrap(err)
	}
	return tracker, nil
}

// monitorServerErrors cancels ctx when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			errutil.LogError(ctx, logger, "server failed", err, "server", name)
			cancel()
		}
	case <-ctx.Done():
	}
}
