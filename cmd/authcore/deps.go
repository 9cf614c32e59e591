// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/kyonggi-board/authcore/internal/app"
	"github.com/kyonggi-board/authcore/internal/config"
	"github.com/kyonggi-board/authcore/internal/store"
)

// Database is the connection pool the commands work with. *pgxpool.Pool
// satisfies it.
type Database interface {
	app.Database
	Ping(ctx context.Context) error
	Close()
}

// Migrations is the subset of *store.Migrator used by the migrate command.
type Migrations interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// ConfigLoader loads configuration.
	// Default: config.Load
	ConfigLoader func(path string, flags *pflag.FlagSet) (*config.Config, error)

	// DatabaseFactory opens the PostgreSQL pool.
	// Default: store.Connect
	DatabaseFactory func(ctx context.Context, url string, opts store.PoolOptions) (Database, error)

	// MigratorFactory opens a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrations, error)

	// RedisFactory creates the Redis client for the reuse tracker.
	// Default: redis.NewClient
	RedisFactory func(cfg config.RedisConfig) redis.UniversalClient
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.ConfigLoader == nil {
		out.ConfigLoader = config.Load
	}
	if out.DatabaseFactory == nil {
		out.DatabaseFactory = func(ctx context.Context, url string, opts store.PoolOptions) (Database, error) {
			pool, err := store.Connect(ctx, url, opts)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (Migrations, error) {
			m, err := store.NewMigrator(url)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.RedisFactory == nil {
		out.RedisFactory = func(cfg config.RedisConfig) redis.UniversalClient {
			return redis.NewClient(&redis.Options{
				Addr:     cfg.Addr,
				Password: cfg.Password,
				DB:       cfg.DB,
			})
		}
	}
	return &out
}
