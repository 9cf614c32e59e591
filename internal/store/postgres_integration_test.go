// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kyonggi-board/authcore/internal/store"
)

// setupMigratedDatabase starts PostgreSQL, applies the schema and connects a pool.
func setupMigratedDatabase() (*pgxpool.Pool, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("authcore_test"),
		postgres.WithUsername("authcore"),
		postgres.WithPassword("authcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	_ = migrator.Close()

	pool, err := store.Connect(ctx, connStr, store.PoolOptions{MaxConns: 4})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return pool, cleanup, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var _ = Describe("authcore schema", func() {
	var pool *pgxpool.Pool
	var cleanup func()
	ctx := context.Background()

	BeforeEach(func() {
		var err error
		pool, cleanup, err = setupMigratedDatabase()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	insertIdentity := func(id, email, displayName string) error {
		_, err := pool.Exec(ctx, `
			INSERT INTO identities (id, email, credential_digest, display_name)
			VALUES ($1, $2, 'digest', $3)
		`, id, email, displayName)
		return err
	}

	Describe("identities", func() {
		It("defaults new rows to active users", func() {
			Expect(insertIdentity("01J0000000000000000000000A", "a@kyonggi.ac.kr", "alpha")).To(Succeed())

			var role, status string
			Expect(pool.QueryRow(ctx, `SELECT role, status FROM identities WHERE id = $1`,
				"01J0000000000000000000000A").Scan(&role, &status)).To(Succeed())
			Expect(role).To(Equal("USER"))
			Expect(status).To(Equal("ACTIVE"))
		})

		It("rejects display names differing only in case", func() {
			Expect(insertIdentity("01J0000000000000000000000A", "a@kyonggi.ac.kr", "alpha")).To(Succeed())

			err := insertIdentity("01J0000000000000000000000B", "b@kyonggi.ac.kr", "ALPHA")
			Expect(pgCode(err)).To(Equal(pgerrcode.UniqueViolation))
		})

		It("rejects unknown roles", func() {
			_, err := pool.Exec(ctx, `
				INSERT INTO identities (id, email, credential_digest, display_name, role)
				VALUES ('01J0000000000000000000000C', 'c@kyonggi.ac.kr', 'digest', 'gamma', 'ROOT')
			`)
			Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))
		})
	})

	Describe("otp_challenges", func() {
		It("allows one row per email and purpose", func() {
			insert := `
				INSERT INTO otp_challenges (email, purpose, code_digest, expires_at, last_sent_at,
					resend_available_at, send_count_date, send_count)
				VALUES ('a@kyonggi.ac.kr', 'SIGNUP', 'd', now(), now(), now(), current_date, 1)
			`
			_, err := pool.Exec(ctx, insert)
			Expect(err).NotTo(HaveOccurred())

			_, err = pool.Exec(ctx, insert)
			Expect(pgCode(err)).To(Equal(pgerrcode.UniqueViolation))
		})
	})

	Describe("sessions", func() {
		It("requires revoke reason and timestamp together", func() {
			Expect(insertIdentity("01J0000000000000000000000A", "a@kyonggi.ac.kr", "alpha")).To(Succeed())

			_, err := pool.Exec(ctx, `
				INSERT INTO sessions (id, identity_id, token_hash, expires_at, revoked_at)
				VALUES ('01J0000000000000000000000S', '01J0000000000000000000000A', 'h', now(), now())
			`)
			Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))
		})

		It("keeps session rows when the identity is deleted", func() {
			Expect(insertIdentity("01J0000000000000000000000A", "a@kyonggi.ac.kr", "alpha")).To(Succeed())
			_, err := pool.Exec(ctx, `
				INSERT INTO sessions (id, identity_id, token_hash, expires_at)
				VALUES ('01J0000000000000000000000S', '01J0000000000000000000000A', 'h', now())
			`)
			Expect(err).NotTo(HaveOccurred())

			_, err = pool.Exec(ctx, `DELETE FROM identities WHERE id = '01J0000000000000000000000A'`)
			Expect(err).NotTo(HaveOccurred())

			var count int
			Expect(pool.QueryRow(ctx, `SELECT count(*) FROM sessions`).Scan(&count)).To(Succeed())
			Expect(count).To(Equal(1))
		})
	})

	Describe("Ready", func() {
		It("reports a reachable database", func() {
			Expect(store.Ready(pool)(ctx)).To(Succeed())
		})
	})
})
