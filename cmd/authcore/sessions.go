// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/kyonggi-board/authcore/internal/auth"
	"github.com/kyonggi-board/authcore/internal/auth/postgres"
)

// SessionView is the printable form of a refresh session.
type SessionView struct {
	ID           string     `json:"id"`
	State        string     `json:"state"`
	RememberMe   bool       `json:"remember_me"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
	IPAddress    string     `json:"ip_address,omitempty"`
}

func newSessionView(s *auth.Session, now time.Time) SessionView {
	state := "live"
	switch {
	case s.IsRevoked():
		state = "revoked"
	case s.IsExpiredAt(now):
		state = "expired"
	}
	return SessionView{
		ID:           s.ID.String(),
		State:        state,
		RememberMe:   s.RememberMe,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
		LastUsedAt:   s.LastUsedAt,
		RevokedAt:    s.RevokedAt,
		RevokeReason: string(s.RevokeReason),
		UserAgent:    s.UserAgent,
		IPAddress:    s.IPAddress,
	}
}

// NewSessionsCmd creates the sessions command for operators.
func NewSessionsCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect refresh sessions",
	}

	var jsonOutput bool
	list := &cobra.Command{
		Use:   "list IDENTITY",
		Short: "List the refresh sessions of an identity, newest first",
		Long:  `IDENTITY is an identity ID or an email address.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, deps, args[0], jsonOutput)
		},
	}
	list.Flags().BoolVar(&jsonOutput, "json", false, "output sessions as JSON")

	var reset bool
	reuse := &cobra.Command{
		Use:   "reuse-count IDENTITY_ID",
		Short: "Show how often rotated refresh tokens of an identity were replayed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReuseCount(cmd, deps, args[0], reset)
		},
	}
	reuse.Flags().BoolVar(&reset, "reset", false, "clear the counter after printing it")

	cmd.AddCommand(list, reuse)
	return cmd
}

func runSessionsList(cmd *cobra.Command, deps *Deps, identity string, jsonOutput bool) error {
	deps = deps.withDefaults()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := deps.ConfigLoader(configFile, nil)
	if err != nil {
		return err
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}

	db, err := deps.DatabaseFactory(ctx, cfg.Database.URL, cfg.PoolOptions())
	if err != nil {
		return err
	}
	defer db.Close()

	identities := postgres.NewIdentityRepository(db)
	identityID, err := resolveIdentity(ctx, identities, identity)
	if err != nil {
		return err
	}

	clock := auth.SystemClock{}
	engine, err := auth.NewSessionRotationEngine(postgres.NewTransactor(db), postgres.NewSessionRepository(db),
		identities, clock, cfg.SessionTTLs())
	if err != nil {
		return err
	}

	sessions, err := engine.Sessions(ctx, identityID)
	if err != nil {
		return err
	}

	now := clock.Now()
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newSessionView(s, now))
	}

	if jsonOutput {
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Print(formatSessionTable(views))
	return nil
}

// resolveIdentity accepts an identity ID or an email address.
func resolveIdentity(ctx context.Context, identities auth.IdentityRepository, arg string) (ulid.ULID, error) {
	if !strings.Contains(arg, "@") {
		id, err := ulid.ParseStrict(arg)
		if err != nil {
			return ulid.ULID{}, oops.Code("IDENTITY_INVALID_ID").With("input", arg).Wrap(err)
		}
		return id, nil
	}

	identity, err := identities.GetByEmail(ctx, auth.NormalizeEmail(arg))
	if errors.Is(err, auth.ErrNotFound) {
		return ulid.ULID{}, oops.Code(auth.CodeIdentityNotFound).With("email", arg).Errorf("no identity with this email")
	}
	if err != nil {
		return ulid.ULID{}, err
	}
	return identity.ID, nil
}

func formatSessionTable(views []SessionView) string {
	if len(views) == 0 {
		return "no sessions\n"
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "SESSION\tSTATE\tREMEMBER\tCREATED\tEXPIRES\tLAST USED")
	_, _ = fmt.Fprintln(w, "-------\t-----\t--------\t-------\t-------\t---------")
	for _, v := range views {
		state := v.State
		if v.RevokeReason != "" {
			state += " (" + strings.ToLower(v.RevokeReason) + ")"
		}
		lastUsed := "-"
		if v.LastUsedAt != nil {
			lastUsed = v.LastUsedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n",
			v.ID, state, v.RememberMe,
			v.CreatedAt.Format(time.RFC3339), v.ExpiresAt.Format(time.RFC3339), lastUsed)
	}

	_ = w.Flush()
	return buf.String()
}

func runReuseCount(cmd *cobra.Command, deps *Deps, arg string, reset bool) error {
	deps = deps.withDefaults()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	identityID, err := ulid.ParseStrict(arg)
	if err != nil {
		return oops.Code("IDENTITY_INVALID_ID").With("input", arg).Wrap(err)
	}

	cfg, err := deps.ConfigLoader(configFile, nil)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("field", "redis.addr").Errorf("redis address is required for reuse tracking")
	}

	client := deps.RedisFactory(cfg.Redis)
	defer func() { _ = client.Close() }()

	tracker, err := newReuseTracker(client, cfg.Redis)
	if err != nil {
		return err
	}

	count, err := tracker.Count(ctx, identityID)
	if err != nil {
		return err
	}
	cmd.Printf("%s\t%d\n", identityID, count)

	if reset {
		if err := tracker.Reset(ctx, identityID); err != nil {
			return err
		}
		cmd.Println("counter reset")
	}
	return nil
}
