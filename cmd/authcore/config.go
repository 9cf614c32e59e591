// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/kyonggi-board/authcore/internal/config"
)

// NewConfigCmd creates the config command for inspecting configuration.
func NewConfigCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect authcore configuration",
	}

	var out string
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			if out == "" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), string(schema))
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
				return oops.Code("SCHEMA_WRITE_FAILED").With("path", out).Wrap(err)
			}
			if err := os.WriteFile(out, schema, 0o600); err != nil {
				return oops.Code("SCHEMA_WRITE_FAILED").With("path", out).Wrap(err)
			}
			cmd.Printf("Generated %s\n", out)
			return nil
		},
	}
	schemaCmd.Flags().StringVarP(&out, "out", "o", "", "write the schema to this file instead of stdout")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and settings serve would use",
		Long: `Load the config file named by --config (or the XDG default), apply
environment fallbacks and run every check serve runs at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := deps.withDefaults()
			cfg, err := d.ConfigLoader(configFile, nil)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.Println("config ok")
			return nil
		},
	}

	cmd.AddCommand(schemaCmd, validateCmd)
	return cmd
}
