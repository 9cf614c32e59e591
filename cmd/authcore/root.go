package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authcore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authcore",
		Short: "authcore - Kyonggi Board authentication service",
		Long: `authcore runs email OTP signup, password login and rotating
refresh sessions for @kyonggi.ac.kr accounts.`,
		SilenceUsage: true,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/authcore/config.yaml)")

	cmd.AddCommand(NewServeCmd(nil))
	cmd.AddCommand(NewMigrateCmd(nil))
	cmd.AddCommand(NewSessionsCmd(nil))
	cmd.AddCommand(NewConfigCmd(nil))

	return cmd
}
