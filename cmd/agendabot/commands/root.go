// Package commands implements the agendabot CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agendabot",
		Short: "AgendaBot - WhatsApp task and event assistant",
		Long: `AgendaBot keeps per-conversation task lists and event agendas over
WhatsApp, understands Portuguese requests and sends event reminders.

Examples:
  agendabot setup
  agendabot serve
  agendabot chat
  agendabot health`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSetupCmd(),
		newConfigCmd(),
		newHealthCmd(),
		newBackupCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
