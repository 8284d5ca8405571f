package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/agendabot/pkg/agendabot/config"
)

// newConfigCmd creates the `agendabot config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration",
		Long: `Manage the AgendaBot configuration file and API key.

Examples:
  agendabot config init
  agendabot config show
  agendabot config set-key`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
		newConfigDeleteKeyCmd(),
	)
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, _ := cmd.Root().PersistentFlags().GetString("config")
			if target == "" {
				target = "config.yaml"
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}
			if err := config.Save(config.DefaultConfig(), target); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", target)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := resolveConfig(cmd, false)
			if err != nil {
				return err
			}
			source := config.ResolveAPIKey(cfg, nil)
			cfg.LLM.APIKey = maskSecret(cfg.LLM.APIKey)

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			if path == "" {
				path = "(defaults)"
			}
			fmt.Printf("# %s\n", path)
			if source != "" {
				fmt.Printf("# api key from %s\n", source)
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the LLM API key in the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			key, err := config.ReadPassword("API key: ")
			if err != nil {
				return err
			}
			if key == "" {
				return errors.New("empty key, nothing stored")
			}
			if err := config.StoreAPIKey(key); err != nil {
				return err
			}
			fmt.Println("API key stored in the OS keyring.")
			return nil
		},
	}
}

func newConfigDeleteKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key",
		Short: "Remove the LLM API key from the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			err := config.DeleteAPIKey()
			if errors.Is(err, keyring.ErrNotFound) {
				fmt.Println("No API key in the OS keyring.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("deleting from keyring: %w", err)
			}
			fmt.Println("API key removed from the OS keyring.")
			return nil
		},
	}
}

// maskSecret keeps the first and last characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:3] + "****" + s[len(s)-4:]
	}
}
