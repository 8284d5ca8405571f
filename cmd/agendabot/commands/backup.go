package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/agendabot/pkg/agendabot/housekeeping"
)

// newBackupCmd creates the `agendabot backup` command: one housekeeping run
// outside the schedule.
func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the store and remove old snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := resolveConfig(cmd, false)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg, os.Stderr, slog.LevelWarn)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			hk := housekeeping.New(st, cfg.BackupDir(), cfg.Housekeeping.RetentionDays, logger)
			path, err := hk.Snapshot(ctx)
			if err != nil {
				return err
			}
			removed, err := housekeeping.CleanOld(cfg.BackupDir(), cfg.Housekeeping.RetentionDays)
			if err != nil {
				return err
			}
			fmt.Printf("Snapshot written to %s (%d old snapshots removed)\n", path, removed)
			return nil
		},
	}
}
