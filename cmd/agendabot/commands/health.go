package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/agendabot/pkg/agendabot/reminder"
	"github.com/jholhewres/agendabot/pkg/agendabot/singleton"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

// healthReport is printed by `agendabot health`.
type healthReport struct {
	Status        string `json:"status"`
	Storage       string `json:"storage"`
	Running       bool   `json:"running"`
	PID           int    `json:"pid,omitempty"`
	Listen        bool   `json:"listen"`
	Notify        bool   `json:"notify"`
	Self          string `json:"self,omitempty"`
	Admins        int    `json:"admins"`
	Conversations int    `json:"conversations"`
	Groups        int    `json:"groups"`
	Tasks         int    `json:"tasks"`
	Events        int    `json:"events"`
	PendingEvents int    `json:"pending_events"`
}

// newHealthCmd creates the `agendabot health` command, used by process
// supervisors and container health checks. It exits non-zero when the
// server is not running.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report store counts and whether the server is running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := resolveConfig(cmd, false)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg, os.Stderr, slog.LevelWarn)

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			report := buildHealthReport(st, time.Now())
			report.Storage = cfg.Storage.Backend
			report.PID, report.Running = singleton.Running(cfg.PIDPath())
			if !report.Running {
				report.Status = "stopped"
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if !report.Running {
				return fmt.Errorf("agendabot is not running")
			}
			return nil
		},
	}
}

// buildHealthReport counts the store contents.
func buildHealthReport(st *store.Store, now time.Time) healthReport {
	settings := st.Settings()
	report := healthReport{
		Status: "ok",
		Listen: settings.Listen,
		Notify: settings.Notify,
		Self:   settings.Self,
		Admins: len(settings.Admins),
	}
	for id, c := range st.Snapshot() {
		report.Conversations++
		if store.IsGroup(id) {
			report.Groups++
		}
		report.Tasks += len(c.Tasks)
		report.Events += len(c.Events)
		for _, e := range c.Events {
			if reminder.Classify(now, e.Datetime, e.Notify) == reminder.Pending {
				report.PendingEvents++
			}
		}
	}
	return report
}
