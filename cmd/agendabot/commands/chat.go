package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jholhewres/agendabot/pkg/agendabot/assistant"
	"github.com/jholhewres/agendabot/pkg/agendabot/channels/console"
	"github.com/jholhewres/agendabot/pkg/agendabot/config"
	"github.com/jholhewres/agendabot/pkg/agendabot/reminder"
	"github.com/jholhewres/agendabot/pkg/agendabot/scheduler"
	"github.com/jholhewres/agendabot/pkg/agendabot/singleton"
)

// newChatCmd creates the `agendabot chat` command: the full pipeline on a
// local terminal.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		Long: `Runs the assistant on a local console conversation (` + console.ID + `)
using the configured storage. Reminders for the console conversation are
printed inline; other conversations are left to the server.
Type "sair" or press Ctrl+D to leave.

Examples:
  agendabot chat`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, _, err := resolveConfig(cmd, false)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg, os.Stderr, slog.LevelWarn)
	config.ResolveAPIKey(cfg, logger)

	if pid, alive := singleton.Running(cfg.PIDPath()); alive {
		return fmt.Errorf("agendabot serve is running (pid %d), stop it before using chat", pid)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := addAdmins(ctx, st, console.ID); err != nil {
		return err
	}

	_ = os.MkdirAll(cfg.DataDir, 0o700)
	con := console.New(filepath.Join(cfg.DataDir, ".chat_history"), logger)
	if err := con.Connect(ctx); err != nil {
		return err
	}
	defer con.Disconnect()

	sweeper := reminder.NewSweeper(st, con, logger)
	sweeper.SetScope(func(id string) bool { return id == console.ID })

	sched := scheduler.New(logger)
	if err := sched.Add(sweeper.Job(cfg.Reminders.Interval)); err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	fmt.Println("AgendaBot console. Digite \"status\" para ver os comandos, \"sair\" para encerrar.")

	bot := assistant.New(st, con, newFallback(cfg, logger), assistant.Config{}, logger)
	return bot.Run(ctx)
}
