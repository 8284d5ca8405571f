package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/jholhewres/agendabot/pkg/agendabot/assistant"
	"github.com/jholhewres/agendabot/pkg/agendabot/channels/whatsapp"
	"github.com/jholhewres/agendabot/pkg/agendabot/config"
	"github.com/jholhewres/agendabot/pkg/agendabot/housekeeping"
	"github.com/jholhewres/agendabot/pkg/agendabot/reminder"
	"github.com/jholhewres/agendabot/pkg/agendabot/scheduler"
	"github.com/jholhewres/agendabot/pkg/agendabot/singleton"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

// newServeCmd creates the `agendabot serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to WhatsApp and start answering messages",
		Long: `Start AgendaBot as a daemon: connects to WhatsApp (showing a pairing QR
code on first run), processes messages and sends event reminders.

A previous instance recorded in the PID file is terminated first.

Examples:
  agendabot serve
  agendabot serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, path, err := resolveConfig(cmd, true)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg, os.Stdout, slog.LevelInfo)
	logger.Info("config loaded", "path", path, "storage", cfg.Storage.Backend)

	// ── Resolve secrets ──
	config.ResolveAPIKey(cfg, logger)

	// ── Single instance ──
	guard, err := singleton.Acquire(cfg.PIDPath(), logger)
	if err != nil {
		return err
	}
	defer guard.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Store ──
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// ── WhatsApp ──
	wa := whatsapp.New(whatsapp.Config{
		SessionDB:  cfg.SessionDBPath(),
		DeviceName: cfg.WhatsApp.DeviceName,
	}, versionCache{store: st}, logger)

	wa.OnConnected(func(self string) {
		if st.Settings().Self == self {
			return
		}
		if err := st.UpdateSettings(ctx, func(s *store.Settings) { s.Self = self }); err != nil {
			logger.Warn("failed to save own identifier", "error", err)
		}
	})

	qrEvents, unsubscribe := wa.SubscribeQR()
	defer unsubscribe()
	go renderQR(qrEvents)

	if err := wa.Connect(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("connecting to WhatsApp: %w", err)
	}

	// ── Pipeline ──
	bot := assistant.New(st, wa, newFallback(cfg, logger), assistant.Config{
		AutoRead:        cfg.WhatsApp.AutoRead,
		RespondToGroups: cfg.WhatsApp.RespondToGroups,
	}, logger)

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if err := bot.Run(ctx); err != nil {
			logger.Error("message loop stopped", "error", err)
		}
	}()

	// ── Scheduled jobs ──
	sched := scheduler.New(logger)
	if err := sched.Add(reminder.NewSweeper(st, wa, logger).Job(cfg.Reminders.Interval)); err != nil {
		return fmt.Errorf("scheduling reminders: %w", err)
	}
	if cfg.Housekeeping.Enabled {
		hk := housekeeping.New(st, cfg.BackupDir(), cfg.Housekeeping.RetentionDays, logger)
		if err := sched.Add(hk.Job(cfg.Housekeeping.Schedule)); err != nil {
			return fmt.Errorf("scheduling housekeeping: %w", err)
		}
	}
	sched.Start(ctx)

	logger.Info("AgendaBot running. Press Ctrl+C to stop.",
		"pid", os.Getpid(),
		"llm", cfg.LLM.Enabled && cfg.LLM.APIKey != "",
	)

	// ── Wait for shutdown ──
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Stop()
		_ = wa.Disconnect()
		<-botDone
		cancel()

		commitCtx, commitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer commitCancel()
		if err := st.Commit(commitCtx); err != nil {
			logger.Error("final commit failed", "error", err)
		}
		if err := st.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}
	return nil
}

// renderQR prints pairing codes in the terminal.
func renderQR(events <-chan whatsapp.QREvent) {
	for evt := range events {
		switch evt.Type {
		case "code":
			fmt.Println()
			fmt.Println("Scan this QR code with WhatsApp (Linked devices > Link a device):")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
		default:
			fmt.Println(evt.Message)
		}
	}
}
