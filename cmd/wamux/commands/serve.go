package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/wamux/pkg/wamux/autobehavior"
	"github.com/jholhewres/wamux/pkg/wamux/botcmd"
	"github.com/jholhewres/wamux/pkg/wamux/dispatch"
	"github.com/jholhewres/wamux/pkg/wamux/gateway"
	"github.com/jholhewres/wamux/pkg/wamux/session"
	"github.com/jholhewres/wamux/pkg/wamux/store"
	"github.com/jholhewres/wamux/pkg/wamux/transport"
)

// pairNumberEnvVar pre-pairs an account at boot when set.
const pairNumberEnvVar = "WAMUX_NUMBER"

// newServeCmd creates the `wamux serve` command that starts the daemon.
func newServeCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon and restore all paired sessions",
		Long: `Start wamux as a daemon: restore every persisted session, run the
inbound dispatch pipeline and expose the HTTP control surface.

Examples:
  wamux serve
  wamux serve --config ./wamux.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, version)
		},
	}
	return cmd
}

func runServe(cmd *cobra.Command, version string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	st, err := store.New(cfg.StoreDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Dispatch pipeline ──
	gate := dispatch.NewGate(st, st.Mode)
	router := dispatch.NewRouter(cfg.Behavior.CommandPrefix, logger)
	startedAt := time.Now()
	router.Register(botcmd.All(botcmd.Deps{
		Store:     st,
		Prefix:    router.Prefix(),
		Version:   version,
		StartedAt: startedAt,
		Commands:  router.Commands,
	})...)

	pipeline := dispatch.NewPipeline(gate, router, logger)

	welcome := autobehavior.NewWelcome(st)
	welcome.Text = cfg.Behavior.WelcomeText
	mention := autobehavior.NewMention()
	mention.Text = cfg.Behavior.MentionText
	pipeline.AddObserver(
		autobehavior.NewStatusReader(st),
		autobehavior.NewAutoReact(st),
		welcome,
		autobehavior.NewAntiDelete(st),
		mention,
	)

	// ── Sessions ──
	tr := transport.NewWhatsmeow(cfg.Transport, logger)
	sup := session.NewSupervisor(tr, session.NewRegistry(), cfg.Session, pipeline, logger)
	sup.SetContext(ctx)
	sup.AddTerminalObserver(func(accountID, reason string) {
		logger.Warn("session ended", "account", accountID, "reason", reason)
	})

	if err := sup.StartAll(ctx); err != nil {
		logger.Error("restoring sessions", "error", err)
	}

	// Pair the env-provided number when it has no session yet.
	if number := transport.BareNumber(os.Getenv(pairNumberEnvVar)); number != "" {
		if !sup.Registry().Contains(number) {
			code, err := sup.Pair(ctx, number)
			switch {
			case err != nil:
				logger.Error("pairing failed", "account", number, "error", err)
			case code != "":
				fmt.Printf("\nPairing code for %s: %s\n", number, formatPairingCode(code))
				fmt.Println("Enter it under WhatsApp > Linked devices > Link a device.")
			}
		}
	}

	// ── Auto-bio ──
	bio := autobehavior.NewBioUpdater(sup.Registry(), st, logger)
	if err := bio.Start(ctx, cfg.Behavior.BioSchedule); err != nil {
		logger.Error("starting auto-bio", "error", err)
	}

	// ── Gateway ──
	gateway.ResolveAuthToken(&cfg.Gateway, logger)
	gw := gateway.New(sup.Registry(), cfg.Gateway, version, logger)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	logger.Info("wamux running. Press Ctrl+C to stop.",
		"sessions", len(sup.Registry().ListAll()),
		"mode", st.Mode(),
		"gateway", cfg.Gateway.Address)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")
	cancel()

	done := make(chan struct{})
	go func() {
		bio.Stop()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		_ = gw.Stop(shutdownCtx)
		cancelShutdown()
		sup.Shutdown(context.Background())
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}
	return nil
}
