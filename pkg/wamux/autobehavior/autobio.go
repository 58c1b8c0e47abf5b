package autobehavior

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jholhewres/wamux/pkg/wamux/session"
)

// DefaultBioSchedule refreshes the about text at the top of every hour.
const DefaultBioSchedule = "0 * * * *"

// BioUpdater periodically rewrites the "about" text of every connected
// account that has the auto-bio toggle on. It is not a pipeline observer;
// it runs on its own cron schedule against the live registry.
type BioUpdater struct {
	registry *session.Registry
	settings Settings
	logger   *slog.Logger

	// Template renders the bio. When empty a default with uptime and
	// wall-clock time is used.
	Template func(now time.Time, uptime time.Duration) string

	startedAt time.Time
	cron      *cron.Cron
}

// NewBioUpdater wires the updater to the registry and settings store.
func NewBioUpdater(reg *session.Registry, settings Settings, logger *slog.Logger) *BioUpdater {
	if logger == nil {
		logger = slog.Default()
	}
	return &BioUpdater{
		registry:  reg,
		settings:  settings,
		logger:    logger.With("component", "autobio"),
		startedAt: time.Now(),
	}
}

// Start schedules the refresh job. schedule is a standard cron
// expression; empty selects DefaultBioSchedule.
func (b *BioUpdater) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultBioSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { b.refreshAll(ctx) }); err != nil {
		return fmt.Errorf("scheduling bio refresh: %w", err)
	}
	c.Start()
	b.cron = c
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (b *BioUpdater) Stop() {
	if b.cron != nil {
		<-b.cron.Stop().Done()
	}
}

func (b *BioUpdater) refreshAll(ctx context.Context) {
	now := time.Now()
	text := b.render(now)

	for _, view := range b.registry.ListAll() {
		if !view.Connected {
			continue
		}
		if !b.settings.UserConfig(view.AccountID).AutoBio {
			continue
		}
		conn, ok := b.registry.Conn(view.AccountID)
		if !ok {
			continue
		}
		if err := conn.SetStatusText(ctx, text); err != nil {
			b.logger.Error("bio refresh failed", "account", view.AccountID, "error", err)
		}
	}
}

func (b *BioUpdater) render(now time.Time) string {
	uptime := now.Sub(b.startedAt).Round(time.Minute)
	if b.Template != nil {
		return b.Template(now, uptime)
	}
	return fmt.Sprintf("🟢 online · up %s · %s", uptime, now.Format("15:04"))
}
