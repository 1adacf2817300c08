package app

import (
	"context"
	"strings"

	"github.com/robfig/cron/v3"

	"classbot/internal/schedule"
	logx "classbot/pkg/logx"
)

// journalPruneSpec runs after the holiday refresh window so the two jobs
// never overlap on the sqlite file.
const journalPruneSpec = "30 4 * * *"

func (a *App) startMaintenance() {
	cfg := a.cfgm.Get()
	c := cron.New()

	spec := cfg.Maintenance.HolidayRefreshCronOrDefault()
	if _, err := c.AddFunc(spec, func() {
		a.refreshHolidayICS(a.sup.Context(), a.cfgm.Get().Holidays.ICSSource)
	}); err != nil {
		a.log.Warn("invalid holiday refresh schedule; refresh disabled",
			logx.String("spec", spec), logx.Err(err))
	}

	if a.store != nil {
		if _, err := c.AddFunc(journalPruneSpec, func() {
			maxAge := a.cfgm.Get().Maintenance.JournalMaxAgeOrDefault()
			a.sessions.Prune(a.sup.Context(), maxAge)
		}); err != nil {
			a.log.Warn("journal prune schedule rejected", logx.Err(err))
		}
	}

	c.Start()
	a.cron = c

	// Seed the holiday set once at startup instead of waiting for the
	// first scheduled refresh.
	a.sup.Go0("holidays.refresh", func(ctx context.Context) {
		a.refreshHolidayICS(ctx, cfg.Holidays.ICSSource)
	})
}

// refreshHolidayICS rebuilds the holiday set from the configured fixed
// dates plus the ICS source, then swaps it in whole. A fetch failure keeps
// the previous set.
func (a *App) refreshHolidayICS(ctx context.Context, source string) {
	if strings.TrimSpace(source) == "" {
		return
	}
	hs, err := schedule.NewHolidaySet(a.cfgm.Get().Holidays.Dates)
	if err != nil {
		a.log.Warn("holiday dates invalid; skipping refresh", logx.Err(err))
		return
	}
	n, err := hs.LoadICSSource(ctx, a.httpc, source)
	if err != nil {
		a.log.Warn("holiday ICS refresh failed; keeping previous set",
			logx.String("source", source), logx.Err(err))
		return
	}
	a.setHolidays(hs)
	a.log.Info("holiday set refreshed",
		logx.Int("ics_events", n), logx.Int("total", len(hs)))
}
