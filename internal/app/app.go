// Package app wires the bot together: config, logging, transport, the
// calendar client, the vision agent and the per-chat sessions.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"classbot/internal/agent"
	"classbot/internal/config"
	"classbot/internal/gcal"
	rtsup "classbot/internal/runtime/supervisor"
	"classbot/internal/schedule"
	"classbot/internal/session"
	"classbot/internal/storage"
	kit "classbot/internal/transport"
	teleadapter "classbot/internal/transport/telegram/adapter"
	"classbot/internal/transport/telegram/router"
	logx "classbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	store    storage.Store
	adapter  kit.Adapter
	sessions *session.Manager
	runner   *agent.Runner
	cmdm     *router.Manager
	cron     *cron.Cron

	// calendar client is built lazily: without a cached OAuth token the bot
	// still starts, and uploads fail with the authorize hint instead.
	calMu sync.Mutex
	cal   *gcal.Client

	// holidays is swapped whole on config reload and ICS refresh.
	holMu    sync.RWMutex
	holidays schedule.HolidaySet

	httpc *http.Client

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := teleadapter.New(teleadapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with telegram logging disabled, set the target, then Apply()
	// the final config; enabling before the target is set emits a warning.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    false,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if chatID := parseChatID(cfg.Telegram.GroupLog); chatID != 0 {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	finalLogCfg := baseLogCfg
	finalLogCfg.Telegram.Enabled = cfg.Logging.Telegram.Enabled
	logSvc.Apply(finalLogCfg)

	// Storage (optional)
	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if st != nil {
			store = st
			log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	holidays, err := schedule.NewHolidaySet(cfg.Holidays.Dates)
	if err != nil {
		return nil, err
	}

	runner := agent.NewRunner(agent.Config{
		BaseURL: cfg.Agent.BaseURL,
		APIKey:  cfg.Agent.APIKey,
		Model:   cfg.Agent.Model,
	}, log.With(logx.String("comp", "agent")))

	sessions := session.NewManager(store, log.With(logx.String("comp", "session")))

	cmdm := router.NewManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.AllowedUserIDs)

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		adapter:  ad,
		sessions: sessions,
		runner:   runner,
		cmdm:     cmdm,
		holidays: holidays,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		updates:  make(chan kit.Update, 256),
	}
	cmdm.SetRegistry(a.commands(), a.handlePhoto, a.handleCallback)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	a.startMaintenance()

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	for _, s := range sections {
		switch s {
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		case "telegram":
			a.cmdm.SetAllowedUsers(newCfg.Telegram.AllowedUserIDs)
			if newCfg.Telegram.Token != oldCfg.Telegram.Token {
				a.log.Warn("telegram token changed; restart required for the new token to take effect")
			}
		case "agent":
			a.runner = agent.NewRunner(agent.Config{
				BaseURL: newCfg.Agent.BaseURL,
				APIKey:  newCfg.Agent.APIKey,
				Model:   newCfg.Agent.Model,
			}, a.log.With(logx.String("comp", "agent")))
		case "calendar":
			// Drop the cached client; the next scheduling run rebuilds it
			// against the new credentials/token locations.
			a.calMu.Lock()
			a.cal = nil
			a.calMu.Unlock()
		case "holidays":
			if hs, err := schedule.NewHolidaySet(newCfg.Holidays.Dates); err == nil {
				a.setHolidays(hs)
				a.refreshHolidayICS(a.sup.Context(), newCfg.Holidays.ICSSource)
			} else {
				a.log.Warn("invalid holiday dates; keeping previous", logx.Err(err))
			}
		}
	}

	// update log target first so Apply() doesn't warn when telegram logging is on
	if chatID := parseChatID(newCfg.Telegram.GroupLog); chatID != 0 {
		a.logs.SetTelegramTarget(chatID, newCfg.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    newCfg.Logging.Telegram.Enabled,
			ThreadID:   newCfg.Logging.Telegram.ThreadID,
			MinLevel:   newCfg.Logging.Telegram.MinLevel,
			RatePerSec: newCfg.Logging.Telegram.RatePerSec,
		},
	})

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	// Bounded shutdown steps; one stuck component must not stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem > 0 && rem < max {
				max = rem
			}
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("cron", 2*time.Second, func(c context.Context) error {
		if a.cron == nil {
			return nil
		}
		select {
		case <-a.cron.Stop().Done():
		case <-c.Done():
			return c.Err()
		}
		return nil
	})
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func (a *App) setHolidays(hs schedule.HolidaySet) {
	a.holMu.Lock()
	a.holidays = hs
	a.holMu.Unlock()
}

func (a *App) currentHolidays() schedule.HolidaySet {
	a.holMu.RLock()
	defer a.holMu.RUnlock()
	return a.holidays
}

func parseChatID(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
