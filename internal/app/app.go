package app

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"cardbot/internal/auction"
	"cardbot/internal/catalog"
	"cardbot/internal/commands"
	"cardbot/internal/config"
	"cardbot/internal/deferred"
	"cardbot/internal/maintenance"
	"cardbot/internal/notifier"
	"cardbot/internal/reminder"
	"cardbot/internal/runtime/supervisor"
	"cardbot/internal/storage"
	kit "cardbot/internal/transport"
	telegram "cardbot/internal/transport/telegram/adapter"
	"cardbot/internal/transport/telegram/router"
	logx "cardbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	rt   config.Runtime
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store *storage.Store

	adapter *telegram.Adapter
	notif   *notifier.Service

	auctions  *auction.Service
	reminders *reminder.Service
	handlers  *commands.Handlers
	router    *router.Manager
	maint     *maintenance.Service

	owners  atomic.Pointer[[]int64]
	updates chan kit.Update
}

// NewApp loads the config and builds every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	rt, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	boot := logx.NewConsole(cfg.Logging.Level)
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: rt.PollTimeout,
	}, boot.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogConfig(cfg, rt.LogChat), ad)

	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	openCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := storage.Open(openCtx, scfg, log.With(logx.String("comp", "storage")))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	notif := notifier.New(ad, mapNotifierConfig(), log)
	exec := deferred.New()

	auctions := auction.NewService(store, store, notif, exec,
		auction.WithLogger(log),
		auction.WithDefaultLifetime(rt.AuctionLifetime),
		auction.WithDefaultUserLimit(rt.DefaultUserLimit),
		auction.WithActionTimeout(rt.ActionTimeout),
	)
	reminders := reminder.New(store, notif, exec,
		reminder.WithLogger(log),
		reminder.WithMaxDuration(rt.ReminderMax),
	)

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		rt:        rt,
		log:       log,
		logs:      logs,
		store:     store,
		adapter:   ad,
		notif:     notif,
		auctions:  auctions,
		reminders: reminders,
		maint:     maintenance.New(log),
		updates:   make(chan kit.Update, 256),
	}
	a.setOwners(cfg.Telegram.OwnerUserIDs)

	a.handlers = commands.New(commands.Deps{
		Auctions:  auctions,
		Reminders: reminders,
		Cards:     catalog.New(mapCatalogConfig(cfg, rt), log),
		Settings:  store,
		Audit:     store,
		EditorTTL: rt.EditorTTL,
		IsOwner:   a.isOwner,
		Log:       log,
	})

	var ropts []router.Option
	if cfg.Telegram.Workers > 0 {
		ropts = append(ropts, router.WithWorkers(cfg.Telegram.Workers))
	}
	a.router = router.New(log.With(logx.String("comp", "router")), ad, cfg.Telegram.OwnerUserIDs, ropts...)
	a.router.SetRegistry(a.handlers.Commands(), a.handlers.Callbacks())
	return a, nil
}

func (a *App) setOwners(ids []int64) {
	cp := slices.Clone(ids)
	a.owners.Store(&cp)
}

func (a *App) isOwner(userID int64) bool {
	p := a.owners.Load()
	return p != nil && slices.Contains(*p, userID)
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
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// reloads are validated before they are committed and published
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := config.Resolve(cfg)
		return err
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	// Timers are restored before commands are accepted, so nothing can race
	// a recovering auction.
	if err := a.auctions.Recover(a.sup.Context()); err != nil {
		return fmt.Errorf("recover auctions: %w", err)
	}
	if err := a.reminders.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("restore reminders: %w", err)
	}
	if err := a.maint.Start(a.sup.Context(), a.rt.Location, a.jobs(a.rt)); err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("editors.sweep", a.handlers.Editors().Run)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(last, newCfg)
				last = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.String("storage", a.store.Driver()),
		logx.Int("auction_timers", a.auctions.ArmedTimers()),
		logx.Int("reminders", a.reminders.Pending()),
	)
	return nil
}

func (a *App) jobs(rt config.Runtime) []maintenance.Job {
	return maintenance.Jobs(mapMaintenancePlan(rt), a.auctions, a.store, a.log)
}

// applyConfig hot-applies what can change at runtime. Everything else is
// logged as needing a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	rt, err := config.Resolve(newCfg)
	if err != nil {
		a.log.Warn("invalid config reload ignored", logx.Err(err))
		return
	}
	sections := config.ChangedSections(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Debug("config change summary", config.SummarizeChange(oldCfg, newCfg)...)

	a.logs.Apply(mapLogConfig(newCfg, rt.LogChat))
	a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)
	a.setOwners(newCfg.Telegram.OwnerUserIDs)
	if err := a.maint.Apply(rt.Location, a.jobs(rt)); err != nil {
		a.log.Warn("maintenance reload failed; keeping previous schedule", logx.Err(err))
	}

	for _, s := range sections {
		switch s {
		case "storage", "auctions", "reminders", "catalog":
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}
	if oldCfg != nil && (oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout) {
		a.log.Warn("telegram connection settings changed; restart required")
	}
	a.rt = rt
	a.log.Info("config reloaded", logx.Any("changed", sections))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if limit > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				limit = min(limit, time.Until(dl))
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max(limit, 0))
			defer cancel()
		}

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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("maintenance", 3*time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("timers", time.Second, func(context.Context) error {
		a.auctions.Stop()
		a.reminders.Stop()
		return nil
	})
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
