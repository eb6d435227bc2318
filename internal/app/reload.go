package app

import (
	"context"
	"strings"
	"time"

	"recsched/internal/config"
	"recsched/internal/eventbus"
	"recsched/internal/scheduler"
	logx "recsched/pkg/logx"
)

// reloadLoop applies committed configs until ctx ends. Bursts collapse to
// the newest config.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					next = newer
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	cfg := next.WithDefaults()
	changed := func(name string) bool {
		for _, s := range sections {
			if s == name {
				return true
			}
		}
		return false
	}

	if changed("logging") {
		a.logs.Apply(mapLogging(&cfg))
	}
	if changed("tuners") {
		if tuners, err := mapTuners(&cfg); err != nil {
			a.log.Warn("invalid tuner config; keeping previous", logx.Err(err))
		} else {
			a.mgr.SetTuners(tuners)
		}
	}
	if changed("scheduler") {
		a.applyScheduler(ctx, &cfg)
	}
	if changed("notifier") {
		ncfg := mapNotifier(&cfg)
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			_ = a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ncfg.Enabled:
			a.notif.Start(ctx)
		}
	}
	if changed("debug") {
		a.debug.Reconfigure(ctx, mapDebug(&cfg))
	}
	for _, s := range []string{"reserves", "catalog", "manager"} {
		if changed(s) {
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyScheduler(ctx context.Context, cfg *config.Config) {
	for name, spec := range map[string]string{
		scheduler.JobUpdateAll: cfg.Scheduler.UpdateAll,
		scheduler.JobClean:     cfg.Scheduler.Clean,
	} {
		if err := a.sched.Reschedule(name, spec); err != nil {
			a.log.Warn("reschedule failed; keeping previous", logx.String("job", name), logx.Err(err))
		}
	}
	scfg := mapScheduler(cfg)
	wasEnabled := a.sched.Enabled()
	a.sched.Apply(scfg)
	switch {
	case wasEnabled && !scfg.Enabled:
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		_ = a.sched.Stop(stopCtx)
		cancel()
	case !wasEnabled && scfg.Enabled:
		a.sched.Start(ctx)
	}
}
