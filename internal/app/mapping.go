package app

import (
	"fmt"
	"strings"
	"time"

	"recsched/internal/catalog"
	"recsched/internal/config"
	"recsched/internal/manager"
	"recsched/internal/notifier"
	"recsched/internal/observability/debugsrv"
	"recsched/internal/scheduler"
	"recsched/internal/storage"
	"recsched/internal/tuner"
	logx "recsched/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorage(cfg *config.Config) storage.Config {
	driver := strings.ToLower(strings.TrimSpace(cfg.Reserves.Driver))
	sc := storage.Config{Driver: driver, Path: cfg.Reserves.Path}
	if driver == "sqlite" || driver == "sqlite3" {
		sc.BusyTimeout = cfg.Reserves.BusyTimeoutOr(time.Second)
	}
	return sc
}

func mapCatalog(cfg *config.Config) (catalog.Config, error) {
	cc := catalog.Config{Driver: cfg.Catalog.Driver, DSN: cfg.Catalog.DSN}
	if tz := strings.TrimSpace(cfg.Catalog.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return catalog.Config{}, fmt.Errorf("catalog.timezone: %w", err)
		}
		cc.Location = loc
	}
	return cc, nil
}

func mapTuners(cfg *config.Config) ([]tuner.Device, error) {
	cfgs := make([]tuner.Config, 0, len(cfg.Tuners))
	for i, t := range cfg.Tuners {
		types, err := tuner.ParseTypes(t.Types)
		if err != nil {
			return nil, fmt.Errorf("tuners[%d].types: %w", i, err)
		}
		cfgs = append(cfgs, tuner.Config{Name: t.Name, Types: types})
	}
	return tuner.Pool(cfgs), nil
}

func mapManager(cfg *config.Config) manager.Config {
	return manager.Config{
		CancelDelay:  cfg.Manager.CancelDelayOr(100 * time.Millisecond),
		UpdateYield:  cfg.Manager.UpdateYieldOr(0),
		EncoderCount: cfg.Manager.EncoderCount,
	}
}

func mapScheduler(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: cfg.Scheduler.Timezone,
		Timeout:  cfg.Scheduler.TimeoutOr(30 * time.Minute),
	}
}

func mapNotifier(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Enabled:     cfg.Notifier.Enabled,
		RatePerSec:  cfg.Notifier.RatePerSec,
		Burst:       cfg.Notifier.Burst,
		HookCommand: strings.TrimSpace(cfg.Notifier.HookCommand),
		HookTimeout: cfg.Notifier.HookTimeoutOr(10 * time.Second),
	}
}

func mapDebug(cfg *config.Config) debugsrv.Config {
	return debugsrv.Config{
		Enabled:       cfg.Debug.Enabled,
		Addr:          cfg.Debug.Addr,
		Token:         cfg.Debug.Token,
		AllowInsecure: cfg.Debug.AllowInsecure,
		Metrics:       cfg.Debug.Metrics,
		Pprof:         cfg.Debug.Pprof,
	}
}

// validate covers checks that need other packages than config.
func validate(cfg *config.Config) error {
	withDefaults := cfg.WithDefaults()
	if _, err := scheduler.NormalizeSpec(withDefaults.Scheduler.UpdateAll); err != nil {
		return fmt.Errorf("scheduler.update_all: %w", err)
	}
	if _, err := scheduler.NormalizeSpec(withDefaults.Scheduler.Clean); err != nil {
		return fmt.Errorf("scheduler.clean: %w", err)
	}
	d := mapDebug(&withDefaults)
	if d.Enabled && d.Token == "" && !d.AllowInsecure && d.Addr != "" && !debugsrv.IsLoopbackAddr(d.Addr) {
		return fmt.Errorf("debug.addr: %q is not loopback; set debug.token or debug.allow_insecure", d.Addr)
	}
	return nil
}
