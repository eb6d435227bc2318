package config

import (
	"reflect"
	"strings"

	logx "recsched/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe
// structured attrs for logging. Tokens are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage locations are read once at startup.
	if oldCfg.Reserves != newCfg.Reserves {
		changed = append(changed, "reserves")
		attrs = append(attrs, logx.Bool("reserves.restart_required", true))
	}
	if oldCfg.Catalog != newCfg.Catalog {
		changed = append(changed, "catalog")
		attrs = append(attrs,
			logx.String("catalog.driver", strings.TrimSpace(newCfg.Catalog.Driver)),
			logx.Bool("catalog.restart_required", true),
		)
	}

	if !reflect.DeepEqual(oldCfg.Tuners, newCfg.Tuners) {
		changed = append(changed, "tuners")
		attrs = append(attrs, logx.Int("tuners.count", len(newCfg.Tuners)))
	}

	if oldCfg.Manager != newCfg.Manager {
		changed = append(changed, "manager")
		attrs = append(attrs,
			logx.String("manager.cancel_delay", newCfg.Manager.CancelDelay),
			logx.Int("manager.encoder_count", newCfg.Manager.EncoderCount),
			logx.Bool("manager.restart_required", true),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.update_all", newCfg.Scheduler.UpdateAll),
			logx.String("scheduler.clean", newCfg.Scheduler.Clean),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newCfg.Notifier.Enabled),
			logx.Float64("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Bool("notifier.hook_set", strings.TrimSpace(newCfg.Notifier.HookCommand) != ""),
		)
	}

	if oldCfg.Debug.Enabled != newCfg.Debug.Enabled ||
		strings.TrimSpace(oldCfg.Debug.Addr) != strings.TrimSpace(newCfg.Debug.Addr) ||
		oldCfg.Debug.AllowInsecure != newCfg.Debug.AllowInsecure ||
		oldCfg.Debug.Metrics != newCfg.Debug.Metrics ||
		oldCfg.Debug.Pprof != newCfg.Debug.Pprof ||
		oldCfg.Debug.Token != newCfg.Debug.Token {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
		)
	}

	return changed, attrs
}
