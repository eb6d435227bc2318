package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
reserves:
  path: ./data/reserves.json
catalog:
  driver: sqlite
  dsn: ./data/catalog.db
tuners:
  - name: gr0
    types: [GR]
  - name: bs0
    types: [BS, CS]
manager:
  cancel_delay: 150ms
  encoder_count: 2
scheduler:
  enabled: true
  update_all: "@every 30m"
notifier:
  enabled: true
  rate_per_sec: 0.5
  hook_timeout: 5s
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("recsched.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Logging.Level != "debug" || len(cfg.Tuners) != 2 || cfg.Tuners[1].Types[1] != "CS" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if got := cfg.Manager.CancelDelayOr(time.Second); got != 150*time.Millisecond {
		t.Fatalf("cancel delay = %v", got)
	}
	if got := cfg.Manager.UpdateYieldOr(time.Millisecond); got != time.Millisecond {
		t.Fatalf("update yield default = %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, path, body string
	}{
		{"unknown field", "c.json", `{"logging":{"level":"info"},"telegram":{}}`},
		{"trailing json", "c.json", `{"logging":{}} {"logging":{}}`},
		{"bad yaml", "c.yaml", "logging: [\n"},
		{"unknown yaml field", "c.yml", "manager:\n  workers: 3\n"},
	}
	for _, tt := range tests {
		if _, err := Decode(tt.path, []byte(tt.body)); err == nil {
			t.Fatalf("%s: Decode accepted %q", tt.name, tt.body)
		}
	}
}

func TestDecodeSniffsJSON(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("recsched.conf", []byte(`  {"notifier":{"enabled":true}}`))
	if err != nil || !cfg.Notifier.Enabled {
		t.Fatalf("Decode = %+v, %v", cfg, err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"level", Config{Logging: LoggingConfig{Level: "loud"}}, "logging.level"},
		{"reserves driver", Config{Reserves: ReservesConfig{Driver: "redis"}}, "reserves.driver"},
		{"postgres dsn", Config{Catalog: CatalogConfig{Driver: "postgres"}}, "catalog.dsn"},
		{"tuner types", Config{Tuners: []TunerConfig{{Name: "t", Types: []string{"FM"}}}}, "tuners[0].types"},
		{"tuner empty types", Config{Tuners: []TunerConfig{{Name: "t"}}}, "tuners[0].types"},
		{"duplicate tuner", Config{Tuners: []TunerConfig{{Name: "t", Types: []string{"GR"}}, {Name: "t", Types: []string{"BS"}}}}, "tuners[1].name"},
		{"cancel delay", Config{Manager: ManagerConfig{CancelDelay: "soon"}}, "manager.cancel_delay"},
		{"negative yield", Config{Manager: ManagerConfig{UpdateYield: "-1s"}}, "manager.update_yield"},
		{"timezone", Config{Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"}}, "scheduler.timezone"},
		{"rate", Config{Notifier: NotifierConfig{RatePerSec: -1}}, "notifier.rate_per_sec"},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: Validate = %v, want mention of %q", tt.name, err, tt.want)
		}
	}
	var empty Config
	if err := empty.Validate(); err != nil {
		t.Fatalf("zero config: %v", err)
	}
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{}.WithDefaults()
	if cfg.Reserves.Path != DefaultReservesPath || cfg.Catalog.DSN != DefaultCatalogDSN ||
		cfg.Scheduler.UpdateAll != DefaultUpdateAll || cfg.Scheduler.Clean != DefaultClean || cfg.Manager.EncoderCount != 1 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestReloadPublishesChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "recsched.yaml", sampleYAML)
	m := NewManager(p)
	ctx := context.Background()
	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)

	if published, err := m.Reload(ctx); err != nil || published {
		t.Fatalf("unchanged Reload = %v, %v", published, err)
	}

	writeFile(t, dir, "recsched.yaml", strings.Replace(sampleYAML, "level: debug", "level: warn", 1))
	if published, err := m.Reload(ctx); err != nil || !published {
		t.Fatalf("changed Reload = %v, %v", published, err)
	}
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	default:
		t.Fatal("nothing published")
	}

	reject := errors.New("rejected")
	m.SetValidator(func(context.Context, *Config) error { return reject })
	writeFile(t, dir, "recsched.yaml", strings.Replace(sampleYAML, "level: debug", "level: error", 1))
	if _, err := m.Reload(ctx); !errors.Is(err, reject) {
		t.Fatalf("rejected Reload = %v", err)
	}
	if m.Get().Logging.Level != "warn" {
		t.Fatalf("rejected config committed: %q", m.Get().Logging.Level)
	}
	m.Unsubscribe(ch)
}

func TestWatchPicksUpWrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "recsched.json", `{"logging":{"level":"info"}}`)
	m := NewManager(p, WithDebounce(20*time.Millisecond))
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		// Rewrite until the watcher, which starts asynchronously, sees it.
		writeFile(t, dir, "recsched.json", `{"logging":{"level":"debug"}}`)
		select {
		case cfg := <-ch:
			if cfg.Logging.Level != "debug" {
				t.Fatalf("level = %q", cfg.Logging.Level)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("watch did not publish")
		}
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	old := &Config{Debug: DebugConfig{Token: "a"}, Tuners: []TunerConfig{{Name: "t", Types: []string{"GR"}}}}
	cur := &Config{Debug: DebugConfig{Token: "b"}, Tuners: []TunerConfig{{Name: "t", Types: []string{"GR", "BS"}}}, Notifier: NotifierConfig{Enabled: true}}
	changed, attrs := SummarizeChange(old, cur)
	for _, want := range []string{"tuners", "notifier", "debug"} {
		if !slices.Contains(changed, want) {
			t.Fatalf("changed = %v, missing %s", changed, want)
		}
	}
	if slices.Contains(changed, "logging") || len(attrs) == 0 {
		t.Fatalf("changed = %v attrs = %d", changed, len(attrs))
	}
}
