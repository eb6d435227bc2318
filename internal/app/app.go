// Package app wires the reservation manager to its stores, background
// services and config hot reload.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recsched/internal/catalog"
	"recsched/internal/config"
	"recsched/internal/eventbus"
	"recsched/internal/execlock"
	"recsched/internal/manager"
	"recsched/internal/metrics"
	"recsched/internal/notifier"
	"recsched/internal/observability/debugsrv"
	"recsched/internal/recording"
	"recsched/internal/resolver"
	rtsup "recsched/internal/runtime/supervisor"
	"recsched/internal/scheduler"
	"recsched/internal/storage"
	logx "recsched/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	catalog *catalog.Store
	lock    *execlock.Lock
	mgr     *manager.Manager
	rec     *recording.Registry
	metrics *metrics.Metrics

	sched *scheduler.Service
	notif *notifier.Service
	debug *debugsrv.Server
	sd    notifyFunc
}

type Option func(*App)

// WithSystemdNotifier replaces the sd_notify hook, mainly for tests.
func WithSystemdNotifier(fn func(state string) (bool, error)) Option {
	return func(a *App) { a.sd = fn }
}

// New loads the config and opens every store. Services start in Start.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })
	raw, err := cfgm.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	cfg := raw.WithDefaults()

	logSvc, root := logx.New(mapLogging(&cfg))
	log := root.With(logx.Component("app"))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		rec:     recording.NewRegistry(),
		metrics: metrics.New(),
		sd:      sdNotify,
	}
	for _, o := range opts {
		o(a)
	}
	cfgm.SetLogger(root.With(logx.Component("config")))

	ok := false
	defer func() {
		if !ok {
			a.closeStores()
		}
	}()

	if a.store, err = storage.Open(mapStorage(&cfg), root); err != nil {
		return nil, err
	}
	cc, err := mapCatalog(&cfg)
	if err != nil {
		return nil, err
	}
	if a.catalog, err = catalog.Open(cc, root); err != nil {
		return nil, err
	}
	tuners, err := mapTuners(&cfg)
	if err != nil {
		return nil, err
	}

	a.lock = execlock.New(execlock.WithWaitObserver(a.metrics.ObserveLockWait))
	a.mgr, err = manager.New(ctx, mapManager(&cfg), manager.Deps{
		Store:    a.store,
		Catalog:  a.catalog,
		Rules:    a.catalog.Rules(),
		Notifier: eventbus.Signal{Bus: a.bus, Type: eventbus.TypeReservationsChanged},
		Tuners:   tuners,
	}, root,
		manager.WithLock(a.lock),
		manager.WithResolver(resolver.New(root.With(logx.Component("resolver")), resolver.WithObserver(a.metrics.ObserveResolver))),
		manager.WithRecorder(metrics.Recorder{M: a.metrics}),
	)
	if err != nil {
		return nil, err
	}
	a.mgr.SetRecordingChecker(a.rec)

	a.sched = scheduler.New(mapScheduler(&cfg), root)
	if err := a.registerJobs(&cfg); err != nil {
		return nil, err
	}
	a.notif = notifier.New(mapNotifier(&cfg), a.bus, root, notifier.WithSummary(a.summary))
	a.debug = debugsrv.New(mapDebug(&cfg), root,
		debugsrv.WithGatherer(a.metrics.Registry),
		debugsrv.WithHealth(a.health),
		debugsrv.WithHandler("/reserves", a.reservesHandler()),
		debugsrv.WithHandler("/reserves/ids", a.idsHandler()),
		debugsrv.WithHandler("GET /recording", a.recordingHandler()),
		debugsrv.WithHandler("POST /recording/{id}", a.recordingBeginHandler()),
		debugsrv.WithHandler("DELETE /recording/{id}", a.recordingEndHandler()),
	)
	a.registerGauges()

	ok = true
	return a, nil
}

func (a *App) Manager() *manager.Manager { return a.mgr }

func (a *App) Recording() *recording.Registry { return a.rec }

func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()

	a.notif.Start(c)
	a.sched.Start(c)
	a.debug.Start(c)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go0("reservation.initial_update", func(c context.Context) {
		if err := a.sched.RunNow(c, scheduler.JobUpdateAll); err != nil && !errors.Is(err, scheduler.ErrJobRunning) {
			a.log.Warn("initial update failed", logx.Err(err))
		}
	})

	if _, err := a.sd(sdReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	a.startWatchdog()

	a.log.Info("app started")
	return nil
}

// Stop shuts services down in reverse dependency order. Each step is
// bounded so one component cannot stall the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		a.closeStores()
		return nil
	}
	a.log.Info("stopping")
	if _, err := a.sd(sdStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("step", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step done", logx.String("step", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", 5*time.Second, a.sched.Stop)
	// Drain queued and deferred reservation work before closing the stores.
	step("manager", 10*time.Second, a.mgr.Wait)
	a.sup.Cancel()
	step("notifier", 2*time.Second, a.notif.Stop)
	step("debug", 2*time.Second, a.debug.Stop)
	step("supervisor", 2*time.Second, func(c context.Context) error {
		if err := a.sup.Wait(c); err != nil && c.Err() != nil {
			return err
		}
		return nil
	})
	a.closeStores()

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

func (a *App) closeStores() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close reservation store", logx.Err(err))
		}
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			a.log.Warn("close catalog", logx.Err(err))
		}
	}
}

func (a *App) registerJobs(cfg *config.Config) error {
	if err := a.sched.Register(scheduler.Job{
		Name: scheduler.JobUpdateAll,
		Spec: cfg.Scheduler.UpdateAll,
		Run:  a.mgr.UpdateAll,
	}); err != nil {
		return err
	}
	return a.sched.Register(scheduler.Job{
		Name:    scheduler.JobClean,
		Spec:    cfg.Scheduler.Clean,
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			if n := a.mgr.Clean(); n > 0 {
				a.log.Info("ended reservations removed", logx.Int("count", n))
			}
			// Programs stay a day past their end for lookups with includePast.
			cutoff := time.Now().Add(-24 * time.Hour).UnixMilli()
			_, err := a.catalog.PruneEnded(ctx, cutoff)
			return err
		},
	})
}

func (a *App) registerGauges() {
	if st, ok := a.bus.(eventbus.Stats); ok {
		a.metrics.CounterFunc("bus_dropped_total", "Events dropped by slow bus subscribers",
			func() float64 { return float64(st.Dropped()) })
	}
	a.metrics.GaugeFunc("lock_waiting", "Operations queued for the execution lock",
		func() float64 { return float64(a.lock.Waiting()) })
	a.metrics.GaugeFunc("recordings_active", "Programs currently recording",
		func() float64 { return float64(len(a.rec.Active())) })
	a.metrics.CounterFunc("notifier_delivered_total", "Coalesced change notifications delivered",
		func() float64 { return float64(a.notif.Stats().Delivered) })
	a.metrics.CounterFunc("notifier_failed_total", "Change notifications with a failing sink",
		func() float64 { return float64(a.notif.Stats().Failed) })
}
