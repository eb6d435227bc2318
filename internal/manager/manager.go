// Package manager owns the authoritative reservation set.
//
// Every mutating operation runs under a priority execution lock, computes
// a new set with the conflict resolver on copies, then commits, persists
// and broadcasts the result. Readers see only committed state.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"recsched/internal/execlock"
	"recsched/internal/reservation"
	"recsched/internal/resolver"
	"recsched/internal/storage"
	"recsched/internal/tuner"
	logx "recsched/pkg/logx"
)

// Config holds the manager's tunables.
type Config struct {
	// CancelDelay is the pause before the authoritative recompute of Cancel.
	CancelDelay time.Duration
	// UpdateYield is the pause between items of UpdateAll.
	UpdateYield time.Duration
	// EncoderCount bounds encode mode indices.
	EncoderCount int
}

func (c Config) withDefaults() Config {
	if c.CancelDelay <= 0 {
		c.CancelDelay = 100 * time.Millisecond
	}
	if c.UpdateYield < 0 {
		c.UpdateYield = 0
	}
	return c
}

// Deps are the collaborators the manager cannot work without.
type Deps struct {
	Store    storage.Store
	Catalog  ProgramCatalog
	Rules    RuleStore
	Notifier Notifier
	Tuners   []tuner.Device
}

type Option func(*Manager)

func WithLock(l *execlock.Lock) Option { return func(m *Manager) { m.lock = l } }

func WithResolver(r *resolver.Resolver) Option { return func(m *Manager) { m.res = r } }

func WithRecorder(r Recorder) Option { return func(m *Manager) { m.rec = r } }

// WithClock overrides the wall clock used by Clean and manual id allocation.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

type Manager struct {
	cfg Config
	log logx.Logger

	lock     *execlock.Lock
	res      *resolver.Resolver
	store    storage.Store
	catalog  ProgramCatalog
	rules    RuleStore
	notifier Notifier
	rec      Recorder
	now      func() time.Time

	mu         sync.RWMutex
	set        *reservation.Set
	tuners     []tuner.Device
	recording  RecordingChecker
	lastManual int64
	// cleanCutoff is the highest instant Clean has pruned up to.
	cleanCutoff int64

	deferred sync.WaitGroup
}

// New loads the persisted set and returns a ready manager. A corrupted
// store is returned as storage.ErrPersistCorrupted.
func New(ctx context.Context, cfg Config, deps Deps, log logx.Logger, opts ...Option) (*Manager, error) {
	if deps.Store == nil || deps.Catalog == nil || deps.Rules == nil {
		return nil, fmt.Errorf("manager: store, catalog and rules are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		cfg:      cfg.withDefaults(),
		log:      log.With(logx.Component("reservation")),
		store:    deps.Store,
		catalog:  deps.Catalog,
		rules:    deps.Rules,
		notifier: deps.Notifier,
		tuners:   deps.Tuners,
		rec:      nopRecorder{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}
	if m.lock == nil {
		m.lock = execlock.New()
	}
	if m.res == nil {
		m.res = resolver.New(m.log)
	}

	items, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	m.set = reservation.NewSet(items)
	for _, r := range items {
		if r.IsManual() && r.ManualID > m.lastManual {
			m.lastManual = r.ManualID
		}
	}
	m.recordCounts()
	m.log.Info("reservations loaded", logx.Int("count", len(items)), logx.Int("tuners", len(m.tuners)))
	return m, nil
}

// SetTuners swaps the device pool used by subsequent resolver passes.
func (m *Manager) SetTuners(devices []tuner.Device) {
	m.mu.Lock()
	m.tuners = devices
	m.mu.Unlock()
	m.log.Info("tuners updated", logx.Int("count", len(devices)))
}

// SetRecordingChecker wires the recording coordinator after construction.
func (m *Manager) SetRecordingChecker(rc RecordingChecker) {
	m.mu.Lock()
	m.recording = rc
	m.mu.Unlock()
}

// Wait blocks until every operation queued before it, including deferred
// cancel recomputes, has finished.
func (m *Manager) Wait(ctx context.Context) error {
	return m.lock.Do(ctx, execlock.PriorityBackground, func(context.Context) error {
		// Cancel registers its deferred phase while holding the lock, so no
		// Add can race with this Wait.
		m.deferred.Wait()
		return nil
	})
}

// ---- internals ----

func (m *Manager) devices() []tuner.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tuners
}

func (m *Manager) resolve(matches []reservation.Reservation) []reservation.Reservation {
	return m.res.Resolve(matches, m.devices())
}

// update runs fn on a copy of the live set and commits the copy. The live
// set is untouched when fn or the save fails. Callers hold the execution lock.
func (m *Manager) update(ctx context.Context, fn func(s *reservation.Set) error) error {
	m.mu.RLock()
	next := reservation.NewSet(m.set.Snapshot())
	m.mu.RUnlock()
	if err := fn(next); err != nil {
		return err
	}
	return m.commit(ctx, next.Items())
}

// commit persists items, then makes them the live set. Reservations that a
// concurrent Clean pruned in the meantime stay pruned.
func (m *Manager) commit(ctx context.Context, items []reservation.Reservation) error {
	m.mu.RLock()
	items = notEndedBefore(items, m.cleanCutoff)
	m.mu.RUnlock()
	if err := m.persist(ctx, items); err != nil {
		return err
	}
	m.mu.Lock()
	m.set.Replace(notEndedBefore(items, m.cleanCutoff))
	m.mu.Unlock()
	m.recordCounts()
	return nil
}

func (m *Manager) persist(ctx context.Context, snap []reservation.Reservation) error {
	if err := m.store.Save(context.WithoutCancel(ctx), snap); err != nil {
		m.log.Error("persist reservations failed", logx.Err(err))
		return fmt.Errorf("persist reservations: %w", err)
	}
	return nil
}

func (m *Manager) recordCounts() {
	m.mu.RLock()
	var active, conflicts, skips int
	for _, r := range m.set.Items() {
		switch {
		case r.Conflict:
			conflicts++
		case r.Skip:
			skips++
		default:
			active++
		}
	}
	m.mu.RUnlock()
	m.rec.Reservations(active, conflicts, skips)
}

// nextManualID allocates a strictly increasing id based on the clock.
// Callers hold the execution lock.
func (m *Manager) nextManualID() int64 {
	id := m.now().UnixMilli()
	if id <= m.lastManual {
		id = m.lastManual + 1
	}
	m.lastManual = id
	return id
}

func (m *Manager) isRecording(programID int64) bool {
	m.mu.RLock()
	rc := m.recording
	m.mu.RUnlock()
	return rc != nil && rc.IsRecording(programID)
}

func (m *Manager) logConflicts(items []reservation.Reservation, owned func(reservation.Reservation) bool) {
	for _, r := range items {
		if !r.Conflict || !owned(r) {
			continue
		}
		m.log.Warn("reservation conflict",
			logx.ProgramID(r.Program.ID),
			logx.UnixMilli("start", r.Program.StartAt),
			logx.String("name", r.Program.Name),
		)
	}
}

func (m *Manager) observe(op string, err *error) {
	m.rec.Operation(op, *err)
}

func notEndedBefore(items []reservation.Reservation, cutoff int64) []reservation.Reservation {
	out := make([]reservation.Reservation, 0, len(items))
	for _, r := range items {
		if r.Program.EndAt >= cutoff {
			out = append(out, r)
		}
	}
	return out
}

// resetConflicts clones items with every conflict flag cleared.
func resetConflicts(items []reservation.Reservation) []reservation.Reservation {
	out := reservation.CloneAll(items)
	for i := range out {
		out[i].Conflict = false
	}
	return out
}
