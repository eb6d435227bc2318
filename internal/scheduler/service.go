package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "recsched/internal/runtime/supervisor"
	logx "recsched/pkg/logx"

	"github.com/robfig/cron/v3"
)

var (
	ErrUnknownJob   = errors.New("scheduler: unknown job")
	ErrDuplicateJob = errors.New("scheduler: duplicate job")
	ErrJobRunning   = errors.New("scheduler: job already running")
)

const defaultTimeout = 10 * time.Minute

type jobDef struct {
	Job
	entryID cron.EntryID

	running  atomic.Bool
	runs     atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64

	mu          sync.Mutex
	lastErr     string
	lastElapsed time.Duration
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	sup    *rtsup.Supervisor
	jobs   []*jobDef
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.Component("scheduler")),
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:    time.Local,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Register adds a job. Registering after Start schedules it immediately.
func (s *Service) Register(job Job) error {
	if strings.TrimSpace(job.Name) == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a func")
	}
	spec, err := NormalizeSpec(job.Spec)
	if err != nil {
		return fmt.Errorf("scheduler: job %s: %w", job.Name, err)
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("scheduler: job %s: %w", job.Name, err)
	}
	job.Spec = spec

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.jobs {
		if d.Name == job.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
		}
	}
	d := &jobDef{Job: job}
	s.jobs = append(s.jobs, d)
	if s.c != nil {
		return s.addCronLocked(d)
	}
	return nil
}

// Reschedule changes the spec of a registered job.
func (s *Service) Reschedule(name, spec string) error {
	norm, err := NormalizeSpec(spec)
	if err != nil {
		return fmt.Errorf("scheduler: job %s: %w", name, err)
	}
	if _, err := s.parser.Parse(norm); err != nil {
		return fmt.Errorf("scheduler: job %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.jobs {
		if d.Name != name {
			continue
		}
		if d.Spec == norm {
			return nil
		}
		d.Spec = norm
		if s.c != nil {
			s.c.Remove(d.entryID)
			return s.addCronLocked(d)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

// Apply takes a new config. A timezone change re-registers every job.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tzChanged := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c != nil && tzChanged {
		s.restartLocked()
	}
}

// Start begins triggering. It is a no-op when disabled or already started.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.restartLocked()
}

// Stop halts triggering and waits for running jobs, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	c, sup := s.c, s.sup
	s.c, s.sup = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	// Job failures are already logged; only a missed deadline matters here.
	if err := sup.Stop(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return nil
}

// RunNow executes a job synchronously, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	d := s.find(name)
	if d == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer d.running.Store(false)
	return s.execute(ctx, d)
}

func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, d := range s.jobs {
		info := JobInfo{
			Name:     d.Name,
			Spec:     d.Spec,
			Runs:     d.runs.Load(),
			Skipped:  d.skipped.Load(),
			Failures: d.failures.Load(),
			Running:  d.running.Load(),
		}
		d.mu.Lock()
		info.LastError, info.LastElapsed = d.lastErr, d.lastElapsed
		d.mu.Unlock()
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) find(name string) *jobDef {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.jobs {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// restartLocked rebuilds the cron instance. Call with s.mu held.
func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, d := range s.jobs {
		if err := s.addCronLocked(d); err != nil {
			s.log.Error("schedule rejected", logx.String("job", d.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

func (s *Service) addCronLocked(d *jobDef) error {
	sup := s.sup
	id, err := s.c.AddFunc(d.Spec, func() {
		if !d.running.CompareAndSwap(false, true) {
			d.skipped.Add(1)
			s.log.Debug("job still running; trigger skipped", logx.String("job", d.Name))
			return
		}
		sup.Go(d.Name, func(ctx context.Context) error {
			defer d.running.Store(false)
			return s.execute(ctx, d)
		})
	})
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) execute(ctx context.Context, d *jobDef) error {
	timeout := d.Timeout
	if timeout <= 0 {
		s.mu.Lock()
		timeout = s.cfg.Timeout
		s.mu.Unlock()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := d.Run(ctx)
	elapsed := time.Since(start)
	d.runs.Add(1)

	d.mu.Lock()
	d.lastElapsed = elapsed
	d.lastErr = ""
	if err != nil {
		d.lastErr = err.Error()
	}
	d.mu.Unlock()

	if err != nil {
		d.failures.Add(1)
		s.log.Warn("job failed", logx.String("job", d.Name), logx.Duration("took", elapsed), logx.Err(err))
		return err
	}
	s.log.Debug("job done", logx.String("job", d.Name), logx.Duration("took", elapsed))
	return nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
