package notifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"recsched/internal/eventbus"
	rtsup "recsched/internal/runtime/supervisor"
	logx "recsched/pkg/logx"

	"golang.org/x/time/rate"
)

const historyCap = 100

// Service relays bus events to sinks.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	bus     eventbus.Bus
	summary func() string
	extra   []Sink

	cfg     Config
	limiter *rate.Limiter
	sinks   []Sink

	sup   *rtsup.Supervisor
	unsub func()

	received  atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

type Option func(*Service)

// WithSummary attaches a one-line state description to every delivery.
func WithSummary(fn func() string) Option { return func(s *Service) { s.summary = fn } }

// WithSink adds a sink next to the configured ones.
func WithSink(sink Sink) Option { return func(s *Service) { s.extra = append(s.extra, sink) } }

func New(cfg Config, bus eventbus.Bus, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log: log.With(logx.Component("notifier")),
		bus: bus,
	}
	for _, o := range opts {
		o(s)
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps rate limits and sinks. Enabling or disabling takes effect on
// the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	} else {
		s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
		s.limiter.SetBurst(cfg.Burst)
	}
	sinks := []Sink{logSink{log: s.log}}
	if cfg.HookCommand != "" {
		sinks = append(sinks, hookSink{command: cfg.HookCommand, timeout: cfg.HookTimeout})
	}
	s.sinks = append(sinks, s.extra...)
}

// Start subscribes to reservation changes. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled || s.bus == nil {
		return
	}
	ch, unsub := s.bus.Subscribe(64, eventbus.TypeReservationsChanged)
	s.unsub = unsub
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("notifier.relay", func(c context.Context) error {
		if s.relay(c, ch) {
			return nil
		}
		if c.Err() != nil {
			return c.Err()
		}
		return errors.New("relay exited unexpectedly")
	})
}

// Stop unsubscribes and waits for the in-flight delivery, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, unsub := s.sup, s.unsub
	s.sup, s.unsub = nil, nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	unsub()
	return sup.Stop(ctx)
}

// Supervisor exposes task state for health output; nil when stopped.
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Service) Stats() Stats {
	return Stats{
		Received:  s.received.Load(),
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
	}
}

func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// relay returns true when the subscription channel was closed.
func (s *Service) relay(ctx context.Context, ch <-chan eventbus.Event) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-ch:
			if !ok {
				return true
			}
			s.received.Add(1)

			s.mu.Lock()
			lim := s.limiter
			s.mu.Unlock()
			if err := lim.Wait(ctx); err != nil {
				return false
			}

			// Everything that queued up while waiting folds into this delivery.
			merged, closed := 1, false
		drain:
			for {
				select {
				case _, ok := <-ch:
					if !ok {
						closed = true
						break drain
					}
					s.received.Add(1)
					merged++
				default:
					break drain
				}
			}
			s.deliver(ctx, Delivery{Type: e.Type, At: e.Time, Merged: merged})
			if closed {
				return true
			}
		}
	}
}

func (s *Service) deliver(ctx context.Context, d Delivery) {
	s.mu.Lock()
	sinks := s.sinks
	summary := s.summary
	s.mu.Unlock()
	if summary != nil {
		d.Summary = summary()
	}

	var errs []error
	for _, sink := range sinks {
		if err := sink.Deliver(ctx, d); err != nil {
			s.log.Warn("notify sink failed", logx.String("sink", sink.Name()), logx.Err(err))
			errs = append(errs, err)
		}
	}
	item := HistoryItem{At: time.Now(), Type: d.Type, Merged: d.Merged}
	if err := errors.Join(errs...); err != nil {
		s.failed.Add(1)
		item.Error = err.Error()
	} else {
		s.delivered.Add(1)
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}
