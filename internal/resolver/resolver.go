// Package resolver turns a candidate reservation set into the authoritative
// set, deciding which candidates can get a tuner.
//
// The algorithm is a chronological sweep: every start/end instant is an
// event, and at each event the active candidates are re-placed on the tuner
// pool in priority order. A candidate that fails to get a tuner at any event
// stays in conflict for the rest of the pass.
package resolver

import (
	"sort"
	"time"

	"recsched/internal/reservation"
	"recsched/internal/tuner"
	logx "recsched/pkg/logx"
)

// Stats summarizes one pass.
type Stats struct {
	Candidates int
	Unique     int
	Events     int
	Conflicts  int
	Took       time.Duration
}

type Option func(*Resolver)

// WithObserver installs a callback invoked after every pass.
func WithObserver(fn func(Stats)) Option {
	return func(r *Resolver) { r.observe = fn }
}

type Resolver struct {
	log     logx.Logger
	observe func(Stats)
}

func New(log logx.Logger, opts ...Option) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Resolver{log: log}
	for _, o := range opts {
		o(r)
	}
	return r
}

type event struct {
	at    int64
	start bool
	idx   int
}

// Resolve runs one pass over matches using devices. The input slice is not
// modified; the result is de-duplicated by program id, conflict-annotated
// and sorted by start instant.
//
// Devices are owned by the pass for its duration and must not be shared
// with a concurrent pass.
func (r *Resolver) Resolve(matches []reservation.Reservation, devices []tuner.Device) []reservation.Reservation {
	began := time.Now()
	cands := reservation.CloneAll(matches)

	sort.SliceStable(cands, func(i, j int) bool { return reservation.Less(cands[i], cands[j]) })

	seen := make(map[int64]struct{}, len(cands))
	events := make([]event, 0, len(cands)*2)
	for i := range cands {
		id := cands[i].Program.ID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		events = append(events,
			event{at: cands[i].Program.StartAt, start: true, idx: i},
			event{at: cands[i].Program.EndAt, start: false, idx: i},
		)
	}

	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.at != b.at {
			return a.at < b.at
		}
		if a.start != b.start {
			return !a.start
		}
		return a.idx < b.idx
	})

	active := make([]int, 0, 8)
	for _, ev := range events {
		if cands[ev.idx].Skip {
			continue
		}
		if ev.start {
			active = append(active, ev.idx)
		} else {
			active = removeIdx(active, ev.idx)
		}

		sort.SliceStable(active, func(i, j int) bool {
			return reservation.Less(cands[active[i]], cands[active[j]])
		})
		if r.log.Enabled(logx.LevelTrace) {
			r.traceActive(ev, cands, active)
		}

		for _, d := range devices {
			d.Reset()
		}
		for _, idx := range active {
			if !place(devices, cands[idx].Program) {
				cands[idx].Conflict = true
			}
		}
	}

	out := make([]reservation.Reservation, 0, len(seen))
	conflicts := 0
	for _, ev := range events {
		if !ev.start {
			continue
		}
		out = append(out, cands[ev.idx])
		if cands[ev.idx].Conflict {
			conflicts++
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Program.StartAt < out[j].Program.StartAt })

	st := Stats{
		Candidates: len(matches),
		Unique:     len(out),
		Events:     len(events),
		Conflicts:  conflicts,
		Took:       time.Since(began),
	}
	r.log.Debug("resolve pass done",
		logx.Int("candidates", st.Candidates),
		logx.Int("unique", st.Unique),
		logx.Int("conflicts", st.Conflicts),
		logx.Duration("took", st.Took),
	)
	if r.observe != nil {
		r.observe(st)
	}
	return out
}

// Resolve is a convenience wrapper for a one-off pass without logging.
func Resolve(matches []reservation.Reservation, devices []tuner.Device) []reservation.Reservation {
	return New(logx.Nop()).Resolve(matches, devices)
}

func place(devices []tuner.Device, p reservation.Program) bool {
	for _, d := range devices {
		if d.TryAccept(p) {
			return true
		}
	}
	return false
}

func removeIdx(active []int, idx int) []int {
	for i, v := range active {
		if v == idx {
			return append(active[:i], active[i+1:]...)
		}
	}
	return active
}

func (r *Resolver) traceActive(ev event, cands []reservation.Reservation, active []int) {
	ids := make([]int64, 0, len(active))
	for _, idx := range active {
		ids = append(ids, cands[idx].Program.ID)
	}
	r.log.Trace("sweep event",
		logx.Int64("at", ev.at),
		logx.Bool("start", ev.start),
		logx.ProgramID(cands[ev.idx].Program.ID),
		logx.Any("active", ids),
	)
}
