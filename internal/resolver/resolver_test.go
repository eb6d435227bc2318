package resolver

import (
	"strconv"
	"testing"

	"recsched/internal/reservation"
	"recsched/internal/tuner"
	logx "recsched/pkg/logx"
)

func gr(id, start, end int64) reservation.Program {
	// Every program on its own multiplex unless a test says otherwise.
	return reservation.Program{
		ID:          id,
		ChannelType: reservation.ChannelGR,
		Channel:     "ch" + strconv.FormatInt(id, 10),
		StartAt:     start,
		EndAt:       end,
	}
}

func grTuners(n int) []tuner.Device {
	cfgs := make([]tuner.Config, n)
	for i := range cfgs {
		cfgs[i] = tuner.Config{Types: []reservation.ChannelType{reservation.ChannelGR}}
	}
	return tuner.Pool(cfgs)
}

func byID(out []reservation.Reservation) map[int64]reservation.Reservation {
	m := make(map[int64]reservation.Reservation, len(out))
	for _, r := range out {
		m[r.Program.ID] = r
	}
	return m
}

func TestManualBeatsRule(t *testing.T) {
	t.Parallel()
	in := []reservation.Reservation{
		reservation.NewRule(1, gr(100, 1000, 2000)),
		reservation.NewManual(5, gr(200, 1500, 2500)),
	}
	out := byID(Resolve(in, grTuners(1)))
	if out[200].Conflict {
		t.Fatal("manual reservation should not conflict")
	}
	if !out[100].Conflict {
		t.Fatal("rule reservation should conflict")
	}
}

func TestManualOrderByManualID(t *testing.T) {
	t.Parallel()
	in := []reservation.Reservation{
		reservation.NewManual(30, gr(3, 1700, 2200)),
		reservation.NewManual(10, gr(1, 1000, 3000)),
		reservation.NewManual(20, gr(2, 1500, 2500)),
	}
	out := byID(Resolve(in, grTuners(2)))
	if out[1].Conflict || out[2].Conflict {
		t.Fatalf("ids 10/20 should fit: %+v %+v", out[1], out[2])
	}
	if !out[3].Conflict {
		t.Fatal("id 30 should conflict")
	}
}

func TestPeakOverlapBoundedByTunerCount(t *testing.T) {
	t.Parallel()
	for n := 1; n <= 4; n++ {
		var in []reservation.Reservation
		for i := int64(0); i < 6; i++ {
			// Rules with descending ids so input order differs from priority order.
			in = append(in, reservation.NewRule(10-i, gr(i, 1000+i*10, 5000-i*10)))
		}
		out := Resolve(in, grTuners(n))
		ok := 0
		for _, r := range out {
			if !r.Conflict {
				ok++
				if r.RuleID > int64(4+n) {
					t.Fatalf("n=%d: rule %d won a tuner over higher-priority rules", n, r.RuleID)
				}
			}
		}
		if ok != n {
			t.Fatalf("n=%d: %d non-conflict, want %d", n, ok, n)
		}
	}
}

func TestBackToBackDoesNotConflict(t *testing.T) {
	t.Parallel()
	in := []reservation.Reservation{
		reservation.NewRule(1, gr(1, 1000, 2000)),
		reservation.NewRule(2, gr(2, 2000, 3000)),
	}
	for _, r := range Resolve(in, grTuners(1)) {
		if r.Conflict {
			t.Fatalf("program %d conflicts at shared boundary", r.Program.ID)
		}
	}
}

func TestConflictIsSticky(t *testing.T) {
	t.Parallel()
	in := []reservation.Reservation{
		reservation.NewManual(1, gr(1, 1000, 2000)),
		reservation.NewRule(1, gr(2, 1500, 6000)),
	}
	out := byID(Resolve(in, grTuners(1)))
	if !out[2].Conflict {
		t.Fatal("rule reservation should stay conflicted after the manual one ends")
	}
}

func TestDedupKeepsHigherPriority(t *testing.T) {
	t.Parallel()
	in := []reservation.Reservation{
		reservation.NewRule(3, gr(1, 1000, 2000)),
		reservation.NewManual(9, gr(1, 1000, 2000)),
		reservation.NewRule(1, gr(1, 1000, 2000)),
	}
	out := Resolve(in, grTuners(1))
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if !out[0].IsManual() || out[0].ManualID != 9 {
		t.Fatalf("survivor = %+v, want manual 9", out[0])
	}
}

func TestSkipIsImmuneAndPassedThrough(t *testing.T) {
	t.Parallel()
	skipped := reservation.NewManual(1, gr(1, 1000, 2000))
	skipped.Skip = true
	in := []reservation.Reservation{
		skipped,
		reservation.NewRule(1, gr(2, 1000, 2000)),
	}
	out := byID(Resolve(in, grTuners(1)))
	if !out[1].Skip || out[1].Conflict {
		t.Fatalf("skip candidate = %+v", out[1])
	}
	if out[2].Conflict {
		t.Fatal("skip candidate must not consume a tuner")
	}
}

func TestCapabilityMismatchConflicts(t *testing.T) {
	t.Parallel()
	bs := gr(1, 1000, 2000)
	bs.ChannelType = reservation.ChannelBS
	out := Resolve([]reservation.Reservation{reservation.NewManual(1, bs)}, grTuners(2))
	if !out[0].Conflict {
		t.Fatal("BS program should conflict on GR-only tuners")
	}
}

func TestSameMultiplexSharesTuner(t *testing.T) {
	t.Parallel()
	a := gr(1, 1000, 2000)
	b := gr(2, 1000, 2000)
	a.Channel, b.Channel = "27", "27"
	out := Resolve([]reservation.Reservation{
		reservation.NewRule(1, a),
		reservation.NewRule(2, b),
	}, grTuners(1))
	for _, r := range out {
		if r.Conflict {
			t.Fatalf("program %d conflicts although both share a multiplex", r.Program.ID)
		}
	}
}

func TestOutputSortedAndInputUntouched(t *testing.T) {
	t.Parallel()
	in := []reservation.Reservation{
		reservation.NewRule(1, gr(1, 3000, 4000)),
		reservation.NewRule(1, gr(2, 1000, 5000)),
		reservation.NewRule(2, gr(3, 2000, 2500)),
	}
	var stats Stats
	r := New(logx.Nop(), WithObserver(func(s Stats) { stats = s }))
	out := r.Resolve(in, grTuners(1))
	for i := 1; i < len(out); i++ {
		if out[i-1].Program.StartAt > out[i].Program.StartAt {
			t.Fatal("output not sorted by start")
		}
	}
	for _, c := range in {
		if c.Conflict {
			t.Fatal("input slice was mutated")
		}
	}
	if stats.Unique != 3 || stats.Events != 6 || stats.Conflicts != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}
