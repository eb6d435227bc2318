package reservation

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"
)

func prog(id, start, end int64) Program {
	return Program{ID: id, ChannelType: ChannelGR, Channel: "27", StartAt: start, EndAt: end}
}

func TestComparePriorityOrder(t *testing.T) {
	t.Parallel()
	in := []Reservation{
		NewRule(7, prog(1, 0, 1)),
		NewManual(20, prog(2, 0, 1)),
		NewRule(3, prog(3, 0, 1)),
		NewManual(10, prog(4, 0, 1)),
	}
	sort.SliceStable(in, func(i, j int) bool { return Less(in[i], in[j]) })

	want := []int64{4, 2, 3, 1}
	for i, r := range in {
		if r.ProgramID() != want[i] {
			t.Fatalf("position %d: program %d, want %d", i, r.ProgramID(), want[i])
		}
	}
	if Compare(NewRule(1, prog(1, 0, 1)), NewRule(1, prog(2, 0, 1))) != 0 {
		t.Fatal("equal rule ids should compare equal")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	t.Parallel()
	mode := 1
	dir := "/enc"
	g := 3
	r := NewManual(1, prog(1, 0, 10))
	r.Program.Genre1 = &g
	r.Option = &Option{Directory: "/rec"}
	r.EncodeOption = &EncodeOption{DelTs: true, Mode1: &mode, Directory1: &dir}

	cp := r.Clone()
	cp.Option.Directory = "/other"
	*cp.EncodeOption.Mode1 = 2
	*cp.EncodeOption.Directory1 = "/changed"
	*cp.Program.Genre1 = 9

	if r.Option.Directory != "/rec" {
		t.Fatalf("option aliased: %q", r.Option.Directory)
	}
	if *r.EncodeOption.Mode1 != 1 || *r.EncodeOption.Directory1 != "/enc" {
		t.Fatal("encode option aliased")
	}
	if *r.Program.Genre1 != 3 {
		t.Fatal("genre aliased")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()
	mode := 0
	in := []Reservation{
		NewManual(1700000000000, prog(11, 1000, 2000)),
		NewRule(5, prog(12, 1500, 2500)),
	}
	in[0].Option = &Option{RecordedFormat: "%TITLE%"}
	in[1].Skip = true
	in[1].EncodeOption = &EncodeOption{Mode1: &mode}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out []Reservation
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	if !out[0].IsManual() || out[0].ManualID != 1700000000000 || out[0].Option.RecordedFormat != "%TITLE%" {
		t.Fatalf("manual record mismatch: %+v", out[0])
	}
	if !out[1].IsRule() || out[1].RuleID != 5 || !out[1].Skip || *out[1].EncodeOption.Mode1 != 0 {
		t.Fatalf("rule record mismatch: %+v", out[1])
	}
}

func TestUnmarshalLegacyRecord(t *testing.T) {
	t.Parallel()
	raw := `[{"program":{"id":1,"startAt":1,"endAt":2},"ruleId":4,"isSkip":false,"isConflict":true},
	         {"program":{"id":2,"startAt":1,"endAt":2},"manualId":99,"isSkip":false,"isConflict":false}]`
	var out []Reservation
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[0].Kind != KindRule || out[0].RuleID != 4 || !out[0].Conflict {
		t.Fatalf("legacy rule: %+v", out[0])
	}
	if out[1].Kind != KindManual || out[1].ManualID != 99 {
		t.Fatalf("legacy manual: %+v", out[1])
	}
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	var r Reservation
	err := json.Unmarshal([]byte(`{"program":{"id":1}}`), &r)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if _, err := json.Marshal(Reservation{}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("marshal err = %v, want ErrUnknownKind", err)
	}
}

func TestOverlapsInclusive(t *testing.T) {
	t.Parallel()
	a := prog(1, 1000, 2000)
	if !a.Overlaps(prog(2, 2000, 3000)) {
		t.Fatal("touching intervals count as overlapping for feasibility checks")
	}
	if a.Overlaps(prog(3, 2001, 3000)) {
		t.Fatal("disjoint intervals should not overlap")
	}
}
