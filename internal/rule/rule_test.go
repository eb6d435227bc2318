package rule

import (
	"context"
	"errors"
	"testing"
	"time"

	"recsched/internal/reservation"
)

func ptr[T any](v T) *T { return &v }

type fakeFinder struct {
	programs []reservation.Program
	err      error
	got      *SearchCriteria
}

func (f *fakeFinder) FindByRule(_ context.Context, c SearchCriteria) ([]reservation.Program, error) {
	f.got = &c
	return f.programs, f.err
}

func TestExpandDisabledOrMissing(t *testing.T) {
	t.Parallel()
	f := &fakeFinder{programs: []reservation.Program{{ID: 1}}}
	for _, r := range []*Rule{nil, {ID: 1, Enable: false}} {
		out, err := Expand(context.Background(), f, r, nil)
		if err != nil || len(out) != 0 {
			t.Fatalf("Expand(%v) = %v, %v", r, out, err)
		}
	}
	if f.got != nil {
		t.Fatal("catalog queried for a disabled rule")
	}
}

func TestExpandAttachesOverridesAndSkip(t *testing.T) {
	t.Parallel()
	f := &fakeFinder{programs: []reservation.Program{{ID: 1}, {ID: 2}}}
	r := &Rule{
		ID:        7,
		Enable:    true,
		Keyword:   ptr("news"),
		Week:      WeekAll,
		Directory: ptr("news"),
		DelTs:     ptr(true),
		Mode1:     ptr(0),
	}
	out, err := Expand(context.Background(), f, r, map[int64]bool{2: true})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	if f.got == nil || f.got.Keyword == nil || *f.got.Keyword != "news" || f.got.Week != WeekAll {
		t.Fatalf("criteria = %+v", f.got)
	}
	for _, c := range out {
		if !c.IsRule() || c.RuleID != 7 {
			t.Fatalf("candidate = %+v", c)
		}
		if c.Option == nil || c.Option.Directory != "news" {
			t.Fatalf("option = %+v", c.Option)
		}
		if c.EncodeOption == nil || !c.EncodeOption.DelTs || *c.EncodeOption.Mode1 != 0 {
			t.Fatalf("encode = %+v", c.EncodeOption)
		}
	}
	if out[0].Skip || !out[1].Skip {
		t.Fatalf("skip not carried: %v %v", out[0].Skip, out[1].Skip)
	}
	*out[0].EncodeOption.Mode1 = 5
	if *r.Mode1 != 0 || *out[1].EncodeOption.Mode1 != 0 {
		t.Fatal("candidates alias the rule's encode pointers")
	}
}

func TestExpandNoOverrides(t *testing.T) {
	t.Parallel()
	f := &fakeFinder{programs: []reservation.Program{{ID: 1}}}
	out, _ := Expand(context.Background(), f, &Rule{ID: 1, Enable: true}, nil)
	if out[0].Option != nil || out[0].EncodeOption != nil {
		t.Fatalf("unexpected overrides: %+v", out[0])
	}
}

func TestExpandPropagatesError(t *testing.T) {
	t.Parallel()
	boom := errors.New("db down")
	_, err := Expand(context.Background(), &fakeFinder{err: boom}, &Rule{ID: 1, Enable: true}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestMatcher(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	// 2024-01-07 is a Sunday.
	sunday21 := time.Date(2024, 1, 7, 21, 0, 0, 0, loc).UnixMilli()
	base := reservation.Program{
		ID:          1,
		ChannelID:   100,
		ChannelType: reservation.ChannelGR,
		Name:        "Evening News Special",
		Description: "weather and sports",
		Genre1:      ptr(0),
		Genre2:      ptr(2),
		StartAt:     sunday21,
		EndAt:       sunday21 + 30*60*1000,
		IsFree:      true,
	}

	tests := []struct {
		name string
		c    SearchCriteria
		want bool
	}{
		{"empty", SearchCriteria{}, true},
		{"keyword and", SearchCriteria{Keyword: ptr("news evening")}, true},
		{"keyword missing word", SearchCriteria{Keyword: ptr("news morning")}, false},
		{"keyword case sensitive", SearchCriteria{Keyword: ptr("news"), KeyCS: ptr(true)}, false},
		{"ignore keyword", SearchCriteria{Keyword: ptr("news"), IgnoreKeyword: ptr("special")}, false},
		{"description target", SearchCriteria{Keyword: ptr("weather"), Description: ptr(true)}, true},
		{"title only by default", SearchCriteria{Keyword: ptr("weather")}, false},
		{"regexp", SearchCriteria{Keyword: ptr("^evening.*special$"), KeyRegExp: ptr(true)}, true},
		{"regexp cs", SearchCriteria{Keyword: ptr("^evening"), KeyRegExp: ptr(true), KeyCS: ptr(true)}, false},
		{"type flags", SearchCriteria{BS: ptr(true)}, false},
		{"type flags include", SearchCriteria{GR: ptr(true), BS: ptr(true)}, true},
		{"station", SearchCriteria{Station: ptr(int64(100))}, true},
		{"station mismatch", SearchCriteria{Station: ptr(int64(101))}, false},
		{"genre", SearchCriteria{Genrelv1: ptr(0), Genrelv2: ptr(2)}, true},
		{"genre2 mismatch", SearchCriteria{Genrelv1: ptr(0), Genrelv2: ptr(3)}, false},
		{"week sunday", SearchCriteria{Week: WeekSunday}, true},
		{"week weekdays", SearchCriteria{Week: WeekMonday | WeekFriday}, false},
		{"time window", SearchCriteria{StartTime: ptr(20), TimeRange: ptr(2)}, true},
		{"time window wraps", SearchCriteria{StartTime: ptr(22), TimeRange: ptr(4)}, false},
		{"duration min", SearchCriteria{DurationMin: ptr(1800)}, true},
		{"duration max", SearchCriteria{DurationMax: ptr(1799)}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := Compile(tt.c, loc)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if got := m.Match(base); got != tt.want {
				t.Fatalf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompileBadRegexp(t *testing.T) {
	t.Parallel()
	if _, err := Compile(SearchCriteria{Keyword: ptr("("), KeyRegExp: ptr(true)}, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateEncode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		e    reservation.EncodeOption
		ok   bool
	}{
		{"no mode", reservation.EncodeOption{DelTs: true}, false},
		{"mode ok", reservation.EncodeOption{Mode1: ptr(1)}, true},
		{"mode out of range", reservation.EncodeOption{Mode2: ptr(2)}, false},
		{"negative mode", reservation.EncodeOption{Mode1: ptr(-1)}, false},
		{"directory without mode", reservation.EncodeOption{Mode1: ptr(0), Directory2: ptr("x")}, false},
		{"directory with mode", reservation.EncodeOption{Mode3: ptr(0), Directory3: ptr("x")}, true},
	}
	for _, tt := range tests {
		err := ValidateEncode(tt.e, 2)
		if (err == nil) != tt.ok {
			t.Fatalf("%s: err = %v", tt.name, err)
		}
	}
}
