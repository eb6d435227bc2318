package rule

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"recsched/internal/reservation"
)

const (
	WeekSunday = 1 << iota
	WeekMonday
	WeekTuesday
	WeekWednesday
	WeekThursday
	WeekFriday
	WeekSaturday

	WeekAll = 0x7f
)

// SearchCriteria is the catalog query derived from a rule.
type SearchCriteria struct {
	Keyword       *string
	IgnoreKeyword *string
	KeyCS         *bool
	KeyRegExp     *bool
	Title         *bool
	Description   *bool
	Extended      *bool

	GR  *bool
	BS  *bool
	CS  *bool
	SKY *bool

	Station     *int64
	Genrelv1    *int
	Genrelv2    *int
	StartTime   *int
	TimeRange   *int
	Week        int
	IsFree      *bool
	DurationMin *int
	DurationMax *int
}

// ChannelTypes returns the categories the query is limited to, or nil for
// no limit.
func (c SearchCriteria) ChannelTypes() []reservation.ChannelType {
	var out []reservation.ChannelType
	if isTrue(c.GR) {
		out = append(out, reservation.ChannelGR)
	}
	if isTrue(c.BS) {
		out = append(out, reservation.ChannelBS)
	}
	if isTrue(c.CS) {
		out = append(out, reservation.ChannelCS)
	}
	if isTrue(c.SKY) {
		out = append(out, reservation.ChannelSKY)
	}
	return out
}

// Matcher applies the criteria that are not expressible as plain column
// comparisons: keywords, weekday and time-of-day windows.
type Matcher struct {
	c   SearchCriteria
	loc *time.Location

	keyword []string
	ignore  []string
	re      *regexp.Regexp
	ignRe   *regexp.Regexp
}

// Compile validates c and prepares its text filters. loc is the zone used
// for weekday and hour checks; nil means time.Local.
func Compile(c SearchCriteria, loc *time.Location) (*Matcher, error) {
	if loc == nil {
		loc = time.Local
	}
	m := &Matcher{c: c, loc: loc}
	cs := isTrue(c.KeyCS)

	if isTrue(c.KeyRegExp) {
		var err error
		if m.re, err = compileRe(c.Keyword, cs); err != nil {
			return nil, fmt.Errorf("keyword: %w", err)
		}
		if m.ignRe, err = compileRe(c.IgnoreKeyword, cs); err != nil {
			return nil, fmt.Errorf("ignoreKeyword: %w", err)
		}
	} else {
		m.keyword = words(c.Keyword, cs)
		m.ignore = words(c.IgnoreKeyword, cs)
	}
	return m, nil
}

// Match reports whether p satisfies every criterion.
func (m *Matcher) Match(p reservation.Program) bool {
	c := m.c
	if types := c.ChannelTypes(); c.Station == nil && len(types) > 0 {
		found := false
		for _, t := range types {
			if t == p.ChannelType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.Station != nil && p.ChannelID != *c.Station {
		return false
	}
	if c.Genrelv1 != nil {
		if p.Genre1 == nil || *p.Genre1 != *c.Genrelv1 {
			return false
		}
		if c.Genrelv2 != nil && (p.Genre2 == nil || *p.Genre2 != *c.Genrelv2) {
			return false
		}
	}
	if isTrue(c.IsFree) && !p.IsFree {
		return false
	}
	secs := p.Duration() / 1000
	if c.DurationMin != nil && secs < int64(*c.DurationMin) {
		return false
	}
	if c.DurationMax != nil && secs > int64(*c.DurationMax) {
		return false
	}

	start := time.UnixMilli(p.StartAt).In(m.loc)
	if c.Week != 0 && c.Week&(1<<uint(start.Weekday())) == 0 {
		return false
	}
	if c.StartTime != nil && c.TimeRange != nil && !inHourWindow(start.Hour(), *c.StartTime, *c.TimeRange) {
		return false
	}

	text := m.target(p)
	if m.re != nil && !m.re.MatchString(text) {
		return false
	}
	if m.ignRe != nil && m.ignRe.MatchString(text) {
		return false
	}
	if len(m.keyword) > 0 || len(m.ignore) > 0 {
		if !isTrue(c.KeyCS) {
			text = strings.ToLower(text)
		}
		for _, w := range m.keyword {
			if !strings.Contains(text, w) {
				return false
			}
		}
		for _, w := range m.ignore {
			if strings.Contains(text, w) {
				return false
			}
		}
	}
	return true
}

// target joins the program fields the keywords apply to. With no field
// selected the title is searched.
func (m *Matcher) target(p reservation.Program) string {
	var parts []string
	if isTrue(m.c.Title) {
		parts = append(parts, p.Name)
	}
	if isTrue(m.c.Description) {
		parts = append(parts, p.Description)
	}
	if isTrue(m.c.Extended) {
		parts = append(parts, p.Extended)
	}
	if len(parts) == 0 {
		return p.Name
	}
	return strings.Join(parts, "\n")
}

func inHourWindow(hour, start, length int) bool {
	if length <= 0 {
		return false
	}
	if length >= 24 {
		return true
	}
	off := (hour - start + 24) % 24
	return off < length
}

func compileRe(s *string, cs bool) (*regexp.Regexp, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	expr := *s
	if !cs {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

func words(s *string, cs bool) []string {
	if s == nil {
		return nil
	}
	v := *s
	if !cs {
		v = strings.ToLower(v)
	}
	return strings.Fields(v)
}

func isTrue(b *bool) bool { return b != nil && *b }
