package reservation

import "sort"

// Set is the ordered, in-memory collection of live reservations.
// It is not safe for concurrent use; the manager guards it.
type Set struct {
	items []Reservation
}

func NewSet(items []Reservation) *Set {
	s := &Set{items: items}
	s.sortByStart()
	return s
}

func (s *Set) Len() int { return len(s.items) }

// Items returns the backing slice. Callers must not retain it across mutations.
func (s *Set) Items() []Reservation { return s.items }

// Snapshot returns a deep copy of the current items.
func (s *Set) Snapshot() []Reservation { return CloneAll(s.items) }

// Replace swaps in a committed result (already sorted by the resolver).
func (s *Set) Replace(items []Reservation) { s.items = items }

// Index returns the position of programID, or -1.
func (s *Set) Index(programID int64) int {
	for i := range s.items {
		if s.items[i].Program.ID == programID {
			return i
		}
	}
	return -1
}

// Get returns a copy of the reservation for programID.
func (s *Set) Get(programID int64) (Reservation, bool) {
	i := s.Index(programID)
	if i < 0 {
		return Reservation{}, false
	}
	return s.items[i].Clone(), true
}

// At returns a pointer to the element at i for in-place mutation.
func (s *Set) At(i int) *Reservation { return &s.items[i] }

// Insert adds r and keeps the set ordered by start instant.
func (s *Set) Insert(r Reservation) {
	s.items = append(s.items, r)
	s.sortByStart()
}

// RemoveAt deletes the element at i.
func (s *Set) RemoveAt(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
}

// Retain keeps only the reservations for which keep returns true and
// reports how many were dropped.
func (s *Set) Retain(keep func(r Reservation) bool) int {
	out := s.items[:0]
	for _, r := range s.items {
		if keep(r) {
			out = append(out, r)
		}
	}
	dropped := len(s.items) - len(out)
	for i := len(out); i < len(s.items); i++ {
		s.items[i] = Reservation{}
	}
	s.items = out
	return dropped
}

func (s *Set) sortByStart() {
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].Program.StartAt < s.items[j].Program.StartAt
	})
}

// ---- views ----

// Page is a paged slice of a filtered view together with the view's total size.
type Page struct {
	Items []Reservation
	Total int
}

// Filter returns copies of the reservations matching pred, paged by limit/offset.
// limit <= 0 returns everything from offset.
func (s *Set) Filter(pred func(r Reservation) bool, limit, offset int) Page {
	var matched []Reservation
	for _, r := range s.items {
		if pred == nil || pred(r) {
			matched = append(matched, r)
		}
	}
	return Page{Items: CloneAll(slicePage(matched, limit, offset)), Total: len(matched)}
}

func slicePage(in []Reservation, limit, offset int) []Reservation {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return nil
	}
	end := len(in)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return in[offset:end]
}

// Active excludes skip and conflict.
func Active(r Reservation) bool { return !r.Skip && !r.Conflict }

func Conflicted(r Reservation) bool { return r.Conflict }

func Skipped(r Reservation) bool { return r.Skip }

// IDItem identifies a reservation in AllIDs output.
type IDItem struct {
	ProgramID int64  `json:"programId"`
	RuleID    *int64 `json:"ruleId,omitempty"`
}

// IDs groups every program id by state. Conflict wins over skip.
type IDs struct {
	Reserves  []IDItem `json:"reserves"`
	Conflicts []IDItem `json:"conflicts"`
	Skips     []IDItem `json:"skips"`
}

func (s *Set) IDs() IDs {
	out := IDs{Reserves: []IDItem{}, Conflicts: []IDItem{}, Skips: []IDItem{}}
	for _, r := range s.items {
		it := IDItem{ProgramID: r.Program.ID}
		if r.IsRule() {
			id := r.RuleID
			it.RuleID = &id
		}
		switch {
		case r.Conflict:
			out.Conflicts = append(out.Conflicts, it)
		case r.Skip:
			out.Skips = append(out.Skips, it)
		default:
			out.Reserves = append(out.Reserves, it)
		}
	}
	return out
}
