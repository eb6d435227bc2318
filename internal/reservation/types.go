package reservation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ChannelType is the broadcast/network category a program is received on.
type ChannelType string

const (
	ChannelGR  ChannelType = "GR"
	ChannelBS  ChannelType = "BS"
	ChannelCS  ChannelType = "CS"
	ChannelSKY ChannelType = "SKY"
)

// Valid reports whether t is one of the known categories.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelGR, ChannelBS, ChannelCS, ChannelSKY:
		return true
	}
	return false
}

// Program is the catalog entry a reservation points at.
// StartAt/EndAt are unix milliseconds.
type Program struct {
	ID          int64       `json:"id"`
	ChannelID   int64       `json:"channelId"`
	ChannelType ChannelType `json:"channelType"`
	// Channel is the physical channel (multiplex) the service is carried on.
	Channel     string `json:"channel"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Extended    string `json:"extended,omitempty"`
	Genre1      *int   `json:"genre1,omitempty"`
	Genre2      *int   `json:"genre2,omitempty"`
	StartAt     int64  `json:"startAt"`
	EndAt       int64  `json:"endAt"`
	IsFree      bool   `json:"isFree"`
}

// Duration returns the program length in milliseconds.
func (p Program) Duration() int64 { return p.EndAt - p.StartAt }

// Overlaps reports whether p and o share any instant, treating both bounds as inclusive.
func (p Program) Overlaps(o Program) bool {
	return p.StartAt <= o.EndAt && p.EndAt >= o.StartAt
}

// Option overrides where and how the recording is written.
type Option struct {
	Directory      string `json:"directory,omitempty"`
	RecordedFormat string `json:"recordedFormat,omitempty"`
}

func (o *Option) clone() *Option {
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}

// EncodeOption controls post-recording encoding.
// Mode/Directory pairs are independent; a nil Mode disables that slot.
type EncodeOption struct {
	DelTs      bool    `json:"delTs"`
	Mode1      *int    `json:"mode1,omitempty"`
	Directory1 *string `json:"directory1,omitempty"`
	Mode2      *int    `json:"mode2,omitempty"`
	Directory2 *string `json:"directory2,omitempty"`
	Mode3      *int    `json:"mode3,omitempty"`
	Directory3 *string `json:"directory3,omitempty"`
}

func (e *EncodeOption) clone() *EncodeOption {
	if e == nil {
		return nil
	}
	cp := EncodeOption{DelTs: e.DelTs}
	cp.Mode1, cp.Directory1 = cloneInt(e.Mode1), cloneStr(e.Directory1)
	cp.Mode2, cp.Directory2 = cloneInt(e.Mode2), cloneStr(e.Directory2)
	cp.Mode3, cp.Directory3 = cloneInt(e.Mode3), cloneStr(e.Directory3)
	return &cp
}

// Slot is one mode/directory pair of an EncodeOption.
type Slot struct {
	Mode      *int
	Directory *string
}

// Slots returns the three encode slots in order.
func (e EncodeOption) Slots() [3]Slot {
	return [3]Slot{
		{Mode: e.Mode1, Directory: e.Directory1},
		{Mode: e.Mode2, Directory: e.Directory2},
		{Mode: e.Mode3, Directory: e.Directory3},
	}
}

// Kind discriminates the reservation variants.
type Kind string

const (
	KindManual Kind = "manual"
	KindRule   Kind = "rule"
)

// Reservation is a scheduled intent to record one program.
//
// It is a tagged union: ManualID is meaningful only for KindManual,
// RuleID only for KindRule. Use NewManual / NewRule to build one.
type Reservation struct {
	Kind     Kind
	ManualID int64
	RuleID   int64

	Program Program

	Skip     bool
	Conflict bool

	Option       *Option
	EncodeOption *EncodeOption
}

func NewManual(manualID int64, p Program) Reservation {
	return Reservation{Kind: KindManual, ManualID: manualID, Program: p}
}

func NewRule(ruleID int64, p Program) Reservation {
	return Reservation{Kind: KindRule, RuleID: ruleID, Program: p}
}

func (r Reservation) IsManual() bool { return r.Kind == KindManual }
func (r Reservation) IsRule() bool   { return r.Kind == KindRule }

// ProgramID is the identity of the reservation.
func (r Reservation) ProgramID() int64 { return r.Program.ID }

// Clone returns a deep copy; the copy never aliases the option pointers of r.
func (r Reservation) Clone() Reservation {
	cp := r
	cp.Option = r.Option.clone()
	cp.EncodeOption = r.EncodeOption.clone()
	cp.Program.Genre1 = cloneInt(r.Program.Genre1)
	cp.Program.Genre2 = cloneInt(r.Program.Genre2)
	return cp
}

// CloneAll deep-copies a slice of reservations.
func CloneAll(in []Reservation) []Reservation {
	out := make([]Reservation, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// Less reports whether a outranks b:
// manual beats rule, manual by ascending ManualID, rule by ascending RuleID.
func Less(a, b Reservation) bool {
	return Compare(a, b) < 0
}

// Compare orders reservations by priority. It returns 0 when neither outranks the other.
func Compare(a, b Reservation) int {
	switch {
	case a.IsManual() && b.IsManual():
		return cmpInt64(a.ManualID, b.ManualID)
	case a.IsManual():
		return -1
	case b.IsManual():
		return 1
	default:
		return cmpInt64(a.RuleID, b.RuleID)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ---- persistence encoding ----

type record struct {
	Kind         Kind          `json:"kind,omitempty"`
	ManualID     *int64        `json:"manualId,omitempty"`
	RuleID       *int64        `json:"ruleId,omitempty"`
	Program      Program       `json:"program"`
	IsSkip       bool          `json:"isSkip"`
	IsConflict   bool          `json:"isConflict"`
	Option       *Option       `json:"option,omitempty"`
	EncodeOption *EncodeOption `json:"encodeOption,omitempty"`
}

var ErrUnknownKind = errors.New("reservation: unknown kind")

func (r Reservation) MarshalJSON() ([]byte, error) {
	rec := record{
		Kind:         r.Kind,
		Program:      r.Program,
		IsSkip:       r.Skip,
		IsConflict:   r.Conflict,
		Option:       r.Option,
		EncodeOption: r.EncodeOption,
	}
	switch r.Kind {
	case KindManual:
		id := r.ManualID
		rec.ManualID = &id
	case KindRule:
		id := r.RuleID
		rec.RuleID = &id
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	return json.Marshal(rec)
}

// UnmarshalJSON accepts records with an explicit kind, and older records
// that carry only manualId or ruleId.
func (r *Reservation) UnmarshalJSON(b []byte) error {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return err
	}
	kind := rec.Kind
	if kind == "" {
		switch {
		case rec.ManualID != nil:
			kind = KindManual
		case rec.RuleID != nil:
			kind = KindRule
		}
	}
	out := Reservation{
		Kind:         kind,
		Program:      rec.Program,
		Skip:         rec.IsSkip,
		Conflict:     rec.IsConflict,
		Option:       rec.Option,
		EncodeOption: rec.EncodeOption,
	}
	switch kind {
	case KindManual:
		if rec.ManualID == nil {
			return fmt.Errorf("reservation %d: manual record without manualId", rec.Program.ID)
		}
		out.ManualID = *rec.ManualID
	case KindRule:
		if rec.RuleID == nil {
			return fmt.Errorf("reservation %d: rule record without ruleId", rec.Program.ID)
		}
		out.RuleID = *rec.RuleID
	default:
		return fmt.Errorf("%w: %q (program %d)", ErrUnknownKind, kind, rec.Program.ID)
	}
	*r = out
	return nil
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
