// Package tuner models the fixed inventory of tuning devices used by the
// conflict resolver.
package tuner

import (
	"fmt"
	"strings"

	"recsched/internal/reservation"
)

// Device is the resolver's view of one tuning device.
//
// Reset clears the per-event working set; TryAccept places p on the device
// if it can receive it alongside whatever the device already holds.
type Device interface {
	Reset()
	TryAccept(p reservation.Program) bool
}

// Config describes one physical device.
type Config struct {
	Name  string
	Types []reservation.ChannelType
}

// Tuner is a device that can receive one physical channel (multiplex) at a
// time. Several programs share it only when they are on the same channel.
type Tuner struct {
	name  string
	types map[reservation.ChannelType]struct{}

	held []reservation.Program
}

func New(cfg Config) *Tuner {
	t := &Tuner{name: cfg.Name, types: make(map[reservation.ChannelType]struct{}, len(cfg.Types))}
	for _, ct := range cfg.Types {
		t.types[ct] = struct{}{}
	}
	return t
}

func (t *Tuner) Name() string { return t.name }

// Supports reports whether the device can receive ct at all.
func (t *Tuner) Supports(ct reservation.ChannelType) bool {
	_, ok := t.types[ct]
	return ok
}

func (t *Tuner) Reset() { t.held = t.held[:0] }

func (t *Tuner) TryAccept(p reservation.Program) bool {
	if !t.Supports(p.ChannelType) {
		return false
	}
	if len(t.held) == 0 || t.held[0].Channel == p.Channel {
		t.held = append(t.held, p)
		return true
	}
	return false
}

// Held returns the number of programs placed since the last Reset.
func (t *Tuner) Held() int { return len(t.held) }

func (t *Tuner) String() string {
	types := make([]string, 0, len(t.types))
	for _, ct := range []reservation.ChannelType{reservation.ChannelGR, reservation.ChannelBS, reservation.ChannelCS, reservation.ChannelSKY} {
		if t.Supports(ct) {
			types = append(types, string(ct))
		}
	}
	return fmt.Sprintf("%s[%s]", t.name, strings.Join(types, ","))
}

// Pool builds a device list from configs, preserving order: the resolver
// tries devices first to last.
func Pool(cfgs []Config) []Device {
	out := make([]Device, 0, len(cfgs))
	for i, c := range cfgs {
		if strings.TrimSpace(c.Name) == "" {
			c.Name = fmt.Sprintf("tuner%d", i)
		}
		out = append(out, New(c))
	}
	return out
}

// ParseTypes converts configured type names into channel types.
func ParseTypes(raw []string) ([]reservation.ChannelType, error) {
	out := make([]reservation.ChannelType, 0, len(raw))
	for _, s := range raw {
		ct := reservation.ChannelType(strings.ToUpper(strings.TrimSpace(s)))
		if !ct.Valid() {
			return nil, fmt.Errorf("unknown channel type %q", s)
		}
		out = append(out, ct)
	}
	return out, nil
}
