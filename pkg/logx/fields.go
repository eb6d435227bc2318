package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// Field mutates a zerolog event. Later fields win on duplicate keys.
type Field func(e *zerolog.Event)

func String(k, v string) Field          { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field         { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field     { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Bool(k string, v bool) Field       { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Float64(k string, v float64) Field { return func(e *zerolog.Event) { e.Float64(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }

// UnixMilli logs a program timestamp (epoch milliseconds) as a time.
func UnixMilli(k string, ms int64) Field {
	return func(e *zerolog.Event) { e.Time(k, time.UnixMilli(ms)) }
}

func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Component tags every line of a derived logger with the subsystem name.
func Component(name string) Field { return String("comp", name) }

func ProgramID(id int64) Field { return Int64("program_id", id) }

func RuleID(id int64) Field { return Int64("rule_id", id) }

// Stack attaches a goroutine stack; empty stacks are omitted.
func Stack(stack []byte) Field {
	return func(e *zerolog.Event) {
		if len(stack) > 0 {
			e.Bytes("stack", stack)
		}
	}
}
