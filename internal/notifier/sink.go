package notifier

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	logx "recsched/pkg/logx"
)

// Sink receives coalesced deliveries.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) error
}

type logSink struct{ log logx.Logger }

func (s logSink) Name() string { return "log" }

func (s logSink) Deliver(_ context.Context, d Delivery) error {
	s.log.Info("reservations changed",
		logx.String("event", d.Type),
		logx.Int("merged", d.Merged),
		logx.String("summary", d.Summary),
	)
	return nil
}

// hookSink runs a shell command with the delivery exported as environment.
type hookSink struct {
	command string
	timeout time.Duration
}

func (s hookSink) Name() string { return "hook" }

func (s hookSink) Deliver(ctx context.Context, d Delivery) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := shellCommand(ctx, s.command)
	cmd.Env = append(os.Environ(),
		"RECSCHED_EVENT="+d.Type,
		"RECSCHED_EVENT_AT="+d.At.UTC().Format(time.RFC3339),
		"RECSCHED_MERGED="+strconv.Itoa(d.Merged),
		"RECSCHED_SUMMARY="+d.Summary,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return fmt.Errorf("hook %q: %w: %s", s.command, err, msg)
		}
		return fmt.Errorf("hook %q: %w", s.command, err)
	}
	return nil
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command)
}
