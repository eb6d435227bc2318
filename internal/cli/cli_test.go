package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recsched/internal/reservation"
	"recsched/internal/storage"
	logx "recsched/pkg/logx"
)

func writeStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reserves.json")
	st, err := storage.Open(storage.Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	start := time.Date(2024, 1, 7, 20, 0, 0, 0, time.UTC).UnixMilli()
	prog := func(id int64, name string) reservation.Program {
		return reservation.Program{
			ID: id, ChannelID: 10, ChannelType: reservation.ChannelGR, Channel: "27",
			Name: name, StartAt: start + id*3600_000, EndAt: start + (id+1)*3600_000,
		}
	}
	active := reservation.NewRule(1, prog(1, "Evening News"))
	conflict := reservation.NewRule(2, prog(2, "Late Movie"))
	conflict.Conflict = true
	manual := reservation.NewManual(100, prog(3, "Documentary"))
	manual.Skip = true

	if err := st.Save(context.Background(), []reservation.Reservation{active, conflict, manual}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReservesTable(t *testing.T) {
	path := writeStore(t)

	out, err := run(t, "reserves", "--file", path)
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	for _, want := range []string{"PROGRAM", "Evening News", "Late Movie", "Documentary", "conflict", "skip", "manual", "3 of 3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "reserves", "--file", path, "--state", "conflicts")
	if err != nil {
		t.Fatalf("reserves conflicts: %v", err)
	}
	if !strings.Contains(out, "Late Movie") || strings.Contains(out, "Evening News") {
		t.Fatalf("conflict view:\n%s", out)
	}
}

func TestReservesJSON(t *testing.T) {
	path := writeStore(t)

	out, err := run(t, "reserves", "--file", path, "--state", "active", "--json")
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	var items []map[string]any
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(items) != 1 {
		t.Fatalf("active items = %d, want 1", len(items))
	}
}

func TestReservesEmptyAndBadState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	out, err := run(t, "reserves", "--file", path)
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if !strings.Contains(out, "no reservations") {
		t.Fatalf("output = %q", out)
	}

	if _, err := run(t, "reserves", "--file", path, "--state", "bogus"); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "recsched dev") {
		t.Fatalf("version = %q", out)
	}
}
