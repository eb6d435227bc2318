package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"recsched/internal/recording"
	"recsched/internal/reservation"
	"recsched/internal/rule"
	logx "recsched/pkg/logx"
)

type sdRecorder struct {
	mu     sync.Mutex
	states []string
}

func (r *sdRecorder) notify(state string) (bool, error) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	return true, nil
}

func (r *sdRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	body := `
logging:
  level: error
reserves:
  path: ` + filepath.Join(dir, "reserves.json") + `
catalog:
  dsn: ` + filepath.Join(dir, "catalog.db") + `
tuners:
  - name: gr0
    types: [GR]
manager:
  cancel_delay: 50ms
scheduler:
  enabled: false
notifier:
  enabled: true
  rate_per_sec: 100
`
	p := filepath.Join(dir, "recsched.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func ptr[T any](v T) *T { return &v }

func TestAppLifecycle(t *testing.T) {
	dir := t.TempDir()
	sd := &sdRecorder{}
	ctx := context.Background()

	a, err := New(ctx, writeConfig(t, dir), WithSystemdNotifier(sd.notify))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now().Add(2 * time.Hour).UnixMilli()
	if err := a.catalog.UpsertProgram(ctx, reservation.Program{
		ID: 100, ChannelID: 1, ChannelType: reservation.ChannelGR, Channel: "27",
		Name: "Night News", StartAt: start, EndAt: start + 30*60*1000,
	}); err != nil {
		t.Fatal(err)
	}
	if err := a.catalog.Rules().Upsert(ctx, rule.Rule{ID: 1, Enable: true, Keyword: ptr("news"), Week: rule.WeekAll}); err != nil {
		t.Fatal(err)
	}

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for a.Manager().ListActive(0, 0).Total == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial update produced no reservation")
		}
		time.Sleep(20 * time.Millisecond)
	}

	rec := httptest.NewRecorder()
	a.reservesHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reserves?state=active", nil))
	var resp reservesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Items[0].Program.ID != 100 || resp.Items[0].RuleID != 1 {
		t.Fatalf("reserves = %+v", resp)
	}

	rec = httptest.NewRecorder()
	a.reservesHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reserves?state=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus state = %d", rec.Code)
	}

	if _, err := a.health(); err != nil {
		t.Fatalf("health: %v", err)
	}
	if got := a.summary(); got != "active=1 conflicts=0 skips=0" {
		t.Fatalf("summary = %q", got)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	states := sd.all()
	if len(states) < 2 || !strings.HasPrefix(states[0], "READY") || !strings.HasPrefix(states[len(states)-1], "STOPPING") {
		t.Fatalf("sd_notify states = %v", states)
	}

	b, err := os.ReadFile(filepath.Join(dir, "reserves.json"))
	if err != nil {
		t.Fatalf("reserves not persisted: %v", err)
	}
	if !strings.Contains(string(b), "Night News") {
		t.Fatalf("persisted reserves = %s", b)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := filepath.Join(dir, "recsched.json")
	body := `{"scheduler":{"enabled":true,"update_all":"whenever"}}`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), p); err == nil || !strings.Contains(err.Error(), "scheduler.update_all") {
		t.Fatalf("New = %v", err)
	}
}

func TestRecordingHandlers(t *testing.T) {
	a := &App{rec: recording.NewRegistry(), log: logx.Nop()}
	mux := http.NewServeMux()
	mux.Handle("GET /recording", a.recordingHandler())
	mux.Handle("POST /recording/{id}", a.recordingBeginHandler())
	mux.Handle("DELETE /recording/{id}", a.recordingEndHandler())

	do := func(method, path string) int {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}

	if got := do(http.MethodPost, "/recording/42"); got != http.StatusCreated {
		t.Fatalf("begin = %d", got)
	}
	if !a.rec.IsRecording(42) {
		t.Fatal("registry not updated")
	}
	if got := do(http.MethodPost, "/recording/42"); got != http.StatusConflict {
		t.Fatalf("second begin = %d", got)
	}
	if got := do(http.MethodPost, "/recording/abc"); got != http.StatusBadRequest {
		t.Fatalf("bad id = %d", got)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recording", nil))
	var sessions []recording.Session
	if err := json.NewDecoder(rec.Body).Decode(&sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ProgramID != 42 {
		t.Fatalf("sessions = %+v", sessions)
	}

	if got := do(http.MethodDelete, "/recording/42"); got != http.StatusNoContent {
		t.Fatalf("end = %d", got)
	}
	if got := do(http.MethodDelete, "/recording/42"); got != http.StatusNotFound {
		t.Fatalf("second end = %d", got)
	}
}
