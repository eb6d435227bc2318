package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"recsched/internal/reservation"
	rtsup "recsched/internal/runtime/supervisor"
	logx "recsched/pkg/logx"
)

type reservesResponse struct {
	Items []reservation.Reservation `json:"items"`
	Total int                       `json:"total"`
}

// reservesHandler serves GET /reserves?state=all|active|conflicts|skips&limit=&offset=.
func (a *App) reservesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		var page reservation.Page
		switch q.Get("state") {
		case "", "all":
			page = a.mgr.List(limit, offset)
		case "active":
			page = a.mgr.ListActive(limit, offset)
		case "conflicts":
			page = a.mgr.ListConflicts(limit, offset)
		case "skips":
			page = a.mgr.ListSkips(limit, offset)
		default:
			http.Error(w, fmt.Sprintf("unknown state %q", q.Get("state")), http.StatusBadRequest)
			return
		}
		if page.Items == nil {
			page.Items = []reservation.Reservation{}
		}
		writeJSON(w, reservesResponse{Items: page.Items, Total: page.Total})
	})
}

func (a *App) idsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, a.mgr.AllIDs())
	})
}

func (a *App) recordingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, a.rec.Active())
	})
}

// recordingBeginHandler serves POST /recording/{id}: the recorder reports
// that a program started recording. 409 if it already was.
func (a *App) recordingBeginHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := programIDParam(w, r)
		if !ok {
			return
		}
		if !a.rec.Begin(id, time.Now()) {
			http.Error(w, fmt.Sprintf("program %d is already recording", id), http.StatusConflict)
			return
		}
		a.log.Info("recording started", logx.ProgramID(id))
		w.WriteHeader(http.StatusCreated)
	})
}

// recordingEndHandler serves DELETE /recording/{id}.
func (a *App) recordingEndHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := programIDParam(w, r)
		if !ok {
			return
		}
		if !a.rec.End(id) {
			http.Error(w, fmt.Sprintf("program %d is not recording", id), http.StatusNotFound)
			return
		}
		a.log.Info("recording finished", logx.ProgramID(id))
		w.WriteHeader(http.StatusNoContent)
	})
}

func programIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid program id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type healthReport struct {
	Reservations counts             `json:"reservations"`
	LockHeld     bool               `json:"lock_held"`
	LockWaiting  int                `json:"lock_waiting"`
	Tasks        []rtsup.TaskStatus `json:"tasks,omitempty"`
	Jobs         any                `json:"jobs,omitempty"`
	Notifier     any                `json:"notifier"`
	Recording    int                `json:"recording"`
}

type counts struct {
	Active    int `json:"active"`
	Conflicts int `json:"conflicts"`
	Skips     int `json:"skips"`
}

func (a *App) counts() counts {
	ids := a.mgr.AllIDs()
	return counts{Active: len(ids.Reserves), Conflicts: len(ids.Conflicts), Skips: len(ids.Skips)}
}

// summary is attached to every change notification.
func (a *App) summary() string {
	c := a.counts()
	return fmt.Sprintf("active=%d conflicts=%d skips=%d", c.Active, c.Conflicts, c.Skips)
}

func (a *App) health() (any, error) {
	rep := healthReport{
		Reservations: a.counts(),
		LockHeld:     a.lock.Held(),
		LockWaiting:  a.lock.Waiting(),
		Jobs:         a.sched.Jobs(),
		Notifier:     a.notif.Stats(),
		Recording:    len(a.rec.Active()),
	}
	if a.sup != nil {
		rep.Tasks = a.sup.Tasks()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.catalog.Ping(ctx); err != nil {
		return rep, fmt.Errorf("catalog: %w", err)
	}
	return rep, nil
}
