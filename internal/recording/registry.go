// Package recording tracks which programs are being recorded right now.
package recording

import (
	"sort"
	"sync"
	"time"
)

// Session is one in-progress recording.
type Session struct {
	ProgramID int64
	StartedAt time.Time
}

// Registry is the in-memory set of active recordings. The zero value is
// ready to use.
type Registry struct {
	mu     sync.RWMutex
	active map[int64]Session
}

func NewRegistry() *Registry { return &Registry{} }

// Begin marks programID as recording. It reports false if it already was.
func (r *Registry) Begin(programID int64, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		r.active = map[int64]Session{}
	}
	if _, ok := r.active[programID]; ok {
		return false
	}
	r.active[programID] = Session{ProgramID: programID, StartedAt: at}
	return true
}

// End clears programID. It reports false if it was not recording.
func (r *Registry) End(programID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[programID]; !ok {
		return false
	}
	delete(r.active, programID)
	return true
}

func (r *Registry) IsRecording(programID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[programID]
	return ok
}

// Active returns the sessions ordered by start time.
func (r *Registry) Active() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.active))
	for _, s := range r.active {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ProgramID < out[j].ProgramID
	})
	return out
}
