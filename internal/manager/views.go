package manager

import "recsched/internal/reservation"

// Get returns a copy of the reservation for programID.
func (m *Manager) Get(programID int64) (reservation.Reservation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Get(programID)
}

// List pages over every reservation. limit <= 0 means no limit.
func (m *Manager) List(limit, offset int) reservation.Page {
	return m.view(nil, limit, offset)
}

// ListActive pages over reservations that are neither skipped nor conflicted.
func (m *Manager) ListActive(limit, offset int) reservation.Page {
	return m.view(reservation.Active, limit, offset)
}

func (m *Manager) ListConflicts(limit, offset int) reservation.Page {
	return m.view(reservation.Conflicted, limit, offset)
}

func (m *Manager) ListSkips(limit, offset int) reservation.Page {
	return m.view(reservation.Skipped, limit, offset)
}

// AllIDs groups every program id by state.
func (m *Manager) AllIDs() reservation.IDs {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.IDs()
}

func (m *Manager) view(pred func(reservation.Reservation) bool, limit, offset int) reservation.Page {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Filter(pred, limit, offset)
}
