package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recsched/internal/execlock"
	"recsched/internal/reservation"
	"recsched/internal/rule"
	logx "recsched/pkg/logx"
)

// AddRequest creates or edits a manual reservation.
// A nil Option or Encode means "none".
type AddRequest struct {
	ProgramID int64
	Option    *reservation.Option
	Encode    *reservation.EncodeOption
}

func (m *Manager) validateEncode(e *reservation.EncodeOption) error {
	if e == nil {
		return nil
	}
	if err := rule.ValidateEncode(*e, m.cfg.EncoderCount); err != nil {
		return fmt.Errorf("%w: %v", ErrEncodeOptionInvalid, err)
	}
	return nil
}

// AddReserve creates a manual reservation if it can get a tuner without
// displacing anything already scheduled.
func (m *Manager) AddReserve(ctx context.Context, req AddRequest) (err error) {
	defer m.observe("add", &err)
	if err := m.validateEncode(req.Encode); err != nil {
		m.log.Warn("add reserve rejected", logx.ProgramID(req.ProgramID), logx.Err(err))
		return err
	}

	err = m.lock.Do(ctx, execlock.PriorityUser, func(ctx context.Context) error {
		ctx = context.WithoutCancel(ctx)
		m.log.Info("add reserve", logx.ProgramID(req.ProgramID))

		p, err := m.catalog.FindByID(ctx, req.ProgramID, true)
		if err != nil {
			return fmt.Errorf("find program %d: %w", req.ProgramID, err)
		}
		if p == nil {
			return fmt.Errorf("%w: %d", ErrProgramNotFound, req.ProgramID)
		}

		cand := reservation.NewManual(0, *p)
		var overlapping []reservation.Reservation
		m.mu.RLock()
		for _, r := range m.set.Items() {
			if r.Program.ID == req.ProgramID {
				m.mu.RUnlock()
				return fmt.Errorf("%w: %d", ErrDuplicateReservation, req.ProgramID)
			}
			if !r.Conflict && !r.Skip && r.Program.Overlaps(cand.Program) {
				overlapping = append(overlapping, r.Clone())
			}
		}
		m.mu.RUnlock()

		cand.ManualID = m.nextManualID()
		cand.Option = req.Option
		cand.EncodeOption = req.Encode
		cand = cand.Clone()

		// Feasibility only: the resolved set is discarded.
		for _, r := range m.resolve(append(overlapping, cand)) {
			if r.Conflict {
				return fmt.Errorf("%w: %d", ErrNewReservationConflict, req.ProgramID)
			}
		}

		return m.update(ctx, func(s *reservation.Set) error {
			s.Insert(cand)
			return nil
		})
	})
	if err != nil {
		m.log.Warn("add reserve failed", logx.ProgramID(req.ProgramID), logx.Err(err))
		return err
	}
	m.notifier.Notify()
	m.log.Info("add reserve done", logx.ProgramID(req.ProgramID))
	return nil
}

// EditReserve replaces the output and encode overrides of a manual
// reservation. It never reruns the resolver.
func (m *Manager) EditReserve(ctx context.Context, req AddRequest) (err error) {
	defer m.observe("edit", &err)
	if err := m.validateEncode(req.Encode); err != nil {
		return err
	}

	tmp := reservation.Reservation{Option: req.Option, EncodeOption: req.Encode}.Clone()
	err = m.lock.Do(ctx, execlock.PriorityUser, func(ctx context.Context) error {
		m.log.Info("edit reserve", logx.ProgramID(req.ProgramID))
		return m.update(context.WithoutCancel(ctx), func(s *reservation.Set) error {
			i := s.Index(req.ProgramID)
			switch {
			case i < 0:
				return fmt.Errorf("%w: %d", ErrEditTargetNotFound, req.ProgramID)
			case s.At(i).IsRule():
				return fmt.Errorf("%w: %d", ErrEditTargetIsRuleReservation, req.ProgramID)
			case m.isRecording(req.ProgramID):
				return fmt.Errorf("%w: %d", ErrEditTargetIsRecording, req.ProgramID)
			}
			r := s.At(i)
			r.Option = tmp.Option
			r.EncodeOption = tmp.EncodeOption
			return nil
		})
	})
	if err != nil {
		return err
	}
	m.notifier.Notify()
	return nil
}

// Cancel removes a manual reservation or skips a rule reservation.
//
// The change is visible to readers immediately. The full recompute runs
// CancelDelay later on a separate goroutine, which keeps the execution
// lock until it has persisted and broadcast the result.
func (m *Manager) Cancel(ctx context.Context, programID int64) (err error) {
	defer m.observe("cancel", &err)
	tok, err := m.lock.Acquire(ctx, execlock.PriorityUser)
	if err != nil {
		return err
	}

	changed := false
	m.mu.Lock()
	if i := m.set.Index(programID); i >= 0 {
		r := m.set.At(i)
		if r.IsManual() {
			m.set.RemoveAt(i)
			m.log.Info("cancel reserve", logx.ProgramID(programID))
		} else {
			r.Skip = true
			r.Conflict = false
			m.log.Info("add skip", logx.ProgramID(programID))
		}
		changed = true
	}
	m.mu.Unlock()

	if !changed {
		_ = m.lock.Release(tok)
		return nil
	}

	m.deferred.Add(1)
	go m.finishCancel(tok)
	return nil
}

func (m *Manager) finishCancel(tok execlock.Token) {
	defer m.deferred.Done()
	released := false
	release := func() {
		if !released {
			released = true
			_ = m.lock.Release(tok)
		}
	}
	defer release()

	time.Sleep(m.cfg.CancelDelay)
	m.log.Debug("cancel recompute start")

	m.mu.RLock()
	matches := resetConflicts(m.set.Items())
	m.mu.RUnlock()

	if err := m.commit(context.Background(), m.resolve(matches)); err != nil {
		m.log.Error("cancel recompute persist failed", logx.Err(err))
	}
	release()
	m.notifier.Notify()
	m.log.Debug("cancel recompute done")
}

// RemoveSkip clears the skip flag of programID. For a rule reservation the
// owning rule is re-evaluated in the same critical section, so a failed
// regeneration leaves the skip in place.
func (m *Manager) RemoveSkip(ctx context.Context, programID int64) (err error) {
	defer m.observe("remove_skip", &err)
	var (
		target reservation.Reservation
		found  bool
		regen  []reservation.Reservation
	)
	err = m.lock.Do(ctx, execlock.PriorityUser, func(ctx context.Context) error {
		ctx = context.WithoutCancel(ctx)
		if target, found = m.Get(programID); !found {
			return nil
		}
		m.log.Info("remove skip", logx.ProgramID(programID))
		if target.IsRule() {
			var err error
			regen, err = m.regenerateRule(ctx, target.RuleID, programID)
			return err
		}
		return m.update(ctx, func(s *reservation.Set) error {
			if i := s.Index(programID); i >= 0 {
				s.At(i).Skip = false
			}
			return nil
		})
	})
	if err != nil || !found {
		return err
	}
	if target.IsRule() {
		ruleID := target.RuleID
		m.logConflicts(regen, func(r reservation.Reservation) bool { return r.IsRule() && r.RuleID == ruleID })
	}
	m.notifier.Notify()
	return nil
}

// UpdateRule regenerates the reservations of ruleID and recomputes
// conflicts across the whole set.
func (m *Manager) UpdateRule(ctx context.Context, ruleID int64, priority int, notify bool) (err error) {
	defer m.observe("update_rule", &err)
	var result []reservation.Reservation

	err = m.lock.Do(ctx, priority, func(ctx context.Context) error {
		var err error
		result, err = m.regenerateRule(context.WithoutCancel(ctx), ruleID, 0)
		return err
	})
	if err != nil {
		m.log.Warn("update rule failed", logx.RuleID(ruleID), logx.Err(err))
		return err
	}

	m.logConflicts(result, func(r reservation.Reservation) bool { return r.IsRule() && r.RuleID == ruleID })
	if notify {
		m.notifier.Notify()
	}
	m.log.Info("update rule done", logx.RuleID(ruleID))
	return nil
}

// regenerateRule rebuilds the reservations of ruleID and commits the
// resolved set. unskip names a program whose skip is not carried over
// (0 for none). Callers hold the execution lock.
func (m *Manager) regenerateRule(ctx context.Context, ruleID, unskip int64) ([]reservation.Reservation, error) {
	m.log.Info("update rule start", logx.RuleID(ruleID))

	ru, err := m.rules.FindByID(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("find rule %d: %w", ruleID, err)
	}

	prior := map[int64]bool{}
	var matches []reservation.Reservation
	m.mu.RLock()
	for _, r := range m.set.Items() {
		if r.Skip && r.Program.ID != unskip {
			prior[r.Program.ID] = true
		}
		if r.IsRule() && r.RuleID == ruleID {
			continue
		}
		c := r.Clone()
		c.Conflict = false
		matches = append(matches, c)
	}
	m.mu.RUnlock()

	cands, err := rule.Expand(ctx, m.catalog, ru, prior)
	if err != nil {
		return nil, err
	}
	result := m.resolve(append(matches, cands...))
	if err := m.commit(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateManual refreshes the program data of one manual reservation and
// drops it when the program has left the catalog.
func (m *Manager) UpdateManual(ctx context.Context, manualID int64) (err error) {
	defer m.observe("update_manual", &err)
	var result []reservation.Reservation

	err = m.lock.Do(ctx, execlock.PriorityBackground, func(ctx context.Context) error {
		ctx = context.WithoutCancel(ctx)

		var (
			target *reservation.Reservation
			others []reservation.Reservation
		)
		m.mu.RLock()
		for _, r := range m.set.Items() {
			if r.IsManual() && r.ManualID == manualID {
				c := r.Clone()
				target = &c
				continue
			}
			c := r.Clone()
			c.Conflict = false
			others = append(others, c)
		}
		m.mu.RUnlock()

		if target == nil {
			m.log.Warn("update manual: reservation gone", logx.Int64("manual_id", manualID))
			return nil
		}

		p, err := m.catalog.FindByID(ctx, target.Program.ID, true)
		if err != nil {
			return fmt.Errorf("find program %d: %w", target.Program.ID, err)
		}
		if p == nil {
			m.log.Info("update manual: program vanished, dropping",
				logx.Int64("manual_id", manualID), logx.ProgramID(target.Program.ID))
			return m.update(ctx, func(s *reservation.Set) error {
				s.Retain(func(r reservation.Reservation) bool { return !(r.IsManual() && r.ManualID == manualID) })
				return nil
			})
		}

		target.Program = *p
		target.Conflict = false
		result = m.resolve(append(others, target.Clone()))
		return m.commit(ctx, result)
	})
	if err != nil {
		return err
	}
	m.logConflicts(result, func(r reservation.Reservation) bool { return r.IsManual() && r.ManualID == manualID })
	return nil
}

// UpdateAll drops reservations of deleted rules, then refreshes every
// manual reservation and every rule at background priority, pausing
// between items so user operations can interleave. Item failures are
// collected and do not stop the sweep.
func (m *Manager) UpdateAll(ctx context.Context) (err error) {
	defer m.observe("update_all", &err)
	began := time.Now()
	m.log.Info("update all start")

	ids, err := m.rules.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	ruleSet := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		ruleSet[id] = struct{}{}
	}

	var manualIDs []int64
	known := func(r reservation.Reservation) bool {
		if !r.IsRule() {
			return true
		}
		_, ok := ruleSet[r.RuleID]
		return ok
	}
	err = m.lock.Do(ctx, execlock.PriorityBackground, func(ctx context.Context) error {
		dropped := 0
		m.mu.RLock()
		for _, r := range m.set.Items() {
			switch {
			case !known(r):
				dropped++
			case r.IsManual():
				manualIDs = append(manualIDs, r.ManualID)
			}
		}
		m.mu.RUnlock()
		if dropped == 0 {
			return nil
		}
		m.log.Info("dropped reservations of deleted rules", logx.Int("count", dropped))
		return m.update(context.WithoutCancel(ctx), func(s *reservation.Set) error {
			s.Retain(known)
			return nil
		})
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, id := range manualIDs {
		if err := m.yield(ctx); err != nil {
			return err
		}
		if err := m.UpdateManual(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range ids {
		if err := m.yield(ctx); err != nil {
			return err
		}
		if err := m.UpdateRule(ctx, id, execlock.PriorityBackground, false); err != nil {
			errs = append(errs, err)
		}
	}

	m.notifier.Notify()
	m.log.Info("update all done",
		logx.Int("manual", len(manualIDs)),
		logx.Int("rules", len(ids)),
		logx.Int("errors", len(errs)),
		logx.Duration("took", time.Since(began)),
	)
	return errors.Join(errs...)
}

func (m *Manager) yield(ctx context.Context) error {
	if m.cfg.UpdateYield <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.cfg.UpdateYield)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Clean drops every reservation that ended strictly before now. It does
// not take the execution lock and does not persist; the next committing
// operation writes the pruned set and keeps those reservations out even if
// it read the set before Clean ran.
func (m *Manager) Clean() int {
	now := m.now().UnixMilli()
	m.mu.Lock()
	if now > m.cleanCutoff {
		m.cleanCutoff = now
	}
	dropped := m.set.Retain(func(r reservation.Reservation) bool { return r.Program.EndAt >= now })
	m.mu.Unlock()
	if dropped > 0 {
		m.recordCounts()
		m.log.Debug("cleaned ended reservations", logx.Int("count", dropped))
	}
	return dropped
}
