package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"shopfloor/internal/domain"
	"shopfloor/internal/events"
	"shopfloor/internal/repo"
)

// PlanShift pre-plans a shift for a calendar day. A planned shift stays
// cancellable until the first clock-in.
func (e Engine) PlanShift(ctx context.Context, actorID, date string, plannedStart *time.Time) (domain.Shift, error) {
	if actorID == "" {
		return domain.Shift{}, invalidInputf("actor_id is required")
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return domain.Shift{}, invalidInputf("date must be YYYY-MM-DD")
	}
	now := e.now()
	if date < dateOf(now) {
		return domain.Shift{}, conflictf("cannot plan a shift for past date %s", date)
	}
	if plannedStart != nil && dateOf(*plannedStart) != date {
		return domain.Shift{}, invalidInputf("planned_start %s is outside date %s", plannedStart.Format(time.RFC3339), date)
	}
	unlock := e.locks.lock(actorID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Shift{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetShiftForDate(ctx, tx, actorID, date); err == nil {
		return domain.Shift{}, conflictf("actor %s already has a shift on %s", actorID, date)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Shift{}, err
	}
	s := domain.Shift{
		ID:           uuid.New().String(),
		ActorID:      actorID,
		Date:         date,
		PlannedStart: plannedStart,
		LunchState:   domain.LunchNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Repo.InsertShift(ctx, tx, s); err != nil {
		return domain.Shift{}, err
	}
	payload := events.EventPayload{"date": date}
	if plannedStart != nil {
		payload["planned_start"] = plannedStart.UTC().Format(time.RFC3339)
	}
	if err := e.Events.Append(ctx, tx, events.ShiftPlanned, "shift", s.ID, actorID, payload); err != nil {
		return domain.Shift{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Shift{}, err
	}
	return s, nil
}

// CancelPlannedShift removes a shift that has not been started. Once the
// actor clocked in the shift is part of the attendance record and stays.
func (e Engine) CancelPlannedShift(ctx context.Context, shiftID, actorID string) error {
	s, err := e.Repo.GetShift(ctx, shiftID)
	if err != nil {
		return err
	}
	unlock := e.locks.lock(s.ActorID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s, err = e.Repo.GetShiftTx(ctx, tx, shiftID)
	if err != nil {
		return err
	}
	if !s.Planned() {
		return invalidStatef("shift %s already started; cannot cancel", shiftID)
	}
	if err := e.Repo.DeleteShift(ctx, tx, shiftID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ShiftCanceled, "shift", shiftID, actorID, events.EventPayload{"date": s.Date}); err != nil {
		return err
	}
	return tx.Commit()
}

// ProcessScan is the sole entry point for attendance scans. Whether an
// entrance/exit scan means clock-in or clock-out is a function of the actor's
// current shift state, not of the point type alone:
//
//	open shift (any date)            -> clock-out
//	no open shift, day not started   -> clock-in (creates the shift if unplanned)
//	no open shift, day completed     -> reject
//
// Lunch and break-area scans toggle the lunch sub-state of the open shift.
// Clock-out while lunch is in progress is rejected; the lunch period must be
// ended (or the shift marked no-lunch) first.
func (e Engine) ProcessScan(ctx context.Context, actorID string, pointType domain.QRPointType, at time.Time) (domain.Shift, error) {
	if actorID == "" {
		return domain.Shift{}, invalidInputf("actor_id is required")
	}
	at = at.UTC()
	switch pointType {
	case domain.PointEntrance, domain.PointExit:
		return e.entranceScan(ctx, actorID, at)
	case domain.PointLunch, domain.PointBreakArea:
		return e.lunchScan(ctx, actorID, at)
	default:
		return domain.Shift{}, invalidInputf("unknown point type %q", pointType)
	}
}

func (e Engine) entranceScan(ctx context.Context, actorID string, at time.Time) (domain.Shift, error) {
	unlock := e.locks.lock(actorID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Shift{}, err
	}
	defer tx.Rollback()

	if open, err := e.Repo.GetOpenShift(ctx, tx, actorID); err == nil {
		s, err := e.clockOut(ctx, tx, open, actorID, at)
		if err != nil {
			return domain.Shift{}, err
		}
		return s, tx.Commit()
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Shift{}, err
	}

	date := dateOf(at)
	s, err := e.Repo.GetShiftForDate(ctx, tx, actorID, date)
	switch {
	case err == nil:
		if s.TimeOut != nil {
			return domain.Shift{}, invalidStatef("shift for %s already completed today", actorID)
		}
		// planned shift, first scan of the day
	case errors.Is(err, repo.ErrNotFound):
		s = domain.Shift{
			ID:         uuid.New().String(),
			ActorID:    actorID,
			Date:       date,
			LunchState: domain.LunchNone,
			CreatedAt:  at,
		}
		if err := e.Repo.InsertShift(ctx, tx, s); err != nil {
			return domain.Shift{}, err
		}
	default:
		return domain.Shift{}, err
	}

	s.TimeIn = &at
	s.IsLate = s.PlannedStart != nil && at.After(s.PlannedStart.Add(e.lateGrace()))
	s.UpdatedAt = at
	if err := e.Repo.UpdateShift(ctx, tx, s); err != nil {
		return domain.Shift{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ShiftOpened, "shift", s.ID, actorID, events.EventPayload{
		"time_in": at.Format(time.RFC3339),
		"is_late": s.IsLate,
	}); err != nil {
		return domain.Shift{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Shift{}, err
	}
	return s, nil
}

func (e Engine) clockOut(ctx context.Context, tx *sql.Tx, s domain.Shift, actorID string, at time.Time) (domain.Shift, error) {
	if s.LunchState == domain.LunchInProgress {
		return domain.Shift{}, invalidStatef("lunch still in progress; end lunch before clocking out")
	}
	if at.Before(*s.TimeIn) {
		return domain.Shift{}, invalidInputf("clock-out %s precedes clock-in %s", at.Format(time.RFC3339), s.TimeIn.Format(time.RFC3339))
	}
	if s.LunchEnd != nil && at.Before(*s.LunchEnd) {
		return domain.Shift{}, invalidInputf("clock-out precedes lunch end")
	}
	s.TimeOut = &at
	s.UpdatedAt = at
	if err := e.Repo.UpdateShift(ctx, tx, s); err != nil {
		return domain.Shift{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ShiftClosed, "shift", s.ID, actorID, events.EventPayload{
		"time_out": at.Format(time.RFC3339),
	}); err != nil {
		return domain.Shift{}, err
	}
	return s, nil
}

func (e Engine) lunchScan(ctx context.Context, actorID string, at time.Time) (domain.Shift, error) {
	unlock := e.locks.lock(actorID)
	defer unlock()
	return e.lunchTransition(ctx, actorID, at, lunchToggle)
}

type lunchAction int

const (
	lunchToggle lunchAction = iota
	lunchStart
	lunchEnd
	lunchSkip
)

// StartLunch opens the lunch period of the actor's open shift.
func (e Engine) StartLunch(ctx context.Context, actorID string, at time.Time) (domain.Shift, error) {
	unlock := e.locks.lock(actorID)
	defer unlock()
	return e.lunchTransition(ctx, actorID, at.UTC(), lunchStart)
}

// EndLunch closes an in-progress lunch period.
func (e Engine) EndLunch(ctx context.Context, actorID string, at time.Time) (domain.Shift, error) {
	unlock := e.locks.lock(actorID)
	defer unlock()
	return e.lunchTransition(ctx, actorID, at.UTC(), lunchEnd)
}

// MarkNoLunch records that the actor is deliberately skipping lunch today.
// Terminal: a skipped lunch cannot be started afterwards.
func (e Engine) MarkNoLunch(ctx context.Context, actorID string) (domain.Shift, error) {
	unlock := e.locks.lock(actorID)
	defer unlock()
	return e.lunchTransition(ctx, actorID, e.now(), lunchSkip)
}

// lunchTransition drives the lunch sub-state machine:
// none -> in_progress -> taken, or none -> skipped.
func (e Engine) lunchTransition(ctx context.Context, actorID string, at time.Time, action lunchAction) (domain.Shift, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Shift{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetOpenShift(ctx, tx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Shift{}, invalidStatef("no open shift for actor %s", actorID)
	}
	if err != nil {
		return domain.Shift{}, err
	}

	if action == lunchToggle {
		switch s.LunchState {
		case domain.LunchNone:
			action = lunchStart
		case domain.LunchInProgress:
			action = lunchEnd
		default:
			return domain.Shift{}, invalidStatef("lunch already %s today", s.LunchState)
		}
	}

	evtType := ""
	payload := events.EventPayload{}
	switch action {
	case lunchStart:
		if s.LunchState != domain.LunchNone {
			return domain.Shift{}, invalidStatef("lunch already %s today", s.LunchState)
		}
		if at.Before(*s.TimeIn) {
			return domain.Shift{}, invalidInputf("lunch start precedes clock-in")
		}
		s.LunchState = domain.LunchInProgress
		s.LunchStart = &at
		evtType = events.LunchStarted
		payload["lunch_start"] = at.Format(time.RFC3339)
	case lunchEnd:
		if s.LunchState != domain.LunchInProgress {
			return domain.Shift{}, invalidStatef("lunch not in progress")
		}
		if at.Before(*s.LunchStart) {
			return domain.Shift{}, invalidInputf("lunch end %s precedes lunch start %s", at.Format(time.RFC3339), s.LunchStart.Format(time.RFC3339))
		}
		s.LunchState = domain.LunchTaken
		s.LunchEnd = &at
		evtType = events.LunchEnded
		payload["lunch_end"] = at.Format(time.RFC3339)
	case lunchSkip:
		if s.LunchState != domain.LunchNone {
			return domain.Shift{}, invalidStatef("lunch already %s today", s.LunchState)
		}
		s.LunchState = domain.LunchSkipped
		evtType = events.LunchSkipped
	}
	s.UpdatedAt = at
	if err := e.Repo.UpdateShift(ctx, tx, s); err != nil {
		return domain.Shift{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, "shift", s.ID, actorID, payload); err != nil {
		return domain.Shift{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Shift{}, err
	}
	return s, nil
}

// GetShift returns a shift by id.
func (e Engine) GetShift(ctx context.Context, shiftID string) (domain.Shift, error) {
	return e.Repo.GetShift(ctx, shiftID)
}

// TodayShift returns the actor's shift for the current calendar day.
func (e Engine) TodayShift(ctx context.Context, actorID string) (domain.Shift, error) {
	date := dateOf(e.now())
	shifts, err := e.Repo.ListShifts(ctx, repo.ShiftFilters{ActorID: actorID, DateFrom: date, DateTo: date})
	if err != nil {
		return domain.Shift{}, err
	}
	if len(shifts) == 0 {
		return domain.Shift{}, repo.ErrNotFound
	}
	return shifts[0], nil
}

// ListShiftsForWindow lists shifts in a calendar-day window, optionally for
// one actor.
func (e Engine) ListShiftsForWindow(ctx context.Context, actorID, dateFrom, dateTo string) ([]domain.Shift, error) {
	for _, d := range []string{dateFrom, dateTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, invalidInputf("date must be YYYY-MM-DD")
		}
	}
	return e.Repo.ListShifts(ctx, repo.ShiftFilters{ActorID: actorID, DateFrom: dateFrom, DateTo: dateTo})
}
