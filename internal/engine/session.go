package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shopfloor/internal/domain"
	"shopfloor/internal/events"
	"shopfloor/internal/repo"
)

// StartSession opens a work log for the actor against a task. An actor holds
// at most one open session globally, across all tasks.
func (e Engine) StartSession(ctx context.Context, actorID, taskID string, at time.Time) (domain.WorkLog, error) {
	if actorID == "" {
		return domain.WorkLog{}, invalidInputf("actor_id is required")
	}
	at = at.UTC()
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return domain.WorkLog{}, err
	}
	unlock := e.locks.lock(actorID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkLog{}, err
	}
	defer tx.Rollback()

	if open, err := e.Repo.GetOpenWorkLogTx(ctx, tx, actorID); err == nil {
		return domain.WorkLog{}, conflictf("actor %s already has an open session on task %s", actorID, open.TaskID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.WorkLog{}, err
	}

	w := domain.WorkLog{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		TaskID:    taskID,
		StartTime: at,
	}
	if err := e.Repo.InsertWorkLog(ctx, tx, w); err != nil {
		return domain.WorkLog{}, err
	}
	if err := e.Events.Append(ctx, tx, events.SessionStarted, "work_log", w.ID, actorID, events.EventPayload{
		"task_id":    taskID,
		"start_time": at.Format(time.RFC3339),
	}); err != nil {
		return domain.WorkLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkLog{}, err
	}
	return w, nil
}

// PauseSession opens a pause on a running session.
func (e Engine) PauseSession(ctx context.Context, workLogID string, at time.Time) (domain.WorkLog, error) {
	at = at.UTC()
	w, err := e.Repo.GetWorkLog(ctx, workLogID)
	if err != nil {
		return domain.WorkLog{}, err
	}
	unlock := e.locks.lock(w.ActorID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkLog{}, err
	}
	defer tx.Rollback()

	w, err = e.Repo.GetWorkLogTx(ctx, tx, workLogID)
	if err != nil {
		return domain.WorkLog{}, err
	}
	if w.Closed() {
		return domain.WorkLog{}, invalidStatef("session %s already ended", workLogID)
	}
	if w.OpenPause() != nil {
		return domain.WorkLog{}, invalidStatef("session %s already paused", workLogID)
	}
	if at.Before(w.StartTime) {
		return domain.WorkLog{}, invalidInputf("pause start precedes session start")
	}
	if n := len(w.Pauses); n > 0 {
		last := w.Pauses[n-1]
		if last.PauseEnd != nil && at.Before(*last.PauseEnd) {
			return domain.WorkLog{}, invalidInputf("pause start precedes previous pause end")
		}
	}
	p := domain.WorkLogPause{
		ID:         uuid.New().String(),
		WorkLogID:  w.ID,
		PauseStart: at,
	}
	if err := e.Repo.InsertPause(ctx, tx, p); err != nil {
		return domain.WorkLog{}, err
	}
	if err := e.Events.Append(ctx, tx, events.SessionPaused, "work_log", w.ID, w.ActorID, events.EventPayload{
		"pause_start": at.Format(time.RFC3339),
	}); err != nil {
		return domain.WorkLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkLog{}, err
	}
	w.Pauses = append(w.Pauses, p)
	return w, nil
}

// ResumeSession closes the open pause.
func (e Engine) ResumeSession(ctx context.Context, workLogID string, at time.Time) (domain.WorkLog, error) {
	at = at.UTC()
	w, err := e.Repo.GetWorkLog(ctx, workLogID)
	if err != nil {
		return domain.WorkLog{}, err
	}
	unlock := e.locks.lock(w.ActorID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkLog{}, err
	}
	defer tx.Rollback()

	w, err = e.Repo.GetWorkLogTx(ctx, tx, workLogID)
	if err != nil {
		return domain.WorkLog{}, err
	}
	open := w.OpenPause()
	if open == nil {
		return domain.WorkLog{}, invalidStatef("session %s has no open pause", workLogID)
	}
	if at.Before(open.PauseStart) {
		return domain.WorkLog{}, invalidInputf("resume %s precedes pause start %s", at.Format(time.RFC3339), open.PauseStart.Format(time.RFC3339))
	}
	open.PauseEnd = &at
	if err := e.Repo.ClosePause(ctx, tx, *open); err != nil {
		return domain.WorkLog{}, err
	}
	if err := e.Events.Append(ctx, tx, events.SessionResumed, "work_log", w.ID, w.ActorID, events.EventPayload{
		"pause_end": at.Format(time.RFC3339),
	}); err != nil {
		return domain.WorkLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkLog{}, err
	}
	return w, nil
}

// EndSession closes a work log and pushes the produced quantities to the
// owning task in the same transaction. Dangling pauses are never reconciled
// implicitly: the caller must resume first.
func (e Engine) EndSession(ctx context.Context, workLogID string, at time.Time, quantityProduced, defectQuantity int) (domain.WorkLog, error) {
	at = at.UTC()
	if quantityProduced < 0 {
		return domain.WorkLog{}, invalidInputf("quantity_produced must be >= 0")
	}
	if defectQuantity < 0 {
		return domain.WorkLog{}, invalidInputf("defect_quantity must be >= 0")
	}
	w, err := e.Repo.GetWorkLog(ctx, workLogID)
	if err != nil {
		return domain.WorkLog{}, err
	}
	unlock := e.locks.lock(w.ActorID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkLog{}, err
	}
	defer tx.Rollback()

	w, err = e.Repo.GetWorkLogTx(ctx, tx, workLogID)
	if err != nil {
		return domain.WorkLog{}, err
	}
	if w.Closed() {
		return domain.WorkLog{}, invalidStatef("session %s already ended", workLogID)
	}
	if w.OpenPause() != nil {
		return domain.WorkLog{}, invalidStatef("session %s has an open pause; resume before ending", workLogID)
	}
	if at.Before(w.StartTime) {
		return domain.WorkLog{}, invalidInputf("end %s precedes start %s", at.Format(time.RFC3339), w.StartTime.Format(time.RFC3339))
	}
	if n := len(w.Pauses); n > 0 && at.Before(*w.Pauses[n-1].PauseEnd) {
		return domain.WorkLog{}, invalidInputf("end precedes last pause end")
	}
	w.EndTime = &at
	w.QuantityProduced = quantityProduced
	w.DefectQuantity = defectQuantity
	if w.NetDuration(at) < 0 {
		// Pause rows summing past the session span cannot arise through this
		// API; reaching here means the stored data is corrupt.
		return domain.WorkLog{}, fmt.Errorf("work log %s: pause total exceeds session span", workLogID)
	}
	if err := e.Repo.CloseWorkLog(ctx, tx, w); err != nil {
		return domain.WorkLog{}, err
	}
	if err := e.Repo.AddTaskQuantities(ctx, tx, w.TaskID, quantityProduced, defectQuantity); err != nil {
		return domain.WorkLog{}, err
	}
	if err := e.Events.Append(ctx, tx, events.SessionCompleted, "work_log", w.ID, w.ActorID, events.EventPayload{
		"task_id":           w.TaskID,
		"end_time":          at.Format(time.RFC3339),
		"quantity_produced": quantityProduced,
		"defect_quantity":   defectQuantity,
	}); err != nil {
		return domain.WorkLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkLog{}, err
	}
	return w, nil
}

// GetOpenSession returns the actor's open work log, or nil when none exists.
// Read-only and idempotent; used by clients to restore UI state.
func (e Engine) GetOpenSession(ctx context.Context, actorID string) (*domain.WorkLog, error) {
	w, err := e.Repo.GetOpenWorkLog(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetSession returns a work log with its pauses.
func (e Engine) GetSession(ctx context.Context, workLogID string) (domain.WorkLog, error) {
	return e.Repo.GetWorkLog(ctx, workLogID)
}
