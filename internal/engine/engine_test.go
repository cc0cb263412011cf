package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shopfloor/internal/config"
	"shopfloor/internal/db"
	"shopfloor/internal/domain"
	"shopfloor/internal/engine"
	"shopfloor/internal/migrate"
	"shopfloor/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	now    *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("site-1")
	eng := engine.New(conn, cfg)
	now := time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return now }
	return testEnv{Engine: eng, Ctx: context.Background(), now: &now}
}

func (env testEnv) setClock(t time.Time) {
	*env.now = t
}

func at(hour, min int) time.Time {
	return time.Date(2024, 3, 4, hour, min, 0, 0, time.UTC)
}

func TestScanClockInThenOut(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointEntrance, at(8, 0))
	if err != nil {
		t.Fatalf("clock in: %v", err)
	}
	if s.TimeIn == nil || !s.TimeIn.Equal(at(8, 0)) {
		t.Fatalf("time_in = %v, want 08:00", s.TimeIn)
	}
	if s.IsLate {
		t.Fatalf("unplanned shift must not be late")
	}
	if s.Date != "2024-03-04" {
		t.Fatalf("date = %s", s.Date)
	}

	s, err = env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointExit, at(16, 0))
	if err != nil {
		t.Fatalf("clock out: %v", err)
	}
	if s.TimeOut == nil || !s.TimeOut.Equal(at(16, 0)) {
		t.Fatalf("time_out = %v, want 16:00", s.TimeOut)
	}

	// A third scan on a completed day has no state to transition.
	_, err = env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointEntrance, at(17, 0))
	var se engine.InvalidStateError
	if !errors.As(err, &se) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestEntranceAndExitAreInterchangeable(t *testing.T) {
	env := newTestEnv(t)
	// Workers often badge out through the entrance reader: direction comes
	// from shift state, not the point type.
	if _, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointExit, at(8, 0)); err != nil {
		t.Fatalf("clock in via exit point: %v", err)
	}
	s, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointEntrance, at(16, 0))
	if err != nil {
		t.Fatalf("clock out via entrance point: %v", err)
	}
	if s.TimeOut == nil {
		t.Fatalf("expected closed shift")
	}
}

func TestClockOutBeforeClockInRejected(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointEntrance, at(8, 0)); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointExit, at(7, 0))
	var ie engine.InvalidInputError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}

func TestPlannedShiftLateness(t *testing.T) {
	planned := at(8, 0)

	t.Run("within grace", func(t *testing.T) {
		env := newTestEnv(t)
		if _, err := env.Engine.PlanShift(env.Ctx, "worker-1", "2024-03-04", &planned); err != nil {
			t.Fatalf("plan: %v", err)
		}
		s, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointEntrance, at(8, 10))
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if s.IsLate {
			t.Fatalf("08:10 with 15m grace must not be late")
		}
	})

	t.Run("past grace", func(t *testing.T) {
		env := newTestEnv(t)
		if _, err := env.Engine.PlanShift(env.Ctx, "worker-1", "2024-03-04", &planned); err != nil {
			t.Fatalf("plan: %v", err)
		}
		s, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointEntrance, at(8, 16))
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if !s.IsLate {
			t.Fatalf("08:16 with 15m grace must be late")
		}
	})
}

func TestPlanShiftConflicts(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.PlanShift(env.Ctx, "worker-1", "2024-03-05", nil); err != nil {
		t.Fatalf("plan: %v", err)
	}
	_, err := env.Engine.PlanShift(env.Ctx, "worker-1", "2024-03-05", nil)
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("duplicate plan: expected ConflictError, got %v", err)
	}
	if _, err := env.Engine.PlanShift(env.Ctx, "worker-1", "2024-03-03", nil); !errors.As(err, &ce) {
		t.Fatalf("past date: expected ConflictError, got %v", err)
	}
	if _, err := env.Engine.PlanShift(env.Ctx, "worker-1", "bad-date", nil); err == nil {
		t.Fatalf("expected date format error")
	}
}

func TestCancelPlannedShift(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.PlanShift(env.Ctx, "worker-1", "2024-03-05", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.CancelPlannedShift(env.Ctx, s.ID, "admin"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.Engine.GetShift(env.Ctx, s.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected shift gone, got %v", err)
	}

	s, err = env.Engine.PlanShift(env.Ctx, "worker-2", "2024-03-04", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ProcessScan(env.Ctx, "worker-2", domain.PointEntrance, at(8, 0)); err != nil {
		t.Fatal(err)
	}
	err = env.Engine.CancelPlannedShift(env.Ctx, s.ID, "admin")
	var se engine.InvalidStateError
	if !errors.As(err, &se) {
		t.Fatalf("started shift: expected InvalidStateError, got %v", err)
	}
}

func TestLunchStateMachine(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointEntrance, at(8, 0)); err != nil {
		t.Fatal(err)
	}

	s, err := env.Engine.StartLunch(env.Ctx, "worker-1", at(12, 0))
	if err != nil {
		t.Fatalf("start lunch: %v", err)
	}
	if s.LunchState != domain.LunchInProgress {
		t.Fatalf("lunch state = %s, want in_progress", s.LunchState)
	}

	// Clocking out mid-lunch would leave the lunch span open-ended.
	_, err = env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointExit, at(12, 15))
	var se engine.InvalidStateError
	if !errors.As(err, &se) {
		t.Fatalf("clock-out during lunch: expected InvalidStateError, got %v", err)
	}

	s, err = env.Engine.EndLunch(env.Ctx, "worker-1", at(12, 30))
	if err != nil {
		t.Fatalf("end lunch: %v", err)
	}
	if s.LunchState != domain.LunchTaken {
		t.Fatalf("lunch state = %s, want taken", s.LunchState)
	}

	if _, err := env.Engine.StartLunch(env.Ctx, "worker-1", at(13, 0)); !errors.As(err, &se) {
		t.Fatalf("second lunch: expected InvalidStateError, got %v", err)
	}
	if _, err := env.Engine.MarkNoLunch(env.Ctx, "worker-1"); !errors.As(err, &se) {
		t.Fatalf("skip after taken: expected InvalidStateError, got %v", err)
	}

	s, err = env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointExit, at(16, 0))
	if err != nil {
		t.Fatalf("clock out after lunch: %v", err)
	}
	if s.TimeOut == nil {
		t.Fatalf("expected closed shift")
	}
}

func TestLunchSkipIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointEntrance, at(8, 0)); err != nil {
		t.Fatal(err)
	}
	env.setClock(at(11, 0))
	s, err := env.Engine.MarkNoLunch(env.Ctx, "worker-1")
	if err != nil {
		t.Fatalf("skip lunch: %v", err)
	}
	if s.LunchState != domain.LunchSkipped {
		t.Fatalf("lunch state = %s, want skipped", s.LunchState)
	}
	_, err = env.Engine.StartLunch(env.Ctx, "worker-1", at(12, 0))
	var se engine.InvalidStateError
	if !errors.As(err, &se) {
		t.Fatalf("lunch after skip: expected InvalidStateError, got %v", err)
	}
}

func TestLunchScanToggles(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointEntrance, at(8, 0)); err != nil {
		t.Fatal(err)
	}
	s, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointLunch, at(12, 0))
	if err != nil {
		t.Fatalf("first lunch scan: %v", err)
	}
	if s.LunchState != domain.LunchInProgress {
		t.Fatalf("lunch state = %s, want in_progress", s.LunchState)
	}
	s, err = env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointBreakArea, at(12, 30))
	if err != nil {
		t.Fatalf("second lunch scan: %v", err)
	}
	if s.LunchState != domain.LunchTaken {
		t.Fatalf("lunch state = %s, want taken", s.LunchState)
	}
	_, err = env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointLunch, at(13, 0))
	var se engine.InvalidStateError
	if !errors.As(err, &se) {
		t.Fatalf("third lunch scan: expected InvalidStateError, got %v", err)
	}
}

func TestLunchWithoutOpenShift(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.StartLunch(env.Ctx, "worker-1", at(12, 0))
	var se engine.InvalidStateError
	if !errors.As(err, &se) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func seedTask(t *testing.T, env testEnv, norm float64) domain.Task {
	t.Helper()
	m, err := env.Engine.CreateMachine(env.Ctx, "press", norm, "admin")
	if err != nil {
		t.Fatalf("create machine: %v", err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, m.ID, "stamp covers", 10000, "admin")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	task := seedTask(t, env, 500)

	wl, err := env.Engine.StartSession(env.Ctx, "worker-1", task.ID, at(8, 0))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var ce engine.ConflictError
	if _, err := env.Engine.StartSession(env.Ctx, "worker-1", task.ID, at(8, 5)); !errors.As(err, &ce) {
		t.Fatalf("second session: expected ConflictError, got %v", err)
	}

	if _, err := env.Engine.PauseSession(env.Ctx, wl.ID, at(10, 0)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	var se engine.InvalidStateError
	if _, err := env.Engine.PauseSession(env.Ctx, wl.ID, at(10, 5)); !errors.As(err, &se) {
		t.Fatalf("double pause: expected InvalidStateError, got %v", err)
	}
	if _, err := env.Engine.EndSession(env.Ctx, wl.ID, at(10, 10), 100, 0); !errors.As(err, &se) {
		t.Fatalf("end while paused: expected InvalidStateError, got %v", err)
	}
	if _, err := env.Engine.ResumeSession(env.Ctx, wl.ID, at(10, 30)); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := env.Engine.ResumeSession(env.Ctx, wl.ID, at(10, 35)); !errors.As(err, &se) {
		t.Fatalf("double resume: expected InvalidStateError, got %v", err)
	}

	wl, err = env.Engine.EndSession(env.Ctx, wl.ID, at(12, 0), 1500, 30)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if wl.EndTime == nil || wl.QuantityProduced != 1500 || wl.DefectQuantity != 30 {
		t.Fatalf("unexpected closed log: %+v", wl)
	}

	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CompletedQuantity != 1500 || got.DefectQuantity != 30 {
		t.Fatalf("task rollup = %d/%d, want 1500/30", got.CompletedQuantity, got.DefectQuantity)
	}

	if _, err := env.Engine.EndSession(env.Ctx, wl.ID, at(13, 0), 1, 0); !errors.As(err, &se) {
		t.Fatalf("double end: expected InvalidStateError, got %v", err)
	}

	open, err := env.Engine.GetOpenSession(env.Ctx, "worker-1")
	if err != nil {
		t.Fatal(err)
	}
	if open != nil {
		t.Fatalf("expected no open session, got %+v", open)
	}
}

func TestSessionCausalOrder(t *testing.T) {
	env := newTestEnv(t)
	task := seedTask(t, env, 500)
	wl, err := env.Engine.StartSession(env.Ctx, "worker-1", task.ID, at(8, 0))
	if err != nil {
		t.Fatal(err)
	}

	var ie engine.InvalidInputError
	if _, err := env.Engine.PauseSession(env.Ctx, wl.ID, at(7, 0)); !errors.As(err, &ie) {
		t.Fatalf("pause before start: expected InvalidInputError, got %v", err)
	}
	if _, err := env.Engine.PauseSession(env.Ctx, wl.ID, at(9, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ResumeSession(env.Ctx, wl.ID, at(8, 30)); !errors.As(err, &ie) {
		t.Fatalf("resume before pause: expected InvalidInputError, got %v", err)
	}
	if _, err := env.Engine.ResumeSession(env.Ctx, wl.ID, at(9, 30)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.EndSession(env.Ctx, wl.ID, at(9, 15), 10, 0); !errors.As(err, &ie) {
		t.Fatalf("end before pause end: expected InvalidInputError, got %v", err)
	}
	if _, err := env.Engine.EndSession(env.Ctx, wl.ID, at(10, 0), -1, 0); !errors.As(err, &ie) {
		t.Fatalf("negative quantity: expected InvalidInputError, got %v", err)
	}
	if _, err := env.Engine.EndSession(env.Ctx, wl.ID, at(10, 0), 10, -1); !errors.As(err, &ie) {
		t.Fatalf("negative defects: expected InvalidInputError, got %v", err)
	}
	if _, err := env.Engine.EndSession(env.Ctx, wl.ID, at(10, 0), 10, 1); err != nil {
		t.Fatalf("end: %v", err)
	}
}

func TestStartSessionUnknownTask(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.StartSession(env.Ctx, "worker-1", "no-such-task", at(8, 0))
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScanTokenResolvesPoint(t *testing.T) {
	env := newTestEnv(t)
	point, err := env.Engine.RegisterQRPoint(env.Ctx, "gate-a", domain.PointEntrance, "North gate", "admin")
	if err != nil {
		t.Fatalf("register point: %v", err)
	}
	env.setClock(at(8, 0))
	s, got, err := env.Engine.ScanToken(env.Ctx, "worker-1", "gate-a")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got.ID != point.ID {
		t.Fatalf("resolved point %s, want %s", got.ID, point.ID)
	}
	if s.TimeIn == nil || !s.TimeIn.Equal(at(8, 0)) {
		t.Fatalf("time_in = %v, want 08:00", s.TimeIn)
	}

	if _, _, err := env.Engine.ScanToken(env.Ctx, "worker-1", "unknown"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown token: expected ErrNotFound, got %v", err)
	}
}

func TestTodayShift(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.TodayShift(env.Ctx, "worker-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	created, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointEntrance, at(8, 0))
	if err != nil {
		t.Fatal(err)
	}
	s, err := env.Engine.TodayShift(env.Ctx, "worker-1")
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if s.ID != created.ID {
		t.Fatalf("got shift %s, want %s", s.ID, created.ID)
	}
}

func TestEventLogRecordsTransitions(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointEntrance, at(8, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ProcessScan(env.Ctx, "worker-1", domain.PointExit, at(16, 0)); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "shift", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 {
		t.Fatalf("got %d shift events, want 2", len(evts))
	}
	// newest first
	if evts[0].Type != "shift.closed" || evts[1].Type != "shift.opened" {
		t.Fatalf("unexpected event order: %s, %s", evts[0].Type, evts[1].Type)
	}
}
