package engine_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"shopfloor/internal/engine"
	"shopfloor/internal/repo"
)

// runSession drives a full start/end cycle with an optional pause.
func runSession(t *testing.T, env testEnv, actorID, taskID string, start, end time.Time, pause [2]time.Time, produced, defects int) {
	t.Helper()
	wl, err := env.Engine.StartSession(env.Ctx, actorID, taskID, start)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if !pause[0].IsZero() {
		if _, err := env.Engine.PauseSession(env.Ctx, wl.ID, pause[0]); err != nil {
			t.Fatalf("pause: %v", err)
		}
		if _, err := env.Engine.ResumeSession(env.Ctx, wl.ID, pause[1]); err != nil {
			t.Fatalf("resume: %v", err)
		}
	}
	if _, err := env.Engine.EndSession(env.Ctx, wl.ID, end, produced, defects); err != nil {
		t.Fatalf("end session: %v", err)
	}
}

func TestActorEfficiencyWithPause(t *testing.T) {
	env := newTestEnv(t)
	task := seedTask(t, env, 500)

	// 08:00-10:00 with a 30-minute pause: 1.5 net hours, expected 750.
	runSession(t, env, "worker-1", task.ID, at(8, 0), at(10, 0), [2]time.Time{at(8, 30), at(9, 0)}, 900, 0)

	snap, err := env.Engine.ActorEfficiency(env.Ctx, "worker-1", at(0, 0), at(23, 59))
	if err != nil {
		t.Fatalf("efficiency: %v", err)
	}
	if snap.SessionCount != 1 {
		t.Fatalf("session count = %d, want 1", snap.SessionCount)
	}
	if snap.TotalActual != 900 {
		t.Fatalf("actual = %d, want 900", snap.TotalActual)
	}
	if math.Abs(snap.TotalExpected-750) > 1e-9 {
		t.Fatalf("expected = %f, want 750", snap.TotalExpected)
	}
	if snap.EfficiencyPct != 120 {
		t.Fatalf("efficiency = %d%%, want 120%%", snap.EfficiencyPct)
	}
}

func TestActorEfficiencyEmptyWindow(t *testing.T) {
	env := newTestEnv(t)
	snap, err := env.Engine.ActorEfficiency(env.Ctx, "worker-1", at(0, 0), at(23, 59))
	if err != nil {
		t.Fatal(err)
	}
	if snap.SessionCount != 0 || snap.TotalActual != 0 || snap.EfficiencyPct != 0 {
		t.Fatalf("empty window must be all zeros, got %+v", snap)
	}
}

func TestActorEfficiencyWindowBounds(t *testing.T) {
	env := newTestEnv(t)
	task := seedTask(t, env, 500)
	runSession(t, env, "worker-1", task.ID, at(8, 0), at(9, 0), [2]time.Time{}, 400, 0)
	runSession(t, env, "worker-1", task.ID, at(14, 0), at(15, 0), [2]time.Time{}, 600, 0)

	// Window covers the morning session only; starts are filtered, not ends.
	snap, err := env.Engine.ActorEfficiency(env.Ctx, "worker-1", at(7, 0), at(12, 0))
	if err != nil {
		t.Fatal(err)
	}
	if snap.SessionCount != 1 || snap.TotalActual != 400 {
		t.Fatalf("window filter wrong: %+v", snap)
	}

	var ie engine.InvalidInputError
	if _, err := env.Engine.ActorEfficiency(env.Ctx, "worker-1", at(12, 0), at(7, 0)); !errors.As(err, &ie) {
		t.Fatalf("inverted window: expected InvalidInputError, got %v", err)
	}
}

func TestTaskContributionFullNormPerActor(t *testing.T) {
	env := newTestEnv(t)
	task := seedTask(t, env, 500)

	// Concurrent operators each run their own unit, so each is measured
	// against the full norm.
	runSession(t, env, "worker-1", task.ID, at(8, 0), at(9, 0), [2]time.Time{}, 550, 5)
	runSession(t, env, "worker-2", task.ID, at(8, 0), at(9, 0), [2]time.Time{}, 450, 0)

	tc, err := env.Engine.TaskContribution(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("contributions: %v", err)
	}
	if len(tc.Contributions) != 2 {
		t.Fatalf("got %d contributions, want 2", len(tc.Contributions))
	}
	if tc.CompletedQuantity != 1000 {
		t.Fatalf("completed = %d, want 1000", tc.CompletedQuantity)
	}
	for _, c := range tc.Contributions {
		if math.Abs(c.Expected-500) > 1e-9 {
			t.Fatalf("actor %s expected = %f, want full norm 500", c.ActorID, c.Expected)
		}
	}
	byActor := map[string]int{}
	for _, c := range tc.Contributions {
		byActor[c.ActorID] = c.EfficiencyPct
	}
	if byActor["worker-1"] != 110 || byActor["worker-2"] != 90 {
		t.Fatalf("efficiency per actor = %v, want worker-1:110 worker-2:90", byActor)
	}
}

func TestTaskContributionUnknownTask(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.TaskContribution(env.Ctx, "no-such-task"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProductionStatistics(t *testing.T) {
	env := newTestEnv(t)
	task := seedTask(t, env, 500)

	m2, err := env.Engine.CreateMachine(env.Ctx, "lathe", 100, "admin")
	if err != nil {
		t.Fatal(err)
	}
	task2, err := env.Engine.CreateTask(env.Ctx, m2.ID, "turn shafts", 1000, "admin")
	if err != nil {
		t.Fatal(err)
	}

	day2 := func(hour, min int) time.Time {
		return time.Date(2024, 3, 5, hour, min, 0, 0, time.UTC)
	}
	runSession(t, env, "worker-1", task.ID, at(8, 0), at(9, 0), [2]time.Time{}, 500, 10)
	runSession(t, env, "worker-2", task2.ID, at(8, 0), at(9, 0), [2]time.Time{}, 90, 0)
	runSession(t, env, "worker-1", task.ID, day2(8, 0), day2(9, 0), [2]time.Time{}, 600, 0)

	stats, err := env.Engine.ProductionStatistics(env.Ctx, "2024-03-04", "2024-03-05")
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if len(stats.Daily) != 2 {
		t.Fatalf("got %d daily buckets, want 2", len(stats.Daily))
	}
	if stats.Daily[0].Key != "2024-03-04" || stats.Daily[1].Key != "2024-03-05" {
		t.Fatalf("daily keys = %s, %s", stats.Daily[0].Key, stats.Daily[1].Key)
	}
	if stats.Daily[0].TotalActual != 590 || stats.Daily[0].SessionCount != 2 {
		t.Fatalf("day one bucket = %+v", stats.Daily[0])
	}
	if len(stats.ByMachine) != 2 {
		t.Fatalf("got %d machine buckets, want 2", len(stats.ByMachine))
	}
	if stats.Overall.TotalActual != 1190 || stats.Overall.TotalDefects != 10 || stats.Overall.SessionCount != 3 {
		t.Fatalf("overall = %+v", stats.Overall)
	}
	// 1190 actual vs 1100 expected
	if stats.Overall.EfficiencyPct != 108 {
		t.Fatalf("overall efficiency = %d%%, want 108%%", stats.Overall.EfficiencyPct)
	}
	if stats.Overall.DefectRatePct != 1 {
		t.Fatalf("defect rate = %d%%, want 1%%", stats.Overall.DefectRatePct)
	}

	var ie engine.InvalidInputError
	if _, err := env.Engine.ProductionStatistics(env.Ctx, "2024-03-05", "2024-03-04"); !errors.As(err, &ie) {
		t.Fatalf("inverted range: expected InvalidInputError, got %v", err)
	}
}

func TestProductionStatisticsEmptyRange(t *testing.T) {
	env := newTestEnv(t)
	stats, err := env.Engine.ProductionStatistics(env.Ctx, "2024-03-04", "2024-03-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.Daily) != 0 || len(stats.ByMachine) != 0 {
		t.Fatalf("expected empty buckets, got %+v", stats)
	}
	if stats.Overall.EfficiencyPct != 0 || stats.Overall.DefectRatePct != 0 {
		t.Fatalf("expected zero overall, got %+v", stats.Overall)
	}
}
