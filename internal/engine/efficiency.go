package engine

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"shopfloor/internal/domain"
	"shopfloor/internal/repo"
)

// The aggregator is pure read-side computation over closed work logs. It
// never mutates and never fails on missing data: absent sessions or norms
// yield zero-valued results.

func efficiencyPct(actual int, expected float64) int {
	if expected <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(actual) / expected))
}

func defectRatePct(defects, actual int) int {
	total := actual + defects
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(defects) / float64(total)))
}

// normLookup memoizes task norms per query; a task with no norm on record
// contributes zero expected output rather than failing the aggregation.
type normLookup struct {
	repo  repo.Repo
	cache map[string]repo.TaskNorm
}

func (n *normLookup) get(ctx context.Context, taskID string) (repo.TaskNorm, error) {
	if cached, ok := n.cache[taskID]; ok {
		return cached, nil
	}
	norm, err := n.repo.GetTaskNorm(ctx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		norm = repo.TaskNorm{TaskID: taskID}
	} else if err != nil {
		return repo.TaskNorm{}, err
	}
	n.cache[taskID] = norm
	return norm, nil
}

// ActorEfficiency computes actual vs expected output over closed sessions
// whose start falls in [windowStart, windowEnd).
func (e Engine) ActorEfficiency(ctx context.Context, actorID string, windowStart, windowEnd time.Time) (domain.EfficiencySnapshot, error) {
	windowStart = windowStart.UTC()
	windowEnd = windowEnd.UTC()
	snap := domain.EfficiencySnapshot{
		ActorID:     actorID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
	if !windowEnd.After(windowStart) {
		return snap, invalidInputf("window end must be after window start")
	}
	logs, err := e.Repo.ListWorkLogs(ctx, repo.WorkLogFilters{
		ActorID:     actorID,
		StartFrom:   windowStart.Format(time.RFC3339),
		StartBefore: windowEnd.Format(time.RFC3339),
		ClosedOnly:  true,
	})
	if err != nil {
		return snap, err
	}
	norms := &normLookup{repo: e.Repo, cache: map[string]repo.TaskNorm{}}
	for _, w := range logs {
		norm, err := norms.get(ctx, w.TaskID)
		if err != nil {
			return snap, err
		}
		hours := w.NetDuration(windowEnd).Hours()
		snap.TotalActual += w.QuantityProduced
		snap.TotalExpected += norm.EfficiencyNormHour * hours
		snap.SessionCount++
	}
	snap.EfficiencyPct = efficiencyPct(snap.TotalActual, snap.TotalExpected)
	return snap, nil
}

// TaskContribution reports per-contributor output for a task. Each
// contributor is scored against the full machine norm independently:
// concurrent operators each run their own machine unit of the same type, so
// expected output is a property of the machine, not a share of the task.
func (e Engine) TaskContribution(ctx context.Context, taskID string) (domain.TaskContribution, error) {
	norm, err := e.Repo.GetTaskNorm(ctx, taskID)
	if err != nil {
		return domain.TaskContribution{}, err
	}
	logs, err := e.Repo.ListWorkLogs(ctx, repo.WorkLogFilters{TaskID: taskID, ClosedOnly: true})
	if err != nil {
		return domain.TaskContribution{}, err
	}
	out := domain.TaskContribution{
		TaskID:            taskID,
		TotalQuantity:     norm.TotalQuantity,
		CompletedQuantity: norm.CompletedQuantity,
		Contributions:     []domain.Contribution{},
	}
	for _, w := range logs {
		hours := w.NetDuration(*w.EndTime).Hours()
		expected := norm.EfficiencyNormHour * hours
		out.Contributions = append(out.Contributions, domain.Contribution{
			ActorID:          w.ActorID,
			WorkLogID:        w.ID,
			QuantityProduced: w.QuantityProduced,
			DefectQuantity:   w.DefectQuantity,
			NetWorkedHours:   hours,
			Expected:         expected,
			EfficiencyPct:    efficiencyPct(w.QuantityProduced, expected),
			StartTime:        w.StartTime,
			EndTime:          w.EndTime,
		})
	}
	return out, nil
}

// ProductionStatistics buckets closed sessions between two calendar days
// (inclusive) by day and by machine.
func (e Engine) ProductionStatistics(ctx context.Context, startDate, endDate string) (domain.ProductionStatistics, error) {
	stats := domain.ProductionStatistics{
		StartDate: startDate,
		EndDate:   endDate,
		Daily:     []domain.StatsBucket{},
		ByMachine: []domain.StatsBucket{},
	}
	from, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return stats, invalidInputf("start date must be YYYY-MM-DD")
	}
	to, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return stats, invalidInputf("end date must be YYYY-MM-DD")
	}
	if to.Before(from) {
		return stats, invalidInputf("end date precedes start date")
	}
	logs, err := e.Repo.ListWorkLogs(ctx, repo.WorkLogFilters{
		StartFrom:   from.Format(time.RFC3339),
		StartBefore: to.AddDate(0, 0, 1).Format(time.RFC3339),
		ClosedOnly:  true,
	})
	if err != nil {
		return stats, err
	}
	norms := &normLookup{repo: e.Repo, cache: map[string]repo.TaskNorm{}}
	daily := map[string]*domain.StatsBucket{}
	byMachine := map[string]*domain.StatsBucket{}
	add := func(m map[string]*domain.StatsBucket, key string, actual, defects int, expected float64) {
		b, ok := m[key]
		if !ok {
			b = &domain.StatsBucket{Key: key}
			m[key] = b
		}
		b.TotalActual += actual
		b.TotalExpected += expected
		b.TotalDefects += defects
		b.SessionCount++
	}
	for _, w := range logs {
		norm, err := norms.get(ctx, w.TaskID)
		if err != nil {
			return stats, err
		}
		expected := norm.EfficiencyNormHour * w.NetDuration(*w.EndTime).Hours()
		day := dateOf(w.StartTime)
		add(daily, day, w.QuantityProduced, w.DefectQuantity, expected)
		machineKey := norm.MachineID
		if machineKey == "" {
			machineKey = "unknown"
		}
		add(byMachine, machineKey, w.QuantityProduced, w.DefectQuantity, expected)
		stats.Overall.TotalActual += w.QuantityProduced
		stats.Overall.TotalExpected += expected
		stats.Overall.TotalDefects += w.DefectQuantity
		stats.Overall.SessionCount++
	}
	stats.Daily = finishBuckets(daily)
	stats.ByMachine = finishBuckets(byMachine)
	stats.Overall.Key = "overall"
	stats.Overall.EfficiencyPct = efficiencyPct(stats.Overall.TotalActual, stats.Overall.TotalExpected)
	stats.Overall.DefectRatePct = defectRatePct(stats.Overall.TotalDefects, stats.Overall.TotalActual)
	return stats, nil
}

func finishBuckets(m map[string]*domain.StatsBucket) []domain.StatsBucket {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.StatsBucket, 0, len(keys))
	for _, k := range keys {
		b := m[k]
		b.EfficiencyPct = efficiencyPct(b.TotalActual, b.TotalExpected)
		b.DefectRatePct = defectRatePct(b.TotalDefects, b.TotalActual)
		out = append(out, *b)
	}
	return out
}
