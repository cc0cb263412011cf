package domain

import "time"

// LunchState is the lunch sub-state of an open shift. The progression is
// none -> in_progress -> taken, with skipped as a terminal alternative to
// in_progress. These constants are the single definition shared by writer and
// reader paths.
type LunchState string

const (
	LunchNone       LunchState = "none"
	LunchInProgress LunchState = "in_progress"
	LunchTaken      LunchState = "taken"
	LunchSkipped    LunchState = "skipped"
)

// QRPointType classifies a scannable point on the floor.
type QRPointType string

const (
	PointEntrance  QRPointType = "entrance"
	PointExit      QRPointType = "exit"
	PointBreakArea QRPointType = "break_area"
	PointLunch     QRPointType = "lunch"
)

// Shift is one actor's attendance record for one calendar day.
// Date carries date-only semantics and is stored as YYYY-MM-DD.
type Shift struct {
	ID           string     `json:"id"`
	ActorID      string     `json:"actor_id"`
	Date         string     `json:"date"`
	PlannedStart *time.Time `json:"planned_start,omitempty" format:"date-time"`
	TimeIn       *time.Time `json:"time_in,omitempty" format:"date-time"`
	TimeOut      *time.Time `json:"time_out,omitempty" format:"date-time"`
	LunchState   LunchState `json:"lunch_state" enum:"none,in_progress,taken,skipped"`
	LunchStart   *time.Time `json:"lunch_start,omitempty" format:"date-time"`
	LunchEnd     *time.Time `json:"lunch_end,omitempty" format:"date-time"`
	IsLate       bool       `json:"is_late"`
	CreatedAt    time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt    time.Time  `json:"updated_at" format:"date-time"`
}

// Open reports whether the actor is clocked in and not yet clocked out.
func (s Shift) Open() bool {
	return s.TimeIn != nil && s.TimeOut == nil
}

// Planned reports whether the shift exists only as a plan (still cancellable).
func (s Shift) Planned() bool {
	return s.TimeIn == nil
}

// WorkLog is one continuous (modulo pauses) work session by an actor against
// one production task.
type WorkLog struct {
	ID               string         `json:"id"`
	ActorID          string         `json:"actor_id"`
	TaskID           string         `json:"task_id"`
	StartTime        time.Time      `json:"start_time" format:"date-time"`
	EndTime          *time.Time     `json:"end_time,omitempty" format:"date-time"`
	QuantityProduced int            `json:"quantity_produced"`
	DefectQuantity   int            `json:"defect_quantity"`
	Pauses           []WorkLogPause `json:"pauses,omitempty"`
}

// Closed reports whether the session has ended.
func (w WorkLog) Closed() bool { return w.EndTime != nil }

// OpenPause returns the unclosed pause, if any.
func (w WorkLog) OpenPause() *WorkLogPause {
	for i := range w.Pauses {
		if w.Pauses[i].PauseEnd == nil {
			return &w.Pauses[i]
		}
	}
	return nil
}

// NetDuration is session wall-clock time minus the sum of closed pauses. For
// an open log it is computed up to now. A negative result means corrupted
// pause data; callers surface it, this method never clamps.
func (w WorkLog) NetDuration(now time.Time) time.Duration {
	end := now
	if w.EndTime != nil {
		end = *w.EndTime
	}
	d := end.Sub(w.StartTime)
	for _, p := range w.Pauses {
		if p.PauseEnd != nil {
			d -= p.PauseEnd.Sub(p.PauseStart)
		}
	}
	return d
}

type WorkLogPause struct {
	ID         string     `json:"id"`
	WorkLogID  string     `json:"work_log_id"`
	PauseStart time.Time  `json:"pause_start" format:"date-time"`
	PauseEnd   *time.Time `json:"pause_end,omitempty" format:"date-time"`
}

// QRPoint is a physical location tagged with a scannable token.
type QRPoint struct {
	ID        string      `json:"id"`
	Token     string      `json:"token"`
	Type      QRPointType `json:"type" enum:"entrance,exit,break_area,lunch"`
	Label     string      `json:"label,omitempty"`
	CreatedAt time.Time   `json:"created_at" format:"date-time"`
}

// Machine carries the efficiency norm used for expected-output math. The norm
// describes what one machine unit produces per hour regardless of how many
// operators run units of the same type concurrently.
type Machine struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	EfficiencyNormHour float64   `json:"efficiency_norm_per_hour"`
	CreatedAt          time.Time `json:"created_at" format:"date-time"`
}

// Task is the production task view consumed by the aggregator and updated on
// session completion.
type Task struct {
	ID                string    `json:"id"`
	MachineID         string    `json:"machine_id"`
	Name              string    `json:"name"`
	TotalQuantity     int       `json:"total_quantity"`
	CompletedQuantity int       `json:"completed_quantity"`
	DefectQuantity    int       `json:"defect_quantity"`
	CreatedAt         time.Time `json:"created_at" format:"date-time"`
}

// EfficiencySnapshot is a derived actual-vs-expected summary for a window.
type EfficiencySnapshot struct {
	ActorID       string    `json:"actor_id,omitempty"`
	WindowStart   time.Time `json:"window_start" format:"date-time"`
	WindowEnd     time.Time `json:"window_end" format:"date-time"`
	TotalActual   int       `json:"total_actual"`
	TotalExpected float64   `json:"total_expected"`
	EfficiencyPct int       `json:"efficiency_pct"`
	SessionCount  int       `json:"session_count"`
}

// Contribution is one closed work log's share of a task.
type Contribution struct {
	ActorID          string     `json:"actor_id"`
	WorkLogID        string     `json:"work_log_id"`
	QuantityProduced int        `json:"quantity_produced"`
	DefectQuantity   int        `json:"defect_quantity"`
	NetWorkedHours   float64    `json:"net_worked_hours"`
	Expected         float64    `json:"expected"`
	EfficiencyPct    int        `json:"efficiency_pct"`
	StartTime        time.Time  `json:"start_time" format:"date-time"`
	EndTime          *time.Time `json:"end_time,omitempty" format:"date-time"`
}

// TaskContribution groups per-contributor entries for one task.
type TaskContribution struct {
	TaskID            string         `json:"task_id"`
	TotalQuantity     int            `json:"total_quantity"`
	CompletedQuantity int            `json:"completed_quantity"`
	Contributions     []Contribution `json:"contributions"`
}

// StatsBucket is one aggregation bucket of production statistics.
type StatsBucket struct {
	Key           string  `json:"key"`
	TotalActual   int     `json:"total_actual"`
	TotalExpected float64 `json:"total_expected"`
	TotalDefects  int     `json:"total_defects"`
	EfficiencyPct int     `json:"efficiency_pct"`
	DefectRatePct int     `json:"defect_rate_pct"`
	SessionCount  int     `json:"session_count"`
}

// ProductionStatistics buckets closed sessions by day and by machine.
type ProductionStatistics struct {
	StartDate string        `json:"start_date"`
	EndDate   string        `json:"end_date"`
	Daily     []StatsBucket `json:"daily"`
	ByMachine []StatsBucket `json:"by_machine"`
	Overall   StatsBucket   `json:"overall"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
