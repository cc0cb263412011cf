package server

import (
	"encoding/json"
	"time"

	"shopfloor/internal/config"
	"shopfloor/internal/domain"
)

// Request payloads

type PlanShiftRequest struct {
	ActorID      string  `json:"actor_id"`
	Date         string  `json:"date" format:"date"`
	PlannedStart *string `json:"planned_start,omitempty" format:"date-time"`
}

type ScanRequest struct {
	ActorID string  `json:"actor_id"`
	Token   string  `json:"token"`
	At      *string `json:"at,omitempty" format:"date-time"`
}

type LunchRequest struct {
	ActorID string  `json:"actor_id"`
	At      *string `json:"at,omitempty" format:"date-time"`
}

type StartSessionRequest struct {
	ActorID string  `json:"actor_id"`
	TaskID  string  `json:"task_id"`
	At      *string `json:"at,omitempty" format:"date-time"`
}

type PauseSessionRequest struct {
	At *string `json:"at,omitempty" format:"date-time"`
}

type EndSessionRequest struct {
	QuantityProduced int     `json:"quantity_produced"`
	DefectQuantity   int     `json:"defect_quantity"`
	At               *string `json:"at,omitempty" format:"date-time"`
}

type CreateMachineRequest struct {
	Name               string  `json:"name"`
	EfficiencyNormHour float64 `json:"efficiency_norm_per_hour"`
}

type CreateTaskRequest struct {
	MachineID     string `json:"machine_id"`
	Name          string `json:"name"`
	TotalQuantity int    `json:"total_quantity"`
}

type RegisterQRPointRequest struct {
	Token *string `json:"token,omitempty"`
	Type  string  `json:"type" enum:"entrance,exit,break_area,lunch"`
	Label string  `json:"label,omitempty"`
}

// Response payloads

type ShiftResponse struct {
	ID           string  `json:"id"`
	ActorID      string  `json:"actor_id"`
	Date         string  `json:"date" format:"date"`
	PlannedStart *string `json:"planned_start,omitempty" format:"date-time"`
	TimeIn       *string `json:"time_in,omitempty" format:"date-time"`
	TimeOut      *string `json:"time_out,omitempty" format:"date-time"`
	LunchState   string  `json:"lunch_state" enum:"none,in_progress,taken,skipped"`
	LunchStart   *string `json:"lunch_start,omitempty" format:"date-time"`
	LunchEnd     *string `json:"lunch_end,omitempty" format:"date-time"`
	IsLate       bool    `json:"is_late"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type ScanResponse struct {
	Point PointResponse `json:"point"`
	Shift ShiftResponse `json:"shift"`
}

type PauseResponse struct {
	ID         string  `json:"id"`
	PauseStart string  `json:"pause_start" format:"date-time"`
	PauseEnd   *string `json:"pause_end,omitempty" format:"date-time"`
}

type WorkLogResponse struct {
	ID               string          `json:"id"`
	ActorID          string          `json:"actor_id"`
	TaskID           string          `json:"task_id"`
	StartTime        string          `json:"start_time" format:"date-time"`
	EndTime          *string         `json:"end_time,omitempty" format:"date-time"`
	QuantityProduced int             `json:"quantity_produced"`
	DefectQuantity   int             `json:"defect_quantity"`
	Pauses           []PauseResponse `json:"pauses"`
}

type MachineResponse struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	EfficiencyNormHour float64 `json:"efficiency_norm_per_hour"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
}

type TaskResponse struct {
	ID                string `json:"id"`
	MachineID         string `json:"machine_id"`
	Name              string `json:"name"`
	TotalQuantity     int    `json:"total_quantity"`
	CompletedQuantity int    `json:"completed_quantity"`
	DefectQuantity    int    `json:"defect_quantity"`
	CreatedAt         string `json:"created_at" format:"date-time"`
}

type PointResponse struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	Type      string `json:"type" enum:"entrance,exit,break_area,lunch"`
	Label     string `json:"label,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EfficiencyResponse struct {
	ActorID       string  `json:"actor_id,omitempty"`
	WindowStart   string  `json:"window_start" format:"date-time"`
	WindowEnd     string  `json:"window_end" format:"date-time"`
	TotalActual   int     `json:"total_actual"`
	TotalExpected float64 `json:"total_expected"`
	EfficiencyPct int     `json:"efficiency_pct"`
	SessionCount  int     `json:"session_count"`
}

type ContributionResponse struct {
	ActorID          string  `json:"actor_id"`
	WorkLogID        string  `json:"work_log_id"`
	QuantityProduced int     `json:"quantity_produced"`
	DefectQuantity   int     `json:"defect_quantity"`
	NetWorkedHours   float64 `json:"net_worked_hours"`
	Expected         float64 `json:"expected"`
	EfficiencyPct    int     `json:"efficiency_pct"`
	StartTime        string  `json:"start_time" format:"date-time"`
	EndTime          *string `json:"end_time,omitempty" format:"date-time"`
}

type TaskContributionResponse struct {
	TaskID            string                 `json:"task_id"`
	TotalQuantity     int                    `json:"total_quantity"`
	CompletedQuantity int                    `json:"completed_quantity"`
	Contributions     []ContributionResponse `json:"contributions"`
}

type StatsBucketResponse struct {
	Key           string  `json:"key"`
	TotalActual   int     `json:"total_actual"`
	TotalExpected float64 `json:"total_expected"`
	TotalDefects  int     `json:"total_defects"`
	EfficiencyPct int     `json:"efficiency_pct"`
	DefectRatePct int     `json:"defect_rate_pct"`
	SessionCount  int     `json:"session_count"`
}

type ProductionStatsResponse struct {
	StartDate string                `json:"start_date" format:"date"`
	EndDate   string                `json:"end_date" format:"date"`
	Daily     []StatsBucketResponse `json:"daily"`
	ByMachine []StatsBucketResponse `json:"by_machine"`
	Overall   StatsBucketResponse   `json:"overall"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type SiteConfigResponse struct {
	Site       siteConfigSection   `json:"site"`
	Attendance attendanceSection   `json:"attendance"`
	Points     pointsConfigSection `json:"points"`
}

type siteConfigSection struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Timezone string `json:"timezone"`
}

type attendanceSection struct {
	LateGraceMinutes int `json:"late_grace_minutes"`
}

type pointsConfigSection struct {
	Catalog map[string]struct {
		Description string `json:"description"`
	} `json:"catalog"`
}

// Conversion helpers

func fmtRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtRFC3339Ptr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtRFC3339(*t)
	return &s
}

func shiftResponse(s domain.Shift) ShiftResponse {
	return ShiftResponse{
		ID:           s.ID,
		ActorID:      s.ActorID,
		Date:         s.Date,
		PlannedStart: fmtRFC3339Ptr(s.PlannedStart),
		TimeIn:       fmtRFC3339Ptr(s.TimeIn),
		TimeOut:      fmtRFC3339Ptr(s.TimeOut),
		LunchState:   string(s.LunchState),
		LunchStart:   fmtRFC3339Ptr(s.LunchStart),
		LunchEnd:     fmtRFC3339Ptr(s.LunchEnd),
		IsLate:       s.IsLate,
		CreatedAt:    fmtRFC3339(s.CreatedAt),
		UpdatedAt:    fmtRFC3339(s.UpdatedAt),
	}
}

func workLogResponse(w domain.WorkLog) WorkLogResponse {
	pauses := make([]PauseResponse, 0, len(w.Pauses))
	for _, p := range w.Pauses {
		pauses = append(pauses, PauseResponse{
			ID:         p.ID,
			PauseStart: fmtRFC3339(p.PauseStart),
			PauseEnd:   fmtRFC3339Ptr(p.PauseEnd),
		})
	}
	return WorkLogResponse{
		ID:               w.ID,
		ActorID:          w.ActorID,
		TaskID:           w.TaskID,
		StartTime:        fmtRFC3339(w.StartTime),
		EndTime:          fmtRFC3339Ptr(w.EndTime),
		QuantityProduced: w.QuantityProduced,
		DefectQuantity:   w.DefectQuantity,
		Pauses:           pauses,
	}
}

func machineResponse(m domain.Machine) MachineResponse {
	return MachineResponse{
		ID:                 m.ID,
		Name:               m.Name,
		EfficiencyNormHour: m.EfficiencyNormHour,
		CreatedAt:          fmtRFC3339(m.CreatedAt),
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:                t.ID,
		MachineID:         t.MachineID,
		Name:              t.Name,
		TotalQuantity:     t.TotalQuantity,
		CompletedQuantity: t.CompletedQuantity,
		DefectQuantity:    t.DefectQuantity,
		CreatedAt:         fmtRFC3339(t.CreatedAt),
	}
}

func pointResponse(p domain.QRPoint) PointResponse {
	return PointResponse{
		ID:        p.ID,
		Token:     p.Token,
		Type:      string(p.Type),
		Label:     p.Label,
		CreatedAt: fmtRFC3339(p.CreatedAt),
	}
}

func efficiencyResponse(s domain.EfficiencySnapshot) EfficiencyResponse {
	return EfficiencyResponse{
		ActorID:       s.ActorID,
		WindowStart:   fmtRFC3339(s.WindowStart),
		WindowEnd:     fmtRFC3339(s.WindowEnd),
		TotalActual:   s.TotalActual,
		TotalExpected: s.TotalExpected,
		EfficiencyPct: s.EfficiencyPct,
		SessionCount:  s.SessionCount,
	}
}

func contributionResponse(c domain.Contribution) ContributionResponse {
	return ContributionResponse{
		ActorID:          c.ActorID,
		WorkLogID:        c.WorkLogID,
		QuantityProduced: c.QuantityProduced,
		DefectQuantity:   c.DefectQuantity,
		NetWorkedHours:   c.NetWorkedHours,
		Expected:         c.Expected,
		EfficiencyPct:    c.EfficiencyPct,
		StartTime:        fmtRFC3339(c.StartTime),
		EndTime:          fmtRFC3339Ptr(c.EndTime),
	}
}

func taskContributionResponse(tc domain.TaskContribution) TaskContributionResponse {
	items := make([]ContributionResponse, 0, len(tc.Contributions))
	for _, c := range tc.Contributions {
		items = append(items, contributionResponse(c))
	}
	return TaskContributionResponse{
		TaskID:            tc.TaskID,
		TotalQuantity:     tc.TotalQuantity,
		CompletedQuantity: tc.CompletedQuantity,
		Contributions:     items,
	}
}

func statsBucketResponse(b domain.StatsBucket) StatsBucketResponse {
	return StatsBucketResponse(b)
}

func productionStatsResponse(stats domain.ProductionStatistics) ProductionStatsResponse {
	daily := make([]StatsBucketResponse, 0, len(stats.Daily))
	for _, b := range stats.Daily {
		daily = append(daily, statsBucketResponse(b))
	}
	byMachine := make([]StatsBucketResponse, 0, len(stats.ByMachine))
	for _, b := range stats.ByMachine {
		byMachine = append(byMachine, statsBucketResponse(b))
	}
	return ProductionStatsResponse{
		StartDate: stats.StartDate,
		EndDate:   stats.EndDate,
		Daily:     daily,
		ByMachine: byMachine,
		Overall:   statsBucketResponse(stats.Overall),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func configResponse(cfg *config.Config) SiteConfigResponse {
	res := SiteConfigResponse{
		Site: siteConfigSection{
			ID:       cfg.Site.ID,
			Name:     cfg.Site.Name,
			Timezone: cfg.Site.Timezone,
		},
		Attendance: attendanceSection{
			LateGraceMinutes: cfg.Attendance.LateGraceMinutes,
		},
		Points: pointsConfigSection{
			Catalog: map[string]struct {
				Description string `json:"description"`
			}{},
		},
	}
	for k, v := range cfg.Points.Catalog {
		res.Points.Catalog[k] = struct {
			Description string `json:"description"`
		}{Description: v.Description}
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}
