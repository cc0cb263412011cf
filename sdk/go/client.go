package shopfloorsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Shopfloor HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Shift represents the API shift model.
type Shift struct {
	ID           string  `json:"id"`
	ActorID      string  `json:"actor_id"`
	Date         string  `json:"date"`
	PlannedStart *string `json:"planned_start,omitempty"`
	TimeIn       *string `json:"time_in,omitempty"`
	TimeOut      *string `json:"time_out,omitempty"`
	LunchState   string  `json:"lunch_state"`
	LunchStart   *string `json:"lunch_start,omitempty"`
	LunchEnd     *string `json:"lunch_end,omitempty"`
	IsLate       bool    `json:"is_late"`
}

// Point represents a registered scan point.
type Point struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
}

// ScanResult pairs the resolved point with the shift it changed.
type ScanResult struct {
	Point Point `json:"point"`
	Shift Shift `json:"shift"`
}

// Pause is a closed or open break within a work session.
type Pause struct {
	ID         string  `json:"id"`
	PauseStart string  `json:"pause_start"`
	PauseEnd   *string `json:"pause_end,omitempty"`
}

// WorkLog represents a work session.
type WorkLog struct {
	ID               string  `json:"id"`
	ActorID          string  `json:"actor_id"`
	TaskID           string  `json:"task_id"`
	StartTime        string  `json:"start_time"`
	EndTime          *string `json:"end_time,omitempty"`
	QuantityProduced int     `json:"quantity_produced"`
	DefectQuantity   int     `json:"defect_quantity"`
	Pauses           []Pause `json:"pauses"`
}

// Efficiency is an actor's aggregated window.
type Efficiency struct {
	ActorID       string  `json:"actor_id"`
	WindowStart   string  `json:"window_start"`
	WindowEnd     string  `json:"window_end"`
	TotalActual   int     `json:"total_actual"`
	TotalExpected float64 `json:"total_expected"`
	EfficiencyPct int     `json:"efficiency_pct"`
	SessionCount  int     `json:"session_count"`
}

// Contribution is one closed session's share of a task.
type Contribution struct {
	ActorID          string  `json:"actor_id"`
	WorkLogID        string  `json:"work_log_id"`
	QuantityProduced int     `json:"quantity_produced"`
	DefectQuantity   int     `json:"defect_quantity"`
	NetWorkedHours   float64 `json:"net_worked_hours"`
	Expected         float64 `json:"expected"`
	EfficiencyPct    int     `json:"efficiency_pct"`
}

// TaskContributions groups per-actor contributions on one task.
type TaskContributions struct {
	TaskID            string         `json:"task_id"`
	TotalQuantity     int            `json:"total_quantity"`
	CompletedQuantity int            `json:"completed_quantity"`
	Contributions     []Contribution `json:"contributions"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Scan records a badge scan for an actor.
func (c *Client) Scan(ctx context.Context, actorID, token string) (ScanResult, error) {
	body := map[string]any{
		"actor_id": actorID,
		"token":    token,
	}
	var resp ScanResult
	err := c.do(ctx, http.MethodPost, "v0/scans", body, &resp)
	return resp, err
}

// PlanShift plans a shift for an actor on a date.
func (c *Client) PlanShift(ctx context.Context, actorID, date string, plannedStart *string) (Shift, error) {
	body := map[string]any{
		"actor_id": actorID,
		"date":     date,
	}
	if plannedStart != nil {
		body["planned_start"] = *plannedStart
	}
	var resp Shift
	err := c.do(ctx, http.MethodPost, "v0/shifts", body, &resp)
	return resp, err
}

// TodayShift returns the actor's shift for the current day.
func (c *Client) TodayShift(ctx context.Context, actorID string) (Shift, error) {
	var resp Shift
	endpoint := fmt.Sprintf("v0/actors/%s/shifts/today", url.PathEscape(actorID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// StartSession opens a work session binding the actor to a task.
func (c *Client) StartSession(ctx context.Context, actorID, taskID string) (WorkLog, error) {
	body := map[string]any{
		"actor_id": actorID,
		"task_id":  taskID,
	}
	var resp WorkLog
	err := c.do(ctx, http.MethodPost, "v0/sessions", body, &resp)
	return resp, err
}

// PauseSession pauses an open session.
func (c *Client) PauseSession(ctx context.Context, workLogID string) (WorkLog, error) {
	var resp WorkLog
	endpoint := fmt.Sprintf("v0/sessions/%s/pause", url.PathEscape(workLogID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// ResumeSession resumes a paused session.
func (c *Client) ResumeSession(ctx context.Context, workLogID string) (WorkLog, error) {
	var resp WorkLog
	endpoint := fmt.Sprintf("v0/sessions/%s/resume", url.PathEscape(workLogID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// EndSession closes a session with its produced and defect counts.
func (c *Client) EndSession(ctx context.Context, workLogID string, produced, defects int) (WorkLog, error) {
	body := map[string]any{
		"quantity_produced": produced,
		"defect_quantity":   defects,
	}
	var resp WorkLog
	endpoint := fmt.Sprintf("v0/sessions/%s/end", url.PathEscape(workLogID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// OpenSession returns the actor's open session, if any.
func (c *Client) OpenSession(ctx context.Context, actorID string) (WorkLog, error) {
	var resp WorkLog
	endpoint := fmt.Sprintf("v0/sessions/open?actor_id=%s", url.QueryEscape(actorID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ActorEfficiency returns an actor's efficiency over a window.
func (c *Client) ActorEfficiency(ctx context.Context, actorID, windowStart, windowEnd string) (Efficiency, error) {
	var resp Efficiency
	endpoint := fmt.Sprintf("v0/actors/%s/efficiency?window_start=%s&window_end=%s",
		url.PathEscape(actorID), url.QueryEscape(windowStart), url.QueryEscape(windowEnd))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// TaskContributions returns per-actor contributions on a task.
func (c *Client) TaskContributions(ctx context.Context, taskID string) (TaskContributions, error) {
	var resp TaskContributions
	endpoint := fmt.Sprintf("v0/tasks/%s/contributions", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
