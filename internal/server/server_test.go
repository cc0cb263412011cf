package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"shopfloor/internal/config"
	"shopfloor/internal/db"
	"shopfloor/internal/engine"
	"shopfloor/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("site-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

var asTester = map[string]string{"X-Actor-Id": "tester"}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %T: %v (%s)", out, err, string(data))
	}
	return out
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/machines", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("error code = %s", envelope.Error.Code)
	}
}

func TestScanRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/points", map[string]any{
		"token": "gate-a",
		"type":  "entrance",
		"label": "North gate",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register point status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/scans", map[string]any{
		"actor_id": "worker-1",
		"token":    "gate-a",
		"at":       "2024-03-04T08:00:00Z",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("scan status %d: %s", res.StatusCode, string(data))
	}
	scan := decode[ScanResponse](t, data)
	if scan.Shift.TimeIn == nil || *scan.Shift.TimeIn != "2024-03-04T08:00:00Z" {
		t.Fatalf("time_in = %v", scan.Shift.TimeIn)
	}
	if scan.Point.Token != "gate-a" {
		t.Fatalf("point token = %s", scan.Point.Token)
	}

	// Same point, later in the day: clock-out.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/scans", map[string]any{
		"actor_id": "worker-1",
		"token":    "gate-a",
		"at":       "2024-03-04T16:00:00Z",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("second scan status %d: %s", res.StatusCode, string(data))
	}
	scan = decode[ScanResponse](t, data)
	if scan.Shift.TimeOut == nil {
		t.Fatalf("expected clock-out")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/scans", map[string]any{
		"actor_id": "worker-1",
		"token":    "no-such-token",
	}, asTester)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown token status %d: %s", res.StatusCode, string(data))
	}
}

func TestSessionRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/machines", map[string]any{
		"name":                     "press",
		"efficiency_norm_per_hour": 500,
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create machine status %d: %s", res.StatusCode, string(data))
	}
	machine := decode[MachineResponse](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"machine_id":     machine.ID,
		"name":           "stamp covers",
		"total_quantity": 10000,
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	task := decode[TaskResponse](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", map[string]any{
		"actor_id": "worker-1",
		"task_id":  task.ID,
		"at":       "2024-03-04T08:00:00Z",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start session status %d: %s", res.StatusCode, string(data))
	}
	wl := decode[WorkLogResponse](t, data)

	// Conflict on a second open session for the same actor.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", map[string]any{
		"actor_id": "worker-1",
		"task_id":  task.ID,
		"at":       "2024-03-04T08:05:00Z",
	}, asTester)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second session status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions/"+wl.ID+"/pause", map[string]any{
		"at": "2024-03-04T08:30:00Z",
	}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pause status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions/"+wl.ID+"/resume", map[string]any{
		"at": "2024-03-04T09:00:00Z",
	}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resume status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions/"+wl.ID+"/end", map[string]any{
		"quantity_produced": 900,
		"defect_quantity":   10,
		"at":                "2024-03-04T10:00:00Z",
	}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("end status %d: %s", res.StatusCode, string(data))
	}
	wl = decode[WorkLogResponse](t, data)
	if wl.EndTime == nil || wl.QuantityProduced != 900 {
		t.Fatalf("closed log = %+v", wl)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/contributions", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("contributions status %d: %s", res.StatusCode, string(data))
	}
	tc := decode[TaskContributionResponse](t, data)
	if len(tc.Contributions) != 1 {
		t.Fatalf("got %d contributions, want 1", len(tc.Contributions))
	}
	// 900 produced over 1.5 net hours against a 500/h norm.
	if tc.Contributions[0].EfficiencyPct != 120 {
		t.Fatalf("efficiency = %d%%, want 120%%", tc.Contributions[0].EfficiencyPct)
	}
	if tc.CompletedQuantity != 900 {
		t.Fatalf("completed = %d, want 900", tc.CompletedQuantity)
	}
}

func TestInvalidStateMapsTo422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/lunch/start", map[string]any{
		"actor_id": "worker-1",
	}, asTester)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "invalid_state" {
		t.Fatalf("error code = %s", envelope.Error.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/shifts", map[string]any{
		"actor_id": "worker-1",
		"date":     "2024-03-05",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("plan shift status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?entity_kind=shift", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	events := decode[[]EventResponse](t, data)
	if len(events) != 1 || events[0].Type != "shift.planned" {
		t.Fatalf("events = %+v", events)
	}
}
