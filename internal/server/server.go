package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"shopfloor/internal/domain"
	"shopfloor/internal/engine"
	"shopfloor/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"shift is not clocked in"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope returned by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the shop-floor API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Shopfloor API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerConfig(group, cfg.Engine)
	registerScans(group, cfg.Engine)
	registerShifts(group, cfg.Engine)
	registerLunch(group, cfg.Engine)
	registerSessions(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerMachines(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerPoints(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	var se engine.InvalidStateError
	if errors.As(err, &se) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_state", err.Error(), nil)
	}
	var ie engine.InvalidInputError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "invalid_state"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// resolveAt parses an optional RFC3339 timestamp, defaulting to the engine
// clock so server time and ledger time never drift apart.
func resolveAt(e engine.Engine, raw *string) (time.Time, huma.StatusError) {
	if raw == nil || *raw == "" {
		if e.Now != nil {
			return e.Now().UTC(), nil
		}
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return time.Time{}, newAPIError(http.StatusBadRequest, "bad_request", "invalid timestamp", map[string]any{"at": *raw})
	}
	return t.UTC(), nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Shopfloor API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerConfig(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/config",
		Summary:     "Site configuration",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SiteConfigResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body SiteConfigResponse `json:"body"`
		}{Body: configResponse(e.Config)}, nil
	})
}

func registerScans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-scan",
		Method:        http.MethodPost,
		Path:          "/scans",
		Summary:       "Record a badge scan",
		Description:   "Resolves the scanned token against the point registry and applies the shift transition it implies.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body ScanRequest `json:"body"`
	}) (*struct {
		Body ScanResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if input.Body.Token == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "token is required", nil)
		}
		at, atErr := resolveAt(e, input.Body.At)
		if atErr != nil {
			return nil, atErr
		}
		point, err := e.ResolveQRPoint(ctx, input.Body.Token)
		if err != nil {
			return nil, handleError(err)
		}
		shift, err := e.ProcessScan(ctx, input.Body.ActorID, point.Type, at)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScanResponse `json:"body"`
		}{Body: ScanResponse{Point: pointResponse(point), Shift: shiftResponse(shift)}}, nil
	})
}

func registerShifts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "plan-shift",
		Method:        http.MethodPost,
		Path:          "/shifts",
		Summary:       "Plan a shift",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body PlanShiftRequest `json:"body"`
	}) (*struct {
		Body ShiftResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		var plannedStart *time.Time
		if input.Body.PlannedStart != nil {
			t, err := time.Parse(time.RFC3339, *input.Body.PlannedStart)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid planned_start", nil)
			}
			utc := t.UTC()
			plannedStart = &utc
		}
		shift, err := e.PlanShift(ctx, input.Body.ActorID, input.Body.Date, plannedStart)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ShiftResponse `json:"body"`
		}{Body: shiftResponse(shift)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-shift",
		Method:      http.MethodDelete,
		Path:        "/shifts/{shift_id}",
		Summary:     "Cancel a planned shift",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ShiftID string `path:"shift_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.CancelPlannedShift(ctx, input.ShiftID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-shift",
		Method:      http.MethodGet,
		Path:        "/shifts/{shift_id}",
		Summary:     "Get shift",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ShiftID string `path:"shift_id"`
	}) (*struct {
		Body ShiftResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		shift, err := e.GetShift(ctx, input.ShiftID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ShiftResponse `json:"body"`
		}{Body: shiftResponse(shift)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "today-shift",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}/shifts/today",
		Summary:     "Get an actor's shift for today",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*struct {
		Body ShiftResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		shift, err := e.TodayShift(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ShiftResponse `json:"body"`
		}{Body: shiftResponse(shift)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-shifts",
		Method:      http.MethodGet,
		Path:        "/shifts",
		Summary:     "List shifts",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ActorID  string `query:"actor_id"`
		DateFrom string `query:"date_from" format:"date"`
		DateTo   string `query:"date_to" format:"date"`
	}) (*struct {
		Body []ShiftResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		shifts, err := e.ListShiftsForWindow(ctx, input.ActorID, input.DateFrom, input.DateTo)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]ShiftResponse, 0, len(shifts))
		for _, s := range shifts {
			items = append(items, shiftResponse(s))
		}
		return &struct {
			Body []ShiftResponse `json:"body"`
		}{Body: items}, nil
	})
}

func registerLunch(api huma.API, e engine.Engine) {
	type lunchOp struct {
		id      string
		path    string
		summary string
		apply   func(ctx context.Context, actorID string, at time.Time) (domain.Shift, error)
	}
	ops := []lunchOp{
		{"start-lunch", "/lunch/start", "Start lunch", e.StartLunch},
		{"end-lunch", "/lunch/end", "End lunch", e.EndLunch},
		{"skip-lunch", "/lunch/skip", "Mark lunch skipped", func(ctx context.Context, actorID string, _ time.Time) (domain.Shift, error) {
			return e.MarkNoLunch(ctx, actorID)
		}},
	}
	for _, op := range ops {
		apply := op.apply
		huma.Register(api, huma.Operation{
			OperationID: op.id,
			Method:      http.MethodPost,
			Path:        op.path,
			Summary:     op.summary,
			Errors: []int{
				http.StatusBadRequest,
				http.StatusNotFound,
				http.StatusUnprocessableEntity,
			},
		}, func(ctx context.Context, input *struct {
			Body LunchRequest `json:"body"`
		}) (*struct {
			Body ShiftResponse `json:"body"`
		}, error) {
			if _, authErr := actorIDFromContext(ctx); authErr != nil {
				return nil, authErr
			}
			if input.Body.ActorID == "" {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
			}
			at, atErr := resolveAt(e, input.Body.At)
			if atErr != nil {
				return nil, atErr
			}
			shift, err := apply(ctx, input.Body.ActorID, at)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body ShiftResponse `json:"body"`
			}{Body: shiftResponse(shift)}, nil
		})
	}
}

func registerSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Start a work session",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body StartSessionRequest `json:"body"`
	}) (*struct {
		Body WorkLogResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if input.Body.TaskID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "task_id is required", nil)
		}
		at, atErr := resolveAt(e, input.Body.At)
		if atErr != nil {
			return nil, atErr
		}
		wl, err := e.StartSession(ctx, input.Body.ActorID, input.Body.TaskID, at)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkLogResponse `json:"body"`
		}{Body: workLogResponse(wl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pause-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{work_log_id}/pause",
		Summary:     "Pause a work session",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		WorkLogID string              `path:"work_log_id"`
		Body      PauseSessionRequest `json:"body"`
	}) (*struct {
		Body WorkLogResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		at, atErr := resolveAt(e, input.Body.At)
		if atErr != nil {
			return nil, atErr
		}
		wl, err := e.PauseSession(ctx, input.WorkLogID, at)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkLogResponse `json:"body"`
		}{Body: workLogResponse(wl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resume-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{work_log_id}/resume",
		Summary:     "Resume a paused work session",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		WorkLogID string              `path:"work_log_id"`
		Body      PauseSessionRequest `json:"body"`
	}) (*struct {
		Body WorkLogResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		at, atErr := resolveAt(e, input.Body.At)
		if atErr != nil {
			return nil, atErr
		}
		wl, err := e.ResumeSession(ctx, input.WorkLogID, at)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkLogResponse `json:"body"`
		}{Body: workLogResponse(wl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "end-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{work_log_id}/end",
		Summary:     "End a work session",
		Description: "Closes the session, records produced and defect quantities and rolls them up into the task.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		WorkLogID string            `path:"work_log_id"`
		Body      EndSessionRequest `json:"body"`
	}) (*struct {
		Body WorkLogResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		at, atErr := resolveAt(e, input.Body.At)
		if atErr != nil {
			return nil, atErr
		}
		wl, err := e.EndSession(ctx, input.WorkLogID, at, input.Body.QuantityProduced, input.Body.DefectQuantity)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkLogResponse `json:"body"`
		}{Body: workLogResponse(wl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-open-session",
		Method:      http.MethodGet,
		Path:        "/sessions/open",
		Summary:     "Get an actor's open session",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body WorkLogResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		wl, err := e.GetOpenSession(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		if wl == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no open session", map[string]any{"actor_id": input.ActorID})
		}
		return &struct {
			Body WorkLogResponse `json:"body"`
		}{Body: workLogResponse(*wl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{work_log_id}",
		Summary:     "Get work session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkLogID string `path:"work_log_id"`
	}) (*struct {
		Body WorkLogResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		wl, err := e.GetSession(ctx, input.WorkLogID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkLogResponse `json:"body"`
		}{Body: workLogResponse(wl)}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "actor-efficiency",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}/efficiency",
		Summary:     "Actor efficiency over a window",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ActorID     string `path:"actor_id"`
		WindowStart string `query:"window_start" format:"date-time"`
		WindowEnd   string `query:"window_end" format:"date-time"`
	}) (*struct {
		Body EfficiencyResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		start, err := time.Parse(time.RFC3339, input.WindowStart)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid window_start", nil)
		}
		end, err := time.Parse(time.RFC3339, input.WindowEnd)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid window_end", nil)
		}
		snap, err := e.ActorEfficiency(ctx, input.ActorID, start.UTC(), end.UTC())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EfficiencyResponse `json:"body"`
		}{Body: efficiencyResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-contributions",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/contributions",
		Summary:     "Per-actor contributions to a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskContributionResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		tc, err := e.TaskContribution(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskContributionResponse `json:"body"`
		}{Body: taskContributionResponse(tc)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "production-statistics",
		Method:      http.MethodGet,
		Path:        "/reports/production",
		Summary:     "Production statistics over a date range",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		StartDate string `query:"start_date" format:"date"`
		EndDate   string `query:"end_date" format:"date"`
	}) (*struct {
		Body ProductionStatsResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		stats, err := e.ProductionStatistics(ctx, input.StartDate, input.EndDate)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProductionStatsResponse `json:"body"`
		}{Body: productionStatsResponse(stats)}, nil
	})
}

func registerMachines(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-machine",
		Method:        http.MethodPost,
		Path:          "/machines",
		Summary:       "Create machine",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateMachineRequest `json:"body"`
	}) (*struct {
		Body MachineResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.CreateMachine(ctx, input.Body.Name, input.Body.EfficiencyNormHour, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MachineResponse `json:"body"`
		}{Body: machineResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-machines",
		Method:      http.MethodGet,
		Path:        "/machines",
		Summary:     "List machines",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []MachineResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		machines, err := e.Repo.ListMachines(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]MachineResponse, 0, len(machines))
		for _, m := range machines {
			items = append(items, machineResponse(m))
		}
		return &struct {
			Body []MachineResponse `json:"body"`
		}{Body: items}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, input.Body.MachineID, input.Body.Name, input.Body.TotalQuantity, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		tasks, err := e.Repo.ListTasks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]TaskResponse, 0, len(tasks))
		for _, t := range tasks {
			items = append(items, taskResponse(t))
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

func registerPoints(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-point",
		Method:        http.MethodPost,
		Path:          "/points",
		Summary:       "Register a scan point",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body RegisterQRPointRequest `json:"body"`
	}) (*struct {
		Body PointResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		token := ""
		if input.Body.Token != nil {
			token = *input.Body.Token
		}
		p, err := e.RegisterQRPoint(ctx, token, domain.QRPointType(input.Body.Type), input.Body.Label, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PointResponse `json:"body"`
		}{Body: pointResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-points",
		Method:      http.MethodGet,
		Path:        "/points",
		Summary:     "List scan points",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PointResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		points, err := e.Repo.ListQRPoints(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]PointResponse, 0, len(points))
		for _, p := range points {
			items = append(items, pointResponse(p))
		}
		return &struct {
			Body []PointResponse `json:"body"`
		}{Body: items}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"shift,work_log,machine,task,qr_point"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		events, err := e.Repo.LatestEvents(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]EventResponse, 0, len(events))
		for _, evt := range events {
			items = append(items, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: items}, nil
	})
}
