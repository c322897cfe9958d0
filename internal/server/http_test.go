package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/scheduler"
	"github.com/alfredjeanlab/planline/internal/store/memory"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer() (*Server, *scheduler.Service, http.Handler) {
	hub := NewEventHub()
	svc := scheduler.New(memory.New(), nil,
		scheduler.WithClock(func() time.Time { return testNow }),
		scheduler.WithEventObserver(hub.Observe),
	)
	s := New(svc, nil, hub)
	return s, svc, s.NewHTTPHandler("")
}

// doJSON performs an HTTP request with an optional JSON body and returns the recorder.
func doJSON(t *testing.T, handler http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		var b []byte
		if raw, ok := body.(string); ok {
			b = []byte(raw)
		} else {
			b, _ = json.Marshal(body)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// requireStatus asserts the recorder has the expected HTTP status code.
func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("expected status %d, got %d; body: %s", code, rec.Code, rec.Body.String())
	}
}

// decodeJSON decodes the recorder's response body into v.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func createProject(t *testing.T, h http.Handler) *model.Project {
	t.Helper()
	rec := doJSON(t, h, "POST", "/v1/projects", map[string]any{
		"name":       "Bridge",
		"start_date": "2026-01-01T00:00:00Z",
		"end_date":   "2026-12-31T00:00:00Z",
	}, headerActor, "alice")
	requireStatus(t, rec, http.StatusCreated)
	var p model.Project
	decodeJSON(t, rec, &p)
	return &p
}

func createTask(t *testing.T, h http.Handler, projectID string, body map[string]any) *model.Task {
	t.Helper()
	rec := doJSON(t, h, "POST", "/v1/projects/"+projectID+"/tasks", body)
	requireStatus(t, rec, http.StatusCreated)
	var task model.Task
	decodeJSON(t, rec, &task)
	return &task
}

func createMilestone(t *testing.T, h http.Handler, projectID string, body map[string]any) *model.Milestone {
	t.Helper()
	rec := doJSON(t, h, "POST", "/v1/projects/"+projectID+"/milestones", body)
	requireStatus(t, rec, http.StatusCreated)
	var m model.Milestone
	decodeJSON(t, rec, &m)
	return &m
}

func TestHandleCreateProject(t *testing.T) {
	_, _, h := newTestServer()
	p := createProject(t, h)
	if p.ID == "" || p.OrgID != DefaultOrgID || p.CreatedBy != "alice" {
		t.Fatalf("unexpected project: %+v", p)
	}

	rec := doJSON(t, h, "GET", "/v1/projects/"+p.ID, nil)
	requireStatus(t, rec, http.StatusOK)

	// Another organization cannot see it.
	rec = doJSON(t, h, "GET", "/v1/projects/"+p.ID, nil, headerOrgID, "other")
	requireStatus(t, rec, http.StatusNotFound)
}

func TestHandleSchedule_WorkedExample(t *testing.T) {
	_, _, h := newTestServer()
	p := createProject(t, h)

	a := createTask(t, h, p.ID, map[string]any{"title": "A", "estimated_hours": 5})
	b := createTask(t, h, p.ID, map[string]any{"title": "B", "estimated_hours": 3, "dependencies": []string{a.ID}})
	c := createTask(t, h, p.ID, map[string]any{"title": "C", "estimated_hours": 2, "dependencies": []map[string]any{
		{"target": a.ID, "lag": 2},
	}})
	if a.TaskNumber != "TSK-001" || a.WBSCode != "1" || b.WBSCode != "2" {
		t.Fatalf("numbering: a=%s/%s b=%s", a.TaskNumber, a.WBSCode, b.WBSCode)
	}
	if len(b.Dependencies) != 1 || b.Dependencies[0].Relation != model.FinishToStart {
		t.Fatalf("legacy dependencies not normalized: %+v", b.Dependencies)
	}

	rec := doJSON(t, h, "GET", "/v1/projects/"+p.ID+"/schedule", nil)
	requireStatus(t, rec, http.StatusOK)
	var view scheduler.ScheduleView
	decodeJSON(t, rec, &view)
	if view.Completion != 9 {
		t.Errorf("completion = %g, want 9", view.Completion)
	}
	if len(view.CriticalPath) != 2 || view.CriticalPath[0] != a.ID || view.CriticalPath[1] != c.ID {
		t.Errorf("critical path = %v, want [%s %s]", view.CriticalPath, a.ID, c.ID)
	}

	rec = doJSON(t, h, "POST", "/v1/projects/"+p.ID+"/recompute", nil)
	requireStatus(t, rec, http.StatusOK)

	rec = doJSON(t, h, "GET", "/v1/projects/"+p.ID+"/next-number?parent_id="+a.ID, nil)
	requireStatus(t, rec, http.StatusOK)
	var next map[string]string
	decodeJSON(t, rec, &next)
	if next["task_number"] != "TSK-004" || next["wbs_code"] != "1.1" {
		t.Errorf("next-number = %v", next)
	}
}

func TestHandleUpdateTaskDependencies(t *testing.T) {
	_, _, h := newTestServer()
	p := createProject(t, h)
	a := createTask(t, h, p.ID, map[string]any{"title": "A", "estimated_hours": 2})
	b := createTask(t, h, p.ID, map[string]any{"title": "B", "estimated_hours": 2, "dependencies": []string{a.ID}})

	for _, tc := range []struct {
		name string
		id   string
		body string
		code int
		want string
	}{
		{"BareArray", b.ID, `["` + a.ID + `"]`, http.StatusOK, ""},
		{"Wrapped", b.ID, `{"dependencies":[{"target":"` + a.ID + `","relation":"start_to_start"}]}`, http.StatusOK, ""},
		{"Clear", b.ID, `[]`, http.StatusOK, ""},
		{"ReverseEdge", a.ID, `["` + b.ID + `"]`, http.StatusOK, ""},
		{"Cycle", b.ID, `["` + a.ID + `"]`, http.StatusUnprocessableEntity, `"cycle"`},
		{"BadRelation", b.ID, `[{"target":"` + a.ID + `","relation":"sideways"}]`, http.StatusBadRequest, "unknown relation"},
		{"NotArray", b.ID, `{"dependencies":"x"}`, http.StatusBadRequest, "must be a JSON array"},
		{"UnknownTask", "tsk-missing", `[]`, http.StatusNotFound, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, "PUT", "/v1/tasks/"+tc.id+"/dependencies", tc.body)
			requireStatus(t, rec, tc.code)
			if tc.want != "" && !strings.Contains(rec.Body.String(), tc.want) {
				t.Fatalf("expected %q in body, got %s", tc.want, rec.Body.String())
			}
		})
	}
}

func TestHandleTaskProgress(t *testing.T) {
	_, _, h := newTestServer()
	p := createProject(t, h)
	a := createTask(t, h, p.ID, map[string]any{"title": "A", "estimated_hours": 4})
	createTask(t, h, p.ID, map[string]any{"title": "B", "estimated_hours": 4})

	rec := doJSON(t, h, "PATCH", "/v1/tasks/"+a.ID+"/progress", map[string]any{"percent_complete": 100})
	requireStatus(t, rec, http.StatusOK)
	var got model.Task
	decodeJSON(t, rec, &got)
	if got.Status != model.TaskCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}

	rec = doJSON(t, h, "GET", "/v1/projects/"+p.ID, nil)
	var proj model.Project
	decodeJSON(t, rec, &proj)
	if proj.Progress != 50 {
		t.Fatalf("progress = %d, want 50", proj.Progress)
	}

	rec = doJSON(t, h, "PATCH", "/v1/tasks/"+a.ID+"/progress", map[string]any{})
	requireStatus(t, rec, http.StatusBadRequest)
	rec = doJSON(t, h, "PATCH", "/v1/tasks/"+a.ID+"/progress", map[string]any{"percent_complete": 120})
	requireStatus(t, rec, http.StatusBadRequest)
	rec = doJSON(t, h, "PATCH", "/v1/tasks/"+a.ID+"/status", map[string]any{"status": "cancelled"})
	requireStatus(t, rec, http.StatusOK)
	rec = doJSON(t, h, "PATCH", "/v1/tasks/"+a.ID+"/status", map[string]any{"status": "paused"})
	requireStatus(t, rec, http.StatusBadRequest)

	rec = doJSON(t, h, "POST", "/v1/projects/"+p.ID+"/progress", nil)
	requireStatus(t, rec, http.StatusOK)
	var body map[string]any
	decodeJSON(t, rec, &body)
	if body["progress"] != float64(0) {
		t.Fatalf("progress after cancel = %v, want 0", body["progress"])
	}
}

func TestHandleMilestoneGate(t *testing.T) {
	_, _, h := newTestServer()
	p := createProject(t, h)
	task := createTask(t, h, p.ID, map[string]any{"title": "Design", "estimated_hours": 8})
	gate := createMilestone(t, h, p.ID, map[string]any{
		"name":              "Design review",
		"planned_date":      "2026-06-01T00:00:00Z",
		"is_gate":           true,
		"approval_required": true,
		"approvers":         []string{"bob"},
		"task_dependencies": []string{task.ID},
		"progress_weight":   100,
	})

	rec := doJSON(t, h, "POST", "/v1/milestones/"+gate.ID+"/achieve", nil, headerActor, "bob")
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	var er errorResponse
	decodeJSON(t, rec, &er)
	if len(er.Unmet) == 0 {
		t.Fatalf("expected unmet conditions, got %+v", er)
	}

	rec = doJSON(t, h, "PATCH", "/v1/tasks/"+task.ID+"/status", map[string]any{"status": "completed"})
	requireStatus(t, rec, http.StatusOK)

	rec = doJSON(t, h, "POST", "/v1/milestones/"+gate.ID+"/approval", map[string]any{"decision": "approved"})
	requireStatus(t, rec, http.StatusBadRequest) // no actor
	rec = doJSON(t, h, "POST", "/v1/milestones/"+gate.ID+"/approval", map[string]any{"decision": "maybe"}, headerActor, "bob")
	requireStatus(t, rec, http.StatusBadRequest)
	rec = doJSON(t, h, "POST", "/v1/milestones/"+gate.ID+"/approval", map[string]any{"decision": "approved"}, headerActor, "mallory")
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	rec = doJSON(t, h, "POST", "/v1/milestones/"+gate.ID+"/approval", map[string]any{"decision": "approved"}, headerActor, "bob")
	requireStatus(t, rec, http.StatusOK)

	rec = doJSON(t, h, "POST", "/v1/milestones/"+gate.ID+"/achieve", nil, headerActor, "bob")
	requireStatus(t, rec, http.StatusOK)
	var m model.Milestone
	decodeJSON(t, rec, &m)
	if m.Status != model.MilestoneAchieved || m.AchievedBy != "bob" {
		t.Fatalf("unexpected milestone: %+v", m)
	}

	rec = doJSON(t, h, "POST", "/v1/milestones/"+gate.ID+"/cancel", nil)
	requireStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestHandleDeleteMilestone_Guarded(t *testing.T) {
	_, _, h := newTestServer()
	p := createProject(t, h)
	first := createMilestone(t, h, p.ID, map[string]any{"name": "M1", "planned_date": "2026-05-01T00:00:00Z"})
	second := createMilestone(t, h, p.ID, map[string]any{
		"name": "M2", "planned_date": "2026-06-01T00:00:00Z", "milestone_dependencies": []string{first.ID},
	})

	rec := doJSON(t, h, "DELETE", "/v1/milestones/"+first.ID, nil)
	requireStatus(t, rec, http.StatusUnprocessableEntity)

	rec = doJSON(t, h, "PUT", "/v1/milestones/"+second.ID+"/dependencies", map[string]any{"milestone_dependencies": []string{}})
	requireStatus(t, rec, http.StatusOK)
	rec = doJSON(t, h, "DELETE", "/v1/milestones/"+first.ID, nil)
	requireStatus(t, rec, http.StatusNoContent)

	rec = doJSON(t, h, "GET", "/v1/projects/"+p.ID+"/milestones", nil)
	requireStatus(t, rec, http.StatusOK)
	var list struct {
		Milestones []*model.Milestone `json:"milestones"`
	}
	decodeJSON(t, rec, &list)
	if len(list.Milestones) != 1 || list.Milestones[0].ID != second.ID {
		t.Fatalf("milestones = %+v", list.Milestones)
	}
}

func TestHandleSweep(t *testing.T) {
	_, _, h := newTestServer()
	p := createProject(t, h)
	late := createMilestone(t, h, p.ID, map[string]any{"name": "Late", "planned_date": "2026-02-01T00:00:00Z"})
	createMilestone(t, h, p.ID, map[string]any{"name": "Far", "planned_date": "2026-09-01T00:00:00Z"})

	rec := doJSON(t, h, "POST", "/v1/sweep", nil)
	requireStatus(t, rec, http.StatusOK)
	var res scheduler.SweepResult
	decodeJSON(t, rec, &res)
	if len(res.Transitions) != 1 || res.Transitions[0].MilestoneID != late.ID || res.Transitions[0].To != model.MilestoneMissed {
		t.Fatalf("transitions = %+v", res.Transitions)
	}

	rec = doJSON(t, h, "GET", "/v1/projects/"+p.ID+"/events", nil)
	requireStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "planline.milestone.missed") {
		t.Fatalf("expected missed event, got %s", rec.Body.String())
	}
}

func TestHandleDeleteTask(t *testing.T) {
	_, _, h := newTestServer()
	p := createProject(t, h)
	a := createTask(t, h, p.ID, map[string]any{"title": "A", "estimated_hours": 2})
	b := createTask(t, h, p.ID, map[string]any{"title": "B", "estimated_hours": 2, "dependencies": []string{a.ID}})

	rec := doJSON(t, h, "DELETE", "/v1/tasks/"+a.ID, nil)
	requireStatus(t, rec, http.StatusNoContent)

	rec = doJSON(t, h, "GET", "/v1/tasks/"+b.ID, nil)
	requireStatus(t, rec, http.StatusOK)
	var got model.Task
	decodeJSON(t, rec, &got)
	if len(got.Dependencies) != 0 {
		t.Fatalf("dangling dependency left: %+v", got.Dependencies)
	}

	rec = doJSON(t, h, "GET", "/v1/projects/"+p.ID+"/tasks", nil)
	var list struct {
		Tasks []*model.Task `json:"tasks"`
	}
	decodeJSON(t, rec, &list)
	if len(list.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(list.Tasks))
	}
}

func TestHandleHTTPErrors(t *testing.T) {
	_, _, h := newTestServer()
	p := createProject(t, h)

	for _, tc := range []struct {
		name      string
		method    string
		path      string
		body      any
		code      int
		wantError string
	}{
		{"CreateProject/BadJSON", "POST", "/v1/projects", `{"name":`, 400, "invalid JSON body"},
		{"CreateProject/Invalid", "POST", "/v1/projects", map[string]any{"name": ""}, 400, "validation failed"},
		{"GetProject/NotFound", "GET", "/v1/projects/prj-missing", nil, 404, "not found"},
		{"Schedule/NotFound", "GET", "/v1/projects/prj-missing/schedule", nil, 404, ""},
		{"CreateTask/MissingTitle", "POST", "/v1/projects/" + p.ID + "/tasks", map[string]any{}, 400, "title"},
		{"CreateTask/UnknownProject", "POST", "/v1/projects/prj-missing/tasks", map[string]any{"title": "x"}, 404, ""},
		{"CreateTask/UnknownDependency", "POST", "/v1/projects/" + p.ID + "/tasks", map[string]any{"title": "x", "dependencies": []string{"tsk-nope"}}, 404, "tsk-nope"},
		{"UpdateStatus/Missing", "PATCH", "/v1/tasks/tsk-x/status", map[string]any{}, 400, "status is required"},
		{"GetTask/NotFound", "GET", "/v1/tasks/tsk-missing", nil, 404, ""},
		{"GetMilestone/NotFound", "GET", "/v1/milestones/ms-missing", nil, 404, ""},
		{"CreateMilestone/OutsideWindow", "POST", "/v1/projects/" + p.ID + "/milestones", map[string]any{"name": "m", "planned_date": "2027-06-01T00:00:00Z"}, 400, ""},
		{"Unmatched", "GET", "/v1/nowhere", nil, 404, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, tc.method, tc.path, tc.body, headerActor, "alice")
			requireStatus(t, rec, tc.code)
			if tc.wantError != "" && !strings.Contains(rec.Body.String(), tc.wantError) {
				t.Fatalf("expected error containing %q, got %s", tc.wantError, rec.Body.String())
			}
		})
	}
}

func TestHandleRecompute_Async(t *testing.T) {
	hub := NewEventHub()
	svc := scheduler.New(memory.New(), nil, scheduler.WithClock(func() time.Time { return testNow }))
	q := scheduler.NewQueue(svc, 1, discardLogger())
	h := New(svc, q, hub).NewHTTPHandler("")
	p := createProject(t, h)

	rec := doJSON(t, h, "POST", "/v1/projects/"+p.ID+"/recompute?async=true", nil)
	requireStatus(t, rec, http.StatusAccepted)

	rec = doJSON(t, h, "POST", "/v1/projects/prj-missing/recompute?async=true", nil)
	requireStatus(t, rec, http.StatusNotFound)
}

func TestHandleHealthAndMetrics(t *testing.T) {
	_, _, h := newTestServer()
	// Generate at least one observation.
	requireStatus(t, doJSON(t, h, "GET", "/v1/health", nil), http.StatusOK)

	rec := doJSON(t, h, "GET", "/metrics", nil)
	requireStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "planline_http_request_duration_seconds") {
		t.Fatal("expected request histogram in /metrics output")
	}
}

func TestHandler_RequiresToken(t *testing.T) {
	s, _, _ := newTestServer()
	h := s.NewHTTPHandler("secret")

	requireStatus(t, doJSON(t, h, "POST", "/v1/sweep", nil), http.StatusUnauthorized)
	requireStatus(t, doJSON(t, h, "POST", "/v1/sweep", nil, "Authorization", "Bearer secret"), http.StatusOK)
	requireStatus(t, doJSON(t, h, "GET", "/v1/health", nil), http.StatusOK)
}
