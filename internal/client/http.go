package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/scheduler"
)

// HTTPClient implements PlanClient using the planline HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	orgID      string
	actor      string
	httpClient *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithOrg scopes every request to orgID.
func WithOrg(orgID string) Option {
	return func(c *HTTPClient) { c.orgID = orgID }
}

// WithActor names the caller on every request.
func WithActor(actor string) Option {
	return func(c *HTTPClient) { c.actor = actor }
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func projectPath(id string) string   { return "/v1/projects/" + url.PathEscape(id) }
func taskPath(id string) string      { return "/v1/tasks/" + url.PathEscape(id) }
func milestonePath(id string) string { return "/v1/milestones/" + url.PathEscape(id) }

// --- Projects ---

func (c *HTTPClient) CreateProject(ctx context.Context, req *CreateProjectRequest) (*model.Project, error) {
	var p model.Project
	if err := c.doJSON(ctx, http.MethodPost, "/v1/projects", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	if err := c.doJSON(ctx, http.MethodGet, projectPath(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) GetSchedule(ctx context.Context, projectID string) (*scheduler.ScheduleView, error) {
	var v scheduler.ScheduleView
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID)+"/schedule", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *HTTPClient) Recompute(ctx context.Context, projectID string) (*scheduler.ScheduleView, error) {
	var v scheduler.ScheduleView
	if err := c.doJSON(ctx, http.MethodPost, projectPath(projectID)+"/recompute", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *HTTPClient) RecomputeAsync(ctx context.Context, projectID string) error {
	return c.doJSON(ctx, http.MethodPost, projectPath(projectID)+"/recompute?async=true", nil, nil)
}

func (c *HTTPClient) RecomputeProgress(ctx context.Context, projectID string) (int, error) {
	var resp struct {
		Progress int `json:"progress"`
	}
	if err := c.doJSON(ctx, http.MethodPost, projectPath(projectID)+"/progress", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Progress, nil
}

func (c *HTTPClient) NextNumber(ctx context.Context, projectID, parentID string) (*NextNumber, error) {
	path := projectPath(projectID) + "/next-number"
	if parentID != "" {
		path += "?" + url.Values{"parent_id": {parentID}}.Encode()
	}
	var n NextNumber
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *HTTPClient) GetEvents(ctx context.Context, projectID string) ([]*model.Event, error) {
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID)+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// --- Tasks ---

func (c *HTTPClient) CreateTask(ctx context.Context, projectID string, req *CreateTaskRequest) (*model.Task, error) {
	var t model.Task
	if err := c.doJSON(ctx, http.MethodPost, projectPath(projectID)+"/tasks", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) ListTasks(ctx context.Context, projectID string) ([]*model.Task, error) {
	var resp struct {
		Tasks []*model.Task `json:"tasks"`
	}
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID)+"/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (c *HTTPClient) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	if err := c.doJSON(ctx, http.MethodGet, taskPath(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus) (*model.Task, error) {
	var t model.Task
	if err := c.doJSON(ctx, http.MethodPatch, taskPath(id)+"/status", map[string]string{"status": string(status)}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) SetTaskProgress(ctx context.Context, id string, pct int) (*model.Task, error) {
	var t model.Task
	if err := c.doJSON(ctx, http.MethodPatch, taskPath(id)+"/progress", map[string]int{"percent_complete": pct}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) UpdateTaskDependencies(ctx context.Context, id string, deps model.DependencyList) (*model.Task, error) {
	if deps == nil {
		deps = model.DependencyList{}
	}
	var t model.Task
	if err := c.doJSON(ctx, http.MethodPut, taskPath(id)+"/dependencies", map[string]any{"dependencies": deps}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) DeleteTask(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, taskPath(id), nil, nil)
}

// --- Milestones ---

func (c *HTTPClient) CreateMilestone(ctx context.Context, projectID string, req *CreateMilestoneRequest) (*model.Milestone, error) {
	var m model.Milestone
	if err := c.doJSON(ctx, http.MethodPost, projectPath(projectID)+"/milestones", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *HTTPClient) ListMilestones(ctx context.Context, projectID string) ([]*model.Milestone, error) {
	var resp struct {
		Milestones []*model.Milestone `json:"milestones"`
	}
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID)+"/milestones", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Milestones, nil
}

func (c *HTTPClient) GetMilestone(ctx context.Context, id string) (*model.Milestone, error) {
	return c.milestoneCall(ctx, http.MethodGet, milestonePath(id), nil)
}

func (c *HTTPClient) UpdateMilestoneDependencies(ctx context.Context, id string, milestoneDeps, taskDeps []string) (*model.Milestone, error) {
	body := map[string][]string{
		"milestone_dependencies": milestoneDeps,
		"task_dependencies":      taskDeps,
	}
	return c.milestoneCall(ctx, http.MethodPut, milestonePath(id)+"/dependencies", body)
}

func (c *HTTPClient) AchieveMilestone(ctx context.Context, id string) (*model.Milestone, error) {
	return c.milestoneCall(ctx, http.MethodPost, milestonePath(id)+"/achieve", nil)
}

func (c *HTTPClient) SetMilestoneApproval(ctx context.Context, id string, decision model.ApprovalStatus) (*model.Milestone, error) {
	return c.milestoneCall(ctx, http.MethodPost, milestonePath(id)+"/approval", map[string]string{"decision": string(decision)})
}

func (c *HTTPClient) CancelMilestone(ctx context.Context, id string) (*model.Milestone, error) {
	return c.milestoneCall(ctx, http.MethodPost, milestonePath(id)+"/cancel", nil)
}

func (c *HTTPClient) DeleteMilestone(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, milestonePath(id), nil, nil)
}

func (c *HTTPClient) milestoneCall(ctx context.Context, method, path string, body any) (*model.Milestone, error) {
	var m model.Milestone
	if err := c.doJSON(ctx, method, path, body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// --- Sweep ---

func (c *HTTPClient) Sweep(ctx context.Context) (*scheduler.SweepResult, error) {
	var res scheduler.SweepResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sweep", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server. Unmet and Cycle
// carry the details of gate and dependency violations.
type APIError struct {
	StatusCode int
	Message    string
	Unmet      []string
	Cycle      []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// setHeaders attaches the credentials and identity headers to req.
func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.orgID != "" {
		req.Header.Set("X-Org-ID", c.orgID)
	}
	if c.actor != "" {
		req.Header.Set("X-Actor", c.actor)
	}
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string   `json:"error"`
			Unmet []string `json:"unmet"`
			Cycle []string `json:"cycle"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Unmet: errResp.Unmet, Cycle: errResp.Cycle}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
