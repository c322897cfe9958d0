package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/planline/internal/metrics"
	"github.com/alfredjeanlab/planline/internal/model"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health and
// GET /metrics) must include a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/projects", s.handleCreateProject)
	mux.HandleFunc("GET /v1/projects/{id}", s.handleGetProject)
	mux.HandleFunc("GET /v1/projects/{id}/schedule", s.handleGetSchedule)
	mux.HandleFunc("POST /v1/projects/{id}/recompute", s.handleRecompute)
	mux.HandleFunc("POST /v1/projects/{id}/progress", s.handleRecomputeProgress)
	mux.HandleFunc("GET /v1/projects/{id}/next-number", s.handleNextNumber)
	mux.HandleFunc("GET /v1/projects/{id}/events", s.handleListEvents)
	mux.HandleFunc("POST /v1/projects/{id}/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /v1/projects/{id}/tasks", s.handleListTasks)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PATCH /v1/tasks/{id}/status", s.handleUpdateTaskStatus)
	mux.HandleFunc("PATCH /v1/tasks/{id}/progress", s.handleSetTaskProgress)
	mux.HandleFunc("PUT /v1/tasks/{id}/dependencies", s.handleUpdateTaskDependencies)
	mux.HandleFunc("DELETE /v1/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("POST /v1/projects/{id}/milestones", s.handleCreateMilestone)
	mux.HandleFunc("GET /v1/projects/{id}/milestones", s.handleListMilestones)
	mux.HandleFunc("GET /v1/milestones/{id}", s.handleGetMilestone)
	mux.HandleFunc("PUT /v1/milestones/{id}/dependencies", s.handleUpdateMilestoneDependencies)
	mux.HandleFunc("POST /v1/milestones/{id}/achieve", s.handleAchieveMilestone)
	mux.HandleFunc("POST /v1/milestones/{id}/approval", s.handleMilestoneApproval)
	mux.HandleFunc("POST /v1/milestones/{id}/cancel", s.handleCancelMilestone)
	mux.HandleFunc("DELETE /v1/milestones/{id}", s.handleDeleteMilestone)
	mux.HandleFunc("POST /v1/sweep", s.handleSweep)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return MetricsMiddleware(AuthMiddleware(authToken, mux))
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody decodes a JSON request body into v. Validation errors raised
// while decoding (dependency normalization) are passed through unchanged.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return nil
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return inputError("invalid JSON body")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusRecorder captures the response status for metrics. It forwards
// Flush so the event stream keeps working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MetricsMiddleware records the latency of every request by route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordHTTPRequest(r.Method, pattern, rec.status, time.Since(start))
	})
}
