package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/scheduler"
)

// handleCreateTask handles POST /v1/projects/{id}/tasks.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in scheduler.TaskInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	in.CreatedBy = actor(r, in.CreatedBy)

	task, err := s.svc.CreateTask(r.Context(), orgID(r), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleListTasks handles GET /v1/projects/{id}/tasks.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.ListTasks(r.Context(), orgID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// handleGetTask handles GET /v1/tasks/{id}.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.GetTask(r.Context(), orgID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleUpdateTaskStatus handles PATCH /v1/tasks/{id}/status.
func (s *Server) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.TaskStatus `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if body.Status == "" {
		writeServiceError(w, r, inputError("status is required"))
		return
	}

	task, err := s.svc.UpdateTaskStatus(r.Context(), orgID(r), r.PathValue("id"), body.Status, actor(r, ""))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleSetTaskProgress handles PATCH /v1/tasks/{id}/progress.
func (s *Server) handleSetTaskProgress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PercentComplete *int `json:"percent_complete"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if body.PercentComplete == nil {
		writeServiceError(w, r, inputError("percent_complete is required"))
		return
	}

	task, err := s.svc.SetTaskProgress(r.Context(), orgID(r), r.PathValue("id"), *body.PercentComplete, actor(r, ""))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleUpdateTaskDependencies handles PUT /v1/tasks/{id}/dependencies. The
// body is either a dependency list or an object with a "dependencies" key;
// both the legacy id form and typed edges are accepted.
func (s *Server) handleUpdateTaskDependencies(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeServiceError(w, r, inputError("failed to read body"))
		return
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var body struct {
			Dependencies json.RawMessage `json:"dependencies"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			writeServiceError(w, r, inputError("invalid JSON body"))
			return
		}
		raw = body.Dependencies
	}

	deps, err := model.NormalizeDependencies(raw)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	task, err := s.svc.UpdateTaskDependencies(r.Context(), orgID(r), r.PathValue("id"), deps, actor(r, ""))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleDeleteTask handles DELETE /v1/tasks/{id}.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTask(r.Context(), orgID(r), r.PathValue("id"), actor(r, "")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
