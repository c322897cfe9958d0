package server

import (
	"net/http"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/scheduler"
)

// handleCreateProject handles POST /v1/projects.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in scheduler.ProjectInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	in.CreatedBy = actor(r, in.CreatedBy)

	p, err := s.svc.CreateProject(r.Context(), orgID(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleGetProject handles GET /v1/projects/{id}.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetProject(r.Context(), orgID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleGetSchedule handles GET /v1/projects/{id}/schedule.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetSchedule(r.Context(), orgID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleRecompute handles POST /v1/projects/{id}/recompute. With
// ?async=true the recompute is queued and 202 is returned.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	org, id := orgID(r), r.PathValue("id")

	if r.URL.Query().Get("async") == "true" && s.queue != nil {
		if _, err := s.svc.GetProject(r.Context(), org, id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !s.queue.Enqueue(org, id) {
			writeError(w, http.StatusServiceUnavailable, "recompute queue is full")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"project_id": id, "status": "queued"})
		return
	}

	view, err := s.svc.RecomputeSchedule(r.Context(), org, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleRecomputeProgress handles POST /v1/projects/{id}/progress.
func (s *Server) handleRecomputeProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pct, err := s.svc.RecomputeProjectProgress(r.Context(), orgID(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project_id": id, "progress": pct})
}

// handleNextNumber handles GET /v1/projects/{id}/next-number.
func (s *Server) handleNextNumber(w http.ResponseWriter, r *http.Request) {
	org, id := orgID(r), r.PathValue("id")

	number, err := s.svc.NextTaskNumber(r.Context(), org, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	code, err := s.svc.NextWBSCode(r.Context(), org, id, r.URL.Query().Get("parent_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_number": number, "wbs_code": code})
}

// handleListEvents handles GET /v1/projects/{id}/events.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	evts, err := s.svc.ListEvents(r.Context(), orgID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

// handleSweep handles POST /v1/sweep.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.SweepMilestoneStatuses(r.Context(), orgID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.Transitions == nil {
		res.Transitions = []scheduler.Transition{}
	}
	writeJSON(w, http.StatusOK, res)
}
