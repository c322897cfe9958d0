package server

import (
	"net/http"

	"github.com/alfredjeanlab/planline/internal/model"
	"github.com/alfredjeanlab/planline/internal/scheduler"
)

// handleCreateMilestone handles POST /v1/projects/{id}/milestones.
func (s *Server) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	var in scheduler.MilestoneInput
	if err := decodeBody(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	in.CreatedBy = actor(r, in.CreatedBy)

	m, err := s.svc.CreateMilestone(r.Context(), orgID(r), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// handleListMilestones handles GET /v1/projects/{id}/milestones.
func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	ms, err := s.svc.ListMilestones(r.Context(), orgID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if ms == nil {
		ms = []*model.Milestone{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"milestones": ms})
}

// handleGetMilestone handles GET /v1/milestones/{id}.
func (s *Server) handleGetMilestone(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.GetMilestone(r.Context(), orgID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleUpdateMilestoneDependencies handles PUT /v1/milestones/{id}/dependencies.
func (s *Server) handleUpdateMilestoneDependencies(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MilestoneDependencies []string `json:"milestone_dependencies"`
		TaskDependencies      []string `json:"task_dependencies"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}

	m, err := s.svc.UpdateMilestoneDependencies(r.Context(), orgID(r), r.PathValue("id"),
		body.MilestoneDependencies, body.TaskDependencies, actor(r, ""))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleAchieveMilestone handles POST /v1/milestones/{id}/achieve.
func (s *Server) handleAchieveMilestone(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.AchieveMilestone(r.Context(), orgID(r), r.PathValue("id"), actor(r, ""))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleMilestoneApproval handles POST /v1/milestones/{id}/approval.
func (s *Server) handleMilestoneApproval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Decision model.ApprovalStatus `json:"decision"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	who := actor(r, "")
	if who == "" {
		writeServiceError(w, r, inputError(headerActor+" header is required"))
		return
	}

	m, err := s.svc.SetMilestoneApproval(r.Context(), orgID(r), r.PathValue("id"), who, body.Decision)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleCancelMilestone handles POST /v1/milestones/{id}/cancel.
func (s *Server) handleCancelMilestone(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.CancelMilestone(r.Context(), orgID(r), r.PathValue("id"), actor(r, ""))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleDeleteMilestone handles DELETE /v1/milestones/{id}.
func (s *Server) handleDeleteMilestone(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteMilestone(r.Context(), orgID(r), r.PathValue("id"), actor(r, "")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
