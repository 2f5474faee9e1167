package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dieterch/nas-automation/internal/schedule"
)

// handleListPeriods returns all stored periods in evaluation order.
//
// GET /api/v1/periods
func (s *Server) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.periods.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list periods", "error", err)
		writeInternalError(w, "failed to list periods")
		return
	}
	if periods == nil {
		periods = []schedule.ScheduledPeriod{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"periods": periods,
		"count":   len(periods),
	})
}

// handleGetPeriod returns a single period by ID.
//
// GET /api/v1/periods/{id}
func (s *Server) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := s.periods.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, schedule.ErrPeriodNotFound) {
			writeNotFound(w, "period not found")
			return
		}
		s.logger.Error("failed to get period", "error", err)
		writeInternalError(w, "failed to get period")
		return
	}
	writeJSON(w, http.StatusOK, period)
}

// handleCreatePeriod stores a new period.
//
// POST /api/v1/periods
func (s *Server) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	var period schedule.ScheduledPeriod
	if err := json.NewDecoder(r.Body).Decode(&period); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if period.ID == "" {
		writeBadRequest(w, "id is required")
		return
	}
	// Reserved IDs belong to the manual override and the sync jobs.
	if period.IsAuto() {
		writeBadRequest(w, "id is reserved")
		return
	}

	if err := s.periods.Create(r.Context(), &period); err != nil {
		switch {
		case errors.Is(err, schedule.ErrPeriodExists):
			writeConflict(w, "period already exists")
		case errors.Is(err, schedule.ErrInvalidPeriod):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("failed to create period", "error", err)
			writeInternalError(w, "failed to create period")
		}
		return
	}

	s.logger.Info("period created", "id", period.ID, "type", period.Type)
	writeJSON(w, http.StatusCreated, period)
}

// handleUpdatePeriod replaces an existing period's definition.
//
// PUT /api/v1/periods/{id}
func (s *Server) handleUpdatePeriod(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var period schedule.ScheduledPeriod
	if err := json.NewDecoder(r.Body).Decode(&period); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	period.ID = id

	if err := s.periods.Update(r.Context(), &period); err != nil {
		switch {
		case errors.Is(err, schedule.ErrPeriodNotFound):
			writeNotFound(w, "period not found")
		case errors.Is(err, schedule.ErrInvalidPeriod):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("failed to update period", "error", err)
			writeInternalError(w, "failed to update period")
		}
		return
	}

	s.logger.Info("period updated", "id", id)
	writeJSON(w, http.StatusOK, period)
}

// handleDeletePeriod removes a period.
//
// DELETE /api/v1/periods/{id}
func (s *Server) handleDeletePeriod(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.periods.Delete(r.Context(), id); err != nil {
		if errors.Is(err, schedule.ErrPeriodNotFound) {
			writeNotFound(w, "period not found")
			return
		}
		s.logger.Error("failed to delete period", "error", err)
		writeInternalError(w, "failed to delete period")
		return
	}

	s.logger.Info("period deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}
