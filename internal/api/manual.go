package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dieterch/nas-automation/internal/automation"
	"github.com/dieterch/nas-automation/internal/schedule"
)

// manualWindowEnd is the default end clock for a manual override window:
// effectively "the rest of the day".
const manualWindowEnd = "23:59"

// manualStartRequest is the optional body of a manual start.
type manualStartRequest struct {
	// Until overrides the window's end clock ("HH:MM").
	Until string `json:"until"`
}

// handleManualStart opens the manual override window from now and fires a
// tick so the devices come up without waiting for the next timer.
//
// POST /api/v1/manual/start
func (s *Server) handleManualStart(w http.ResponseWriter, r *http.Request) {
	var req manualStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	end := manualWindowEnd
	if req.Until != "" {
		end = req.Until
	}

	now := time.Now()
	period := schedule.ScheduledPeriod{
		ID:      schedule.ManualPeriodID,
		Type:    schedule.PeriodOnce,
		Date:    now.Format("2006-01-02"),
		Start:   now.Format("15:04"),
		End:     end,
		Enabled: true,
		Label:   "manual override",
	}
	if err := s.periods.UpsertAuto(r.Context(), &period); err != nil {
		if errors.Is(err, schedule.ErrInvalidPeriod) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("failed to open manual window", "error", err)
		writeInternalError(w, "failed to open manual window")
		return
	}

	s.logger.Info("manual window opened", "until", end)

	// Unthrottled: the operator just asked for the devices, waiting out
	// the remainder of the tick interval would look like a dead button.
	res, err := s.controller.TickNow(r.Context())
	if err != nil {
		s.logger.Error("tick after manual start failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"period": period,
			"result": res,
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"period": period,
		"result": res,
	})
}

// handleManualStop closes the manual override window. The devices power
// down on the next tick if nothing else holds them on.
//
// POST /api/v1/manual/stop
func (s *Server) handleManualStop(w http.ResponseWriter, r *http.Request) {
	err := s.periods.Delete(r.Context(), schedule.ManualPeriodID)
	if err != nil && !errors.Is(err, schedule.ErrPeriodNotFound) {
		s.logger.Error("failed to close manual window", "error", err)
		writeInternalError(w, "failed to close manual window")
		return
	}
	if errors.Is(err, schedule.ErrPeriodNotFound) {
		writeNotFound(w, "no manual window open")
		return
	}

	s.logger.Info("manual window closed")
	writeJSON(w, http.StatusOK, map[string]any{"closed": true})
}

// handleNASOn powers the NAS on without opening a window. The next idle
// tick will take it back down unless something claims it.
//
// POST /api/v1/nas/on
func (s *Server) handleNASOn(w http.ResponseWriter, r *http.Request) {
	s.executeManual(w, r, automation.DecisionStartNAS, "manual start")
}

// handleNASOff shuts the NAS down gracefully without touching any window.
//
// POST /api/v1/nas/off
func (s *Server) handleNASOff(w http.ResponseWriter, r *http.Request) {
	s.executeManual(w, r, automation.DecisionShutdownNAS, "manual stop")
}

// handleVuPlusOn powers the satellite receiver on without opening a window.
//
// POST /api/v1/vuplus/on
func (s *Server) handleVuPlusOn(w http.ResponseWriter, r *http.Request) {
	s.executeManual(w, r, automation.DecisionStartVuPlus, "manual start")
}

func (s *Server) executeManual(w http.ResponseWriter, r *http.Request, decision automation.Decision, reason string) {
	if err := s.controller.Execute(r.Context(), decision, reason); err != nil {
		s.logger.Error("manual decision failed", "decision", decision, "error", err)
		writeInternalError(w, "manual decision failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decision": decision,
		"dry_run":  s.dryRun,
	})
}
