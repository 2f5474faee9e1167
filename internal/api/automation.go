package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dieterch/nas-automation/internal/automation"
	"github.com/dieterch/nas-automation/internal/plex"
	"github.com/dieterch/nas-automation/internal/schedule"
)

// defaultLogLimit is how many decision log entries the log endpoint
// returns when the client does not ask for a specific count.
const defaultLogLimit = 50

// maxLogLimit caps the log endpoint so a dashboard typo cannot pull the
// whole table.
const maxLogLimit = 500

// handleStatus returns the controller state record together with the
// schedule outlook: the currently active window, period/recording counts,
// and the next upcoming window and recording.
//
// GET /api/v1/automation/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	payload := map[string]any{
		"dry_run": s.dryRun,
		"version": s.version,
	}

	record, err := s.stateRepo.State(r.Context())
	switch {
	case errors.Is(err, automation.ErrStateNotFound):
		// No tick has run yet; report the initial state rather than 404,
		// dashboards poll this before the first tick fires.
		payload["state"] = automation.StateInit
	case err != nil:
		s.logger.Error("failed to read state", "error", err)
		writeInternalError(w, "failed to read automation state")
		return
	default:
		payload["state"] = record.State
		payload["since"] = record.Since
		payload["last_tick_at"] = record.LastTickAt
		payload["last_decision"] = record.LastDecision
		payload["reason"] = record.Reason
		payload["last_window"] = record.LastWindow
		payload["last_recording"] = record.LastRecording
	}

	s.attachOutlook(r, now, payload)
	writeJSON(w, http.StatusOK, payload)
}

// attachOutlook adds active_window, counts and next to a status payload.
// Outlook failures degrade the response rather than failing it.
func (s *Server) attachOutlook(r *http.Request, now time.Time, payload map[string]any) {
	periods, err := s.periods.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list periods for status", "error", err)
		return
	}
	recordings := s.relevantRecordings(now)

	payload["counts"] = map[string]int{
		"periods":    len(periods),
		"recordings": len(recordings),
	}

	if eval := schedule.Evaluate(now, periods); eval.Active {
		payload["active_window"] = eval.Period.DisplayName()
	}

	next := map[string]any{}
	if p, start, ok := nextWindow(periods, now); ok {
		next["window"] = map[string]any{
			"id":    p.ID,
			"label": p.DisplayName(),
			"start": start,
		}
	}
	if rec, ok := nextRecording(recordings, now); ok {
		next["recording"] = map[string]any{
			"title": rec.Title,
			"start": rec.RecordStart,
		}
	}
	if len(next) > 0 {
		payload["next"] = next
	}
}

// nextWindow finds the enabled period whose upcoming occurrence starts
// soonest after now.
func nextWindow(periods []schedule.ScheduledPeriod, now time.Time) (*schedule.ScheduledPeriod, time.Time, bool) {
	var (
		best      *schedule.ScheduledPeriod
		bestStart time.Time
	)
	for i := range periods {
		p := &periods[i]
		if !p.Enabled {
			continue
		}
		start, _, ok := schedule.NextOccurrence(*p, now)
		if !ok || !start.After(now) {
			continue
		}
		if best == nil || start.Before(bestStart) {
			best = p
			bestStart = start
		}
	}
	return best, bestStart, best != nil
}

// nextRecording finds the recording whose slot starts soonest after now.
func nextRecording(recordings []plex.RecordingInterval, now time.Time) (plex.RecordingInterval, bool) {
	var (
		best  plex.RecordingInterval
		found bool
	)
	for _, rec := range recordings {
		if !rec.RecordStart.After(now) {
			continue
		}
		if !found || rec.RecordStart.Before(best.RecordStart) {
			best = rec
			found = true
		}
	}
	return best, found
}

// relevantRecordings loads the cached schedule and keeps the intervals
// whose grace-off instant is still ahead. Nil when no cache is wired or
// none was ever accepted.
func (s *Server) relevantRecordings(now time.Time) []plex.RecordingInterval {
	if s.cache == nil {
		return nil
	}
	snap, err := s.cache.Load()
	if err != nil {
		return nil
	}

	var relevant []plex.RecordingInterval
	for _, rec := range plex.BuildIntervals(snap.Data, s.lead, s.lag) {
		if rec.GraceOffAt.After(now) {
			relevant = append(relevant, rec)
		}
	}
	return relevant
}

// handleLog returns the newest decision log entries.
//
// GET /api/v1/automation/log?limit=N
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	entries, err := s.stateRepo.Log(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read decision log", "error", err)
		writeInternalError(w, "failed to read decision log")
		return
	}
	if entries == nil {
		entries = []automation.DecisionEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// timelineEntry is one upcoming period occurrence or recording interval.
type timelineEntry struct {
	ID      string    `json:"id"`
	Label   string    `json:"label"`
	Type    string    `json:"type"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Active  bool      `json:"active"`
	Enabled bool      `json:"enabled"`
}

// handleTimeline returns the next occurrence of every stored period merged
// with the upcoming recording intervals, soonest first. Disabled periods
// are included so the dashboard can show them greyed out.
//
// GET /api/v1/automation/timeline
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	periods, err := s.periods.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list periods", "error", err)
		writeInternalError(w, "failed to list periods")
		return
	}

	now := time.Now()
	entries := make([]timelineEntry, 0, len(periods))
	for i := range periods {
		p := &periods[i]
		start, end, ok := schedule.NextOccurrence(*p, now)
		if !ok {
			continue
		}
		entries = append(entries, timelineEntry{
			ID:      p.ID,
			Label:   p.DisplayName(),
			Type:    string(p.Type),
			Start:   start,
			End:     end,
			Active:  p.Enabled && !now.Before(start) && now.Before(end),
			Enabled: p.Enabled,
		})
	}
	for i, rec := range s.relevantRecordings(now) {
		entries = append(entries, timelineEntry{
			ID:      "recording-" + strconv.Itoa(i),
			Label:   rec.Title,
			Type:    "recording",
			Start:   rec.RecordStart,
			End:     rec.RecordEnd,
			Active:  rec.Covers(now),
			Enabled: true,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Start.Before(entries[j].Start)
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"now":     now,
		"entries": entries,
	})
}

// handleTick fires one evaluation of the pipeline. Throttling applies as
// for any other tick source, so wiring this to a cron line is safe.
//
// POST /api/v1/automation/tick
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Tick(r.Context())
	if err != nil {
		s.logger.Error("tick failed", "error", err)
		// The result still describes what was decided before the failure.
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"result": res,
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}
