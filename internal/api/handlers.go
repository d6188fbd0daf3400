// Package api provides HTTP handlers for FormCadence ledger endpoints.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
	"github.com/BTreeMap/FormCadence/internal/progress"
	"github.com/BTreeMap/FormCadence/internal/recurrence"
)

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	cfg := s.svc.Config()
	healthData := map[string]interface{}{
		"status":            "healthy",
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds":    int(time.Since(s.started).Seconds()),
		"study_id":          cfg.ID,
		"anchor_cycle_days": s.svc.Schedule().AnchorCycleDays,
	}

	// Participant count doubles as a storage probe
	statusCode := http.StatusOK
	if participants, err := s.svc.Participants(); err != nil {
		slog.Warn("Server.healthHandler: failed to list participants", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach the store"
		statusCode = http.StatusServiceUnavailable
	} else {
		healthData["participants"] = len(participants)
	}
	writeJSONResponse(w, statusCode, healthData)
}

// scheduleHandler computes an anchor schedule for ad-hoc forms (POST /api/v1/schedule/generate)
func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.scheduleHandler: processing schedule request", "method", r.Method, "path", r.URL.Path)
	var req models.ScheduleRequest
	if !decodeJSON(w, r, "scheduleHandler", &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "scheduleHandler", err)
		return
	}
	maxCycle := s.svc.Config().MaxAnchorCycleDays
	if req.MaxCycleDays > 0 && req.MaxCycleDays < maxCycle {
		maxCycle = req.MaxCycleDays
	}
	schedule, err := recurrence.ComputeSchedule(req.Forms, req.DurationDays, recurrence.WithMaxCycleDays(maxCycle))
	if err != nil {
		writeError(w, "scheduleHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(schedule))
}

// listDayTypesHandler lists the study's day types in registration order (GET /api/v1/daytypes)
func (s *Server) listDayTypesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.svc.Registry().List()))
}

// resolveHandler explains which candidate is active (POST /api/v1/daytypes/resolve)
func (s *Server) resolveHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if !decodeJSON(w, r, "resolveHandler", &req) {
		return
	}
	date, err := req.Validate()
	if err != nil {
		writeError(w, "resolveHandler", err)
		return
	}
	if date.IsZero() {
		date = time.Now().UTC()
	}
	explanation := s.svc.Registry().Explain(req.Candidates, date)
	slog.Debug("Server.resolveHandler: resolved", "candidates", req.Candidates, "reason", explanation.Reason)
	writeJSONResponse(w, http.StatusOK, models.Success(explanation))
}

// completionHandler records a completion (POST /api/v1/completions). With
// candidates it also answers navigation in the same step.
func (s *Server) completionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CompletionRequest
	if !decodeJSON(w, r, "completionHandler", &req) {
		return
	}
	key, err := req.Key()
	if err != nil {
		writeError(w, "completionHandler", err)
		return
	}

	if len(req.Candidates) > 0 {
		adv, err := s.svc.CompleteAndAdvance(key, req.Candidates)
		if err != nil {
			writeError(w, "completionHandler", err)
			return
		}
		writeCompletion(w, adv.Duplicate, adv)
		return
	}
	rec, err := s.svc.RecordCompletion(key)
	if err != nil {
		writeError(w, "completionHandler", err)
		return
	}
	writeCompletion(w, rec.Duplicate, rec)
}

func writeCompletion(w http.ResponseWriter, duplicate bool, result interface{}) {
	if duplicate {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Completion already recorded", result))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.RecordedWithMessage("Completion recorded", result))
}

// skipHandler records a skip (POST /api/v1/skips)
func (s *Server) skipHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SkipRequest
	if !decodeJSON(w, r, "skipHandler", &req) {
		return
	}
	key, err := req.Key()
	if err != nil {
		writeError(w, "skipHandler", err)
		return
	}
	out, err := s.svc.Skip(key, req.Reason)
	if err != nil {
		writeError(w, "skipHandler", err)
		return
	}
	writeOutcome(w, out)
}

// unskipHandler removes a skip (DELETE /api/v1/skips)
func (s *Server) unskipHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SkipRequest
	if !decodeJSON(w, r, "unskipHandler", &req) {
		return
	}
	key, err := req.Key()
	if err != nil {
		writeError(w, "unskipHandler", err)
		return
	}
	out, err := s.svc.Unskip(key)
	if err != nil {
		writeError(w, "unskipHandler", err)
		return
	}
	writeOutcome(w, out)
}

// progressResult pairs day progress with its display message.
type progressResult struct {
	models.DayProgress
	Message string `json:"message"`
}

// progressHandler computes progress for one day type (POST /api/v1/progress)
func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ProgressRequest
	if !decodeJSON(w, r, "progressHandler", &req) {
		return
	}
	date, err := req.Validate()
	if err != nil {
		writeError(w, "progressHandler", err)
		return
	}
	p, err := s.svc.DayProgress(req.DayTypeID, req.Phase, date, req.ParticipantID)
	if err != nil {
		writeError(w, "progressHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(progressResult{DayProgress: p, Message: progress.Message(p)}))
}

// navigationNextHandler answers "what comes next?" (POST /api/v1/navigation/next)
func (s *Server) navigationNextHandler(w http.ResponseWriter, r *http.Request) {
	var req models.NavigationRequest
	if !decodeJSON(w, r, "navigationNextHandler", &req) {
		return
	}
	date, err := req.Validate()
	if err != nil {
		writeError(w, "navigationNextHandler", err)
		return
	}
	action, err := s.svc.NextAction(req.JustCompleted, req.Candidates, req.Phase, date, req.ParticipantID)
	if err != nil {
		writeError(w, "navigationNextHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(action))
}

// navigationStatusHandler snapshots a day for initial load (POST /api/v1/navigation/status)
func (s *Server) navigationStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req models.NavigationRequest
	if !decodeJSON(w, r, "navigationStatusHandler", &req) {
		return
	}
	date, err := req.Validate()
	if err != nil {
		writeError(w, "navigationStatusHandler", err)
		return
	}
	if date.IsZero() {
		date = time.Now().UTC()
	}
	status, err := s.svc.Decider().CurrentStatus(req.Candidates, req.Phase, date, req.ParticipantID)
	if err != nil {
		writeError(w, "navigationStatusHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(status))
}
