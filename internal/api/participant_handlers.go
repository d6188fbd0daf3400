// Package api provides HTTP handlers for participant calendars.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
)

// participantID reads the {id} path segment.
func participantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorWithCode(models.CodeInvalidInput, "Missing participant ID"))
		return "", false
	}
	return id, true
}

// queryDate reads the optional ?date= parameter; absent means today.
func queryDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Time{}, true
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorWithCode(models.CodeInvalidInput, models.ErrInvalidDate.Error()))
		return time.Time{}, false
	}
	return d, true
}

// enrollParticipantHandler handles participant enrollment (POST /api/v1/participants)
func (s *Server) enrollParticipantHandler(w http.ResponseWriter, r *http.Request) {
	var req models.EnrollmentRequest
	if !decodeJSON(w, r, "enrollParticipantHandler", &req) {
		return
	}
	start, err := req.Validate()
	if err != nil {
		writeError(w, "enrollParticipantHandler", err)
		return
	}
	p, err := s.svc.Enroll(req.ParticipantID, start)
	if err != nil {
		writeError(w, "enrollParticipantHandler", err)
		return
	}
	slog.Info("Server.enrollParticipantHandler: participant enrolled", "participantID", p.ID)
	writeJSONResponse(w, http.StatusCreated, models.RecordedWithMessage("Participant enrolled", p))
}

// listParticipantsHandler lists enrolled participants (GET /api/v1/participants)
func (s *Server) listParticipantsHandler(w http.ResponseWriter, r *http.Request) {
	participants, err := s.svc.Participants()
	if err != nil {
		writeError(w, "listParticipantsHandler", err)
		return
	}
	if participants == nil {
		participants = []models.Participant{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(participants))
}

// getParticipantHandler handles getting a specific participant (GET /api/v1/participants/{id})
func (s *Server) getParticipantHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := participantID(w, r)
	if !ok {
		return
	}
	p, err := s.svc.Participant(id)
	if err != nil {
		writeError(w, "getParticipantHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

// todayHandler resolves a participant's day (GET /api/v1/participants/{id}/today?date=)
func (s *Server) todayHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := participantID(w, r)
	if !ok {
		return
	}
	date, ok := queryDate(w, r)
	if !ok {
		return
	}
	today, err := s.svc.Today(id, date)
	if err != nil {
		writeError(w, "todayHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(today))
}

// studyProgressHandler reports study-level progress (GET /api/v1/participants/{id}/progress?date=)
func (s *Server) studyProgressHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := participantID(w, r)
	if !ok {
		return
	}
	date, ok := queryDate(w, r)
	if !ok {
		return
	}
	p, err := s.svc.StudyProgress(id, date)
	if err != nil {
		writeError(w, "studyProgressHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

// listEventsHandler lists fired events (GET /api/v1/participants/{id}/events?date=)
func (s *Server) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := participantID(w, r)
	if !ok {
		return
	}
	date, ok := queryDate(w, r)
	if !ok {
		return
	}
	events, err := s.svc.Events(id, date)
	if err != nil {
		writeError(w, "listEventsHandler", err)
		return
	}
	if events == nil {
		events = []models.EventOccurrence{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(events))
}

// triggerEventHandler fires a clinical event (POST /api/v1/participants/{id}/events)
func (s *Server) triggerEventHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := participantID(w, r)
	if !ok {
		return
	}
	var req models.EventRequest
	if !decodeJSON(w, r, "triggerEventHandler", &req) {
		return
	}
	date, err := req.Validate()
	if err != nil {
		writeError(w, "triggerEventHandler", err)
		return
	}
	e, added, err := s.svc.TriggerEvent(id, req.DayTypeID, date)
	if err != nil {
		writeError(w, "triggerEventHandler", err)
		return
	}
	if !added {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Event already recorded for this day", e))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.RecordedWithMessage("Event recorded", e))
}

// participantCompletionHandler saves a form against the participant's active
// day (POST /api/v1/participants/{id}/completions)
func (s *Server) participantCompletionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := participantID(w, r)
	if !ok {
		return
	}
	var req models.ParticipantCompletionRequest
	if !decodeJSON(w, r, "participantCompletionHandler", &req) {
		return
	}
	date, err := req.Validate()
	if err != nil {
		writeError(w, "participantCompletionHandler", err)
		return
	}
	adv, err := s.svc.CompleteForm(id, req.FormID, date)
	if err != nil {
		writeError(w, "participantCompletionHandler", err)
		return
	}
	writeCompletion(w, adv.Duplicate, adv)
}

// resetParticipantHandler clears a participant's ledgers (POST /api/v1/participants/{id}/reset)
func (s *Server) resetParticipantHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := participantID(w, r)
	if !ok {
		return
	}
	if _, err := s.svc.Participant(id); err != nil {
		writeError(w, "resetParticipantHandler", err)
		return
	}
	res, err := s.svc.Reset(id)
	if err != nil {
		writeError(w, "resetParticipantHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Participant ledgers reset", res))
}
