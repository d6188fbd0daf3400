package study

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/FormCadence/internal/daytype"
	"github.com/BTreeMap/FormCadence/internal/models"
)

// Enroll registers a participant starting on startDate and, when the study
// names an enrollment event, fires it on that date.
func (s *Service) Enroll(participantID string, startDate time.Time) (models.Participant, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return models.Participant{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, models.ErrEmptyParticipantID)
	}
	startDate = s.dateOrToday(startDate)

	unlock := s.locks.Lock(participantID)
	defer unlock()

	existing, err := s.store.GetParticipant(participantID)
	if err != nil {
		slog.Error("Service.Enroll: lookup failed", "error", err, "participantID", participantID)
		return models.Participant{}, fmt.Errorf("failed to look up participant: %w", err)
	}
	if existing != nil {
		slog.Warn("Service.Enroll: participant already enrolled", "participantID", participantID)
		return models.Participant{}, fmt.Errorf("%w: participant %s already enrolled", models.ErrPreconditionViolation, participantID)
	}

	p := models.Participant{
		ID:         participantID,
		StudyID:    s.cfg.ID,
		StartDate:  startDate,
		EnrolledAt: s.now(),
	}
	if err := s.store.SaveParticipant(p); err != nil {
		slog.Error("Service.Enroll: save failed", "error", err, "participantID", participantID)
		return models.Participant{}, fmt.Errorf("failed to save participant: %w", err)
	}
	if s.cfg.EnrollmentEvent != "" {
		if _, _, err := s.addEvent(participantID, s.cfg.EnrollmentEvent, startDate); err != nil {
			return models.Participant{}, err
		}
	}
	s.observer.ParticipantEnrolled()
	slog.Info("Service.Enroll: participant enrolled", "participantID", participantID, "startDate", models.FormatDate(startDate))
	return p, nil
}

// Participant returns an enrolled participant or ErrNotFound.
func (s *Service) Participant(participantID string) (models.Participant, error) {
	if strings.TrimSpace(participantID) == "" {
		return models.Participant{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, models.ErrEmptyParticipantID)
	}
	p, err := s.store.GetParticipant(participantID)
	if err != nil {
		slog.Error("Service.Participant: lookup failed", "error", err, "participantID", participantID)
		return models.Participant{}, fmt.Errorf("failed to look up participant: %w", err)
	}
	if p == nil {
		return models.Participant{}, fmt.Errorf("%w: participant %s", models.ErrNotFound, participantID)
	}
	return *p, nil
}

// Participants lists every enrolled participant.
func (s *Service) Participants() ([]models.Participant, error) {
	return s.store.ListParticipants()
}

// TriggerEvent records that an event day type fired for a participant on
// date. The returned flag is false when the same event already fired that day.
func (s *Service) TriggerEvent(participantID, dayTypeID string, date time.Time) (models.EventOccurrence, bool, error) {
	dt, ok := s.registry.Get(dayTypeID)
	if !ok {
		return models.EventOccurrence{}, false, fmt.Errorf("%w: day type %s", models.ErrNotFound, dayTypeID)
	}
	if !dt.IsEvent() {
		return models.EventOccurrence{}, false, fmt.Errorf("%w: day type %s is not an event", models.ErrInvalidInput, dayTypeID)
	}
	p, err := s.Participant(participantID)
	if err != nil {
		return models.EventOccurrence{}, false, err
	}
	date = s.dateOrToday(date)
	if StudyDay(p, date) < 1 {
		return models.EventOccurrence{}, false, fmt.Errorf("%w: event date %s precedes the start date",
			models.ErrInvalidInput, models.FormatDate(date))
	}

	unlock := s.locks.Lock(participantID)
	defer unlock()
	return s.addEvent(participantID, dayTypeID, date)
}

func (s *Service) addEvent(participantID, dayTypeID string, date time.Time) (models.EventOccurrence, bool, error) {
	e := models.EventOccurrence{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		DayTypeID:     dayTypeID,
		Date:          models.DateOnly(date),
		RecordedAt:    s.now(),
	}
	added, err := s.store.AddEvent(e)
	if err != nil {
		slog.Error("Service.TriggerEvent: storage failed", "error", err, "participantID", participantID, "dayTypeID", dayTypeID)
		return models.EventOccurrence{}, false, fmt.Errorf("failed to record event: %w", err)
	}
	if added {
		s.observer.EventTriggered(dayTypeID)
		slog.Debug("Service.TriggerEvent: event recorded", "participantID", participantID, "dayTypeID", dayTypeID, "date", models.FormatDate(date))
	}
	return e, added, nil
}

// Events lists the events fired for a participant; a zero date lists all.
func (s *Service) Events(participantID string, date time.Time) ([]models.EventOccurrence, error) {
	if _, err := s.Participant(participantID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(participantID, date)
}

// ResetResult reports how many facts Reset removed.
type ResetResult struct {
	ParticipantID string `json:"participant_id"`
	Completions   int    `json:"completions_removed"`
	Skips         int    `json:"skips_removed"`
}

// Reset clears a participant's completions and skips. Enrolment and fired
// events are kept.
func (s *Service) Reset(participantID string) (ResetResult, error) {
	if strings.TrimSpace(participantID) == "" {
		return ResetResult{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, models.ErrEmptyParticipantID)
	}
	unlock := s.locks.Lock(participantID)
	defer unlock()

	completions, err := s.completions.Reset(participantID)
	if err != nil {
		return ResetResult{}, err
	}
	skips, err := s.skips.Reset(participantID)
	if err != nil {
		return ResetResult{}, err
	}
	slog.Info("Service.Reset: ledgers cleared", "participantID", participantID, "completions", completions, "skips", skips)
	return ResetResult{ParticipantID: participantID, Completions: completions, Skips: skips}, nil
}

// DueForms returns the recurring forms scheduled on a participant's date.
// Dates outside the study window have none.
func (s *Service) DueForms(p models.Participant, date time.Time) []string {
	day := StudyDay(p, date)
	if day < 1 || day > s.schedule.DurationDays {
		return nil
	}
	return s.schedule.FormsOn(day)
}

// Candidates derives the day types that apply to a participant on date: every
// regular day type whose forms are all due, plus every event fired that day.
func (s *Service) Candidates(participantID string, date time.Time) ([]string, error) {
	p, err := s.Participant(participantID)
	if err != nil {
		return nil, err
	}
	date = s.dateOrToday(date)
	if StudyDay(p, date) < 1 {
		return nil, fmt.Errorf("%w: %s precedes the start date", models.ErrInvalidInput, models.FormatDate(date))
	}
	return s.candidates(p, date)
}

func (s *Service) candidates(p models.Participant, date time.Time) ([]string, error) {
	due := make(map[string]bool)
	for _, f := range s.DueForms(p, date) {
		due[f] = true
	}
	var out []string
	for _, dt := range s.registry.List() {
		if dt.Kind == daytype.KindRegular && subset(dt.Forms, due) {
			out = append(out, dt.ID)
		}
	}

	events, err := s.store.ListEvents(p.ID, date)
	if err != nil {
		slog.Error("Service.Candidates: event lookup failed", "error", err, "participantID", p.ID)
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	for _, e := range events {
		if dt, ok := s.registry.Get(e.DayTypeID); ok && dt.IsEvent() {
			out = append(out, e.DayTypeID)
		}
	}
	return out, nil
}

func subset(forms []string, due map[string]bool) bool {
	for _, f := range forms {
		if !due[f] {
			return false
		}
	}
	return true
}
