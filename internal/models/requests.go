package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation constants for request payloads
const (
	// MaxCandidates bounds the candidate list of a resolution or navigation request
	MaxCandidates = 64
	// MaxScheduleForms bounds the form list of a schedule request
	MaxScheduleForms = 256
	// MaxScheduleDurationDays bounds the study duration of a schedule request
	MaxScheduleDurationDays = 3650
)

// Error variables for request validation
var (
	ErrTooManyCandidates = errors.New("too many candidate day types")
	ErrTooManyForms      = errors.New("too many forms")
	ErrDurationTooLong   = errors.New("study duration too long")
	ErrInvalidDate       = errors.New("date must be formatted as YYYY-MM-DD")
)

// parseRequestDate parses an optional YYYY-MM-DD field. An empty value yields
// the zero time, which callers treat as "today".
func parseRequestDate(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	t, err := ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidInput, field, ErrInvalidDate)
	}
	return t, nil
}

// ScheduleRequest asks for an anchor schedule over ad-hoc forms. MaxCycleDays
// can only tighten the configured anchor-cycle ceiling.
type ScheduleRequest struct {
	Forms        []FormFrequency `json:"forms"`
	DurationDays int             `json:"study_duration_days"`
	MaxCycleDays int             `json:"max_cycle_days,omitempty"`
}

// Validate validates a ScheduleRequest. Per-form checks are left to the scheduler.
func (r *ScheduleRequest) Validate() error {
	if len(r.Forms) > MaxScheduleForms {
		return fmt.Errorf("%w: %v", ErrInvalidInput, ErrTooManyForms)
	}
	if r.DurationDays > MaxScheduleDurationDays {
		return fmt.Errorf("%w: %v: at most %d days", ErrInvalidInput, ErrDurationTooLong, MaxScheduleDurationDays)
	}
	return nil
}

// ResolveRequest asks which candidate day type is active.
type ResolveRequest struct {
	Candidates []string `json:"candidates"`
	Date       string   `json:"date,omitempty"`
}

// Validate validates a ResolveRequest and returns its date.
func (r *ResolveRequest) Validate() (time.Time, error) {
	if len(r.Candidates) > MaxCandidates {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInput, ErrTooManyCandidates)
	}
	return parseRequestDate("date", r.Date)
}

// CompletionRequest records a completion. When Candidates is non-empty the
// response also carries the next navigation action.
type CompletionRequest struct {
	FormID        string   `json:"form_id"`
	Phase         string   `json:"phase"`
	DayTypeID     string   `json:"day_type_id"`
	Date          string   `json:"date"`
	ParticipantID string   `json:"participant_id"`
	Candidates    []string `json:"candidates,omitempty"`
}

// Key validates the request and converts it to a CompletionKey.
func (r *CompletionRequest) Key() (CompletionKey, error) {
	if len(r.Candidates) > MaxCandidates {
		return CompletionKey{}, fmt.Errorf("%w: %v", ErrInvalidInput, ErrTooManyCandidates)
	}
	date, err := parseRequestDate("date", r.Date)
	if err != nil {
		return CompletionKey{}, err
	}
	k := CompletionKey{FormID: r.FormID, Phase: r.Phase, DayTypeID: r.DayTypeID, Date: date, ParticipantID: r.ParticipantID}
	if err := k.Validate(); err != nil {
		return CompletionKey{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return k, nil
}

// SkipRequest records or removes a skip. Reason is ignored on removal.
type SkipRequest struct {
	FormID        string `json:"form_id"`
	DayTypeID     string `json:"day_type_id"`
	Phase         string `json:"phase"`
	Date          string `json:"date"`
	ParticipantID string `json:"participant_id"`
	Reason        string `json:"reason,omitempty"`
}

// Key validates the request and converts it to a SkipKey.
func (r *SkipRequest) Key() (SkipKey, error) {
	date, err := parseRequestDate("date", r.Date)
	if err != nil {
		return SkipKey{}, err
	}
	k := SkipKey{FormID: r.FormID, DayTypeID: r.DayTypeID, Phase: r.Phase, Date: date, ParticipantID: r.ParticipantID}
	if err := k.Validate(); err != nil {
		return SkipKey{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return k, nil
}

// ProgressRequest asks for the progress of one day type.
type ProgressRequest struct {
	DayTypeID     string `json:"day_type_id"`
	Phase         string `json:"phase"`
	Date          string `json:"date,omitempty"`
	ParticipantID string `json:"participant_id"`
}

// Validate validates a ProgressRequest and returns its date.
func (r *ProgressRequest) Validate() (time.Time, error) {
	if strings.TrimSpace(r.DayTypeID) == "" {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInput, ErrEmptyDayType)
	}
	if strings.TrimSpace(r.Phase) == "" {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInput, ErrEmptyPhase)
	}
	if strings.TrimSpace(r.ParticipantID) == "" {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInput, ErrEmptyParticipantID)
	}
	return parseRequestDate("date", r.Date)
}

// NavigationRequest asks what to show after JustCompleted was saved.
type NavigationRequest struct {
	JustCompleted string   `json:"just_completed,omitempty"`
	Candidates    []string `json:"candidates"`
	Phase         string   `json:"phase"`
	Date          string   `json:"date,omitempty"`
	ParticipantID string   `json:"participant_id"`
}

// Validate validates a NavigationRequest and returns its date.
func (r *NavigationRequest) Validate() (time.Time, error) {
	if len(r.Candidates) > MaxCandidates {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInput, ErrTooManyCandidates)
	}
	return parseRequestDate("date", r.Date)
}

// EnrollmentRequest enrolls a participant into the study.
type EnrollmentRequest struct {
	ParticipantID string `json:"participant_id"`
	StartDate     string `json:"start_date,omitempty"` // Defaults to today
}

// Validate validates an EnrollmentRequest and returns its start date.
func (r *EnrollmentRequest) Validate() (time.Time, error) {
	if strings.TrimSpace(r.ParticipantID) == "" {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInput, ErrEmptyParticipantID)
	}
	return parseRequestDate("start_date", r.StartDate)
}

// EventRequest fires a clinical event for a participant.
type EventRequest struct {
	DayTypeID string `json:"day_type_id"`
	Date      string `json:"date,omitempty"` // Defaults to today
}

// Validate validates an EventRequest and returns its date.
func (r *EventRequest) Validate() (time.Time, error) {
	if strings.TrimSpace(r.DayTypeID) == "" {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInput, ErrEmptyDayType)
	}
	return parseRequestDate("date", r.Date)
}

// ParticipantCompletionRequest saves a form for an enrolled participant; the
// phase and day type come from the participant's calendar.
type ParticipantCompletionRequest struct {
	FormID string `json:"form_id"`
	Date   string `json:"date,omitempty"` // Defaults to today
}

// Validate validates a ParticipantCompletionRequest and returns its date.
func (r *ParticipantCompletionRequest) Validate() (time.Time, error) {
	if err := validateFormID(r.FormID); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return parseRequestDate("date", r.Date)
}
