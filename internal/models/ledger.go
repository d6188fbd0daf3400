package models

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date wire format used in requests, storage and keys.
const DateLayout = "2006-01-02"

// DateOnly strips the clock from t, keeping its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// CompletionKey is the full scoping tuple of a completion fact. Two facts for
// the same form and date are distinct when any field, phase included, differs.
type CompletionKey struct {
	FormID        string    `json:"form_id"`
	Phase         string    `json:"phase"`
	DayTypeID     string    `json:"day_type_id"`
	Date          time.Time `json:"date"`
	ParticipantID string    `json:"participant_id"`
}

// Normalize returns the key with its date reduced to a calendar date.
func (k CompletionKey) Normalize() CompletionKey {
	k.Date = DateOnly(k.Date)
	return k
}

// Validate checks that every scoping field is present.
func (k CompletionKey) Validate() error {
	if err := validateFormID(k.FormID); err != nil {
		return err
	}
	if strings.TrimSpace(k.Phase) == "" {
		return ErrEmptyPhase
	}
	if strings.TrimSpace(k.DayTypeID) == "" {
		return ErrEmptyDayType
	}
	if k.Date.IsZero() {
		return ErrMissingDate
	}
	if strings.TrimSpace(k.ParticipantID) == "" {
		return ErrEmptyParticipantID
	}
	return nil
}

// String renders the key for logs. It is not injective; compare keys with ==
// after Normalize.
func (k CompletionKey) String() string {
	return strings.Join([]string{k.ParticipantID, k.Phase, k.DayTypeID, FormatDate(k.Date), k.FormID}, "|")
}

// Completion is an append-only record that a participant completed a form.
type Completion struct {
	ID            string    `json:"id"`
	FormID        string    `json:"form_id"`
	Phase         string    `json:"phase"`
	DayTypeID     string    `json:"day_type_id"`
	Date          time.Time `json:"date"`
	ParticipantID string    `json:"participant_id"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Key returns the scoping tuple of the completion.
func (c Completion) Key() CompletionKey {
	return CompletionKey{
		FormID:        c.FormID,
		Phase:         c.Phase,
		DayTypeID:     c.DayTypeID,
		Date:          c.Date,
		ParticipantID: c.ParticipantID,
	}
}

// SkipKey scopes a skip; it mirrors CompletionKey.
type SkipKey struct {
	FormID        string    `json:"form_id"`
	DayTypeID     string    `json:"day_type_id"`
	Phase         string    `json:"phase"`
	Date          time.Time `json:"date"`
	ParticipantID string    `json:"participant_id"`
}

// Normalize returns the key with its date reduced to a calendar date.
func (k SkipKey) Normalize() SkipKey {
	k.Date = DateOnly(k.Date)
	return k
}

// Validate checks that every scoping field is present.
func (k SkipKey) Validate() error {
	return k.completionKey().Validate()
}

func (k SkipKey) completionKey() CompletionKey {
	return CompletionKey{FormID: k.FormID, Phase: k.Phase, DayTypeID: k.DayTypeID, Date: k.Date, ParticipantID: k.ParticipantID}
}

// String renders the key for logs. It is not injective; compare keys with ==
// after Normalize.
func (k SkipKey) String() string {
	return k.completionKey().String()
}

// Skip records that a participant explicitly skipped an optional form.
type Skip struct {
	ID            string    `json:"id"`
	FormID        string    `json:"form_id"`
	DayTypeID     string    `json:"day_type_id"`
	Phase         string    `json:"phase"`
	Date          time.Time `json:"date"`
	ParticipantID string    `json:"participant_id"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// Key returns the scoping tuple of the skip.
func (s Skip) Key() SkipKey {
	return SkipKey{
		FormID:        s.FormID,
		DayTypeID:     s.DayTypeID,
		Phase:         s.Phase,
		Date:          s.Date,
		ParticipantID: s.ParticipantID,
	}
}

// Participant is an enrolled study participant.
type Participant struct {
	ID         string    `json:"id"`
	StudyID    string    `json:"study_id"`
	StartDate  time.Time `json:"start_date"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// EventOccurrence records that a clinical event day type fired for a participant on a date.
type EventOccurrence struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	DayTypeID     string    `json:"day_type_id"`
	Date          time.Time `json:"date"`
	RecordedAt    time.Time `json:"recorded_at"`
}
