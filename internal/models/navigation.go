package models

import "time"

// ActionType is what the participant should see after a save.
type ActionType string

const (
	// ActionShowForm sends the participant straight to the next pending form.
	ActionShowForm ActionType = "SHOW_FORM"
	// ActionAllComplete means nothing further is owed for the active day type.
	ActionAllComplete ActionType = "ALL_COMPLETE"
	// ActionError signals a precondition violation by the caller.
	ActionError ActionType = "ERROR"
)

// NavigationErrorNoActiveDayType is the reason carried by ERROR when no candidate resolved.
const NavigationErrorNoActiveDayType = "no_active_day_type"

// NavigationAction is the transient answer to "what comes next?".
type NavigationAction struct {
	Type      ActionType     `json:"action_type"`
	FormID    string         `json:"form_id,omitempty"`
	DayTypeID string         `json:"day_type_id,omitempty"`
	Phase     string         `json:"phase"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// FormStatus classifies a single form within a day.
type FormStatus string

const (
	FormStatusComplete FormStatus = "complete"
	FormStatusSkipped  FormStatus = "skipped"
	FormStatusPending  FormStatus = "pending"
)

// FormProgress is the status of one catalogue form for a day.
type FormProgress struct {
	FormID   string     `json:"form_id"`
	Status   FormStatus `json:"status"`
	Required bool       `json:"required"`
}

// DayProgress summarises completion for a (day type, phase, date, participant).
type DayProgress struct {
	DayTypeID       string         `json:"day_type_id"`
	Phase           string         `json:"phase"`
	Date            time.Time      `json:"date"`
	ParticipantID   string         `json:"participant_id"`
	TotalForms      int            `json:"total_forms"`
	CompletedForms  int            `json:"completed_forms"`
	SkippedForms    int            `json:"skipped_forms"`
	PendingForms    int            `json:"pending_forms"`
	RequiredPending int            `json:"required_pending"`
	PercentComplete float64        `json:"percentage_complete"`
	FormDetails     []FormProgress `json:"form_details"`
}

// DayStatus is the display snapshot produced for initial load and resume.
type DayStatus struct {
	ActiveDayTypeID string   `json:"active_day_type,omitempty"`
	IsEventDay      bool     `json:"is_event_day"`
	RequiredForms   []string `json:"required_forms"`
	CompletedForms  []string `json:"completed_forms"`
	SkippedForms    []string `json:"skipped_forms,omitempty"`
	IncompleteForms []string `json:"incomplete_forms"`
	Progress        int      `json:"progress"`
	Message         string   `json:"message"`
}
