// Package models defines the core data structures for FormCadence.
//
// It includes the form catalogue, day types, ledger facts and the API envelope
// shared across modules.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Validation constants for input validation
const (
	// MaxFormIDLength defines the maximum allowed length for form identifiers
	MaxFormIDLength = 128
	// MaxSkipReasonLength defines the maximum allowed length for a skip reason
	MaxSkipReasonLength = 1000
	// DefaultMaxAnchorCycleDays is the anchor-cycle ceiling applied when none is configured
	DefaultMaxAnchorCycleDays = 365
)

// Error variables for better error handling and testability
var (
	ErrEmptyFormID        = errors.New("form_id cannot be empty")
	ErrFormIDTooLong      = errors.New("form_id exceeds maximum length")
	ErrInvalidFrequency   = errors.New("frequency_days must be at least 1")
	ErrEmptyPhase         = errors.New("phase cannot be empty")
	ErrEmptyDayType       = errors.New("day_type_id cannot be empty")
	ErrEmptyParticipantID = errors.New("participant_id cannot be empty")
	ErrMissingDate        = errors.New("date is required")
)

// FormFrequency is one recurring form as consumed by the recurrence scheduler.
type FormFrequency struct {
	FormID        string `json:"form_id" yaml:"form_id"`
	FrequencyDays int    `json:"frequency_days" yaml:"frequency_days"`
	Label         string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Validate checks a single FormFrequency.
func (f FormFrequency) Validate() error {
	if err := validateFormID(f.FormID); err != nil {
		return err
	}
	if f.FrequencyDays < 1 {
		return fmt.Errorf("%w: form %s has frequency %d", ErrInvalidFrequency, f.FormID, f.FrequencyDays)
	}
	return nil
}

// FormEntry is a catalogue entry describing a data-entry form.
type FormEntry struct {
	ID            string `json:"id" yaml:"id"`
	Title         string `json:"title,omitempty" yaml:"title,omitempty"`
	FrequencyDays int    `json:"frequency_days,omitempty" yaml:"frequency_days,omitempty"`
	Required      bool   `json:"required" yaml:"required"`
}

// Frequency converts the entry to its scheduler input.
func (e FormEntry) Frequency() FormFrequency {
	return FormFrequency{FormID: e.ID, FrequencyDays: e.FrequencyDays, Label: e.Title}
}

// Phase is a named stage of a study with a fixed length in days.
type Phase struct {
	Name         string `json:"name" yaml:"name"`
	DurationDays int    `json:"duration_days" yaml:"duration_days"`
}

func validateFormID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyFormID
	}
	if len(id) > MaxFormIDLength {
		return ErrFormIDTooLong
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Code    ErrorCode   `json:"code,omitempty"`    // machine-readable failure category
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithCode sets the failure category of the API response.
func (b *APIResponseBuilder) WithCode(code ErrorCode) *APIResponseBuilder {
	b.response.Code = code
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// ErrorWithCode creates an error API response carrying a failure category.
func ErrorWithCode(code ErrorCode, message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithCode(code).
		WithMessage(message).
		Build()
}

// RecordedWithMessage creates a recorded API response with a message.
func RecordedWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		WithMessage(message).
		WithResult(result).
		Build()
}
