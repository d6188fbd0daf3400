package models

import "errors"

// ErrorCode is the machine-distinguishable failure category surfaced to callers.
type ErrorCode string

const (
	// CodeInvalidInput marks caller errors such as zero durations or blank skip reasons.
	CodeInvalidInput ErrorCode = "InvalidInput"
	// CodeCycleTooLong marks an anchor cycle above the configured ceiling.
	CodeCycleTooLong ErrorCode = "CycleTooLong"
	// CodePreconditionViolation marks a caller bug, e.g. navigating without an active day type.
	CodePreconditionViolation ErrorCode = "PreconditionViolation"
	// CodeNotFound marks probes of state that does not exist (or already exists for skips).
	CodeNotFound ErrorCode = "NotFound"
	// CodeInternal marks storage or other unexpected failures.
	CodeInternal ErrorCode = "Internal"
)

// Sentinel errors for the failure taxonomy. Wrap them with fmt.Errorf("%w: ...").
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrCycleTooLong          = errors.New("anchor cycle too long")
	ErrPreconditionViolation = errors.New("precondition violation")
	ErrNotFound              = errors.New("not found")
)

// CodeOf classifies err into an ErrorCode. Field-level validation errors from
// this package count as invalid input.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCycleTooLong):
		return CodeCycleTooLong
	case errors.Is(err, ErrPreconditionViolation):
		return CodePreconditionViolation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrEmptyFormID),
		errors.Is(err, ErrFormIDTooLong),
		errors.Is(err, ErrInvalidFrequency),
		errors.Is(err, ErrEmptyPhase),
		errors.Is(err, ErrEmptyDayType),
		errors.Is(err, ErrEmptyParticipantID),
		errors.Is(err, ErrMissingDate):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}

// Outcome is the boolean-plus-message result of an operation whose failure is
// an expected, non-exceptional condition (skip rejected, unskip of a missing skip).
type Outcome struct {
	OK      bool      `json:"ok"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message"`
}

// Succeeded builds a successful Outcome.
func Succeeded(message string) Outcome {
	return Outcome{OK: true, Message: message}
}

// Failed builds a failed Outcome with its category.
func Failed(code ErrorCode, message string) Outcome {
	return Outcome{OK: false, Code: code, Message: message}
}
