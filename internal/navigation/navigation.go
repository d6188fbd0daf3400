// Package navigation decides what a participant sees after saving a form.
//
// Decisions are recomputed from ledger state on every call; nothing about the
// navigation itself is stored.
package navigation

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/BTreeMap/FormCadence/internal/daytype"
	"github.com/BTreeMap/FormCadence/internal/models"
	"github.com/BTreeMap/FormCadence/internal/progress"
)

// Resolver picks the active day type among candidates.
type Resolver interface {
	Resolve(candidates []string, asOf time.Time) *daytype.DayType
}

// Opts holds configuration options for the Decider.
type Opts struct {
	Skips progress.SkipChecker
}

// Option defines a function for configuring the Decider.
type Option func(*Opts)

// WithSkips makes the decider pass over skipped forms. Without it only
// completions count.
func WithSkips(skips progress.SkipChecker) Option {
	return func(o *Opts) {
		o.Skips = skips
	}
}

// Decider answers "what comes next?" for a participant's day.
type Decider struct {
	resolver    Resolver
	completions progress.CompletionChecker
	skips       progress.SkipChecker
}

// NewDecider creates a Decider.
func NewDecider(resolver Resolver, completions progress.CompletionChecker, opts ...Option) *Decider {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Decider{resolver: resolver, completions: completions, skips: cfg.Skips}
}

func validate(phase string, date time.Time, participantID string) error {
	if strings.TrimSpace(phase) == "" {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, models.ErrEmptyPhase)
	}
	if date.IsZero() {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, models.ErrMissingDate)
	}
	if strings.TrimSpace(participantID) == "" {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, models.ErrEmptyParticipantID)
	}
	return nil
}

// formState is the per-form view navigation works from.
type formState struct {
	id       string
	complete bool
	skipped  bool
}

func (f formState) settled() bool { return f.complete || f.skipped }

func (d *Decider) states(dt *daytype.DayType, phase string, date time.Time, participantID string) ([]formState, error) {
	out := make([]formState, len(dt.Forms))
	for i, formID := range dt.Forms {
		out[i].id = formID
		done, err := d.completions.IsDone(models.CompletionKey{
			FormID: formID, Phase: phase, DayTypeID: dt.ID, Date: date, ParticipantID: participantID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to check completion of %s: %w", formID, err)
		}
		out[i].complete = done
		if done || d.skips == nil {
			continue
		}
		skipped, err := d.skips.IsSkipped(models.SkipKey{
			FormID: formID, DayTypeID: dt.ID, Phase: phase, Date: date, ParticipantID: participantID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to check skip of %s: %w", formID, err)
		}
		out[i].skipped = skipped
	}
	return out, nil
}

// NextAction determines what to show after justCompleted was saved. An ERROR
// action means no candidate resolved, which callers should treat as a bug on
// their side; the returned error is reserved for bad input and storage failures.
func (d *Decider) NextAction(justCompleted string, candidates []string, phase string, date time.Time, participantID string) (models.NavigationAction, error) {
	if err := validate(phase, date, participantID); err != nil {
		return models.NavigationAction{}, err
	}
	date = models.DateOnly(date)

	active := d.resolver.Resolve(candidates, date)
	if active == nil {
		slog.Warn("Decider.NextAction: no active day type", "participantID", participantID, "candidates", candidates, "date", models.FormatDate(date))
		return models.NavigationAction{
			Type:    models.ActionError,
			Phase:   phase,
			Message: "No active day type found",
			Metadata: map[string]any{
				"error":      models.NavigationErrorNoActiveDayType,
				"candidates": append([]string{}, candidates...),
			},
		}, nil
	}

	if len(active.Forms) == 0 {
		return models.NavigationAction{
			Type:      models.ActionAllComplete,
			DayTypeID: active.ID,
			Phase:     phase,
			Message:   "All forms complete",
			Metadata:  map[string]any{"note": "Free day - no forms required"},
		}, nil
	}

	states, err := d.states(active, phase, date, participantID)
	if err != nil {
		slog.Error("Decider.NextAction: ledger lookup failed", "error", err, "participantID", participantID)
		return models.NavigationAction{}, err
	}
	skipped := 0
	for i, s := range states {
		if s.skipped {
			skipped++
		}
		if s.settled() {
			continue
		}
		slog.Debug("Decider.NextAction: showing form", "participantID", participantID, "formID", s.id, "dayTypeID", active.ID)
		return models.NavigationAction{
			Type:      models.ActionShowForm,
			FormID:    s.id,
			DayTypeID: active.ID,
			Phase:     phase,
			Message:   fmt.Sprintf("Please complete %s", s.id),
			Metadata: map[string]any{
				"position": i + 1,
				"total":    len(states),
				"previous": justCompleted,
			},
		}, nil
	}

	meta := map[string]any{
		"total_completed": len(states) - skipped,
		"last_form":       justCompleted,
	}
	if skipped > 0 {
		meta["total_skipped"] = skipped
	}
	slog.Debug("Decider.NextAction: all forms complete", "participantID", participantID, "dayTypeID", active.ID)
	return models.NavigationAction{
		Type:      models.ActionAllComplete,
		DayTypeID: active.ID,
		Phase:     phase,
		Message:   "All forms for today completed. Great job!",
		Metadata:  meta,
	}, nil
}

// CurrentStatus is the snapshot used for initial load and resume. A date with
// no active day type reports 100% with nothing due.
func (d *Decider) CurrentStatus(candidates []string, phase string, date time.Time, participantID string) (models.DayStatus, error) {
	if err := validate(phase, date, participantID); err != nil {
		return models.DayStatus{}, err
	}
	date = models.DateOnly(date)

	status := models.DayStatus{
		RequiredForms:   []string{},
		CompletedForms:  []string{},
		IncompleteForms: []string{},
	}
	active := d.resolver.Resolve(candidates, date)
	if active == nil {
		status.Progress = 100
		status.Message = "No forms due today"
		return status, nil
	}

	status.ActiveDayTypeID = active.ID
	status.IsEventDay = active.IsEvent()
	status.RequiredForms = append(status.RequiredForms, active.Forms...)

	states, err := d.states(active, phase, date, participantID)
	if err != nil {
		slog.Error("Decider.CurrentStatus: ledger lookup failed", "error", err, "participantID", participantID)
		return models.DayStatus{}, err
	}
	for _, s := range states {
		switch {
		case s.complete:
			status.CompletedForms = append(status.CompletedForms, s.id)
		case s.skipped:
			status.SkippedForms = append(status.SkippedForms, s.id)
		default:
			status.IncompleteForms = append(status.IncompleteForms, s.id)
		}
	}
	settled := len(status.CompletedForms) + len(status.SkippedForms)
	if len(states) == 0 {
		status.Progress = 100
	} else {
		status.Progress = int(math.Round(float64(settled) / float64(len(states)) * 100))
	}
	status.Message = fmt.Sprintf("%d of %d forms complete", settled, len(states))
	return status, nil
}

// NextFormToShow returns the first unsettled form of the active day type, for
// page load before anything has been saved.
func (d *Decider) NextFormToShow(candidates []string, phase string, date time.Time, participantID string) (string, bool, error) {
	action, err := d.NextAction("", candidates, phase, date, participantID)
	if err != nil {
		return "", false, err
	}
	if action.Type != models.ActionShowForm {
		return "", false, nil
	}
	return action.FormID, true, nil
}
