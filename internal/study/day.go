package study

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FormCadence/internal/daytype"
	"github.com/BTreeMap/FormCadence/internal/models"
)

// Today is everything a client needs to render a participant's day.
type Today struct {
	ParticipantID string              `json:"participant_id"`
	Date          time.Time           `json:"date"`
	StudyDay      int                 `json:"study_day"`
	Phase         string              `json:"phase"`
	PhaseDay      int                 `json:"phase_day"`
	DueForms      []string            `json:"due_forms"`
	Candidates    []string            `json:"candidates"`
	Resolution    daytype.Explanation `json:"resolution"`
	Status        models.DayStatus    `json:"status"`
	Progress      *models.DayProgress `json:"progress,omitempty"`
	NextForm      string              `json:"next_form,omitempty"`
}

// Today resolves the participant's day type for date and snapshots its state.
func (s *Service) Today(participantID string, date time.Time) (Today, error) {
	p, err := s.Participant(participantID)
	if err != nil {
		return Today{}, err
	}
	date = s.dateOrToday(date)
	phase, phaseDay, err := s.PhaseOn(p, date)
	if err != nil {
		return Today{}, err
	}
	candidates, err := s.candidates(p, date)
	if err != nil {
		return Today{}, err
	}

	out := Today{
		ParticipantID: participantID,
		Date:          date,
		StudyDay:      StudyDay(p, date),
		Phase:         phase,
		PhaseDay:      phaseDay,
		DueForms:      s.DueForms(p, date),
		Candidates:    candidates,
		Resolution:    s.registry.Explain(candidates, date),
	}
	if out.DueForms == nil {
		out.DueForms = []string{}
	}
	out.Status, err = s.decider.CurrentStatus(candidates, phase, date, participantID)
	if err != nil {
		return Today{}, err
	}
	if active := out.Resolution.Active; active != nil {
		dp, err := s.progress.Progress(active.ID, phase, s.dayForms(*active), date, participantID)
		if err != nil {
			return Today{}, err
		}
		out.Progress = &dp
		next, ok, err := s.decider.NextFormToShow(candidates, phase, date, participantID)
		if err != nil {
			return Today{}, err
		}
		if ok {
			out.NextForm = next
		}
	}
	slog.Debug("Service.Today: day resolved", "participantID", participantID, "date", models.FormatDate(date),
		"phase", phase, "activeDayType", out.Status.ActiveDayTypeID)
	return out, nil
}

// Recorded is the result of saving a completion.
type Recorded struct {
	Completion models.Completion `json:"completion"`
	Duplicate  bool              `json:"duplicate"`
}

// RecordCompletion saves a completion. An exact repeat of an existing fact is
// not appended again; the existing fact comes back with Duplicate set.
func (s *Service) RecordCompletion(key models.CompletionKey) (Recorded, error) {
	if err := key.Validate(); err != nil {
		return Recorded{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	unlock := s.locks.Lock(key.ParticipantID)
	defer unlock()
	return s.recordLocked(key)
}

func (s *Service) recordLocked(key models.CompletionKey) (Recorded, error) {
	existing, err := s.completions.Find(key)
	if err != nil {
		return Recorded{}, err
	}
	if existing != nil {
		slog.Debug("Service.RecordCompletion: duplicate suppressed", "participantID", key.ParticipantID, "formID", key.FormID)
		s.observer.CompletionRecorded(key.Phase, true)
		return Recorded{Completion: *existing, Duplicate: true}, nil
	}
	c, err := s.completions.Record(key)
	if err != nil {
		return Recorded{}, err
	}
	s.observer.CompletionRecorded(key.Phase, false)
	return Recorded{Completion: c}, nil
}

// Advance is a saved completion together with what to show next.
type Advance struct {
	Recorded
	Next models.NavigationAction `json:"next"`
}

// CompleteAndAdvance saves a completion and answers navigation within the same
// critical section, so the answer always reflects the save.
func (s *Service) CompleteAndAdvance(key models.CompletionKey, candidates []string) (Advance, error) {
	if err := key.Validate(); err != nil {
		return Advance{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	unlock := s.locks.Lock(key.ParticipantID)
	defer unlock()

	rec, err := s.recordLocked(key)
	if err != nil {
		return Advance{}, err
	}
	next, err := s.decider.NextAction(key.FormID, candidates, key.Phase, key.Date, key.ParticipantID)
	if err != nil {
		return Advance{}, err
	}
	s.observer.NavigationDecided(next.Type)
	return Advance{Recorded: rec, Next: next}, nil
}

// CompleteForm saves formID for an enrolled participant, deriving phase, day
// type and candidates from the participant's calendar.
func (s *Service) CompleteForm(participantID, formID string, date time.Time) (Advance, error) {
	key, candidates, err := s.participantKey(participantID, formID, date)
	if err != nil {
		return Advance{}, err
	}
	return s.CompleteAndAdvance(key, candidates)
}

// participantKey fills the completion key from the participant's active day.
// Saving a form that the active day type does not list is a caller bug.
func (s *Service) participantKey(participantID, formID string, date time.Time) (models.CompletionKey, []string, error) {
	p, err := s.Participant(participantID)
	if err != nil {
		return models.CompletionKey{}, nil, err
	}
	date = s.dateOrToday(date)
	phase, _, err := s.PhaseOn(p, date)
	if err != nil {
		return models.CompletionKey{}, nil, err
	}
	candidates, err := s.candidates(p, date)
	if err != nil {
		return models.CompletionKey{}, nil, err
	}
	active := s.registry.Resolve(candidates, date)
	if active == nil {
		return models.CompletionKey{}, nil, fmt.Errorf("%w: no active day type for participant %s on %s",
			models.ErrPreconditionViolation, participantID, models.FormatDate(date))
	}
	listed := false
	for _, f := range active.Forms {
		if f == formID {
			listed = true
			break
		}
	}
	if !listed {
		return models.CompletionKey{}, nil, fmt.Errorf("%w: form %s is not part of day type %s",
			models.ErrPreconditionViolation, formID, active.ID)
	}
	key := models.CompletionKey{FormID: formID, Phase: phase, DayTypeID: active.ID, Date: date, ParticipantID: participantID}
	return key, candidates, nil
}

// NextAction answers navigation for explicit candidates.
func (s *Service) NextAction(justCompleted string, candidates []string, phase string, date time.Time, participantID string) (models.NavigationAction, error) {
	action, err := s.decider.NextAction(justCompleted, candidates, phase, s.dateOrToday(date), participantID)
	if err != nil {
		return models.NavigationAction{}, err
	}
	s.observer.NavigationDecided(action.Type)
	return action, nil
}

// Skip records a skip for an optional catalogue form. Rejections are reported
// in the Outcome; the error is reserved for bad input and storage failures.
func (s *Service) Skip(key models.SkipKey, reason string) (models.Outcome, error) {
	if err := key.Validate(); err != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	entry, ok := s.catalogue[key.FormID]
	if !ok {
		return models.Outcome{}, fmt.Errorf("%w: form %s", models.ErrNotFound, key.FormID)
	}
	unlock := s.locks.Lock(key.ParticipantID)
	defer unlock()

	out, err := s.skips.Skip(entry, key, reason)
	if err != nil {
		return models.Outcome{}, err
	}
	s.observer.SkipDecided(out.OK)
	return out, nil
}

// Unskip removes a skip so the form becomes pending again.
func (s *Service) Unskip(key models.SkipKey) (models.Outcome, error) {
	if err := key.Validate(); err != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	unlock := s.locks.Lock(key.ParticipantID)
	defer unlock()
	return s.skips.Unskip(key)
}

// DayProgress computes progress for a registered day type. Form requirement
// comes from the catalogue.
func (s *Service) DayProgress(dayTypeID, phase string, date time.Time, participantID string) (models.DayProgress, error) {
	dt, ok := s.registry.Get(dayTypeID)
	if !ok {
		return models.DayProgress{}, fmt.Errorf("%w: day type %s", models.ErrNotFound, dayTypeID)
	}
	return s.progress.Progress(dt.ID, phase, s.dayForms(dt), s.dateOrToday(date), participantID)
}
