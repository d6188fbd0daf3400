package ledger

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
	"github.com/BTreeMap/FormCadence/internal/store"
)

// CompletionLedger is the append-only record of completed forms.
type CompletionLedger struct {
	repo store.CompletionRepo
	opts Opts
}

// NewCompletionLedger creates a ledger over repo.
func NewCompletionLedger(repo store.CompletionRepo, opts ...Option) *CompletionLedger {
	return &CompletionLedger{repo: repo, opts: buildOpts(opts)}
}

// Record appends a completion fact. Recording the same key twice creates two facts.
func (l *CompletionLedger) Record(key models.CompletionKey) (models.Completion, error) {
	if err := key.Validate(); err != nil {
		slog.Warn("CompletionLedger.Record: invalid key", "error", err, "participantID", key.ParticipantID, "formID", key.FormID)
		return models.Completion{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	key = key.Normalize()
	c := models.Completion{
		ID:            l.opts.NewID(),
		FormID:        key.FormID,
		Phase:         key.Phase,
		DayTypeID:     key.DayTypeID,
		Date:          key.Date,
		ParticipantID: key.ParticipantID,
		RecordedAt:    l.opts.Now(),
	}
	if err := l.repo.AddCompletion(c); err != nil {
		slog.Error("CompletionLedger.Record: storage failed", "error", err, "participantID", c.ParticipantID, "formID", c.FormID)
		return models.Completion{}, fmt.Errorf("failed to record completion: %w", err)
	}
	slog.Debug("CompletionLedger.Record: completion recorded", "participantID", c.ParticipantID, "formID", c.FormID, "phase", c.Phase, "dayTypeID", c.DayTypeID)
	return c, nil
}

// IsDone reports whether a fact exists matching all five key fields.
func (l *CompletionLedger) IsDone(key models.CompletionKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	ok, err := l.repo.HasCompletion(key.Normalize())
	if err != nil {
		slog.Error("CompletionLedger.IsDone: storage failed", "error", err, "key", key.String())
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return ok, nil
}

// Find returns the earliest fact for key, or nil.
func (l *CompletionLedger) Find(key models.CompletionKey) (*models.Completion, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	c, err := l.repo.FindCompletion(key.Normalize())
	if err != nil {
		return nil, fmt.Errorf("failed to look up completion: %w", err)
	}
	return c, nil
}

// ForPhase returns a participant's completions within phase.
func (l *CompletionLedger) ForPhase(phase, participantID string) ([]models.Completion, error) {
	return l.list(store.CompletionFilter{ParticipantID: participantID, Phase: phase})
}

// ForDate returns a participant's completions on date, across phases.
func (l *CompletionLedger) ForDate(date time.Time, participantID string) ([]models.Completion, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, models.ErrMissingDate)
	}
	return l.list(store.CompletionFilter{ParticipantID: participantID, Date: models.DateOnly(date)})
}

// All returns every completion of a participant; an empty id returns every fact.
func (l *CompletionLedger) All(participantID string) ([]models.Completion, error) {
	return l.list(store.CompletionFilter{ParticipantID: participantID})
}

func (l *CompletionLedger) list(f store.CompletionFilter) ([]models.Completion, error) {
	out, err := l.repo.ListCompletions(f)
	if err != nil {
		slog.Error("CompletionLedger.list: storage failed", "error", err, "participantID", f.ParticipantID)
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	return out, nil
}

// Reset removes every completion of a participant.
func (l *CompletionLedger) Reset(participantID string) (int, error) {
	if participantID == "" {
		return 0, fmt.Errorf("%w: %v", models.ErrInvalidInput, models.ErrEmptyParticipantID)
	}
	n, err := l.repo.DeleteCompletions(participantID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset completions: %w", err)
	}
	slog.Info("CompletionLedger.Reset: completions removed", "participantID", participantID, "count", n)
	return n, nil
}

// Summary aggregates a participant's completions.
type Summary struct {
	ParticipantID string         `json:"participant_id"`
	Total         int            `json:"total"`
	Distinct      int            `json:"distinct"`
	ByPhase       map[string]int `json:"by_phase"`
	Phases        []string       `json:"phases"`
	LatestDate    string         `json:"latest_date,omitempty"`
}

// Summary counts a participant's completions. Distinct counts unique keys, so
// repeated recordings of one key only raise Total.
func (l *CompletionLedger) Summary(participantID string) (Summary, error) {
	all, err := l.All(participantID)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{ParticipantID: participantID, Total: len(all), ByPhase: make(map[string]int)}
	keys := make(map[models.CompletionKey]bool, len(all))
	var latest time.Time
	for _, c := range all {
		k := c.Key().Normalize()
		if !keys[k] {
			keys[k] = true
			s.ByPhase[c.Phase]++
		}
		if c.Date.After(latest) {
			latest = c.Date
		}
	}
	s.Distinct = len(keys)
	for p := range s.ByPhase {
		s.Phases = append(s.Phases, p)
	}
	sort.Strings(s.Phases)
	if !latest.IsZero() {
		s.LatestDate = models.FormatDate(latest)
	}
	return s, nil
}
