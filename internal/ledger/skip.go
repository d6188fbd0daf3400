package ledger

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
	"github.com/BTreeMap/FormCadence/internal/store"
)

// SkipLedger records explicit skips of optional forms.
type SkipLedger struct {
	repo store.SkipRepo
	opts Opts
}

// NewSkipLedger creates a skip ledger over repo.
func NewSkipLedger(repo store.SkipRepo, opts ...Option) *SkipLedger {
	return &SkipLedger{repo: repo, opts: buildOpts(opts)}
}

// CanSkip reports whether a catalogue entry may be skipped, with the reason when it may not.
func (l *SkipLedger) CanSkip(entry models.FormEntry) (bool, string) {
	if entry.Required {
		return false, "Cannot skip required forms"
	}
	return true, ""
}

// Skip records that the participant skipped an optional form. Rejections
// (required form, blank reason, already skipped) are reported through the
// Outcome and leave the ledger unchanged; the error is reserved for malformed
// keys and storage failures.
func (l *SkipLedger) Skip(entry models.FormEntry, key models.SkipKey, reason string) (models.Outcome, error) {
	if err := key.Validate(); err != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if entry.ID != "" && entry.ID != key.FormID {
		return models.Outcome{}, fmt.Errorf("%w: catalogue entry %s does not match form %s", models.ErrInvalidInput, entry.ID, key.FormID)
	}
	key = key.Normalize()

	if ok, why := l.CanSkip(entry); !ok {
		slog.Warn("SkipLedger.Skip: required form", "participantID", key.ParticipantID, "formID", key.FormID)
		return models.Failed(models.CodeInvalidInput, why), nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Failed(models.CodeInvalidInput, "Skip reason is required"), nil
	}
	if len(reason) > models.MaxSkipReasonLength {
		return models.Failed(models.CodeInvalidInput, fmt.Sprintf("Skip reason exceeds %d characters", models.MaxSkipReasonLength)), nil
	}

	sk := models.Skip{
		ID:            l.opts.NewID(),
		FormID:        key.FormID,
		DayTypeID:     key.DayTypeID,
		Phase:         key.Phase,
		Date:          key.Date,
		ParticipantID: key.ParticipantID,
		Reason:        reason,
		Timestamp:     l.opts.Now(),
	}
	inserted, err := l.repo.AddSkip(sk)
	if err != nil {
		slog.Error("SkipLedger.Skip: storage failed", "error", err, "key", key.String())
		return models.Outcome{}, fmt.Errorf("failed to record skip: %w", err)
	}
	if !inserted {
		return models.Failed(models.CodeNotFound, fmt.Sprintf("Form '%s' already skipped for this day", key.FormID)), nil
	}
	slog.Debug("SkipLedger.Skip: form skipped", "participantID", key.ParticipantID, "formID", key.FormID, "phase", key.Phase)
	return models.Succeeded(fmt.Sprintf("Form '%s' skipped successfully", key.FormID)), nil
}

// Unskip removes a skip, returning the form to pending.
func (l *SkipLedger) Unskip(key models.SkipKey) (models.Outcome, error) {
	if err := key.Validate(); err != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	removed, err := l.repo.RemoveSkip(key.Normalize())
	if err != nil {
		slog.Error("SkipLedger.Unskip: storage failed", "error", err, "key", key.String())
		return models.Outcome{}, fmt.Errorf("failed to remove skip: %w", err)
	}
	if !removed {
		return models.Failed(models.CodeNotFound, fmt.Sprintf("Form '%s' was not skipped", key.FormID)), nil
	}
	slog.Debug("SkipLedger.Unskip: skip removed", "participantID", key.ParticipantID, "formID", key.FormID)
	return models.Succeeded(fmt.Sprintf("Skip removed - form '%s' is now pending", key.FormID)), nil
}

// IsSkipped reports whether key is currently skipped.
func (l *SkipLedger) IsSkipped(key models.SkipKey) (bool, error) {
	sk, err := l.Get(key)
	return sk != nil, err
}

// Get returns the skip for key, or nil.
func (l *SkipLedger) Get(key models.SkipKey) (*models.Skip, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	sk, err := l.repo.GetSkip(key.Normalize())
	if err != nil {
		return nil, fmt.Errorf("failed to look up skip: %w", err)
	}
	return sk, nil
}

// ForDay returns the participant's skips for a day type, phase and date.
func (l *SkipLedger) ForDay(dayTypeID, phase string, date time.Time, participantID string) ([]models.Skip, error) {
	out, err := l.repo.ListSkips(store.SkipFilter{
		ParticipantID: participantID,
		Phase:         phase,
		DayTypeID:     dayTypeID,
		Date:          models.DateOnly(date),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list skips: %w", err)
	}
	return out, nil
}

// All returns every skip of a participant; an empty id returns every skip.
func (l *SkipLedger) All(participantID string) ([]models.Skip, error) {
	out, err := l.repo.ListSkips(store.SkipFilter{ParticipantID: participantID})
	if err != nil {
		return nil, fmt.Errorf("failed to list skips: %w", err)
	}
	return out, nil
}

// Reset removes every skip of a participant.
func (l *SkipLedger) Reset(participantID string) (int, error) {
	if participantID == "" {
		return 0, fmt.Errorf("%w: %v", models.ErrInvalidInput, models.ErrEmptyParticipantID)
	}
	n, err := l.repo.DeleteSkips(participantID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset skips: %w", err)
	}
	return n, nil
}

// Summary renders the day's skips for display.
func (l *SkipLedger) Summary(dayTypeID, phase string, date time.Time, participantID string) (string, error) {
	skips, err := l.ForDay(dayTypeID, phase, date, participantID)
	if err != nil {
		return "", err
	}
	if len(skips) == 0 {
		return "No forms skipped today", nil
	}
	ids := make([]string, len(skips))
	for i, s := range skips {
		ids[i] = s.FormID
	}
	return fmt.Sprintf("%d form(s) skipped: %s", len(skips), strings.Join(ids, ", ")), nil
}
