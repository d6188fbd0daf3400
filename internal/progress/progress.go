// Package progress classifies a day's forms as complete, skipped or pending.
package progress

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
)

// CompletionChecker answers whether a completion fact exists.
type CompletionChecker interface {
	IsDone(key models.CompletionKey) (bool, error)
}

// SkipChecker answers whether a form is skipped.
type SkipChecker interface {
	IsSkipped(key models.SkipKey) (bool, error)
}

// Calculator derives DayProgress from the ledgers. It holds no state of its own.
type Calculator struct {
	completions CompletionChecker
	skips       SkipChecker
}

// NewCalculator creates a Calculator. skips may be nil, in which case no form
// is ever reported as skipped.
func NewCalculator(completions CompletionChecker, skips SkipChecker) *Calculator {
	return &Calculator{completions: completions, skips: skips}
}

// Progress classifies each catalogue form; complete takes precedence over
// skipped, and anything else is pending. A day with no forms is 100% complete.
func (c *Calculator) Progress(dayTypeID, phase string, forms []models.FormEntry, date time.Time, participantID string) (models.DayProgress, error) {
	p := models.DayProgress{
		DayTypeID:     dayTypeID,
		Phase:         phase,
		Date:          models.DateOnly(date),
		ParticipantID: participantID,
		TotalForms:    len(forms),
		FormDetails:   make([]models.FormProgress, 0, len(forms)),
	}
	for _, f := range forms {
		status, err := c.status(f.ID, dayTypeID, phase, p.Date, participantID)
		if err != nil {
			slog.Error("Calculator.Progress: ledger lookup failed", "error", err, "participantID", participantID, "formID", f.ID)
			return models.DayProgress{}, err
		}
		switch status {
		case models.FormStatusComplete:
			p.CompletedForms++
		case models.FormStatusSkipped:
			p.SkippedForms++
		default:
			p.PendingForms++
			if f.Required {
				p.RequiredPending++
			}
		}
		p.FormDetails = append(p.FormDetails, models.FormProgress{FormID: f.ID, Status: status, Required: f.Required})
	}
	p.PercentComplete = Percent(p.CompletedForms+p.SkippedForms, p.TotalForms)
	return p, nil
}

func (c *Calculator) status(formID, dayTypeID, phase string, date time.Time, participantID string) (models.FormStatus, error) {
	done, err := c.completions.IsDone(models.CompletionKey{
		FormID: formID, Phase: phase, DayTypeID: dayTypeID, Date: date, ParticipantID: participantID,
	})
	if err != nil {
		return "", err
	}
	if done {
		return models.FormStatusComplete, nil
	}
	if c.skips == nil {
		return models.FormStatusPending, nil
	}
	skipped, err := c.skips.IsSkipped(models.SkipKey{
		FormID: formID, DayTypeID: dayTypeID, Phase: phase, Date: date, ParticipantID: participantID,
	})
	if err != nil {
		return "", err
	}
	if skipped {
		return models.FormStatusSkipped, nil
	}
	return models.FormStatusPending, nil
}

// Percent returns done/total as a percentage rounded to one decimal. Zero
// total counts as fully done.
func Percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(done)/float64(total)*1000) / 10
}

// IsDayComplete reports whether the day is finished. With requireAll every
// form must be completed (skips do not count); otherwise it is enough that no
// required form is pending.
func (c *Calculator) IsDayComplete(dayTypeID, phase string, forms []models.FormEntry, date time.Time, participantID string, requireAll bool) (bool, error) {
	p, err := c.Progress(dayTypeID, phase, forms, date, participantID)
	if err != nil {
		return false, err
	}
	if requireAll {
		return p.CompletedForms == p.TotalForms, nil
	}
	return p.RequiredPending == 0, nil
}

// NextRequiredForm returns the first required form still pending, in catalogue order.
func (c *Calculator) NextRequiredForm(dayTypeID, phase string, forms []models.FormEntry, date time.Time, participantID string) (string, bool, error) {
	p, err := c.Progress(dayTypeID, phase, forms, date, participantID)
	if err != nil {
		return "", false, err
	}
	for _, d := range p.FormDetails {
		if d.Required && d.Status == models.FormStatusPending {
			return d.FormID, true, nil
		}
	}
	return "", false, nil
}

// SummaryMessage renders the day's progress for display.
func (c *Calculator) SummaryMessage(dayTypeID, phase string, forms []models.FormEntry, date time.Time, participantID string) (string, error) {
	p, err := c.Progress(dayTypeID, phase, forms, date, participantID)
	if err != nil {
		return "", err
	}
	return Message(p), nil
}

// Message renders an already computed DayProgress.
func Message(p models.DayProgress) string {
	done := p.CompletedForms + p.SkippedForms
	switch {
	case p.TotalForms == 0:
		return "No forms due today"
	case done == p.TotalForms:
		return fmt.Sprintf("All %d forms complete!", p.TotalForms)
	case p.RequiredPending == 0:
		return fmt.Sprintf("All required forms complete! (%d optional remaining)", p.PendingForms)
	default:
		return fmt.Sprintf("Completed %d/%d forms (%.1f%% done)", done, p.TotalForms, p.PercentComplete)
	}
}
