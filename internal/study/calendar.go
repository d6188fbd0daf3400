package study

import (
	"fmt"
	"math"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
)

// Progress is the big-picture position of a participant in the study.
type Progress struct {
	StudyID                 string    `json:"study_id"`
	StudyName               string    `json:"study_name"`
	ParticipantID           string    `json:"participant_id"`
	CurrentDay              int       `json:"current_day"`
	TotalDays               int       `json:"total_days"`
	DaysCompleted           int       `json:"days_completed"`
	DaysRemaining           int       `json:"days_remaining"`
	CurrentPhase            string    `json:"current_phase"`
	PhaseDay                int       `json:"phase_day"`
	OverallPercentage       float64   `json:"overall_percentage"`
	FormsCompleted          int       `json:"forms_completed"`
	FormsTotal              int       `json:"forms_total"`
	FormsPercentage         float64   `json:"forms_percentage"`
	EstimatedCompletionDate time.Time `json:"estimated_completion_date"`
	Message                 string    `json:"message"`
}

// StudyDay returns the 1-based day of the study for p on date.
func StudyDay(p models.Participant, date time.Time) int {
	start := models.DateOnly(p.StartDate)
	d := models.DateOnly(date)
	return int(d.Sub(start).Hours()/24) + 1
}

// PhaseOn returns the phase and 1-based day within it for study day. Days
// past the end of the last phase stay in the last phase.
func (s *Service) PhaseOn(p models.Participant, date time.Time) (string, int, error) {
	day := StudyDay(p, date)
	if day < 1 {
		return "", 0, fmt.Errorf("%w: %s precedes the start date %s of participant %s",
			models.ErrInvalidInput, models.FormatDate(date), models.FormatDate(p.StartDate), p.ID)
	}
	phase, inPhase := phaseForDay(s.cfg.Phases, day)
	return phase, inPhase, nil
}

func phaseForDay(phases []models.Phase, day int) (string, int) {
	elapsed := 0
	for _, ph := range phases {
		if day <= elapsed+ph.DurationDays {
			return ph.Name, day - elapsed
		}
		elapsed += ph.DurationDays
	}
	last := phases[len(phases)-1]
	return last.Name, day - elapsed + last.DurationDays
}

// StudyProgress reports how far participantID is through the study on date.
// FormsTotal counts the recurring form instances the schedule holds.
func (s *Service) StudyProgress(participantID string, date time.Time) (Progress, error) {
	p, err := s.Participant(participantID)
	if err != nil {
		return Progress{}, err
	}
	date = s.dateOrToday(date)
	phase, phaseDay, err := s.PhaseOn(p, date)
	if err != nil {
		return Progress{}, err
	}
	completed, err := s.completions.All(participantID)
	if err != nil {
		return Progress{}, err
	}

	day := StudyDay(p, date)
	total := s.cfg.DurationDays
	formsTotal := s.schedule.Statistics.TotalFormInstances
	out := Progress{
		StudyID:                 s.cfg.ID,
		StudyName:               s.cfg.Name,
		ParticipantID:           participantID,
		CurrentDay:              day,
		TotalDays:               total,
		DaysCompleted:           day - 1,
		DaysRemaining:           max(0, total-day+1),
		CurrentPhase:            phase,
		PhaseDay:                phaseDay,
		OverallPercentage:       round1(float64(day-1) / float64(total) * 100),
		FormsCompleted:          len(completed),
		FormsTotal:              formsTotal,
		EstimatedCompletionDate: models.DateOnly(p.StartDate).AddDate(0, 0, total),
	}
	if formsTotal > 0 {
		out.FormsPercentage = round1(float64(len(completed)) / float64(formsTotal) * 100)
	}
	out.Message = fmt.Sprintf("Day %d of %d (%.1f%% complete). Currently in %s phase, day %d.",
		out.CurrentDay, out.TotalDays, out.OverallPercentage, out.CurrentPhase, out.PhaseDay)
	return out, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
