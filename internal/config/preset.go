package config

import (
	"github.com/BTreeMap/FormCadence/internal/daytype"
	"github.com/BTreeMap/FormCadence/internal/models"
)

// ClinicalTrialPreset is the default study: a daily diary, a weekly quality of
// life form and a four-weekly review over screening, intervention and follow
// up, with baseline, end-of-treatment and early termination events.
func ClinicalTrialPreset() *StudyConfig {
	cfg := &StudyConfig{
		Version:            1,
		ID:                 "clinical-trial",
		Name:               "Clinical Trial",
		MaxAnchorCycleDays: models.DefaultMaxAnchorCycleDays,
		EnrollmentEvent:    daytype.EventBaseline,
		Phases: []models.Phase{
			{Name: "screening", DurationDays: 7},
			{Name: "intervention", DurationDays: 70},
			{Name: "follow_up", DurationDays: 14},
		},
		Forms: []models.FormEntry{
			{ID: "daily_diary", Title: "Daily Diary", FrequencyDays: 1, Required: true},
			{ID: "weekly_qol", Title: "Weekly Quality of Life", FrequencyDays: 7, Required: true},
			{ID: "monthly_review", Title: "Monthly Review", FrequencyDays: 28, Required: false},
			{ID: "consent", Title: "Informed Consent", Required: true},
			{ID: "demographics", Title: "Demographics", Required: true},
			{ID: "baseline_assessment", Title: "Baseline Assessment", Required: true},
			{ID: "final_assessment", Title: "Final Assessment", Required: true},
			{ID: "satisfaction_survey", Title: "Satisfaction Survey", Required: false},
			{ID: "exit_questionnaire", Title: "Exit Questionnaire", Required: true},
			{ID: "withdrawal_reason", Title: "Withdrawal Reason", Required: false},
		},
		DayTypes: daytype.ClinicalPreset(),
	}
	cfg.DurationDays = cfg.PhaseDays()
	return cfg
}
