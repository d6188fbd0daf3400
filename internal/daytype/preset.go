package daytype

// Standard day-type identifiers used by the clinical trial preset.
const (
	EventBaseline  = "EVENT_BASELINE"
	EventEOT       = "EVENT_EOT"
	EventEarlyTerm = "EVENT_EARLY_TERM"
	ABC            = "ABC"
	AB             = "AB"
	AOnly          = "A_ONLY"
	Free           = "FREE"
)

// ClinicalPreset returns the standard clinical trial day types: three events
// that override the regular schedule, three regular bundles of increasing
// size, and an empty free day.
func ClinicalPreset() []DayType {
	return []DayType{
		{ID: EventBaseline, Kind: KindEvent, Priority: PriorityEvent, Forms: []string{"consent", "demographics", "baseline_assessment"}},
		{ID: EventEOT, Kind: KindEvent, Priority: PriorityEvent, Forms: []string{"final_assessment", "satisfaction_survey"}},
		{ID: EventEarlyTerm, Kind: KindEvent, Priority: PriorityEvent, Forms: []string{"exit_questionnaire", "withdrawal_reason"}},
		{ID: ABC, Kind: KindRegular, Priority: PriorityABC, Forms: []string{"daily_diary", "weekly_qol", "monthly_review"}},
		{ID: AB, Kind: KindRegular, Priority: PriorityAB, Forms: []string{"daily_diary", "weekly_qol"}},
		{ID: AOnly, Kind: KindRegular, Priority: PriorityAOnly, Forms: []string{"daily_diary"}},
		{ID: Free, Kind: KindRegular, Priority: PriorityFree, Forms: []string{}},
	}
}

// NewClinicalRegistry returns a registry loaded with ClinicalPreset.
func NewClinicalRegistry() *Registry {
	return NewRegistry().MustRegister(ClinicalPreset()...)
}
