package recurrence

import (
	"errors"
	"reflect"
	"testing"

	"github.com/BTreeMap/FormCadence/internal/models"
)

func TestComputeSchedule_DailyAndWeekly(t *testing.T) {
	forms := []models.FormFrequency{
		{FormID: "daily_diary", FrequencyDays: 1, Label: "Daily"},
		{FormID: "weekly_assessment", FrequencyDays: 7, Label: "Weekly"},
	}
	s, err := ComputeSchedule(forms, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.AnchorCycleDays != 7 {
		t.Errorf("expected anchor cycle 7, got %d", s.AnchorCycleDays)
	}
	for day := 1; day <= 14; day++ {
		got := s.FormsOn(day)
		want := []string{"daily_diary"}
		if day == 1 || day == 8 {
			want = append(want, "weekly_assessment")
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("day %d: expected %v, got %v", day, want, got)
		}
	}
	if s.Statistics.CoveragePercentage != 100 {
		t.Errorf("expected full coverage, got %v", s.Statistics.CoveragePercentage)
	}
	if s.Statistics.TotalFormInstances != 16 {
		t.Errorf("expected 16 form instances, got %d", s.Statistics.TotalFormInstances)
	}
}

func TestComputeSchedule_ThreeSixNine(t *testing.T) {
	forms := []models.FormFrequency{
		{FormID: "A", FrequencyDays: 3},
		{FormID: "B", FrequencyDays: 6},
		{FormID: "C", FrequencyDays: 9},
	}
	s, err := ComputeSchedule(forms, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.AnchorCycleDays != 18 {
		t.Fatalf("expected anchor cycle 18, got %d", s.AnchorCycleDays)
	}
	// The cycle restarts on day 19, so every form is due again there.
	if got := s.FormsOn(19); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("day 19: expected [A B C], got %v", got)
	}
	if !s.IsFreeDay(20) {
		t.Errorf("day 20 should be free, got %v", s.FormsOn(20))
	}
	if s.Statistics.CoveragePercentage >= 100 {
		t.Errorf("expected partial coverage, got %v", s.Statistics.CoveragePercentage)
	}
	if s.Statistics.DaysWithForms+s.Statistics.DaysWithoutForms != 20 {
		t.Errorf("day counts do not add up: %+v", s.Statistics)
	}
}

func TestComputeSchedule_DueInvariant(t *testing.T) {
	forms := []models.FormFrequency{
		{FormID: "f2", FrequencyDays: 2},
		{FormID: "f5", FrequencyDays: 5},
		{FormID: "f12", FrequencyDays: 12},
	}
	const duration = 90
	s, err := ComputeSchedule(forms, duration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.AnchorCycleDays != 60 {
		t.Errorf("expected anchor cycle 60, got %d", s.AnchorCycleDays)
	}
	for day := 1; day <= duration; day++ {
		due := map[string]bool{}
		for _, id := range s.FormsOn(day) {
			due[id] = true
		}
		for _, f := range forms {
			want := (day-1)%f.FrequencyDays == 0
			if due[f.FormID] != want {
				t.Errorf("day %d form %s: expected due=%v", day, f.FormID, want)
			}
		}
	}
	days := s.Days()
	for i := 1; i < len(days); i++ {
		if days[i-1] >= days[i] {
			t.Fatalf("Days not sorted: %v", days)
		}
	}
}

func TestComputeSchedule_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		forms    []models.FormFrequency
		duration int
		opts     []Option
		want     error
	}{
		{"zero duration", []models.FormFrequency{{FormID: "a", FrequencyDays: 1}}, 0, nil, models.ErrInvalidInput},
		{"negative duration", []models.FormFrequency{{FormID: "a", FrequencyDays: 1}}, -3, nil, models.ErrInvalidInput},
		{"no forms", nil, 10, nil, models.ErrInvalidInput},
		{"zero frequency", []models.FormFrequency{{FormID: "a", FrequencyDays: 0}}, 10, nil, models.ErrInvalidInput},
		{"empty form id", []models.FormFrequency{{FormID: " ", FrequencyDays: 2}}, 10, nil, models.ErrInvalidInput},
		{"duplicate form", []models.FormFrequency{{FormID: "a", FrequencyDays: 2}, {FormID: "a", FrequencyDays: 3}}, 10, nil, models.ErrInvalidInput},
		{"mutually prime", []models.FormFrequency{{FormID: "a", FrequencyDays: 17}, {FormID: "b", FrequencyDays: 19}, {FormID: "c", FrequencyDays: 23}}, 10, nil, models.ErrCycleTooLong},
		{"custom ceiling", []models.FormFrequency{{FormID: "a", FrequencyDays: 7}, {FormID: "b", FrequencyDays: 5}}, 10, []Option{WithMaxCycleDays(30)}, models.ErrCycleTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeSchedule(tt.forms, tt.duration, tt.opts...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestComputeSchedule_HugeFrequenciesDoNotOverflow(t *testing.T) {
	forms := []models.FormFrequency{
		{FormID: "a", FrequencyDays: 1<<31 - 1},
		{FormID: "b", FrequencyDays: 1<<31 - 19},
		{FormID: "c", FrequencyDays: 1<<31 - 61},
	}
	_, err := ComputeSchedule(forms, 5)
	if !errors.Is(err, models.ErrCycleTooLong) {
		t.Fatalf("expected ErrCycleTooLong, got %v", err)
	}
}

func TestComputeSchedule_Deterministic(t *testing.T) {
	forms := []models.FormFrequency{{FormID: "x", FrequencyDays: 4}, {FormID: "y", FrequencyDays: 6}}
	a, err := ComputeSchedule(forms, 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ComputeSchedule(forms, 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs produced different schedules")
	}
}

func TestLCM(t *testing.T) {
	cases := []struct{ a, b, want int }{
		{3, 6, 6}, {6, 9, 18}, {1, 7, 7}, {4, 6, 12}, {0, 5, 0},
	}
	for _, c := range cases {
		if got := LCM(c.a, c.b); got != c.want {
			t.Errorf("LCM(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
