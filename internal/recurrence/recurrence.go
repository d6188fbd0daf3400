// Package recurrence computes LCM-based recurring form schedules.
//
// A study's recurring forms each repeat every N days. The schedule repeats
// after the least common multiple of those frequencies (the anchor cycle), and
// a form is due on study day d when (d-1) mod N == 0.
package recurrence

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/BTreeMap/FormCadence/internal/models"
)

// Opts holds configuration options for schedule computation.
type Opts struct {
	MaxCycleDays int
}

// Option defines a function for configuring schedule computation.
type Option func(*Opts)

// WithMaxCycleDays overrides the anchor-cycle ceiling.
func WithMaxCycleDays(days int) Option {
	return func(o *Opts) {
		o.MaxCycleDays = days
	}
}

// Statistics summarises a computed schedule.
type Statistics struct {
	AnchorCycleDays    int     `json:"anchor_cycle_days"`
	TotalDays          int     `json:"total_days"`
	DaysWithForms      int     `json:"days_with_forms"`
	DaysWithoutForms   int     `json:"days_without_forms"`
	TotalFormInstances int     `json:"total_form_instances"`
	AvgFormsPerDay     float64 `json:"avg_forms_per_day"`
	CoveragePercentage float64 `json:"coverage_percentage"`
}

// AnchorSchedule is the day-by-day form map for a whole study window.
type AnchorSchedule struct {
	AnchorCycleDays int              `json:"anchor_cycle_days"`
	DurationDays    int              `json:"duration_days"`
	DayToForms      map[int][]string `json:"schedule"`
	Statistics      Statistics       `json:"statistics"`
}

// FormsOn returns the forms due on a 1-based study day, or nil for a free day.
func (s *AnchorSchedule) FormsOn(day int) []string {
	forms := s.DayToForms[day]
	if len(forms) == 0 {
		return nil
	}
	out := make([]string, len(forms))
	copy(out, forms)
	return out
}

// IsFreeDay reports whether no forms are due on day.
func (s *AnchorSchedule) IsFreeDay(day int) bool {
	return len(s.DayToForms[day]) == 0
}

// Days returns the scheduled (non-free) days in ascending order.
func (s *AnchorSchedule) Days() []int {
	days := make([]int, 0, len(s.DayToForms))
	for d := range s.DayToForms {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

// ComputeSchedule builds the anchor schedule for forms over durationDays.
func ComputeSchedule(forms []models.FormFrequency, durationDays int, opts ...Option) (*AnchorSchedule, error) {
	cfg := Opts{MaxCycleDays: models.DefaultMaxAnchorCycleDays}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxCycleDays < 1 {
		cfg.MaxCycleDays = models.DefaultMaxAnchorCycleDays
	}

	if durationDays < 1 {
		return nil, fmt.Errorf("%w: study duration must be at least 1 day, got %d", models.ErrInvalidInput, durationDays)
	}
	if len(forms) == 0 {
		return nil, fmt.Errorf("%w: at least one form is required", models.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(forms))
	for _, f := range forms {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
		if seen[f.FormID] {
			return nil, fmt.Errorf("%w: form %s listed more than once", models.ErrInvalidInput, f.FormID)
		}
		seen[f.FormID] = true
	}

	anchor, ok := anchorCycle(forms, cfg.MaxCycleDays)
	if !ok {
		slog.Warn("recurrence.ComputeSchedule: anchor cycle exceeds ceiling", "max_cycle_days", cfg.MaxCycleDays, "forms", len(forms))
		return nil, fmt.Errorf("%w: anchor cycle exceeds maximum of %d days", models.ErrCycleTooLong, cfg.MaxCycleDays)
	}

	schedule := make(map[int][]string)
	instances := 0
	for day := 1; day <= durationDays; day++ {
		var due []string
		for _, f := range forms {
			if (day-1)%f.FrequencyDays == 0 {
				due = append(due, f.FormID)
			}
		}
		if len(due) > 0 {
			schedule[day] = due
			instances += len(due)
		}
	}

	stats := Statistics{
		AnchorCycleDays:    anchor,
		TotalDays:          durationDays,
		DaysWithForms:      len(schedule),
		DaysWithoutForms:   durationDays - len(schedule),
		TotalFormInstances: instances,
		AvgFormsPerDay:     float64(instances) / float64(durationDays),
		CoveragePercentage: float64(len(schedule)) / float64(durationDays) * 100,
	}

	slog.Debug("recurrence.ComputeSchedule: schedule computed",
		"anchor_cycle_days", anchor, "duration_days", durationDays, "days_with_forms", stats.DaysWithForms)
	return &AnchorSchedule{
		AnchorCycleDays: anchor,
		DurationDays:    durationDays,
		DayToForms:      schedule,
		Statistics:      stats,
	}, nil
}

// anchorCycle folds the frequencies into their LCM, giving up once the running
// value passes limit so mutually prime inputs cannot overflow.
func anchorCycle(forms []models.FormFrequency, limit int) (int, bool) {
	cycle := 1
	for _, f := range forms {
		g := gcd(cycle, f.FrequencyDays)
		step := f.FrequencyDays / g
		if cycle > math.MaxInt/step {
			return 0, false
		}
		cycle *= step
		if cycle > limit {
			return cycle, false
		}
	}
	return cycle, true
}

// LCM returns the least common multiple of a and b.
func LCM(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return abs(a/gcd(a, b)*b)
}

func gcd(a, b int) int {
	a, b = abs(a), abs(b)
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
