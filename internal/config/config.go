// Package config loads study definitions from YAML.
//
// A study definition names the form catalogue, the phases with their lengths
// and the day types that bundle forms together. When no file is supplied the
// clinical trial preset is used.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/FormCadence/internal/daytype"
	"github.com/BTreeMap/FormCadence/internal/models"
)

// ErrInvalidStudy wraps every validation failure of a study definition.
var ErrInvalidStudy = errors.New("invalid study definition")

// StudyConfig models a study definition file.
type StudyConfig struct {
	Version            int                `yaml:"version" json:"version"`
	ID                 string             `yaml:"id" json:"id"`
	Name               string             `yaml:"name" json:"name"`
	DurationDays       int                `yaml:"duration_days,omitempty" json:"duration_days"`
	MaxAnchorCycleDays int                `yaml:"max_anchor_cycle_days,omitempty" json:"max_anchor_cycle_days"`
	EnrollmentEvent    string             `yaml:"enrollment_event,omitempty" json:"enrollment_event,omitempty"`
	Phases             []models.Phase     `yaml:"phases" json:"phases"`
	Forms              []models.FormEntry `yaml:"forms" json:"forms"`
	DayTypes           []daytype.DayType  `yaml:"day_types" json:"day_types"`
}

// Load reads and validates a study definition from path.
func Load(path string) (*StudyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML study definition.
func Parse(data []byte) (*StudyConfig, error) {
	var cfg StudyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg.applyDefaults()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal renders the definition back to YAML.
func (c *StudyConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *StudyConfig) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.DurationDays == 0 {
		c.DurationDays = c.PhaseDays()
	}
	if c.MaxAnchorCycleDays == 0 {
		c.MaxAnchorCycleDays = models.DefaultMaxAnchorCycleDays
	}
}

func (c *StudyConfig) normalize() {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	c.EnrollmentEvent = strings.TrimSpace(c.EnrollmentEvent)
	for i := range c.Phases {
		c.Phases[i].Name = strings.TrimSpace(c.Phases[i].Name)
	}
	for i := range c.Forms {
		c.Forms[i].ID = strings.TrimSpace(c.Forms[i].ID)
	}
	for i := range c.DayTypes {
		dt := &c.DayTypes[i]
		dt.ID = strings.TrimSpace(dt.ID)
		dt.Kind = daytype.Kind(strings.ToLower(strings.TrimSpace(string(dt.Kind))))
	}
}

// Validate checks the definition for internal consistency.
func (c *StudyConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidStudy)
	}
	if c.DurationDays < 1 {
		return fmt.Errorf("%w: duration_days must be at least 1", ErrInvalidStudy)
	}
	if len(c.Phases) == 0 {
		return fmt.Errorf("%w: at least one phase is required", ErrInvalidStudy)
	}
	phases := make(map[string]bool, len(c.Phases))
	for i, p := range c.Phases {
		if p.Name == "" {
			return fmt.Errorf("%w: phases[%d]: name is required", ErrInvalidStudy, i)
		}
		if p.DurationDays < 1 {
			return fmt.Errorf("%w: phases[%d]: duration_days must be at least 1", ErrInvalidStudy, i)
		}
		if phases[p.Name] {
			return fmt.Errorf("%w: phases[%d]: duplicate phase %s", ErrInvalidStudy, i, p.Name)
		}
		phases[p.Name] = true
	}

	forms := make(map[string]bool, len(c.Forms))
	recurring := 0
	for i, f := range c.Forms {
		if f.ID == "" {
			return fmt.Errorf("%w: forms[%d]: id is required", ErrInvalidStudy, i)
		}
		if forms[f.ID] {
			return fmt.Errorf("%w: forms[%d]: duplicate form %s", ErrInvalidStudy, i, f.ID)
		}
		if f.FrequencyDays < 0 {
			return fmt.Errorf("%w: forms[%d]: frequency_days cannot be negative", ErrInvalidStudy, i)
		}
		if f.FrequencyDays > 0 {
			recurring++
		}
		forms[f.ID] = true
	}
	if recurring == 0 {
		return fmt.Errorf("%w: at least one recurring form (frequency_days >= 1) is required", ErrInvalidStudy)
	}

	dayTypes := make(map[string]daytype.DayType, len(c.DayTypes))
	for i, dt := range c.DayTypes {
		if err := dt.Validate(); err != nil {
			return fmt.Errorf("%w: day_types[%d]: %v", ErrInvalidStudy, i, err)
		}
		if _, dup := dayTypes[dt.ID]; dup {
			return fmt.Errorf("%w: day_types[%d]: duplicate day type %s", ErrInvalidStudy, i, dt.ID)
		}
		for _, f := range dt.Forms {
			if !forms[f] {
				return fmt.Errorf("%w: day_types[%d]: unknown form %s", ErrInvalidStudy, i, f)
			}
		}
		dayTypes[dt.ID] = dt
	}
	if c.EnrollmentEvent != "" {
		dt, ok := dayTypes[c.EnrollmentEvent]
		if !ok || !dt.IsEvent() {
			return fmt.Errorf("%w: enrollment_event %s is not an event day type", ErrInvalidStudy, c.EnrollmentEvent)
		}
	}
	return nil
}

// PhaseDays is the summed length of all phases.
func (c *StudyConfig) PhaseDays() int {
	total := 0
	for _, p := range c.Phases {
		total += p.DurationDays
	}
	return total
}

// PhaseNames returns the phase names in configured order.
func (c *StudyConfig) PhaseNames() []string {
	names := make([]string, 0, len(c.Phases))
	for _, p := range c.Phases {
		names = append(names, p.Name)
	}
	return names
}

// RecurringForms returns the scheduler input for every form with a frequency.
func (c *StudyConfig) RecurringForms() []models.FormFrequency {
	var out []models.FormFrequency
	for _, f := range c.Forms {
		if f.FrequencyDays > 0 {
			out = append(out, f.Frequency())
		}
	}
	return out
}

// Catalogue indexes the form entries by id.
func (c *StudyConfig) Catalogue() map[string]models.FormEntry {
	out := make(map[string]models.FormEntry, len(c.Forms))
	for _, f := range c.Forms {
		out[f.ID] = f
	}
	return out
}

// Registry builds a day-type registry in definition order.
func (c *StudyConfig) Registry() (*daytype.Registry, error) {
	r := daytype.NewRegistry()
	for _, dt := range c.DayTypes {
		if err := r.Register(dt); err != nil {
			return nil, err
		}
	}
	return r, nil
}
