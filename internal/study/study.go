// Package study ties a study definition to its ledgers.
//
// A Service owns one study: the anchor schedule computed at construction, the
// day-type registry, and the completion and skip ledgers over a store backend.
// Writes for a participant are serialised so that duplicate suppression and the
// navigation answer that follows a save see a consistent ledger.
package study

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FormCadence/internal/config"
	"github.com/BTreeMap/FormCadence/internal/daytype"
	"github.com/BTreeMap/FormCadence/internal/ledger"
	"github.com/BTreeMap/FormCadence/internal/models"
	"github.com/BTreeMap/FormCadence/internal/navigation"
	"github.com/BTreeMap/FormCadence/internal/progress"
	"github.com/BTreeMap/FormCadence/internal/recurrence"
	"github.com/BTreeMap/FormCadence/internal/store"
)

// Observer receives notifications about ledger activity. The metrics package
// provides the production implementation.
type Observer interface {
	ParticipantEnrolled()
	EventTriggered(dayTypeID string)
	CompletionRecorded(phase string, duplicate bool)
	SkipDecided(ok bool)
	NavigationDecided(action models.ActionType)
}

type nopObserver struct{}

func (nopObserver) ParticipantEnrolled()                {}
func (nopObserver) EventTriggered(string)               {}
func (nopObserver) CompletionRecorded(string, bool)     {}
func (nopObserver) SkipDecided(bool)                    {}
func (nopObserver) NavigationDecided(models.ActionType) {}

// Opts holds configuration options for the Service.
type Opts struct {
	Now           func() time.Time
	Observer      Observer
	LedgerOptions []ledger.Option
}

// Option defines a function for configuring the Service.
type Option func(*Opts)

// WithClock overrides the clock used when a caller omits the date.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// WithObserver attaches an observer for ledger activity.
func WithObserver(obs Observer) Option {
	return func(o *Opts) {
		o.Observer = obs
	}
}

// WithLedgerOptions passes options through to both ledgers.
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(o *Opts) {
		o.LedgerOptions = append(o.LedgerOptions, opts...)
	}
}

// Service runs one study definition against a store.
type Service struct {
	cfg       *config.StudyConfig
	schedule  *recurrence.AnchorSchedule
	registry  *daytype.Registry
	catalogue map[string]models.FormEntry

	store       store.Store
	completions *ledger.CompletionLedger
	skips       *ledger.SkipLedger
	progress    *progress.Calculator
	decider     *navigation.Decider

	locks    *keyedMutex
	now      func() time.Time
	observer Observer
}

// New validates cfg, computes its anchor schedule and wires the ledgers over st.
func New(cfg *config.StudyConfig, st store.Store, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: study definition is required", models.ErrInvalidInput)
	}
	if st == nil {
		return nil, fmt.Errorf("%w: store is required", models.ErrInvalidInput)
	}
	o := Opts{
		Now:      func() time.Time { return time.Now().UTC() },
		Observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	schedule, err := recurrence.ComputeSchedule(cfg.RecurringForms(), cfg.DurationDays,
		recurrence.WithMaxCycleDays(cfg.MaxAnchorCycleDays))
	if err != nil {
		return nil, err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	completions := ledger.NewCompletionLedger(st, o.LedgerOptions...)
	skips := ledger.NewSkipLedger(st, o.LedgerOptions...)
	s := &Service{
		cfg:         cfg,
		schedule:    schedule,
		registry:    registry,
		catalogue:   cfg.Catalogue(),
		store:       st,
		completions: completions,
		skips:       skips,
		progress:    progress.NewCalculator(completions, skips),
		decider:     navigation.NewDecider(registry, completions, navigation.WithSkips(skips)),
		locks:       newKeyedMutex(),
		now:         o.Now,
		observer:    o.Observer,
	}
	slog.Info("Service.New: study loaded", "studyID", cfg.ID, "durationDays", cfg.DurationDays,
		"anchorCycleDays", schedule.AnchorCycleDays, "dayTypes", registry.Len())
	return s, nil
}

// Config returns the study definition.
func (s *Service) Config() *config.StudyConfig { return s.cfg }

// Schedule returns the anchor schedule computed at construction.
func (s *Service) Schedule() *recurrence.AnchorSchedule { return s.schedule }

// Registry returns the study's day types.
func (s *Service) Registry() *daytype.Registry { return s.registry }

// Completions returns the completion ledger.
func (s *Service) Completions() *ledger.CompletionLedger { return s.completions }

// Skips returns the skip ledger.
func (s *Service) Skips() *ledger.SkipLedger { return s.skips }

// Decider returns the navigation decider. It is skip-aware.
func (s *Service) Decider() *navigation.Decider { return s.decider }

// Form returns the catalogue entry for id.
func (s *Service) Form(id string) (models.FormEntry, bool) {
	f, ok := s.catalogue[id]
	return f, ok
}

// dayForms maps a day type's form ids onto catalogue entries. Forms missing
// from the catalogue count as required.
func (s *Service) dayForms(dt daytype.DayType) []models.FormEntry {
	out := make([]models.FormEntry, 0, len(dt.Forms))
	for _, id := range dt.Forms {
		if f, ok := s.catalogue[id]; ok {
			out = append(out, f)
			continue
		}
		out = append(out, models.FormEntry{ID: id, Required: true})
	}
	return out
}

func (s *Service) dateOrToday(date time.Time) time.Time {
	if date.IsZero() {
		date = s.now()
	}
	return models.DateOnly(date)
}
