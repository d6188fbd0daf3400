// Package daytype holds day-type definitions and resolves which one is active on a date.
//
// A day type is a prioritised bundle of forms that are due together. Regular
// day types come from the recurring schedule; event day types come from
// clinical occurrences (end of treatment, early withdrawal) and, unless told
// otherwise, suppress every regular day type.
package daytype

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/FormCadence/internal/models"
)

// Kind distinguishes event day types from regular ones.
type Kind string

const (
	// KindRegular is a day type produced by the recurring schedule.
	KindRegular Kind = "regular"
	// KindEvent is a day type triggered by a one-off clinical occurrence.
	KindEvent Kind = "event"
)

// Standard priorities. Events always outrank regular day types.
const (
	PriorityEvent = 100
	PriorityABC   = 30
	PriorityAB    = 20
	PriorityAOnly = 10
	PriorityFree  = 0
)

// DayType is a named, prioritised bundle of forms.
//
// For an event, a nil Excludes means "every regular day type", including
// regular types registered after the event. A non-nil Excludes (even empty)
// is taken literally.
type DayType struct {
	ID       string   `json:"id" yaml:"id"`
	Kind     Kind     `json:"kind" yaml:"kind"`
	Priority int      `json:"priority" yaml:"priority"`
	Forms    []string `json:"forms" yaml:"forms"`
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`
}

// IsEvent reports whether the day type is event-triggered.
func (d DayType) IsEvent() bool {
	return d.Kind == KindEvent
}

// Validate checks a definition before registration.
func (d DayType) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, models.ErrEmptyDayType)
	}
	if d.Kind != KindRegular && d.Kind != KindEvent {
		return fmt.Errorf("%w: day type %s has unknown kind %q", models.ErrInvalidInput, d.ID, d.Kind)
	}
	if d.Priority < 0 {
		return fmt.Errorf("%w: day type %s has negative priority", models.ErrInvalidInput, d.ID)
	}
	seen := make(map[string]bool, len(d.Forms))
	for _, f := range d.Forms {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: day type %s lists an empty form id", models.ErrInvalidInput, d.ID)
		}
		if seen[f] {
			return fmt.Errorf("%w: day type %s lists form %s twice", models.ErrInvalidInput, d.ID, f)
		}
		seen[f] = true
	}
	for _, x := range d.Excludes {
		if x == d.ID {
			return fmt.Errorf("%w: day type %s excludes itself", models.ErrInvalidInput, d.ID)
		}
	}
	return nil
}

func (d DayType) clone() DayType {
	out := d
	out.Forms = append([]string{}, d.Forms...)
	if d.Excludes != nil {
		out.Excludes = append([]string{}, d.Excludes...)
	}
	return out
}

// entry is a registered day type with its exclusion relation precomputed.
type entry struct {
	def               DayType
	seq               int
	excludeAllRegular bool
	excludes          map[string]bool
}

func (e *entry) excludesType(other *entry) bool {
	if e.excludeAllRegular && other.def.Kind == KindRegular {
		return true
	}
	return e.excludes[other.def.ID]
}

// Registry holds day-type definitions for a study.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds or replaces a day type. A replacement keeps the registration
// slot of the original, which is the tie-break among equal priorities.
func (r *Registry) Register(dt DayType) error {
	if err := dt.Validate(); err != nil {
		slog.Warn("Registry.Register: invalid day type", "error", err, "dayTypeID", dt.ID)
		return err
	}
	e := &entry{def: dt.clone(), excludes: make(map[string]bool, len(dt.Excludes))}
	if dt.IsEvent() && dt.Excludes == nil {
		e.excludeAllRegular = true
	}
	for _, x := range dt.Excludes {
		e.excludes[x] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[dt.ID]; ok {
		e.seq = prev.seq
		slog.Debug("Registry.Register: replacing day type", "dayTypeID", dt.ID)
	} else {
		e.seq = r.nextSeq
		r.nextSeq++
	}
	r.entries[dt.ID] = e
	slog.Debug("Registry.Register: day type registered", "dayTypeID", dt.ID, "kind", dt.Kind, "priority", dt.Priority, "forms", len(dt.Forms))
	return nil
}

// MustRegister registers every definition and panics on an invalid one.
// Intended for presets built from constants.
func (r *Registry) MustRegister(dts ...DayType) *Registry {
	for _, dt := range dts {
		if err := r.Register(dt); err != nil {
			panic(err)
		}
	}
	return r
}

// Get returns a copy of a registered day type.
func (r *Registry) Get(id string) (DayType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return DayType{}, false
	}
	return e.def.clone(), true
}

// List returns all registered day types in registration order.
func (r *Registry) List() []DayType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ordered := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	out := make([]DayType, len(ordered))
	for i, e := range ordered {
		out[i] = e.def.clone()
	}
	return out
}

// Len returns the number of registered day types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
