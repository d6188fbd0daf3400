package daytype

import (
	"log/slog"
	"sort"
	"time"
)

// Exclusion records that a candidate was suppressed by a higher-priority one.
type Exclusion struct {
	DayTypeID  string `json:"day_type_id"`
	ExcludedBy string `json:"excluded_by"`
}

// Explanation is an audit trail of a resolution.
type Explanation struct {
	Candidates   []string    `json:"candidates"`
	Active       *DayType    `json:"active,omitempty"`
	Excluded     []Exclusion `json:"excluded"`
	Outranked    []string    `json:"outranked"`
	Unregistered []string    `json:"unregistered"`
	Reason       string      `json:"reason"`
}

// ExcludedIDs returns the ids of excluded candidates in input order.
func (e Explanation) ExcludedIDs() []string {
	ids := make([]string, len(e.Excluded))
	for i, x := range e.Excluded {
		ids[i] = x.DayTypeID
	}
	return ids
}

type ranked struct {
	e     *entry
	input int
}

type resolution struct {
	winner       *entry
	excluded     []Exclusion
	outranked    []string
	unregistered []string
}

// resolve is the single resolution algorithm behind Resolve and Explain.
func (r *Registry) resolve(candidates []string) resolution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res resolution
	var pool []ranked
	seen := make(map[string]bool, len(candidates))
	for i, id := range candidates {
		if seen[id] {
			continue
		}
		seen[id] = true
		e, ok := r.entries[id]
		if !ok {
			res.unregistered = append(res.unregistered, id)
			continue
		}
		pool = append(pool, ranked{e: e, input: i})
	}
	if len(pool) == 0 {
		return res
	}

	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i].e, pool[j].e
		if a.def.Priority != b.def.Priority {
			return a.def.Priority > b.def.Priority
		}
		return a.seq < b.seq
	})

	type loser struct {
		input int
		x     Exclusion
	}
	var excluded, outranked []loser
	for _, c := range pool {
		excluder := ""
		for _, o := range pool {
			if o.e.def.Priority > c.e.def.Priority && o.e.excludesType(c.e) {
				excluder = o.e.def.ID
				break
			}
		}
		switch {
		case excluder != "":
			excluded = append(excluded, loser{input: c.input, x: Exclusion{DayTypeID: c.e.def.ID, ExcludedBy: excluder}})
		case res.winner == nil:
			res.winner = c.e
		default:
			outranked = append(outranked, loser{input: c.input, x: Exclusion{DayTypeID: c.e.def.ID, ExcludedBy: res.winner.def.ID}})
		}
	}

	byInput := func(ls []loser) { sort.Slice(ls, func(i, j int) bool { return ls[i].input < ls[j].input }) }
	byInput(excluded)
	byInput(outranked)
	for _, l := range excluded {
		res.excluded = append(res.excluded, l.x)
	}
	for _, l := range outranked {
		res.outranked = append(res.outranked, l.x.DayTypeID)
	}
	return res
}

// Resolve picks the single active day type among candidates, or nil on a free day.
//
// Candidates are ranked by priority (registration order breaks ties); a
// candidate is disqualified when a strictly higher-priority candidate excludes
// it, and the first qualified candidate wins. asOf is accepted for callers
// that resolve per date; resolution itself does not depend on it.
func (r *Registry) Resolve(candidates []string, asOf time.Time) *DayType {
	res := r.resolve(candidates)
	if res.winner == nil {
		slog.Debug("Registry.Resolve: no registered candidates", "candidates", candidates, "date", asOf.Format("2006-01-02"))
		return nil
	}
	dt := res.winner.def.clone()
	slog.Debug("Registry.Resolve: resolved", "active", dt.ID, "candidates", candidates, "excluded", len(res.excluded))
	return &dt
}

// Explain reproduces Resolve and reports why every other candidate lost.
func (r *Registry) Explain(candidates []string, asOf time.Time) Explanation {
	res := r.resolve(candidates)
	ex := Explanation{
		Candidates:   append([]string{}, candidates...),
		Excluded:     res.excluded,
		Outranked:    res.outranked,
		Unregistered: res.unregistered,
	}
	if ex.Excluded == nil {
		ex.Excluded = []Exclusion{}
	}
	if ex.Outranked == nil {
		ex.Outranked = []string{}
	}
	if ex.Unregistered == nil {
		ex.Unregistered = []string{}
	}
	switch {
	case res.winner == nil:
		ex.Reason = "no registered day types found"
	case res.winner.def.IsEvent():
		dt := res.winner.def.clone()
		ex.Active = &dt
		ex.Reason = "event day - excludes regular schedule"
	default:
		dt := res.winner.def.clone()
		ex.Active = &dt
		ex.Reason = "highest priority regular day type"
	}
	return ex
}

// RequiredForms returns the forms of the active day type, or nil on a free day.
func (r *Registry) RequiredForms(candidates []string, asOf time.Time) []string {
	dt := r.Resolve(candidates, asOf)
	if dt == nil {
		return nil
	}
	return dt.Forms
}

// IsEventDay reports whether the active day type is an event.
func (r *Registry) IsEventDay(candidates []string, asOf time.Time) bool {
	dt := r.Resolve(candidates, asOf)
	return dt != nil && dt.IsEvent()
}
