// Package ledger records completion and skip facts on top of a store backend.
//
// The completion ledger is append-only. Every fact is scoped by form, phase,
// day type, date and participant; a completion in one phase never counts in
// another. The skip ledger holds at most one skip per key and only for forms
// that are not required.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Opts holds configuration options for both ledgers.
type Opts struct {
	Now   func() time.Time
	NewID func() string
}

// Option defines a function for configuring a ledger.
type Option func(*Opts)

// WithClock overrides the wall clock used for recording timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// WithIDGenerator overrides how fact ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(o *Opts) {
		o.NewID = newID
	}
}

func buildOpts(opts []Option) Opts {
	cfg := Opts{
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
