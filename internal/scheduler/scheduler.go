// Package scheduler runs periodic FormCadence jobs such as ledger exports.
//
// Jobs are registered with cron expressions in the standard five-field form,
// or with descriptors such as @daily and @every 1h.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/FormCadence/internal/export"
)

// DefaultExportTimeout bounds a single scheduled export run.
const DefaultExportTimeout = 5 * time.Minute

// Exporter is the export entry point the scheduler drives.
type Exporter interface {
	Export(ctx context.Context, at time.Time) (export.Manifest, error)
}

// Opts holds configuration options for the Scheduler.
type Opts struct {
	Location      *time.Location
	ExportTimeout time.Duration
}

// Option defines a function for configuring the Scheduler.
type Option func(*Opts)

// WithLocation sets the time zone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// WithExportTimeout bounds each scheduled export.
func WithExportTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ExportTimeout = d
	}
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
	opts Opts
}

// slogLogger adapts cron's logger to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("Scheduler: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("Scheduler: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	o := Opts{Location: time.UTC, ExportTimeout: DefaultExportTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	// Standard 5-field cron parser (min, hour, dom, month, dow) plus descriptors, with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(o.Location),
		cron.WithLogger(slogLogger{}),
		cron.WithChain(cron.Recover(slogLogger{}), cron.SkipIfStillRunning(slogLogger{})),
	)
	c.Start()
	return &Scheduler{cron: c, opts: o}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) (cron.EntryID, error) {
	return s.cron.AddFunc(expr, task)
}

// ScheduleExport runs exporter on expr. Failures are logged; the next tick
// tries again.
func (s *Scheduler) ScheduleExport(expr string, exporter Exporter) (cron.EntryID, error) {
	id, err := s.AddJob(expr, s.exportJob(exporter))
	if err != nil {
		slog.Error("Scheduler.ScheduleExport: invalid cron expression", "error", err, "expr", expr)
		return 0, err
	}
	slog.Info("Scheduler.ScheduleExport: export scheduled", "expr", expr, "next", s.Next(id))
	return id, nil
}

func (s *Scheduler) exportJob(exporter Exporter) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ExportTimeout)
		defer cancel()
		if _, err := exporter.Export(ctx, time.Now().UTC()); err != nil {
			slog.Warn("Scheduler.exportJob: export failed", "error", err)
		}
	}
}

// Next returns the next activation time of a job, or zero if unknown.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
