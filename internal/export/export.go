// Package export snapshots the ledgers as JSON Lines into a sink.
//
// Each run writes participants.jsonl, completions.jsonl, skips.jsonl and a
// manifest.json under <study>/<timestamp>/.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
	"github.com/BTreeMap/FormCadence/internal/store"
)

// TimestampLayout names an export directory.
const TimestampLayout = "20060102T150405Z"

// Source is the read side of the store an export draws from.
type Source interface {
	ListParticipants() ([]models.Participant, error)
	ListCompletions(f store.CompletionFilter) ([]models.Completion, error)
	ListSkips(f store.SkipFilter) ([]models.Skip, error)
}

// Recorder observes finished export runs.
type Recorder interface {
	ExportFinished(err error, took time.Duration)
}

// Opts holds configuration options for the Exporter.
type Opts struct {
	Recorder Recorder
	Now      func() time.Time
}

// Option defines a function for configuring the Exporter.
type Option func(*Opts)

// WithRecorder reports each run to rec.
func WithRecorder(rec Recorder) Option {
	return func(o *Opts) {
		o.Recorder = rec
	}
}

// WithClock overrides the clock used to time runs.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// Manifest describes one export run.
type Manifest struct {
	StudyID      string    `json:"study_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	Prefix       string    `json:"prefix"`
	Sink         string    `json:"sink"`
	Participants int       `json:"participants"`
	Completions  int       `json:"completions"`
	Skips        int       `json:"skips"`
}

// Exporter writes ledger snapshots for one study.
type Exporter struct {
	studyID string
	source  Source
	sink    Sink
	opts    Opts
}

// NewExporter creates an Exporter.
func NewExporter(studyID string, source Source, sink Sink, opts ...Option) *Exporter {
	o := Opts{Now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return &Exporter{studyID: studyID, source: source, sink: sink, opts: o}
}

// Export writes a snapshot stamped with at.
func (e *Exporter) Export(ctx context.Context, at time.Time) (Manifest, error) {
	began := e.opts.Now()
	m, err := e.export(ctx, at.UTC())
	if e.opts.Recorder != nil {
		e.opts.Recorder.ExportFinished(err, e.opts.Now().Sub(began))
	}
	if err != nil {
		slog.Error("Exporter.Export: export failed", "error", err, "studyID", e.studyID, "sink", e.sink.Name())
		return Manifest{}, err
	}
	slog.Info("Exporter.Export: export written", "prefix", m.Prefix, "sink", m.Sink,
		"participants", m.Participants, "completions", m.Completions, "skips", m.Skips)
	return m, nil
}

func (e *Exporter) export(ctx context.Context, at time.Time) (Manifest, error) {
	participants, err := e.source.ListParticipants()
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to list participants: %w", err)
	}
	completions, err := e.source.ListCompletions(store.CompletionFilter{})
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to list completions: %w", err)
	}
	skips, err := e.source.ListSkips(store.SkipFilter{})
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to list skips: %w", err)
	}

	m := Manifest{
		StudyID:      e.studyID,
		GeneratedAt:  at,
		Prefix:       e.studyID + "/" + at.Format(TimestampLayout),
		Sink:         e.sink.Name(),
		Participants: len(participants),
		Completions:  len(completions),
		Skips:        len(skips),
	}
	var files [3][]byte
	if files[0], err = jsonLines(participants); err == nil {
		if files[1], err = jsonLines(completions); err == nil {
			files[2], err = jsonLines(skips)
		}
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to encode rows: %w", err)
	}
	for i, name := range []string{"participants.jsonl", "completions.jsonl", "skips.jsonl"} {
		if err := e.sink.Put(ctx, m.Prefix+"/"+name, files[i], "application/x-ndjson"); err != nil {
			return Manifest{}, err
		}
	}
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := e.sink.Put(ctx, m.Prefix+"/manifest.json", manifest, "application/json"); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func jsonLines[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
