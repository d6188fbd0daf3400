// Package store provides storage backends for FormCadence.
//
// It persists the completion and skip ledgers, enrolled participants and fired
// clinical events. An in-memory store serves tests and ephemeral runs; SQLite
// and PostgreSQL stores serve durable deployments.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a function for configuring store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// CompletionFilter narrows completion listings. Empty fields match anything;
// a zero Date matches every date.
type CompletionFilter struct {
	ParticipantID string
	Phase         string
	DayTypeID     string
	Date          time.Time
}

func (f CompletionFilter) matches(c models.Completion) bool {
	return (f.ParticipantID == "" || f.ParticipantID == c.ParticipantID) &&
		(f.Phase == "" || f.Phase == c.Phase) &&
		(f.DayTypeID == "" || f.DayTypeID == c.DayTypeID) &&
		(f.Date.IsZero() || models.DateOnly(f.Date).Equal(models.DateOnly(c.Date)))
}

// SkipFilter narrows skip listings the same way CompletionFilter does.
type SkipFilter struct {
	ParticipantID string
	Phase         string
	DayTypeID     string
	Date          time.Time
}

func (f SkipFilter) matches(s models.Skip) bool {
	return (f.ParticipantID == "" || f.ParticipantID == s.ParticipantID) &&
		(f.Phase == "" || f.Phase == s.Phase) &&
		(f.DayTypeID == "" || f.DayTypeID == s.DayTypeID) &&
		(f.Date.IsZero() || models.DateOnly(f.Date).Equal(models.DateOnly(s.Date)))
}

// CompletionRepo persists the append-only completion ledger.
type CompletionRepo interface {
	// AddCompletion appends a completion. It never deduplicates.
	AddCompletion(c models.Completion) error
	// HasCompletion reports whether any completion matches all five key fields.
	HasCompletion(key models.CompletionKey) (bool, error)
	// FindCompletion returns the earliest completion matching key, or nil.
	FindCompletion(key models.CompletionKey) (*models.Completion, error)
	// ListCompletions returns matching completions ordered by recording time.
	ListCompletions(f CompletionFilter) ([]models.Completion, error)
	// DeleteCompletions removes every completion of a participant.
	DeleteCompletions(participantID string) (int, error)
}

// SkipRepo persists skips. At most one skip exists per key.
type SkipRepo interface {
	// AddSkip inserts a skip. Returns false if the key is already skipped.
	AddSkip(s models.Skip) (bool, error)
	// RemoveSkip deletes the skip for key. Returns false if none existed.
	RemoveSkip(key models.SkipKey) (bool, error)
	// GetSkip returns the skip for key, or nil.
	GetSkip(key models.SkipKey) (*models.Skip, error)
	// ListSkips returns matching skips ordered by timestamp.
	ListSkips(f SkipFilter) ([]models.Skip, error)
	// DeleteSkips removes every skip of a participant.
	DeleteSkips(participantID string) (int, error)
}

// ParticipantRepo persists enrolled participants.
type ParticipantRepo interface {
	// SaveParticipant inserts or replaces a participant.
	SaveParticipant(p models.Participant) error
	// GetParticipant returns the participant, or nil if unknown.
	GetParticipant(id string) (*models.Participant, error)
	// ListParticipants returns every participant ordered by id.
	ListParticipants() ([]models.Participant, error)
}

// EventRepo persists fired clinical events.
type EventRepo interface {
	// AddEvent records an event. Returns false if the same event day type
	// already fired for the participant on that date.
	AddEvent(e models.EventOccurrence) (bool, error)
	// ListEvents returns a participant's events; a zero date returns all of them.
	ListEvents(participantID string, date time.Time) ([]models.EventOccurrence, error)
}

// Store is the full persistence surface used by the study service.
type Store interface {
	CompletionRepo
	SkipRepo
	ParticipantRepo
	EventRepo
	Close() error
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps everything in process memory.
type InMemoryStore struct {
	mu           sync.RWMutex
	completions  []models.Completion
	skips        map[models.SkipKey]models.Skip
	participants map[string]models.Participant
	events       []models.EventOccurrence
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		skips:        make(map[models.SkipKey]models.Skip),
		participants: make(map[string]models.Participant),
	}
}

func (s *InMemoryStore) AddCompletion(c models.Completion) error {
	c.Date = models.DateOnly(c.Date)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, c)
	return nil
}

func (s *InMemoryStore) HasCompletion(key models.CompletionKey) (bool, error) {
	c, err := s.FindCompletion(key)
	return c != nil, err
}

func (s *InMemoryStore) FindCompletion(key models.CompletionKey) (*models.Completion, error) {
	want := key.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.completions {
		if c.Key().Normalize() == want {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ListCompletions(f CompletionFilter) ([]models.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Completion
	for _, c := range s.completions {
		if f.matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *InMemoryStore) DeleteCompletions(participantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.completions[:0]
	removed := 0
	for _, c := range s.completions {
		if c.ParticipantID == participantID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.completions = kept
	return removed, nil
}

func (s *InMemoryStore) AddSkip(sk models.Skip) (bool, error) {
	sk.Date = models.DateOnly(sk.Date)
	k := sk.Key().Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.skips[k]; exists {
		return false, nil
	}
	s.skips[k] = sk
	return true, nil
}

func (s *InMemoryStore) RemoveSkip(key models.SkipKey) (bool, error) {
	k := key.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.skips[k]; !exists {
		return false, nil
	}
	delete(s.skips, k)
	return true, nil
}

func (s *InMemoryStore) GetSkip(key models.SkipKey) (*models.Skip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sk, ok := s.skips[key.Normalize()]
	if !ok {
		return nil, nil
	}
	return &sk, nil
}

func (s *InMemoryStore) ListSkips(f SkipFilter) ([]models.Skip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Skip
	for _, sk := range s.skips {
		if f.matches(sk) {
			out = append(out, sk)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}

func (s *InMemoryStore) DeleteSkips(participantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, sk := range s.skips {
		if sk.ParticipantID == participantID {
			delete(s.skips, k)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemoryStore) SaveParticipant(p models.Participant) error {
	p.StartDate = models.DateOnly(p.StartDate)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = p
	return nil
}

func (s *InMemoryStore) GetParticipant(id string) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) ListParticipants() ([]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) AddEvent(e models.EventOccurrence) (bool, error) {
	e.Date = models.DateOnly(e.Date)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.ParticipantID == e.ParticipantID && existing.DayTypeID == e.DayTypeID && existing.Date.Equal(e.Date) {
			return false, nil
		}
	}
	s.events = append(s.events, e)
	return true, nil
}

func (s *InMemoryStore) ListEvents(participantID string, date time.Time) ([]models.EventOccurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.EventOccurrence
	for _, e := range s.events {
		if e.ParticipantID != participantID {
			continue
		}
		if !date.IsZero() && !e.Date.Equal(models.DateOnly(date)) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
