// Package store provides storage backends for FormCadence.
//
// This file implements a PostgreSQL-backed store for the ledgers and participants.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/FormCadence/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddCompletion(c models.Completion) error {
	_, err := s.db.Exec(`INSERT INTO completions (`+completionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.ParticipantID, c.Phase, c.DayTypeID, models.FormatDate(c.Date), c.FormID, c.RecordedAt)
	if err != nil {
		slog.Error("PostgresStore AddCompletion failed", "error", err, "participantID", c.ParticipantID, "formID", c.FormID)
		return fmt.Errorf("failed to insert completion for %s: %w", c.ParticipantID, err)
	}
	slog.Debug("PostgresStore AddCompletion succeeded", "participantID", c.ParticipantID, "formID", c.FormID, "phase", c.Phase)
	return nil
}

func (s *PostgresStore) HasCompletion(key models.CompletionKey) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM completions
		WHERE participant_id = $1 AND phase = $2 AND day_type_id = $3 AND date = $4 AND form_id = $5)`,
		keyArgs(key)...).Scan(&exists)
	if err != nil {
		slog.Error("PostgresStore HasCompletion failed", "error", err, "key", key.String())
		return false, fmt.Errorf("completion lookup failed: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) FindCompletion(key models.CompletionKey) (*models.Completion, error) {
	row := s.db.QueryRow(`SELECT `+completionColumns+` FROM completions
		WHERE participant_id = $1 AND phase = $2 AND day_type_id = $3 AND date = $4 AND form_id = $5
		ORDER BY recorded_at, seq LIMIT 1`, keyArgs(key)...)
	c, err := scanCompletion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Error("PostgresStore FindCompletion failed", "error", err, "key", key.String())
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) ListCompletions(f CompletionFilter) ([]models.Completion, error) {
	where, args := whereClause(postgresPlaceholder, f.ParticipantID, f.Phase, f.DayTypeID, f.Date)
	rows, err := s.db.Query(`SELECT `+completionColumns+` FROM completions`+where+` ORDER BY recorded_at, seq`, args...)
	if err != nil {
		slog.Error("PostgresStore ListCompletions query failed", "error", err)
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	out, err := collect(rows, scanCompletion)
	if err != nil {
		slog.Error("PostgresStore ListCompletions scan failed", "error", err)
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) DeleteCompletions(participantID string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM completions WHERE participant_id = $1`, participantID)
	if err != nil {
		slog.Error("PostgresStore DeleteCompletions failed", "error", err, "participantID", participantID)
		return 0, fmt.Errorf("failed to delete completions for %s: %w", participantID, err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("PostgresStore DeleteCompletions succeeded", "participantID", participantID, "count", n)
	return int(n), nil
}

func (s *PostgresStore) SaveParticipant(p models.Participant) error {
	_, err := s.db.Exec(`INSERT INTO participants (`+participantColumns+`) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET study_id = EXCLUDED.study_id, start_date = EXCLUDED.start_date, enrolled_at = EXCLUDED.enrolled_at`,
		p.ID, p.StudyID, models.FormatDate(p.StartDate), p.EnrolledAt)
	if err != nil {
		slog.Error("PostgresStore SaveParticipant failed", "error", err, "participantID", p.ID)
		return fmt.Errorf("failed to save participant %s: %w", p.ID, err)
	}
	slog.Debug("PostgresStore SaveParticipant succeeded", "participantID", p.ID)
	return nil
}

func (s *PostgresStore) GetParticipant(id string) (*models.Participant, error) {
	p, err := scanParticipant(s.db.QueryRow(`SELECT `+participantColumns+` FROM participants WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetParticipant not found", "participantID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetParticipant failed", "error", err, "participantID", id)
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ListParticipants() ([]models.Participant, error) {
	rows, err := s.db.Query(`SELECT ` + participantColumns + ` FROM participants ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListParticipants query failed", "error", err)
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	return collect(rows, scanParticipant)
}

func (s *PostgresStore) AddEvent(e models.EventOccurrence) (bool, error) {
	res, err := s.db.Exec(`INSERT INTO event_occurrences (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (participant_id, day_type_id, date) DO NOTHING`,
		e.ID, e.ParticipantID, e.DayTypeID, models.FormatDate(e.Date), e.RecordedAt)
	if err != nil {
		slog.Error("PostgresStore AddEvent failed", "error", err, "participantID", e.ParticipantID, "dayTypeID", e.DayTypeID)
		return false, fmt.Errorf("failed to record event for %s: %w", e.ParticipantID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("event rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ListEvents(participantID string, date time.Time) ([]models.EventOccurrence, error) {
	where, args := whereClause(postgresPlaceholder, participantID, "", "", date)
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM event_occurrences`+where+` ORDER BY date, recorded_at`, args...)
	if err != nil {
		slog.Error("PostgresStore ListEvents query failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return collect(rows, scanEvent)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
