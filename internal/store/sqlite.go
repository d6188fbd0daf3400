// Package store provides storage backends for FormCadence.
//
// This file implements an SQLite-backed store for the ledgers and participants.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/FormCadence/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// Serialize writers; SQLite allows one at a time anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddCompletion(c models.Completion) error {
	_, err := s.db.Exec(`INSERT INTO completions (`+completionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ParticipantID, c.Phase, c.DayTypeID, models.FormatDate(c.Date), c.FormID, c.RecordedAt)
	if err != nil {
		slog.Error("SQLiteStore AddCompletion failed", "error", err, "participantID", c.ParticipantID, "formID", c.FormID)
		return fmt.Errorf("failed to insert completion for %s: %w", c.ParticipantID, err)
	}
	slog.Debug("SQLiteStore AddCompletion succeeded", "participantID", c.ParticipantID, "formID", c.FormID, "phase", c.Phase)
	return nil
}

func (s *SQLiteStore) HasCompletion(key models.CompletionKey) (bool, error) {
	c, err := s.FindCompletion(key)
	return c != nil, err
}

func (s *SQLiteStore) FindCompletion(key models.CompletionKey) (*models.Completion, error) {
	row := s.db.QueryRow(`SELECT `+completionColumns+` FROM completions
		WHERE participant_id = ? AND phase = ? AND day_type_id = ? AND date = ? AND form_id = ?
		ORDER BY recorded_at, rowid LIMIT 1`, keyArgs(key)...)
	c, err := scanCompletion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Error("SQLiteStore FindCompletion failed", "error", err, "key", key.String())
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) ListCompletions(f CompletionFilter) ([]models.Completion, error) {
	where, args := whereClause(sqlitePlaceholder, f.ParticipantID, f.Phase, f.DayTypeID, f.Date)
	rows, err := s.db.Query(`SELECT `+completionColumns+` FROM completions`+where+` ORDER BY recorded_at, rowid`, args...)
	if err != nil {
		slog.Error("SQLiteStore ListCompletions query failed", "error", err)
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	out, err := collect(rows, scanCompletion)
	if err != nil {
		slog.Error("SQLiteStore ListCompletions scan failed", "error", err)
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) DeleteCompletions(participantID string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM completions WHERE participant_id = ?`, participantID)
	if err != nil {
		slog.Error("SQLiteStore DeleteCompletions failed", "error", err, "participantID", participantID)
		return 0, fmt.Errorf("failed to delete completions for %s: %w", participantID, err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("SQLiteStore DeleteCompletions succeeded", "participantID", participantID, "count", n)
	return int(n), nil
}

func (s *SQLiteStore) SaveParticipant(p models.Participant) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO participants (`+participantColumns+`) VALUES (?, ?, ?, ?)`,
		p.ID, p.StudyID, models.FormatDate(p.StartDate), p.EnrolledAt)
	if err != nil {
		slog.Error("SQLiteStore SaveParticipant failed", "error", err, "participantID", p.ID)
		return fmt.Errorf("failed to save participant %s: %w", p.ID, err)
	}
	slog.Debug("SQLiteStore SaveParticipant succeeded", "participantID", p.ID)
	return nil
}

func (s *SQLiteStore) GetParticipant(id string) (*models.Participant, error) {
	p, err := scanParticipant(s.db.QueryRow(`SELECT `+participantColumns+` FROM participants WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetParticipant not found", "participantID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetParticipant failed", "error", err, "participantID", id)
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) ListParticipants() ([]models.Participant, error) {
	rows, err := s.db.Query(`SELECT ` + participantColumns + ` FROM participants ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListParticipants query failed", "error", err)
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	return collect(rows, scanParticipant)
}

func (s *SQLiteStore) AddEvent(e models.EventOccurrence) (bool, error) {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO event_occurrences (`+eventColumns+`) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.ParticipantID, e.DayTypeID, models.FormatDate(e.Date), e.RecordedAt)
	if err != nil {
		slog.Error("SQLiteStore AddEvent failed", "error", err, "participantID", e.ParticipantID, "dayTypeID", e.DayTypeID)
		return false, fmt.Errorf("failed to record event for %s: %w", e.ParticipantID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("event rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListEvents(participantID string, date time.Time) ([]models.EventOccurrence, error) {
	where, args := whereClause(sqlitePlaceholder, participantID, "", "", date)
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM event_occurrences`+where+` ORDER BY date, recorded_at`, args...)
	if err != nil {
		slog.Error("SQLiteStore ListEvents query failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return collect(rows, scanEvent)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
