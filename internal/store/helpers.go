package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/FormCadence/internal/models"
)

// placeholder renders the n-th (1-based) bind parameter for a SQL dialect.
type placeholder func(n int) string

func sqlitePlaceholder(int) string { return "?" }

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// whereClause builds a WHERE clause for the non-empty scoping fields shared by
// completion and skip filters.
func whereClause(ph placeholder, participantID, phase, dayTypeID string, date time.Time) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = %s", col, ph(len(args))))
	}
	if participantID != "" {
		add("participant_id", participantID)
	}
	if phase != "" {
		add("phase", phase)
	}
	if dayTypeID != "" {
		add("day_type_id", dayTypeID)
	}
	if !date.IsZero() {
		add("date", models.FormatDate(date))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// keyArgs returns the five key columns in (participant, phase, day type, date, form) order.
func keyArgs(k models.CompletionKey) []interface{} {
	return []interface{}{k.ParticipantID, k.Phase, k.DayTypeID, models.FormatDate(k.Date), k.FormID}
}

func skipKeyArgs(k models.SkipKey) []interface{} {
	return []interface{}{k.ParticipantID, k.Phase, k.DayTypeID, models.FormatDate(k.Date), k.FormID}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const completionColumns = `id, participant_id, phase, day_type_id, date, form_id, recorded_at`

// scanCompletion scans a completion row selected with completionColumns.
func scanCompletion(row rowScanner) (models.Completion, error) {
	var c models.Completion
	var date string
	if err := row.Scan(&c.ID, &c.ParticipantID, &c.Phase, &c.DayTypeID, &date, &c.FormID, &c.RecordedAt); err != nil {
		return c, fmt.Errorf("scan completion failed: %w", err)
	}
	d, err := models.ParseDate(date)
	if err != nil {
		return c, fmt.Errorf("scan completion: bad date %q: %w", date, err)
	}
	c.Date = d
	return c, nil
}

const skipColumns = `id, participant_id, phase, day_type_id, date, form_id, reason, skipped_at`

// scanSkip scans a skip row selected with skipColumns.
func scanSkip(row rowScanner) (models.Skip, error) {
	var s models.Skip
	var date string
	if err := row.Scan(&s.ID, &s.ParticipantID, &s.Phase, &s.DayTypeID, &date, &s.FormID, &s.Reason, &s.Timestamp); err != nil {
		return s, fmt.Errorf("scan skip failed: %w", err)
	}
	d, err := models.ParseDate(date)
	if err != nil {
		return s, fmt.Errorf("scan skip: bad date %q: %w", date, err)
	}
	s.Date = d
	return s, nil
}

const participantColumns = `id, study_id, start_date, enrolled_at`

func scanParticipant(row rowScanner) (models.Participant, error) {
	var p models.Participant
	var start string
	if err := row.Scan(&p.ID, &p.StudyID, &start, &p.EnrolledAt); err != nil {
		return p, err
	}
	d, err := models.ParseDate(start)
	if err != nil {
		return p, fmt.Errorf("scan participant: bad start date %q: %w", start, err)
	}
	p.StartDate = d
	return p, nil
}

const eventColumns = `id, participant_id, day_type_id, date, recorded_at`

func scanEvent(row rowScanner) (models.EventOccurrence, error) {
	var e models.EventOccurrence
	var date string
	if err := row.Scan(&e.ID, &e.ParticipantID, &e.DayTypeID, &date, &e.RecordedAt); err != nil {
		return e, fmt.Errorf("scan event failed: %w", err)
	}
	d, err := models.ParseDate(date)
	if err != nil {
		return e, fmt.Errorf("scan event: bad date %q: %w", date, err)
	}
	e.Date = d
	return e, nil
}

// collect drains rows through scan.
func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return out, nil
}
