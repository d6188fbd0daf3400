package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/FormCadence/internal/models"
)

// Compile-time check that PostgresStore implements SkipRepo.
var _ SkipRepo = (*PostgresStore)(nil)

func (s *PostgresStore) AddSkip(sk models.Skip) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO skips (`+skipColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (participant_id, phase, day_type_id, date, form_id) DO NOTHING`,
		sk.ID, sk.ParticipantID, sk.Phase, sk.DayTypeID, models.FormatDate(sk.Date), sk.FormID, sk.Reason, sk.Timestamp,
	)
	if err != nil {
		slog.Error("PostgresStore AddSkip failed", "error", err, "key", sk.Key().String())
		return false, fmt.Errorf("record skip failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("skip rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) RemoveSkip(key models.SkipKey) (bool, error) {
	res, err := s.db.Exec(
		`DELETE FROM skips WHERE participant_id = $1 AND phase = $2 AND day_type_id = $3 AND date = $4 AND form_id = $5`,
		skipKeyArgs(key)...,
	)
	if err != nil {
		slog.Error("PostgresStore RemoveSkip failed", "error", err, "key", key.String())
		return false, fmt.Errorf("remove skip failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("skip rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) GetSkip(key models.SkipKey) (*models.Skip, error) {
	row := s.db.QueryRow(
		`SELECT `+skipColumns+` FROM skips WHERE participant_id = $1 AND phase = $2 AND day_type_id = $3 AND date = $4 AND form_id = $5`,
		skipKeyArgs(key)...,
	)
	sk, err := scanSkip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("skip lookup failed: %w", err)
	}
	return &sk, nil
}

func (s *PostgresStore) ListSkips(f SkipFilter) ([]models.Skip, error) {
	where, args := whereClause(postgresPlaceholder, f.ParticipantID, f.Phase, f.DayTypeID, f.Date)
	rows, err := s.db.Query(`SELECT `+skipColumns+` FROM skips`+where+` ORDER BY skipped_at, participant_id, phase, day_type_id, date, form_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("skip query failed: %w", err)
	}
	return collect(rows, scanSkip)
}

func (s *PostgresStore) DeleteSkips(participantID string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM skips WHERE participant_id = $1`, participantID)
	if err != nil {
		return 0, fmt.Errorf("delete skips failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
