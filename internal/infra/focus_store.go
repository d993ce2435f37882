package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// --- domain.FocusSessionStore implementation ---

// InsertSession persists a newly started session.
func (s *Store) InsertSession(ctx context.Context, session domain.FocusSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO focus_sessions (id, start_time, end_time, planned_minutes, actual_minutes, completed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.StartTime.Unix(), endTimeValue(session.EndTime),
		session.PlannedMinutes, session.ActualMinutes, boolToInt(session.Completed))
	if err != nil {
		return fmt.Errorf("failed to insert focus session: %w", err)
	}
	return nil
}

// UpdateSession writes the outcome of a finished session.
func (s *Store) UpdateSession(ctx context.Context, session domain.FocusSession) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE focus_sessions SET end_time = ?, actual_minutes = ?, completed = ?
		WHERE id = ?`,
		endTimeValue(session.EndTime), session.ActualMinutes, boolToInt(session.Completed), session.ID)
	if err != nil {
		return fmt.Errorf("failed to update focus session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("focus session %s: %w", session.ID, domain.ErrNotFound)
	}
	return nil
}

// OpenSessions returns sessions whose end time was never set.
func (s *Store) OpenSessions(ctx context.Context) ([]domain.FocusSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_time, end_time, planned_minutes, actual_minutes, completed
		FROM focus_sessions WHERE end_time IS NULL ORDER BY start_time`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open focus sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.FocusSession
	for rows.Next() {
		var (
			fs        domain.FocusSession
			start     int64
			end       sql.NullInt64
			completed int
		)
		if err := rows.Scan(&fs.ID, &start, &end, &fs.PlannedMinutes, &fs.ActualMinutes, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan focus session: %w", err)
		}
		fs.StartTime = time.Unix(start, 0)
		if end.Valid {
			t := time.Unix(end.Int64, 0)
			fs.EndTime = &t
		}
		fs.Completed = completed != 0
		out = append(out, fs)
	}
	return out, rows.Err()
}

// TotalFocusMinutesSince sums actual minutes of completed sessions started since.
func (s *Store) TotalFocusMinutesSince(ctx context.Context, since time.Time) (int, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(actual_minutes) FROM focus_sessions WHERE completed = 1 AND start_time >= ?`,
		since.Unix()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum focus minutes: %w", err)
	}
	return int(total.Int64), nil
}

func endTimeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
