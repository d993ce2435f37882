package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// --- domain.UsageStore implementation ---

// UpsertHourlyUsage overwrites rows by (package, hour_start) in one transaction.
func (s *Store) UpsertHourlyUsage(ctx context.Context, rows []domain.HourlyUsage) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO hourly_usage (package, hour_start, duration_ms, open_count)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Package, r.HourStart.Unix(), r.Duration.Milliseconds(), r.OpenCount); err != nil {
			return fmt.Errorf("failed to upsert usage for %s: %w", r.Package, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit usage: %w", err)
	}
	return nil
}

// GetUsageSince returns all rows with hour_start >= since.
func (s *Store) GetUsageSince(ctx context.Context, since time.Time) ([]domain.HourlyUsage, error) {
	return s.queryUsage(ctx, `
		SELECT package, hour_start, duration_ms, open_count FROM hourly_usage
		WHERE hour_start >= ? ORDER BY hour_start, package`, since.Unix())
}

// GetUsageBetween returns rows with start <= hour_start < end.
func (s *Store) GetUsageBetween(ctx context.Context, start, end time.Time) ([]domain.HourlyUsage, error) {
	return s.queryUsage(ctx, `
		SELECT package, hour_start, duration_ms, open_count FROM hourly_usage
		WHERE hour_start >= ? AND hour_start < ? ORDER BY hour_start, package`, start.Unix(), end.Unix())
}

func (s *Store) queryUsage(ctx context.Context, query string, args ...any) ([]domain.HourlyUsage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var out []domain.HourlyUsage
	for rows.Next() {
		var (
			u         domain.HourlyUsage
			hourStart int64
			durMs     int64
		)
		if err := rows.Scan(&u.Package, &hourStart, &durMs, &u.OpenCount); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		u.HourStart = time.Unix(hourStart, 0)
		u.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetPackageUsageSince sums one app's duration since the given time.
func (s *Store) GetPackageUsageSince(ctx context.Context, pkg string, since time.Time) (time.Duration, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(duration_ms) FROM hourly_usage WHERE package = ? AND hour_start >= ?`,
		pkg, since.Unix()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage for %s: %w", pkg, err)
	}
	return time.Duration(total.Int64) * time.Millisecond, nil
}

// TrimUsageBefore deletes hourly rows and journal events older than threshold.
func (s *Store) TrimUsageBefore(ctx context.Context, threshold time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM hourly_usage WHERE hour_start < ?`, threshold.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to trim hourly usage: %w", err)
	}
	hourly, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM usage_events WHERE ts_ms < ?`, threshold.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to trim usage events: %w", err)
	}
	events, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trim: %w", err)
	}
	return hourly + events, nil
}

// --- domain.EventJournal / domain.EventSource implementation ---

// AppendEvents records live transitions in arrival order.
func (s *Store) AppendEvents(ctx context.Context, events []domain.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO usage_events (package, ts_ms, kind) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.Package, e.Timestamp.UnixMilli(), int(e.Kind)); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// QueryEvents returns journaled events in [start, end), ordered by
// timestamp and then by arrival.
func (s *Store) QueryEvents(ctx context.Context, start, end time.Time) ([]domain.UsageEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package, ts_ms, kind FROM usage_events
		WHERE ts_ms >= ? AND ts_ms < ? ORDER BY ts_ms, id`,
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []domain.UsageEvent
	for rows.Next() {
		var (
			e    domain.UsageEvent
			tsMs int64
			kind int
		)
		if err := rows.Scan(&e.Package, &tsMs, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp = time.UnixMilli(tsMs)
		e.Kind = domain.EventKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
