package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// --- domain.StatsStore implementation ---

// GetUserStats returns the singleton record, or the defaults of a fresh install.
func (s *Store) GetUserStats(ctx context.Context) (domain.UserStats, error) {
	var (
		st        domain.UserStats
		lastCheck int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT current_streak, longest_streak, total_points, daily_goal_minutes, last_goal_check_date
		FROM user_stats WHERE id = 1`).
		Scan(&st.CurrentStreak, &st.LongestStreak, &st.TotalPoints, &st.DailyGoalMinutes, &lastCheck)
	if err == sql.ErrNoRows {
		return domain.DefaultUserStats(), nil
	}
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("failed to read user stats: %w", err)
	}
	if lastCheck != 0 {
		st.LastGoalCheckDate = time.Unix(lastCheck, 0)
	}
	return st, nil
}

// PutUserStats replaces the singleton record.
func (s *Store) PutUserStats(ctx context.Context, st domain.UserStats) error {
	var lastCheck int64
	if !st.LastGoalCheckDate.IsZero() {
		lastCheck = st.LastGoalCheckDate.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_stats
			(id, current_streak, longest_streak, total_points, daily_goal_minutes, last_goal_check_date)
		VALUES (1, ?, ?, ?, ?, ?)`,
		st.CurrentStreak, st.LongestStreak, st.TotalPoints, st.DailyGoalMinutes, lastCheck)
	if err != nil {
		return fmt.Errorf("failed to save user stats: %w", err)
	}
	return nil
}

// PutDailyGoal records one day's rollup, replacing any earlier record for the day.
func (s *Store) PutDailyGoal(ctx context.Context, g domain.DailyGoal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_goals (date, goal_minutes, actual_minutes, goal_met)
		VALUES (?, ?, ?, ?)`,
		g.Date.Unix(), g.GoalMinutes, g.ActualMinutes, boolToInt(g.GoalMet))
	if err != nil {
		return fmt.Errorf("failed to save daily goal: %w", err)
	}
	return nil
}

// GetDailyGoalsSince returns goal history from since on, oldest first.
func (s *Store) GetDailyGoalsSince(ctx context.Context, since time.Time) ([]domain.DailyGoal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, goal_minutes, actual_minutes, goal_met FROM daily_goals
		WHERE date >= ? ORDER BY date`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query daily goals: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyGoal
	for rows.Next() {
		var (
			g    domain.DailyGoal
			date int64
			met  int
		)
		if err := rows.Scan(&date, &g.GoalMinutes, &g.ActualMinutes, &met); err != nil {
			return nil, fmt.Errorf("failed to scan daily goal: %w", err)
		}
		g.Date = time.Unix(date, 0)
		g.GoalMet = met != 0
		out = append(out, g)
	}
	return out, rows.Err()
}
