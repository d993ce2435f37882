package infra

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// --- domain.PolicyStore implementation ---

// GetPolicy returns ErrNotFound for apps that were never configured.
func (s *Store) GetPolicy(ctx context.Context, pkg string) (*domain.AppPolicy, error) {
	var (
		p                          domain.AppPolicy
		tracked, requiresIntention int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT package, name, tracked, time_limit_minutes, requires_intention
		FROM app_policies WHERE package = ?`, pkg).
		Scan(&p.Package, &p.Name, &tracked, &p.TimeLimitMinutes, &requiresIntention)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy for %s: %w", pkg, err)
	}
	p.Tracked = tracked != 0
	p.RequiresIntention = requiresIntention != 0
	return &p, nil
}

// PutPolicy creates or replaces an app's settings.
func (s *Store) PutPolicy(ctx context.Context, p domain.AppPolicy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO app_policies (package, name, tracked, time_limit_minutes, requires_intention)
		VALUES (?, ?, ?, ?, ?)`,
		p.Package, p.Name, boolToInt(p.Tracked), p.TimeLimitMinutes, boolToInt(p.RequiresIntention))
	if err != nil {
		return fmt.Errorf("failed to save policy for %s: %w", p.Package, err)
	}
	return nil
}

// ListPolicies returns every configured app ordered by package.
func (s *Store) ListPolicies(ctx context.Context) ([]domain.AppPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package, name, tracked, time_limit_minutes, requires_intention
		FROM app_policies ORDER BY package`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var out []domain.AppPolicy
	for rows.Next() {
		var (
			p                          domain.AppPolicy
			tracked, requiresIntention int
		)
		if err := rows.Scan(&p.Package, &p.Name, &tracked, &p.TimeLimitMinutes, &requiresIntention); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		p.Tracked = tracked != 0
		p.RequiresIntention = requiresIntention != 0
		out = append(out, p)
	}
	return out, rows.Err()
}
