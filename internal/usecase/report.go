package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// UsageReporter assembles per-app daily usage for display.
type UsageReporter struct {
	usage    domain.UsageStore
	policies domain.PolicyStore
	loc      *time.Location
	logger   *zap.Logger
}

// NewUsageReporter creates a reporter.
func NewUsageReporter(usage domain.UsageStore, policies domain.PolicyStore, loc *time.Location, logger *zap.Logger) *UsageReporter {
	if loc == nil {
		loc = time.Local
	}
	return &UsageReporter{usage: usage, policies: policies, loc: loc, logger: logger}
}

// Report returns the day's usage per app, most used first.
// A failed name lookup falls back to the package id; numbers are never dropped.
func (r *UsageReporter) Report(ctx context.Context, day time.Time) ([]domain.AppUsage, error) {
	start := domain.DayStart(day, r.loc)
	end := domain.DayStart(start.AddDate(0, 0, 1), r.loc)

	rows, err := r.usage.GetUsageBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}

	byPkg := make(map[string]*domain.AppUsage)
	for _, row := range rows {
		app, ok := byPkg[row.Package]
		if !ok {
			app = &domain.AppUsage{Package: row.Package, AppName: r.appName(ctx, row.Package)}
			byPkg[row.Package] = app
		}
		app.Total += row.Duration
		app.Opens += row.OpenCount
		app.Hourly = append(app.Hourly, row)
	}

	report := make([]domain.AppUsage, 0, len(byPkg))
	for _, app := range byPkg {
		sort.Slice(app.Hourly, func(i, j int) bool {
			return app.Hourly[i].HourStart.Before(app.Hourly[j].HourStart)
		})
		report = append(report, *app)
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].Total != report[j].Total {
			return report[i].Total > report[j].Total
		}
		return report[i].Package < report[j].Package
	})
	return report, nil
}

func (r *UsageReporter) appName(ctx context.Context, pkg string) string {
	p, err := r.policies.GetPolicy(ctx, pkg)
	if err != nil || p == nil || p.Name == "" {
		if err != nil {
			r.logger.Debug("app name unavailable", zap.String("package", pkg), zap.Error(err))
		}
		return pkg
	}
	return p.Name
}
