package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Rebuild hourly usage for one day",
	Long:  `Re-reads the day's journaled transitions and overwrites its hourly usage rows. Safe to repeat.`,
	RunE:  runBucket,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Bucket the trailing days once per install",
	Long:  `Buckets each of the last USAGEMON_BACKFILL_DAYS days. Does nothing if a backfill already completed.`,
	RunE:  runBackfill,
}

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Evaluate today's screen-time goal",
	Long:  `Buckets today, then checks today's total against the daily goal and updates the streak and points. Runs at most once per day.`,
	RunE:  runRollup,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show usage per app for one day",
	RunE:  runReport,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show streak, points, goal and focus history",
	RunE:  runStats,
}

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage the daily screen-time goal",
}

var goalSetCmd = &cobra.Command{
	Use:   "set MINUTES",
	Short: "Set the daily screen-time ceiling in minutes",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalSet,
}

var (
	bucketDate string
	reportDate string
)

func init() {
	bucketCmd.Flags().StringVar(&bucketDate, "date", "", "Day to bucket (YYYY-MM-DD, default today)")
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Day to report (YYYY-MM-DD, default today)")
	goalCmd.AddCommand(goalSetCmd)
}

func runBucket(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	day, err := a.parseDay(bucketDate)
	if err != nil {
		return err
	}

	rows, err := a.bucketer().RunForDay(context.Background(), day)
	if err != nil {
		return err
	}
	fmt.Printf("Bucketed %s: %d hourly rows\n", day.Format(time.DateOnly), rows)
	return nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.scheduler(a.bucketer()).Backfill(context.Background()); err != nil {
		return err
	}
	fmt.Println("Backfill complete")
	return nil
}

func runRollup(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if _, err := a.bucketer().RunForDay(ctx, a.clock.Now()); err != nil {
		return err
	}

	result, err := a.rollup().RunForToday(ctx)
	if err != nil {
		return err
	}
	if result.Skipped {
		fmt.Printf("Already evaluated %s\n", result.Date.Format(time.DateOnly))
		return nil
	}

	verdict := "missed"
	if result.GoalMet {
		verdict = "met"
	}
	fmt.Printf("%s: %d of %d minutes, goal %s\n",
		result.Date.Format(time.DateOnly), result.TotalMinutes, result.GoalMinutes, verdict)
	fmt.Printf("Streak: %d (longest %d), points: %d\n",
		result.Stats.CurrentStreak, result.Stats.LongestStreak, result.Stats.TotalPoints)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	day, err := a.parseDay(reportDate)
	if err != nil {
		return err
	}

	apps, err := a.reporter().Report(context.Background(), day)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Usage %s ===\n", day.Format(time.DateOnly))
	if len(apps) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}

	var total time.Duration
	for _, u := range apps {
		total += u.Total
		fmt.Printf("\n%s (%s)\n", u.AppName, u.Package)
		fmt.Printf("  Total: %s, opened %d time(s)\n", formatDuration(u.Total), u.Opens)
		for _, h := range u.Hourly {
			fmt.Printf("    %s  %s\n", h.HourStart.In(a.loc).Format("15:04"), formatDuration(h.Duration))
		}
	}
	fmt.Printf("\nTotal screen time: %s\n", formatDuration(total))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	stats, err := a.rollup().Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== usagemon Stats ===")
	fmt.Printf("Daily goal: %d minutes\n", stats.DailyGoalMinutes)
	fmt.Printf("Current streak: %d day(s)\n", stats.CurrentStreak)
	fmt.Printf("Longest streak: %d day(s)\n", stats.LongestStreak)
	fmt.Printf("Points: %d\n", stats.TotalPoints)
	if !stats.LastGoalCheckDate.IsZero() {
		fmt.Printf("Last evaluated: %s\n", stats.LastGoalCheckDate.In(a.loc).Format(time.DateOnly))
	}

	weekAgo := domain.DayStart(a.clock.Now(), a.loc).AddDate(0, 0, -6)
	if focus, err := a.store.TotalFocusMinutesSince(ctx, weekAgo); err == nil {
		fmt.Printf("Focus minutes (7 days): %d\n", focus)
	}

	goals, err := a.store.GetDailyGoalsSince(ctx, weekAgo)
	if err != nil {
		return err
	}
	if len(goals) > 0 {
		fmt.Println("\nLast 7 days:")
		for _, g := range goals {
			mark := " "
			if g.GoalMet {
				mark = "x"
			}
			fmt.Printf("  [%s] %s  %d/%d min\n", mark, g.Date.In(a.loc).Format(time.DateOnly), g.ActualMinutes, g.GoalMinutes)
		}
	}
	fmt.Println("======================")
	return nil
}

func runGoalSet(cmd *cobra.Command, args []string) error {
	minutes, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid minutes %q: %w", args[0], err)
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.rollup().SetDailyGoal(context.Background(), minutes)
	if err != nil {
		return err
	}
	fmt.Printf("Daily goal set to %d minutes\n", stats.DailyGoalMinutes)
	return nil
}

// formatDuration renders whole minutes as "1h05m" or "12m".
func formatDuration(d time.Duration) string {
	m := int(d / time.Minute)
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", m/60, m%60)
}

// formatClock renders a countdown as MM:SS.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// progressBar draws remaining progress, full at 1.0.
func progressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
