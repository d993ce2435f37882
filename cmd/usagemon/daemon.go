package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
	"github.com/eliteGoblin/focusd/usage_mon/internal/infra"
	"github.com/eliteGoblin/focusd/usage_mon/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracker daemon in the foreground",
	Long: `Runs the tracker (samples tracked apps, journals transitions, decides
interventions), the daily scheduler (bucketing, goal rollup, retention and the
first-install backfill) and, when USAGEMON_METRICS_PORT is set, a Prometheus
metrics endpoint. Stops on SIGINT/SIGTERM.`,
	RunE: runDaemon,
}

var focusCmd = &cobra.Command{
	Use:   "focus",
	Short: "Run a focus session",
	Long: `Starts a focus session of --minutes and tracks apps while it runs.
Every app that comes to the foreground gets a focus-session intervention until
the countdown ends. It is logged, and its processes are killed only when
USAGEMON_ENFORCE_HARD_STOPS=true. Press Ctrl-C to stop early; the partial
session is still recorded.`,
	RunE: runFocus,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check tracker status",
	Long:  `Shows whether the tracker daemon is running, where its data lives, and the current streak.`,
	RunE:  runStatus,
}

var focusMinutes int

func init() {
	focusCmd.Flags().IntVar(&focusMinutes, "minutes", 25, "Focus session length in minutes")
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if d, alive := a.runningTracker(); alive {
		return fmt.Errorf("tracker already running (pid %d)", d.PID)
	}

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	if err := a.seedPolicies(ctx); err != nil {
		return err
	}

	// Sessions are only started by the focus command; close any it left open.
	flag := usecase.NewActiveFlag()
	if _, err := a.focusController(flag).Recover(ctx); err != nil {
		a.logger.Warn("failed to recover focus sessions", zap.Error(err))
	}

	bucketer := a.bucketer()
	tracker, err := a.tracker(flag, bucketer)
	if err != nil {
		return err
	}
	scheduler := a.scheduler(bucketer)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	if a.cfg.MetricsPort > 0 {
		srv := infra.NewMetricsServer(a.metrics.Registry(), a.cfg.MetricsPort, "/metrics", a.logger)
		srv.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	fmt.Printf("usagemon tracking (data: %s, log: %s)\n", a.dataDir, a.logPath)

	err = tracker.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runFocus(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if d, alive := a.runningTracker(); alive {
		return fmt.Errorf("tracker daemon is running (pid %d); stop it before starting a focus session", d.PID)
	}

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	flag := usecase.NewActiveFlag()
	tracker, err := a.tracker(flag, a.bucketer())
	if err != nil {
		return err
	}
	controller := a.focusController(flag)
	if _, err := controller.Recover(ctx); err != nil {
		a.logger.Warn("failed to recover focus sessions", zap.Error(err))
	}

	ticks, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	session, err := controller.Start(ctx, focusMinutes)
	if err != nil {
		return fmt.Errorf("failed to start focus session: %w", err)
	}
	done := controller.Done()

	trackerCtx, stopTracker := context.WithCancel(context.Background())
	trackerDone := make(chan error, 1)
	go func() { trackerDone <- tracker.Run(trackerCtx) }()

	fmt.Printf("Focus session started: %d minutes. Ctrl-C to stop early.\n", session.PlannedMinutes)
	if st := controller.Status(); st.State == usecase.FocusActive {
		fmt.Printf("%s  %s", formatClock(st.Remaining), progressBar(st.Progress, 30))
	}

	summary := fmt.Sprintf("Focus session completed: %d minutes.", session.PlannedMinutes)

loop:
	for {
		select {
		case tick := <-ticks:
			fmt.Printf("\r%s  %s", formatClock(tick.Remaining), progressBar(tick.Progress, 30))
		case <-done:
			break loop
		case <-ctx.Done():
			stopped, err := controller.Stop(context.Background())
			switch {
			case err == nil:
				summary = fmt.Sprintf("Focus session stopped: %d of %d minutes.",
					stopped.ActualMinutes, stopped.PlannedMinutes)
			case !errors.Is(err, domain.ErrNoActiveSession):
				a.logger.Warn("failed to stop focus session", zap.Error(err))
			}
			break loop
		}
	}
	fmt.Println()

	stopTracker()
	if err := <-trackerDone; err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("tracker exited", zap.Error(err))
	}

	fmt.Println(summary)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	fmt.Println("\n=== usagemon Status ===")

	d, alive := a.runningTracker()
	switch {
	case d == nil:
		fmt.Println("Tracker: NOT RUNNING")
		fmt.Println("\nRun 'usagemon run' to start tracking.")
	case !alive:
		fmt.Println("Tracker: NOT RUNNING (stale registration)")
	default:
		fmt.Printf("Tracker: RUNNING (pid %d, version %s)\n", d.PID, d.AppVersion)
		fmt.Printf("Started: %s\n", d.StartedAt.In(a.loc).Format(time.DateTime))
		fmt.Printf("Last heartbeat: %s ago\n", time.Since(d.LastHeartbeat).Round(time.Second))
	}

	mode := infra.DetectExecMode()
	fmt.Printf("\nExecution mode: %s\n", mode.Mode)
	fmt.Printf("Database: %s\n", a.store.Path())
	fmt.Printf("Log: %s\n", a.logPath)

	if stats, err := a.rollup().Stats(ctx); err == nil {
		fmt.Printf("\nStreak: %d day(s) (longest %d), points: %d\n",
			stats.CurrentStreak, stats.LongestStreak, stats.TotalPoints)
	}

	if policies, err := a.store.ListPolicies(ctx); err == nil {
		var tracked []string
		for _, p := range policies {
			if p.Tracked {
				tracked = append(tracked, p.Package)
			}
		}
		if len(tracked) == 0 {
			fmt.Println("Tracked apps: none (see 'usagemon policy set')")
		} else {
			fmt.Printf("Tracked apps: %s\n", strings.Join(tracked, ", "))
		}
	}

	fmt.Println("=======================")
	return nil
}
