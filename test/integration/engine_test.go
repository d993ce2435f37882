//go:build integration

package integration

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
	"github.com/eliteGoblin/focusd/usage_mon/internal/infra"
	"github.com/eliteGoblin/focusd/usage_mon/internal/policy"
	"github.com/eliteGoblin/focusd/usage_mon/internal/usecase"
	"github.com/eliteGoblin/focusd/usage_mon/test/fixtures"
)

var _ = Describe("Usage engine over the encrypted store", func() {
	var (
		ctx    context.Context
		tmpDir string
		store  *infra.Store
		clock  *fixedClock
		logger *zap.Logger
		day    time.Time
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tmpDir, err = os.MkdirTemp("", "usagemon-integration-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.OpenStore(tmpDir, nil)
		Expect(err).NotTo(HaveOccurred())

		day = time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
		clock = &fixedClock{now: day.Add(18 * time.Hour)}
		logger = zap.NewNop()
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("Encryption", func() {
		It("should reopen with the stored key", func() {
			Expect(store.PutPolicy(ctx, domain.AppPolicy{Package: "game", Tracked: true})).To(Succeed())
			Expect(store.Close()).To(Succeed())

			var err error
			store, err = infra.OpenStore(tmpDir, nil)
			Expect(err).NotTo(HaveOccurred())

			p, err := store.GetPolicy(ctx, "game")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Tracked).To(BeTrue())
		})

		It("should refuse a different key", func() {
			Expect(store.PutPolicy(ctx, domain.AppPolicy{Package: "game"})).To(Succeed())

			wrongKey, err := infra.GenerateKey()
			Expect(err).NotTo(HaveOccurred())

			_, err = infra.NewStore(tmpDir, wrongKey)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Bucketing journaled events", func() {
		var bucketer *usecase.UsageBucketer

		BeforeEach(func() {
			bucketer = usecase.NewUsageBucketer(store, store, time.UTC, nil, logger)

			timeline := fixtures.NewTimeline(day.Add(9*time.Hour + 50*time.Minute)).
				Use("game", 20*time.Minute). // 09:50-10:10, credited to 09:00
				Idle(5*time.Minute).
				Use("chat", 10*time.Minute).
				Open("game")
			Expect(store.AppendEvents(ctx, timeline.Events())).To(Succeed())
		})

		It("should write hourly rows credited to the start hour", func() {
			n, err := bucketer.RunForDay(ctx, day)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))

			rows, err := store.GetUsageBetween(ctx, day, day.AddDate(0, 0, 1))
			Expect(err).NotTo(HaveOccurred())

			byKey := make(map[string]domain.HourlyUsage)
			for _, r := range rows {
				byKey[r.Package+"@"+r.HourStart.UTC().Format("15")] = r
			}
			Expect(byKey["game@09"].Duration).To(Equal(20 * time.Minute))
			Expect(byKey["game@09"].OpenCount).To(Equal(1))
			Expect(byKey["chat@10"].Duration).To(Equal(10 * time.Minute))
			Expect(byKey["game@10"].OpenCount).To(Equal(1))
			Expect(byKey["game@10"].Duration).To(BeZero())
		})

		It("should overwrite rather than add on a rerun", func() {
			_, err := bucketer.RunForDay(ctx, day)
			Expect(err).NotTo(HaveOccurred())
			_, err = bucketer.RunForDay(ctx, day)
			Expect(err).NotTo(HaveOccurred())

			total, err := store.GetPackageUsageSince(ctx, "game", day)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(20 * time.Minute))
		})

		It("should trim rows and events past retention", func() {
			_, err := bucketer.RunForDay(ctx, day)
			Expect(err).NotTo(HaveOccurred())

			trimmed, err := store.TrimUsageBefore(ctx, day.AddDate(0, 0, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(trimmed).To(BeNumerically(">", 0))

			events, err := store.QueryEvents(ctx, day, day.AddDate(0, 0, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(BeEmpty())
		})
	})

	Describe("Deciding with stored usage", func() {
		var (
			flag    *usecase.ActiveFlag
			decider *usecase.Decider
		)

		BeforeEach(func() {
			Expect(policy.Seed(ctx, store, []domain.AppPolicy{
				{Package: "game", Tracked: true, TimeLimitMinutes: 30},
				{Package: "notes", Tracked: true, RequiresIntention: true},
			})).To(Succeed())
			Expect(store.UpsertHourlyUsage(ctx, []domain.HourlyUsage{
				{Package: "game", HourStart: day.Add(9 * time.Hour), Duration: 25 * time.Minute, OpenCount: 1},
				{Package: "game", HourStart: day.Add(13 * time.Hour), Duration: 20 * time.Minute, OpenCount: 2},
			})).To(Succeed())

			config := usecase.DefaultDeciderConfig()
			config.Location = time.UTC
			config.LookupTimeout = time.Second
			flag = usecase.NewActiveFlag()
			decider = usecase.NewDecider(config, store, store, flag,
				usecase.NewAllowlist(2*time.Second), policy.DefaultTable(), clock, nil, logger)
		})

		It("should pick outcomes in priority order", func() {
			Expect(decider.Decide(ctx, "game")).To(Equal(domain.InterventionLimitExceeded))
			Expect(decider.Decide(ctx, "notes")).To(Equal(domain.InterventionRequireIntention))
			Expect(decider.Decide(ctx, "unknown")).To(Equal(domain.InterventionNone))
			Expect(decider.Decide(ctx, "usagemon")).To(Equal(domain.InterventionNone))
		})

		It("should let an approved app through only inside the window", func() {
			decider.Allow("notes", clock.now)
			clock.now = clock.now.Add(1999 * time.Millisecond)
			Expect(decider.Decide(ctx, "notes")).To(Equal(domain.InterventionNone))

			clock.now = clock.now.Add(time.Millisecond)
			Expect(decider.Decide(ctx, "notes")).To(Equal(domain.InterventionRequireIntention))
		})

		It("should block everything during a focus session", func() {
			controller := usecase.NewFocusController(store, flag, clock, nil, logger)
			_, err := controller.Start(ctx, 25)
			Expect(err).NotTo(HaveOccurred())

			Expect(decider.Decide(ctx, "notes")).To(Equal(domain.InterventionFocusSession))
			Expect(decider.Decide(ctx, "unknown")).To(Equal(domain.InterventionFocusSession))

			clock.now = clock.now.Add(10*time.Minute + 30*time.Second)
			session, err := controller.Stop(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(session.ActualMinutes).To(Equal(10))
			Expect(session.Completed).To(BeFalse())

			open, err := store.OpenSessions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(open).To(BeEmpty())
			Expect(decider.Decide(ctx, "unknown")).To(Equal(domain.InterventionNone))
		})
	})

	Describe("Daily rollup and backfill", func() {
		var (
			bucketer *usecase.UsageBucketer
			rollup   *usecase.DailyRollup
		)

		BeforeEach(func() {
			bucketer = usecase.NewUsageBucketer(store, store, time.UTC, nil, logger)
			rollup = usecase.NewDailyRollup(
				usecase.RollupConfig{GoalPoints: 100, Location: time.UTC},
				store, store, clock, nil, logger)

			// Three days before the clock: light, heavy, light.
			timeline := fixtures.NewTimeline(day.AddDate(0, 0, -3).Add(10 * time.Hour)).
				Use("game", 30*time.Minute).
				Idle(24 * time.Hour).
				Use("game", 150*time.Minute).
				Idle(24 * time.Hour).
				Use("game", 45*time.Minute)
			Expect(store.AppendEvents(ctx, timeline.Events())).To(Succeed())
		})

		It("should backfill once and roll up each day", func() {
			config := daemon.DefaultSchedulerConfig()
			config.BackfillDays = 3
			config.Location = time.UTC
			scheduler := daemon.NewScheduler(config, bucketer, rollup, store, store, clock, nil, logger)

			Expect(scheduler.Backfill(ctx)).To(Succeed())
			flag, err := store.GetMeta(ctx, daemon.MetaBackfilled)
			Expect(err).NotTo(HaveOccurred())
			Expect(flag).NotTo(BeEmpty())

			var results []usecase.RollupResult
			for i := 3; i >= 1; i-- {
				r, err := rollup.RunForDay(ctx, day.AddDate(0, 0, -i))
				Expect(err).NotTo(HaveOccurred())
				results = append(results, r)
			}
			Expect(results[0].GoalMet).To(BeTrue())
			Expect(results[1].GoalMet).To(BeFalse())
			Expect(results[1].TotalMinutes).To(Equal(150))
			Expect(results[2].GoalMet).To(BeTrue())

			stats, err := store.GetUserStats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.CurrentStreak).To(Equal(1))
			Expect(stats.LongestStreak).To(Equal(1))
			Expect(stats.TotalPoints).To(Equal(200))

			goals, err := store.GetDailyGoalsSince(ctx, day.AddDate(0, 0, -7))
			Expect(err).NotTo(HaveOccurred())
			Expect(goals).To(HaveLen(3))

			again, err := rollup.RunForDay(ctx, day.AddDate(0, 0, -1))
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Skipped).To(BeTrue())
		})

		It("should report usage per app for a day", func() {
			_, err := bucketer.RunForDay(ctx, day.AddDate(0, 0, -2))
			Expect(err).NotTo(HaveOccurred())
			Expect(store.PutPolicy(ctx, domain.AppPolicy{Package: "game", Name: "Game"})).To(Succeed())

			reporter := usecase.NewUsageReporter(store, store, time.UTC, logger)
			apps, err := reporter.Report(ctx, day.AddDate(0, 0, -2))
			Expect(err).NotTo(HaveOccurred())
			Expect(apps).To(HaveLen(1))
			Expect(apps[0].AppName).To(Equal("Game"))
			Expect(apps[0].Total).To(Equal(150 * time.Minute))
		})
	})
})
