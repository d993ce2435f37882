package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
	"github.com/eliteGoblin/focusd/usage_mon/internal/infra"
	"github.com/eliteGoblin/focusd/usage_mon/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage per-app intervention settings",
}

var policySetCmd = &cobra.Command{
	Use:   "set PACKAGE",
	Short: "Create or update one app's settings",
	Long: `Creates or updates an app's settings. Unspecified flags keep their
current value for an existing app. Only apps with a policy are sampled.`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicySet,
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured apps",
	RunE:  runPolicyList,
}

var policyLoadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Load settings from a YAML policy file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyLoad,
}

var policyRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show intervention rules in priority order",
	Args:  cobra.NoArgs,
	RunE:  runPolicyRules,
}

var (
	policyTracked   bool
	policyLimit     int
	policyIntention bool
	policyName      string
	policyYAML      bool
)

func init() {
	policySetCmd.Flags().BoolVar(&policyTracked, "tracked", true, "Apply intervention rules to this app")
	policySetCmd.Flags().IntVar(&policyLimit, "limit", 0, "Daily time limit in minutes (0 = none)")
	policySetCmd.Flags().BoolVar(&policyIntention, "intention", false, "Ask for an intention before opening")
	policySetCmd.Flags().StringVar(&policyName, "name", "", "Display name")
	policyListCmd.Flags().BoolVar(&policyYAML, "yaml", false, "Print as a policy file")

	policyCmd.AddCommand(policySetCmd)
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyLoadCmd)
	policyCmd.AddCommand(policyRulesCmd)
}

func runPolicySet(cmd *cobra.Command, args []string) error {
	if policyLimit < 0 {
		return fmt.Errorf("--limit must be >= 0")
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	pkg := strings.TrimSpace(args[0])

	p := domain.AppPolicy{Package: pkg, Tracked: true}
	existing, err := a.store.GetPolicy(ctx, pkg)
	switch {
	case err == nil:
		p = *existing
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("tracked") {
		p.Tracked = policyTracked
	}
	if flags.Changed("limit") {
		p.TimeLimitMinutes = policyLimit
	}
	if flags.Changed("intention") {
		p.RequiresIntention = policyIntention
	}
	if flags.Changed("name") {
		p.Name = policyName
	}

	if err := a.store.PutPolicy(ctx, p); err != nil {
		return err
	}
	printPolicy(p)
	return nil
}

func runPolicyList(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	policies, err := a.store.ListPolicies(context.Background())
	if err != nil {
		return err
	}

	if policyYAML {
		data, err := policy.Marshal(policies)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}

	fmt.Println("\n=== Configured Apps ===")
	if len(policies) == 0 {
		fmt.Println("None. Add one with 'usagemon policy set PACKAGE'.")
	}
	for _, p := range policies {
		printPolicy(p)
	}
	fmt.Println("=======================")
	return nil
}

func runPolicyLoad(cmd *cobra.Command, args []string) error {
	policies, err := policy.LoadFile(infra.ExpandHome(args[0]))
	if err != nil {
		return err
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := policy.Seed(context.Background(), a.store, policies); err != nil {
		return err
	}
	fmt.Printf("Loaded %d policies from %s\n", len(policies), args[0])
	return nil
}

func runPolicyRules(cmd *cobra.Command, args []string) error {
	table, err := decisionTable()
	if err != nil {
		return err
	}
	fmt.Print(formatRules(table.Rules()))
	return nil
}

// formatRules lists rules highest priority first; the first match wins.
func formatRules(rules []policy.Rule) string {
	var b strings.Builder
	for i, r := range rules {
		fmt.Fprintf(&b, "%d. %-18s -> %s\n", i+1, r.ID, r.Outcome)
	}
	return b.String()
}

func printPolicy(p domain.AppPolicy) {
	name := p.Name
	if name == "" {
		name = p.Package
	}
	fmt.Printf("\n[%s] %s\n", p.Package, name)
	fmt.Printf("  Tracked: %t\n", p.Tracked)
	if p.TimeLimitMinutes > 0 {
		fmt.Printf("  Daily limit: %d minutes\n", p.TimeLimitMinutes)
	} else {
		fmt.Println("  Daily limit: none")
	}
	fmt.Printf("  Requires intention: %t\n", p.RequiresIntention)
}
