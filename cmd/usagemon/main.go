// Package main is the CLI entry point for usagemon.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "usagemon",
	Short: "App usage monitor - tracks screen time and nudges you back to focus",
	Long: `usagemon tracks how long you spend in the applications you configure,
aggregates that into hourly usage, and decides in real time whether to
interrupt you when one of them comes to the foreground.

It also runs focus sessions (every tracked app is blocked until the countdown
ends) and a daily screen-time goal with streaks and points.

Configuration comes from USAGEMON_* environment variables or a .env file.`,
	Version:      Version,
	SilenceUsage:  true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var jsonOutput bool

func init() {
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(focusCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(bucketCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(rollupCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(versionCmd)
}

// createLogger writes JSON logs to logPath, falling back to stderr.
func createLogger(logPath string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{logPath}
	config.ErrorOutputPaths = []string{logPath}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err == nil {
		if logger, err := config.Build(); err == nil {
			return logger
		}
	}

	// Fallback to stderr if file logging fails
	logger, _ := zap.NewProduction()
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("usagemon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
