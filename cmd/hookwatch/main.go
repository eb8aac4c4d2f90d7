package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hookwatch/hookwatch/cmd/hookwatch/commands"
	"github.com/hookwatch/hookwatch/logger"
)

var (
	configFile string
	jsonLogs   bool
)

var rootCmd = &cobra.Command{
	Use:   "hookwatch",
	Short: "hookwatch - recurring job scheduler for webhooks and GitHub Actions",
	Long: `hookwatch schedules recurring jobs that invoke webhook URLs or
dispatch GitHub Actions workflows, records every execution, and notifies
owners about failures and expiring jobs.

Available commands:
  serve    - Start the API server and scheduler
  migrate  - Apply pending database migrations

Examples:
  hookwatch serve                      # Run with defaults (SQLite, :8710)
  hookwatch serve --config hw.toml     # Run with a config file
  hookwatch migrate                    # Apply migrations and exit`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to TOML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON log lines instead of console output")

	rootCmd.AddCommand(commands.NewServeCmd(&configFile))
	rootCmd.AddCommand(commands.NewMigrateCmd(&configFile))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
