// Package cmd provides CLI commands for the ledger service.
package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/warp/finance-ledger/config"
	"github.com/warp/finance-ledger/logger"
)

var (
	envFile string
	dbPath  string
	debug   bool

	cfg *config.Config
	log zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Personal finance ledger with recurring charge materialization",
	Long: `ledger keeps account balances consistent with recorded transactions
and expands recurring obligations into dated upcoming charges.

It supports:
- An HTTP API over a SQLite ledger
- A background sweep keeping every rule materialized to a rolling horizon
- One-shot sweeps for external cron
- Bulk rule import and export as YAML or JSON

Example:
  ledger serve --db ./ledger.db
  ledger sweep
  ledger rules import rules.yaml --owner owner-1`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		if debug {
			cfg.LogLevel = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		log = logger.New(cfg.LogLevel)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path, overrides LEDGER_DB_PATH")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(ownersCmd)
}

// printf writes command output to the command's stdout.
func printf(cmd *cobra.Command, format string, a ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, a...)
}
