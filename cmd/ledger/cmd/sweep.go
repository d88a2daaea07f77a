package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// sweepCmd runs a single materialization sweep.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Materialize every rule up to the horizon once, then exit",
	Long: `Run one sweep over all rules of all owners. Intended for an external
cron when the in-process scheduler is disabled. Exits non-zero when any
rule failed.

Example:
  ledger sweep --db ./ledger.db`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.scheduler.Sweep(cmd.Context())

	printf(cmd, "\n=== Sweep ===\n")
	printf(cmd, "Horizon:   %s\n", report.Horizon)
	printf(cmd, "Rules:     %d\n", report.Rules)
	printf(cmd, "Eligible:  %d\n", report.Eligible)
	printf(cmd, "Created:   %d\n", report.Created)
	printf(cmd, "Failures:  %d\n", len(report.Failures))
	for _, f := range report.Failures {
		printf(cmd, "  %s/%s: %s\n", f.OwnerID, f.RuleID, f.Error)
	}
	printf(cmd, "\n")

	if report.Error != "" {
		return fmt.Errorf("sweep: %s", report.Error)
	}
	if len(report.Failures) > 0 {
		return errors.New("sweep: some rules failed")
	}
	return nil
}
