package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/finance-ledger/accounts"
	"github.com/warp/finance-ledger/ledger"
)

var newOwnerID string

var ownersCmd = &cobra.Command{
	Use:   "owners",
	Short: "Manage ledger owners",
}

var ownersCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Open a ledger with a cash account at zero",
	Long: `Example:
  ledger owners create "Ada Lovelace" --id owner-1`,
	Args: cobra.ExactArgs(1),
	RunE: runOwnersCreate,
}

func init() {
	ownersCreateCmd.Flags().StringVar(&newOwnerID, "id", "", "owner ID (default is a generated UUID)")
	ownersCmd.AddCommand(ownersCreateCmd)
}

func runOwnersCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	owner, err := accounts.OpenLedger(cmd.Context(), a.store, ledger.OwnerID(newOwnerID), args[0], time.Now())
	if err != nil {
		return err
	}
	printf(cmd, "%s\n", owner.ID)
	return nil
}
