package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cycled",
	Short: "Cycle accrual and ledger engine for fixed-date investment programs",
	Long: `Cycled is the accrual and ledger engine behind the investment platform.

It provides tools for:
  - Serving the authoritative projection and ledger HTTP API
  - Projecting compounding and partial-reinvestment returns per cycle
  - Querying balances and the append-only transaction log
  - Inspecting the program-year cycle calendar and eligibility cutoffs
  - Reconciling stored balances against the transaction log`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
