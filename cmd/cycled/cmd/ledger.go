package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ipgold/cycleledger/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Query ledger balances and transactions",
	Long: `Query and check the ledger database.

Subcommands:
  balances     - List balances, optionally for one owner
  transactions - List transactions, most recent first
  reconcile    - Check balances against the transaction log

Examples:
  cycled ledger balances --owner user-42
  cycled ledger transactions --owner user-42 --limit 20
  cycled ledger reconcile --owner user-42`,
}

var ledgerBalancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "List ledger balances",
	Args:  cobra.NoArgs,
	RunE:  runLedgerBalances,
}

var ledgerTransactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "List transactions, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runLedgerTransactions,
}

var ledgerReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check balances against the transaction log",
	Args:  cobra.NoArgs,
	RunE:  runLedgerReconcile,
}

var (
	ledgerDBPath string
	ledgerOwner  string
	ledgerLimit  int
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerBalancesCmd)
	ledgerCmd.AddCommand(ledgerTransactionsCmd)
	ledgerCmd.AddCommand(ledgerReconcileCmd)

	ledgerCmd.PersistentFlags().StringVarP(&ledgerDBPath, "db", "d", "./cycleledger.sqlite", "path to the ledger SQLite DB")
	ledgerCmd.PersistentFlags().StringVarP(&ledgerOwner, "owner", "u", "", "owner id filter")
	ledgerTransactionsCmd.Flags().IntVarP(&ledgerLimit, "limit", "l", 100, "maximum rows to list")
}

func runLedgerBalances(cmd *cobra.Command, args []string) error {
	store, err := ledger.Open(ledgerDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	balances, err := store.Balances(ledgerOwner)
	if err != nil {
		return fmt.Errorf("list balances: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OWNER\tCURRENCY\tAMOUNT")
	for _, b := range balances {
		fmt.Fprintf(w, "%s\t%s\t%.2f\n", b.OwnerID, b.Currency, b.Amount)
	}
	return w.Flush()
}

func runLedgerTransactions(cmd *cobra.Command, args []string) error {
	store, err := ledger.Open(ledgerDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	txs, err := store.ListTransactions(ledgerOwner, ledgerLimit)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tKIND\tCURRENCY\tAMOUNT\tSTATUS\tCREATED\tCOMMENT")
	for _, t := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%+.2f\t%s\t%s\t%s\n",
			t.ID, t.OwnerID, t.Kind, t.Currency, t.Amount, t.Status,
			t.CreatedAt.Format("2006-01-02 15:04:05"), t.Comment)
	}
	return w.Flush()
}

func runLedgerReconcile(cmd *cobra.Command, args []string) error {
	store, err := ledger.Open(ledgerDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	owners := []string{ledgerOwner}
	if ledgerOwner == "" {
		owners, err = store.Owners()
		if err != nil {
			return fmt.Errorf("list owners: %w", err)
		}
	}

	clean := true
	for _, owner := range owners {
		drifts, err := store.Reconcile(owner)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", owner, err)
		}
		for _, d := range drifts {
			clean = false
			fmt.Printf("DRIFT %s/%s: balance %.2f, expected %.2f (diff %+.2f)\n",
				d.OwnerID, d.Currency, d.Balance, d.Expected, d.Diff())
		}
	}

	if clean {
		fmt.Printf("✓ %d owner(s) consistent\n", len(owners))
	}
	return nil
}
