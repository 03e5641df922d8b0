package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipgold/cycleledger/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect the program-year cycle calendar",
	Long: `Inspect the cycle calendar and eligibility cutoffs.

Subcommands:
  list - Print every cycle with its eligibility cutoff
  next - Show the next cycle still open for deposits

Examples:
  cycled schedule list
  cycled schedule next
  cycled schedule next --file 2027.yaml`,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every cycle with its eligibility cutoff",
	Args:  cobra.NoArgs,
	RunE:  runScheduleList,
}

var scheduleNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next cycle still open for deposits",
	Args:  cobra.NoArgs,
	RunE:  runScheduleNext,
}

var scheduleFile string

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleNextCmd)

	scheduleCmd.PersistentFlags().StringVarP(&scheduleFile, "file", "f", "", "schedule YAML file (default: built-in calendar)")
}

func loadSchedule() (schedule.Schedule, error) {
	if scheduleFile == "" {
		return schedule.Year2026(), nil
	}
	return schedule.Load(scheduleFile)
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	s, err := loadSchedule()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CYCLE\tDATE\tCUTOFF")
	for _, e := range s.Entries() {
		cutoff := e.Date.Add(-schedule.CutoffLead)
		fmt.Fprintf(w, "%d\t%s\t%s\n",
			e.Number, e.Date.Format(schedule.DateLayout),
			cutoff.Format("02.01.2006 15:04"))
	}
	return w.Flush()
}

func runScheduleNext(cmd *cobra.Command, args []string) error {
	s, err := loadSchedule()
	if err != nil {
		return err
	}

	e, ok := s.NextEligible(time.Now().UTC())
	if !ok {
		fmt.Println("program year exhausted: no cycle is still open for deposits")
		return nil
	}

	fmt.Printf("next cycle: %d on %s (deposit before %s)\n",
		e.Number, e.Date.Format(schedule.DateLayout),
		e.Date.Add(-schedule.CutoffLead).Format("02.01.2006 15:04"))
	return nil
}
