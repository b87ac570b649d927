package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"db-recon/internal/differ"
	"db-recon/internal/runlog"
)

var logsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs [run-id]",
	Short: "List or inspect persisted migration runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRunlog()
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			run, lines, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return emitJSON(struct {
					*runlog.Run
					Lines []runlog.Line `json:"batch_logs"`
				}{run, lines})
			}
			printRun(run)
			for _, l := range lines {
				fmt.Printf("  %s  %s\n", l.At.Format("15:04:05"), l.Text)
			}
			return nil
		}

		runs, err := store.List(logsLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return emitJSON(runs)
		}
		if len(runs) == 0 {
			fmt.Println("No migration runs recorded yet.")
			return nil
		}
		for _, run := range runs {
			printRun(run)
		}
		return nil
	},
}

func printRun(run *runlog.Run) {
	fmt.Printf("%s  %-10s  %s -> %s  key=%s ranges=%s\n",
		run.CreatedAt.Format("2006-01-02 15:04:05"), run.Status,
		run.Source.Describe(), run.Target.Describe(),
		run.KeyColumn, differ.FormatRanges(run.Ranges))
	fmt.Printf("  id=%s planned=%d inserted=%d skipped=%d errors=%d\n",
		run.ID, run.PlannedCount, run.InsertedCount, run.SkippedCount, run.ErrorsCount)
}

func init() {
	RootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "number of runs to list")
}
