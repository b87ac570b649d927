package cmd

import (
	"fmt"
	"strings"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"db-recon/internal/differ"
	"db-recon/internal/migrate"
	"db-recon/internal/runlog"
)

var (
	rangesArg  string
	executeRun bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Insert rows missing from the target for the selected key ranges",
	Long: `migrate previews (default) or executes an INSERT_MISSING_ONLY run over
the selected key ranges. The preview performs no writes; pass --execute
only after reviewing a dry run with the same source, target, key column
and ranges. Execute runs skip rows that already exist in the target, so
re-running after a partial failure is safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keyColumn == "" {
			return fmt.Errorf("--key is required")
		}
		ranges, err := differ.ParseRanges(rangesArg)
		if err != nil {
			return err
		}

		src, tgt, closeAll, err := openPair()
		if err != nil {
			return err
		}
		defer closeAll()

		req := &migrate.Request{
			Source:    src,
			Target:    tgt,
			KeyColumn: keyColumn,
			Mode:      migrate.ModeInsertMissingOnly,
			Ranges:    ranges,
			DryRun:    !executeRun,
		}

		if req.DryRun {
			result, err := migrate.Plan(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput {
				return emitJSON(result)
			}
			printPlan(result)
			return nil
		}

		store, err := openRunlog()
		if err != nil {
			return err
		}
		defer store.Close()

		var bar *uiprogress.Bar
		ex := &migrate.Executor{Store: store, Logger: logger}
		if !jsonOutput {
			uiprogress.Start()
			bar = uiprogress.AddBar(totalSpan(ranges)).AppendCompleted().PrependElapsed()
			bar.PrependFunc(func(b *uiprogress.Bar) string { return "Migrating: " })
			ex.OnBatch = func(rows int) {
				bar.Set(bar.Current() + rows)
			}
		}

		result, err := migrate.Execute(cmd.Context(), req, ex)
		if !jsonOutput {
			uiprogress.Stop()
		}
		if err != nil {
			if result != nil && result.MigrationLogID != "" {
				fmt.Printf("Run %s did not finish; inspect it with: db-recon logs %s\n",
					result.MigrationLogID, result.MigrationLogID)
			}
			return err
		}

		if jsonOutput {
			return emitJSON(result)
		}
		printExecuteResult(result)
		return nil
	},
}

func printPlan(r *migrate.Result) {
	fmt.Println("Dry run (no writes performed):")
	fmt.Printf("  planned inserts : %d\n", r.PlannedInsertsCount)
	fmt.Printf("  columns         : %s\n", strings.Join(r.ColumnsToInsert, ", "))
	if len(r.PotentialIssues) > 0 {
		fmt.Println("  potential issues:")
		for _, issue := range r.PotentialIssues {
			fmt.Printf("    ! %s\n", issue)
		}
	} else {
		fmt.Println("  potential issues: none")
	}
	fmt.Println("\nRe-run with --execute to apply.")
}

func printExecuteResult(r *migrate.Result) {
	fmt.Println("\nMigration run finished:")
	fmt.Printf("  inserted          : %d\n", r.InsertedCount)
	fmt.Printf("  skipped conflicts : %d\n", r.SkippedConflictsCount)
	fmt.Printf("  row errors        : %d\n", r.ErrorsCount)
	fmt.Printf("  log id            : %s\n", r.MigrationLogID)
	for _, line := range r.BatchLogs {
		fmt.Printf("  | %s\n", line)
	}
}

// totalSpan sizes the progress bar by source keys covered, at worst an
// overestimate when ranges span gaps.
func totalSpan(ranges []differ.KeyRange) int {
	total := 0
	for _, r := range ranges {
		total += int(r.End-r.Start) + 1
	}
	if total <= 0 {
		total = 1
	}
	return total
}

func openRunlog() (*runlog.Store, error) {
	path := viper.GetString("runlog.path")
	if path == "" {
		var err error
		path, err = runlog.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve run log path: %w", err)
		}
	}
	return runlog.Open(path)
}

func init() {
	RootCmd.AddCommand(migrateCmd)

	addEndpointFlags(migrateCmd)
	migrateCmd.Flags().StringVar(&keyColumn, "key", "", "key column the ranges refer to")
	migrateCmd.Flags().StringVar(&rangesArg, "ranges", "", "selected key ranges, e.g. 6-7,12,40-55")
	migrateCmd.Flags().BoolVar(&executeRun, "execute", false, "perform the inserts (default is a dry run)")
	migrateCmd.MarkFlagRequired("ranges")
}
