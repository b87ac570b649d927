package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"db-recon/internal/differ"
	"db-recon/internal/schema"
)

var (
	sourceRef   string
	targetRef   string
	tableName   string
	sourceTable string
	targetTable string
	keyColumn   string
	maxRanges   int
	maxMissing  int64
)

// addEndpointFlags wires the shared source/target selection flags.
func addEndpointFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sourceRef, "source", "", "source endpoint name from config, or a URL-style DSN")
	cmd.Flags().StringVar(&targetRef, "target", "", "target endpoint name from config, or a URL-style DSN")
	cmd.Flags().StringVar(&tableName, "table", "", "table name (applies to both sides)")
	cmd.Flags().StringVar(&sourceTable, "source-table", "", "source table name (overrides --table)")
	cmd.Flags().StringVar(&targetTable, "target-table", "", "target table name (overrides --table)")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("target")
}

// openPair opens both sides; the returned closer shuts both down.
func openPair() (src, tgt *schema.Conn, closeAll func(), err error) {
	st := sourceTable
	if st == "" {
		st = tableName
	}
	tt := targetTable
	if tt == "" {
		tt = tableName
	}
	src, closeSrc, err := openConn(sourceRef, st, "source")
	if err != nil {
		return nil, nil, nil, err
	}
	tgt, closeTgt, err := openConn(targetRef, tt, "target")
	if err != nil {
		closeSrc()
		return nil, nil, nil, err
	}
	return src, tgt, func() { closeSrc(); closeTgt() }, nil
}

var compareSchemaCmd = &cobra.Command{
	Use:   "compare-schema",
	Short: "Diff the column schemas of a source and a target table",
	RunE: func(cmd *cobra.Command, args []string) error {
		src, tgt, closeAll, err := openPair()
		if err != nil {
			return err
		}
		defer closeAll()

		result, err := schema.Compare(cmd.Context(), src, tgt)
		if err != nil {
			return err
		}

		if jsonOutput {
			return emitJSON(result)
		}
		printSchemaResult(src, tgt, result)
		return nil
	},
}

var compareDataCmd = &cobra.Command{
	Use:   "compare-data",
	Short: "Diff the row populations of two tables by a key column",
	RunE: func(cmd *cobra.Command, args []string) error {
		if keyColumn == "" {
			return fmt.Errorf("--key is required (run compare-schema for a suggestion)")
		}
		src, tgt, closeAll, err := openPair()
		if err != nil {
			return err
		}
		defer closeAll()

		opts := differ.Options{MaxRanges: maxRanges, MaxMissingKeys: maxMissing}
		summary, err := differ.CompareData(cmd.Context(), src, tgt, keyColumn, opts)
		if err != nil {
			return err
		}

		if jsonOutput {
			return emitJSON(summary)
		}
		printDataSummary(src, tgt, summary)
		return nil
	},
}

func printSchemaResult(src, tgt *schema.Conn, r *schema.CompareResult) {
	fmt.Printf("Schema comparison: %s vs %s\n", src.Endpoint.Describe(), tgt.Endpoint.Describe())
	fmt.Printf("  common columns     : %s\n", joinOrDash(r.CommonColumns))
	fmt.Printf("  missing in target  : %s\n", joinOrDash(r.MissingInTarget))
	fmt.Printf("  extra in target    : %s\n", joinOrDash(r.ExtraInTarget))
	if len(r.TypeMismatches) > 0 {
		fmt.Println("  type mismatches:")
		for _, mm := range r.TypeMismatches {
			fmt.Printf("    %-20s %s (%s) vs %s (%s)\n",
				mm.Column, mm.SourceNative, mm.SourceNormalized, mm.TargetNative, mm.TargetNormalized)
		}
	}
	if r.SuggestedKey != "" {
		fmt.Printf("  suggested key      : %s\n", r.SuggestedKey)
	}
	if r.KeyWarning != "" {
		fmt.Printf("  key warning        : %s\n", r.KeyWarning)
	}
}

func printDataSummary(src, tgt *schema.Conn, s *differ.Summary) {
	fmt.Printf("Data comparison on %q: %s vs %s\n", s.KeyColumn, src.Endpoint.Describe(), tgt.Endpoint.Describe())
	fmt.Printf("  source: %d rows, keys %s\n", s.Source.RowCount, keySpan(s.Source))
	fmt.Printf("  target: %d rows, keys %s\n", s.Target.RowCount, keySpan(s.Target))
	fmt.Printf("  keys in both: %d, only in source: %d, only in target: %d\n",
		s.KeysInBothCount, s.KeysOnlyInSourceCount, s.KeysOnlyInTargetCount)

	printRanges("missing in target", s.MissingInTargetRanges)
	printRanges("missing in source", s.MissingInSourceRanges)

	if s.Truncated {
		fmt.Printf("  NOTE: %s\n", s.TruncationMessage)
	}
	if len(s.MissingInTargetRanges) > 0 {
		fmt.Printf("\nTo migrate everything missing from the target:\n  db-recon migrate --source %s --target %s --key %s --ranges %s\n",
			sourceRef, targetRef, s.KeyColumn, differ.FormatRanges(s.MissingInTargetRanges))
	}
}

func printRanges(label string, ranges []differ.KeyRange) {
	if len(ranges) == 0 {
		fmt.Printf("  %s: none\n", label)
		return
	}
	fmt.Printf("  %s (%d ranges):\n", label, len(ranges))
	for _, r := range ranges {
		fmt.Printf("    %10d .. %-10d (%d keys)\n", r.Start, r.End, r.Count)
	}
}

func keySpan(s differ.SideStats) string {
	if s.KeyMin == nil || s.KeyMax == nil {
		return "(empty)"
	}
	return fmt.Sprintf("%d..%d", *s.KeyMin, *s.KeyMax)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func init() {
	RootCmd.AddCommand(compareSchemaCmd)
	RootCmd.AddCommand(compareDataCmd)

	addEndpointFlags(compareSchemaCmd)

	addEndpointFlags(compareDataCmd)
	compareDataCmd.Flags().StringVar(&keyColumn, "key", "", "key column for the data diff")
	compareDataCmd.Flags().IntVar(&maxRanges, "max-ranges", 0, "ceiling on reported ranges per direction (0 = default)")
	compareDataCmd.Flags().Int64Var(&maxMissing, "max-missing", 0, "ceiling on counted missing keys per direction (0 = default)")
}
