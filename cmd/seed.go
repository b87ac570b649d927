package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"db-recon/internal/endpoint"
	"db-recon/internal/seed"
)

var (
	seedRef   string
	seedTable string
	seedRows  int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill a table with synthetic rows (dev helper)",
	Long: `seed inserts random rows into one table so the compare and migrate
flow can be tried against disposable data. Not intended for anything
resembling production.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, closeConn, err := openConn(seedRef, seedTable, endpoint.SideSource)
		if err != nil {
			return err
		}
		defer closeConn()

		inserted, err := seed.Fill(cmd.Context(), conn, seedRows, logger)
		if err != nil {
			return err
		}
		fmt.Printf("Inserted %d rows into %s\n", inserted, conn.Endpoint.Describe())
		return nil
	},
}

func init() {
	RootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedRef, "endpoint", "", "endpoint name from config, or a URL-style DSN")
	seedCmd.Flags().StringVar(&seedTable, "table", "", "table to fill")
	seedCmd.Flags().IntVar(&seedRows, "rows", 100, "number of rows to insert")
	seedCmd.MarkFlagRequired("endpoint")
	seedCmd.MarkFlagRequired("table")
}
