package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile    string
	jsonOutput bool
	verbose    bool
	logger     *zap.Logger
)

var RootCmd = &cobra.Command{
	Use:   "db-recon",
	Short: "Cross-store schema and data reconciliation",
	Long: `db-recon compares a source and a target table living in potentially
different relational engines, summarizes the differences without moving
full row sets, and migrates only the rows missing from the target.

The flow is strictly sequential and operator-gated:

  compare-schema -> pick a key column -> compare-data -> select ranges
  -> migrate (dry run) -> migrate --execute

Migration is insert-only and idempotent: nothing in the target is ever
updated or deleted, and re-running a migration skips rows that already
landed.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			cfg := zap.NewProductionConfig()
			cfg.OutputPaths = []string{"stderr"}
			logger, err = cfg.Build()
		}
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./db-recon.yaml)")
	RootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of tables")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if ex, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(ex))
		}
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "db-recon"))
		}
		viper.SetConfigName("db-recon")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DB_RECON")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// emitJSON renders any result payload for the UI collaborator.
func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
