package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cordate/datastore/cmd/datastore/commands"
	"github.com/cordate/datastore/config"
	"github.com/cordate/datastore/logger"
)

var rootCmd = &cobra.Command{
	Use:   "datastore",
	Short: "Versioned clinical form data store",
	Long: `datastore - Versioned EAV store for clinical-research form data.

Form definitions (schemata) are published as immutable versions; collected
data (entities) is stored per attribute with full audit history.

Available commands:
  db     - Manage the database (init, stats)
  schema - Inspect and manage schema lineages
  export - Write report and codebook CSV files
  user   - Register audit actors

Examples:
  datastore db init                   # Create or migrate the database
  datastore schema ls                 # List currently published schemata
  datastore schema show visit@2020-01-01
  datastore export visit --dir ./out  # Export visit data plus codebook`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Initialize(cfg.Log.JSON); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.SchemaCmd)
	rootCmd.AddCommand(commands.ExportCmd)
	rootCmd.AddCommand(commands.UserCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
