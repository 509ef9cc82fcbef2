package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the datastore database",
	Long: `db — Manage the datastore database

Examples:
  datastore db init    # Create the database and apply migrations
  datastore db stats   # Show row counts per core table`,
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and apply migrations",
	RunE:  runDbInit,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbInitCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbInit(cmd *cobra.Command, args []string) error {
	conn, cfg, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Database ready: %s\n", cfg.Database.Path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	conn, cfg, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Database Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path: %s\n\n", cfg.Database.Path)

	tables := []string{
		"user", "schema", "attribute", "choice", "entity", "context",
		"value_string", "value_text", "value_integer", "value_decimal",
		"value_datetime", "value_choice", "value_blob",
	}
	for _, table := range tables {
		var count int
		if err := conn.QueryRow(`SELECT COUNT(*) FROM "` + table + `"`).Scan(&count); err != nil {
			return fmt.Errorf("failed to count %s rows: %w", table, err)
		}
		fmt.Printf("%-16s %d\n", table, count)
	}
	return nil
}
