package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/manager"
	"github.com/cordate/datastore/storage"
)

// SchemaCmd represents the schema lineage command
var SchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and manage schema lineages",
	Long: `schema — Inspect and manage schema lineages

Published schema versions are immutable history: they can be inspected,
copied into a new draft, or purged, never edited in place.

Examples:
  datastore schema ls                       # Currently published schemata
  datastore schema ls --on 2020-06-01       # Visible as of a date
  datastore schema show visit               # Latest published version
  datastore schema show visit@2020-01-01    # Version visible at a date
  datastore schema copy visit               # Draft copy of the latest version
  datastore schema rm visit                 # Purge the latest version
  datastore schema rm visit --ever          # Purge the whole lineage`,
}

var schemaLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List schema lineages",
	RunE:  runSchemaLs,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show NAME[@DATE]",
	Short: "Show one schema version",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaShow,
}

var schemaCopyCmd = &cobra.Command{
	Use:   "copy NAME[@DATE]",
	Short: "Deep-copy a schema version into a new unpublished draft",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaCopy,
}

var schemaRmCmd = &cobra.Command{
	Use:   "rm NAME[@DATE]",
	Short: "Purge a schema version (refused while entities exist)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaRm,
}

var (
	schemaOnFlag   string
	schemaEverFlag bool
)

func init() {
	SchemaCmd.AddCommand(schemaLsCmd)
	SchemaCmd.AddCommand(schemaShowCmd)
	SchemaCmd.AddCommand(schemaCopyCmd)
	SchemaCmd.AddCommand(schemaRmCmd)

	schemaLsCmd.Flags().StringVar(&schemaOnFlag, "on", "", "List versions visible as of DATE (YYYY-MM-DD)")
	schemaRmCmd.Flags().BoolVar(&schemaEverFlag, "ever", false, "Purge every version of the lineage")
	SchemaCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "User key blamed for mutations")
}

func runSchemaLs(cmd *cobra.Command, args []string) error {
	conn, cfg, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	var on *time.Time
	if schemaOnFlag != "" {
		parsed, err := time.ParseInLocation(storage.DateFormat, schemaOnFlag, time.UTC)
		if err != nil {
			return errors.Newf("invalid date %q, expected YYYY-MM-DD", schemaOnFlag)
		}
		on = &parsed
	}

	m := manager.NewSchemaManager(conn, resolveActor(cfg), nil)
	keys, err := m.Keys(on)
	if err != nil {
		return err
	}
	for _, key := range keys {
		stamps, err := m.Lifecycles(key)
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %d version(s), latest %s\n",
			key, len(stamps), stamps[0].Format(storage.DateFormat))
	}
	return nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	conn, cfg, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	name, on, err := parseNameAndDate(args[0])
	if err != nil {
		return err
	}

	sc, err := manager.NewSchemaManager(conn, resolveActor(cfg), nil).Get(name, on)
	if err != nil {
		return err
	}

	fmt.Printf("%s — %s (id %d)\n", sc.Name, sc.Title, sc.ID)
	if sc.Description != "" {
		fmt.Printf("%s\n", sc.Description)
	}
	fmt.Printf("state: %s", sc.State)
	if sc.PublishDate != nil {
		fmt.Printf(", published %s", sc.PublishDate.Format(storage.DateFormat))
	}
	if sc.RetractDate != nil {
		fmt.Printf(", retracted %s", sc.RetractDate.Format(storage.DateFormat))
	}
	fmt.Println()
	fmt.Println()

	for _, a := range sc.Attributes {
		kind := string(a.Type)
		if a.IsCollection {
			kind += " collection"
		}
		fmt.Printf("  %-20s %-18s %s\n", a.Name, kind, a.Title)
		for _, c := range a.Choices {
			fmt.Printf("    %s = %s\n", c.Name, c.Title)
		}
	}
	return nil
}

func runSchemaCopy(cmd *cobra.Command, args []string) error {
	conn, cfg, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	name, on, err := parseNameAndDate(args[0])
	if err != nil {
		return err
	}

	sc, err := manager.NewSchemaManager(conn, resolveActor(cfg), nil).Get(name, on)
	if err != nil {
		return err
	}

	draft := sc.Copy()
	s, err := storage.NewSession(conn, resolveActor(cfg), nil)
	if err != nil {
		return err
	}
	if err := s.InsertSchema(draft); err != nil {
		s.Rollback()
		return err
	}
	if err := s.Commit(); err != nil {
		return err
	}

	fmt.Printf("Draft %d copied from %s (id %d)\n", draft.ID, sc.Name, sc.ID)
	return nil
}

func runSchemaRm(cmd *cobra.Command, args []string) error {
	conn, cfg, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	name, on, err := parseNameAndDate(args[0])
	if err != nil {
		return err
	}

	m := manager.NewSchemaManager(conn, resolveActor(cfg), nil)

	// purging cascades through collected data, so refuse while any exists
	hasEntities, err := m.HasEntities(name)
	if err != nil {
		return err
	}
	if hasEntities {
		return errors.Newf("schema %q has collected entities; remove them first", name)
	}

	n, err := m.Purge(name, on, schemaEverFlag)
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d version(s) of %s\n", n, name)
	return nil
}
