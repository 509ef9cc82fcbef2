package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cordate/datastore/config"
	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/export"
	"github.com/cordate/datastore/report"
)

// ExportCmd represents the export command
var ExportCmd = &cobra.Command{
	Use:   "export NAME...",
	Short: "Write report and codebook CSV files for schema lineages",
	Long: `export — Write report and codebook CSV files for schema lineages

Each named schema lineage produces two files in the output directory:
NAME.csv with one row per entity, and NAME-codebook.csv describing the
columns. Private fields are redacted unless --private is given.

Examples:
  datastore export visit                    # ./visit.csv plus codebook
  datastore export visit intake --dir out   # Several lineages at once
  datastore export visit --labels           # Choice titles, not codes
  datastore export visit --expand           # One column per choice code
  datastore export visit --split checksum   # New column when meaning changed`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

var (
	exportDirFlag     string
	exportExpandFlag  bool
	exportLabelsFlag  bool
	exportPrivateFlag bool
	exportContextFlag string
	exportSplitFlag   string
)

func init() {
	ExportCmd.Flags().StringVar(&exportDirFlag, "dir", "", "Output directory (default from configuration)")
	ExportCmd.Flags().BoolVar(&exportExpandFlag, "expand", false, "One boolean column per choice code")
	ExportCmd.Flags().BoolVar(&exportLabelsFlag, "labels", false, "Write choice titles instead of codes")
	ExportCmd.Flags().BoolVar(&exportPrivateFlag, "private", false, "Include private field values")
	ExportCmd.Flags().StringVar(&exportContextFlag, "context", "", "Only entities linked to this context")
	ExportCmd.Flags().StringVar(&exportSplitFlag, "split", "name", "Column split strategy: name, checksum or id")
}

func runExport(cmd *cobra.Command, args []string) error {
	conn, cfg, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	split, err := parseSplit(exportSplitFlag)
	if err != nil {
		return err
	}

	dir := exportDirFlag
	if dir == "" {
		dir = cfg.Export.Dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create export directory %s", dir)
	}

	delimiter := config.DelimiterRune(cfg)
	for _, name := range args {
		rep, err := report.Build(conn, name, report.Options{
			Split:           split,
			Expand:          exportExpandFlag,
			UseChoiceLabels: exportLabelsFlag,
			DeIdentify:      !exportPrivateFlag,
			Context:         exportContextFlag,
		})
		if err != nil {
			return errors.Wrapf(err, "compile report for %q", name)
		}
		if len(rep.Plan.Columns) == 0 {
			return errors.Newf("schema %q has no published versions", name)
		}

		reportPath := filepath.Join(dir, name+".csv")
		if err := writeFile(reportPath, func(f *os.File) error {
			return export.WriteReport(f, conn, rep, delimiter)
		}); err != nil {
			return err
		}

		codebookPath := filepath.Join(dir, name+"-codebook.csv")
		if err := writeFile(codebookPath, func(f *os.File) error {
			return export.WriteCodebook(f, rep.Plan, delimiter)
		}); err != nil {
			return err
		}

		fmt.Printf("%s\n%s\n", reportPath, codebookPath)
	}
	return nil
}

func parseSplit(name string) (report.Split, error) {
	switch name {
	case "name":
		return report.ByName, nil
	case "checksum":
		return report.ByChecksum, nil
	case "id":
		return report.ByID, nil
	default:
		return 0, errors.Newf("unknown split %q, expected name, checksum or id", name)
	}
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
