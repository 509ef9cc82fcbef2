// Package export writes compiled reports and their codebooks as CSV, the
// call contract behind the administrative export command.
package export

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/report"
)

// WriteReport runs the compiled report and streams it as CSV: a header row
// of column keys, then one record per entity. A zero delimiter means comma.
func WriteReport(w io.Writer, db *sql.DB, rep *report.Report, delimiter rune) error {
	rows, err := db.Query(rep.SQL, rep.Args...)
	if err != nil {
		return errors.Wrapf(err, "run report for %q", rep.Plan.Schema)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return errors.Wrap(err, "read report columns")
	}

	cw := csv.NewWriter(w)
	if delimiter != 0 {
		cw.Comma = delimiter
	}
	if err := cw.Write(columns); err != nil {
		return errors.Wrap(err, "write report header")
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	record := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return errors.Wrap(err, "scan report row")
		}
		for i, v := range values {
			record[i] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "write report row")
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "scan report rows")
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "flush report")
}

// WriteCodebook writes the data dictionary for a column plan: one record per
// report column with its latest metadata and full choice set.
func WriteCodebook(w io.Writer, plan *report.ColumnPlan, delimiter rune) error {
	cw := csv.NewWriter(w)
	if delimiter != 0 {
		cw.Comma = delimiter
	}

	header := []string{
		"field", "table", "type", "title",
		"choices", "required", "collection", "publications",
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "write codebook header")
	}

	for _, row := range report.Codebook(plan) {
		record := []string{
			row.Field,
			row.Table,
			row.Type,
			row.Title,
			strings.Join(row.Choices, ";"),
			formatBool(row.Required),
			formatBool(row.Collection),
			strings.Join(row.Publications, ";"),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write codebook row for %q", row.Field)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "flush codebook")
}

func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return formatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
