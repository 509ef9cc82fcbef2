package storage

import (
	"strings"
	"sync"

	"github.com/cordate/datastore/errors"
)

// Auditor appends full-row snapshots of mutated rows to their <table>_audit
// twin. Revisions are an incrementing counter scoped to the row's primary
// key, so the history of one row reads oldest-to-newest by revision.
//
// Column lists are discovered once per table via PRAGMA table_info and
// cached; the audit twin mirrors the live table's columns plus revision.
type Auditor struct {
	mu      sync.Mutex
	columns map[string][]string
}

// NewAuditor creates an auditor with an empty column cache.
func NewAuditor() *Auditor {
	return &Auditor{columns: make(map[string][]string)}
}

// Snapshot copies the current state of the identified row into its audit
// twin with the next revision number. For deletions, call before removing
// the row so the last live values are preserved.
func (a *Auditor) Snapshot(q Querier, table string, id int64) error {
	cols, err := a.tableColumns(q, table)
	if err != nil {
		return err
	}

	quoted := make([]string, len(cols))
	prefixed := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = `"` + c + `"`
		prefixed[i] = `live."` + c + `"`
	}

	// Revision is scoped to the row id: COALESCE(MAX(revision),0)+1.
	stmt := `INSERT INTO "` + table + `_audit" (` + strings.Join(quoted, ", ") + `, revision)
		SELECT ` + strings.Join(prefixed, ", ") + `,
			COALESCE((SELECT MAX(revision) FROM "` + table + `_audit" WHERE id = live.id), 0) + 1
		FROM "` + table + `" AS live WHERE live.id = ?`

	result, err := q.Exec(stmt, id)
	if err != nil {
		return errors.Wrapf(err, "audit %s %d", table, id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "audit %s %d", table, id)
	}
	if n != 1 {
		return errors.Newf("audit %s %d: expected one live row, snapshot copied %d", table, id, n)
	}
	return nil
}

// tableColumns returns the live table's column names in declaration order.
func (a *Auditor) tableColumns(q Querier, table string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cols, ok := a.columns[table]; ok {
		return cols, nil
	}

	rows, err := q.Query(`SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, errors.Wrapf(err, "describe table %s", table)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrapf(err, "describe table %s", table)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "describe table %s", table)
	}
	if len(cols) == 0 {
		return nil, errors.Newf("table %s has no columns (does it exist?)", table)
	}

	a.columns[table] = cols
	return cols, nil
}
