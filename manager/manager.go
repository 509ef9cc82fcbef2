// Package manager provides the versioned CRUD façades over schema, attribute
// and entity lineages. All three share the same temporal kernel: Keys/Has/Get
// answer "what is visible as of a date", Lifecycles lists a lineage's version
// dates newest-first, and Purge removes either the most recent visible
// version or the whole lineage. Mutations open one storage session per call
// so metadata stamping and audit snapshots commit with the change.
package manager

import (
	"database/sql"
	"time"

	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/storage"
)

func dateOf(t *time.Time) string {
	return t.UTC().Format(storage.DateFormat)
}

func queryStrings(q storage.Querier, query string, args ...any) ([]string, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query keys")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan key")
		}
		out = append(out, v)
	}
	return out, errors.Wrap(rows.Err(), "scan keys")
}

func queryIDs(q storage.Querier, query string, args ...any) ([]int64, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query ids")
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan id")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "scan ids")
}

// queryStamps reads a column of persisted timestamps.
func queryStamps(q storage.Querier, query string, args ...any) ([]time.Time, error) {
	raw, err := queryStrings(q, query, args...)
	if err != nil {
		return nil, err
	}
	stamps := make([]time.Time, len(raw))
	for i, v := range raw {
		if stamps[i], err = storage.ParseTime(v); err != nil {
			return nil, err
		}
	}
	return stamps, nil
}

// queryID returns a single id, 0 when the query matches nothing.
func queryID(q storage.Querier, query string, args ...any) (int64, error) {
	var id int64
	err := q.QueryRow(query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "query id")
	}
	return id, nil
}
