// Package report compiles schema lineages into flat, entity-per-row SQL
// projections: a column plan that merges attribute versions across
// publications, a subquery builder that pivots the per-type value tables,
// and a codebook describing the resulting columns.
package report

import (
	"sort"
	"strconv"

	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/schema"
	"github.com/cordate/datastore/storage"
)

// Split selects the column-key granularity of a plan.
type Split int

const (
	// ByName collapses every version of a field into one column.
	ByName Split = iota
	// ByChecksum starts a new column only when the field's meaning changed.
	ByChecksum
	// ByID gives every physical attribute row its own column.
	ByID
)

// Column is one projection column: the attribute versions merged into it,
// oldest publication first.
type Column struct {
	// Name is the dotted attribute path ("contact.phone").
	Name string
	// Key is the unique projection alias for the chosen split.
	Key  string
	Type schema.Type
	// Attributes lists the merged versions, oldest publication first.
	Attributes []*schema.Attribute
	// Choice is set for expanded per-choice boolean columns.
	Choice *schema.Choice
	// Publications lists the publish dates of the versions carrying the
	// field, oldest first.
	Publications []string

	rank []int
}

// ColumnPlan is the ordered column set for one schema lineage.
type ColumnPlan struct {
	Schema  string
	Columns []*Column

	byKey map[string]*Column
}

// Get looks a column up by its key.
func (p *ColumnPlan) Get(key string) *Column {
	return p.byKey[key]
}

// GetColumnPlan resolves the column plan for a schema lineage: it walks every
// published version oldest-first, recursing into object sub-schemata with
// dotted path prefixes, and merges attribute versions into columns at the
// granularity of the split. Columns are ordered by the latest version's
// attribute order; within a lineage, versions accumulate oldest-to-newest.
// When expand is set, choice-typed attributes produce one column per choice
// code instead of one per attribute.
func GetColumnPlan(q storage.Querier, schemaName string, split Split, expand bool) (*ColumnPlan, error) {
	ids, dates, err := publishedVersions(q, schemaName)
	if err != nil {
		return nil, err
	}

	b := &planBuilder{
		split:  split,
		expand: expand,
		byKey:  make(map[string]*Column),
	}
	for i, id := range ids {
		sc, err := storage.LoadSchema(q, id)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve column plan for %q", schemaName)
		}
		b.walk(sc, "", nil, dates[i])
	}

	// latest order first, then publication ascending (insertion order)
	sort.SliceStable(b.columns, func(i, j int) bool {
		return lessRank(b.columns[i].rank, b.columns[j].rank)
	})

	return &ColumnPlan{Schema: schemaName, Columns: b.columns, byKey: b.byKey}, nil
}

type planBuilder struct {
	split   Split
	expand  bool
	columns []*Column
	byKey   map[string]*Column
}

func (b *planBuilder) walk(sc *schema.Schema, prefix string, orderPrefix []int, published string) {
	for _, a := range sc.Attributes {
		path := prefix + a.Name
		rank := appendRank(orderPrefix, a.Order)

		if a.Type == schema.Object && a.ObjectSchema != nil {
			b.walk(a.ObjectSchema, path+".", rank, published)
			continue
		}

		if b.expand && a.Type == schema.TypeChoice {
			for _, c := range a.Choices {
				col := b.column(b.keyFor(path, a)+"-"+c.Name, path, a, published)
				col.Choice = c
				col.rank = appendRank(rank, c.Order)
			}
			continue
		}

		col := b.column(b.keyFor(path, a), path, a, published)
		col.rank = rank
	}
}

// column merges the attribute version into the keyed column, creating it on
// first sight. Type and title follow the latest version.
func (b *planBuilder) column(key, path string, a *schema.Attribute, published string) *Column {
	col, ok := b.byKey[key]
	if !ok {
		col = &Column{Name: path, Key: key}
		b.byKey[key] = col
		b.columns = append(b.columns, col)
	}
	col.Type = a.Type
	col.Attributes = append(col.Attributes, a)
	col.Publications = append(col.Publications, published)
	return col
}

func (b *planBuilder) keyFor(path string, a *schema.Attribute) string {
	switch b.split {
	case ByChecksum:
		checksum := a.Checksum
		if len(checksum) > 8 {
			checksum = checksum[:8]
		}
		return path + "-" + checksum
	case ByID:
		return path + "-" + strconv.FormatInt(a.ID, 10)
	default:
		return path
	}
}

// attributeIDs returns the physical attribute ids merged into the column.
func (c *Column) attributeIDs() []int64 {
	ids := make([]int64, len(c.Attributes))
	for i, a := range c.Attributes {
		ids[i] = a.ID
	}
	return ids
}

// latest returns the most recent attribute version of the column.
func (c *Column) latest() *schema.Attribute {
	return c.Attributes[len(c.Attributes)-1]
}

func publishedVersions(q storage.Querier, name string) ([]int64, []string, error) {
	rows, err := q.Query(`
		SELECT id, publish_date FROM schema
		WHERE name = ? AND publish_date IS NOT NULL
		ORDER BY publish_date ASC, id ASC`, name)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "list published versions of %q", name)
	}
	defer rows.Close()

	var (
		ids   []int64
		dates []string
	)
	for rows.Next() {
		var (
			id   int64
			date string
		)
		if err := rows.Scan(&id, &date); err != nil {
			return nil, nil, errors.Wrap(err, "scan published version")
		}
		ids = append(ids, id)
		dates = append(dates, date)
	}
	return ids, dates, errors.Wrap(rows.Err(), "scan published versions")
}

func appendRank(prefix []int, order int) []int {
	rank := make([]int, 0, len(prefix)+1)
	rank = append(rank, prefix...)
	return append(rank, order)
}

func lessRank(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
