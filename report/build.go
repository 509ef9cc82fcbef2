package report

import (
	"strconv"
	"strings"

	"github.com/cordate/datastore/schema"
	"github.com/cordate/datastore/storage"
)

// Redacted is the literal projected in place of private columns when the
// caller requests de-identification.
const Redacted = "[PRIVATE]"

// Options steer the shape of the generated projection.
type Options struct {
	Split Split
	// Expand produces one boolean column per choice code.
	Expand bool
	// UseChoiceLabels substitutes choice display titles for stored codes.
	UseChoiceLabels bool
	// DeIdentify replaces private columns with the Redacted literal.
	DeIdentify bool
	// IDs restricts the report to specific schema version ids.
	IDs []int64
	// Context requires entities to be linked to this external discriminator.
	Context string
	// Delimiter joins collection values; ";" when empty.
	Delimiter string
	// Dialect defaults to SQLiteDialect.
	Dialect Dialect
}

// Report is a compiled projection: one row per qualifying entity, wrapped as
// a named subquery so callers can filter, join or paginate over it without
// re-deriving the pivot.
type Report struct {
	SQL  string
	Args []any
	Plan *ColumnPlan
}

// Build compiles the schema lineage into one SQL projection. An unknown or
// never-published schema name compiles to a valid query returning zero rows.
func Build(q storage.Querier, schemaName string, opts Options) (*Report, error) {
	d := opts.Dialect
	if d == nil {
		d = SQLiteDialect{}
	}
	delimiter := opts.Delimiter
	if delimiter == "" {
		delimiter = ";"
	}

	plan, err := GetColumnPlan(q, schemaName, opts.Split, opts.Expand)
	if err != nil {
		return nil, err
	}

	selects := []string{
		"e.id AS id",
		"e.name AS name",
		"COALESCE(st.name, '') AS state",
		"e.collect_date AS collect_date",
		"e.create_date AS create_date",
		"e.create_user_id AS create_user_id",
		"e.modify_date AS modify_date",
		"e.modify_user_id AS modify_user_id",
	}
	var (
		joins []string
		args  []any
	)
	for i, col := range plan.Columns {
		expr, join, exprArgs, err := columnExpr(i, col, d, delimiter, opts)
		if err != nil {
			return nil, err
		}
		selects = append(selects, expr+" AS "+d.ProjectionName(col.Key))
		if join != "" {
			joins = append(joins, join)
		}
		args = append(args, exprArgs...)
	}

	where := []string{
		"s.name = ?",
		"s.publish_date IS NOT NULL",
		"s.retract_date IS NULL",
	}
	args = append(args, schemaName)
	if len(opts.IDs) > 0 {
		where = append(where, "s.id IN ("+joinIDs(opts.IDs)+")")
	}
	if opts.Context != "" {
		where = append(where,
			"EXISTS (SELECT 1 FROM context c WHERE c.entity_id = e.id AND c.external = ?)")
		args = append(args, opts.Context)
	}

	inner := "SELECT " + strings.Join(selects, ",\n\t") +
		"\nFROM entity e" +
		"\nJOIN schema s ON s.id = e.schema_id" +
		"\nLEFT OUTER JOIN state st ON st.id = e.state_id"
	if len(joins) > 0 {
		inner += "\n" + strings.Join(joins, "\n")
	}
	inner += "\nWHERE " + strings.Join(where, " AND ")

	return &Report{
		SQL:  "SELECT * FROM (" + inner + ") AS " + d.ProjectionName(schemaName),
		Args: args,
		Plan: plan,
	}, nil
}

// columnExpr emits the projection expression for one plan column, plus any
// join clause and query arguments it needs. Expression placeholders live in
// the select list, so their arguments precede the WHERE arguments.
func columnExpr(i int, col *Column, d Dialect, delimiter string, opts Options) (string, string, []any, error) {
	a := col.latest()
	ids := joinIDs(col.attributeIDs())
	v := "v" + strconv.Itoa(i)
	owned := v + ".entity_id = e.id AND " + v + ".attribute_id IN (" + ids + ")"

	// redaction wins over every other shape
	if opts.DeIdentify && a.IsPrivate {
		return "'" + Redacted + "'", "", nil, nil
	}

	// expanded choice: one boolean per code
	if col.Choice != nil {
		expr := "EXISTS (SELECT 1 FROM value_choice " + v +
			" JOIN choice " + v + "c ON " + v + "c.id = " + v + ".value" +
			" WHERE " + owned + " AND " + v + "c.name = ?)"
		return expr, "", []any{col.Choice.Name}, nil
	}

	table, err := storage.ValueTableFor(a.Type)
	if err != nil {
		return "", "", nil, err
	}

	// attachments project their file name, never raw bytes
	if a.Type == schema.Blob {
		if a.IsCollection {
			expr := "(SELECT " + d.AggregateValues(v+".file_name", delimiter) +
				" FROM value_blob " + v + " WHERE " + owned + ")"
			return expr, "", nil, nil
		}
		expr := "(SELECT " + v + ".file_name FROM value_blob " + v +
			" WHERE " + owned + " ORDER BY " + v + ".id LIMIT 1)"
		return expr, "", nil, nil
	}

	if a.IsCollection {
		if a.Type == schema.TypeChoice {
			value := v + "c.name"
			if opts.UseChoiceLabels {
				value = v + "c.title"
			}
			expr := "(SELECT " + d.AggregateValues(value, delimiter) +
				" FROM value_choice " + v +
				" JOIN choice " + v + "c ON " + v + "c.id = " + v + ".value" +
				" WHERE " + owned + ")"
			return expr, "", nil, nil
		}
		expr := "(SELECT " + d.AggregateValues(v+".value", delimiter) +
			` FROM "` + table + `" ` + v + " WHERE " + owned + ")"
		return expr, "", nil, nil
	}

	// scalar: one left join per column
	join := `LEFT OUTER JOIN "` + table + `" ` + v + " ON " + owned
	switch a.Type {
	case schema.TypeChoice:
		join += "\nLEFT OUTER JOIN choice " + v + "c ON " + v + "c.id = " + v + ".value"
		if opts.UseChoiceLabels {
			return v + "c.title", join, nil, nil
		}
		return v + "c.name", join, nil, nil
	case schema.Date:
		return d.CastDate(v + ".value"), join, nil, nil
	case schema.Datetime:
		return d.CastDateTime(v + ".value"), join, nil, nil
	default:
		return v + ".value", join, nil, nil
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
