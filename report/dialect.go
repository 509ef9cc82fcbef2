package report

// Dialect abstracts the SQL capabilities that differ between engines.
type Dialect interface {
	// CastDate wraps a value expression so it projects as a date.
	CastDate(expr string) string
	// CastDateTime wraps a value expression so it projects as a timestamp.
	CastDateTime(expr string) string
	// AggregateValues collapses a collection's rows into one delimited value.
	AggregateValues(expr, delimiter string) string
	// ProjectionName quotes a projection alias.
	ProjectionName(name string) string
}

// SQLiteDialect emits SQLite SQL. SQLite has no native date casts, so the
// date()/datetime() functions stand in.
type SQLiteDialect struct{}

func (SQLiteDialect) CastDate(expr string) string     { return "date(" + expr + ")" }
func (SQLiteDialect) CastDateTime(expr string) string { return "datetime(" + expr + ")" }

func (SQLiteDialect) AggregateValues(expr, delimiter string) string {
	return "group_concat(" + expr + ", '" + delimiter + "')"
}

func (SQLiteDialect) ProjectionName(name string) string { return `"` + name + `"` }

// PostgresDialect emits PostgreSQL SQL.
type PostgresDialect struct{}

func (PostgresDialect) CastDate(expr string) string     { return "(" + expr + ")::date" }
func (PostgresDialect) CastDateTime(expr string) string { return "(" + expr + ")::timestamp" }

func (PostgresDialect) AggregateValues(expr, delimiter string) string {
	return "array_to_string(array_agg(" + expr + "), '" + delimiter + "')"
}

func (PostgresDialect) ProjectionName(name string) string { return `"` + name + `"` }
