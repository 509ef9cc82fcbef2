package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/schema"
)

// BlobValue carries an attachment's bytes and its original file name. Reports
// substitute the file name for the raw bytes.
type BlobValue struct {
	FileName string
	Data     []byte
}

// Item is one (attribute name, value) pair produced by Items.
type Item struct {
	Name  string
	Value any
}

// ValueTableFor maps an attribute type to its physical value table. The
// switch is exhaustive over the closed type set so adding a type is a
// compile-time exercise. Object attributes own no value rows; their nested
// fields are addressed by dotted path.
func ValueTableFor(t schema.Type) (string, error) {
	switch t {
	case schema.Boolean, schema.Integer:
		return "value_integer", nil
	case schema.Decimal:
		return "value_decimal", nil
	case schema.String:
		return "value_string", nil
	case schema.Text:
		return "value_text", nil
	case schema.Date, schema.Datetime:
		return "value_datetime", nil
	case schema.TypeChoice:
		return "value_choice", nil
	case schema.Blob:
		return "value_blob", nil
	case schema.Object:
		return "", errors.Newf("object attributes store no direct values; address nested fields by dotted path")
	default:
		return "", errors.Newf("unknown attribute type %q", t)
	}
}

// ResolveAttribute finds the attribute addressed by name within the schema,
// following dotted paths through object sub-schemata ("demographics.age").
func ResolveAttribute(sc *schema.Schema, name string) (*schema.Attribute, error) {
	head, rest, nested := strings.Cut(name, ".")
	a := sc.Attribute(head)
	if a == nil {
		return nil, errors.NewNotFoundf("schema %q has no attribute %q", sc.Name, head)
	}
	if nested {
		if a.Type != schema.Object || a.ObjectSchema == nil {
			return nil, errors.NewNotFoundf("attribute %q is not an object", head)
		}
		return ResolveAttribute(a.ObjectSchema, rest)
	}
	return a, nil
}

// GetValue reads the value stored for the named attribute: a single
// converted scalar (nil when absent), or a slice for collection attributes.
// Booleans come back as bool, dates as midnight timestamps, choices as their
// stored code, blobs as BlobValue.
func GetValue(q Querier, e *Entity, name string) (any, error) {
	a, err := ResolveAttribute(e.Schema, name)
	if err != nil {
		return nil, err
	}
	values, err := readValues(q, e.ID, a)
	if err != nil {
		return nil, err
	}
	if a.IsCollection {
		return values, nil
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

func readValues(q Querier, entityID int64, a *schema.Attribute) ([]any, error) {
	table, err := ValueTableFor(a.Type)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	switch a.Type {
	case schema.TypeChoice:
		rows, err = q.Query(`
			SELECT c.name FROM value_choice v
			JOIN choice c ON c.id = v.value
			WHERE v.entity_id = ? AND v.attribute_id = ?
			ORDER BY v.id`, entityID, a.ID)
	case schema.Blob:
		rows, err = q.Query(`
			SELECT value, COALESCE(file_name, '') FROM value_blob
			WHERE entity_id = ? AND attribute_id = ?
			ORDER BY id`, entityID, a.ID)
	default:
		rows, err = q.Query(
			`SELECT value FROM "`+table+`" WHERE entity_id = ? AND attribute_id = ? ORDER BY id`,
			entityID, a.ID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read values of attribute %q", a.Name)
	}
	defer rows.Close()

	var values []any
	for rows.Next() {
		value, err := scanValue(rows, a)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, errors.Wrap(rows.Err(), "scan values")
}

func scanValue(rows *sql.Rows, a *schema.Attribute) (any, error) {
	switch a.Type {
	case schema.Boolean:
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan boolean value")
		}
		return v != 0, nil
	case schema.Integer:
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan integer value")
		}
		return v, nil
	case schema.Decimal:
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan decimal value")
		}
		return v, nil
	case schema.String, schema.Text, schema.TypeChoice:
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan string value")
		}
		return v, nil
	case schema.Date:
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan date value")
		}
		t, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		// narrow stored datetimes back to a date
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	case schema.Datetime:
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan datetime value")
		}
		return parseTime(v)
	case schema.Blob:
		var b BlobValue
		if err := rows.Scan(&b.Data, &b.FileName); err != nil {
			return nil, errors.Wrap(err, "scan blob value")
		}
		return b, nil
	default:
		return nil, errors.Newf("unreadable attribute type %q", a.Type)
	}
}

// SetValue writes a value for the named attribute, enforcing the attribute's
// constraints first (ErrConstraint on violation; nil bypasses all checks and
// clears the value). Scalars replace in place; collections are fully
// replaced: all prior rows deleted, the new list reinserted, no diffing.
func (s *Session) SetValue(e *Entity, name string, value any) error {
	a, err := ResolveAttribute(e.Schema, name)
	if err != nil {
		return err
	}

	if value == nil {
		return s.deleteValues(e, a)
	}

	if a.IsCollection {
		items, ok := asSlice(value)
		if !ok {
			return errors.NewConstraintf("attribute %q is a collection, got %T", a.Name, value)
		}
		stored := make([]any, len(items))
		fileNames := make([]string, len(items))
		for i, item := range items {
			if stored[i], fileNames[i], err = s.validate(a, item); err != nil {
				return err
			}
		}
		if err := s.deleteValues(e, a); err != nil {
			return err
		}
		for i, v := range stored {
			if err := s.insertValue(e, a, v, fileNames[i]); err != nil {
				return err
			}
		}
		return nil
	}

	stored, fileName, err := s.validate(a, value)
	if err != nil {
		return err
	}

	table, err := ValueTableFor(a.Type)
	if err != nil {
		return err
	}
	var rowID int64
	err = s.tx.QueryRow(
		`SELECT id FROM "`+table+`" WHERE entity_id = ? AND attribute_id = ? ORDER BY id LIMIT 1`,
		e.ID, a.ID,
	).Scan(&rowID)
	switch {
	case err == sql.ErrNoRows:
		return s.insertValue(e, a, stored, fileName)
	case err != nil:
		return errors.Wrapf(err, "look up value of %q", a.Name)
	}

	// scalar replace-in-place: update the existing row, then snapshot
	if a.Type == schema.Blob {
		_, err = s.tx.Exec(
			"UPDATE value_blob SET value = ?, file_name = ? WHERE id = ?",
			stored, nullString(fileName), rowID)
	} else {
		_, err = s.tx.Exec(`UPDATE "`+table+`" SET value = ? WHERE id = ?`, stored, rowID)
	}
	if err != nil {
		return errors.Wrapf(err, "update value of %q", a.Name)
	}
	return s.audit(table, rowID)
}

// DeleteValue removes every value row for the named attribute. No-op when
// none exist.
func (s *Session) DeleteValue(e *Entity, name string) error {
	a, err := ResolveAttribute(e.Schema, name)
	if err != nil {
		return err
	}
	return s.deleteValues(e, a)
}

func (s *Session) deleteValues(e *Entity, a *schema.Attribute) error {
	table, err := ValueTableFor(a.Type)
	if err != nil {
		return err
	}
	rows, err := s.tx.Query(
		`SELECT id FROM "`+table+`" WHERE entity_id = ? AND attribute_id = ?`, e.ID, a.ID)
	if err != nil {
		return errors.Wrapf(err, "delete values of %q", a.Name)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return errors.Wrapf(err, "delete values of %q", a.Name)
	}
	for _, id := range ids {
		// final snapshot stamped with the deleting actor, then the delete
		if err := s.audit(table, id); err != nil {
			return err
		}
		if _, err := s.tx.Exec(`DELETE FROM "`+table+`" WHERE id = ?`, id); err != nil {
			return errors.Wrapf(err, "delete values of %q", a.Name)
		}
	}
	return nil
}

func (s *Session) insertValue(e *Entity, a *schema.Attribute, stored any, fileName string) error {
	table, err := ValueTableFor(a.Type)
	if err != nil {
		return err
	}
	now := s.timestamp()
	if a.Type == schema.Blob {
		_, err = s.tx.Exec(`
			INSERT INTO value_blob (entity_id, attribute_id, value, file_name,
				create_date, create_user_id, modify_date, modify_user_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, a.ID, stored, nullString(fileName), now, s.actorID, now, s.actorID)
	} else {
		_, err = s.tx.Exec(`
			INSERT INTO "`+table+`" (entity_id, attribute_id, value,
				create_date, create_user_id, modify_date, modify_user_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, a.ID, stored, now, s.actorID, now, s.actorID)
	}
	return errors.Wrapf(err, "insert value of %q", a.Name)
}

// validate converts the caller's value into its stored representation,
// enforcing min/max bounds, the validator pattern, and choice membership.
// Returns the stored value plus the blob file name when applicable.
func (s *Session) validate(a *schema.Attribute, value any) (any, string, error) {
	switch a.Type {
	case schema.Boolean:
		v, ok := value.(bool)
		if !ok {
			return nil, "", errors.NewConstraintf("attribute %q expects bool, got %T", a.Name, value)
		}
		// persisted as integer, converted back to bool on read
		if v {
			return int64(1), "", nil
		}
		return int64(0), "", nil

	case schema.Integer:
		v, ok := asInt64(value)
		if !ok {
			return nil, "", errors.NewConstraintf("attribute %q expects integer, got %T", a.Name, value)
		}
		if a.ValueMin != nil && v < int64(*a.ValueMin) {
			return nil, "", errors.NewConstraintf("attribute %q: %d below minimum %d", a.Name, v, *a.ValueMin)
		}
		if a.ValueMax != nil && v > int64(*a.ValueMax) {
			return nil, "", errors.NewConstraintf("attribute %q: %d above maximum %d", a.Name, v, *a.ValueMax)
		}
		return v, "", nil

	case schema.Decimal:
		v, ok := asFloat64(value)
		if !ok {
			return nil, "", errors.NewConstraintf("attribute %q expects decimal, got %T", a.Name, value)
		}
		if a.ValueMin != nil && v < float64(*a.ValueMin) {
			return nil, "", errors.NewConstraintf("attribute %q: %g below minimum %d", a.Name, v, *a.ValueMin)
		}
		if a.ValueMax != nil && v > float64(*a.ValueMax) {
			return nil, "", errors.NewConstraintf("attribute %q: %g above maximum %d", a.Name, v, *a.ValueMax)
		}
		return v, "", nil

	case schema.String, schema.Text:
		v, ok := value.(string)
		if !ok {
			return nil, "", errors.NewConstraintf("attribute %q expects string, got %T", a.Name, value)
		}
		// min/max bound the string length
		if a.ValueMin != nil && len(v) < *a.ValueMin {
			return nil, "", errors.NewConstraintf("attribute %q: length %d below minimum %d", a.Name, len(v), *a.ValueMin)
		}
		if a.ValueMax != nil && len(v) > *a.ValueMax {
			return nil, "", errors.NewConstraintf("attribute %q: length %d above maximum %d", a.Name, len(v), *a.ValueMax)
		}
		if a.Validator != "" {
			matched, err := regexp.MatchString(a.Validator, v)
			if err != nil {
				return nil, "", errors.Wrapf(err, "attribute %q has a malformed validator", a.Name)
			}
			if !matched {
				return nil, "", errors.NewConstraintf("attribute %q: %q does not match validator %q", a.Name, v, a.Validator)
			}
		}
		return v, "", nil

	case schema.Date:
		t, ok, err := asTime(value, DateFormat)
		if err != nil || !ok {
			return nil, "", errors.NewConstraintf("attribute %q expects a date, got %v", a.Name, value)
		}
		return t.Format(DateFormat), "", nil

	case schema.Datetime:
		t, ok, err := asTime(value, DateTimeFormat)
		if err != nil || !ok {
			return nil, "", errors.NewConstraintf("attribute %q expects a datetime, got %v", a.Name, value)
		}
		return t.Format(DateTimeFormat), "", nil

	case schema.TypeChoice:
		code, ok := value.(string)
		if !ok {
			return nil, "", errors.NewConstraintf("attribute %q expects a choice code, got %T", a.Name, value)
		}
		// bind the matched choice: the stored value is the choice row id
		c := a.Choice(code)
		if c == nil {
			return nil, "", errors.NewConstraintf("attribute %q has no choice %q", a.Name, code)
		}
		return c.ID, "", nil

	case schema.Blob:
		switch v := value.(type) {
		case BlobValue:
			return v.Data, v.FileName, nil
		case []byte:
			return v, "", nil
		default:
			return nil, "", errors.NewConstraintf("attribute %q expects blob data, got %T", a.Name, value)
		}

	default:
		return nil, "", errors.Newf("cannot store values for attribute type %q", a.Type)
	}
}

// Items produces the (name, value) pairs for every attribute on the entity's
// schema, in attribute order. Object attributes flatten into dotted paths at
// their position.
func Items(q Querier, e *Entity) ([]Item, error) {
	return itemsOf(q, e, e.Schema, "")
}

func itemsOf(q Querier, e *Entity, sc *schema.Schema, prefix string) ([]Item, error) {
	var items []Item
	for _, a := range sc.Attributes {
		name := prefix + a.Name
		if a.Type == schema.Object {
			nested, err := itemsOf(q, e, a.ObjectSchema, name+".")
			if err != nil {
				return nil, err
			}
			items = append(items, nested...)
			continue
		}
		values, err := readValues(q, e.ID, a)
		if err != nil {
			return nil, err
		}
		if a.IsCollection {
			items = append(items, Item{Name: name, Value: values})
		} else if len(values) == 0 {
			items = append(items, Item{Name: name, Value: nil})
		} else {
			items = append(items, Item{Name: name, Value: values[0]})
		}
	}
	return items, nil
}

func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	case []int64:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

func asFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func asTime(value any, format string) (time.Time, bool, error) {
	switch v := value.(type) {
	case time.Time:
		return v, true, nil
	case string:
		t, err := parseTime(v)
		if err != nil {
			return time.Time{}, false, err
		}
		return t, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("not a time: %T", value)
	}
}
