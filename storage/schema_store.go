package storage

import (
	"database/sql"

	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/schema"
)

// Query constants
const (
	schemaInsertQuery = `
		INSERT INTO schema (name, title, description, storage, state,
			publish_date, retract_date, is_inline, base_schema_id,
			create_date, create_user_id, modify_date, modify_user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	schemaSelectQuery = `
		SELECT id, name, title, description, storage, state,
			publish_date, retract_date, is_inline, base_schema_id,
			create_date, COALESCE(create_user_id, 0),
			modify_date, COALESCE(modify_user_id, 0)
		FROM schema`

	attributeInsertQuery = `
		INSERT INTO attribute (schema_id, name, title, description, type,
			checksum, is_collection, is_required, is_private,
			object_schema_id, value_min, value_max, collection_min,
			collection_max, validator, "order",
			create_date, create_user_id, modify_date, modify_user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	attributeSelectQuery = `
		SELECT id, schema_id, name, title, description, type, checksum,
			is_collection, is_required, is_private, object_schema_id,
			value_min, value_max, collection_min, collection_max,
			validator, "order", remove_date,
			create_date, COALESCE(create_user_id, 0),
			modify_date, COALESCE(modify_user_id, 0)
		FROM attribute`

	choiceInsertQuery = `
		INSERT INTO choice (attribute_id, name, title, "order",
			create_date, create_user_id, modify_date, modify_user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	choiceSelectQuery = `
		SELECT id, attribute_id, name, title, "order"
		FROM choice
		WHERE attribute_id = ?
		ORDER BY "order"`
)

// InsertSchema persists a new schema version with its attributes and choices,
// recursing into object sub-schemata. The write pipeline runs in fixed order
// for every attribute: checksum recompute, metadata stamping, then the row
// write. Fails with ErrAlreadyExists when the candidate already carries an
// identity and with ErrMultipleBases on malformed inheritance.
func (s *Session) InsertSchema(sc *schema.Schema) error {
	if sc.ID != 0 {
		return errors.Wrapf(errors.ErrAlreadyExists, "schema %q already has id %d", sc.Name, sc.ID)
	}
	if err := sc.Validate(); err != nil {
		return err
	}

	// Single inheritance: reuse an existing base with the same logical name
	// rather than re-inserting it on repeated publication.
	baseID := int64(0)
	if base := sc.Base(); base != nil {
		existing, err := s.findSchemaIDByName(base.Name)
		if err != nil {
			return err
		}
		if existing != 0 {
			base.ID = existing
		} else if err := s.InsertSchema(base); err != nil {
			return errors.Wrapf(err, "insert base schema %q", base.Name)
		}
		baseID = base.ID
	}

	state := schema.StateDraft
	if sc.PublishDate != nil {
		state = schema.StatePublished
	}
	sc.State = state
	if sc.Storage == "" {
		sc.Storage = schema.StorageEAV
	}

	now := s.timestamp()
	result, err := s.tx.Exec(schemaInsertQuery,
		sc.Name, sc.Title, nullString(sc.Description), string(sc.Storage), string(state),
		nullTime(sc.PublishDate, DateFormat), nullTime(sc.RetractDate, DateFormat),
		sc.IsInline, nullID(baseID),
		now, s.actorID, now, s.actorID,
	)
	if err != nil {
		return errors.Wrapf(err, "insert schema %q", sc.Name)
	}
	sc.ID, err = result.LastInsertId()
	if err != nil {
		return errors.Wrapf(err, "insert schema %q", sc.Name)
	}

	for _, a := range sc.Attributes {
		if err := s.InsertAttribute(sc, a); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Debugw("Schema inserted",
			"schema", sc.Name,
			"schema_id", sc.ID,
			"attributes", len(sc.Attributes),
		)
	}
	return nil
}

// InsertAttribute persists one attribute of the owning schema, inserting its
// object sub-schema and choices alongside. The checksum is recomputed from
// the owner's metadata immediately before the row write.
func (s *Session) InsertAttribute(owner *schema.Schema, a *schema.Attribute) error {
	// Object sub-schema first so the checksum can include its id
	objectSchemaID := int64(0)
	if a.ObjectSchema != nil {
		a.ObjectSchema.IsInline = true
		if a.ObjectSchema.PublishDate == nil {
			a.ObjectSchema.PublishDate = owner.PublishDate
		}
		if err := s.InsertSchema(a.ObjectSchema); err != nil {
			return errors.Wrapf(err, "insert sub-schema for attribute %q", a.Name)
		}
		objectSchemaID = a.ObjectSchema.ID
	}

	// Checksum hook: recomputed immediately before the row write
	a.Checksum = schema.ChecksumFor(owner.Name, owner.Description, a)

	now := s.timestamp()
	result, err := s.tx.Exec(attributeInsertQuery,
		owner.ID, a.Name, a.Title, nullString(a.Description), string(a.Type),
		a.Checksum, a.IsCollection, a.IsRequired, a.IsPrivate,
		nullID(objectSchemaID), nullInt(a.ValueMin), nullInt(a.ValueMax),
		nullInt(a.CollectionMin), nullInt(a.CollectionMax),
		nullString(a.Validator), a.Order,
		now, s.actorID, now, s.actorID,
	)
	if err != nil {
		return errors.Wrapf(err, "insert attribute %q.%q", owner.Name, a.Name)
	}
	a.ID, err = result.LastInsertId()
	if err != nil {
		return errors.Wrapf(err, "insert attribute %q.%q", owner.Name, a.Name)
	}
	a.SchemaID = owner.ID

	for _, c := range a.Choices {
		result, err := s.tx.Exec(choiceInsertQuery,
			a.ID, c.Name, c.Title, c.Order, now, s.actorID, now, s.actorID)
		if err != nil {
			return errors.Wrapf(err, "insert choice %q for attribute %q", c.Name, a.Name)
		}
		c.ID, err = result.LastInsertId()
		if err != nil {
			return errors.Wrapf(err, "insert choice %q for attribute %q", c.Name, a.Name)
		}
		c.AttributeID = a.ID
	}
	return nil
}

// findSchemaIDByName returns the most recent schema row id for a logical
// name, or 0 when the name is unknown.
func (s *Session) findSchemaIDByName(name string) (int64, error) {
	var id int64
	err := s.tx.QueryRow(
		"SELECT id FROM schema WHERE name = ? ORDER BY publish_date DESC, id DESC LIMIT 1",
		name,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "look up schema %q", name)
	}
	return id, nil
}

// RetractSchema marks a published version as end-of-life. The only mutation
// a published schema admits.
func (s *Session) RetractSchema(id int64, date sql.NullString) error {
	result, err := s.tx.Exec("UPDATE schema SET retract_date = ? WHERE id = ?", date, id)
	if err != nil {
		return errors.Wrapf(err, "retract schema %d", id)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return errors.NewNotFoundf("schema %d", id)
	}
	return s.audit("schema", id)
}

// DeleteSchema removes a schema version. Attributes, choices, entities and
// their values are cascade-deleted by the database; callers that must refuse
// deletion when entities exist check first (see manager.SchemaManager).
// Snapshot rows preserve the final state of the version's own rows.
func (s *Session) DeleteSchema(id int64) error {
	attrRows, err := s.tx.Query("SELECT id FROM attribute WHERE schema_id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "delete schema %d", id)
	}
	attrIDs, err := collectIDs(attrRows)
	if err != nil {
		return errors.Wrapf(err, "delete schema %d", id)
	}

	for _, attrID := range attrIDs {
		choiceRows, err := s.tx.Query("SELECT id FROM choice WHERE attribute_id = ?", attrID)
		if err != nil {
			return errors.Wrapf(err, "delete schema %d", id)
		}
		choiceIDs, err := collectIDs(choiceRows)
		if err != nil {
			return errors.Wrapf(err, "delete schema %d", id)
		}
		for _, choiceID := range choiceIDs {
			if err := s.audit("choice", choiceID); err != nil {
				return err
			}
		}
		if err := s.audit("attribute", attrID); err != nil {
			return err
		}
	}

	if err := s.audit("schema", id); err != nil {
		return err
	}

	_, err = s.tx.Exec("DELETE FROM schema WHERE id = ?", id)
	return errors.Wrapf(err, "delete schema %d", id)
}

// RetireAttribute soft-removes every live attribute row carrying the logical
// name by stamping remove_date. Idempotent; returns the number of rows
// retired.
func (s *Session) RetireAttribute(name string) (int, error) {
	rows, err := s.tx.Query(
		"SELECT id FROM attribute WHERE name = ? AND remove_date IS NULL", name)
	if err != nil {
		return 0, errors.Wrapf(err, "retire attribute %q", name)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return 0, errors.Wrapf(err, "retire attribute %q", name)
	}
	for _, id := range ids {
		if _, err := s.tx.Exec(
			"UPDATE attribute SET remove_date = ? WHERE id = ?", s.timestamp(), id,
		); err != nil {
			return 0, errors.Wrapf(err, "retire attribute %q", name)
		}
		if err := s.audit("attribute", id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// RestoreAttribute clears the remove_date of the most recently removed row
// for the logical name. Returns 1 when a row was restored, 0 when none was
// applicable.
func (s *Session) RestoreAttribute(name string) (int, error) {
	var id int64
	err := s.tx.QueryRow(`
		SELECT id FROM attribute WHERE name = ? AND remove_date IS NOT NULL
		ORDER BY remove_date DESC, id DESC LIMIT 1`, name,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "restore attribute %q", name)
	}
	if _, err := s.tx.Exec("UPDATE attribute SET remove_date = NULL WHERE id = ?", id); err != nil {
		return 0, errors.Wrapf(err, "restore attribute %q", name)
	}
	return 1, s.audit("attribute", id)
}

// DeleteAttribute removes one attribute row. Choices and values cascade;
// final snapshots preserve the attribute and choice rows.
func (s *Session) DeleteAttribute(id int64) error {
	choiceRows, err := s.tx.Query("SELECT id FROM choice WHERE attribute_id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "delete attribute %d", id)
	}
	choiceIDs, err := collectIDs(choiceRows)
	if err != nil {
		return errors.Wrapf(err, "delete attribute %d", id)
	}
	for _, choiceID := range choiceIDs {
		if err := s.audit("choice", choiceID); err != nil {
			return err
		}
	}
	if err := s.audit("attribute", id); err != nil {
		return err
	}

	result, err := s.tx.Exec("DELETE FROM attribute WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "delete attribute %d", id)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewNotFoundf("attribute %d", id)
	}
	return nil
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadSchema fetches a schema version with its attributes, choices, base,
// and object sub-schemata.
func LoadSchema(q Querier, id int64) (*schema.Schema, error) {
	row := q.QueryRow(schemaSelectQuery+" WHERE id = ?", id)
	sc, baseID, err := scanSchema(row)
	if err != nil {
		return nil, err
	}

	if baseID != 0 {
		base, err := LoadSchema(q, baseID)
		if err != nil {
			return nil, errors.Wrapf(err, "load base of schema %d", id)
		}
		sc.Bases = []*schema.Schema{base}
	}

	if err := loadAttributes(q, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchema(row rowScanner) (*schema.Schema, int64, error) {
	var (
		sc                       schema.Schema
		description              sql.NullString
		storage, state           string
		publishDate, retractDate sql.NullString
		baseID                   sql.NullInt64
		createDate, modifyDate   string
	)
	err := row.Scan(&sc.ID, &sc.Name, &sc.Title, &description, &storage, &state,
		&publishDate, &retractDate, &sc.IsInline, &baseID,
		&createDate, &sc.CreateUserID, &modifyDate, &sc.ModifyUserID)
	if err == sql.ErrNoRows {
		return nil, 0, errors.Wrap(errors.ErrNotFound, "schema")
	}
	if err != nil {
		return nil, 0, errors.Wrap(err, "scan schema")
	}

	sc.Description = description.String
	sc.Storage = schema.Storage(storage)
	sc.State = schema.State(state)
	if sc.PublishDate, err = parseTimePtr(publishDate); err != nil {
		return nil, 0, err
	}
	if sc.RetractDate, err = parseTimePtr(retractDate); err != nil {
		return nil, 0, err
	}
	if sc.CreateDate, err = parseTime(createDate); err != nil {
		return nil, 0, err
	}
	if sc.ModifyDate, err = parseTime(modifyDate); err != nil {
		return nil, 0, err
	}
	return &sc, baseID.Int64, nil
}

// GetAttribute loads one attribute row by id, with its choices and object
// sub-schema.
func GetAttribute(q Querier, id int64) (*schema.Attribute, error) {
	a, objectSchemaID, err := scanAttributeRow(q.QueryRow(attributeSelectQuery+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	if objectSchemaID != 0 {
		if a.ObjectSchema, err = LoadSchema(q, objectSchemaID); err != nil {
			return nil, errors.Wrapf(err, "load sub-schema of attribute %q", a.Name)
		}
	}
	if err := loadChoices(q, a); err != nil {
		return nil, err
	}
	return a, nil
}

func loadAttributes(q Querier, sc *schema.Schema) error {
	rows, err := q.Query(
		attributeSelectQuery+` WHERE schema_id = ? AND remove_date IS NULL ORDER BY "order"`,
		sc.ID)
	if err != nil {
		return errors.Wrapf(err, "load attributes of schema %d", sc.ID)
	}

	var attrs []*schema.Attribute
	objectSchemaIDs := make(map[*schema.Attribute]int64)
	for rows.Next() {
		a, objectSchemaID, err := scanAttributeRow(rows)
		if err != nil {
			rows.Close()
			return err
		}
		if objectSchemaID != 0 {
			objectSchemaIDs[a] = objectSchemaID
		}
		attrs = append(attrs, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return errors.Wrap(err, "scan attributes")
	}
	rows.Close()

	for _, a := range attrs {
		if subID, ok := objectSchemaIDs[a]; ok {
			sub, err := LoadSchema(q, subID)
			if err != nil {
				return errors.Wrapf(err, "load sub-schema of attribute %q", a.Name)
			}
			a.ObjectSchema = sub
		}
		if err := loadChoices(q, a); err != nil {
			return err
		}
	}

	sc.Attributes = attrs
	return nil
}

func scanAttributeRow(row rowScanner) (*schema.Attribute, int64, error) {
	var (
		a                      schema.Attribute
		description, validator sql.NullString
		attrType               string
		objectSchemaID         sql.NullInt64
		vMin, vMax, cMin, cMax sql.NullInt64
		removeDate             sql.NullString
		createDate, modifyDate string
	)
	err := row.Scan(&a.ID, &a.SchemaID, &a.Name, &a.Title, &description,
		&attrType, &a.Checksum, &a.IsCollection, &a.IsRequired, &a.IsPrivate,
		&objectSchemaID, &vMin, &vMax, &cMin, &cMax, &validator, &a.Order,
		&removeDate, &createDate, &a.CreateUserID, &modifyDate, &a.ModifyUserID)
	if err == sql.ErrNoRows {
		return nil, 0, errors.Wrap(errors.ErrNotFound, "attribute")
	}
	if err != nil {
		return nil, 0, errors.Wrap(err, "scan attribute")
	}
	a.Description = description.String
	a.Type = schema.Type(attrType)
	a.Validator = validator.String
	a.ValueMin = int64Ptr(vMin)
	a.ValueMax = int64Ptr(vMax)
	a.CollectionMin = int64Ptr(cMin)
	a.CollectionMax = int64Ptr(cMax)
	if a.RemoveDate, err = parseTimePtr(removeDate); err != nil {
		return nil, 0, err
	}
	if a.CreateDate, err = parseTime(createDate); err != nil {
		return nil, 0, err
	}
	if a.ModifyDate, err = parseTime(modifyDate); err != nil {
		return nil, 0, err
	}
	return &a, objectSchemaID.Int64, nil
}

func loadChoices(q Querier, a *schema.Attribute) error {
	rows, err := q.Query(choiceSelectQuery, a.ID)
	if err != nil {
		return errors.Wrapf(err, "load choices of attribute %d", a.ID)
	}
	defer rows.Close()

	for rows.Next() {
		var c schema.Choice
		if err := rows.Scan(&c.ID, &c.AttributeID, &c.Name, &c.Title, &c.Order); err != nil {
			return errors.Wrap(err, "scan choice")
		}
		a.Choices = append(a.Choices, &c)
	}
	return errors.Wrap(rows.Err(), "scan choices")
}

func int64Ptr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
