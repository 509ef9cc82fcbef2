package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/schema"
)

// Entity is one instance of data collected against exactly one schema
// version.
type Entity struct {
	ID     int64
	Schema *schema.Schema
	Name   string
	Title  string

	// State is the workflow state name (pending-entry, in-progress, ...).
	State string

	// IsNull flags a form left intentionally blank.
	IsNull bool

	CollectDate time.Time
	RemoveDate  *time.Time

	CreateDate   time.Time
	CreateUserID int64
	ModifyDate   time.Time
	ModifyUserID int64
}

// Context links an entity to one external domain row (patient, visit, ...)
// without a foreign key into any external table.
type Context struct {
	ID       int64
	EntityID int64
	External string
	Key      int64
}

const (
	entityInsertQuery = `
		INSERT INTO entity (schema_id, name, title, state_id, is_null,
			collect_date, create_date, create_user_id, modify_date, modify_user_id)
		VALUES (?, ?, ?, (SELECT id FROM state WHERE name = ?), ?, ?, ?, ?, ?, ?)`

	entitySelectQuery = `
		SELECT e.id, e.schema_id, e.name, e.title,
			COALESCE(st.name, ''), e.is_null, e.collect_date, e.remove_date,
			e.create_date, COALESCE(e.create_user_id, 0),
			e.modify_date, COALESCE(e.modify_user_id, 0)
		FROM entity e
		LEFT OUTER JOIN state st ON st.id = e.state_id`
)

// CreateEntity persists a new entity. An entity may only be created against
// a published, non-retracted schema; drafts and retracted versions fail with
// ErrInvalidEntitySchema. A uuid name is generated when none is given.
func (s *Session) CreateEntity(e *Entity) error {
	if e.Schema == nil {
		return errors.New("entity requires a schema")
	}
	if !e.Schema.Published() {
		return errors.Wrapf(errors.ErrInvalidEntitySchema,
			"schema %q (id %d) is not published or has been retracted", e.Schema.Name, e.Schema.ID)
	}
	if e.Name == "" {
		e.Name = uuid.NewString()
	}
	if e.State == "" {
		e.State = "pending-entry"
	}
	if e.CollectDate.IsZero() {
		e.CollectDate = s.now().UTC()
	}

	now := s.timestamp()
	result, err := s.tx.Exec(entityInsertQuery,
		e.Schema.ID, e.Name, nullString(e.Title), e.State, e.IsNull,
		e.CollectDate.Format(DateFormat),
		now, s.actorID, now, s.actorID,
	)
	if err != nil {
		return errors.Wrapf(err, "insert entity %q", e.Name)
	}
	if e.ID, err = result.LastInsertId(); err != nil {
		return errors.Wrapf(err, "insert entity %q", e.Name)
	}

	if s.logger != nil {
		s.logger.Debugw("Entity created",
			"entity", e.Name,
			"entity_id", e.ID,
			"schema", e.Schema.Name,
		)
	}
	return nil
}

// UpdateEntity persists state/title/is_null changes and appends an audit
// snapshot.
func (s *Session) UpdateEntity(e *Entity) error {
	if e.ID == 0 {
		return errors.New("entity has no identity")
	}
	_, err := s.tx.Exec(`
		UPDATE entity
		SET title = ?, state_id = (SELECT id FROM state WHERE name = ?),
			is_null = ?, collect_date = ?
		WHERE id = ?`,
		nullString(e.Title), e.State, e.IsNull,
		e.CollectDate.Format(DateFormat), e.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "update entity %d", e.ID)
	}
	return s.audit("entity", e.ID)
}

// DeleteEntity removes an entity and its values (cascade), preserving one
// final audit snapshot stamped with the deleting actor.
func (s *Session) DeleteEntity(id int64) error {
	if err := s.audit("entity", id); err != nil {
		return err
	}
	result, err := s.tx.Exec("DELETE FROM entity WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "delete entity %d", id)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewNotFoundf("entity %d", id)
	}
	return nil
}

// RetireEntity soft-removes every live entity row carrying the logical name.
// Idempotent; returns the number of rows retired.
func (s *Session) RetireEntity(name string) (int, error) {
	rows, err := s.tx.Query(
		"SELECT id FROM entity WHERE name = ? AND remove_date IS NULL", name)
	if err != nil {
		return 0, errors.Wrapf(err, "retire entity %q", name)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return 0, errors.Wrapf(err, "retire entity %q", name)
	}
	for _, id := range ids {
		if _, err := s.tx.Exec(
			"UPDATE entity SET remove_date = ? WHERE id = ?", s.timestamp(), id,
		); err != nil {
			return 0, errors.Wrapf(err, "retire entity %q", name)
		}
		if err := s.audit("entity", id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// RestoreEntity clears the remove_date of the most recently removed row for
// the logical name. Returns 1 when a row was restored, 0 when none was
// applicable. A lineage with a live row has nothing to restore: at most one
// row per name may be live.
func (s *Session) RestoreEntity(name string) (int, error) {
	var live int
	err := s.tx.QueryRow(
		"SELECT COUNT(*) FROM entity WHERE name = ? AND remove_date IS NULL", name,
	).Scan(&live)
	if err != nil {
		return 0, errors.Wrapf(err, "restore entity %q", name)
	}
	if live > 0 {
		return 0, nil
	}

	var id int64
	err = s.tx.QueryRow(`
		SELECT id FROM entity WHERE name = ? AND remove_date IS NOT NULL
		ORDER BY remove_date DESC, id DESC LIMIT 1`, name,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "restore entity %q", name)
	}
	if _, err := s.tx.Exec("UPDATE entity SET remove_date = NULL WHERE id = ?", id); err != nil {
		return 0, errors.Wrapf(err, "restore entity %q", name)
	}
	return 1, s.audit("entity", id)
}

// GetEntity loads an entity and its schema graph by id.
func GetEntity(q Querier, id int64) (*Entity, error) {
	return scanEntity(q, q.QueryRow(entitySelectQuery+" WHERE e.id = ?", id))
}

// GetEntityByName loads an entity and its schema graph by name, preferring
// the live row over retired versions of the lineage.
func GetEntityByName(q Querier, name string) (*Entity, error) {
	return scanEntity(q, q.QueryRow(
		entitySelectQuery+` WHERE e.name = ?
		ORDER BY e.remove_date IS NOT NULL, e.id DESC LIMIT 1`, name))
}

func scanEntity(q Querier, row rowScanner) (*Entity, error) {
	var (
		e                      Entity
		schemaID               int64
		title                  sql.NullString
		collectDate            string
		removeDate             sql.NullString
		createDate, modifyDate string
	)
	err := row.Scan(&e.ID, &schemaID, &e.Name, &title, &e.State, &e.IsNull,
		&collectDate, &removeDate,
		&createDate, &e.CreateUserID, &modifyDate, &e.ModifyUserID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "entity")
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan entity")
	}

	e.Title = title.String
	if e.CollectDate, err = parseTime(collectDate); err != nil {
		return nil, err
	}
	if e.RemoveDate, err = parseTimePtr(removeDate); err != nil {
		return nil, err
	}
	if e.Schema, err = LoadSchema(q, schemaID); err != nil {
		return nil, errors.Wrapf(err, "load schema of entity %d", e.ID)
	}
	return &e, nil
}

// AddContext links the entity to an external domain row. Idempotent per
// (entity, external, key) triple.
func (s *Session) AddContext(entityID int64, external string, key int64) error {
	now := s.timestamp()
	_, err := s.tx.Exec(`
		INSERT INTO context (entity_id, external, key,
			create_date, create_user_id, modify_date, modify_user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_id, external, key) DO NOTHING`,
		entityID, external, key, now, s.actorID, now, s.actorID,
	)
	return errors.Wrapf(err, "add context %s/%d to entity %d", external, key, entityID)
}

// RemoveContext unlinks an external domain row, auditing the removal.
func (s *Session) RemoveContext(entityID int64, external string, key int64) error {
	var id int64
	err := s.tx.QueryRow(
		"SELECT id FROM context WHERE entity_id = ? AND external = ? AND key = ?",
		entityID, external, key,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "remove context %s/%d from entity %d", external, key, entityID)
	}
	if err := s.audit("context", id); err != nil {
		return err
	}
	_, err = s.tx.Exec("DELETE FROM context WHERE id = ?", id)
	return errors.Wrapf(err, "remove context %s/%d from entity %d", external, key, entityID)
}

// GetContexts lists the external rows linked to an entity.
func GetContexts(q Querier, entityID int64) ([]Context, error) {
	rows, err := q.Query(
		"SELECT id, entity_id, external, key FROM context WHERE entity_id = ? ORDER BY external, key",
		entityID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "load contexts of entity %d", entityID)
	}
	defer rows.Close()

	var contexts []Context
	for rows.Next() {
		var c Context
		if err := rows.Scan(&c.ID, &c.EntityID, &c.External, &c.Key); err != nil {
			return nil, errors.Wrap(err, "scan context")
		}
		contexts = append(contexts, c)
	}
	return contexts, errors.Wrap(rows.Err(), "scan contexts")
}
