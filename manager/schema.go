package manager

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/schema"
	"github.com/cordate/datastore/storage"
)

// Schema lineage visibility: a version is current when published and not
// retracted; as of a date it is any version published on or before that date.
const (
	schemaVisibleNow = "publish_date IS NOT NULL AND retract_date IS NULL"
	schemaVisibleOn  = "publish_date IS NOT NULL AND publish_date <= ?"
)

// SchemaManager is the versioned CRUD façade over schema lineages. Published
// versions are immutable history: Retire and Restore are disabled, lineages
// are purge-only.
type SchemaManager struct {
	db      *sql.DB
	resolve storage.ActorResolver
	logger  *zap.SugaredLogger
}

func NewSchemaManager(db *sql.DB, resolve storage.ActorResolver, logger *zap.SugaredLogger) *SchemaManager {
	return &SchemaManager{db: db, resolve: resolve, logger: logger}
}

// Keys lists the distinct logical names visible as of the given date, or
// currently published when on is nil.
func (m *SchemaManager) Keys(on *time.Time) ([]string, error) {
	if on == nil {
		return queryStrings(m.db,
			"SELECT DISTINCT name FROM schema WHERE "+schemaVisibleNow+" ORDER BY name")
	}
	return queryStrings(m.db,
		"SELECT DISTINCT name FROM schema WHERE "+schemaVisibleOn+" ORDER BY name", dateOf(on))
}

// Has reports whether a version of the named schema is visible as of on.
func (m *SchemaManager) Has(name string, on *time.Time) (bool, error) {
	id, err := m.latestID(name, on)
	return id != 0, err
}

// Get loads the most recent version of the named schema visible as of on.
// Fails with ErrNotFound when none match.
func (m *SchemaManager) Get(name string, on *time.Time) (*schema.Schema, error) {
	id, err := m.latestID(name, on)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, errors.NewNotFoundf("schema %q", name)
	}
	return storage.LoadSchema(m.db, id)
}

// Lifecycles lists the lineage's version dates newest-first: publish dates
// for published versions, create dates for drafts.
func (m *SchemaManager) Lifecycles(name string) ([]time.Time, error) {
	return queryStamps(m.db, `
		SELECT COALESCE(publish_date, create_date) FROM schema WHERE name = ?
		ORDER BY COALESCE(publish_date, create_date) DESC, id DESC`, name)
}

// Put inserts a new published version. Fails with ErrAlreadyExists when the
// candidate already carries an identity (published schemas cannot be
// overwritten) and rejects candidates without a publish date.
func (m *SchemaManager) Put(sc *schema.Schema) error {
	if sc.ID != 0 {
		return errors.Wrapf(errors.ErrAlreadyExists,
			"schema %q already has id %d; copy it to publish a new version", sc.Name, sc.ID)
	}
	if sc.PublishDate == nil {
		return errors.Newf("schema %q has no publish date", sc.Name)
	}

	s, err := storage.NewSession(m.db, m.resolve, m.logger)
	if err != nil {
		return err
	}
	if err := s.InsertSchema(sc); err != nil {
		s.Rollback()
		return err
	}
	return s.Commit()
}

// Purge deletes the most recent version visible as of on, or the whole
// lineage when ever is set, and returns the number of versions deleted.
// Entities and their values cascade unconditionally; callers that must
// refuse data loss check HasEntities first.
func (m *SchemaManager) Purge(name string, on *time.Time, ever bool) (int, error) {
	var (
		ids []int64
		err error
	)
	if ever {
		ids, err = queryIDs(m.db, "SELECT id FROM schema WHERE name = ? ORDER BY id", name)
	} else {
		var id int64
		if id, err = m.latestID(name, on); id != 0 {
			ids = []int64{id}
		}
	}
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	s, err := storage.NewSession(m.db, m.resolve, m.logger)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := s.DeleteSchema(id); err != nil {
			s.Rollback()
			return 0, err
		}
	}
	if err := s.Commit(); err != nil {
		return 0, err
	}

	if m.logger != nil {
		m.logger.Infow("Schema versions purged", "schema", name, "count", len(ids))
	}
	return len(ids), nil
}

// Retire is disabled for schemata.
func (m *SchemaManager) Retire(name string) (int, error) {
	return 0, errors.Wrapf(errors.ErrUnsafeOperation,
		"schema %q cannot be retired; purge the version instead", name)
}

// Restore is disabled for schemata.
func (m *SchemaManager) Restore(name string) (int, error) {
	return 0, errors.Wrapf(errors.ErrUnsafeOperation,
		"schema %q cannot be restored", name)
}

// HasEntities reports whether any entity was collected against any version
// of the named schema.
func (m *SchemaManager) HasEntities(name string) (bool, error) {
	var count int
	err := m.db.QueryRow(`
		SELECT COUNT(*) FROM entity e
		JOIN schema s ON s.id = e.schema_id
		WHERE s.name = ?`, name,
	).Scan(&count)
	if err != nil {
		return false, errors.Wrapf(err, "count entities of schema %q", name)
	}
	return count > 0, nil
}

func (m *SchemaManager) latestID(name string, on *time.Time) (int64, error) {
	if on == nil {
		return queryID(m.db, `
			SELECT id FROM schema WHERE name = ? AND `+schemaVisibleNow+`
			ORDER BY publish_date DESC, id DESC LIMIT 1`, name)
	}
	return queryID(m.db, `
		SELECT id FROM schema WHERE name = ? AND `+schemaVisibleOn+`
		ORDER BY publish_date DESC, id DESC LIMIT 1`, name, dateOf(on))
}
