package manager

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/schema"
	"github.com/cordate/datastore/storage"
)

// Attribute lineage visibility: undated kind, so a row is visible from its
// create date until its remove date.
const (
	attributeVisibleNow = "remove_date IS NULL"
	attributeVisibleOn  = "date(create_date) <= ? AND (remove_date IS NULL OR date(remove_date) > ?)"
)

// AttributeManager is the versioned CRUD façade over attribute lineages,
// keyed by attribute name across schema versions. Unlike schemata,
// attributes support full retire/restore via the remove_date sentinel.
type AttributeManager struct {
	db      *sql.DB
	resolve storage.ActorResolver
	logger  *zap.SugaredLogger
}

func NewAttributeManager(db *sql.DB, resolve storage.ActorResolver, logger *zap.SugaredLogger) *AttributeManager {
	return &AttributeManager{db: db, resolve: resolve, logger: logger}
}

// Keys lists the distinct attribute names visible as of the given date, or
// currently live when on is nil.
func (m *AttributeManager) Keys(on *time.Time) ([]string, error) {
	if on == nil {
		return queryStrings(m.db,
			"SELECT DISTINCT name FROM attribute WHERE "+attributeVisibleNow+" ORDER BY name")
	}
	d := dateOf(on)
	return queryStrings(m.db,
		"SELECT DISTINCT name FROM attribute WHERE "+attributeVisibleOn+" ORDER BY name", d, d)
}

// Has reports whether a version of the named attribute is visible as of on.
func (m *AttributeManager) Has(name string, on *time.Time) (bool, error) {
	id, err := m.latestID(name, on)
	return id != 0, err
}

// Get loads the most recent version of the named attribute visible as of on,
// with its choices and object sub-schema. Fails with ErrNotFound when none
// match.
func (m *AttributeManager) Get(name string, on *time.Time) (*schema.Attribute, error) {
	id, err := m.latestID(name, on)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, errors.NewNotFoundf("attribute %q", name)
	}
	return storage.GetAttribute(m.db, id)
}

// Lifecycles lists the lineage's create dates newest-first.
func (m *AttributeManager) Lifecycles(name string) ([]time.Time, error) {
	return queryStamps(m.db,
		"SELECT create_date FROM attribute WHERE name = ? ORDER BY create_date DESC, id DESC", name)
}

// Put inserts a new attribute version on the owning schema.
func (m *AttributeManager) Put(owner *schema.Schema, a *schema.Attribute) error {
	if a.ID != 0 {
		return errors.Wrapf(errors.ErrAlreadyExists,
			"attribute %q already has id %d", a.Name, a.ID)
	}

	s, err := storage.NewSession(m.db, m.resolve, m.logger)
	if err != nil {
		return err
	}
	if err := s.InsertAttribute(owner, a); err != nil {
		s.Rollback()
		return err
	}
	return s.Commit()
}

// Retire stamps remove_date on every live row of the lineage. Idempotent;
// returns the number of rows retired.
func (m *AttributeManager) Retire(name string) (int, error) {
	s, err := storage.NewSession(m.db, m.resolve, m.logger)
	if err != nil {
		return 0, err
	}
	n, err := s.RetireAttribute(name)
	if err != nil {
		s.Rollback()
		return 0, err
	}
	return n, s.Commit()
}

// Restore clears the most recently removed row's remove_date. Returns 0 when
// nothing was applicable.
func (m *AttributeManager) Restore(name string) (int, error) {
	s, err := storage.NewSession(m.db, m.resolve, m.logger)
	if err != nil {
		return 0, err
	}
	n, err := s.RestoreAttribute(name)
	if err != nil {
		s.Rollback()
		return 0, err
	}
	return n, s.Commit()
}

// Purge deletes the most recent version visible as of on, or every version
// ever created when ever is set. Choices and values cascade.
func (m *AttributeManager) Purge(name string, on *time.Time, ever bool) (int, error) {
	var (
		ids []int64
		err error
	)
	if ever {
		ids, err = queryIDs(m.db, "SELECT id FROM attribute WHERE name = ? ORDER BY id", name)
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
		if err := s.DeleteAttribute(id); err != nil {
			s.Rollback()
			return 0, err
		}
	}
	return len(ids), s.Commit()
}

func (m *AttributeManager) latestID(name string, on *time.Time) (int64, error) {
	if on == nil {
		return queryID(m.db, `
			SELECT id FROM attribute WHERE name = ? AND `+attributeVisibleNow+`
			ORDER BY create_date DESC, id DESC LIMIT 1`, name)
	}
	d := dateOf(on)
	return queryID(m.db, `
		SELECT id FROM attribute WHERE name = ? AND `+attributeVisibleOn+`
		ORDER BY create_date DESC, id DESC LIMIT 1`, name, d, d)
}
