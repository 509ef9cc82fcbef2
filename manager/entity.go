package manager

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/cordate/datastore/errors"
	"github.com/cordate/datastore/storage"
)

const (
	entityVisibleNow = "remove_date IS NULL"
	entityVisibleOn  = "date(create_date) <= ? AND (remove_date IS NULL OR date(remove_date) > ?)"
)

// EntityManager is the versioned CRUD façade over entity lineages, keyed by
// entity name. Supports full retire/restore via the remove_date sentinel.
type EntityManager struct {
	db      *sql.DB
	resolve storage.ActorResolver
	logger  *zap.SugaredLogger
}

func NewEntityManager(db *sql.DB, resolve storage.ActorResolver, logger *zap.SugaredLogger) *EntityManager {
	return &EntityManager{db: db, resolve: resolve, logger: logger}
}

// Keys lists the distinct entity names visible as of the given date, or
// currently live when on is nil.
func (m *EntityManager) Keys(on *time.Time) ([]string, error) {
	if on == nil {
		return queryStrings(m.db,
			"SELECT DISTINCT name FROM entity WHERE "+entityVisibleNow+" ORDER BY name")
	}
	d := dateOf(on)
	return queryStrings(m.db,
		"SELECT DISTINCT name FROM entity WHERE "+entityVisibleOn+" ORDER BY name", d, d)
}

// Has reports whether a version of the named entity is visible as of on.
func (m *EntityManager) Has(name string, on *time.Time) (bool, error) {
	id, err := m.latestID(name, on)
	return id != 0, err
}

// Get loads the most recent version of the named entity visible as of on,
// schema graph included. Fails with ErrNotFound when none match.
func (m *EntityManager) Get(name string, on *time.Time) (*storage.Entity, error) {
	id, err := m.latestID(name, on)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, errors.NewNotFoundf("entity %q", name)
	}
	return storage.GetEntity(m.db, id)
}

// Lifecycles lists the lineage's create dates newest-first.
func (m *EntityManager) Lifecycles(name string) ([]time.Time, error) {
	return queryStamps(m.db,
		"SELECT create_date FROM entity WHERE name = ? ORDER BY create_date DESC, id DESC", name)
}

// Put persists a new entity version. Fails with ErrAlreadyExists when the
// candidate already carries an identity.
func (m *EntityManager) Put(e *storage.Entity) error {
	if e.ID != 0 {
		return errors.Wrapf(errors.ErrAlreadyExists,
			"entity %q already has id %d", e.Name, e.ID)
	}

	s, err := storage.NewSession(m.db, m.resolve, m.logger)
	if err != nil {
		return err
	}
	if err := s.CreateEntity(e); err != nil {
		s.Rollback()
		return err
	}
	return s.Commit()
}

// Retire stamps remove_date on every live row of the lineage. Idempotent;
// returns the number of rows retired.
func (m *EntityManager) Retire(name string) (int, error) {
	s, err := storage.NewSession(m.db, m.resolve, m.logger)
	if err != nil {
		return 0, err
	}
	n, err := s.RetireEntity(name)
	if err != nil {
		s.Rollback()
		return 0, err
	}
	return n, s.Commit()
}

// Restore clears the most recently removed row's remove_date. Returns 0 when
// nothing was applicable.
func (m *EntityManager) Restore(name string) (int, error) {
	s, err := storage.NewSession(m.db, m.resolve, m.logger)
	if err != nil {
		return 0, err
	}
	n, err := s.RestoreEntity(name)
	if err != nil {
		s.Rollback()
		return 0, err
	}
	return n, s.Commit()
}

// Purge deletes the most recent version visible as of on, or every version
// ever created when ever is set. Values cascade; one final audit snapshot
// per deleted row is preserved.
func (m *EntityManager) Purge(name string, on *time.Time, ever bool) (int, error) {
	var (
		ids []int64
		err error
	)
	if ever {
		ids, err = queryIDs(m.db, "SELECT id FROM entity WHERE name = ? ORDER BY id", name)
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
		if err := s.DeleteEntity(id); err != nil {
			s.Rollback()
			return 0, err
		}
	}
	return len(ids), s.Commit()
}

func (m *EntityManager) latestID(name string, on *time.Time) (int64, error) {
	if on == nil {
		return queryID(m.db, `
			SELECT id FROM entity WHERE name = ? AND `+entityVisibleNow+`
			ORDER BY create_date DESC, id DESC LIMIT 1`, name)
	}
	d := dateOf(on)
	return queryID(m.db, `
		SELECT id FROM entity WHERE name = ? AND `+entityVisibleOn+`
		ORDER BY create_date DESC, id DESC LIMIT 1`, name, d, d)
}
