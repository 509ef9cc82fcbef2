package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordate/datastore/errors"
	itesting "github.com/cordate/datastore/internal/testing"
	"github.com/cordate/datastore/schema"
	"github.com/cordate/datastore/storage"
)

func publishedSchema(t *testing.T, m *SchemaManager) *schema.Schema {
	t.Helper()
	sc := version("sample", schema.DatePtr(2020, time.January, 1))
	require.NoError(t, m.Put(sc))
	loaded, err := m.Get("sample", nil)
	require.NoError(t, err)
	return loaded
}

func TestEntityManagerPut(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := publishedSchema(t, NewSchemaManager(conn, actor(), nil))
	m := NewEntityManager(conn, actor(), nil)

	e := &storage.Entity{Schema: sc, Name: "subj-001"}
	require.NoError(t, m.Put(e))
	assert.NotZero(t, e.ID)

	assert.ErrorIs(t, m.Put(e), errors.ErrAlreadyExists,
		"an entity with identity cannot be re-put")
}

func TestEntityManagerVisibility(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := publishedSchema(t, NewSchemaManager(conn, actor(), nil))
	m := NewEntityManager(conn, actor(), nil)

	e := &storage.Entity{Schema: sc, Name: "subj-001"}
	require.NoError(t, m.Put(e))

	keys, err := m.Keys(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"subj-001"}, keys)

	got, err := m.Get("subj-001", nil)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, sc.ID, got.Schema.ID)

	before := time.Now().UTC().Add(-48 * time.Hour)
	ok, err := m.Has("subj-001", &before)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.Get("nobody", nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestEntityManagerLineage(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := publishedSchema(t, NewSchemaManager(conn, actor(), nil))
	m := NewEntityManager(conn, actor(), nil)

	e1 := &storage.Entity{Schema: sc, Name: "subj-001"}
	require.NoError(t, m.Put(e1))

	n, err := m.Retire("subj-001")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err := m.Keys(nil)
	require.NoError(t, err)
	assert.Empty(t, keys, "retired lineages are invisible")

	// a new version may reuse the name once the old row is retired
	e2 := &storage.Entity{Schema: sc, Name: "subj-001"}
	require.NoError(t, m.Put(e2))

	got, err := m.Get("subj-001", nil)
	require.NoError(t, err)
	assert.Equal(t, e2.ID, got.ID)

	stamps, err := m.Lifecycles("subj-001")
	require.NoError(t, err)
	assert.Len(t, stamps, 2)

	n, err = m.Retire("subj-001")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.Restore("subj-001")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the most recently removed row comes back")

	got, err = m.Get("subj-001", nil)
	require.NoError(t, err)
	assert.Equal(t, e2.ID, got.ID)

	n, err = m.Restore("subj-001")
	require.NoError(t, err)
	assert.Zero(t, n, "nothing else is applicable while a live row exists")
}

func TestEntityManagerPurge(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := publishedSchema(t, NewSchemaManager(conn, actor(), nil))
	m := NewEntityManager(conn, actor(), nil)

	e1 := &storage.Entity{Schema: sc, Name: "subj-001"}
	require.NoError(t, m.Put(e1))
	n, err := m.Retire("subj-001")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	e2 := &storage.Entity{Schema: sc, Name: "subj-001"}
	require.NoError(t, m.Put(e2))

	t.Run("without ever only the latest visible version goes", func(t *testing.T) {
		n, err := m.Purge("subj-001", nil, false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = m.Get("subj-001", nil)
		assert.ErrorIs(t, err, errors.ErrNotFound, "the remaining row is retired")
	})

	t.Run("ever removes the whole lineage", func(t *testing.T) {
		n, err := m.Purge("subj-001", nil, true)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		var rows int
		require.NoError(t, conn.QueryRow(
			"SELECT COUNT(*) FROM entity WHERE name = 'subj-001'").Scan(&rows))
		assert.Zero(t, rows)
	})
}
