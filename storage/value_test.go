package storage

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordate/datastore/errors"
	itesting "github.com/cordate/datastore/internal/testing"
	"github.com/cordate/datastore/schema"
)

// publishAndLoad inserts a published schema and reloads it so ids are bound.
func publishAndLoad(t *testing.T, conn *sql.DB, sc *schema.Schema) *schema.Schema {
	t.Helper()
	s := newSession(t, conn)
	require.NoError(t, s.InsertSchema(sc))
	require.NoError(t, s.Commit())
	loaded, err := LoadSchema(conn, sc.ID)
	require.NoError(t, err)
	return loaded
}

func createEntity(t *testing.T, conn *sql.DB, sc *schema.Schema) *Entity {
	t.Helper()
	s := newSession(t, conn)
	e := &Entity{Schema: sc}
	require.NoError(t, s.CreateEntity(e))
	require.NoError(t, s.Commit())
	return e
}

func testSchema(t *testing.T, conn *sql.DB) *schema.Schema {
	lower, upper := 1, 10
	return publishAndLoad(t, conn, &schema.Schema{
		Name: "visit", Title: "Visit", Description: "visit form",
		PublishDate: schema.DatePtr(2020, time.January, 1),
		Attributes: []*schema.Attribute{
			{Name: "comment", Title: "Comment", Type: schema.String, Order: 0},
			{Name: "ok", Title: "OK", Type: schema.Boolean, Order: 1},
			{Name: "count", Title: "Count", Type: schema.Integer, Order: 2,
				ValueMin: &lower, ValueMax: &upper},
			{Name: "weight", Title: "Weight", Type: schema.Decimal, Order: 3},
			{Name: "visit_date", Title: "Visit Date", Type: schema.Date, Order: 4},
			{Name: "seen_at", Title: "Seen At", Type: schema.Datetime, Order: 5},
			{Name: "severity", Title: "Severity", Type: schema.TypeChoice, Order: 6,
				Choices: []*schema.Choice{
					{Name: "0", Title: "Mild", Order: 0},
					{Name: "1", Title: "Severe", Order: 1},
				}},
			{Name: "symptoms", Title: "Symptoms", Type: schema.String, Order: 7,
				IsCollection: true},
			{Name: "attachment", Title: "Attachment", Type: schema.Blob, Order: 8},
			{Name: "initials", Title: "Initials", Type: schema.String, Order: 9,
				Validator: `^[A-Z]{2,3}$`},
		},
	})
}

func TestEntityCreationGate(t *testing.T) {
	t.Run("draft schema refused", func(t *testing.T) {
		conn := itesting.CreateTestDB(t)
		sc := publishAndLoad(t, conn, &schema.Schema{
			Name: "draft", Title: "Draft",
			Attributes: []*schema.Attribute{{Name: "x", Title: "X", Type: schema.String, Order: 0}},
		})

		s := newSession(t, conn)
		defer s.Rollback()
		err := s.CreateEntity(&Entity{Schema: sc})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidEntitySchema)
	})

	t.Run("retracted schema refused", func(t *testing.T) {
		conn := itesting.CreateTestDB(t)
		sc := publishAndLoad(t, conn, &schema.Schema{
			Name: "old", Title: "Old",
			PublishDate: schema.DatePtr(2019, time.January, 1),
			RetractDate: schema.DatePtr(2020, time.January, 1),
			Attributes:  []*schema.Attribute{{Name: "x", Title: "X", Type: schema.String, Order: 0}},
		})

		s := newSession(t, conn)
		defer s.Rollback()
		err := s.CreateEntity(&Entity{Schema: sc})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidEntitySchema)
	})

	t.Run("published schema accepted", func(t *testing.T) {
		conn := itesting.CreateTestDB(t)
		sc := testSchema(t, conn)
		e := createEntity(t, conn, sc)
		assert.NotZero(t, e.ID)
		assert.NotEmpty(t, e.Name, "a uuid name is generated when none is given")
		assert.Equal(t, "pending-entry", e.State)
	})
}

func TestScalarValues(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := testSchema(t, conn)
	e := createEntity(t, conn, sc)

	t.Run("string round trip", func(t *testing.T) {
		s := newSession(t, conn)
		require.NoError(t, s.SetValue(e, "comment", "hello"))
		require.NoError(t, s.Commit())

		v, err := GetValue(conn, e, "comment")
		require.NoError(t, err)
		assert.Equal(t, "hello", v)
	})

	t.Run("boolean persists as integer and reads back as bool", func(t *testing.T) {
		s := newSession(t, conn)
		require.NoError(t, s.SetValue(e, "ok", true))
		require.NoError(t, s.Commit())

		var raw int64
		require.NoError(t, conn.QueryRow(
			"SELECT value FROM value_integer WHERE entity_id = ?", e.ID,
		).Scan(&raw))
		assert.Equal(t, int64(1), raw)

		v, err := GetValue(conn, e, "ok")
		require.NoError(t, err)
		assert.Equal(t, true, v)
	})

	t.Run("date narrows back to a date", func(t *testing.T) {
		s := newSession(t, conn)
		require.NoError(t, s.SetValue(e, "visit_date", time.Date(2022, time.March, 5, 14, 30, 0, 0, time.UTC)))
		require.NoError(t, s.Commit())

		v, err := GetValue(conn, e, "visit_date")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2022, time.March, 5, 0, 0, 0, 0, time.UTC), v)
	})

	t.Run("absent scalar reads as nil", func(t *testing.T) {
		v, err := GetValue(conn, e, "weight")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("scalar replace-in-place keeps exactly one row", func(t *testing.T) {
		s := newSession(t, conn)
		require.NoError(t, s.SetValue(e, "comment", "first"))
		require.NoError(t, s.SetValue(e, "comment", "second"))
		require.NoError(t, s.Commit())

		var count int
		require.NoError(t, conn.QueryRow(`
			SELECT COUNT(*) FROM value_string v
			JOIN attribute a ON a.id = v.attribute_id
			WHERE v.entity_id = ? AND a.name = 'comment'`, e.ID,
		).Scan(&count))
		assert.Equal(t, 1, count)

		v, err := GetValue(conn, e, "comment")
		require.NoError(t, err)
		assert.Equal(t, "second", v)
	})

	t.Run("nil clears the value bypassing constraints", func(t *testing.T) {
		s := newSession(t, conn)
		require.NoError(t, s.SetValue(e, "count", 5))
		require.NoError(t, s.SetValue(e, "count", nil))
		require.NoError(t, s.Commit())

		v, err := GetValue(conn, e, "count")
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestCollectionValues(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := testSchema(t, conn)
	e := createEntity(t, conn, sc)

	s := newSession(t, conn)
	require.NoError(t, s.SetValue(e, "symptoms", []string{"cough", "fever"}))
	require.NoError(t, s.Commit())

	collectRowIDs := func() []int64 {
		rows, err := conn.Query(`
			SELECT v.id FROM value_string v
			JOIN attribute a ON a.id = v.attribute_id
			WHERE v.entity_id = ? AND a.name = 'symptoms' ORDER BY v.id`, e.ID)
		require.NoError(t, err)
		ids, err := collectIDs(rows)
		require.NoError(t, err)
		return ids
	}

	before := collectRowIDs()
	require.Len(t, before, 2)

	v, err := GetValue(conn, e, "symptoms")
	require.NoError(t, err)
	assert.Equal(t, []any{"cough", "fever"}, v)

	// full replace: all old rows deleted, new list reinserted, no diffing
	s = newSession(t, conn)
	require.NoError(t, s.SetValue(e, "symptoms", []string{"cough", "fatigue", "chills"}))
	require.NoError(t, s.Commit())

	after := collectRowIDs()
	require.Len(t, after, 3)
	for _, oldID := range before {
		assert.NotContains(t, after, oldID, "old value row ids must not be reused")
	}
}

func TestChoiceValues(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := testSchema(t, conn)
	e := createEntity(t, conn, sc)

	t.Run("unknown code fails with constraint error", func(t *testing.T) {
		s := newSession(t, conn)
		defer s.Rollback()
		err := s.SetValue(e, "severity", "9")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrConstraint)
	})

	t.Run("listed code binds the matching choice", func(t *testing.T) {
		s := newSession(t, conn)
		require.NoError(t, s.SetValue(e, "severity", "1"))
		require.NoError(t, s.Commit())

		v, err := GetValue(conn, e, "severity")
		require.NoError(t, err)
		assert.Equal(t, "1", v)

		// the stored value is the bound choice row, not the raw code
		var boundTitle string
		require.NoError(t, conn.QueryRow(`
			SELECT c.title FROM value_choice v JOIN choice c ON c.id = v.value
			WHERE v.entity_id = ?`, e.ID,
		).Scan(&boundTitle))
		assert.Equal(t, "Severe", boundTitle)
	})
}

func TestValueConstraints(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := testSchema(t, conn)
	e := createEntity(t, conn, sc)

	t.Run("integer bounds", func(t *testing.T) {
		s := newSession(t, conn)
		defer s.Rollback()
		assert.ErrorIs(t, s.SetValue(e, "count", 0), errors.ErrConstraint)
		assert.ErrorIs(t, s.SetValue(e, "count", 11), errors.ErrConstraint)
		assert.NoError(t, s.SetValue(e, "count", 10))
	})

	t.Run("validator pattern", func(t *testing.T) {
		s := newSession(t, conn)
		defer s.Rollback()
		assert.ErrorIs(t, s.SetValue(e, "initials", "abc"), errors.ErrConstraint)
		assert.NoError(t, s.SetValue(e, "initials", "JD"))
	})

	t.Run("type mismatch", func(t *testing.T) {
		s := newSession(t, conn)
		defer s.Rollback()
		assert.ErrorIs(t, s.SetValue(e, "ok", "yes"), errors.ErrConstraint)
		assert.ErrorIs(t, s.SetValue(e, "symptoms", "not-a-list"), errors.ErrConstraint)
	})
}

func TestBlobValues(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := testSchema(t, conn)
	e := createEntity(t, conn, sc)

	s := newSession(t, conn)
	require.NoError(t, s.SetValue(e, "attachment", BlobValue{
		FileName: "consent.pdf",
		Data:     []byte{0x25, 0x50, 0x44, 0x46},
	}))
	require.NoError(t, s.Commit())

	v, err := GetValue(conn, e, "attachment")
	require.NoError(t, err)
	blob, ok := v.(BlobValue)
	require.True(t, ok)
	assert.Equal(t, "consent.pdf", blob.FileName)
	assert.Equal(t, []byte{0x25, 0x50, 0x44, 0x46}, blob.Data)
}

func TestDeleteValue(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := testSchema(t, conn)
	e := createEntity(t, conn, sc)

	s := newSession(t, conn)
	require.NoError(t, s.SetValue(e, "comment", "bye"))
	require.NoError(t, s.DeleteValue(e, "comment"))
	require.NoError(t, s.DeleteValue(e, "comment"), "deleting absent values is a no-op")
	require.NoError(t, s.Commit())

	v, err := GetValue(conn, e, "comment")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestItems(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := testSchema(t, conn)
	e := createEntity(t, conn, sc)

	s := newSession(t, conn)
	require.NoError(t, s.SetValue(e, "comment", "hi"))
	require.NoError(t, s.SetValue(e, "symptoms", []string{"cough"}))
	require.NoError(t, s.Commit())

	items, err := Items(conn, e)
	require.NoError(t, err)
	require.Len(t, items, len(sc.Attributes))

	assert.Equal(t, "comment", items[0].Name, "items follow attribute order")
	assert.Equal(t, "hi", items[0].Value)
	assert.Equal(t, "ok", items[1].Name)
	assert.Nil(t, items[1].Value)
	assert.Equal(t, []any{"cough"}, items[7].Value)
}

func TestNestedObjectValues(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := publishAndLoad(t, conn, &schema.Schema{
		Name: "enrollment", Title: "Enrollment",
		PublishDate: schema.DatePtr(2020, time.January, 1),
		Attributes: []*schema.Attribute{
			{Name: "site", Title: "Site", Type: schema.String, Order: 0},
			{
				Name: "contact", Title: "Contact", Type: schema.Object, Order: 1,
				ObjectSchema: &schema.Schema{
					Name: "enrollment_contact", Title: "Contact",
					Attributes: []*schema.Attribute{
						{Name: "phone", Title: "Phone", Type: schema.String, Order: 0},
					},
				},
			},
		},
	})
	e := createEntity(t, conn, sc)

	s := newSession(t, conn)
	require.NoError(t, s.SetValue(e, "contact.phone", "555-0100"))
	require.NoError(t, s.Commit())

	v, err := GetValue(conn, e, "contact.phone")
	require.NoError(t, err)
	assert.Equal(t, "555-0100", v)

	items, err := Items(conn, e)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "contact.phone", items[1].Name, "object attributes flatten to dotted paths")
}

func TestUnknownAttribute(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sc := testSchema(t, conn)
	e := createEntity(t, conn, sc)

	_, err := GetValue(conn, e, "nope")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	s := newSession(t, conn)
	defer s.Rollback()
	assert.ErrorIs(t, s.SetValue(e, "nope", "x"), errors.ErrNotFound)
}
