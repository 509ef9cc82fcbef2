package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	itesting "github.com/cordate/datastore/internal/testing"
	"github.com/cordate/datastore/report"
	"github.com/cordate/datastore/schema"
	"github.com/cordate/datastore/storage"
)

func exportFixture(t *testing.T) (*bytes.Buffer, *report.Report, func() [][]string) {
	t.Helper()
	conn := itesting.CreateTestDB(t)

	s, err := storage.NewSession(conn, storage.Actor(itesting.TestUser), nil)
	require.NoError(t, err)
	sc := &schema.Schema{
		Name: "visit", Title: "Visit",
		PublishDate: schema.DatePtr(2020, time.January, 1),
		Attributes: []*schema.Attribute{
			{Name: "foo", Title: "Foo", Type: schema.String, Order: 0},
			{Name: "count", Title: "Count", Type: schema.Integer, Order: 1},
		},
	}
	require.NoError(t, s.InsertSchema(sc))
	require.NoError(t, s.Commit())

	loaded, err := storage.LoadSchema(conn, sc.ID)
	require.NoError(t, err)

	s, err = storage.NewSession(conn, storage.Actor(itesting.TestUser), nil)
	require.NoError(t, err)
	e := &storage.Entity{Schema: loaded, Name: "subj-001"}
	require.NoError(t, s.CreateEntity(e))
	require.NoError(t, s.SetValue(e, "foo", "hello"))
	require.NoError(t, s.SetValue(e, "count", 3))
	require.NoError(t, s.Commit())

	rep, err := report.Build(conn, "visit", report.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, conn, rep, 0))

	return &buf, rep, func() [][]string {
		records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
		require.NoError(t, err)
		return records
	}
}

func TestWriteReport(t *testing.T) {
	_, _, read := exportFixture(t)
	records := read()

	require.Len(t, records, 2, "header plus one entity")
	header := records[0]
	assert.Equal(t, "id", header[0])
	assert.Contains(t, header, "foo")
	assert.Contains(t, header, "count")

	index := map[string]int{}
	for i, name := range header {
		index[name] = i
	}
	row := records[1]
	assert.Equal(t, "subj-001", row[index["name"]])
	assert.Equal(t, "hello", row[index["foo"]])
	assert.Equal(t, "3", row[index["count"]])
}

func TestWriteCodebook(t *testing.T) {
	_, rep, _ := exportFixture(t)

	var buf bytes.Buffer
	require.NoError(t, WriteCodebook(&buf, rep.Plan, 0))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus one row per plan column")
	assert.Equal(t,
		[]string{"field", "table", "type", "title", "choices", "required", "collection", "publications"},
		records[0])
	assert.Equal(t, "foo", records[1][0])
	assert.Equal(t, "visit", records[1][1])
	assert.Equal(t, "string", records[1][2])
	assert.Equal(t, "2020-01-01", records[1][7])
}
