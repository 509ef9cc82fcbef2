package report

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	itesting "github.com/cordate/datastore/internal/testing"
	"github.com/cordate/datastore/schema"
	"github.com/cordate/datastore/storage"
)

func publish(t *testing.T, conn *sql.DB, sc *schema.Schema) *schema.Schema {
	t.Helper()
	s, err := storage.NewSession(conn, storage.Actor(itesting.TestUser), nil)
	require.NoError(t, err)
	require.NoError(t, s.InsertSchema(sc))
	require.NoError(t, s.Commit())
	loaded, err := storage.LoadSchema(conn, sc.ID)
	require.NoError(t, err)
	return loaded
}

// two publications of "sample": foo persists unchanged, weight is retitled,
// bar is new in v2, severity gains a choice code. v2 also reorders the form.
func sampleLineage(t *testing.T, conn *sql.DB) (*schema.Schema, *schema.Schema) {
	t.Helper()
	v1 := publish(t, conn, &schema.Schema{
		Name: "sample", Title: "Sample", Description: "a form",
		PublishDate: schema.DatePtr(2020, time.January, 1),
		Attributes: []*schema.Attribute{
			{Name: "foo", Title: "Foo", Type: schema.String, Order: 0},
			{Name: "weight", Title: "Weight", Type: schema.Decimal, Order: 1},
			{Name: "severity", Title: "Severity", Type: schema.TypeChoice, Order: 2,
				Choices: []*schema.Choice{
					{Name: "0", Title: "Mild", Order: 0},
					{Name: "1", Title: "Severe", Order: 1},
				}},
		},
	})
	v2 := publish(t, conn, &schema.Schema{
		Name: "sample", Title: "Sample", Description: "a form",
		PublishDate: schema.DatePtr(2021, time.January, 1),
		Attributes: []*schema.Attribute{
			{Name: "bar", Title: "Bar", Type: schema.Integer, Order: 0},
			{Name: "foo", Title: "Foo", Type: schema.String, Order: 1},
			{Name: "weight", Title: "Weight (kg)", Type: schema.Decimal, Order: 2},
			{Name: "severity", Title: "Severity", Type: schema.TypeChoice, Order: 3,
				Choices: []*schema.Choice{
					{Name: "0", Title: "Mild", Order: 0},
					{Name: "1", Title: "Severe", Order: 1},
					{Name: "2", Title: "Fatal", Order: 2},
				}},
		},
	})
	return v1, v2
}

func columnKeys(plan *ColumnPlan) []string {
	keys := make([]string, len(plan.Columns))
	for i, c := range plan.Columns {
		keys[i] = c.Key
	}
	return keys
}

func TestGetColumnPlanByName(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sampleLineage(t, conn)

	plan, err := GetColumnPlan(conn, "sample", ByName, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"bar", "foo", "weight", "severity"}, columnKeys(plan),
		"columns follow the latest publication's order")

	foo := plan.Get("foo")
	require.NotNil(t, foo)
	require.Len(t, foo.Attributes, 2, "all versions of a name collapse into one column")
	assert.Equal(t, []string{"2020-01-01", "2021-01-01"}, foo.Publications,
		"versions accumulate oldest publication first")

	bar := plan.Get("bar")
	require.NotNil(t, bar)
	assert.Len(t, bar.Attributes, 1)
}

func TestGetColumnPlanByChecksum(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sampleLineage(t, conn)

	plan, err := GetColumnPlan(conn, "sample", ByChecksum, false)
	require.NoError(t, err)

	var fooCols, weightCols, severityCols int
	for _, c := range plan.Columns {
		switch c.Name {
		case "foo":
			fooCols++
			assert.Len(t, c.Attributes, 2, "an unchanged field merges across publications")
		case "weight":
			weightCols++
		case "severity":
			severityCols++
		}
	}
	assert.Equal(t, 1, fooCols)
	assert.Equal(t, 2, weightCols, "a retitled field starts a new column")
	assert.Equal(t, 1, severityCols, "choice additions alone do not change the checksum")
}

func TestGetColumnPlanByID(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sampleLineage(t, conn)

	plan, err := GetColumnPlan(conn, "sample", ByID, false)
	require.NoError(t, err)

	// 2 foo + 2 weight + 2 severity + 1 bar, never merged
	assert.Len(t, plan.Columns, 7)
	for _, c := range plan.Columns {
		assert.Len(t, c.Attributes, 1)
	}
}

func TestGetColumnPlanExpanded(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	sampleLineage(t, conn)

	plan, err := GetColumnPlan(conn, "sample", ByName, true)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"bar", "foo", "weight", "severity-0", "severity-1", "severity-2"},
		columnKeys(plan))

	s0 := plan.Get("severity-0")
	require.NotNil(t, s0)
	require.NotNil(t, s0.Choice)
	assert.Len(t, s0.Attributes, 2, "the code exists in both publications")

	s2 := plan.Get("severity-2")
	require.NotNil(t, s2)
	assert.Len(t, s2.Attributes, 1, "the code was introduced in v2")
}

func TestGetColumnPlanNestedObject(t *testing.T) {
	conn := itesting.CreateTestDB(t)
	publish(t, conn, &schema.Schema{
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
						{Name: "email", Title: "Email", Type: schema.String, Order: 1},
					},
				},
			},
		},
	})

	plan, err := GetColumnPlan(conn, "enrollment", ByName, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"site", "contact.phone", "contact.email"}, columnKeys(plan),
		"sub-schema fields flatten into the parent's namespace")
}

func TestGetColumnPlanUnknownSchema(t *testing.T) {
	conn := itesting.CreateTestDB(t)

	plan, err := GetColumnPlan(conn, "nothing", ByName, false)
	require.NoError(t, err)
	assert.Empty(t, plan.Columns)
}
