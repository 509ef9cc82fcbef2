package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/cordate/datastore/errors"
)

func TestCopy(t *testing.T) {
	min, max := 1, 10
	original := &Schema{
		ID:          5,
		Name:        "Sample",
		Title:       "Sample Form",
		Description: "a form",
		Storage:     StorageEAV,
		State:       StatePublished,
		PublishDate: DatePtr(2020, time.January, 1),
		CreateDate:  time.Now(),
		Attributes: []*Attribute{
			{
				ID:       11,
				Name:     "foo",
				Title:    "Foo",
				Type:     TypeChoice,
				ValueMin: &min,
				ValueMax: &max,
				Order:    0,
				Choices: []*Choice{
					{ID: 21, Name: "0", Title: "No", Order: 0},
					{ID: 22, Name: "1", Title: "Yes", Order: 1},
				},
			},
			{
				ID:    12,
				Name:  "nested",
				Title: "Nested",
				Type:  Object,
				Order: 1,
				ObjectSchema: &Schema{
					ID:          6,
					Name:        "sample_nested",
					Title:       "Nested Form",
					IsInline:    true,
					PublishDate: DatePtr(2020, time.January, 1),
					Attributes: []*Attribute{
						{ID: 13, Name: "bar", Title: "Bar", Type: Integer, Order: 0},
					},
				},
			},
		},
	}

	clone := original.Copy()

	t.Run("clone is an unpublished draft without identity", func(t *testing.T) {
		assert.Zero(t, clone.ID)
		assert.Equal(t, StateDraft, clone.State)
		assert.Nil(t, clone.PublishDate)
		assert.Nil(t, clone.RetractDate)
		assert.True(t, clone.CreateDate.IsZero())
	})

	t.Run("content carries over", func(t *testing.T) {
		assert.Equal(t, "Sample", clone.Name)
		assert.Equal(t, "Sample Form", clone.Title)
		require.Len(t, clone.Attributes, 2)

		foo := clone.Attribute("foo")
		require.NotNil(t, foo)
		assert.Zero(t, foo.ID)
		assert.Equal(t, TypeChoice, foo.Type)
		require.Len(t, foo.Choices, 2)
		assert.Zero(t, foo.Choices[0].ID)
		assert.Equal(t, "No", foo.Choices[0].Title)
	})

	t.Run("bound pointers are not shared", func(t *testing.T) {
		foo := clone.Attribute("foo")
		require.NotNil(t, foo.ValueMin)
		*foo.ValueMin = 99
		assert.Equal(t, 1, min, "mutating the clone must not touch the original")
	})

	t.Run("object sub-schemata are cloned recursively", func(t *testing.T) {
		nested := clone.Attribute("nested")
		require.NotNil(t, nested.ObjectSchema)
		assert.Zero(t, nested.ObjectSchema.ID)
		assert.Nil(t, nested.ObjectSchema.PublishDate)
		assert.True(t, nested.ObjectSchema.IsInline)
		require.Len(t, nested.ObjectSchema.Attributes, 1)
		assert.Equal(t, "bar", nested.ObjectSchema.Attributes[0].Name)
	})
}

func TestValidate(t *testing.T) {
	t.Run("title required", func(t *testing.T) {
		s := &Schema{Name: "sample"}
		require.Error(t, s.Validate())
	})

	t.Run("multiple bases rejected", func(t *testing.T) {
		s := &Schema{
			Name:  "sample",
			Title: "Sample",
			Bases: []*Schema{
				{Name: "base_a", Title: "A"},
				{Name: "base_b", Title: "B"},
			},
		}
		err := s.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, dserrors.ErrMultipleBases)
	})

	t.Run("object attribute without sub-schema rejected", func(t *testing.T) {
		s := &Schema{
			Name:  "sample",
			Title: "Sample",
			Attributes: []*Attribute{
				{Name: "nested", Title: "Nested", Type: Object},
			},
		}
		require.Error(t, s.Validate())
	})

	t.Run("well-formed schema passes", func(t *testing.T) {
		s := &Schema{
			Name:  "sample",
			Title: "Sample",
			Attributes: []*Attribute{
				{Name: "foo", Title: "Foo", Type: String},
			},
		}
		require.NoError(t, s.Validate())
	})
}
