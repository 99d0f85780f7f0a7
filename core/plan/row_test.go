package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userSchema() *FieldSchema {
	b := NewSchemaBuilder()
	b.AddField("name", "name", false)
	b.AddField("address.city", "address.city", false)
	b.AddField("address.geo.lat", "address.geo.lat", false)
	b.AddField("id", "id", true)
	b.AddCollection("books")
	return b.Build()
}

func TestRow_GetBySlotAndName(t *testing.T) {
	s := userSchema()
	row := NewRow(s)
	row.Set(0, "ada")
	row.Set(1, "london")

	got, err := row.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "ada", got)

	got, err = row.Get("address.city")
	require.NoError(t, err)
	assert.Equal(t, "london", got)

	_, err = row.Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field: nope")
}

func TestRow_NestedView(t *testing.T) {
	s := userSchema()
	row := NewRow(s)
	row.Set(1, "london")
	row.Set(2, 51.5)

	got, err := row.Get("address")
	require.NoError(t, err)
	view, ok := got.(NestedView)
	require.True(t, ok)
	assert.Equal(t, "address", view.Prefix())

	city, err := view.Get("city")
	require.NoError(t, err)
	assert.Equal(t, "london", city)

	// Views compose to arbitrary depth.
	geo, err := view.Get("geo")
	require.NoError(t, err)
	geoView, ok := geo.(NestedView)
	require.True(t, ok)
	lat, err := geoView.Get("lat")
	require.NoError(t, err)
	assert.Equal(t, 51.5, lat)

	_, err = view.Get("missing")
	require.Error(t, err)
}

func TestRow_ToMap(t *testing.T) {
	s := userSchema()
	row := NewRow(s)
	row.Set(0, "ada")
	row.Set(1, "london")
	row.Set(2, 51.5)
	row.Set(3, int64(7))

	child := NewRow(func() *FieldSchema {
		b := NewSchemaBuilder()
		b.AddField("title", "title", false)
		return b.Build()
	}())
	child.Set(0, "sicp")
	row.Set(s.CollectionSlot(0), []*Row{child})

	out := row.ToMap()
	assert.Equal(t, "ada", out["name"])
	address, ok := out["address"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "london", address["city"])
	geo, ok := address["geo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 51.5, geo["lat"])

	_, hasID := out["id"]
	assert.False(t, hasID, "internal slots are not serialized")

	books, ok := out["books"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, books, 1)
	assert.Equal(t, "sicp", books[0]["title"])
}

func TestRow_ToMapMatchesGet(t *testing.T) {
	s := userSchema()
	row := NewRow(s)
	row.Set(0, "ada")
	row.Set(1, "london")
	row.Set(2, 51.5)

	out := row.ToMap()
	for i := 0; i < s.FieldCount(); i++ {
		if s.IsInternal(i) || s.NestedPathAt(i) != nil {
			continue
		}
		name := s.DtoFieldAt(i)
		got, err := row.Get(name)
		require.NoError(t, err)
		assert.Equal(t, out[name], got, "field %s", name)
	}
}

func TestRow_EmptyCollectionMaterializesAsEmptyList(t *testing.T) {
	s := userSchema()
	row := NewRow(s)

	out := row.ToMap()
	books, ok := out["books"].([]map[string]any)
	require.True(t, ok)
	assert.NotNil(t, books)
	assert.Empty(t, books)
}

func TestRow_ExcludedSlotsSkipped(t *testing.T) {
	b := NewSchemaBuilder()
	keep := b.AddField("keep", "keep", false)
	drop := b.AddField("drop", "drop", false)
	s := b.Build()
	s.Exclude(drop)

	row := NewRow(s)
	row.Set(keep, 1)
	row.Set(drop, 2)

	out := row.ToMap()
	assert.Contains(t, out, "keep")
	assert.NotContains(t, out, "drop")
}
