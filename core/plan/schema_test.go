package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaBuilder_Layout(t *testing.T) {
	b := NewSchemaBuilder()
	nameSlot := b.AddField("name", "name", false)
	citySlot := b.AddField("address.city", "address.city", false)
	idSlot := b.AddField("id", "id", true)
	booksOrdinal := b.AddCollection("books")
	s := b.Build()

	assert.Equal(t, 3, s.FieldCount())
	assert.Equal(t, 1, s.CollectionCount())
	assert.Equal(t, 4, s.TotalSlots())
	assert.Equal(t, 3, s.CollectionSlot(booksOrdinal))
	assert.Equal(t, "books", s.CollectionNameAt(booksOrdinal))

	assert.Equal(t, "name", s.EntityFieldAt(nameSlot))
	assert.Equal(t, []string{"address", "city"}, s.NestedPathAt(citySlot))
	assert.Nil(t, s.NestedPathAt(nameSlot))
	assert.True(t, s.IsInternal(idSlot))
	assert.False(t, s.IsInternal(nameSlot))

	// Invariant: entityIndex[entityFields[i]] == i for every scalar slot.
	for i := 0; i < s.FieldCount(); i++ {
		slot, ok := s.IndexOfEntity(s.EntityFieldAt(i))
		require.True(t, ok)
		assert.Equal(t, i, slot)
	}

	di := s.IndexOfDto("books")
	assert.True(t, di.IsCollection)
	assert.Equal(t, 3, di.Index)

	assert.Equal(t, NoIndex, s.IndexOfDto("missing"))
}

func TestSchemaBuilder_DeduplicatesAndUpgradesInternal(t *testing.T) {
	b := NewSchemaBuilder()
	first := b.AddField("id", "id", true)
	second := b.AddField("id", "id", false)
	assert.Equal(t, first, second)

	s := b.Build()
	assert.Equal(t, 1, s.FieldCount())
	assert.False(t, s.IsInternal(first), "non-internal addition clears the internal flag")

	// The other direction keeps the slot serialized.
	b = NewSchemaBuilder()
	first = b.AddField("id", "id", false)
	second = b.AddField("id", "id", true)
	assert.Equal(t, first, second)
	assert.False(t, b.Build().IsInternal(first))
}

func TestSchemaBuilder_ComputedSlots(t *testing.T) {
	b := NewSchemaBuilder()
	b.AddField("name", "name", false)
	slot := b.AddComputed("score")
	s := b.Build()

	assert.True(t, s.IsComputed(slot))
	assert.Equal(t, "", s.EntityFieldAt(slot))
	assert.Equal(t, slot, s.IndexOfDto("score").Index)
}

func TestSchemaBuilder_CollectionDedup(t *testing.T) {
	b := NewSchemaBuilder()
	assert.Equal(t, b.AddCollection("books"), b.AddCollection("books"))
	assert.Equal(t, 1, b.Build().CollectionCount())
}

func TestFieldSchema_Prefixes(t *testing.T) {
	b := NewSchemaBuilder()
	b.AddField("address.geo.lat", "address.geo.lat", false)
	s := b.Build()

	assert.True(t, s.HasPrefix("address"))
	assert.True(t, s.HasPrefix("address.geo"))
	assert.False(t, s.HasPrefix("address.geo.lat"))
	assert.False(t, s.HasPrefix("geo"))
}

func TestFieldSchema_Excluded(t *testing.T) {
	b := NewSchemaBuilder()
	slot := b.AddField("secret", "secret", false)
	s := b.Build()

	assert.False(t, s.IsExcluded(slot))
	s.Exclude(slot)
	assert.True(t, s.IsExcluded(slot))
}
