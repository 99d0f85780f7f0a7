package sqlite

import (
	"testing"

	"github.com/cyfko/filterql/core/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetamodel_Validation(t *testing.T) {
	valid := &EntityDefinition{
		Name:     "User",
		Table:    "users",
		IDFields: []string{"id"},
		Fields:   map[string]FieldDefinition{"id": {Kind: filter.KindInt}},
	}

	_, err := NewMetamodel(valid)
	require.NoError(t, err)

	_, err = NewMetamodel(&EntityDefinition{Table: "users", IDFields: []string{"id"}})
	assert.Error(t, err)

	_, err = NewMetamodel(&EntityDefinition{Name: "User", Table: "users"})
	assert.Error(t, err)

	_, err = NewMetamodel(&EntityDefinition{
		Name: "User", Table: "users", IDFields: []string{"missing"},
		Fields: map[string]FieldDefinition{"id": {Kind: filter.KindInt}},
	})
	assert.Error(t, err, "id fields must be declared")

	_, err = NewMetamodel(valid, valid)
	assert.Error(t, err, "duplicate entities are rejected")

	_, err = NewMetamodel(&EntityDefinition{
		Name: "User", Table: "users", IDFields: []string{"id"},
		Fields: map[string]FieldDefinition{
			"id":    {Kind: filter.KindInt},
			"books": {Collection: true, Element: "Book"},
		},
	})
	assert.Error(t, err, "collections must name registered element entities")
}

func TestMetamodel_SnapshotContract(t *testing.T) {
	meta := libraryMetamodel(t)

	ids, err := meta.IDFields("User")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, ids)

	_, err = meta.IDFields("Nope")
	assert.Error(t, err)

	md, ok := meta.Field("User", "books")
	require.True(t, ok)
	assert.True(t, md.IsCollection)
	assert.Equal(t, "Book", md.RelatedEntity)
	assert.Equal(t, "user_id", md.MappedBy)

	md, ok = meta.Field("User", "address")
	require.True(t, ok)
	assert.True(t, md.IsObject)

	_, ok = meta.Field("User", "missing")
	assert.False(t, ok)

	fields := meta.Fields("Book")
	assert.Contains(t, fields, "title")
	assert.Nil(t, meta.Fields("Nope"))
}

func TestEntityDefinition_Accessor(t *testing.T) {
	meta := libraryMetamodel(t)
	user, err := meta.Entity("User")
	require.NoError(t, err)

	accessor, err := user.accessor("name")
	require.NoError(t, err)
	assert.Equal(t, `"name"`, accessor)

	accessor, err = user.accessor("address.city")
	require.NoError(t, err)
	assert.Equal(t, `json_extract("address", '$.city')`, accessor)

	_, err = user.accessor("name.sub")
	assert.Error(t, err, "plain columns reject nested paths")

	_, err = user.accessor("missing")
	assert.Error(t, err)
}
