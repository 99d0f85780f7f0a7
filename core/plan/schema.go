// Package plan holds the projection execution machinery: the immutable
// indexed field schema, the array-backed row buffer with zero-allocation
// nested access, and the planner that turns a projection spec plus a
// metamodel snapshot into a multi-query execution plan.
package plan

import "strings"

// DtoIndex is the tagged result of a DTO-path lookup: the slot index and
// whether the slot holds a collection.
type DtoIndex struct {
	Index        int
	IsCollection bool
}

// NoIndex is the sentinel returned for absent DTO paths.
var NoIndex = DtoIndex{Index: -1}

// FieldSchema is the immutable indexed layout of one row shape: parallel
// arrays mapping slot index to entity path and DTO path, pre-split nested
// DTO paths, internal/computed markers and collection slots appended after
// the scalar slots. Once built the only mutation is the
// serialization-excluded slot set, written during plan finalization.
type FieldSchema struct {
	entityFields []string
	dtoFields    []string
	nestedPaths  [][]string
	internal     []bool
	computed     []bool

	collections []string

	entityIndex map[string]int
	dtoIndex    map[string]DtoIndex
	prefixes    map[string]struct{}

	excluded map[int]struct{}
}

// FieldCount returns the number of scalar slots.
func (s *FieldSchema) FieldCount() int { return len(s.entityFields) }

// CollectionCount returns the number of collection slots.
func (s *FieldSchema) CollectionCount() int { return len(s.collections) }

// TotalSlots returns the row width: scalar slots plus collection slots.
func (s *FieldSchema) TotalSlots() int { return len(s.entityFields) + len(s.collections) }

// EntityFieldAt returns the entity path stored at a scalar slot. Computed
// output slots have no entity path and return "".
func (s *FieldSchema) EntityFieldAt(i int) string { return s.entityFields[i] }

// DtoFieldAt returns the DTO path stored at a scalar slot.
func (s *FieldSchema) DtoFieldAt(i int) string { return s.dtoFields[i] }

// NestedPathAt returns the pre-split DTO path segments of a scalar slot,
// or nil when the path is flat.
func (s *FieldSchema) NestedPathAt(i int) []string { return s.nestedPaths[i] }

// IsInternal reports whether the scalar slot was added for the engine's own
// needs and must not be serialized.
func (s *FieldSchema) IsInternal(i int) bool { return s.internal[i] }

// IsComputed reports whether the scalar slot is a computed-field output.
func (s *FieldSchema) IsComputed(i int) bool { return s.computed[i] }

// CollectionNameAt returns the DTO name of the j-th collection.
func (s *FieldSchema) CollectionNameAt(j int) string { return s.collections[j] }

// CollectionSlot returns the row slot of the j-th collection.
func (s *FieldSchema) CollectionSlot(j int) int { return len(s.entityFields) + j }

// IndexOfEntity resolves an entity path to its scalar slot.
func (s *FieldSchema) IndexOfEntity(path string) (int, bool) {
	i, ok := s.entityIndex[path]
	return i, ok
}

// IndexOfDto resolves a DTO path to its tagged slot; NoIndex when absent.
func (s *FieldSchema) IndexOfDto(path string) DtoIndex {
	if di, ok := s.dtoIndex[path]; ok {
		return di
	}
	return NoIndex
}

// HasPrefix reports whether some schema entry lives under path + ".".
func (s *FieldSchema) HasPrefix(path string) bool {
	_, ok := s.prefixes[path]
	return ok
}

// Exclude marks a slot as serialization-excluded. Called only while the
// execution plan is being finalized.
func (s *FieldSchema) Exclude(slot int) { s.excluded[slot] = struct{}{} }

// IsExcluded reports whether a slot is serialization-excluded.
func (s *FieldSchema) IsExcluded(slot int) bool {
	_, ok := s.excluded[slot]
	return ok
}

// SchemaBuilder assembles a FieldSchema. Scalar fields are deduplicated by
// entity path; collections are appended after the scalar slots at build
// time.
type SchemaBuilder struct {
	entityFields []string
	dtoFields    []string
	internal     []bool
	computed     []bool
	collections  []string
	entityIndex  map[string]int
}

// NewSchemaBuilder creates an empty builder.
func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{entityIndex: map[string]int{}}
}

// AddField registers a scalar slot for an entity path. Duplicate entity
// paths collapse onto the first slot; the slot stays internal only while
// every registration was internal, so a user projection upgrades an
// engine-added slot to a serialized one.
func (b *SchemaBuilder) AddField(entityPath, dtoPath string, internal bool) int {
	if idx, ok := b.entityIndex[entityPath]; ok {
		if b.internal[idx] && !internal {
			b.internal[idx] = false
			b.dtoFields[idx] = dtoPath
		}
		return idx
	}
	idx := len(b.entityFields)
	b.entityFields = append(b.entityFields, entityPath)
	b.dtoFields = append(b.dtoFields, dtoPath)
	b.internal = append(b.internal, internal)
	b.computed = append(b.computed, false)
	b.entityIndex[entityPath] = idx
	return idx
}

// AddComputed registers the output slot of a computed field. The slot has
// no entity path; its value is produced at execution time.
func (b *SchemaBuilder) AddComputed(dtoField string) int {
	idx := len(b.entityFields)
	b.entityFields = append(b.entityFields, "")
	b.dtoFields = append(b.dtoFields, dtoField)
	b.internal = append(b.internal, false)
	b.computed = append(b.computed, true)
	return idx
}

// AddCollection registers a collection slot under its (possibly
// dot-qualified) DTO name and returns the collection ordinal.
func (b *SchemaBuilder) AddCollection(dtoName string) int {
	for j, existing := range b.collections {
		if existing == dtoName {
			return j
		}
	}
	b.collections = append(b.collections, dtoName)
	return len(b.collections) - 1
}

// Build freezes the schema: lookup maps are computed, nested DTO paths are
// pre-split, collection slots are laid out after the scalar slots.
func (b *SchemaBuilder) Build() *FieldSchema {
	s := &FieldSchema{
		entityFields: b.entityFields,
		dtoFields:    b.dtoFields,
		internal:     b.internal,
		computed:     b.computed,
		collections:  b.collections,
		entityIndex:  map[string]int{},
		dtoIndex:     map[string]DtoIndex{},
		prefixes:     map[string]struct{}{},
		excluded:     map[int]struct{}{},
	}
	s.nestedPaths = make([][]string, len(b.dtoFields))
	for i, dto := range b.dtoFields {
		if b.entityFields[i] != "" {
			s.entityIndex[b.entityFields[i]] = i
		}
		s.dtoIndex[dto] = DtoIndex{Index: i}
		if strings.Contains(dto, ".") {
			s.nestedPaths[i] = strings.Split(dto, ".")
		}
		addPrefixes(s.prefixes, dto)
	}
	for j, name := range b.collections {
		s.dtoIndex[name] = DtoIndex{Index: len(b.entityFields) + j, IsCollection: true}
		addPrefixes(s.prefixes, name)
	}
	return s
}

func addPrefixes(prefixes map[string]struct{}, path string) {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			prefixes[path[:i]] = struct{}{}
		}
	}
}
