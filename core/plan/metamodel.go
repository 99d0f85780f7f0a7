package plan

import "github.com/cyfko/filterql/core/filter"

// FieldMetadata describes one attribute of an entity as seen by the
// planner: its declared kind, whether it is an embedded object (free-form
// nested scalar paths), whether it navigates a to-many relation, the
// related entity for relations and the inverse reference field when the
// mapping declares one.
type FieldMetadata struct {
	Kind          filter.Kind
	IsObject      bool
	IsCollection  bool
	RelatedEntity string
	MappedBy      string
}

// MetamodelSnapshot is the backend's description of the entity graph the
// planner navigates. Implementations must be immutable for the lifetime of
// a plan.
type MetamodelSnapshot interface {
	// IDFields lists the identifier field names of an entity.
	IDFields(entity string) ([]string, error)
	// Field resolves one attribute of an entity.
	Field(entity, name string) (FieldMetadata, bool)
	// Fields enumerates every attribute of an entity. Used to discover
	// back-reference fields when a collection declares no inverse mapping.
	Fields(entity string) map[string]FieldMetadata
}

// PathResolution is the outcome of resolving a dotted projection path
// against the metamodel: the segments and the indices of those that
// navigate a to-many relation.
type PathResolution struct {
	Path               string
	Segments           []string
	CollectionSegments []int
}

// IsScalar reports whether the path traverses no to-many relation.
func (p *PathResolution) IsScalar() bool { return len(p.CollectionSegments) == 0 }
