package filter

import "strings"

// Kind enumerates the declared value types a filterable property can have.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "integer"
	KindFloat  Kind = "number"
	KindBool   Kind = "boolean"
	KindTime   Kind = "time"
	KindUUID   Kind = "uuid"
	KindEnum   Kind = "enum"
)

// PropertyReference identifies a filterable attribute. Implementations are
// immutable: a declared value kind, a declared supported-operator set and the
// owning entity type. A finite set of references per entity is the contract
// between the caller and the engine.
type PropertyReference interface {
	// Name is the identifier the request uses to refer to this property.
	Name() string
	// Kind is the declared value type used by coercion.
	Kind() Kind
	// EnumValues lists the admissible values for KindEnum properties.
	EnumValues() []string
	// Supports reports whether the property admits the given operator.
	Supports(op Op) bool
	// EntityType names the owning entity.
	EntityType() string
	// Path is the entity attribute path the property maps to. It defaults
	// to the name but may navigate an embedded object ("address.city").
	Path() string
}

// BasicReference is the canonical PropertyReference implementation.
type BasicReference struct {
	name   string
	path   string
	kind   Kind
	values []string
	ops    map[Op]struct{}
	entity string
}

// NewReference builds an immutable property reference. The attribute path
// defaults to the name; use WithPath to override it.
func NewReference(name string, kind Kind, entity string, ops ...Op) *BasicReference {
	set := make(map[Op]struct{}, len(ops))
	for _, op := range ops {
		set[op] = struct{}{}
	}
	return &BasicReference{name: name, path: name, kind: kind, ops: set, entity: entity}
}

// WithPath returns a copy of the reference bound to a different entity
// attribute path.
func (r *BasicReference) WithPath(path string) *BasicReference {
	clone := *r
	clone.path = path
	return &clone
}

// WithEnumValues returns a copy of the reference carrying the admissible
// enum values.
func (r *BasicReference) WithEnumValues(values ...string) *BasicReference {
	clone := *r
	clone.values = append([]string(nil), values...)
	return &clone
}

func (r *BasicReference) Name() string         { return r.name }
func (r *BasicReference) Path() string         { return r.path }
func (r *BasicReference) Kind() Kind           { return r.kind }
func (r *BasicReference) EnumValues() []string { return r.values }
func (r *BasicReference) EntityType() string   { return r.entity }

func (r *BasicReference) Supports(op Op) bool {
	_, ok := r.ops[op]
	return ok
}

// ComparableOps is the operator set usually granted to ordered scalar
// properties.
func ComparableOps() []Op {
	return []Op{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpIsNull, OpNotNull, OpRange, OpNotRange}
}

// TextOps is the operator set usually granted to string properties.
func TextOps() []Op {
	return append(ComparableOps(), OpMatches, OpNotMatches, OpCustom)
}

// References is the finite enumeration of filterable properties for an
// entity, keyed case-insensitively by name.
type References map[string]PropertyReference

// NewReferences indexes the given references by their (lowercased) names.
func NewReferences(refs ...PropertyReference) References {
	m := make(References, len(refs))
	for _, ref := range refs {
		m[strings.ToLower(ref.Name())] = ref
	}
	return m
}

// Lookup resolves a property by name, case-insensitively.
func (r References) Lookup(name string) (PropertyReference, bool) {
	ref, ok := r[strings.ToLower(name)]
	return ref, ok
}
