// Package sqlite provides the reference relational backend for the engine:
// an entity metamodel over plain tables, a predicate compiler translating
// resolved filter trees into SQLite WHERE clauses, and the query executor
// the multi-query fetch strategy drives.
package sqlite

import (
	"fmt"
	"strings"

	"github.com/cyfko/filterql/core/filter"
	"github.com/cyfko/filterql/core/plan"
)

// FieldDefinition describes one attribute of an entity: its column, its
// declared kind, and the relation metadata for embedded objects and
// collections. Object columns hold JSON documents and admit nested paths;
// collection fields navigate to a child entity keyed back to the parent by
// the MappedBy column.
type FieldDefinition struct {
	Column     string
	Kind       filter.Kind
	Object     bool
	Collection bool
	Element    string
	MappedBy   string
}

// EntityDefinition maps one entity onto its table: the physical table
// name, the identifier fields and the attribute definitions.
type EntityDefinition struct {
	Name     string
	Table    string
	IDFields []string
	Fields   map[string]FieldDefinition
}

// Metamodel is the immutable snapshot of the entity graph the planner and
// the backend share.
type Metamodel struct {
	entities map[string]*EntityDefinition
}

// Ensure the metamodel satisfies the planner's snapshot contract.
var _ plan.MetamodelSnapshot = (*Metamodel)(nil)

// NewMetamodel indexes and validates entity definitions: tables and IDs
// must be declared, ID fields must exist, and every collection must name a
// registered element entity.
func NewMetamodel(defs ...*EntityDefinition) (*Metamodel, error) {
	m := &Metamodel{entities: make(map[string]*EntityDefinition, len(defs))}
	for _, def := range defs {
		if def.Name == "" || def.Table == "" {
			return nil, fmt.Errorf("entity definition requires a name and a table")
		}
		if len(def.IDFields) == 0 {
			return nil, fmt.Errorf("entity %s declares no id fields", def.Name)
		}
		if _, dup := m.entities[def.Name]; dup {
			return nil, fmt.Errorf("duplicate entity %s", def.Name)
		}
		m.entities[def.Name] = def
	}
	for _, def := range m.entities {
		for _, id := range def.IDFields {
			if _, ok := def.Fields[id]; !ok {
				return nil, fmt.Errorf("entity %s: id field %q is not declared", def.Name, id)
			}
		}
		for name, field := range def.Fields {
			if field.Collection {
				if _, ok := m.entities[field.Element]; !ok {
					return nil, fmt.Errorf("entity %s: collection %q names unknown element entity %q", def.Name, name, field.Element)
				}
			}
		}
	}
	return m, nil
}

// Entity resolves an entity definition by name.
func (m *Metamodel) Entity(name string) (*EntityDefinition, error) {
	def, ok := m.entities[name]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", name)
	}
	return def, nil
}

// IDFields implements plan.MetamodelSnapshot.
func (m *Metamodel) IDFields(entity string) ([]string, error) {
	def, err := m.Entity(entity)
	if err != nil {
		return nil, err
	}
	return def.IDFields, nil
}

// Field implements plan.MetamodelSnapshot.
func (m *Metamodel) Field(entity, name string) (plan.FieldMetadata, bool) {
	def, ok := m.entities[entity]
	if !ok {
		return plan.FieldMetadata{}, false
	}
	field, ok := def.Fields[name]
	if !ok {
		return plan.FieldMetadata{}, false
	}
	return plan.FieldMetadata{
		Kind:          field.Kind,
		IsObject:      field.Object,
		IsCollection:  field.Collection,
		RelatedEntity: field.Element,
		MappedBy:      field.MappedBy,
	}, true
}

// Fields implements plan.MetamodelSnapshot.
func (m *Metamodel) Fields(entity string) map[string]plan.FieldMetadata {
	def, ok := m.entities[entity]
	if !ok {
		return nil
	}
	out := make(map[string]plan.FieldMetadata, len(def.Fields))
	for name := range def.Fields {
		md, _ := m.Field(entity, name)
		out[name] = md
	}
	return out
}

// column returns the physical column of an attribute, defaulting to the
// attribute name.
func (d *EntityDefinition) column(name string) (FieldDefinition, string, error) {
	field, ok := d.Fields[name]
	if !ok {
		return FieldDefinition{}, "", fmt.Errorf("field %q not found on entity %s", name, d.Name)
	}
	col := field.Column
	if col == "" {
		col = name
	}
	return field, col, nil
}

// quoteIdentifier safely quotes an identifier for use in a SQLite query.
func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// accessor translates a dotted attribute path into the SQL accessor:
// plain columns directly, object columns through json_extract.
func (d *EntityDefinition) accessor(path string) (string, error) {
	head, rest, nested := strings.Cut(path, ".")
	field, col, err := d.column(head)
	if err != nil {
		return "", err
	}
	if !nested {
		return quoteIdentifier(col), nil
	}
	if !field.Object {
		return "", fmt.Errorf("field %q of entity %s does not support nested querying", head, d.Name)
	}
	return fmt.Sprintf("json_extract(%s, '$.%s')", quoteIdentifier(col), rest), nil
}
