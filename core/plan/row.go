package plan

import "fmt"

// Row is a fixed-size, array-backed buffer holding one result row, typed by
// a shared read-only schema. Slot access is O(1); name access goes through
// the schema's index maps. A row is single-writer during the fetch loop and
// safe to publish to readers afterwards.
type Row struct {
	schema *FieldSchema
	values []any
}

// NewRow allocates a row buffer for the schema.
func NewRow(schema *FieldSchema) *Row {
	return &Row{schema: schema, values: make([]any, schema.TotalSlots())}
}

// Schema returns the row's schema.
func (r *Row) Schema() *FieldSchema { return r.schema }

// Set writes a slot.
func (r *Row) Set(slot int, value any) { r.values[slot] = value }

// At reads a slot.
func (r *Row) At(slot int) any { return r.values[slot] }

// Get resolves a name against the schema: an exact DTO (or entity) path
// returns the slot value; a strict prefix of some schema entry returns a
// NestedView deferring access without allocating intermediate maps; any
// other name is unknown.
func (r *Row) Get(name string) (any, error) {
	if di := r.schema.IndexOfDto(name); di.Index >= 0 {
		return r.values[di.Index], nil
	}
	if slot, ok := r.schema.IndexOfEntity(name); ok {
		return r.values[slot], nil
	}
	if r.schema.HasPrefix(name) {
		return NestedView{row: r, prefix: name}, nil
	}
	return nil, fmt.Errorf("unknown field: %s", name)
}

// Collection returns the child rows attached to the j-th collection slot;
// nil when no rows are attached.
func (r *Row) Collection(j int) []*Row {
	if kids, ok := r.values[r.schema.CollectionSlot(j)].([]*Row); ok {
		return kids
	}
	return nil
}

// ToMap materializes the row into a structured map: scalar slots (internal
// and excluded ones skipped) written through their pre-split nested paths,
// then collection slots recursively materialized under their (possibly
// nested) collection names. Empty collections materialize as empty lists.
func (r *Row) ToMap() map[string]any {
	out := make(map[string]any)
	for i := 0; i < r.schema.FieldCount(); i++ {
		if r.schema.IsInternal(i) || r.schema.IsExcluded(i) {
			continue
		}
		if nested := r.schema.NestedPathAt(i); nested != nil {
			writeNested(out, nested, r.values[i])
		} else {
			out[r.schema.DtoFieldAt(i)] = r.values[i]
		}
	}
	for j := 0; j < r.schema.CollectionCount(); j++ {
		if r.schema.IsExcluded(r.schema.CollectionSlot(j)) {
			continue
		}
		kids := r.Collection(j)
		list := make([]map[string]any, 0, len(kids))
		for _, kid := range kids {
			list = append(list, kid.ToMap())
		}
		name := r.schema.CollectionNameAt(j)
		if nested := splitDots(name); len(nested) > 1 {
			writeNested(out, nested, list)
		} else {
			out[name] = list
		}
	}
	return out
}

// NestedView is a zero-allocation window over a row's fields under a
// common prefix. Access composes the prefix, enabling arbitrary depth
// without materializing intermediate maps.
type NestedView struct {
	row    *Row
	prefix string
}

// Get resolves a subfield relative to the view's prefix.
func (v NestedView) Get(subfield string) (any, error) {
	return v.row.Get(v.prefix + "." + subfield)
}

// Prefix returns the view's path prefix.
func (v NestedView) Prefix() string { return v.prefix }

func writeNested(out map[string]any, path []string, value any) {
	cur := out
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

func splitDots(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
