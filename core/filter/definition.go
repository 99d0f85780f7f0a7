package filter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SortDirection specifies the direction of a sort key.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortSpec is one (field, direction) pair of an ordered sort sequence.
type SortSpec struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Pagination describes an offset page plus an ordered sort sequence. It is
// used both for the top-level result page and, per collection path, for
// in-parent collection pages.
type Pagination struct {
	Page int        `json:"page"`
	Size int        `json:"size"`
	Sort []SortSpec `json:"sort,omitempty"`
}

// Equal reports whether two paginations describe the same page and sort
// sequence. Used to detect conflicting per-collection options.
func (p *Pagination) Equal(o *Pagination) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Page != o.Page || p.Size != o.Size || len(p.Sort) != len(o.Sort) {
		return false
	}
	for i, s := range p.Sort {
		if o.Sort[i] != s {
			return false
		}
	}
	return true
}

// FilterDefinition is one atomic (ref, op, value) triple. The operator code
// is canonical (uppercase, never blank); for custom operators Op is OpCustom
// and Code carries the registry code. Validation is lazy: construction only
// rejects a blank operator, semantic compatibility is checked when the
// definition becomes a condition.
type FilterDefinition struct {
	Ref   string
	Op    Op
	Code  string
	Value any
}

// NewDefinition builds a filter definition from a raw operator token (symbol,
// canonical code or custom code).
func NewDefinition(ref, op string, value any) (FilterDefinition, error) {
	parsed, code, err := ParseOp(op)
	if err != nil {
		return FilterDefinition{}, err
	}
	return FilterDefinition{Ref: ref, Op: parsed, Code: code, Value: value}, nil
}

// MustDefinition is NewDefinition for statically known operators; it panics
// on a blank or invalid operator token.
func MustDefinition(ref, op string, value any) FilterDefinition {
	def, err := NewDefinition(ref, op, value)
	if err != nil {
		panic(err)
	}
	return def
}

// UnmarshalJSON decodes the on-wire definition shape
// {"ref": ..., "op": ..., "value": ...}, accepting operator symbols,
// canonical codes and custom codes.
func (d *FilterDefinition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Ref   string          `json:"ref"`
		Op    string          `json:"op"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var value any
	if len(raw.Value) > 0 {
		if err := json.Unmarshal(raw.Value, &value); err != nil {
			return fmt.Errorf("failed to decode filter value: %w", err)
		}
	}
	def, err := NewDefinition(raw.Ref, raw.Op, value)
	if err != nil {
		return err
	}
	*d = def
	return nil
}

// MarshalJSON encodes the definition back into the wire shape using the
// canonical operator code.
func (d FilterDefinition) MarshalJSON() ([]byte, error) {
	code := string(d.Op)
	if d.Op == OpCustom {
		code = d.Code
	}
	return json.Marshal(map[string]any{
		"ref":   d.Ref,
		"op":    code,
		"value": d.Value,
	})
}

// FilterRequest is the declarative request the engine compiles: a map of
// atomic filter definitions keyed by opaque identifiers, a boolean DSL
// composing them, an optional projection and optional pagination.
type FilterRequest struct {
	Filters     map[string]FilterDefinition `json:"filters"`
	CombineWith string                      `json:"combineWith"`
	Projection  []string                    `json:"projection,omitempty"`
	Pagination  *Pagination                 `json:"pagination,omitempty"`
}

// Keys returns the filter identifiers of the request.
func (r *FilterRequest) Keys() []string {
	keys := make([]string, 0, len(r.Filters))
	for key := range r.Filters {
		keys = append(keys, key)
	}
	return keys
}

// UnmarshalJSON decodes the wire payload, normalizing sort directions.
func (r *FilterRequest) UnmarshalJSON(data []byte) error {
	type alias FilterRequest
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Pagination != nil {
		for i, s := range raw.Pagination.Sort {
			switch strings.ToLower(string(s.Direction)) {
			case "", string(SortAsc):
				raw.Pagination.Sort[i].Direction = SortAsc
			case string(SortDesc):
				raw.Pagination.Sort[i].Direction = SortDesc
			default:
				return &FilterDefinitionError{Message: fmt.Sprintf("invalid sort direction %q", s.Direction)}
			}
		}
		if raw.Pagination.Page < 0 {
			return &FilterDefinitionError{Message: "pagination page cannot be negative"}
		}
		if raw.Pagination.Size < 1 {
			return &FilterDefinitionError{Message: "pagination size must be at least 1"}
		}
	}
	*r = FilterRequest(raw)
	return nil
}

// ExecutionParams binds a shaped request to one concrete execution: the
// argument values referenced by the condition tree, the projection and the
// top-level pagination.
type ExecutionParams struct {
	Arguments  map[string]any
	Projection []string
	Pagination *Pagination
}
