package plan

import (
	"fmt"
	"strings"
)

// Reducer aggregates a collection-valued dependency into one scalar.
type Reducer string

const (
	ReducerCount Reducer = "COUNT"
	ReducerSum   Reducer = "SUM"
	ReducerAvg   Reducer = "AVG"
	ReducerMin   Reducer = "MIN"
	ReducerMax   Reducer = "MAX"
)

// ParseReducer resolves a reducer name, case-insensitively.
func ParseReducer(name string) (Reducer, error) {
	switch Reducer(strings.ToUpper(name)) {
	case ReducerCount:
		return ReducerCount, nil
	case ReducerSum:
		return ReducerSum, nil
	case ReducerAvg:
		return ReducerAvg, nil
	case ReducerMin:
		return ReducerMin, nil
	case ReducerMax:
		return ReducerMax, nil
	default:
		return "", fmt.Errorf("unknown reducer %q", name)
	}
}

// Dependency is one input of a computed field: an entity path, optionally
// aggregated by a reducer. A reduced dependency does not consume a scalar
// input slot; it is resolved by a grouped sub-query at execution time.
type Dependency struct {
	Path    string
	Reducer Reducer
}

// ComputeFunc evaluates a computed field from its resolved dependency
// values, in declaration order.
type ComputeFunc func(deps []any) (any, error)

// ComputedFieldProvider is the instance form of a computed-field
// evaluator, resolvable through an InstanceResolver.
type ComputedFieldProvider interface {
	Compute(deps []any) (any, error)
}

// ComputedField declares a DTO field whose value is produced by a provider
// over declared dependencies. Provider names an instance for the resolver;
// Compute is the static fallback used when resolution yields nil.
type ComputedField struct {
	Name         string
	Dependencies []Dependency
	Provider     string
	Compute      ComputeFunc
}

// ProviderType is the type name computed-field evaluation passes to the
// InstanceResolver.
const ProviderType = "ComputedFieldProvider"

// InstanceResolver locates provider instances. Resolve is tried with the
// type and name, then with the type alone; returning nil (with a nil
// error) signals the static fallback and is not an error. Implementations
// throw only on critical failures.
type InstanceResolver interface {
	Resolve(typeName, name string) (any, error)
}

// InstanceResolutionError reports a provider that could not be located or
// that has an unusable type.
type InstanceResolutionError struct {
	Type    string
	Name    string
	Message string
}

func (e *InstanceResolutionError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("instance resolution %s/%s: %s", e.Type, e.Name, e.Message)
	}
	return fmt.Sprintf("instance resolution %s: %s", e.Type, e.Message)
}
