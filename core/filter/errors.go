package filter

import (
	"fmt"
	"sort"
	"strings"
)

// FilterDefinitionError reports a structurally invalid filter definition or
// a missing piece of the request at resolution time (e.g. an argument key
// referenced by the condition tree that is absent from the execution
// parameters).
type FilterDefinitionError struct {
	Key     string
	Message string
}

func (e *FilterDefinitionError) Error() string {
	if e.Key == "" {
		return "filter definition: " + e.Message
	}
	return fmt.Sprintf("filter definition %q: %s", e.Key, e.Message)
}

// FilterValidationError reports a semantic mismatch between a property
// reference, an operator and a value: the property does not support the
// operator, a custom operator has no registered provider, or the operand
// shape is wrong for the operator.
type FilterValidationError struct {
	Ref     string
	Op      string
	Message string
}

func (e *FilterValidationError) Error() string {
	switch {
	case e.Ref != "" && e.Op != "":
		return fmt.Sprintf("filter validation: property %s with operator %s: %s", e.Ref, e.Op, e.Message)
	case e.Ref != "":
		return fmt.Sprintf("filter validation: property %s: %s", e.Ref, e.Message)
	default:
		return "filter validation: " + e.Message
	}
}

// UndefinedReference builds the error raised when a DSL identifier has no
// matching entry in the request's filter map. The available keys are listed
// sorted so the message is stable.
func UndefinedReference(id string, available []string) error {
	keys := append([]string(nil), available...)
	sort.Strings(keys)
	return &FilterDefinitionError{
		Key:     id,
		Message: fmt.Sprintf("undefined reference id; available: %s", strings.Join(keys, ", ")),
	}
}
