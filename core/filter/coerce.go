package filter

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// CoercePolicy carries the knobs coercion honours. Null handling is not a
// coercion concern; the context applies the null-value policy before values
// reach this code.
type CoercePolicy struct {
	EnumMatch  EnumMatchMode
	StringCase StringCaseStrategy
}

// Coerce converts a raw operand to the reference's declared kind. A nil
// value stays nil.
func Coerce(ref PropertyReference, value any, policy CoercePolicy) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch ref.Kind() {
	case KindString:
		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, coerceError(ref, value, err)
		}
		return applyStringCase(s, policy.StringCase), nil
	case KindInt:
		n, err := cast.ToInt64E(value)
		if err != nil {
			return nil, coerceError(ref, value, err)
		}
		return n, nil
	case KindFloat:
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, coerceError(ref, value, err)
		}
		return f, nil
	case KindBool:
		return coerceBool(ref, value)
	case KindTime:
		return coerceTime(ref, value)
	case KindUUID:
		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, coerceError(ref, value, err)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, coerceError(ref, value, err)
		}
		return id, nil
	case KindEnum:
		return coerceEnum(ref, value, policy.EnumMatch)
	default:
		// Unknown declared kinds fall back to the canonical string form.
		s, err := cast.ToStringE(value)
		if err != nil {
			return nil, coerceError(ref, value, err)
		}
		return s, nil
	}
}

// CoerceList converts a multi-valued operand to an ordered sequence of
// coerced elements. Sequences, arrays and comma-delimited strings are
// accepted.
func CoerceList(ref PropertyReference, value any, policy CoercePolicy) ([]any, error) {
	if value == nil {
		return nil, nil
	}
	var elements []any
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elements = make([]any, rv.Len())
		for i := range elements {
			elements[i] = rv.Index(i).Interface()
		}
	case reflect.String:
		for _, part := range strings.Split(rv.String(), ",") {
			elements = append(elements, strings.TrimSpace(part))
		}
	default:
		elements = []any{value}
	}

	coerced := make([]any, 0, len(elements))
	for _, element := range elements {
		v, err := Coerce(ref, element, policy)
		if err != nil {
			return nil, err
		}
		coerced = append(coerced, v)
	}
	return coerced, nil
}

// coerceBool accepts the literal set {true,false,yes,no,y,n,oui,1,0} plus
// any numeric value, where non-zero means true.
func coerceBool(ref PropertyReference, value any) (any, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}
	if f, err := cast.ToFloat64E(value); err == nil {
		if _, isString := value.(string); !isString {
			return f != 0, nil
		}
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return nil, coerceError(ref, value, err)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "oui", "1":
		return true, nil
	case "false", "no", "n", "0":
		return false, nil
	}
	if f, err := cast.ToFloat64E(s); err == nil {
		return f != 0, nil
	}
	return nil, coerceError(ref, value, fmt.Errorf("not a boolean literal"))
}

// coerceTime accepts time.Time values, epoch milliseconds and ISO-8601 /
// RFC 3339 strings (with a date-only fallback).
func coerceTime(ref PropertyReference, value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case int, int32, int64, float32, float64:
		millis, err := cast.ToInt64E(v)
		if err != nil {
			return nil, coerceError(ref, value, err)
		}
		return time.UnixMilli(millis).UTC(), nil
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return nil, coerceError(ref, value, err)
	}
	s = strings.TrimSpace(s)
	if millis, err := cast.ToInt64E(s); err == nil {
		return time.UnixMilli(millis).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, coerceError(ref, value, fmt.Errorf("not an ISO-8601 timestamp or epoch millis"))
}

func coerceEnum(ref PropertyReference, value any, mode EnumMatchMode) (any, error) {
	s, err := cast.ToStringE(value)
	if err != nil {
		return nil, coerceError(ref, value, err)
	}
	for _, candidate := range ref.EnumValues() {
		if candidate == s {
			return candidate, nil
		}
		if mode == EnumMatchFold && strings.EqualFold(candidate, s) {
			return candidate, nil
		}
	}
	return nil, &FilterValidationError{
		Ref:     ref.Name(),
		Message: fmt.Sprintf("unknown enum value %q (admissible: %s)", s, strings.Join(ref.EnumValues(), ", ")),
	}
}

func applyStringCase(s string, strategy StringCaseStrategy) string {
	switch strategy {
	case StringCaseLower:
		return strings.ToLower(s)
	case StringCaseUpper:
		return strings.ToUpper(s)
	default:
		return s
	}
}

func coerceError(ref PropertyReference, value any, cause error) error {
	return &FilterValidationError{
		Ref:     ref.Name(),
		Message: fmt.Sprintf("cannot coerce %T value to %s: %v", value, ref.Kind(), cause),
	}
}
