package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/cyfko/filterql/core/filter"
	"github.com/google/uuid"
)

// compileFilter recursively builds the WHERE clause for a resolved filter
// tree, appending bind parameters as it goes.
func compileFilter(entity *EntityDefinition, f *filter.ResolvedFilter, params *[]any) (string, error) {
	if f.Condition != nil {
		return compileCondition(entity, f.Condition, params)
	}
	if f.Group != nil {
		if f.Group.Operator == filter.LogicalNot {
			if len(f.Group.Conditions) != 1 {
				return "", fmt.Errorf("NOT group must hold exactly one condition")
			}
			inner, err := compileFilter(entity, &f.Group.Conditions[0], params)
			if err != nil {
				return "", err
			}
			return "NOT (" + inner + ")", nil
		}
		var clauses []string
		for i := range f.Group.Conditions {
			clause, err := compileFilter(entity, &f.Group.Conditions[i], params)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, clause)
		}
		if len(clauses) == 0 {
			return "", fmt.Errorf("empty filter group")
		}
		joiner := " AND "
		if f.Group.Operator == filter.LogicalOr {
			joiner = " OR "
		}
		return "(" + strings.Join(clauses, joiner) + ")", nil
	}
	return "", fmt.Errorf("invalid filter structure")
}

func compileCondition(entity *EntityDefinition, c *filter.ResolvedCondition, params *[]any) (string, error) {
	accessor, err := entity.accessor(c.Ref.Path())
	if err != nil {
		return "", err
	}

	switch c.Op {
	case filter.OpEq, filter.OpNe, filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte,
		filter.OpMatches, filter.OpNotMatches:
		*params = append(*params, bindValue(c.Value))
		return fmt.Sprintf("%s %s ?", accessor, c.Op.Symbol()), nil

	case filter.OpIn, filter.OpNotIn:
		values, ok := c.Value.([]any)
		if !ok || len(values) == 0 {
			// The context rejects empty IN lists; this guard keeps raw
			// resolver trees from producing invalid SQL.
			if c.Op == filter.OpIn {
				return "1=0", nil
			}
			return "1=1", nil
		}
		placeholders := strings.Repeat("?,", len(values)-1) + "?"
		for _, v := range values {
			*params = append(*params, bindValue(v))
		}
		return fmt.Sprintf("%s %s (%s)", accessor, c.Op.Symbol(), placeholders), nil

	case filter.OpIsNull, filter.OpNotNull:
		return fmt.Sprintf("%s %s", accessor, c.Op.Symbol()), nil

	case filter.OpRange, filter.OpNotRange:
		values, ok := c.Value.([]any)
		if !ok || len(values) != 2 {
			return "", fmt.Errorf("%s requires exactly two values", c.Op)
		}
		*params = append(*params, bindValue(values[0]), bindValue(values[1]))
		return fmt.Sprintf("%s %s ? AND ?", accessor, c.Op.Symbol()), nil

	default:
		return "", fmt.Errorf("unsupported operator %s in resolved filter", c.Op)
	}
}

// bindValue converts coerced operand values to driver-compatible forms.
func bindValue(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case uuid.UUID:
		return t.String()
	default:
		return v
	}
}
