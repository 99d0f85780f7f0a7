package filter

import (
	"fmt"

	"go.uber.org/zap"
)

// Context validates (reference, operator, value) triples, mints opaque
// conditions and, given concrete argument values, turns a condition tree
// into a PredicateResolver. Contexts are immutable after construction and
// safe for concurrent use; conditions they emit borrow no context state.
type Context struct {
	registry *OperatorRegistry
	opts     *Options
	logger   *zap.Logger
}

// NewContext builds a filter context. A nil registry falls back to the
// process-wide DefaultRegistry; nil options fall back to DefaultOptions.
func NewContext(registry *OperatorRegistry, opts *Options, logger *zap.Logger) *Context {
	if registry == nil {
		registry = DefaultRegistry
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{registry: registry, opts: opts, logger: logger}
}

// Options exposes the context configuration.
func (c *Context) Options() *Options { return c.opts }

// ToCondition validates that the property supports the requested operator
// and returns an opaque condition deferring to the given argument key. The
// operand value is deliberately not read here. For custom operators the
// provider lookup is deferred to resolver time, so construction succeeds
// even while the provider is not yet registered.
func (c *Context) ToCondition(argKey string, ref PropertyReference, opCode string) (*Condition, error) {
	if ref == nil {
		return nil, &FilterDefinitionError{Key: argKey, Message: "property reference cannot be nil"}
	}
	op, code, err := ParseOp(opCode)
	if err != nil {
		return nil, err
	}
	if !ref.Supports(op) {
		return nil, &FilterValidationError{
			Ref:     ref.Name(),
			Op:      code,
			Message: "operator not supported by property",
		}
	}
	return &Condition{kind: condLeaf, argKey: argKey, ref: ref, op: op, code: code}, nil
}

// ToResolver walks the condition tree, binds each leaf to its argument
// value from params, coerces it to the declared property kind, applies the
// null-value policy and emits a PredicateResolver. A non-empty projection
// in params is attached to the resolver as a hint for the execution
// strategy.
func (c *Context) ToResolver(cond *Condition, params ExecutionParams) (*PredicateResolver, error) {
	if cond == nil {
		return nil, &FilterDefinitionError{Message: "condition cannot be nil"}
	}
	resolved, err := c.resolve(cond, params)
	if err != nil {
		return nil, err
	}
	return &PredicateResolver{filter: resolved, projection: params.Projection}, nil
}

// resolve recursively binds values. A nil return with a nil error means the
// subtree was dropped by the ignore policy.
func (c *Context) resolve(cond *Condition, params ExecutionParams) (*ResolvedFilter, error) {
	switch cond.kind {
	case condAnd, condOr:
		left, err := c.resolve(cond.left, params)
		if err != nil {
			return nil, err
		}
		right, err := c.resolve(cond.right, params)
		if err != nil {
			return nil, err
		}
		if cond.kind == condAnd {
			return ResolvedAnd(left, right), nil
		}
		return ResolvedOr(left, right), nil
	case condNot:
		inner, err := c.resolve(cond.left, params)
		if err != nil {
			return nil, err
		}
		return ResolvedNot(inner), nil
	default:
		return c.resolveLeaf(cond, params)
	}
}

func (c *Context) resolveLeaf(cond *Condition, params ExecutionParams) (*ResolvedFilter, error) {
	value, present := params.Arguments[cond.argKey]
	if !present {
		return nil, &FilterDefinitionError{
			Key:     cond.argKey,
			Message: "missing argument value for filter",
		}
	}

	// Null-taking operators ignore any provided value.
	if cond.op == OpIsNull || cond.op == OpNotNull {
		return Resolved(cond.ref, cond.op, nil), nil
	}

	if value == nil && cond.op.RequiresValue() {
		switch c.opts.NullValuePolicy {
		case NullCoerceToIsNull:
			return Resolved(cond.ref, OpIsNull, nil), nil
		case NullIgnore:
			c.logger.Debug("Dropping filter with null operand",
				zap.String("argKey", cond.argKey), zap.String("op", cond.code))
			return nil, nil
		default:
			return nil, &FilterValidationError{
				Ref:     cond.ref.Name(),
				Op:      cond.code,
				Message: "operator requires a value but the operand is null",
			}
		}
	}

	policy := CoercePolicy{EnumMatch: c.opts.EnumMatchMode, StringCase: c.opts.StringCaseStrategy}

	if cond.op == OpCustom {
		provider, ok := c.registry.Lookup(cond.code)
		if !ok {
			return nil, &FilterValidationError{
				Ref:     cond.ref.Name(),
				Op:      cond.code,
				Message: "no provider registered for custom operator",
			}
		}
		coerced, err := Coerce(cond.ref, value, policy)
		if err != nil {
			return nil, err
		}
		def := FilterDefinition{Ref: cond.ref.Name(), Op: OpCustom, Code: cond.code, Value: coerced}
		resolved, err := provider.Resolve(def, cond.ref)
		if err != nil {
			return nil, fmt.Errorf("custom operator %s failed: %w", cond.code, err)
		}
		return resolved, nil
	}

	if cond.op.MultiValued() {
		elements, err := CoerceList(cond.ref, value, policy)
		if err != nil {
			return nil, err
		}
		switch cond.op {
		case OpIn, OpNotIn:
			if len(elements) == 0 {
				return nil, &FilterValidationError{
					Ref:     cond.ref.Name(),
					Op:      cond.code,
					Message: "operator requires a non-empty sequence of values",
				}
			}
		case OpRange, OpNotRange:
			if len(elements) != 2 {
				return nil, &FilterValidationError{
					Ref:     cond.ref.Name(),
					Op:      cond.code,
					Message: fmt.Sprintf("operator requires exactly two values, got %d", len(elements)),
				}
			}
		}
		return Resolved(cond.ref, cond.op, elements), nil
	}

	coerced, err := Coerce(cond.ref, value, policy)
	if err != nil {
		return nil, err
	}
	return Resolved(cond.ref, cond.op, coerced), nil
}
