package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRefs() (name, age PropertyReference) {
	return NewReference("NAME", KindString, "User", TextOps()...),
		NewReference("AGE", KindInt, "User", ComparableOps()...)
}

func TestContext_ToCondition(t *testing.T) {
	ctx := NewContext(nil, nil, nil)
	name, _ := testRefs()

	cond, err := ctx.ToCondition("f1", name, "EQ")
	require.NoError(t, err)
	require.NotNil(t, cond)

	// Symbols are accepted too.
	_, err = ctx.ToCondition("f1", name, "LIKE")
	require.NoError(t, err)

	// Unsupported operator is a validation error.
	age := NewReference("AGE", KindInt, "User", OpEq)
	_, err = ctx.ToCondition("f2", age, "MATCHES")
	var valErr *FilterValidationError
	require.ErrorAs(t, err, &valErr)

	// Unknown custom code succeeds at construction; the provider lookup is
	// deferred to resolver time.
	_, err = ctx.ToCondition("f3", name, "STARTS_WITH")
	require.NoError(t, err)
}

func TestContext_ToResolver_BindsDeferredArguments(t *testing.T) {
	ctx := NewContext(nil, nil, nil)
	name, age := testRefs()

	c1, err := ctx.ToCondition("f1", name, "EQ")
	require.NoError(t, err)
	c2, err := ctx.ToCondition("f2", age, "GT")
	require.NoError(t, err)

	resolver, err := ctx.ToResolver(c1.And(c2), ExecutionParams{
		Arguments:  map[string]any{"f1": "x", "f2": "25"},
		Projection: []string{"name", "age"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, resolver.Projection())

	group := resolver.Filter().Group
	require.NotNil(t, group)
	assert.Equal(t, LogicalAnd, group.Operator)
	require.Len(t, group.Conditions, 2)
	assert.Equal(t, "x", group.Conditions[0].Condition.Value)
	assert.Equal(t, int64(25), group.Conditions[1].Condition.Value, "value is coerced to the declared kind")
}

func TestContext_ToResolver_MissingArgument(t *testing.T) {
	ctx := NewContext(nil, nil, nil)
	name, _ := testRefs()

	cond, err := ctx.ToCondition("f1", name, "EQ")
	require.NoError(t, err)

	_, err = ctx.ToResolver(cond, ExecutionParams{Arguments: map[string]any{}})
	var defErr *FilterDefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Equal(t, "f1", defErr.Key)
}

func TestContext_ToResolver_SameArgumentsSameFilter(t *testing.T) {
	ctx := NewContext(nil, nil, nil)
	name, age := testRefs()

	c1, _ := ctx.ToCondition("f1", name, "EQ")
	c2, _ := ctx.ToCondition("f2", age, "GT")
	composite := c1.And(c2)

	params := ExecutionParams{Arguments: map[string]any{"f1": "x", "f2": 25}}
	first, err := ctx.ToResolver(composite, params)
	require.NoError(t, err)
	second, err := ctx.ToResolver(composite, params)
	require.NoError(t, err)
	assert.Equal(t, first.Filter(), second.Filter())
}

func TestContext_NullValuePolicies(t *testing.T) {
	name, _ := testRefs()

	t.Run("strict rejects", func(t *testing.T) {
		ctx := NewContext(nil, nil, nil)
		cond, _ := ctx.ToCondition("f1", name, "EQ")
		_, err := ctx.ToResolver(cond, ExecutionParams{Arguments: map[string]any{"f1": nil}})
		var valErr *FilterValidationError
		require.ErrorAs(t, err, &valErr)
	})

	t.Run("coerce-to-is-null rewrites", func(t *testing.T) {
		opts := DefaultOptions()
		opts.NullValuePolicy = NullCoerceToIsNull
		ctx := NewContext(nil, opts, nil)
		cond, _ := ctx.ToCondition("f1", name, "EQ")
		resolver, err := ctx.ToResolver(cond, ExecutionParams{Arguments: map[string]any{"f1": nil}})
		require.NoError(t, err)
		require.NotNil(t, resolver.Filter().Condition)
		assert.Equal(t, OpIsNull, resolver.Filter().Condition.Op)
	})

	t.Run("ignore drops", func(t *testing.T) {
		opts := DefaultOptions()
		opts.NullValuePolicy = NullIgnore
		ctx := NewContext(nil, opts, nil)
		cond, _ := ctx.ToCondition("f1", name, "EQ")
		resolver, err := ctx.ToResolver(cond, ExecutionParams{Arguments: map[string]any{"f1": nil}})
		require.NoError(t, err)
		assert.Nil(t, resolver.Filter(), "dropped condition leaves a match-all predicate")
	})
}

func TestContext_NullTakingOpsIgnoreValues(t *testing.T) {
	ctx := NewContext(nil, nil, nil)
	name, _ := testRefs()

	cond, err := ctx.ToCondition("f1", name, "IS_NULL")
	require.NoError(t, err)
	resolver, err := ctx.ToResolver(cond, ExecutionParams{Arguments: map[string]any{"f1": "ignored"}})
	require.NoError(t, err)
	require.NotNil(t, resolver.Filter().Condition)
	assert.Equal(t, OpIsNull, resolver.Filter().Condition.Op)
	assert.Nil(t, resolver.Filter().Condition.Value)
}

func TestContext_MultiValuedArity(t *testing.T) {
	ctx := NewContext(nil, nil, nil)
	_, age := testRefs()

	in, _ := ctx.ToCondition("f1", age, "IN")
	_, err := ctx.ToResolver(in, ExecutionParams{Arguments: map[string]any{"f1": []any{}}})
	var valErr *FilterValidationError
	require.ErrorAs(t, err, &valErr)

	rng, _ := ctx.ToCondition("f2", age, "RANGE")
	_, err = ctx.ToResolver(rng, ExecutionParams{Arguments: map[string]any{"f2": []any{1, 2, 3}}})
	require.ErrorAs(t, err, &valErr)

	resolver, err := ctx.ToResolver(rng, ExecutionParams{Arguments: map[string]any{"f2": "18,30"}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(18), int64(30)}, resolver.Filter().Condition.Value)
}

func TestContext_CustomOperatorResolution(t *testing.T) {
	registry := NewOperatorRegistry(nil)
	ctx := NewContext(registry, nil, nil)
	name, _ := testRefs()

	cond, err := ctx.ToCondition("f1", name, "STARTS_WITH")
	require.NoError(t, err)

	params := ExecutionParams{Arguments: map[string]any{"f1": "Java"}}

	// Provider missing: fails at resolver time, not construction.
	_, err = ctx.ToResolver(cond, params)
	var valErr *FilterValidationError
	require.ErrorAs(t, err, &valErr)

	provider := &startsWithProvider{}
	require.NoError(t, registry.Register(provider))

	resolver, err := ctx.ToResolver(cond, params)
	require.NoError(t, err)
	require.NotNil(t, resolver.Filter().Condition)
	assert.Equal(t, OpMatches, resolver.Filter().Condition.Op)
	assert.Equal(t, "Java%", resolver.Filter().Condition.Value)

	// Unregistering restores the failure.
	registry.Unregister(provider)
	_, err = ctx.ToResolver(cond, params)
	require.ErrorAs(t, err, &valErr)
}

// startsWithProvider rewrites STARTS_WITH into a MATCHES predicate.
type startsWithProvider struct{}

func (p *startsWithProvider) SupportedOperators() []string { return []string{"STARTS_WITH"} }

func (p *startsWithProvider) Resolve(def FilterDefinition, ref PropertyReference) (*ResolvedFilter, error) {
	return Resolved(ref, OpMatches, def.Value.(string)+"%"), nil
}

func TestCondition_Composition(t *testing.T) {
	ctx := NewContext(nil, nil, nil)
	name, age := testRefs()

	a, _ := ctx.ToCondition("a", name, "EQ")
	b, _ := ctx.ToCondition("b", age, "GT")

	params := ExecutionParams{Arguments: map[string]any{"a": "x", "b": 1}}

	demorganLeft, err := ctx.ToResolver(a.And(b).Not(), params)
	require.NoError(t, err)
	demorganRight, err := ctx.ToResolver(a.Not().Or(b.Not()), params)
	require.NoError(t, err)

	// Structural shapes differ; both must evaluate equivalently. The sqlite
	// backend tests pin the semantic equivalence; here we pin the shapes.
	require.NotNil(t, demorganLeft.Filter().Group)
	assert.Equal(t, LogicalNot, demorganLeft.Filter().Group.Operator)
	require.NotNil(t, demorganRight.Filter().Group)
	assert.Equal(t, LogicalOr, demorganRight.Filter().Group.Operator)
}
