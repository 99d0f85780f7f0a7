package dsl

import (
	"testing"

	"github.com/cyfko/filterql/core/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, expr string) *FilterTree {
	t.Helper()
	tree, err := Parse(expr, 0)
	require.NoError(t, err)
	return tree
}

func TestParse_Precedence(t *testing.T) {
	// "f1 & f2 | f3" must bind as (f1 & f2) | f3.
	tree := mustParse(t, "f1 & f2 | f3")
	assert.Equal(t, "f1 & f2 | f3", tree.Render())

	reparsed := mustParse(t, tree.Render())
	assert.Equal(t, tree.Render(), reparsed.Render())

	// Forcing the other grouping requires parentheses and they survive.
	tree = mustParse(t, "f1 & (f2 | f3)")
	assert.Equal(t, "f1 & (f2 | f3)", tree.Render())
}

func TestParse_NestedNegation(t *testing.T) {
	tree := mustParse(t, "!(f1 & f2) | (f3 & !f4)")
	assert.Equal(t, "!(f1 & f2) | f3 & !f4", tree.Render())
	assert.Equal(t, []string{"f1", "f2", "f3", "f4"}, tree.Identifiers())
}

func TestParse_WhitespaceInsignificant(t *testing.T) {
	compact := mustParse(t, "f1&f2|!f3")
	spaced := mustParse(t, "  f1  &  f2  |  !  f3  ")
	assert.Equal(t, compact.Render(), spaced.Render())
}

func TestParse_RenderIsIdempotent(t *testing.T) {
	for _, expr := range []string{
		"a",
		"!a",
		"a & b",
		"a | b & c",
		"(a | b) & c",
		"!(a & b) | (c & !d)",
		"!!a",
		"a & b & c & d",
	} {
		t.Run(expr, func(t *testing.T) {
			tree := mustParse(t, expr)
			once := tree.Render()
			again := mustParse(t, once).Render()
			assert.Equal(t, once, again)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":               "",
		"whitespace":          "   ",
		"unmatched open":      "(f1 & f2",
		"unmatched close":     "f1 & f2)",
		"binary without lhs":  "& f1",
		"binary without rhs":  "f1 &",
		"double binary":       "f1 & | f2",
		"digit identifier":    "1f & f2",
		"invalid character":   "f1 @ f2",
		"dangling not":        "f1 & !",
		"empty parens":        "()",
	}
	for name, expr := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(expr, 0)
			var synErr *SyntaxError
			require.ErrorAs(t, err, &synErr, "expression %q", expr)
		})
	}
}

func TestParse_MaxLength(t *testing.T) {
	_, err := Parse("f1 & f2", 5)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)

	_, err = Parse("f1 & f2", 100)
	require.NoError(t, err)
}

func TestExpandShorthand(t *testing.T) {
	keys := []string{"f2", "f1", "f3"}

	assert.Equal(t, "f1 & f2 & f3", ExpandShorthand("AND", keys))
	assert.Equal(t, "f1 | f2 | f3", ExpandShorthand("OR", keys))
	assert.Equal(t, "!(f1 & f2 & f3)", ExpandShorthand("NOT", keys))
	assert.Equal(t, "f1 & f2 & f3", ExpandShorthand(" AND ", keys), "surrounding whitespace is ignored")
	assert.Equal(t, "f1 & AND", ExpandShorthand("f1 & AND", keys), "only whole-string shorthands expand")
	assert.Equal(t, "and", ExpandShorthand("and", keys), "shorthands are case-sensitive")
}

type recordingFactory struct {
	ctx  *filter.Context
	refs filter.References
}

func (f *recordingFactory) ToCondition(argKey string, def filter.FilterDefinition) (*filter.Condition, error) {
	ref, ok := f.refs.Lookup(def.Ref)
	if !ok {
		return nil, filter.UndefinedReference(def.Ref, nil)
	}
	return f.ctx.ToCondition(argKey, ref, def.Code)
}

func TestGenerate(t *testing.T) {
	refs := filter.NewReferences(
		filter.NewReference("NAME", filter.KindString, "User", filter.TextOps()...),
		filter.NewReference("AGE", filter.KindInt, "User", filter.ComparableOps()...),
	)
	factory := &recordingFactory{ctx: filter.NewContext(nil, nil, nil), refs: refs}

	defs := map[string]filter.FilterDefinition{
		"f1": filter.MustDefinition("NAME", "EQ", "x"),
		"f2": filter.MustDefinition("AGE", "GT", 25),
	}

	tree := mustParse(t, "f1 & !f2")
	cond, err := tree.Generate(defs, factory)
	require.NoError(t, err)
	require.NotNil(t, cond)

	// The same tree is reusable with a different definition map.
	cond2, err := tree.Generate(defs, factory)
	require.NoError(t, err)
	require.NotNil(t, cond2)
}

func TestGenerate_UndefinedReference(t *testing.T) {
	refs := filter.NewReferences(
		filter.NewReference("NAME", filter.KindString, "User", filter.TextOps()...),
	)
	factory := &recordingFactory{ctx: filter.NewContext(nil, nil, nil), refs: refs}
	tree := mustParse(t, "f1 & missing")

	_, err := tree.Generate(map[string]filter.FilterDefinition{
		"f1": filter.MustDefinition("NAME", "EQ", "x"),
	}, factory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined reference")
	assert.Contains(t, err.Error(), "available: f1")
}
