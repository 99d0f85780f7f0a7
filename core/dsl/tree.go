package dsl

import (
	"strings"

	"github.com/cyfko/filterql/core/filter"
)

// nodeKind tags the AST variants.
type nodeKind int

const (
	nodeIdent nodeKind = iota
	nodeAnd
	nodeOr
	nodeNot
)

type node struct {
	kind        nodeKind
	ident       string
	left, right *node
}

// FilterTree is the parsed template of a boolean expression over filter
// keys. It is immutable and may be reused across requests: Generate walks
// the same tree with different definitions.
type FilterTree struct {
	root *node
}

// ConditionFactory mints the condition for one identifier leaf. The facade
// implements it on top of the filter context, resolving the definition's
// property reference first.
type ConditionFactory interface {
	ToCondition(argKey string, def filter.FilterDefinition) (*filter.Condition, error)
}

// Generate applies the tree template to a set of definitions: every
// identifier leaf is looked up in the map, turned into a condition through
// the factory and the results are combined per the tree's operators.
func (t *FilterTree) Generate(definitions map[string]filter.FilterDefinition, factory ConditionFactory) (*filter.Condition, error) {
	return t.generate(t.root, definitions, factory)
}

func (t *FilterTree) generate(n *node, definitions map[string]filter.FilterDefinition, factory ConditionFactory) (*filter.Condition, error) {
	switch n.kind {
	case nodeIdent:
		def, ok := definitions[n.ident]
		if !ok {
			available := make([]string, 0, len(definitions))
			for key := range definitions {
				available = append(available, key)
			}
			return nil, filter.UndefinedReference(n.ident, available)
		}
		return factory.ToCondition(n.ident, def)
	case nodeNot:
		operand, err := t.generate(n.left, definitions, factory)
		if err != nil {
			return nil, err
		}
		return operand.Not(), nil
	default:
		left, err := t.generate(n.left, definitions, factory)
		if err != nil {
			return nil, err
		}
		right, err := t.generate(n.right, definitions, factory)
		if err != nil {
			return nil, err
		}
		if n.kind == nodeAnd {
			return left.And(right), nil
		}
		return left.Or(right), nil
	}
}

// Identifiers returns the distinct identifier leaves in first-appearance
// order.
func (t *FilterTree) Identifiers() []string {
	var out []string
	seen := map[string]struct{}{}
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.kind == nodeIdent {
			if _, dup := seen[n.ident]; !dup {
				seen[n.ident] = struct{}{}
				out = append(out, n.ident)
			}
			return
		}
		walk(n.left)
		walk(n.right)
	}
	walk(t.root)
	return out
}

// Render writes the tree back as a canonical expression: single spaces
// around binary operators, parentheses only where precedence requires them.
// Parsing the rendered form yields an identical tree.
func (t *FilterTree) Render() string {
	var sb strings.Builder
	t.render(&sb, t.root, 0)
	return sb.String()
}

// precedence: | = 1, & = 2, ! = 3.
func nodePrecedence(n *node) int {
	switch n.kind {
	case nodeOr:
		return 1
	case nodeAnd:
		return 2
	case nodeNot:
		return 3
	default:
		return 4
	}
}

func (t *FilterTree) render(sb *strings.Builder, n *node, parent int) {
	prec := nodePrecedence(n)
	parens := prec < parent
	if parens {
		sb.WriteByte('(')
	}
	switch n.kind {
	case nodeIdent:
		sb.WriteString(n.ident)
	case nodeNot:
		sb.WriteByte('!')
		t.render(sb, n.left, prec+1)
	case nodeAnd:
		t.render(sb, n.left, prec)
		sb.WriteString(" & ")
		t.render(sb, n.right, prec+1)
	case nodeOr:
		t.render(sb, n.left, prec)
		sb.WriteString(" | ")
		t.render(sb, n.right, prec+1)
	}
	if parens {
		sb.WriteByte(')')
	}
}
