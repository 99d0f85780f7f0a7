package filter

// condKind tags the variants of the condition algebra.
type condKind int

const (
	condLeaf condKind = iota
	condAnd
	condOr
	condNot
)

// Condition is an opaque, immutable predicate closed under And/Or/Not. A
// leaf carries only an argument key and the validated (reference, operator)
// pair; concrete values are bound later, at resolver-creation time, which
// lets a condition tree be reused across requests that share shape but
// differ in values.
type Condition struct {
	kind        condKind
	left, right *Condition

	argKey string
	ref    PropertyReference
	op     Op
	code   string
}

// And combines two conditions conjunctively, returning a new node.
func (c *Condition) And(other *Condition) *Condition {
	return &Condition{kind: condAnd, left: c, right: other}
}

// Or combines two conditions disjunctively, returning a new node.
func (c *Condition) Or(other *Condition) *Condition {
	return &Condition{kind: condOr, left: c, right: other}
}

// Not negates the condition, returning a new node.
func (c *Condition) Not() *Condition {
	return &Condition{kind: condNot, left: c}
}

// LogicalOperator names a combining operator of a resolved predicate group.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
	LogicalNot LogicalOperator = "not"
)

// ResolvedCondition is one fully bound leaf predicate: the property, the
// operator and the coerced operand. For RANGE/IN operators Value holds an
// ordered []any.
type ResolvedCondition struct {
	Ref   PropertyReference
	Op    Op
	Value any
}

// ResolvedGroup combines resolved predicates under a logical operator. A
// LogicalNot group holds exactly one member.
type ResolvedGroup struct {
	Operator   LogicalOperator
	Conditions []ResolvedFilter
}

// ResolvedFilter is the union of a leaf predicate and a group; exactly one
// of the two fields is set. Backends compile this tree into their native
// predicate form.
type ResolvedFilter struct {
	Condition *ResolvedCondition
	Group     *ResolvedGroup
}

// Resolved builds a leaf filter. Custom operator providers use it to emit
// standard-operator rewrites.
func Resolved(ref PropertyReference, op Op, value any) *ResolvedFilter {
	return &ResolvedFilter{Condition: &ResolvedCondition{Ref: ref, Op: op, Value: value}}
}

// ResolvedAnd groups filters conjunctively, skipping nils.
func ResolvedAnd(filters ...*ResolvedFilter) *ResolvedFilter {
	return resolvedGroup(LogicalAnd, filters)
}

// ResolvedOr groups filters disjunctively, skipping nils.
func ResolvedOr(filters ...*ResolvedFilter) *ResolvedFilter {
	return resolvedGroup(LogicalOr, filters)
}

// ResolvedNot negates a filter; a nil operand stays nil.
func ResolvedNot(f *ResolvedFilter) *ResolvedFilter {
	if f == nil {
		return nil
	}
	return &ResolvedFilter{Group: &ResolvedGroup{Operator: LogicalNot, Conditions: []ResolvedFilter{*f}}}
}

func resolvedGroup(op LogicalOperator, filters []*ResolvedFilter) *ResolvedFilter {
	kept := make([]ResolvedFilter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			kept = append(kept, *f)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		clone := kept[0]
		return &clone
	default:
		return &ResolvedFilter{Group: &ResolvedGroup{Operator: op, Conditions: kept}}
	}
}

// PredicateResolver is the executable outcome of resolving a condition tree
// against concrete argument values: a backend-compilable predicate plus the
// projection hint carried through to the execution strategy.
type PredicateResolver struct {
	filter     *ResolvedFilter
	projection []string
}

// MatchAll returns the resolver of a request without any filter: a nil
// predicate carrying only the projection hint.
func MatchAll(projection []string) *PredicateResolver {
	return &PredicateResolver{projection: projection}
}

// Filter returns the resolved predicate tree; nil means "match all".
func (r *PredicateResolver) Filter() *ResolvedFilter { return r.filter }

// Projection returns the projection hint attached at resolution time.
func (r *PredicateResolver) Projection() []string { return r.projection }
