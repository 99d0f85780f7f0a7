// Package exec runs execution plans against a relational backend: the root
// query, the depth-ordered child queries, the grouped aggregate sub-queries
// and the computed-field evaluation, assembling indexed row buffers along
// the way.
package exec

import (
	"context"

	"github.com/cyfko/filterql/core/filter"
	"github.com/cyfko/filterql/core/plan"
)

// SortKey is one ORDER BY entry pushed down to the backend.
type SortKey struct {
	Field string
	Desc  bool
}

// RowQuery describes one tuple query. Fields are entity paths selected in
// order; when ParentRefField is non-empty the backend appends the parent
// reference value as one extra trailing column and restricts the rows to
// ParentIDs.
type RowQuery struct {
	Entity         string
	Fields         []string
	Filter         *filter.ResolvedFilter
	ParentRefField string
	ParentIDs      []any
	Sort           []SortKey
	Limit          int
	Offset         int
}

// AggregateQuery describes one grouped sub-query: reduce Field over the
// Entity rows belonging to each parent in ParentIDs, keyed by
// ParentRefField.
type AggregateQuery struct {
	Entity         string
	Field          string
	Reducer        plan.Reducer
	ParentRefField string
	ParentIDs      []any
}

// AggregateRow is one group of an aggregate sub-query result.
type AggregateRow struct {
	ParentID any
	Value    any
}

// Backend is the relational data source the fetch strategy drives. Queries
// within one request are issued serially; implementations only need to be
// safe for concurrent use across requests.
type Backend interface {
	// Select returns one []any per row, parallel to q.Fields, plus the
	// trailing parent-reference column when requested.
	Select(ctx context.Context, q *RowQuery) ([][]any, error)
	// Aggregate executes a grouped reduction keyed by parent ID.
	Aggregate(ctx context.Context, q *AggregateQuery) ([]AggregateRow, error)
}
