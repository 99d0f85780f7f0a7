package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cyfko/filterql/core/exec"
	"github.com/cyfko/filterql/core/filter"
	"github.com/cyfko/filterql/core/plan"
	"go.uber.org/zap"
)

// Backend executes the fetch strategy's queries against a SQLite database
// through the metamodel's table mapping.
type Backend struct {
	db     *sql.DB
	meta   *Metamodel
	logger *zap.Logger
}

// Ensure Backend satisfies the strategy's backend contract.
var _ exec.Backend = (*Backend)(nil)

// NewBackend wraps a database handle and a metamodel.
func NewBackend(db *sql.DB, meta *Metamodel, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{db: db, meta: meta, logger: logger}
}

// Metamodel returns the snapshot the backend was built over.
func (b *Backend) Metamodel() *Metamodel { return b.meta }

// Select implements exec.Backend: one SELECT over the entity's table with
// the compiled predicate, the optional parent-reference restriction, and
// sort/limit/offset pushdown.
func (b *Backend) Select(ctx context.Context, q *exec.RowQuery) ([][]any, error) {
	entity, err := b.meta.Entity(q.Entity)
	if err != nil {
		return nil, err
	}

	selects := make([]string, 0, len(q.Fields)+1)
	kinds := make([]filter.Kind, 0, len(q.Fields)+1)
	for _, path := range q.Fields {
		accessor, err := entity.accessor(path)
		if err != nil {
			return nil, fmt.Errorf("projection error: %w", err)
		}
		selects = append(selects, accessor)
		kinds = append(kinds, b.pathKind(entity, path))
	}

	var whereClauses []string
	var params []any
	if q.Filter != nil {
		clause, err := compileFilter(entity, q.Filter, &params)
		if err != nil {
			return nil, fmt.Errorf("error building WHERE clause: %w", err)
		}
		whereClauses = append(whereClauses, clause)
	}
	if q.ParentRefField != "" {
		_, refColumn, err := entity.column(q.ParentRefField)
		if err != nil {
			return nil, err
		}
		selects = append(selects, quoteIdentifier(refColumn))
		kinds = append(kinds, "")
		if len(q.ParentIDs) == 0 {
			return nil, nil
		}
		placeholders := strings.Repeat("?,", len(q.ParentIDs)-1) + "?"
		whereClauses = append(whereClauses, fmt.Sprintf("%s IN (%s)", quoteIdentifier(refColumn), placeholders))
		for _, id := range q.ParentIDs {
			params = append(params, bindValue(id))
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(selects, ", ") + " FROM " + quoteIdentifier(entity.Table))
	if len(whereClauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}
	if len(q.Sort) > 0 {
		var orderBy []string
		for _, key := range q.Sort {
			accessor, err := entity.accessor(key.Field)
			if err != nil {
				return nil, fmt.Errorf("sort error: %w", err)
			}
			direction := "ASC"
			if key.Desc {
				direction = "DESC"
			}
			orderBy = append(orderBy, accessor+" "+direction)
		}
		sb.WriteString(" ORDER BY " + strings.Join(orderBy, ", "))
	}
	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}
	if q.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", q.Offset))
	}

	query := sb.String() + ";"
	b.logger.Debug("Executing SQL SELECT", zap.String("sql", query), zap.Any("params", params))

	rows, err := b.db.QueryContext(ctx, query, params...)
	if err != nil {
		b.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", query))
		return nil, fmt.Errorf("failed to execute SELECT query: %w", err)
	}
	defer rows.Close()
	return readTuples(rows, kinds)
}

// Aggregate implements exec.Backend: one grouped reduction keyed by the
// parent-reference column.
func (b *Backend) Aggregate(ctx context.Context, q *exec.AggregateQuery) ([]exec.AggregateRow, error) {
	entity, err := b.meta.Entity(q.Entity)
	if err != nil {
		return nil, err
	}
	if len(q.ParentIDs) == 0 {
		return nil, nil
	}
	_, refColumn, err := entity.column(q.ParentRefField)
	if err != nil {
		return nil, err
	}

	var reduced string
	if q.Reducer == plan.ReducerCount && q.Field == "" {
		reduced = "COUNT(*)"
	} else {
		accessor, err := entity.accessor(q.Field)
		if err != nil {
			return nil, fmt.Errorf("aggregate error: %w", err)
		}
		reduced = fmt.Sprintf("%s(%s)", q.Reducer, accessor)
	}

	placeholders := strings.Repeat("?,", len(q.ParentIDs)-1) + "?"
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s) GROUP BY %s;",
		quoteIdentifier(refColumn), reduced, quoteIdentifier(entity.Table),
		quoteIdentifier(refColumn), placeholders, quoteIdentifier(refColumn))
	params := make([]any, 0, len(q.ParentIDs))
	for _, id := range q.ParentIDs {
		params = append(params, bindValue(id))
	}

	b.logger.Debug("Executing SQL aggregate", zap.String("sql", query), zap.Any("params", params))
	rows, err := b.db.QueryContext(ctx, query, params...)
	if err != nil {
		b.logger.Error("Failed to execute aggregate query", zap.Error(err), zap.String("sql", query))
		return nil, fmt.Errorf("failed to execute aggregate query: %w", err)
	}
	defer rows.Close()

	var out []exec.AggregateRow
	for rows.Next() {
		var parentID, value any
		if err := rows.Scan(&parentID, &value); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		out = append(out, exec.AggregateRow{ParentID: normalize(parentID, ""), Value: normalize(value, "")})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning aggregate rows: %w", err)
	}
	return out, nil
}

// pathKind resolves the declared kind of a dotted path; paths into object
// columns have no declared kind.
func (b *Backend) pathKind(entity *EntityDefinition, path string) filter.Kind {
	head, _, nested := strings.Cut(path, ".")
	field, ok := entity.Fields[head]
	if !ok || nested {
		return ""
	}
	return field.Kind
}

// readTuples scans every row into an []any, applying the kind-directed
// type normalization the drivers need.
func readTuples(rows *sql.Rows, kinds []filter.Kind) ([][]any, error) {
	var out [][]any
	for rows.Next() {
		values := make([]any, len(kinds))
		scanArgs := make([]any, len(kinds))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			values[i] = normalize(v, kinds[i])
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return out, nil
}

// normalize converts driver values to their declared kinds: byte slices to
// strings, boolean integers to bools.
func normalize(v any, kind filter.Kind) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if kind == filter.KindBool {
		if n, ok := v.(int64); ok {
			return n != 0
		}
	}
	return v
}
