package exec

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cyfko/filterql/core/filter"
	"github.com/cyfko/filterql/core/plan"
	"github.com/cyfko/filterql/core/projection"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// ExecutionStrategy materializes the rows matched by a resolved predicate
// under the execution parameters. Strategies are reusable and safe for
// concurrent use.
type ExecutionStrategy interface {
	Execute(ctx context.Context, resolver *filter.PredicateResolver, params filter.ExecutionParams) ([]*plan.Row, error)
}

// MultiQueryStrategy executes an execution plan as one root query plus one
// child query per collection path, issued serially in depth order so each
// depth can key on the IDs collected at the previous one, plus one grouped
// sub-query per reduced computed-field dependency.
type MultiQueryStrategy struct {
	backend    Backend
	meta       plan.MetamodelSnapshot
	rootEntity string
	computed   []plan.ComputedField
	instances  plan.InstanceResolver
	opts       *filter.Options
	logger     *zap.Logger
}

// NewMultiQueryStrategy creates a strategy over a backend and the
// metamodel snapshot of the root entity.
func NewMultiQueryStrategy(backend Backend, meta plan.MetamodelSnapshot, rootEntity string, logger *zap.Logger) *MultiQueryStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiQueryStrategy{
		backend:    backend,
		meta:       meta,
		rootEntity: rootEntity,
		opts:       filter.DefaultOptions(),
		logger:     logger,
	}
}

// WithComputedFields declares the computed fields the projection may
// activate.
func (s *MultiQueryStrategy) WithComputedFields(fields ...plan.ComputedField) *MultiQueryStrategy {
	s.computed = append(s.computed, fields...)
	return s
}

// WithInstanceResolver sets the resolver used to locate computed-field
// providers.
func (s *MultiQueryStrategy) WithInstanceResolver(resolver plan.InstanceResolver) *MultiQueryStrategy {
	s.instances = resolver
	return s
}

// WithOptions overrides the engine options.
func (s *MultiQueryStrategy) WithOptions(opts *filter.Options) *MultiQueryStrategy {
	if opts != nil {
		s.opts = opts
	}
	return s
}

// Execute runs the plan: root query with predicate and top-level
// pagination, child queries per collection in depth order with per-parent
// sorting and pagination, then computed-field evaluation.
func (s *MultiQueryStrategy) Execute(ctx context.Context, resolver *filter.PredicateResolver, params filter.ExecutionParams) ([]*plan.Row, error) {
	specs := params.Projection
	if len(specs) == 0 {
		specs = resolver.Projection()
	}
	spec, err := s.projectionSpec(specs)
	if err != nil {
		return nil, err
	}

	executionPlan, err := plan.NewPlanner(s.meta, s.logger).Build(s.rootEntity, spec, s.computed)
	if err != nil {
		return nil, err
	}

	rootRows, err := s.fetchRoot(ctx, executionPlan, resolver, params.Pagination)
	if err != nil {
		return nil, err
	}

	rowsByPath := map[string][]*plan.Row{"": rootRows}
	idSlotByPath := map[string]int{"": executionPlan.RootIDSlots[0]}
	for _, collectionPlan := range executionPlan.Collections {
		idSlotByPath[collectionPlan.Path] = collectionPlan.ElementIDSlots[0]
		attached, err := s.fetchCollection(ctx, collectionPlan, rowsByPath[collectionPlan.ParentPath], idSlotByPath[collectionPlan.ParentPath])
		if err != nil {
			return nil, err
		}
		rowsByPath[collectionPlan.Path] = attached
	}

	if err := s.evaluateComputed(ctx, executionPlan, rootRows); err != nil {
		return nil, err
	}
	return rootRows, nil
}

// projectionSpec parses the projection set; an empty projection defaults
// to every scalar attribute of the root entity.
func (s *MultiQueryStrategy) projectionSpec(specs []string) (*projection.Spec, error) {
	if len(specs) > 0 {
		return projection.ParseSet(specs, s.opts.MaxProjectionPageSize)
	}
	var fields []string
	for name, md := range s.meta.Fields(s.rootEntity) {
		if !md.IsCollection {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	if len(fields) == 0 {
		return nil, &projection.DefinitionError{Message: fmt.Sprintf("entity %s has no projectable fields", s.rootEntity)}
	}
	return &projection.Spec{Fields: fields, Collections: map[string]*filter.Pagination{}}, nil
}

// scalarQueryFields lists the entity paths a schema needs fetched, with
// their target slots. Computed output slots carry no entity path and are
// skipped.
func scalarQueryFields(schema *plan.FieldSchema) (fields []string, slots []int) {
	for i := 0; i < schema.FieldCount(); i++ {
		if schema.EntityFieldAt(i) == "" {
			continue
		}
		fields = append(fields, schema.EntityFieldAt(i))
		slots = append(slots, i)
	}
	return fields, slots
}

func (s *MultiQueryStrategy) fetchRoot(ctx context.Context, executionPlan *plan.ExecutionPlan, resolver *filter.PredicateResolver, pagination *filter.Pagination) ([]*plan.Row, error) {
	fields, slots := scalarQueryFields(executionPlan.RootSchema)
	query := &RowQuery{
		Entity: executionPlan.RootEntity,
		Fields: fields,
		Filter: resolver.Filter(),
	}
	if pagination != nil {
		query.Limit = pagination.Size
		if pagination.Size > 0 {
			query.Offset = pagination.Page * pagination.Size
		}
		query.Sort = s.rootSortKeys(executionPlan.RootSchema, pagination.Sort)
	}

	tuples, err := s.backend.Select(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("root query failed: %w", err)
	}
	s.logger.Debug("Fetched root rows", zap.Int("count", len(tuples)))

	rows := make([]*plan.Row, 0, len(tuples))
	for _, tuple := range tuples {
		row := plan.NewRow(executionPlan.RootSchema)
		for i, slot := range slots {
			row.Set(slot, tuple[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// rootSortKeys maps the top-level sort fields into entity paths through
// the root schema. A field absent from the schema falls back to slot 0.
func (s *MultiQueryStrategy) rootSortKeys(schema *plan.FieldSchema, specs []filter.SortSpec) []SortKey {
	var keys []SortKey
	for _, spec := range specs {
		slot := 0
		if di := schema.IndexOfDto(spec.Field); di.Index >= 0 && !di.IsCollection && di.Index < schema.FieldCount() {
			slot = di.Index
		} else if idx, ok := schema.IndexOfEntity(spec.Field); ok {
			slot = idx
		} else {
			s.logger.Debug("Top-level sort field not in root schema, falling back to slot 0", zap.String("field", spec.Field))
		}
		field := schema.EntityFieldAt(slot)
		if field == "" {
			continue
		}
		keys = append(keys, SortKey{Field: field, Desc: spec.Direction == filter.SortDesc})
	}
	return keys
}

func (s *MultiQueryStrategy) fetchCollection(ctx context.Context, collectionPlan *plan.CollectionPlan, parents []*plan.Row, parentIDSlot int) ([]*plan.Row, error) {
	// Parents keep well-typed empty collections even when nothing can match.
	for _, parent := range parents {
		parent.Set(collectionPlan.SlotInParent, []*plan.Row(nil))
	}
	if len(parents) == 0 {
		return nil, nil
	}

	parentIDs := make([]any, 0, len(parents))
	parentByID := make(map[any]*plan.Row, len(parents))
	for _, parent := range parents {
		key := bucketKey(parent.At(parentIDSlot))
		if _, dup := parentByID[key]; !dup {
			parentIDs = append(parentIDs, parent.At(parentIDSlot))
			parentByID[key] = parent
		}
	}

	fields, slots := scalarQueryFields(collectionPlan.Schema)
	query := &RowQuery{
		Entity:         collectionPlan.ElementEntity,
		Fields:         fields,
		ParentRefField: collectionPlan.ParentRefField,
		ParentIDs:      parentIDs,
	}
	tuples, err := s.backend.Select(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("collection query %s failed: %w", collectionPlan.Path, err)
	}
	s.logger.Debug("Fetched collection rows",
		zap.String("path", collectionPlan.Path), zap.Int("count", len(tuples)))

	buckets := map[any][]*plan.Row{}
	var bucketOrder []any
	for _, tuple := range tuples {
		row := plan.NewRow(collectionPlan.Schema)
		for i, slot := range slots {
			row.Set(slot, tuple[i])
		}
		key := bucketKey(tuple[len(tuple)-1])
		if _, seen := buckets[key]; !seen {
			bucketOrder = append(bucketOrder, key)
		}
		buckets[key] = append(buckets[key], row)
	}

	var attached []*plan.Row
	for _, key := range bucketOrder {
		parent, ok := parentByID[key]
		if !ok {
			continue
		}
		kids := buckets[key]
		sortRows(kids, collectionPlan.SortSlots, collectionPlan.SortDesc)
		kids = pageRows(kids, collectionPlan.OffsetPerParent, collectionPlan.LimitPerParent)
		parent.Set(collectionPlan.SlotInParent, kids)
		attached = append(attached, kids...)
	}
	return attached, nil
}

func (s *MultiQueryStrategy) evaluateComputed(ctx context.Context, executionPlan *plan.ExecutionPlan, rootRows []*plan.Row) error {
	if len(executionPlan.Computed) == 0 || len(rootRows) == 0 {
		return nil
	}
	rootIDSlot := executionPlan.RootIDSlots[0]
	rootIDs := make([]any, 0, len(rootRows))
	for _, row := range rootRows {
		rootIDs = append(rootIDs, row.At(rootIDSlot))
	}

	for _, computedPlan := range executionPlan.Computed {
		aggregates := make([]map[any]any, len(computedPlan.Aggregates))
		for i, aggregatePlan := range computedPlan.Aggregates {
			if aggregatePlan == nil {
				continue
			}
			results, err := s.backend.Aggregate(ctx, &AggregateQuery{
				Entity:         aggregatePlan.Entity,
				Field:          aggregatePlan.Field,
				Reducer:        aggregatePlan.Reducer,
				ParentRefField: aggregatePlan.ParentRefField,
				ParentIDs:      rootIDs,
			})
			if err != nil {
				return fmt.Errorf("aggregate query for %s failed: %w", computedPlan.Field.Name, err)
			}
			grouped := make(map[any]any, len(results))
			for _, result := range results {
				grouped[bucketKey(result.ParentID)] = result.Value
			}
			aggregates[i] = grouped
		}

		provider, err := s.resolveProvider(computedPlan.Field)
		if err != nil {
			return err
		}

		for _, row := range rootRows {
			deps := make([]any, len(computedPlan.DependencySlots))
			for i, slot := range computedPlan.DependencySlots {
				if slot >= 0 {
					deps[i] = row.At(slot)
					continue
				}
				value, ok := aggregates[i][bucketKey(row.At(rootIDSlot))]
				if !ok && computedPlan.Aggregates[i].Reducer == plan.ReducerCount {
					value = int64(0)
				}
				deps[i] = value
			}
			value, err := provider(deps)
			if err != nil {
				return fmt.Errorf("computed field %s failed: %w", computedPlan.Field.Name, err)
			}
			row.Set(computedPlan.OutputSlot, value)
		}
	}
	return nil
}

// resolveProvider locates the evaluator of a computed field: the instance
// resolver is asked by type and name, then by type alone; a nil result
// falls back to the field's static compute function.
func (s *MultiQueryStrategy) resolveProvider(cf plan.ComputedField) (plan.ComputeFunc, error) {
	if s.instances != nil {
		instance, err := s.instances.Resolve(plan.ProviderType, cf.Provider)
		if err != nil {
			return nil, fmt.Errorf("instance resolver failed for %s: %w", cf.Name, err)
		}
		if instance == nil && cf.Provider != "" {
			instance, err = s.instances.Resolve(plan.ProviderType, "")
			if err != nil {
				return nil, fmt.Errorf("instance resolver failed for %s: %w", cf.Name, err)
			}
		}
		if instance != nil {
			provider, ok := instance.(plan.ComputedFieldProvider)
			if !ok {
				return nil, &plan.InstanceResolutionError{
					Type:    plan.ProviderType,
					Name:    cf.Provider,
					Message: fmt.Sprintf("resolved instance %T does not implement ComputedFieldProvider", instance),
				}
			}
			return provider.Compute, nil
		}
	}
	if cf.Compute != nil {
		return cf.Compute, nil
	}
	return nil, &plan.InstanceResolutionError{
		Type:    plan.ProviderType,
		Name:    cf.Provider,
		Message: fmt.Sprintf("no provider for computed field %s", cf.Name),
	}
}

// MaterializeRows converts row buffers to structured maps at the boundary.
func MaterializeRows(rows []*plan.Row) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToMap())
	}
	return out
}

// sortRows orders a bucket by the resolved sort slots, stably, so rows
// that compare equal keep their backend order.
func sortRows(rows []*plan.Row, slots []int, desc []bool) {
	if len(slots) == 0 {
		return
	}
	sort.SliceStable(rows, func(a, b int) bool {
		for k, slot := range slots {
			cmp := compareValues(rows[a].At(slot), rows[b].At(slot))
			if cmp == 0 {
				continue
			}
			if desc[k] {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func pageRows(rows []*plan.Row, offset, limit int) []*plan.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// compareValues orders two slot values: nils first, then times, booleans
// and numbers in their natural order, anything else by string form.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case bb:
				return -1
			default:
				return 1
			}
		}
	}
	af, aErr := cast.ToFloat64E(a)
	bf, bErr := cast.ToFloat64E(b)
	if aErr == nil && bErr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := cast.ToString(a), cast.ToString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// bucketKey normalizes a parent-reference value so that equal IDs hash to
// the same bucket regardless of the driver's concrete Go type.
func bucketKey(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
