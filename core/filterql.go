// Package core is the FilterQL facade: it wires the DSL parser, the filter
// context and the execution layer into the request pipeline
// Built -> Parsed -> Resolved -> Executed -> Completed. Failures at any
// transition are terminal; no partial progress is retained.
package core

import (
	"context"

	"github.com/cyfko/filterql/core/dsl"
	"github.com/cyfko/filterql/core/exec"
	"github.com/cyfko/filterql/core/filter"
	"go.uber.org/zap"
)

// FilterQuery compiles FilterRequests for one property-reference
// enumeration. Instances are immutable and safe for concurrent use; parsed
// trees and emitted conditions may be reused across requests.
type FilterQuery struct {
	refs    filter.References
	context *filter.Context
	opts    *filter.Options
	bus     *exec.EventBus
	logger  *zap.Logger
}

// NewFilterQuery builds the facade over a property-reference enumeration.
// Nil options and logger fall back to defaults; the operator registry
// defaults to the process-wide one.
func NewFilterQuery(refs filter.References, registry *filter.OperatorRegistry, opts *filter.Options, logger *zap.Logger) (*FilterQuery, error) {
	if opts == nil {
		opts = filter.DefaultOptions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bus, err := exec.NewEventBus()
	if err != nil {
		return nil, err
	}
	return &FilterQuery{
		refs:    refs,
		context: filter.NewContext(registry, opts, logger),
		opts:    opts,
		bus:     bus,
		logger:  logger,
	}, nil
}

// Context exposes the underlying filter context.
func (q *FilterQuery) Context() *filter.Context { return q.context }

// Subscribe registers a callback for one lifecycle event type and returns
// its unsubscribe function.
func (q *FilterQuery) Subscribe(eventType exec.QueryEventType, callback func(ctx context.Context, event exec.QueryEvent) error) func() {
	return q.bus.Subscribe(string(eventType), callback)
}

// Parse turns the request's combineWith expression into a reusable tree
// template, expanding the AND/OR/NOT shorthands over the request keys.
func (q *FilterQuery) Parse(request *filter.FilterRequest) (*dsl.FilterTree, error) {
	expression := dsl.ExpandShorthand(request.CombineWith, request.Keys())
	exec.Emit(q.bus, exec.NewQueryEvent(exec.QueryParseStart, expression))

	tree, err := dsl.Parse(expression, q.opts.MaxDSLLength)
	if err != nil {
		q.emitFailure(exec.QueryParseFailed, expression, err)
		return nil, err
	}
	exec.Emit(q.bus, exec.NewQueryEvent(exec.QueryParseSuccess, expression))
	return tree, nil
}

// conditionFactory adapts the filter context to the DSL generator,
// resolving each definition's property reference by name.
type conditionFactory struct {
	refs    filter.References
	context *filter.Context
}

func (f *conditionFactory) ToCondition(argKey string, def filter.FilterDefinition) (*filter.Condition, error) {
	ref, ok := f.refs.Lookup(def.Ref)
	if !ok {
		return nil, &filter.FilterValidationError{Ref: def.Ref, Message: "unknown property reference"}
	}
	return f.context.ToCondition(argKey, ref, def.Code)
}

// ToCondition runs the parse pipeline and applies the tree template to the
// request's filter map, yielding the composite condition.
func (q *FilterQuery) ToCondition(request *filter.FilterRequest) (*filter.Condition, error) {
	tree, err := q.Parse(request)
	if err != nil {
		return nil, err
	}
	return tree.Generate(request.Filters, &conditionFactory{refs: q.refs, context: q.context})
}

// ToResolver compiles the request into a predicate resolver, binding the
// given argument values. When arguments is nil each filter key doubles as
// its own argument key with the definition's inline value.
func (q *FilterQuery) ToResolver(request *filter.FilterRequest, arguments map[string]any) (*filter.PredicateResolver, error) {
	params := q.executionParams(request, arguments)
	if request.CombineWith == "" && len(request.Filters) == 0 {
		return filter.MatchAll(params.Projection), nil
	}

	condition, err := q.ToCondition(request)
	if err != nil {
		return nil, err
	}
	exec.Emit(q.bus, exec.NewQueryEvent(exec.QueryResolveStart, request.CombineWith))
	resolver, err := q.context.ToResolver(condition, params)
	if err != nil {
		q.emitFailure(exec.QueryResolveFailed, request.CombineWith, err)
		return nil, err
	}
	exec.Emit(q.bus, exec.NewQueryEvent(exec.QueryResolveSuccess, request.CombineWith))
	return resolver, nil
}

// ToExecutor resolves the request and wraps the outcome in a QueryExecutor
// ready to run execution strategies.
func (q *FilterQuery) ToExecutor(request *filter.FilterRequest, arguments map[string]any) (*exec.QueryExecutor, error) {
	resolver, err := q.ToResolver(request, arguments)
	if err != nil {
		return nil, err
	}
	return exec.NewQueryExecutor(resolver, q.executionParams(request, arguments), q.bus, q.logger), nil
}

// executionParams derives the execution parameters of a request. Inline
// definition values serve as arguments when the caller passes none.
func (q *FilterQuery) executionParams(request *filter.FilterRequest, arguments map[string]any) filter.ExecutionParams {
	if arguments == nil {
		arguments = make(map[string]any, len(request.Filters))
		for key, def := range request.Filters {
			arguments[key] = def.Value
		}
	}
	return filter.ExecutionParams{
		Arguments:  arguments,
		Projection: request.Projection,
		Pagination: request.Pagination,
	}
}

func (q *FilterQuery) emitFailure(eventType exec.QueryEventType, expression string, err error) {
	event := exec.NewQueryEvent(eventType, expression)
	msg := err.Error()
	event.Error = &msg
	exec.Emit(q.bus, event)
	q.logger.Debug("Request pipeline failed", zap.String("stage", string(eventType)), zap.Error(err))
}
