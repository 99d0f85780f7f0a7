package exec

import (
	"context"
	"time"

	"github.com/cyfko/filterql/core/filter"
	"github.com/cyfko/filterql/core/plan"
	"go.uber.org/zap"
)

// QueryExecutor pairs a predicate resolver with its execution parameters
// and runs execution strategies against them, publishing lifecycle events
// along the way. Cancellation and timeouts are delegated to the context
// handed to ExecuteWith.
type QueryExecutor struct {
	resolver *filter.PredicateResolver
	params   filter.ExecutionParams
	bus      *EventBus
	logger   *zap.Logger
}

// NewQueryExecutor creates an executor for one resolved request. The bus
// may be nil, in which case no events are published.
func NewQueryExecutor(resolver *filter.PredicateResolver, params filter.ExecutionParams, bus *EventBus, logger *zap.Logger) *QueryExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryExecutor{resolver: resolver, params: params, bus: bus, logger: logger}
}

// Resolver exposes the predicate resolver backing this executor.
func (e *QueryExecutor) Resolver() *filter.PredicateResolver { return e.resolver }

// Params exposes the execution parameters backing this executor.
func (e *QueryExecutor) Params() filter.ExecutionParams { return e.params }

// ExecuteWith runs a strategy with the executor's resolver and parameters.
// Failures are terminal for the request; partially built row buffers are
// dropped with the returned error.
func (e *QueryExecutor) ExecuteWith(ctx context.Context, strategy ExecutionStrategy) ([]*plan.Row, error) {
	start := time.Now()
	Emit(e.bus, NewQueryEvent(QueryExecuteStart, ""))

	rows, err := strategy.Execute(ctx, e.resolver, e.params)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		e.logger.Error("Query execution failed", zap.Error(err))
		event := NewQueryEvent(QueryExecuteFailed, "")
		msg := err.Error()
		event.Error = &msg
		event.Duration = &duration
		Emit(e.bus, event)
		return nil, err
	}

	count := len(rows)
	event := NewQueryEvent(QueryExecuteSuccess, "")
	event.Duration = &duration
	event.RowCount = &count
	Emit(e.bus, event)
	e.logger.Debug("Query executed", zap.Int("rows", count), zap.Int64("durationMs", duration))
	return rows, nil
}

// ExecuteMaps is ExecuteWith followed by boundary materialization.
func (e *QueryExecutor) ExecuteMaps(ctx context.Context, strategy ExecutionStrategy) ([]map[string]any, error) {
	rows, err := e.ExecuteWith(ctx, strategy)
	if err != nil {
		return nil, err
	}
	return MaterializeRows(rows), nil
}
