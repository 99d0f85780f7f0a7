package exec

import (
	"time"

	"github.com/asaidimu/go-events"
)

// QueryEventType identifies a stage transition in the request lifecycle:
// Built -> Parsed -> Resolved -> Executed -> Completed, with a failed
// variant terminating each stage.
type QueryEventType string

const (
	QueryParseStart     QueryEventType = "query:parse:start"
	QueryParseSuccess   QueryEventType = "query:parse:success"
	QueryParseFailed    QueryEventType = "query:parse:failed"
	QueryResolveStart   QueryEventType = "query:resolve:start"
	QueryResolveSuccess QueryEventType = "query:resolve:success"
	QueryResolveFailed  QueryEventType = "query:resolve:failed"
	QueryExecuteStart   QueryEventType = "query:execute:start"
	QueryExecuteSuccess QueryEventType = "query:execute:success"
	QueryExecuteFailed  QueryEventType = "query:execute:failed"
)

// QueryEvent is the payload published on the lifecycle bus.
type QueryEvent struct {
	Type       QueryEventType `json:"type"`
	Timestamp  int64          `json:"timestamp"`
	Expression string         `json:"expression,omitempty"`
	Error      *string        `json:"error,omitempty"`
	Duration   *int64         `json:"duration,omitempty"`
	RowCount   *int           `json:"rowCount,omitempty"`
}

// EventBus is the typed bus lifecycle events travel on.
type EventBus = events.TypedEventBus[QueryEvent]

// NewEventBus creates the lifecycle bus with the default configuration.
func NewEventBus() (*EventBus, error) {
	return events.NewTypedEventBus[QueryEvent](events.DefaultConfig())
}

// Emit publishes an event on the bus; a nil bus drops it.
func Emit(bus *EventBus, event QueryEvent) {
	if bus != nil {
		bus.Emit(string(event.Type), event)
	}
}

// NewQueryEvent stamps an event of the given type.
func NewQueryEvent(eventType QueryEventType, expression string) QueryEvent {
	return QueryEvent{
		Type:       eventType,
		Timestamp:  time.Now().UnixMilli(),
		Expression: expression,
	}
}
