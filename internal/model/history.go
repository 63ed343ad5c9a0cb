// Package model holds the wire-agnostic data model shared by the dispatcher
// core: history events, orchestrator actions, task failure details, work
// items, and execution results.
package model

import "time"

// EventKind tags the variant carried by a HistoryEvent.
type EventKind string

const (
	EventExecutionStarted                  EventKind = "ExecutionStarted"
	EventExecutionCompleted                EventKind = "ExecutionCompleted"
	EventExecutionTerminated               EventKind = "ExecutionTerminated"
	EventExecutionSuspended                EventKind = "ExecutionSuspended"
	EventExecutionResumed                  EventKind = "ExecutionResumed"
	EventContinueAsNew                     EventKind = "ContinueAsNew"
	EventTaskScheduled                     EventKind = "TaskScheduled"
	EventTaskCompleted                     EventKind = "TaskCompleted"
	EventTaskFailed                        EventKind = "TaskFailed"
	EventSubOrchestrationInstanceCreated   EventKind = "SubOrchestrationInstanceCreated"
	EventSubOrchestrationInstanceCompleted EventKind = "SubOrchestrationInstanceCompleted"
	EventSubOrchestrationInstanceFailed    EventKind = "SubOrchestrationInstanceFailed"
	EventTimerCreated                      EventKind = "TimerCreated"
	EventTimerFired                        EventKind = "TimerFired"
	EventRaised                            EventKind = "EventRaised"
	EventSent                              EventKind = "EventSent"
	EventOrchestratorStarted               EventKind = "OrchestratorStarted"
	EventOrchestratorCompleted             EventKind = "OrchestratorCompleted"
	EventGeneric                           EventKind = "GenericEvent"
	EventHistoryState                      EventKind = "HistoryState"
)

// OrchestrationStatus is the terminal (or in-progress) status of an
// orchestration instance.
type OrchestrationStatus string

const (
	StatusRunning        OrchestrationStatus = "Running"
	StatusCompleted      OrchestrationStatus = "Completed"
	StatusFailed         OrchestrationStatus = "Failed"
	StatusTerminated     OrchestrationStatus = "Terminated"
	StatusContinuedAsNew OrchestrationStatus = "ContinuedAsNew"
	StatusSuspended      OrchestrationStatus = "Suspended"
)

// TraceContext carries distributed-tracing metadata that a handful of
// event kinds optionally attach.
type TraceContext struct {
	TraceParent   string
	TraceState    string
	SpanID        string
	SpanStartedAt time.Time
}

// HistoryEvent is a tagged record with a monotonically assigned EventID, a
// UTC timestamp, and a Kind-specific payload. Exactly one of the
// Kind-specific fields below is populated, matching Kind.
type HistoryEvent struct {
	EventID   int64
	Timestamp time.Time
	Kind      EventKind
	Trace     *TraceContext

	ExecutionStarted                  *ExecutionStartedEvent
	ExecutionCompleted                *ExecutionCompletedEvent
	ExecutionTerminated               *ExecutionTerminatedEvent
	ContinueAsNew                     *ContinueAsNewEvent
	TaskScheduled                     *TaskScheduledEvent
	TaskCompleted                     *TaskCompletedEvent
	TaskFailed                        *TaskFailedEvent
	SubOrchestrationInstanceCreated   *SubOrchestrationCreatedEvent
	SubOrchestrationInstanceCompleted *SubOrchestrationCompletedEvent
	SubOrchestrationInstanceFailed    *SubOrchestrationFailedEvent
	TimerCreated                      *TimerCreatedEvent
	TimerFired                        *TimerFiredEvent
	EventRaised                       *EventRaisedEvent
	EventSent                         *EventSentEvent
	GenericEvent                      *GenericEventPayload
	HistoryState                      *HistoryStatePayload
}

// ExecutionStartedEvent starts a new execution of an instance.
type ExecutionStartedEvent struct {
	Name               string
	Version            string
	Input              string
	ParentInstanceID   string
	ScheduledStartTime *time.Time
}

// ExecutionCompletedEvent terminates an execution, successfully or not.
type ExecutionCompletedEvent struct {
	OrchestrationStatus OrchestrationStatus
	Result              string
	FailureDetails      *TaskFailureDetails
}

// ExecutionTerminatedEvent force-terminates a running instance.
type ExecutionTerminatedEvent struct {
	Reason string
}

// ContinueAsNewEvent records a continue-as-new transition.
type ContinueAsNewEvent struct {
	Input string
}

// TaskScheduledEvent records an activity being scheduled.
type TaskScheduledEvent struct {
	Name    string
	Version string
	Input   string
}

// TaskCompletedEvent carries an activity's successful result.
type TaskCompletedEvent struct {
	TaskScheduledID int64
	Result          string
}

// TaskFailedEvent carries an activity's failure.
type TaskFailedEvent struct {
	TaskScheduledID int64
	FailureDetails  *TaskFailureDetails
}

// SubOrchestrationCreatedEvent records a sub-orchestration being scheduled.
type SubOrchestrationCreatedEvent struct {
	Name       string
	Version    string
	Input      string
	InstanceID string
}

// SubOrchestrationCompletedEvent carries a sub-orchestration's result.
type SubOrchestrationCompletedEvent struct {
	TaskScheduledID int64
	Result          string
}

// SubOrchestrationFailedEvent carries a sub-orchestration's failure.
type SubOrchestrationFailedEvent struct {
	TaskScheduledID int64
	FailureDetails  *TaskFailureDetails
}

// TimerCreatedEvent records a timer being scheduled.
type TimerCreatedEvent struct {
	FireAt time.Time
}

// TimerFiredEvent records a timer firing.
type TimerFiredEvent struct {
	TimerID int64
	FireAt  time.Time
}

// EventRaisedEvent carries an external event raised against an instance.
type EventRaisedEvent struct {
	Name  string
	Input string
}

// EventSentEvent records an outbound event sent to another instance.
type EventSentEvent struct {
	InstanceID string
	Name       string
	Input      string
}

// GenericEventPayload carries an opaque, backend-defined payload.
type GenericEventPayload struct {
	Data string
}

// HistoryStatePayload carries a serialized orchestration runtime state
// snapshot (used by some backends instead of full replay).
type HistoryStatePayload struct {
	StateJSON string
}

// TaskFailureDetails is a recursively-nestable failure description.
type TaskFailureDetails struct {
	ErrorType      string
	ErrorMessage   string
	StackTrace     string
	InnerFailure   *TaskFailureDetails
	IsNonRetriable bool
	Properties     map[string]Value
}
