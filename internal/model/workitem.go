package model

// InstanceID identifies a logical orchestration across its executions.
// Comparisons are case-insensitive; use InstanceKey to derive a map key.
type InstanceID string

// InstanceKey normalizes an InstanceID for use as a map key.
func InstanceKey(id InstanceID) string {
	return toLower(string(id))
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ExecutionID identifies one execution (run) of an instance. A
// continue-as-new produces a new ExecutionID under the same InstanceID.
type ExecutionID string

// Instance identifies one execution of one orchestration instance.
type Instance struct {
	InstanceID  InstanceID
	ExecutionID ExecutionID
}

// OrchestratorWorkItem is the unit of work fetched from the orchestration
// service for an orchestrator episode.
type OrchestratorWorkItem struct {
	Instance   Instance
	PastEvents []HistoryEvent
	NewEvents  []HistoryEvent
	Trace      *TraceContext

	// LeaseToken is opaque to the core; it is passed back to the service
	// on completion/abandon/release/renew.
	LeaseToken string
}

// ActivityWorkItem is the unit of work fetched from the orchestration
// service for a single activity invocation.
type ActivityWorkItem struct {
	Instance       Instance
	ScheduledEvent HistoryEvent // Kind == EventTaskScheduled
	TaskID         int64
	Trace          *TraceContext

	LeaseToken string
}

// OrchestratorRequest is the wire-level shape of an orchestrator work item
// as sent to the worker. Exactly one of PastEvents or
// RequiresHistoryStreaming is meaningful: if RequiresHistoryStreaming is
// true, PastEvents is empty and the worker must call StreamInstanceHistory.
type OrchestratorRequest struct {
	InstanceID               InstanceID
	ExecutionID              ExecutionID
	PastEvents               []HistoryEvent
	NewEvents                []HistoryEvent
	RequiresHistoryStreaming bool
	Trace                    *TraceContext
}

// ActivityRequest is the wire-level shape of an activity work item as sent
// to the worker.
type ActivityRequest struct {
	TaskID      int64
	Name        string
	Version     string
	Input       string
	InstanceID  InstanceID
	ExecutionID ExecutionID
	Trace       *TraceContext
}

// WorkItemKind tags which request variant a WorkItemMessage carries.
type WorkItemKind string

const (
	WorkItemOrchestrator WorkItemKind = "orchestrator"
	WorkItemActivity     WorkItemKind = "activity"
)

// WorkItemMessage is the single message type written to the worker's
// server-streamed GetWorkItems channel.
type WorkItemMessage struct {
	Kind         WorkItemKind
	Orchestrator *OrchestratorRequest
	Activity     *ActivityRequest
}

// OrchestratorExecutionResult is the accumulated result of one orchestrator
// episode, built from one or more OrchestratorResponse chunks.
type OrchestratorExecutionResult struct {
	Actions            []OrchestratorAction
	CustomStatus       string
	OrchestrationTrace *TraceContext
}

// OrchestratorResponse is one reply chunk from the worker. IsPartial=true
// means more chunks follow; the terminal chunk has IsPartial=false and
// its CustomStatus/Trace are authoritative.
type OrchestratorResponse struct {
	InstanceID   InstanceID
	Actions      []OrchestratorAction
	CustomStatus string
	Trace        *TraceContext
	IsPartial    bool
}

// ActivityExecutionResult is the worker's reply for one activity invocation.
type ActivityExecutionResult struct {
	InstanceID     InstanceID
	TaskID         int64
	Result         string
	FailureDetails *TaskFailureDetails
}

// ToHistoryEvent converts an ActivityExecutionResult into the TaskCompleted
// or TaskFailed history event the activity dispatcher appends.
func (r ActivityExecutionResult) ToHistoryEvent() HistoryEvent {
	if r.FailureDetails != nil {
		return HistoryEvent{
			Kind: EventTaskFailed,
			TaskFailed: &TaskFailedEvent{
				TaskScheduledID: r.TaskID,
				FailureDetails:  r.FailureDetails,
			},
		}
	}
	return HistoryEvent{
		Kind: EventTaskCompleted,
		TaskCompleted: &TaskCompletedEvent{
			TaskScheduledID: r.TaskID,
			Result:          r.Result,
		},
	}
}

// WorkerCapabilities lists the optional features a connected worker
// advertises on GetWorkItems. HistoryStreaming is the only
// one the core interprets.
type WorkerCapabilities struct {
	HistoryStreaming bool
}

// HistoryChunk is one frame of a streamed past-events response.
type HistoryChunk struct {
	Events []HistoryEvent
}
