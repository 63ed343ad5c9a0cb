package rpc

import "github.com/cuemby/durabletask-sidecar/internal/model"

// ApproxSize estimates a history event's serialized size for the
// embed-vs-stream and chunk-framing decisions. It sums the lengths of the
// string-valued payload fields actually present on the event rather than
// depending on the wire codec, since the codec choice (codec.go) is
// itself an implementation detail the core doesn't need to expose here.
func ApproxSize(ev model.HistoryEvent) int {
	const baseOverhead = 64 // EventID, Timestamp, Kind, Trace pointer etc.
	size := baseOverhead

	switch ev.Kind {
	case model.EventExecutionStarted:
		if p := ev.ExecutionStarted; p != nil {
			size += len(p.Name) + len(p.Version) + len(p.Input) + len(p.ParentInstanceID)
		}
	case model.EventExecutionCompleted:
		if p := ev.ExecutionCompleted; p != nil {
			size += len(p.Result) + failureDetailsSize(p.FailureDetails)
		}
	case model.EventExecutionTerminated:
		if p := ev.ExecutionTerminated; p != nil {
			size += len(p.Reason)
		}
	case model.EventContinueAsNew:
		if p := ev.ContinueAsNew; p != nil {
			size += len(p.Input)
		}
	case model.EventTaskScheduled:
		if p := ev.TaskScheduled; p != nil {
			size += len(p.Name) + len(p.Version) + len(p.Input)
		}
	case model.EventTaskCompleted:
		if p := ev.TaskCompleted; p != nil {
			size += len(p.Result)
		}
	case model.EventTaskFailed:
		if p := ev.TaskFailed; p != nil {
			size += failureDetailsSize(p.FailureDetails)
		}
	case model.EventSubOrchestrationInstanceCreated:
		if p := ev.SubOrchestrationInstanceCreated; p != nil {
			size += len(p.Name) + len(p.Version) + len(p.Input) + len(p.InstanceID)
		}
	case model.EventSubOrchestrationInstanceCompleted:
		if p := ev.SubOrchestrationInstanceCompleted; p != nil {
			size += len(p.Result)
		}
	case model.EventSubOrchestrationInstanceFailed:
		if p := ev.SubOrchestrationInstanceFailed; p != nil {
			size += failureDetailsSize(p.FailureDetails)
		}
	case model.EventRaised:
		if p := ev.EventRaised; p != nil {
			size += len(p.Name) + len(p.Input)
		}
	case model.EventSent:
		if p := ev.EventSent; p != nil {
			size += len(p.InstanceID) + len(p.Name) + len(p.Input)
		}
	case model.EventGeneric:
		if p := ev.GenericEvent; p != nil {
			size += len(p.Data)
		}
	case model.EventHistoryState:
		if p := ev.HistoryState; p != nil {
			size += len(p.StateJSON)
		}
	}

	return size
}

func failureDetailsSize(f *model.TaskFailureDetails) int {
	if f == nil {
		return 0
	}
	size := len(f.ErrorType) + len(f.ErrorMessage) + len(f.StackTrace)
	for k, v := range f.Properties {
		size += len(k) + len(v.Str) + 16
	}
	return size + failureDetailsSize(f.InnerFailure)
}
