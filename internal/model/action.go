package model

import "time"

// ActionKind tags the variant carried by an OrchestratorAction.
type ActionKind string

const (
	ActionScheduleTask           ActionKind = "ScheduleTask"
	ActionCreateSubOrchestration ActionKind = "CreateSubOrchestration"
	ActionCreateTimer            ActionKind = "CreateTimer"
	ActionSendEvent              ActionKind = "SendEvent"
	ActionCompleteOrchestration  ActionKind = "CompleteOrchestration"
)

// OrchestratorAction is a tagged record produced by the worker describing
// what to do next.
type OrchestratorAction struct {
	ID   int64
	Kind ActionKind

	ScheduleTask           *ScheduleTaskAction
	CreateSubOrchestration *CreateSubOrchestrationAction
	CreateTimer            *CreateTimerAction
	SendEvent              *SendEventAction
	CompleteOrchestration  *CompleteOrchestrationAction
}

// ScheduleTaskAction schedules an activity invocation.
type ScheduleTaskAction struct {
	Name    string
	Version string
	Input   string
}

// CreateSubOrchestrationAction schedules a sub-orchestration.
type CreateSubOrchestrationAction struct {
	Name       string
	Version    string
	Input      string
	InstanceID string
}

// CreateTimerAction schedules a durable timer to fire at an absolute time.
type CreateTimerAction struct {
	FireAt time.Time
}

// SendEventAction sends an external event to another instance.
type SendEventAction struct {
	InstanceID string
	Name       string
	Input      string
}

// CompleteOrchestrationAction finishes the orchestration episode, optionally
// carrying a continue-as-new payload.
type CompleteOrchestrationAction struct {
	Status         OrchestrationStatus
	Result         string
	FailureDetails *TaskFailureDetails
	NewVersion     string

	// ContinueAsNewInput is non-nil iff Status == StatusContinuedAsNew.
	ContinueAsNewInput *ContinueAsNewPayload
}

// ContinueAsNewPayload carries the new execution's starting input plus the
// carryover events the new execution should start with. Only raised-event
// carryovers are supported.
type ContinueAsNewPayload struct {
	Input           string
	CarryoverEvents []EventRaisedEvent
	SaveEvents      bool
}
