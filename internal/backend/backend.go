// Package backend declares the two external collaborator contracts the
// dispatcher core depends on but does not implement: the persistent
// orchestration service (lease-backed work-item storage) and the task
// executor the gRPC bridge provides to the dispatchers.
package backend

import (
	"context"
	"time"

	"github.com/cuemby/durabletask-sidecar/internal/model"
)

// OutboundKind tags the variant of an OutboundMessage.
type OutboundKind string

const (
	OutboundScheduleTask           OutboundKind = "ScheduleTask"
	OutboundCreateSubOrchestration OutboundKind = "CreateSubOrchestration"
	OutboundSendEvent              OutboundKind = "SendEvent"
)

// OutboundMessage is one non-terminal action collated from an
// orchestrator's action list, addressed to the instance that should
// receive it.
type OutboundMessage struct {
	Kind       OutboundKind
	TaskID     int64
	InstanceID model.InstanceID
	Name       string
	Version    string
	Input      string
}

// TimerMessage schedules a durable timer.
type TimerMessage struct {
	TimerID int64
	FireAt  time.Time
}

// ContinueAsNewMessage carries the fresh ExecutionStarted the dispatcher
// emits to the same instance id when an orchestrator completes with
// CompleteOrchestration(ContinueAsNew).
type ContinueAsNewMessage struct {
	NewExecutionID   model.ExecutionID
	ExecutionStarted model.ExecutionStartedEvent
	CarryoverEvents  []model.EventRaisedEvent
	// CarryoverTimers carries pending timers (from this same completion's
	// TimerMessages) forward to the new execution rather than dropping
	// them when an episode continues-as-new.
	CarryoverTimers []TimerMessage
}

// OrchestratorCompletion is the bundle the orchestrator dispatcher hands
// to OrchestrationService.CompleteOrchestratorWorkItem: everything needed
// to atomically append history and release the lease.
type OrchestratorCompletion struct {
	NewEvents        []model.HistoryEvent
	OutboundMessages []OutboundMessage
	TimerMessages    []TimerMessage
	ContinueAsNew    *ContinueAsNewMessage
	CustomStatus     string
}

// OrchestrationService is the persistent-storage collaborator: lease
// acquisition, renewal, abandon, and atomic completion for both work-item
// kinds. Implementations own history, message queues, and leases; the
// dispatcher core treats this purely as an interface.
type OrchestrationService interface {
	LockNextOrchestratorWorkItem(ctx context.Context) (*model.OrchestratorWorkItem, error)
	LockNextActivityWorkItem(ctx context.Context) (*model.ActivityWorkItem, error)

	RenewOrchestratorWorkItem(ctx context.Context, item *model.OrchestratorWorkItem) (*model.OrchestratorWorkItem, error)
	RenewActivityWorkItem(ctx context.Context, item *model.ActivityWorkItem) (*model.ActivityWorkItem, error)

	AbandonOrchestratorWorkItem(ctx context.Context, item *model.OrchestratorWorkItem) error
	AbandonActivityWorkItem(ctx context.Context, item *model.ActivityWorkItem) error

	CompleteOrchestratorWorkItem(ctx context.Context, item *model.OrchestratorWorkItem, completion OrchestratorCompletion) error
	CompleteActivityWorkItem(ctx context.Context, item *model.ActivityWorkItem, response model.HistoryEvent) error

	MaxConcurrentOrchestratorWorkItems() int
	MaxConcurrentActivityWorkItems() int

	// DelaySecondsAfterFetchError returns how long the fetch loop should
	// back off after a failed lock attempt.
	DelaySecondsAfterFetchError(err error) int
}

// TaskExecutor is the contract the gRPC bridge satisfies for the
// dispatchers: ship a work item to the worker and await its reply.
type TaskExecutor interface {
	ExecuteOrchestrator(ctx context.Context, instance model.Instance, pastEvents, newEvents []model.HistoryEvent, trace *model.TraceContext) (model.OrchestratorExecutionResult, error)
	ExecuteActivity(ctx context.Context, instance model.Instance, taskID int64, scheduled model.TaskScheduledEvent, trace *model.TraceContext) (model.HistoryEvent, error)
}
