package dispatch

import (
	"context"
	"time"

	"github.com/cuemby/durabletask-sidecar/internal/backend"
	"github.com/cuemby/durabletask-sidecar/internal/log"
	"github.com/cuemby/durabletask-sidecar/internal/model"
	"github.com/cuemby/durabletask-sidecar/internal/signal"
	"github.com/google/uuid"
)

// NewOrchestratorDispatcher builds the orchestrator dispatcher's Ops
// against the given orchestration-service and task-executor collaborators.
// replyTimeout, when non-zero, bounds how long execute waits for the
// worker's reply before abandoning the work item (see DESIGN.md's
// reply-future-timeout decision); zero preserves the original
// wait-forever behavior.
func NewOrchestratorDispatcher(svc backend.OrchestrationService, executor backend.TaskExecutor, replyTimeout time.Duration, traffic *signal.Signal) *Dispatcher[model.OrchestratorWorkItem] {
	logger := log.WithComponent("dispatcher.orchestrator")

	ops := Ops[model.OrchestratorWorkItem]{
		Name:           "orchestrator",
		MaxConcurrency: svc.MaxConcurrentOrchestratorWorkItems,
		Fetch: func(ctx context.Context) (model.OrchestratorWorkItem, bool, error) {
			item, err := svc.LockNextOrchestratorWorkItem(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return model.OrchestratorWorkItem{}, false, nil
				}
				return model.OrchestratorWorkItem{}, false, err
			}
			if item == nil {
				return model.OrchestratorWorkItem{}, false, nil
			}
			return *item, true, nil
		},
		Execute: func(ctx context.Context, item model.OrchestratorWorkItem) error {
			return executeOrchestratorWorkItem(ctx, svc, executor, item, replyTimeout)
		},
		Abandon: func(ctx context.Context, item model.OrchestratorWorkItem) {
			if err := svc.AbandonOrchestratorWorkItem(ctx, &item); err != nil {
				logger.Error().Err(err).Str("instance_id", string(item.Instance.InstanceID)).Msg("abandon failed")
			}
		},
		Release: func(ctx context.Context, item model.OrchestratorWorkItem) {},
		BackoffAfterFetchError: func(err error) time.Duration {
			return time.Duration(svc.DelaySecondsAfterFetchError(err)) * time.Second
		},
	}

	return New(ops, traffic)
}

func executeOrchestratorWorkItem(ctx context.Context, svc backend.OrchestrationService, executor backend.TaskExecutor, item model.OrchestratorWorkItem, replyTimeout time.Duration) error {
	execCtx := ctx
	if replyTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, replyTimeout)
		defer cancel()
	}

	result, err := executor.ExecuteOrchestrator(execCtx, item.Instance, item.PastEvents, item.NewEvents, item.Trace)
	if err != nil {
		return err
	}

	completion := collateOrchestratorActions(item.Instance, result)
	return svc.CompleteOrchestratorWorkItem(ctx, &item, completion)
}

// collateOrchestratorActions turns the worker's action list into the
// completion bundle the orchestration service expects, preserving
// action-list order for outbound messages.
func collateOrchestratorActions(instance model.Instance, result model.OrchestratorExecutionResult) backend.OrchestratorCompletion {
	completion := backend.OrchestratorCompletion{CustomStatus: result.CustomStatus}
	var continueAsNew *model.CompleteOrchestrationAction

	for _, action := range result.Actions {
		switch action.Kind {
		case model.ActionScheduleTask:
			a := action.ScheduleTask
			completion.OutboundMessages = append(completion.OutboundMessages, backend.OutboundMessage{
				Kind: backend.OutboundScheduleTask, TaskID: action.ID,
				InstanceID: instance.InstanceID, Name: a.Name, Version: a.Version, Input: a.Input,
			})
			completion.NewEvents = append(completion.NewEvents, model.HistoryEvent{
				Kind: model.EventTaskScheduled,
				TaskScheduled: &model.TaskScheduledEvent{Name: a.Name, Version: a.Version, Input: a.Input},
			})

		case model.ActionCreateSubOrchestration:
			a := action.CreateSubOrchestration
			completion.OutboundMessages = append(completion.OutboundMessages, backend.OutboundMessage{
				Kind: backend.OutboundCreateSubOrchestration, TaskID: action.ID,
				InstanceID: model.InstanceID(a.InstanceID), Name: a.Name, Version: a.Version, Input: a.Input,
			})
			completion.NewEvents = append(completion.NewEvents, model.HistoryEvent{
				Kind: model.EventSubOrchestrationInstanceCreated,
				SubOrchestrationInstanceCreated: &model.SubOrchestrationCreatedEvent{
					Name: a.Name, Version: a.Version, Input: a.Input, InstanceID: a.InstanceID,
				},
			})

		case model.ActionCreateTimer:
			a := action.CreateTimer
			completion.TimerMessages = append(completion.TimerMessages, backend.TimerMessage{TimerID: action.ID, FireAt: a.FireAt})
			completion.NewEvents = append(completion.NewEvents, model.HistoryEvent{
				Kind: model.EventTimerCreated, TimerCreated: &model.TimerCreatedEvent{FireAt: a.FireAt},
			})

		case model.ActionSendEvent:
			a := action.SendEvent
			completion.OutboundMessages = append(completion.OutboundMessages, backend.OutboundMessage{
				Kind: backend.OutboundSendEvent, TaskID: action.ID,
				InstanceID: model.InstanceID(a.InstanceID), Name: a.Name, Input: a.Input,
			})
			completion.NewEvents = append(completion.NewEvents, model.HistoryEvent{
				Kind: model.EventSent, EventSent: &model.EventSentEvent{InstanceID: a.InstanceID, Name: a.Name, Input: a.Input},
			})

		case model.ActionCompleteOrchestration:
			a := action.CompleteOrchestration
			completion.NewEvents = append(completion.NewEvents, model.HistoryEvent{
				Kind: model.EventExecutionCompleted,
				ExecutionCompleted: &model.ExecutionCompletedEvent{
					OrchestrationStatus: a.Status, Result: a.Result, FailureDetails: a.FailureDetails,
				},
			})
			if a.Status == model.StatusContinuedAsNew && a.ContinueAsNewInput != nil {
				continueAsNew = a
			}
		}
	}

	// Built after the loop so CarryoverTimers sees every CreateTimer action
	// in the list, regardless of where CompleteOrchestration falls among
	// them.
	if continueAsNew != nil {
		completion.ContinueAsNew = &backend.ContinueAsNewMessage{
			NewExecutionID:   model.ExecutionID(uuid.NewString()),
			ExecutionStarted: model.ExecutionStartedEvent{Input: continueAsNew.ContinueAsNewInput.Input, Version: continueAsNew.NewVersion},
			CarryoverEvents:  continueAsNew.ContinueAsNewInput.CarryoverEvents,
			CarryoverTimers:  append([]backend.TimerMessage(nil), completion.TimerMessages...),
		}
	}

	return completion
}
