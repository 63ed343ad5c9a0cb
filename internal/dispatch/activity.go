package dispatch

import (
	"context"
	"time"

	"github.com/cuemby/durabletask-sidecar/internal/backend"
	"github.com/cuemby/durabletask-sidecar/internal/log"
	"github.com/cuemby/durabletask-sidecar/internal/model"
	"github.com/cuemby/durabletask-sidecar/internal/signal"
)

// NewActivityDispatcher builds the activity dispatcher's Ops against the
// given orchestration-service and task-executor collaborators.
func NewActivityDispatcher(svc backend.OrchestrationService, executor backend.TaskExecutor, replyTimeout time.Duration, traffic *signal.Signal) *Dispatcher[model.ActivityWorkItem] {
	logger := log.WithComponent("dispatcher.activity")

	ops := Ops[model.ActivityWorkItem]{
		Name:           "activity",
		MaxConcurrency: svc.MaxConcurrentActivityWorkItems,
		Fetch: func(ctx context.Context) (model.ActivityWorkItem, bool, error) {
			item, err := svc.LockNextActivityWorkItem(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return model.ActivityWorkItem{}, false, nil
				}
				return model.ActivityWorkItem{}, false, err
			}
			if item == nil {
				return model.ActivityWorkItem{}, false, nil
			}
			return *item, true, nil
		},
		Execute: func(ctx context.Context, item model.ActivityWorkItem) error {
			return executeActivityWorkItem(ctx, svc, executor, item, replyTimeout)
		},
		Abandon: func(ctx context.Context, item model.ActivityWorkItem) {
			if err := svc.AbandonActivityWorkItem(ctx, &item); err != nil {
				logger.Error().Err(err).Str("instance_id", string(item.Instance.InstanceID)).Msg("abandon failed")
			}
		},
		Release: func(ctx context.Context, item model.ActivityWorkItem) {},
		BackoffAfterFetchError: func(err error) time.Duration {
			return time.Duration(svc.DelaySecondsAfterFetchError(err)) * time.Second
		},
	}

	return New(ops, traffic)
}

func executeActivityWorkItem(ctx context.Context, svc backend.OrchestrationService, executor backend.TaskExecutor, item model.ActivityWorkItem, replyTimeout time.Duration) error {
	execCtx := ctx
	if replyTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, replyTimeout)
		defer cancel()
	}

	scheduled := *item.ScheduledEvent.TaskScheduled
	result, err := executor.ExecuteActivity(execCtx, item.Instance, item.TaskID, scheduled, item.Trace)
	if err != nil {
		return err
	}

	return svc.CompleteActivityWorkItem(ctx, &item, result)
}
