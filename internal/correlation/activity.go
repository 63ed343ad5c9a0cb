package correlation

import (
	"fmt"

	"github.com/cuemby/durabletask-sidecar/internal/model"
	"github.com/cuemby/durabletask-sidecar/internal/rpcerr"
)

// ActivityResult is what an activity dispatch ultimately receives: the
// TaskCompleted/TaskFailed history event to append.
type ActivityResult = model.HistoryEvent

// ActivityKey builds the activity pending-correlation key:
// instance_id + "_" + task_id.
func ActivityKey(instanceID model.InstanceID, taskID int64) string {
	return fmt.Sprintf("%s_%d", model.InstanceKey(instanceID), taskID)
}

// ActivityRouter owns the activity pending-correlation table. Unlike
// orchestrator replies, activity replies never arrive in chunks, so no
// accumulator is needed.
type ActivityRouter struct {
	pending Table[ActivityResult]
}

// NewActivityRouter constructs an empty router.
func NewActivityRouter() *ActivityRouter {
	return &ActivityRouter{}
}

// Register records a new pending activity dispatch.
func (r *ActivityRouter) Register(key string) (*Future[ActivityResult], bool) {
	return r.pending.Register(key)
}

// Abort removes a pending correlation without a reply and fails its future.
func (r *ActivityRouter) Abort(key string, err error) {
	if f, ok := r.pending.Remove(key); ok {
		f.Fail(err)
	}
}

// Complete resolves the pending correlation for (instanceID, taskID) with
// the given result, derived from a CompleteActivityTask call. Returns
// rpcerr.NotFound if no correlation is pending.
func (r *ActivityRouter) Complete(result model.ActivityExecutionResult) error {
	key := ActivityKey(result.InstanceID, result.TaskID)
	f, ok := r.pending.Remove(key)
	if !ok {
		return notFoundActivity(result.InstanceID, result.TaskID)
	}
	f.Resolve(result.ToHistoryEvent())
	return nil
}

// FailAll resolves every currently pending activity correlation with err.
func (r *ActivityRouter) FailAll(err error) {
	for _, key := range r.pending.Keys() {
		if f, ok := r.pending.Remove(key); ok {
			f.Fail(err)
		}
	}
}

// Len reports the current number of pending activity correlations.
func (r *ActivityRouter) Len() int {
	return r.pending.Len()
}

func notFoundActivity(instanceID model.InstanceID, taskID int64) error {
	return rpcerr.New(rpcerr.NotFound, "no pending activity correlation for instance %q task %d", instanceID, taskID)
}
