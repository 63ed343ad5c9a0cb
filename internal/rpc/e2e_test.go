package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/durabletask-sidecar/internal/backend/memory"
	"github.com/cuemby/durabletask-sidecar/internal/correlation"
	"github.com/cuemby/durabletask-sidecar/internal/dispatch"
	"github.com/cuemby/durabletask-sidecar/internal/history"
	"github.com/cuemby/durabletask-sidecar/internal/model"
	"github.com/cuemby/durabletask-sidecar/internal/signal"
	"github.com/stretchr/testify/require"
)

// simulatedWorker drains the work-item stream captured by a fakeServerStream
// and replies to each message through the bridge's unary completion
// endpoints, mimicking what a real SDK worker process does.
type simulatedWorker struct {
	t      *testing.T
	bridge *Bridge
	stream *fakeServerStream
	seen   int
}

func (w *simulatedWorker) runUntil(n int, timeout time.Duration) {
	require.Eventually(w.t, func() bool {
		for w.seen < len(w.stream.sent) {
			msg := w.stream.sent[w.seen].(*model.WorkItemMessage)
			w.seen++
			w.reply(msg)
		}
		return w.seen >= n
	}, timeout, time.Millisecond)
}

func (w *simulatedWorker) reply(msg *model.WorkItemMessage) {
	switch msg.Kind {
	case model.WorkItemOrchestrator:
		_, err := w.bridge.CompleteOrchestratorTask(context.Background(), &model.OrchestratorResponse{
			InstanceID: msg.Orchestrator.InstanceID,
			Actions: []model.OrchestratorAction{
				{ID: 1, Kind: model.ActionScheduleTask, ScheduleTask: &model.ScheduleTaskAction{Name: "DoWork", Input: "42"}},
			},
			CustomStatus: "scheduled",
		})
		require.NoError(w.t, err)
	case model.WorkItemActivity:
		_, err := w.bridge.CompleteActivityTask(context.Background(), &model.ActivityExecutionResult{
			InstanceID: msg.Activity.InstanceID,
			TaskID:     msg.Activity.TaskID,
			Result:     "84",
		})
		require.NoError(w.t, err)
	}
}

// TestEndToEnd_OrchestratorSchedulesActivityAndCompletes drives the full
// stack -- bridge, both dispatchers, the in-memory orchestration service,
// and the dispatcher host -- through one orchestrator episode that
// schedules an activity and a second episode that observes its result.
func TestEndToEnd_OrchestratorSchedulesActivityAndCompletes(t *testing.T) {
	traffic := signal.New()
	bridge := NewBridge(traffic, correlation.NewOrchestratorRouter(), correlation.NewActivityRouter(), history.NewBuffer(), 1024, history.DefaultChunkBytes, ApproxSize)
	svc := memory.New(10, 10)

	orchDispatcher := dispatch.NewOrchestratorDispatcher(svc, bridge, 0, traffic)
	actDispatcher := dispatch.NewActivityDispatcher(svc, bridge, 0, traffic)
	host := dispatch.NewHost(orchDispatcher, actDispatcher, traffic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go host.Start(ctx)
	defer host.Stop()

	streamCtx, streamCancel := context.WithCancel(context.Background())
	defer streamCancel()
	underlying := &fakeServerStream{ctx: streamCtx}
	stream := &workItemsGetWorkItemsServer{underlying}
	go bridge.GetWorkItems(&GetWorkItemsRequest{}, stream)
	require.Eventually(t, func() bool { return bridge.Traffic.IsSet() }, time.Second, time.Millisecond)

	worker := &simulatedWorker{t: t, bridge: bridge, stream: underlying}

	instanceID := svc.StartNewInstance("MyOrchestration", "seed")

	// First episode: the orchestrator schedules an activity.
	worker.runUntil(1, time.Second)

	// The activity work item (message 2), then the second episode its reply
	// re-drives (message 3), whose completion commits TaskCompleted.
	worker.runUntil(3, time.Second)

	require.Eventually(t, func() bool {
		h := svc.History(instanceID)
		for _, ev := range h {
			if ev.Kind == model.EventTaskCompleted {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	hist := svc.History(instanceID)
	var sawScheduled, sawCompleted bool
	for _, ev := range hist {
		switch ev.Kind {
		case model.EventTaskScheduled:
			sawScheduled = true
		case model.EventTaskCompleted:
			sawCompleted = true
			require.Equal(t, "84", ev.TaskCompleted.Result)
		}
	}
	require.True(t, sawScheduled)
	require.True(t, sawCompleted)
}

// TestEndToEnd_SecondWorkerRejectedWhileFirstConnected exercises the
// single-worker constraint through the full stack: a second GetWorkItems
// call must fail with the first connection still live.
func TestEndToEnd_SecondWorkerRejectedWhileFirstConnected(t *testing.T) {
	traffic := signal.New()
	bridge := NewBridge(traffic, correlation.NewOrchestratorRouter(), correlation.NewActivityRouter(), history.NewBuffer(), 1024, history.DefaultChunkBytes, ApproxSize)

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	stream1 := &workItemsGetWorkItemsServer{&fakeServerStream{ctx: ctx1}}
	done := make(chan error, 1)
	go func() { done <- bridge.GetWorkItems(&GetWorkItemsRequest{}, stream1) }()
	require.Eventually(t, func() bool { return bridge.Traffic.IsSet() }, time.Second, time.Millisecond)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	stream2 := &workItemsGetWorkItemsServer{&fakeServerStream{ctx: ctx2}}
	err := bridge.GetWorkItems(&GetWorkItemsRequest{}, stream2)
	require.Error(t, err)

	cancel1()
	require.NoError(t, <-done)
}

// TestEndToEnd_WorkerDisconnectFailsPendingCorrelation verifies that when
// the worker stream ends while an orchestrator episode is still awaiting
// its reply, the dispatcher's execute call fails instead of hanging
// forever, so the work item can be abandoned and retried.
func TestEndToEnd_WorkerDisconnectFailsPendingCorrelation(t *testing.T) {
	traffic := signal.New()
	bridge := NewBridge(traffic, correlation.NewOrchestratorRouter(), correlation.NewActivityRouter(), history.NewBuffer(), 1024, history.DefaultChunkBytes, ApproxSize)
	svc := memory.New(10, 10)

	orchDispatcher := dispatch.NewOrchestratorDispatcher(svc, bridge, 0, traffic)
	actDispatcher := dispatch.NewActivityDispatcher(svc, bridge, 0, traffic)
	host := dispatch.NewHost(orchDispatcher, actDispatcher, traffic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go host.Start(ctx)
	defer host.Stop()

	streamCtx, streamCancel := context.WithCancel(context.Background())
	underlying := &fakeServerStream{ctx: streamCtx}
	stream := &workItemsGetWorkItemsServer{underlying}
	go bridge.GetWorkItems(&GetWorkItemsRequest{}, stream)
	require.Eventually(t, func() bool { return bridge.Traffic.IsSet() }, time.Second, time.Millisecond)

	instanceID := svc.StartNewInstance("MyOrchestration", "seed")

	require.Eventually(t, func() bool { return len(underlying.sent) == 1 }, time.Second, time.Millisecond)

	// Disconnect the worker stream before it replies.
	streamCancel()

	require.Eventually(t, func() bool {
		h := svc.History(instanceID)
		// execute returned (nothing in flight, correlation gone) and the work
		// item was abandoned before completion, so nothing committed.
		return orchDispatcher.InFlight() == 0 && bridge.Orchestrators.PendingAndPartialCount() == 0 && len(h) == 0
	}, time.Second, time.Millisecond)
}
