package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/durabletask-sidecar/internal/correlation"
	"github.com/cuemby/durabletask-sidecar/internal/history"
	"github.com/cuemby/durabletask-sidecar/internal/model"
	"github.com/cuemby/durabletask-sidecar/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// fakeServerStream is a minimal grpc.ServerStream for exercising the
// server-side handlers without a network connection.
type fakeServerStream struct {
	ctx  context.Context
	sent []interface{}
}

func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) Context() context.Context     { return f.ctx }
func (f *fakeServerStream) SendMsg(m interface{}) error {
	f.sent = append(f.sent, m)
	return nil
}
func (f *fakeServerStream) RecvMsg(m interface{}) error { return nil }

var _ grpc.ServerStream = (*fakeServerStream)(nil)

func newBridge() *Bridge {
	return NewBridge(signal.New(), correlation.NewOrchestratorRouter(), correlation.NewActivityRouter(), history.NewBuffer(), 1024, history.DefaultChunkBytes, ApproxSize)
}

func TestBridge_SecondConnectIsResourceExhausted(t *testing.T) {
	b := newBridge()

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	stream1 := &workItemsGetWorkItemsServer{&fakeServerStream{ctx: ctx1}}

	done := make(chan error, 1)
	go func() { done <- b.GetWorkItems(&GetWorkItemsRequest{}, stream1) }()

	require.Eventually(t, func() bool { return b.Traffic.IsSet() }, time.Second, time.Millisecond)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	stream2 := &workItemsGetWorkItemsServer{&fakeServerStream{ctx: ctx2}}
	err := b.GetWorkItems(&GetWorkItemsRequest{}, stream2)
	require.Error(t, err)

	cancel1()
	require.NoError(t, <-done)
}

func TestBridge_ExecuteOrchestratorHappyPath(t *testing.T) {
	b := newBridge()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	underlying := &fakeServerStream{ctx: ctx}
	stream := &workItemsGetWorkItemsServer{underlying}
	go b.GetWorkItems(&GetWorkItemsRequest{Capabilities: model.WorkerCapabilities{HistoryStreaming: true}}, stream)
	require.Eventually(t, func() bool { return b.Traffic.IsSet() }, time.Second, time.Millisecond)

	resultCh := make(chan model.OrchestratorExecutionResult, 1)
	errCh := make(chan error, 1)
	go func() {
		instance := model.Instance{InstanceID: "abc", ExecutionID: "exec-1"}
		past := []model.HistoryEvent{{Kind: model.EventExecutionStarted, ExecutionStarted: &model.ExecutionStartedEvent{Name: "X"}}}
		newEvents := []model.HistoryEvent{{Kind: model.EventTimerFired, TimerFired: &model.TimerFiredEvent{TimerID: 7}}}
		result, err := b.ExecuteOrchestrator(context.Background(), instance, past, newEvents, nil)
		resultCh <- result
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(underlying.sent) == 1 }, time.Second, time.Millisecond)
	msg := underlying.sent[0].(*model.WorkItemMessage)
	assert.Equal(t, model.WorkItemOrchestrator, msg.Kind)
	assert.False(t, msg.Orchestrator.RequiresHistoryStreaming)

	_, err := b.CompleteOrchestratorTask(context.Background(), &model.OrchestratorResponse{
		InstanceID:   "abc",
		Actions:      []model.OrchestratorAction{{ID: 8, Kind: model.ActionScheduleTask, ScheduleTask: &model.ScheduleTaskAction{Name: "Y", Input: "p"}}},
		CustomStatus: "s1",
	})
	require.NoError(t, err)

	require.NoError(t, <-errCh)
	result := <-resultCh
	assert.Equal(t, "s1", result.CustomStatus)
	assert.Len(t, result.Actions, 1)
	assert.Equal(t, 0, b.Orchestrators.PendingAndPartialCount())
}

func TestBridge_ExecuteOrchestratorStreamsOversizeHistory(t *testing.T) {
	b := newBridge()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	underlying := &fakeServerStream{ctx: ctx}
	stream := &workItemsGetWorkItemsServer{underlying}
	go b.GetWorkItems(&GetWorkItemsRequest{Capabilities: model.WorkerCapabilities{HistoryStreaming: true}}, stream)
	require.Eventually(t, func() bool { return b.Traffic.IsSet() }, time.Second, time.Millisecond)

	big := make([]model.HistoryEvent, 0, 64)
	for i := 0; i < 64; i++ {
		big = append(big, model.HistoryEvent{Kind: model.EventGeneric, GenericEvent: &model.GenericEventPayload{Data: string(make([]byte, 64))}})
	}

	errCh := make(chan error, 1)
	go func() {
		instance := model.Instance{InstanceID: "big1", ExecutionID: "exec-1"}
		_, err := b.ExecuteOrchestrator(context.Background(), instance, big, nil, nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(underlying.sent) == 1 }, time.Second, time.Millisecond)
	msg := underlying.sent[0].(*model.WorkItemMessage)
	assert.True(t, msg.Orchestrator.RequiresHistoryStreaming)
	assert.Empty(t, msg.Orchestrator.PastEvents)

	parked, ok := b.History.Get(model.InstanceKey("big1"))
	require.True(t, ok)
	assert.Len(t, parked, 64)

	historyStream := &workItemsStreamInstanceHistoryServer{&fakeServerStream{ctx: context.Background()}}
	err := b.StreamInstanceHistory(&StreamHistoryRequest{InstanceID: "big1"}, historyStream)
	require.NoError(t, err)
	sent := historyStream.ServerStream.(*fakeServerStream).sent
	// 64 events x ApproxSize 128 bytes = 8 KiB, which fits one 256 KiB chunk.
	assert.Len(t, sent, 1)

	_, err = b.CompleteOrchestratorTask(context.Background(), &model.OrchestratorResponse{InstanceID: "big1"})
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	_, stillParked := b.History.Get(model.InstanceKey("big1"))
	assert.False(t, stillParked)
}

func TestBridge_ExecuteActivityHappyPath(t *testing.T) {
	b := newBridge()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	underlying := &fakeServerStream{ctx: ctx}
	stream := &workItemsGetWorkItemsServer{underlying}
	go b.GetWorkItems(&GetWorkItemsRequest{}, stream)
	require.Eventually(t, func() bool { return b.Traffic.IsSet() }, time.Second, time.Millisecond)

	resultCh := make(chan model.HistoryEvent, 1)
	errCh := make(chan error, 1)
	go func() {
		instance := model.Instance{InstanceID: "xyz", ExecutionID: "exec-1"}
		event, err := b.ExecuteActivity(context.Background(), instance, 12, model.TaskScheduledEvent{Name: "Add", Input: "1,2"}, nil)
		resultCh <- event
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(underlying.sent) == 1 }, time.Second, time.Millisecond)

	_, err := b.CompleteActivityTask(context.Background(), &model.ActivityExecutionResult{InstanceID: "xyz", TaskID: 12, Result: "3"})
	require.NoError(t, err)

	require.NoError(t, <-errCh)
	event := <-resultCh
	assert.Equal(t, model.EventTaskCompleted, event.Kind)
	assert.Equal(t, "3", event.TaskCompleted.Result)
}

func TestBridge_AbandonEndpointsAreNoOps(t *testing.T) {
	b := newBridge()
	_, err := b.AbandonTaskOrchestratorWorkItem(context.Background(), &AbandonRequest{InstanceID: "abc"})
	require.NoError(t, err)
	_, err = b.AbandonTaskActivityWorkItem(context.Background(), &AbandonRequest{InstanceID: "abc", TaskID: 1})
	require.NoError(t, err)
}

func TestBridge_WriteWithoutConnectedWorkerFails(t *testing.T) {
	b := newBridge()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	instance := model.Instance{InstanceID: "nobody", ExecutionID: "e1"}
	_, err := b.ExecuteActivity(ctx, instance, 1, model.TaskScheduledEvent{Name: "Add"}, nil)
	require.Error(t, err)
	assert.Equal(t, 0, b.Activities.Len())
}
