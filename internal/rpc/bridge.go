package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/durabletask-sidecar/internal/correlation"
	"github.com/cuemby/durabletask-sidecar/internal/history"
	"github.com/cuemby/durabletask-sidecar/internal/log"
	"github.com/cuemby/durabletask-sidecar/internal/metrics"
	"github.com/cuemby/durabletask-sidecar/internal/model"
	"github.com/cuemby/durabletask-sidecar/internal/rpcerr"
	"github.com/cuemby/durabletask-sidecar/internal/signal"
)

// connectRetries and connectRetryInterval bound how long GetWorkItems waits
// for the traffic signal to become available before failing the second
// connection attempt with ResourceExhausted.
const (
	connectRetries       = 5
	connectRetryInterval = 10 * time.Millisecond
)

// Bridge is the single worker-facing gRPC endpoint. It owns the one
// server-stream writer a connected worker gets, the 1-permit semaphore
// guarding writes to it, and the correlation/history-buffer state the
// dispatch side and the worker-facing RPCs both touch.
type Bridge struct {
	Traffic       *signal.Signal
	Orchestrators *correlation.OrchestratorRouter
	Activities    *correlation.ActivityRouter
	History       *history.Buffer

	// EmbedThreshold is the past-events serialized-size bound past which
	// (when the worker advertises HistoryStreaming) events are parked in
	// History instead of embedded in the work item.
	EmbedThreshold int
	// ChunkBytes bounds the size of each StreamInstanceHistory chunk.
	ChunkBytes int
	// SizeOf estimates an event's serialized size for both decisions above.
	SizeOf history.EventSizer

	// FailPendingOnDisconnect resolves every pending correlation with a
	// WorkerDisconnect error as soon as the worker stream tears down,
	// rather than leaving dispatchers awaiting a future that will only
	// ever be settled by lease expiry on the orchestration-service side.
	FailPendingOnDisconnect bool

	mu     sync.Mutex
	stream WorkItems_GetWorkItemsServer
	caps   model.WorkerCapabilities

	writeSem chan struct{}
	initOnce sync.Once
}

// NewBridge constructs a Bridge with the given collaborators.
func NewBridge(traffic *signal.Signal, orch *correlation.OrchestratorRouter, act *correlation.ActivityRouter, hist *history.Buffer, embedThreshold, chunkBytes int, sizeOf history.EventSizer) *Bridge {
	return &Bridge{
		Traffic:                 traffic,
		Orchestrators:           orch,
		Activities:              act,
		History:                 hist,
		EmbedThreshold:          embedThreshold,
		ChunkBytes:              chunkBytes,
		SizeOf:                  sizeOf,
		FailPendingOnDisconnect: true,
		writeSem:                make(chan struct{}, 1),
	}
}

func (b *Bridge) init() {
	b.initOnce.Do(func() {
		if b.writeSem == nil {
			b.writeSem = make(chan struct{}, 1)
		}
	})
}

// GetWorkItems is the worker's single long-lived inbound channel. Exactly
// one worker may hold it at a time.
func (b *Bridge) GetWorkItems(req *GetWorkItemsRequest, stream WorkItems_GetWorkItemsServer) error {
	b.init()

	acquired := b.Traffic.Set()
	for attempt := 0; !acquired && attempt < connectRetries; attempt++ {
		time.Sleep(connectRetryInterval)
		acquired = b.Traffic.Set()
	}
	if !acquired {
		metrics.ConnectAttemptsRejectedTotal.Inc()
		return rpcerr.ToStatus(rpcerr.New(rpcerr.ResourceExhausted, "a worker is already connected"))
	}

	b.mu.Lock()
	b.stream = stream
	b.caps = req.Capabilities
	b.mu.Unlock()
	metrics.TrafficSignalSet.Set(1)
	log.Info("worker connected")

	<-stream.Context().Done()

	b.mu.Lock()
	b.stream = nil
	b.caps = model.WorkerCapabilities{}
	b.mu.Unlock()
	b.Traffic.Reset()
	metrics.TrafficSignalSet.Set(0)

	if b.FailPendingOnDisconnect {
		err := rpcerr.New(rpcerr.WorkerDisconnect, "worker disconnected")
		b.Orchestrators.FailAll(err)
		b.Activities.FailAll(err)
	}

	go b.logWaitingForConnection()
	return nil
}

// logWaitingForConnection logs once a minute until the traffic signal is
// set again, so operators watching logs see the gap between disconnect and
// the next worker showing up.
func (b *Bridge) logWaitingForConnection() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		if b.Traffic.IsSet() {
			return
		}
		log.Info("waiting for worker connection")
		<-ticker.C
	}
}

// CompleteOrchestratorTask resolves (or accumulates into) the pending
// orchestrator correlation named by resp.InstanceID.
func (b *Bridge) CompleteOrchestratorTask(ctx context.Context, resp *model.OrchestratorResponse) (*Empty, error) {
	if err := b.Orchestrators.HandleResponse(*resp); err != nil {
		return nil, rpcerr.ToStatus(err)
	}
	return &Empty{}, nil
}

// CompleteActivityTask resolves the pending activity correlation named by
// (result.InstanceID, result.TaskID).
func (b *Bridge) CompleteActivityTask(ctx context.Context, result *model.ActivityExecutionResult) (*Empty, error) {
	if err := b.Activities.Complete(*result); err != nil {
		return nil, rpcerr.ToStatus(err)
	}
	return &Empty{}, nil
}

// AbandonTaskOrchestratorWorkItem is a no-op; the dispatcher abandons via
// the orchestration-service backend directly.
func (b *Bridge) AbandonTaskOrchestratorWorkItem(ctx context.Context, req *AbandonRequest) (*Empty, error) {
	return &Empty{}, nil
}

// AbandonTaskActivityWorkItem is a no-op; the dispatcher abandons via the
// orchestration-service backend directly.
func (b *Bridge) AbandonTaskActivityWorkItem(ctx context.Context, req *AbandonRequest) (*Empty, error) {
	return &Empty{}, nil
}

// StreamInstanceHistory serves the parked past-events list for an
// instance whose work item declared "must stream".
func (b *Bridge) StreamInstanceHistory(req *StreamHistoryRequest, stream WorkItems_StreamInstanceHistoryServer) error {
	events, ok := b.History.Get(model.InstanceKey(req.InstanceID))
	if !ok {
		return rpcerr.ToStatus(rpcerr.New(rpcerr.NotFound, "no parked history for instance %q", req.InstanceID))
	}
	for _, chunk := range history.Chunk(events, b.ChunkBytes, b.SizeOf) {
		c := chunk
		if err := stream.Send(&c); err != nil {
			return err
		}
		metrics.HistoryChunksSentTotal.Inc()
	}
	return nil
}

// ExecuteOrchestrator is the dispatch-side call the orchestrator
// dispatcher makes to ship a work item to the worker and await its reply.
func (b *Bridge) ExecuteOrchestrator(ctx context.Context, instance model.Instance, pastEvents, newEvents []model.HistoryEvent, trace *model.TraceContext) (model.OrchestratorExecutionResult, error) {
	b.init()
	key := model.InstanceKey(instance.InstanceID)

	future, _ := b.Orchestrators.Register(key)
	metrics.PendingCorrelations.WithLabelValues("orchestrator").Set(float64(b.Orchestrators.PendingAndPartialCount()))
	defer func() {
		metrics.PendingCorrelations.WithLabelValues("orchestrator").Set(float64(b.Orchestrators.PendingAndPartialCount()))
	}()

	req := model.OrchestratorRequest{
		InstanceID:  instance.InstanceID,
		ExecutionID: instance.ExecutionID,
		NewEvents:   newEvents,
		Trace:       trace,
	}

	b.mu.Lock()
	caps := b.caps
	b.mu.Unlock()

	totalSize := 0
	for _, ev := range pastEvents {
		totalSize += b.SizeOf(ev)
	}
	if caps.HistoryStreaming && totalSize > b.EmbedThreshold {
		req.RequiresHistoryStreaming = true
		b.History.Put(key, pastEvents)
		metrics.PartialChunksInFlight.Inc()
	} else {
		req.PastEvents = pastEvents
	}

	msg := model.WorkItemMessage{Kind: model.WorkItemOrchestrator, Orchestrator: &req}
	if err := b.writeWorkItem(ctx, &msg); err != nil {
		b.Orchestrators.Abort(key, err)
		if req.RequiresHistoryStreaming {
			b.History.Evict(key)
		}
		return model.OrchestratorExecutionResult{}, err
	}
	metrics.WorkItemsWrittenTotal.WithLabelValues("orchestrator").Inc()

	result, err := future.Wait(ctx)
	if err != nil {
		// A wait that ended on ctx (e.g. the reply timeout) still has the
		// correlation registered; drop it so the key does not outlive the
		// dispatch.
		b.Orchestrators.Abort(key, err)
	}
	if req.RequiresHistoryStreaming {
		b.History.Evict(key)
	}
	if err != nil {
		return model.OrchestratorExecutionResult{}, err
	}
	return result, nil
}

// ExecuteActivity is the dispatch-side call the activity dispatcher makes
// to ship a work item to the worker and await its reply.
func (b *Bridge) ExecuteActivity(ctx context.Context, instance model.Instance, taskID int64, scheduled model.TaskScheduledEvent, trace *model.TraceContext) (model.HistoryEvent, error) {
	b.init()
	key := correlation.ActivityKey(instance.InstanceID, taskID)

	future, _ := b.Activities.Register(key)
	metrics.PendingCorrelations.WithLabelValues("activity").Set(float64(b.Activities.Len()))
	defer func() {
		metrics.PendingCorrelations.WithLabelValues("activity").Set(float64(b.Activities.Len()))
	}()

	req := model.ActivityRequest{
		TaskID:      taskID,
		Name:        scheduled.Name,
		Version:     scheduled.Version,
		Input:       scheduled.Input,
		InstanceID:  instance.InstanceID,
		ExecutionID: instance.ExecutionID,
		Trace:       trace,
	}

	msg := model.WorkItemMessage{Kind: model.WorkItemActivity, Activity: &req}
	if err := b.writeWorkItem(ctx, &msg); err != nil {
		b.Activities.Abort(key, err)
		return model.HistoryEvent{}, err
	}
	metrics.WorkItemsWrittenTotal.WithLabelValues("activity").Inc()

	event, err := future.Wait(ctx)
	if err != nil {
		b.Activities.Abort(key, err)
	}
	return event, err
}

// writeWorkItem serializes access to the single server-stream writer under
// a 1-permit semaphore and writes msg to it.
func (b *Bridge) writeWorkItem(ctx context.Context, msg *model.WorkItemMessage) error {
	select {
	case b.writeSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.writeSem }()

	b.mu.Lock()
	stream := b.stream
	b.mu.Unlock()
	if stream == nil {
		return rpcerr.New(rpcerr.WorkerDisconnect, "no worker connected")
	}
	return stream.Send(msg)
}
