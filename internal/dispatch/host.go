package dispatch

import (
	"context"
	"time"

	"github.com/cuemby/durabletask-sidecar/internal/log"
	"github.com/cuemby/durabletask-sidecar/internal/model"
	"github.com/cuemby/durabletask-sidecar/internal/signal"
)

// DefaultStopGracePeriod bounds how long Host.Stop waits for in-flight
// work items to drain before giving up.
const DefaultStopGracePeriod = time.Hour

// connectPollInterval is how often Host.Start re-checks for a connected
// worker before starting the dispatchers.
const connectPollInterval = time.Minute

// Host owns the orchestrator and activity dispatchers together and
// couples their lifecycle to worker connectedness via the traffic signal.
type Host struct {
	Orchestrator *Dispatcher[model.OrchestratorWorkItem]
	Activity     *Dispatcher[model.ActivityWorkItem]
	Traffic      *signal.Signal

	// StopGracePeriod bounds Stop's wait for in-flight drain.
	StopGracePeriod time.Duration
}

// NewHost constructs a Host. StopGracePeriod defaults to
// DefaultStopGracePeriod when zero.
func NewHost(orchestrator *Dispatcher[model.OrchestratorWorkItem], activity *Dispatcher[model.ActivityWorkItem], traffic *signal.Signal) *Host {
	return &Host{
		Orchestrator:    orchestrator,
		Activity:        activity,
		Traffic:         traffic,
		StopGracePeriod: DefaultStopGracePeriod,
	}
}

// Start waits for a worker to connect (retrying once a minute with a log
// line), then starts both dispatchers. ctx cancellation aborts the wait.
func (h *Host) Start(ctx context.Context) {
	for {
		pollCtx, cancel := context.WithTimeout(ctx, connectPollInterval)
		connected := h.Traffic.Wait(pollCtx)
		cancel()
		if connected {
			break
		}
		if ctx.Err() != nil {
			return
		}
		log.Info("dispatcher host waiting for worker connection")
	}
	h.Orchestrator.Start()
	h.Activity.Start()
}

// Stop signals both dispatchers to stop and waits for them, bounded by
// StopGracePeriod.
func (h *Host) Stop() {
	grace := h.StopGracePeriod
	if grace <= 0 {
		grace = DefaultStopGracePeriod
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	h.Orchestrator.Stop(ctx)
	h.Activity.Stop(ctx)
}
