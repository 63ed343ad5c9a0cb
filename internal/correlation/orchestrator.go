package correlation

import (
	"sync"

	"github.com/cuemby/durabletask-sidecar/internal/model"
	"github.com/cuemby/durabletask-sidecar/internal/rpcerr"
)

// OrchestratorResult is what an orchestrator dispatch ultimately receives:
// either a resolved execution result, or nothing (on WorkerDisconnect /
// timeout / NotFound, the error is what matters).
type OrchestratorResult = model.OrchestratorExecutionResult

// partialEntry holds the in-progress accumulation state for one instance,
// present iff at least one partial chunk has arrived and the terminal
// chunk has not.
type partialEntry struct {
	future  *Future[OrchestratorResult]
	actions []model.OrchestratorAction
}

// OrchestratorRouter owns the orchestrator pending-correlation table and
// the partial-chunk accumulator together: a partial-chunk entry is
// created atomically under a first-chunk predicate that also captures
// the pending-correlation future reference, which requires the two maps
// to be mutated under one lock rather than independently.
type OrchestratorRouter struct {
	mu      sync.Mutex
	pending Table[OrchestratorResult]
	partial map[string]*partialEntry

	// onResolved is called (if non-nil) whenever a key is finally removed
	// from the pending table, successfully or not, so collaborators (the
	// history-stream buffer) can evict their own per-instance state.
	onResolved func(key string)
}

// NewOrchestratorRouter constructs an empty router.
func NewOrchestratorRouter() *OrchestratorRouter {
	return &OrchestratorRouter{partial: make(map[string]*partialEntry)}
}

// OnResolved registers a callback invoked with the instance key every time
// a correlation is finally removed (resolved, failed, or disconnected).
func (r *OrchestratorRouter) OnResolved(fn func(key string)) {
	r.onResolved = fn
}

// Register records a new pending orchestrator dispatch, keyed by
// InstanceKey(instanceID). It must be called before the work item is
// written to the worker stream.
func (r *OrchestratorRouter) Register(key string) (*Future[OrchestratorResult], bool) {
	return r.pending.Register(key)
}

// Abort removes a pending correlation without a reply (e.g. the write to
// the worker stream failed) and fails its future.
func (r *OrchestratorRouter) Abort(key string, err error) {
	r.mu.Lock()
	delete(r.partial, key)
	r.mu.Unlock()

	if f, ok := r.pending.Remove(key); ok {
		f.Fail(err)
	}
	r.notifyResolved(key)
}

// HandleResponse implements the partial-chunk accumulation state machine
// for one OrchestratorResponse chunk. It returns rpcerr NotFound if no
// pending correlation exists for a first (or any) chunk of this instance.
func (r *OrchestratorRouter) HandleResponse(resp model.OrchestratorResponse) error {
	key := model.InstanceKey(resp.InstanceID)

	r.mu.Lock()
	entry, accumulating := r.partial[key]

	if !accumulating {
		if resp.IsPartial {
			// NoPartials + partial chunk: start accumulating. The
			// pending-correlation future reference is captured in the
			// partial entry; the future also stays in r.pending until the
			// terminal chunk, so Abort/FailAll still find it there.
			future, ok := r.pending.Get(key)
			if !ok {
				r.mu.Unlock()
				return rpcerr.New(rpcerr.NotFound, "no pending orchestrator correlation for instance %q", resp.InstanceID)
			}
			r.partial[key] = &partialEntry{future: future, actions: append([]model.OrchestratorAction(nil), resp.Actions...)}
			r.mu.Unlock()
			return nil
		}

		// NoPartials + non-partial chunk: resolve directly.
		r.mu.Unlock()
		future, ok := r.pending.Remove(key)
		if !ok {
			return rpcerr.New(rpcerr.NotFound, "no pending orchestrator correlation for instance %q", resp.InstanceID)
		}
		future.Resolve(OrchestratorResult{
			Actions:            resp.Actions,
			CustomStatus:       resp.CustomStatus,
			OrchestrationTrace: resp.Trace,
		})
		r.notifyResolved(key)
		return nil
	}

	// Accumulating.
	entry.actions = append(entry.actions, resp.Actions...)
	if resp.IsPartial {
		r.mu.Unlock()
		return nil
	}

	// Terminal chunk: resolve with the full concatenation. custom_status
	// comes from this (the terminal) chunk only; trace is dropped for an
	// accumulated reply.
	delete(r.partial, key)
	r.mu.Unlock()

	future, ok := r.pending.Remove(key)
	if !ok {
		// Should not happen (the partial entry pinned the future), but
		// stay defensive: treat as not-found rather than panicking on a
		// nil future.
		return rpcerr.New(rpcerr.NotFound, "no pending orchestrator correlation for instance %q", resp.InstanceID)
	}
	future.Resolve(OrchestratorResult{
		Actions:      entry.actions,
		CustomStatus: resp.CustomStatus,
	})
	r.notifyResolved(key)
	return nil
}

// FailAll resolves every currently pending correlation (including partial
// accumulations) with err. Used by the disconnect-driven failure policy
// when the traffic signal resets.
func (r *OrchestratorRouter) FailAll(err error) {
	r.mu.Lock()
	r.partial = make(map[string]*partialEntry)
	r.mu.Unlock()

	for _, key := range r.pending.Keys() {
		if f, ok := r.pending.Remove(key); ok {
			f.Fail(err)
		}
		r.notifyResolved(key)
	}
}

// PendingAndPartialCount returns the size of the keyed union of the
// pending table and the partial-chunk map. Because a partial entry always
// has a corresponding pending-table entry (the future reference is shared,
// not duplicated), this is simply the pending table's size.
func (r *OrchestratorRouter) PendingAndPartialCount() int {
	return r.pending.Len()
}

func (r *OrchestratorRouter) notifyResolved(key string) {
	if r.onResolved != nil {
		r.onResolved(key)
	}
}
