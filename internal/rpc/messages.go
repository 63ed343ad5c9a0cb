// Package rpc implements the gRPC bridge: the worker-facing RPC surface
// and the dispatch-side calls the dispatcher host makes into it. The wire
// schema itself is treated as an implementation detail rather than a
// fixed contract, so message types here are hand-declared Go structs
// carried over google.golang.org/grpc using a JSON encoding.Codec
// (codec.go) rather than protoc-generated bindings.
package rpc

import "github.com/cuemby/durabletask-sidecar/internal/model"

// Empty is the shared empty acknowledgement returned by the unary
// endpoints that don't carry data back.
type Empty struct{}

// GetWorkItemsRequest carries the worker's advertised capabilities.
type GetWorkItemsRequest struct {
	Capabilities model.WorkerCapabilities
}

// AbandonRequest is accepted by the Abandon* endpoints, which are no-ops
// returning Empty — the core abandons via the orchestration-service
// backend directly, not over this RPC.
type AbandonRequest struct {
	InstanceID model.InstanceID
	TaskID     int64
}

// StreamHistoryRequest requests the parked past-events list for an
// instance.
type StreamHistoryRequest struct {
	InstanceID model.InstanceID
}
