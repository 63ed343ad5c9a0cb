// Package rpcerr defines the core's internal error taxonomy
// and the mapping to gRPC status codes at the RPC boundary.
package rpcerr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies an internal error for propagation purposes.
type Kind string

const (
	// NotFound: reply for an unknown instance/task; state lookup miss.
	NotFound Kind = "not_found"
	// ResourceExhausted: a second worker attempted to connect.
	ResourceExhausted Kind = "resource_exhausted"
	// Unsupported: unknown history-event/action kind, or an unsupported
	// capability was required.
	Unsupported Kind = "unsupported"
	// WorkerDisconnect: the worker stream was torn down while a
	// correlation was pending.
	WorkerDisconnect Kind = "worker_disconnect"
	// Timeout: a per-dispatch reply wait exceeded its configured bound.
	Timeout Kind = "timeout"
)

// Error is the core's internal error type. It is never surfaced to the
// orchestration-user's data (that round-trips as TaskFailed/ExecutionFailed
// history events, never as an Error) — it is only used for internal
// control flow and the RPC boundary.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Is allows errors.Is(err, rpcerr.New(kind, "")) to match by Kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// ToStatus maps an internal error to the gRPC status the worker sees.
// Errors that aren't *Error are reported as Internal.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return status.Error(codes.Internal, err.Error())
	}
	switch e.Kind {
	case NotFound:
		return status.Error(codes.NotFound, e.Msg)
	case ResourceExhausted:
		return status.Error(codes.ResourceExhausted, e.Msg)
	case Unsupported:
		return status.Error(codes.Unimplemented, e.Msg)
	default:
		return status.Error(codes.Internal, e.Msg)
	}
}
