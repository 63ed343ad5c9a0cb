package rpc

import (
	"context"

	"github.com/cuemby/durabletask-sidecar/internal/model"
	"google.golang.org/grpc"
)

// serviceName is the gRPC service path worker and sidecar dial against.
const serviceName = "dispatcher.WorkItems"

// WorkItemsServer is the worker-facing RPC surface.
type WorkItemsServer interface {
	GetWorkItems(*GetWorkItemsRequest, WorkItems_GetWorkItemsServer) error
	CompleteOrchestratorTask(context.Context, *model.OrchestratorResponse) (*Empty, error)
	CompleteActivityTask(context.Context, *model.ActivityExecutionResult) (*Empty, error)
	AbandonTaskOrchestratorWorkItem(context.Context, *AbandonRequest) (*Empty, error)
	AbandonTaskActivityWorkItem(context.Context, *AbandonRequest) (*Empty, error)
	StreamInstanceHistory(*StreamHistoryRequest, WorkItems_StreamInstanceHistoryServer) error
}

// WorkItems_GetWorkItemsServer is the server side of the single
// server-streamed work-item channel.
type WorkItems_GetWorkItemsServer interface {
	Send(*model.WorkItemMessage) error
	grpc.ServerStream
}

type workItemsGetWorkItemsServer struct{ grpc.ServerStream }

func (x *workItemsGetWorkItemsServer) Send(m *model.WorkItemMessage) error {
	return x.ServerStream.SendMsg(m)
}

// WorkItems_StreamInstanceHistoryServer is the server side of the
// secondary server-streamed history channel.
type WorkItems_StreamInstanceHistoryServer interface {
	Send(*model.HistoryChunk) error
	grpc.ServerStream
}

type workItemsStreamInstanceHistoryServer struct{ grpc.ServerStream }

func (x *workItemsStreamInstanceHistoryServer) Send(m *model.HistoryChunk) error {
	return x.ServerStream.SendMsg(m)
}

func _WorkItems_GetWorkItems_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(GetWorkItemsRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(WorkItemsServer).GetWorkItems(m, &workItemsGetWorkItemsServer{stream})
}

func _WorkItems_StreamInstanceHistory_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(StreamHistoryRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(WorkItemsServer).StreamInstanceHistory(m, &workItemsStreamInstanceHistoryServer{stream})
}

func _WorkItems_CompleteOrchestratorTask_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(model.OrchestratorResponse)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkItemsServer).CompleteOrchestratorTask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CompleteOrchestratorTask"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkItemsServer).CompleteOrchestratorTask(ctx, req.(*model.OrchestratorResponse))
	}
	return interceptor(ctx, in, info, handler)
}

func _WorkItems_CompleteActivityTask_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(model.ActivityExecutionResult)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkItemsServer).CompleteActivityTask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CompleteActivityTask"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkItemsServer).CompleteActivityTask(ctx, req.(*model.ActivityExecutionResult))
	}
	return interceptor(ctx, in, info, handler)
}

func _WorkItems_AbandonTaskOrchestratorWorkItem_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AbandonRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkItemsServer).AbandonTaskOrchestratorWorkItem(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/AbandonTaskOrchestratorWorkItem"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkItemsServer).AbandonTaskOrchestratorWorkItem(ctx, req.(*AbandonRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _WorkItems_AbandonTaskActivityWorkItem_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AbandonRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkItemsServer).AbandonTaskActivityWorkItem(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/AbandonTaskActivityWorkItem"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkItemsServer).AbandonTaskActivityWorkItem(ctx, req.(*AbandonRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-maintained equivalent of what protoc-gen-go-grpc
// would emit for the WorkItems service (see the package doc for why this
// module doesn't run protoc).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WorkItemsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CompleteOrchestratorTask", Handler: _WorkItems_CompleteOrchestratorTask_Handler},
		{MethodName: "CompleteActivityTask", Handler: _WorkItems_CompleteActivityTask_Handler},
		{MethodName: "AbandonTaskOrchestratorWorkItem", Handler: _WorkItems_AbandonTaskOrchestratorWorkItem_Handler},
		{MethodName: "AbandonTaskActivityWorkItem", Handler: _WorkItems_AbandonTaskActivityWorkItem_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "GetWorkItems", Handler: _WorkItems_GetWorkItems_Handler, ServerStreams: true},
		{StreamName: "StreamInstanceHistory", Handler: _WorkItems_StreamInstanceHistory_Handler, ServerStreams: true},
	},
	Metadata: "dispatcher/workitems.proto",
}

// RegisterWorkItemsServer registers srv on s.
func RegisterWorkItemsServer(s grpc.ServiceRegistrar, srv WorkItemsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// WorkItemsClient is the worker-side client for the bridge.
type WorkItemsClient interface {
	GetWorkItems(ctx context.Context, in *GetWorkItemsRequest, opts ...grpc.CallOption) (WorkItems_GetWorkItemsClient, error)
	CompleteOrchestratorTask(ctx context.Context, in *model.OrchestratorResponse, opts ...grpc.CallOption) (*Empty, error)
	CompleteActivityTask(ctx context.Context, in *model.ActivityExecutionResult, opts ...grpc.CallOption) (*Empty, error)
	AbandonTaskOrchestratorWorkItem(ctx context.Context, in *AbandonRequest, opts ...grpc.CallOption) (*Empty, error)
	AbandonTaskActivityWorkItem(ctx context.Context, in *AbandonRequest, opts ...grpc.CallOption) (*Empty, error)
	StreamInstanceHistory(ctx context.Context, in *StreamHistoryRequest, opts ...grpc.CallOption) (WorkItems_StreamInstanceHistoryClient, error)
}

type workItemsClient struct {
	cc grpc.ClientConnInterface
}

// NewWorkItemsClient wraps a ClientConn in a WorkItemsClient.
func NewWorkItemsClient(cc grpc.ClientConnInterface) WorkItemsClient {
	return &workItemsClient{cc}
}

// WorkItems_GetWorkItemsClient is the worker side of the work-item stream.
type WorkItems_GetWorkItemsClient interface {
	Recv() (*model.WorkItemMessage, error)
	grpc.ClientStream
}

type workItemsGetWorkItemsClient struct{ grpc.ClientStream }

func (c *workItemsClient) GetWorkItems(ctx context.Context, in *GetWorkItemsRequest, opts ...grpc.CallOption) (WorkItems_GetWorkItemsClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+serviceName+"/GetWorkItems", opts...)
	if err != nil {
		return nil, err
	}
	x := &workItemsGetWorkItemsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (x *workItemsGetWorkItemsClient) Recv() (*model.WorkItemMessage, error) {
	m := new(model.WorkItemMessage)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// WorkItems_StreamInstanceHistoryClient is the worker side of the history
// stream.
type WorkItems_StreamInstanceHistoryClient interface {
	Recv() (*model.HistoryChunk, error)
	grpc.ClientStream
}

type workItemsStreamInstanceHistoryClient struct{ grpc.ClientStream }

func (c *workItemsClient) StreamInstanceHistory(ctx context.Context, in *StreamHistoryRequest, opts ...grpc.CallOption) (WorkItems_StreamInstanceHistoryClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[1], "/"+serviceName+"/StreamInstanceHistory", opts...)
	if err != nil {
		return nil, err
	}
	x := &workItemsStreamInstanceHistoryClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (x *workItemsStreamInstanceHistoryClient) Recv() (*model.HistoryChunk, error) {
	m := new(model.HistoryChunk)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *workItemsClient) CompleteOrchestratorTask(ctx context.Context, in *model.OrchestratorResponse, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/CompleteOrchestratorTask", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workItemsClient) CompleteActivityTask(ctx context.Context, in *model.ActivityExecutionResult, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/CompleteActivityTask", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workItemsClient) AbandonTaskOrchestratorWorkItem(ctx context.Context, in *AbandonRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/AbandonTaskOrchestratorWorkItem", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workItemsClient) AbandonTaskActivityWorkItem(ctx context.Context, in *AbandonRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/AbandonTaskActivityWorkItem", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
