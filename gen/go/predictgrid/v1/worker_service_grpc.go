package predictgridv1

import (
	"context"

	"google.golang.org/grpc"
)

// WorkerServiceServer is implemented by worker processes.
type WorkerServiceServer interface {
	Predict(context.Context, *PredictRequest) (*PredictReply, error)
	Exit(context.Context, *ExitRequest) (*ExitReply, error)
	Ping(context.Context, *PingRequest) (*PongRequest, error)
}

// UnimplementedWorkerServiceServer embeds into a server implementation to
// satisfy WorkerServiceServer for methods it does not override, following
// protoc-gen-go-grpc's forward-compatibility convention.
type UnimplementedWorkerServiceServer struct{}

func (UnimplementedWorkerServiceServer) Predict(context.Context, *PredictRequest) (*PredictReply, error) {
	return nil, errUnimplemented("Predict")
}
func (UnimplementedWorkerServiceServer) Exit(context.Context, *ExitRequest) (*ExitReply, error) {
	return nil, errUnimplemented("Exit")
}
func (UnimplementedWorkerServiceServer) Ping(context.Context, *PingRequest) (*PongRequest, error) {
	return nil, errUnimplemented("Ping")
}

// RegisterWorkerServiceServer registers srv with s.
func RegisterWorkerServiceServer(s grpc.ServiceRegistrar, srv WorkerServiceServer) {
	s.RegisterService(&workerServiceServiceDesc, srv)
}

var workerServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: "predictgrid.v1.WorkerService",
	HandlerType: (*WorkerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Predict",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(PredictRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(WorkerServiceServer).Predict(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/predictgrid.v1.WorkerService/Predict"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(WorkerServiceServer).Predict(ctx, req.(*PredictRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "Exit",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(ExitRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(WorkerServiceServer).Exit(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/predictgrid.v1.WorkerService/Exit"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(WorkerServiceServer).Exit(ctx, req.(*ExitRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "Ping",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(PingRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(WorkerServiceServer).Ping(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/predictgrid.v1.WorkerService/Ping"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(WorkerServiceServer).Ping(ctx, req.(*PingRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Metadata: "predictgrid/v1/predictgrid.proto",
}

// WorkerServiceClient is the client API for WorkerService.
type WorkerServiceClient interface {
	Predict(ctx context.Context, in *PredictRequest, opts ...grpc.CallOption) (*PredictReply, error)
	Exit(ctx context.Context, in *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error)
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PongRequest, error)
}

type workerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewWorkerServiceClient creates a client stub for WorkerService.
func NewWorkerServiceClient(cc grpc.ClientConnInterface) WorkerServiceClient {
	return &workerServiceClient{cc}
}

func (c *workerServiceClient) Predict(ctx context.Context, in *PredictRequest, opts ...grpc.CallOption) (*PredictReply, error) {
	out := new(PredictReply)
	if err := c.cc.Invoke(ctx, "/predictgrid.v1.WorkerService/Predict", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerServiceClient) Exit(ctx context.Context, in *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error) {
	out := new(ExitReply)
	if err := c.cc.Invoke(ctx, "/predictgrid.v1.WorkerService/Exit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PongRequest, error) {
	out := new(PongRequest)
	if err := c.cc.Invoke(ctx, "/predictgrid.v1.WorkerService/Ping", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
