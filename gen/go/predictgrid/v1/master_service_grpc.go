package predictgridv1

import (
	"context"

	"google.golang.org/grpc"
)

// MasterServiceServer is implemented by the master and called by workers.
type MasterServiceServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterReply, error)
	Exit(context.Context, *ExitRequest) (*ExitReply, error)
	NotifyFailed(context.Context, *NotifyFailedRequest) (*NotifyFailedReply, error)
	GetModelInfo(context.Context, *GetModelInfoRequest) (*GetModelInfoReply, error)
	Ping(context.Context, *PingRequest) (*PongRequest, error)
	CallModel(context.Context, *CallModelRequest) (*CallModelReply, error)
}

// UnimplementedMasterServiceServer embeds into a server implementation to
// satisfy MasterServiceServer for methods it does not override.
type UnimplementedMasterServiceServer struct{}

func (UnimplementedMasterServiceServer) Register(context.Context, *RegisterRequest) (*RegisterReply, error) {
	return nil, errUnimplemented("Register")
}
func (UnimplementedMasterServiceServer) Exit(context.Context, *ExitRequest) (*ExitReply, error) {
	return nil, errUnimplemented("Exit")
}
func (UnimplementedMasterServiceServer) NotifyFailed(context.Context, *NotifyFailedRequest) (*NotifyFailedReply, error) {
	return nil, errUnimplemented("NotifyFailed")
}
func (UnimplementedMasterServiceServer) GetModelInfo(context.Context, *GetModelInfoRequest) (*GetModelInfoReply, error) {
	return nil, errUnimplemented("GetModelInfo")
}
func (UnimplementedMasterServiceServer) Ping(context.Context, *PingRequest) (*PongRequest, error) {
	return nil, errUnimplemented("Ping")
}
func (UnimplementedMasterServiceServer) CallModel(context.Context, *CallModelRequest) (*CallModelReply, error) {
	return nil, errUnimplemented("CallModel")
}

// RegisterMasterServiceServer registers srv with s.
func RegisterMasterServiceServer(s grpc.ServiceRegistrar, srv MasterServiceServer) {
	s.RegisterService(&masterServiceServiceDesc, srv)
}

func unaryHandler[Req, Resp any](fullMethod string, call func(MasterServiceServer, context.Context, *Req) (*Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(MasterServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(s, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var masterServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: "predictgrid.v1.MasterService",
	HandlerType: (*MasterServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler("/predictgrid.v1.MasterService/Register", MasterServiceServer.Register)},
		{MethodName: "Exit", Handler: unaryHandler("/predictgrid.v1.MasterService/Exit", MasterServiceServer.Exit)},
		{MethodName: "NotifyFailed", Handler: unaryHandler("/predictgrid.v1.MasterService/NotifyFailed", MasterServiceServer.NotifyFailed)},
		{MethodName: "GetModelInfo", Handler: unaryHandler("/predictgrid.v1.MasterService/GetModelInfo", MasterServiceServer.GetModelInfo)},
		{MethodName: "Ping", Handler: unaryHandler("/predictgrid.v1.MasterService/Ping", MasterServiceServer.Ping)},
		{MethodName: "CallModel", Handler: unaryHandler("/predictgrid.v1.MasterService/CallModel", MasterServiceServer.CallModel)},
	},
	Metadata: "predictgrid/v1/predictgrid.proto",
}

// MasterServiceClient is the client API for MasterService.
type MasterServiceClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterReply, error)
	Exit(ctx context.Context, in *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error)
	NotifyFailed(ctx context.Context, in *NotifyFailedRequest, opts ...grpc.CallOption) (*NotifyFailedReply, error)
	GetModelInfo(ctx context.Context, in *GetModelInfoRequest, opts ...grpc.CallOption) (*GetModelInfoReply, error)
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PongRequest, error)
	CallModel(ctx context.Context, in *CallModelRequest, opts ...grpc.CallOption) (*CallModelReply, error)
}

type masterServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewMasterServiceClient creates a client stub for MasterService.
func NewMasterServiceClient(cc grpc.ClientConnInterface) MasterServiceClient {
	return &masterServiceClient{cc}
}

func (c *masterServiceClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterReply, error) {
	out := new(RegisterReply)
	if err := c.cc.Invoke(ctx, "/predictgrid.v1.MasterService/Register", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterServiceClient) Exit(ctx context.Context, in *ExitRequest, opts ...grpc.CallOption) (*ExitReply, error) {
	out := new(ExitReply)
	if err := c.cc.Invoke(ctx, "/predictgrid.v1.MasterService/Exit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterServiceClient) NotifyFailed(ctx context.Context, in *NotifyFailedRequest, opts ...grpc.CallOption) (*NotifyFailedReply, error) {
	out := new(NotifyFailedReply)
	if err := c.cc.Invoke(ctx, "/predictgrid.v1.MasterService/NotifyFailed", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterServiceClient) GetModelInfo(ctx context.Context, in *GetModelInfoRequest, opts ...grpc.CallOption) (*GetModelInfoReply, error) {
	out := new(GetModelInfoReply)
	if err := c.cc.Invoke(ctx, "/predictgrid.v1.MasterService/GetModelInfo", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PongRequest, error) {
	out := new(PongRequest)
	if err := c.cc.Invoke(ctx, "/predictgrid.v1.MasterService/Ping", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterServiceClient) CallModel(ctx context.Context, in *CallModelRequest, opts ...grpc.CallOption) (*CallModelReply, error) {
	out := new(CallModelReply)
	if err := c.cc.Invoke(ctx, "/predictgrid.v1.MasterService/CallModel", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
