package predictgridv1

import (
	"context"

	"google.golang.org/grpc"
)

// PredictServiceServer is the client-facing gRPC surface implemented by the
// master.
type PredictServiceServer interface {
	Predict(context.Context, *PredictRequest) (*PredictReply, error)
	GetModelInfo(context.Context, *GetModelInfoRequest) (*GetModelInfoReply, error)
}

// UnimplementedPredictServiceServer embeds into a server implementation to
// satisfy PredictServiceServer for methods it does not override.
type UnimplementedPredictServiceServer struct{}

func (UnimplementedPredictServiceServer) Predict(context.Context, *PredictRequest) (*PredictReply, error) {
	return nil, errUnimplemented("Predict")
}
func (UnimplementedPredictServiceServer) GetModelInfo(context.Context, *GetModelInfoRequest) (*GetModelInfoReply, error) {
	return nil, errUnimplemented("GetModelInfo")
}

// RegisterPredictServiceServer registers srv with s.
func RegisterPredictServiceServer(s grpc.ServiceRegistrar, srv PredictServiceServer) {
	s.RegisterService(&predictServiceServiceDesc, srv)
}

var predictServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: "predictgrid.v1.PredictService",
	HandlerType: (*PredictServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Predict",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(PredictRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(PredictServiceServer).Predict(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/predictgrid.v1.PredictService/Predict"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(PredictServiceServer).Predict(ctx, req.(*PredictRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "GetModelInfo",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(GetModelInfoRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(PredictServiceServer).GetModelInfo(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/predictgrid.v1.PredictService/GetModelInfo"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(PredictServiceServer).GetModelInfo(ctx, req.(*GetModelInfoRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Metadata: "predictgrid/v1/predictgrid.proto",
}

// PredictServiceClient is the client API for PredictService.
type PredictServiceClient interface {
	Predict(ctx context.Context, in *PredictRequest, opts ...grpc.CallOption) (*PredictReply, error)
	GetModelInfo(ctx context.Context, in *GetModelInfoRequest, opts ...grpc.CallOption) (*GetModelInfoReply, error)
}

type predictServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPredictServiceClient creates a client stub for PredictService.
func NewPredictServiceClient(cc grpc.ClientConnInterface) PredictServiceClient {
	return &predictServiceClient{cc}
}

func (c *predictServiceClient) Predict(ctx context.Context, in *PredictRequest, opts ...grpc.CallOption) (*PredictReply, error) {
	out := new(PredictReply)
	if err := c.cc.Invoke(ctx, "/predictgrid.v1.PredictService/Predict", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *predictServiceClient) GetModelInfo(ctx context.Context, in *GetModelInfoRequest, opts ...grpc.CallOption) (*GetModelInfoReply, error) {
	out := new(GetModelInfoReply)
	if err := c.cc.Invoke(ctx, "/predictgrid.v1.PredictService/GetModelInfo", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
