package tracing

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// ServerOptions returns the gRPC server options pg-master and pg-worker use
// to trace incoming RPCs (Register, Predict, Exit, ...) via otelgrpc's
// stats handler.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	}
}

// DialOptions returns the gRPC dial options for a pg-worker's connection
// back to pg-master and for pg-master's connections to its workers,
// propagating the trace started at the client edge.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}
