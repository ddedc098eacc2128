// Package service implements the worker-side WorkerServiceServer, the RPC
// surface a worker process exposes to the master: Predict forwards to a
// runner.Registry, tracked through a small set of atomic task counters.
package service

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/servingerr"
	"github.com/predictgrid/predictgrid/internal/worker/runner"
)

// Server implements pb.WorkerServiceServer.
type Server struct {
	pb.UnimplementedWorkerServiceServer

	registry *runner.Registry

	activeRequests int64
	totalRequests  int64
	failedRequests int64

	onExit func()
}

// New creates a worker RPC server dispatching through registry. onExit, if
// non-nil, runs when the master calls Exit.
func New(registry *runner.Registry, onExit func()) *Server {
	return &Server{registry: registry, onExit: onExit}
}

// Register attaches the server to a grpc.ServiceRegistrar.
func (s *Server) Register(gs *grpc.Server) {
	pb.RegisterWorkerServiceServer(gs, s)
}

// Predict runs the requested method against the request's instances.
func (s *Server) Predict(ctx context.Context, req *pb.PredictRequest) (*pb.PredictReply, error) {
	atomic.AddInt64(&s.activeRequests, 1)
	defer atomic.AddInt64(&s.activeRequests, -1)
	atomic.AddInt64(&s.totalRequests, 1)

	methodName := ""
	if req.Spec != nil {
		methodName = req.Spec.MethodName
	}

	out, err := s.registry.Run(ctx, methodName, req.Instances)
	if err != nil {
		atomic.AddInt64(&s.failedRequests, 1)
		st := servingerr.Failed("%s", err.Error())
		log.Debug().Err(err).Str("method", methodName).Msg("predict failed")
		return &pb.PredictReply{Spec: req.Spec, ErrorMsg: []*pb.ErrorMsg{servingerr.ToErrorMsg(st)}}, nil
	}

	return &pb.PredictReply{Spec: req.Spec, Instances: out}, nil
}

// Exit tells the worker to begin a clean shutdown; the actual process exit
// is left to the caller's onExit hook, keeping "stop accepting new work"
// separate from "terminate".
func (s *Server) Exit(ctx context.Context, req *pb.ExitRequest) (*pb.ExitReply, error) {
	log.Info().Uint64("worker_pid", req.WorkerPid).Msg("master requested exit")
	if s.onExit != nil {
		go s.onExit()
	}
	return &pb.ExitReply{}, nil
}

// Ping answers a worker-directed liveness probe.
func (s *Server) Ping(ctx context.Context, req *pb.PingRequest) (*pb.PongRequest, error) {
	return &pb.PongRequest{EchoUnixNano: req.SentUnixNano}, nil
}

// Counters returns (active, total, failed) request counts, for a future
// status RPC or local metrics export.
func (s *Server) Counters() (int64, int64, int64) {
	return atomic.LoadInt64(&s.activeRequests), atomic.LoadInt64(&s.totalRequests), atomic.LoadInt64(&s.failedRequests)
}
