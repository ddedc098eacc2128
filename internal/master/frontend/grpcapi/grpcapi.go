// Package grpcapi implements the gRPC frontend adapters: the client-facing
// PredictService and the worker-facing MasterService. Both are thin
// translations between the wire request/reply types and the
// facade.Dispatcher's async callback-based API.
package grpcapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/master/facade"
	"github.com/predictgrid/predictgrid/internal/observability/tracing"
	"github.com/predictgrid/predictgrid/internal/rpccodec"
	"github.com/predictgrid/predictgrid/internal/security/auth"
	pgtls "github.com/predictgrid/predictgrid/internal/security/tls"
	"github.com/predictgrid/predictgrid/internal/security/validation"
	"github.com/predictgrid/predictgrid/internal/servingerr"
)

// workerClient adapts a dialed WorkerServiceClient to workerctx.WorkerRPC.
type workerClient struct {
	conn   *grpc.ClientConn
	client pb.WorkerServiceClient
}

func dialWorker(address, authToken string, tlsCfg pgtls.Config) (*workerClient, error) {
	creds, err := pgtls.ClientCredentials(tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("load worker tls config: %w", err)
	}
	if creds == nil {
		creds = insecure.NewCredentials()
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		rpccodec.DialOption(),
	}, tracing.DialOptions()...)
	if authToken != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(auth.UnaryClientInterceptor(authToken)))
	}
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial worker %s: %w", address, err)
	}
	return &workerClient{conn: conn, client: pb.NewWorkerServiceClient(conn)}, nil
}

func (w *workerClient) Predict(ctx context.Context, in *pb.PredictRequest) (*pb.PredictReply, error) {
	return w.client.Predict(ctx, in)
}

// PredictServer implements PredictServiceServer, the client-facing RPC.
type PredictServer struct {
	pb.UnimplementedPredictServiceServer

	dispatcher *facade.Dispatcher
	timeout    time.Duration
}

// NewPredictServer creates the client-facing server.
func NewPredictServer(d *facade.Dispatcher, requestTimeout time.Duration) *PredictServer {
	if requestTimeout <= 0 {
		requestTimeout = 120 * time.Second
	}
	return &PredictServer{dispatcher: d, timeout: requestTimeout}
}

// Predict bridges the façade's async callback to a synchronous unary RPC.
func (s *PredictServer) Predict(ctx context.Context, req *pb.PredictRequest) (*pb.PredictReply, error) {
	if err := validation.ValidatePredictRequest(req); err != nil {
		return errorReply(req, servingerr.InvalidInputs("%v", err)), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	replyCh := make(chan *pb.PredictReply, 1)
	err := s.dispatcher.Dispatch(req, func(reply *pb.PredictReply) {
		replyCh <- reply
	})
	if err != nil {
		return errorReply(req, err), nil
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return errorReply(req, servingerr.SystemError("request timed out")), nil
	}
}

// GetModelInfo is the client-facing introspection RPC.
func (s *PredictServer) GetModelInfo(ctx context.Context, req *pb.GetModelInfoRequest) (*pb.GetModelInfoReply, error) {
	methods, err := s.dispatcher.GetModelInfo(req.ServableName, req.VersionNumber)
	if err != nil {
		return nil, err
	}
	return &pb.GetModelInfoReply{
		ServableName:  req.ServableName,
		VersionNumber: req.VersionNumber,
		Methods:       toMethodDescriptions(methods),
	}, nil
}

func toMethodDescriptions(methods []*pb.MethodInfo) []*pb.ServableMethodDescription {
	out := make([]*pb.ServableMethodDescription, len(methods))
	for i, m := range methods {
		out[i] = &pb.ServableMethodDescription{Name: m.Name, InputNames: m.InputNames}
	}
	return out
}

func errorReply(req *pb.PredictRequest, err error) *pb.PredictReply {
	st, ok := err.(*servingerr.Status)
	if !ok {
		st = servingerr.SystemError("%v", err)
	}
	reply := &pb.PredictReply{ErrorMsg: []*pb.ErrorMsg{servingerr.ToErrorMsg(st)}}
	if req.Spec != nil {
		reply.Spec = req.Spec
	}
	return reply
}

// MasterServer implements MasterServiceServer, the worker-facing RPC that
// handles Register/Exit/NotifyFailed/GetModelInfo/Ping/CallModel.
type MasterServer struct {
	pb.UnimplementedMasterServiceServer

	dispatcher *facade.Dispatcher
	authToken  string
	workerTLS  pgtls.Config

	mu      sync.Mutex
	clients map[uint64]*workerClient
}

// NewMasterServer creates the worker-facing server. The Register RPC's own
// token check happens inside dispatcher.RegisterWorker against the
// registry's configured token; authToken and workerTLS here are presented
// back to each worker's own server when the master dials it after a
// successful registration.
func NewMasterServer(d *facade.Dispatcher, authToken string, workerTLS pgtls.Config) *MasterServer {
	return &MasterServer{
		dispatcher: d,
		authToken:  authToken,
		workerTLS:  workerTLS,
		clients:    make(map[uint64]*workerClient),
	}
}

// Register dials the worker back, registers it with the façade, and wires
// the dialed client as its RPC stub.
func (s *MasterServer) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.RegisterReply, error) {
	if req.Spec == nil {
		return nil, servingerr.InvalidInputs("missing worker registration spec")
	}
	if err := validation.ValidateWorkerRegSpec(req.Spec); err != nil {
		return &pb.RegisterReply{Accepted: false, Message: err.Error()}, nil
	}

	wc, err := dialWorker(req.Spec.WorkerAddress, s.authToken, s.workerTLS)
	if err != nil {
		return nil, servingerr.SystemError("%v", err)
	}

	if err := s.dispatcher.RegisterWorker(*req.Spec, req.AuthToken); err != nil {
		wc.conn.Close()
		return &pb.RegisterReply{Accepted: false, Message: err.Error()}, nil
	}

	s.mu.Lock()
	s.clients[req.Spec.WorkerPid] = wc
	s.mu.Unlock()

	s.dispatcher.ConnectWorker(req.Spec.WorkerPid, wc)
	return &pb.RegisterReply{Accepted: true}, nil
}

// Exit handles a worker's clean-exit notification.
func (s *MasterServer) Exit(ctx context.Context, req *pb.ExitRequest) (*pb.ExitReply, error) {
	s.dispatcher.NotifyWorkerExit(req.WorkerPid)
	s.closeClient(req.WorkerPid)
	return &pb.ExitReply{}, nil
}

// NotifyFailed handles a worker's reported start/run failure.
func (s *MasterServer) NotifyFailed(ctx context.Context, req *pb.NotifyFailedRequest) (*pb.NotifyFailedReply, error) {
	s.dispatcher.NotifyWorkerFailed(req.WorkerPid, req.ErrorMsg)
	s.closeClient(req.WorkerPid)
	return &pb.NotifyFailedReply{}, nil
}

// GetModelInfo is also reachable from a worker connection (e.g. a sibling
// worker checking another servable's methods before a CallModel).
func (s *MasterServer) GetModelInfo(ctx context.Context, req *pb.GetModelInfoRequest) (*pb.GetModelInfoReply, error) {
	methods, err := s.dispatcher.GetModelInfo(req.ServableName, req.VersionNumber)
	if err != nil {
		return nil, err
	}
	return &pb.GetModelInfoReply{
		ServableName:  req.ServableName,
		VersionNumber: req.VersionNumber,
		Methods:       toMethodDescriptions(methods),
	}, nil
}

// Ping answers a worker's liveness probe of the master itself.
func (s *MasterServer) Ping(ctx context.Context, req *pb.PingRequest) (*pb.PongRequest, error) {
	return &pb.PongRequest{EchoUnixNano: req.SentUnixNano}, nil
}

// CallModel lets one worker invoke another servable through the master. It
// reuses the same dispatch path as the client-facing Predict RPC; full
// rank-coordination for model-parallel worker groups is out of scope.
func (s *MasterServer) CallModel(ctx context.Context, req *pb.CallModelRequest) (*pb.CallModelReply, error) {
	predictReq := &pb.PredictRequest{
		Spec:      &pb.ServableSpec{Name: req.ServableName, VersionNumber: req.VersionNumber, MethodName: req.MethodName},
		Instances: req.Instances,
	}

	replyCh := make(chan *pb.PredictReply, 1)
	if err := s.dispatcher.Dispatch(predictReq, func(r *pb.PredictReply) { replyCh <- r }); err != nil {
		st, _ := err.(*servingerr.Status)
		return &pb.CallModelReply{ErrorMsg: []*pb.ErrorMsg{servingerr.ToErrorMsg(st)}}, nil
	}

	select {
	case reply := <-replyCh:
		return &pb.CallModelReply{Instances: reply.Instances, ErrorMsg: reply.ErrorMsg}, nil
	case <-ctx.Done():
		return &pb.CallModelReply{ErrorMsg: []*pb.ErrorMsg{servingerr.ToErrorMsg(servingerr.SystemError("CallModel timed out"))}}, nil
	}
}

func (s *MasterServer) closeClient(pid uint64) {
	s.mu.Lock()
	wc, ok := s.clients[pid]
	if ok {
		delete(s.clients, pid)
	}
	s.mu.Unlock()
	if ok {
		wc.conn.Close()
	}
}
