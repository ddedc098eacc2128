// Package workerctx implements WorkerContext, the live representation of
// one registered worker process and its RPC stub, tracking a lifecycle
// status, request counters, and the dialed RPC connection.
package workerctx

import (
	"context"
	"sync"
	"sync/atomic"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/servingerr"
)

// Status is a worker's lifecycle state.
type Status int32

const (
	StatusNotAlive Status = iota
	StatusStarting
	StatusReady
	StatusNotifyExit
	StatusNotifyFailed
	StatusNotAvailable
)

func (s Status) String() string {
	switch s {
	case StatusNotAlive:
		return "NotAlive"
	case StatusStarting:
		return "Starting"
	case StatusReady:
		return "Ready"
	case StatusNotifyExit:
		return "NotifyExit"
	case StatusNotifyFailed:
		return "NotifyFailed"
	case StatusNotAvailable:
		return "NotAvailable"
	default:
		return "Unknown"
	}
}

// WorkerRPC is the subset of WorkerServiceClient a WorkerContext needs. It
// is an interface so tests can substitute a fake worker without a real
// gRPC connection.
type WorkerRPC interface {
	Predict(ctx context.Context, in *pb.PredictRequest) (*pb.PredictReply, error)
}

// Context is one registered worker: its RPC stub, lifecycle status, and
// request counters. Every field mutation happens under mu except the
// atomic counters, which MethodDispatcher and introspection both read
// without holding the dispatcher's own lock.
type Context struct {
	mu sync.RWMutex

	pid       uint64
	address   string
	methods   []*pb.MethodInfo
	ownDevice bool
	batchSize uint64

	status         Status
	notifiedError  string
	rpc            WorkerRPC

	totalNormal   int64
	totalAbnormal int64
	inFlight      int64
}

// Spec is the registration-time description of a worker.
type Spec struct {
	Address   string
	Pid       uint64
	Methods   []*pb.MethodInfo
	OwnDevice bool
	BatchSize uint64
}

// New creates a WorkerContext in StatusStarting: the worker has a PID but
// no dialed RPC stub yet.
func New(spec Spec) *Context {
	return &Context{
		pid:       spec.Pid,
		address:   spec.Address,
		methods:   spec.Methods,
		ownDevice: spec.OwnDevice,
		batchSize: spec.BatchSize,
		status:    StatusStarting,
	}
}

// Register attaches the RPC stub and transitions Starting -> Ready.
func (c *Context) Register(rpc WorkerRPC) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rpc = rpc
	c.status = StatusReady
}

// Pid returns the worker's process id.
func (c *Context) Pid() uint64 { return c.pid }

// Address returns the worker's RPC address.
func (c *Context) Address() string { return c.address }

// Methods returns the methods this worker declared on registration.
func (c *Context) Methods() []*pb.MethodInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.methods
}

// OwnsDevice reports whether this worker holds the real model (as opposed
// to being a CPU-only helper worker for a non-model pipeline stage).
func (c *Context) OwnsDevice() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ownDevice
}

// BatchSize returns the worker-declared batch size.
func (c *Context) BatchSize() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.batchSize
}

// Status returns the current lifecycle status.
func (c *Context) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Counters returns (total_normal, total_abnormal, in_flight).
func (c *Context) Counters() (int64, int64, int64) {
	return atomic.LoadInt64(&c.totalNormal), atomic.LoadInt64(&c.totalAbnormal), atomic.LoadInt64(&c.inFlight)
}

// DispatchAsync forwards sub_request to the worker's RPC stub and invokes
// callback on completion. It fails synchronously with WorkerUnavailable if
// the worker is not Ready; otherwise the RPC itself runs on its own
// goroutine and callback runs when it returns, never holding c.mu while the
// RPC is in flight.
func (c *Context) DispatchAsync(ctx context.Context, req *pb.PredictRequest, callback func(*pb.PredictReply, error)) error {
	c.mu.RLock()
	rpc := c.rpc
	ready := c.status == StatusReady
	c.mu.RUnlock()

	if !ready || rpc == nil {
		return servingerr.WorkerUnavailable("worker %d is not ready", c.pid)
	}

	atomic.AddInt64(&c.inFlight, 1)
	go func() {
		defer atomic.AddInt64(&c.inFlight, -1)
		reply, err := rpc.Predict(ctx, req)
		if err == nil {
			atomic.AddInt64(&c.totalNormal, 1)
		} else {
			atomic.AddInt64(&c.totalAbnormal, 1)
		}
		callback(reply, err)
	}()
	return nil
}

// NotifyNotAvailable transitions Ready -> NotAvailable. Idempotent.
func (c *Context) NotifyNotAvailable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusReady {
		c.status = StatusNotAvailable
	}
}

// NotifyNotAlive transitions any status -> NotAlive. Idempotent.
func (c *Context) NotifyNotAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusNotAlive
}

// OnExit transitions any status except NotifyFailed -> NotifyExit (clean
// worker-initiated exit); a NotifyFailed worker keeps its failed status.
func (c *Context) OnExit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusNotifyFailed {
		c.status = StatusNotifyExit
	}
}

// OnStartError transitions -> NotifyFailed and records the error.
func (c *Context) OnStartError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusNotifyFailed
	c.notifiedError = msg
}

// NotifiedError returns the error recorded by OnStartError, if any.
func (c *Context) NotifiedError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notifiedError
}

// Recover transitions NotAvailable/NotAlive back to Ready once a heartbeat
// or fresh registration proves the worker is healthy again.
func (c *Context) Recover() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusNotAvailable || c.status == StatusNotAlive {
		c.status = StatusReady
	}
}

// IsReady reports whether the worker currently accepts dispatch.
func (c *Context) IsReady() bool {
	return c.Status() == StatusReady
}

// RankCoordinator resolves which worker address owns rank 0 for a
// multi-process servable so non-owning (OwnsDevice == false) helper workers
// know where to forward device-bound calls. Single-process deployments have
// no rank topology to coordinate, so LocalRankCoordinator is the only
// implementation in this tree.
type RankCoordinator interface {
	RankZeroAddress(servableName string) (string, bool)
}

// LocalRankCoordinator always reports no rank-0 peer: every worker owns its
// own device. Multi-process rank coordination across worker processes is
// not implemented.
type LocalRankCoordinator struct{}

// RankZeroAddress always returns ("", false).
func (LocalRankCoordinator) RankZeroAddress(servableName string) (string, bool) {
	return "", false
}
