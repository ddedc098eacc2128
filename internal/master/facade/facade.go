// Package facade implements Dispatcher, the top-level façade that frontend
// adapters call. It owns admission control, servable/version routing
// across ServableEndpoints, and delegates worker lifecycle events to the
// WorkerRegistry.
package facade

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/master/dispatcher"
	"github.com/predictgrid/predictgrid/internal/master/endpoint"
	"github.com/predictgrid/predictgrid/internal/master/registry"
	"github.com/predictgrid/predictgrid/internal/master/resilience"
	"github.com/predictgrid/predictgrid/internal/master/workerctx"
	"github.com/predictgrid/predictgrid/internal/observability/metrics"
	"github.com/predictgrid/predictgrid/internal/servingerr"
)

// Config configures a Dispatcher façade.
type Config struct {
	Registry     *registry.Registry
	Round        int // per-worker credit ceiling, passed to every new Endpoint
	AdmissionCap int64
	Metrics      *metrics.Metrics  // optional; nil disables metric recording
	Circuit      resilience.Config // per-worker circuit breaker tuning
	CircuitOff   bool              // true disables breaker tripping entirely
}

// Dispatcher is the master's single entry point for predict requests and
// worker lifecycle notifications.
type Dispatcher struct {
	registry     *registry.Registry
	round        int
	admissionCap int64
	metrics      *metrics.Metrics
	circuit      *resilience.Manager

	mu        sync.RWMutex
	endpoints map[string]map[uint64]*endpoint.Endpoint // servable name -> version -> endpoint

	enqueued int64
}

// New creates a Dispatcher façade.
func New(cfg Config) *Dispatcher {
	cap := cfg.AdmissionCap
	if cap <= 0 {
		cap = 1024
	}
	var circuit *resilience.Manager
	if !cfg.CircuitOff {
		cfgCircuit := cfg.Circuit
		if cfgCircuit == (resilience.Config{}) {
			cfgCircuit = resilience.DefaultConfig()
		}
		circuit = resilience.NewManager(cfgCircuit, cfg.Metrics)
	}
	return &Dispatcher{
		registry:     cfg.Registry,
		round:        cfg.Round,
		admissionCap: cap,
		metrics:      cfg.Metrics,
		circuit:      circuit,
		endpoints:    make(map[string]map[uint64]*endpoint.Endpoint),
	}
}

// RegisterWorker validates the auth token, records the worker in the
// registry, finds-or-creates the servable's endpoint, and adds the worker
// to it.
func (d *Dispatcher) RegisterWorker(spec pb.WorkerRegSpec, authToken string) error {
	if err := d.registry.CheckAuthToken(authToken); err != nil {
		return err
	}

	wctxSpec := workerctx.Spec{
		Address:   spec.WorkerAddress,
		Pid:       spec.WorkerPid,
		Methods:   spec.Methods,
		OwnDevice: spec.OwnDevice,
		BatchSize: spec.BatchSize,
	}

	entry, err := d.registry.Register(wctxSpec, spec.ServableName, spec.VersionNumber)
	if err != nil {
		return err
	}

	ep := d.endpointForLocked(spec.ServableName, spec.VersionNumber, true)
	if err := ep.RegisterWorker(spec.WorkerPid, wctxSpec, entry.Context); err != nil {
		d.registry.Remove(spec.WorkerPid)
		return err
	}
	if d.metrics != nil {
		d.metrics.SetWorkerCount(spec.ServableName, versionLabel(spec.VersionNumber), float64(ep.WorkerCount()))
	}
	return nil
}

// ConnectWorker attaches the live RPC stub once a gRPC connection to the
// worker exists, transitioning it Starting -> Ready.
func (d *Dispatcher) ConnectWorker(pid uint64, rpc workerctx.WorkerRPC) bool {
	entry, ok := d.registry.Get(pid)
	if !ok {
		return false
	}
	entry.Context.Register(rpc)
	return true
}

// endpointForLocked finds or, if create is true, creates the endpoint for a
// (servable, version) pair.
func (d *Dispatcher) endpointForLocked(servableName string, versionNumber uint64, create bool) *endpoint.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	versions, ok := d.endpoints[servableName]
	if !ok {
		if !create {
			return nil
		}
		versions = make(map[uint64]*endpoint.Endpoint)
		d.endpoints[servableName] = versions
	}
	ep, ok := versions[versionNumber]
	if !ok {
		if !create {
			return nil
		}
		ep = endpoint.New(servableName, versionNumber, d.round, d.circuit)
		versions[versionNumber] = ep
	}
	return ep
}

// resolveEndpoint implements version routing: an explicit non-zero version
// must match exactly, while version 0 means "the largest registered
// version".
func (d *Dispatcher) resolveEndpoint(servableName string, versionNumber uint64) (*endpoint.Endpoint, error) {
	d.mu.RLock()
	versions, ok := d.endpoints[servableName]
	d.mu.RUnlock()
	if !ok || len(versions) == 0 {
		return nil, servingerr.InvalidInputs("servable %s is not registered", servableName)
	}

	if versionNumber != 0 {
		d.mu.RLock()
		ep, ok := versions[versionNumber]
		d.mu.RUnlock()
		if !ok {
			return nil, servingerr.InvalidInputs("servable %s version %d is not registered", servableName, versionNumber)
		}
		return ep, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	var best *endpoint.Endpoint
	var bestVersion uint64
	for v, ep := range versions {
		if best == nil || v > bestVersion {
			best = ep
			bestVersion = v
		}
	}
	return best, nil
}

// Dispatch runs the Predict path: admission control, version routing, and
// delegation to the resolved endpoint.
func (d *Dispatcher) Dispatch(req *pb.PredictRequest, onFinish dispatcher.OnFinish) error {
	if atomic.AddInt64(&d.enqueued, 1) > d.admissionCap {
		atomic.AddInt64(&d.enqueued, -1)
		return servingerr.SystemError("too many requests pending")
	}

	servableName, versionNumber, methodName := "", uint64(0), ""
	if req.Spec != nil {
		servableName = req.Spec.Name
		versionNumber = req.Spec.VersionNumber
		methodName = req.Spec.MethodName
	}

	start := time.Now()
	wrapped := func(reply *pb.PredictReply) {
		atomic.AddInt64(&d.enqueued, -1)
		if d.metrics != nil {
			d.metrics.RecordRequest(servableName, methodName, replyStatus(reply), float64(time.Since(start).Milliseconds()))
		}
		onFinish(reply)
	}

	ep, err := d.resolveEndpoint(servableName, versionNumber)
	if err != nil {
		atomic.AddInt64(&d.enqueued, -1)
		return err
	}

	if err := ep.Dispatch(req, wrapped); err != nil {
		atomic.AddInt64(&d.enqueued, -1)
		return err
	}
	return nil
}

func versionLabel(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func replyStatus(reply *pb.PredictReply) metrics.RequestStatus {
	if reply == nil || len(reply.ErrorMsg) == 0 {
		return metrics.RequestStatusOK
	}
	st := servingerr.FromErrorMsg(reply.ErrorMsg[0])
	if st == nil {
		return metrics.RequestStatusOK
	}
	switch st.Kind {
	case servingerr.KindInvalidInputs:
		return metrics.RequestStatusInvalidInputs
	case servingerr.KindWorkerUnavailable:
		return metrics.RequestStatusWorkerUnavailable
	case servingerr.KindSystemError:
		return metrics.RequestStatusSystemError
	default:
		return metrics.RequestStatusFailed
	}
}

// GetModelInfo returns every method declared by the resolved servable
// version.
func (d *Dispatcher) GetModelInfo(servableName string, versionNumber uint64) ([]*pb.MethodInfo, error) {
	ep, err := d.resolveEndpoint(servableName, versionNumber)
	if err != nil {
		return nil, err
	}
	return ep.MethodInfos(), nil
}

// NotifyWorkerExit handles a worker's clean exit notification.
func (d *Dispatcher) NotifyWorkerExit(pid uint64) {
	entry, ok := d.registry.NotifyWorkerExit(pid)
	if !ok {
		return
	}
	d.removeFromEndpoint(entry, pid)
}

// NotifyWorkerFailed handles a worker's reported failure.
func (d *Dispatcher) NotifyWorkerFailed(pid uint64, msg string) {
	entry, ok := d.registry.NotifyWorkerFailed(pid, msg)
	if !ok {
		return
	}
	d.removeFromEndpoint(entry, pid)
}

// NotifyWorkerNotAvailable marks a worker transiently unavailable without
// removing it from its endpoint, so recovery via heartbeat is still
// possible.
func (d *Dispatcher) NotifyWorkerNotAvailable(pid uint64) {
	d.registry.NotifyWorkerNotAvailable(pid)
}

// NotifyWorkerNotAlive handles the heartbeat monitor's dead-worker report.
func (d *Dispatcher) NotifyWorkerNotAlive(pid uint64) {
	entry, ok := d.registry.NotifyWorkerNotAlive(pid)
	if !ok {
		return
	}
	d.removeFromEndpoint(entry, pid)
}

func (d *Dispatcher) removeFromEndpoint(entry *registry.Entry, pid uint64) {
	ep := d.endpointForLocked(entry.ServableName, entry.VersionNumber, false)
	if ep == nil {
		return
	}
	ep.RemoveWorker(pid)
	if d.metrics != nil {
		d.metrics.SetWorkerCount(entry.ServableName, versionLabel(entry.VersionNumber), float64(ep.WorkerCount()))
		d.metrics.RemoveWorkerMetrics(versionLabel(pid))
	}
}

// Shutdown completes every outstanding job across every endpoint and stops
// the registry's heartbeat monitor.
func (d *Dispatcher) Shutdown() {
	d.mu.RLock()
	eps := make([]*endpoint.Endpoint, 0)
	for _, versions := range d.endpoints {
		for _, ep := range versions {
			eps = append(eps, ep)
		}
	}
	d.mu.RUnlock()

	for _, ep := range eps {
		ep.Shutdown()
	}
	d.registry.Stop()
}
