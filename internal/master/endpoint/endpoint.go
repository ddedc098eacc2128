// Package endpoint implements ServableEndpoint, the per-servable-version
// container of MethodDispatchers. It is seeded by the first worker to
// register for a (servable, version) pair and rejects subsequent workers
// whose method set disagrees.
package endpoint

import (
	"sync"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/master/dispatcher"
	"github.com/predictgrid/predictgrid/internal/master/resilience"
	"github.com/predictgrid/predictgrid/internal/master/workerctx"
	"github.com/predictgrid/predictgrid/internal/servingerr"
)

// Endpoint is one (servable_name, version_number) pair: a fan-out of
// MethodDispatchers, one per declared method.
type Endpoint struct {
	name          string
	versionNumber uint64
	round         int
	circuit       *resilience.Manager

	mu      sync.RWMutex
	methods map[string]*dispatcher.MethodDispatcher
	seeded  bool
}

// New creates an empty endpoint; it has no methods until the first worker
// registers. circuit may be nil to disable breaker tripping.
func New(name string, versionNumber uint64, round int, circuit *resilience.Manager) *Endpoint {
	return &Endpoint{
		name:          name,
		versionNumber: versionNumber,
		round:         round,
		circuit:       circuit,
		methods:       make(map[string]*dispatcher.MethodDispatcher),
	}
}

// Name returns the servable name this endpoint serves.
func (e *Endpoint) Name() string { return e.name }

// VersionNumber returns the servable version this endpoint serves.
func (e *Endpoint) VersionNumber() uint64 { return e.versionNumber }

// MethodNames returns the registered method names, for introspection
// (GetModelInfo).
func (e *Endpoint) MethodNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.methods))
	for name := range e.methods {
		names = append(names, name)
	}
	return names
}

// MethodInfos returns the registered methods' full descriptions.
func (e *Endpoint) MethodInfos() []*pb.MethodInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	infos := make([]*pb.MethodInfo, 0, len(e.methods))
	for name, d := range e.methods {
		infos = append(infos, &pb.MethodInfo{Name: name, InputNames: d.InputNames()})
	}
	return infos
}

// RegisterWorker seeds the endpoint's methods on first registration, or
// validates that a subsequent worker declares the identical method set
// before adding it to each MethodDispatcher.
func (e *Endpoint) RegisterWorker(pid uint64, spec workerctx.Spec, ctx *workerctx.Context) error {
	e.mu.Lock()
	if !e.seeded {
		for _, m := range spec.Methods {
			e.methods[m.Name] = dispatcher.New(dispatcher.Config{
				ServableName: e.name,
				MethodName:   m.Name,
				InputNames:   m.InputNames,
				BatchSize:    spec.BatchSize,
				Round:        e.round,
				Circuit:      e.circuit,
			})
		}
		e.seeded = true
	} else if !e.sameMethodSetLocked(spec.Methods) {
		e.mu.Unlock()
		return servingerr.InvalidInputs(
			"worker %d declares a method set incompatible with servable %s version %d", pid, e.name, e.versionNumber)
	}
	dispatchers := make([]*dispatcher.MethodDispatcher, 0, len(e.methods))
	for _, d := range e.methods {
		dispatchers = append(dispatchers, d)
	}
	e.mu.Unlock()

	for _, d := range dispatchers {
		if err := d.AddWorker(pid, ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Endpoint) sameMethodSetLocked(methods []*pb.MethodInfo) bool {
	if len(methods) != len(e.methods) {
		return false
	}
	for _, m := range methods {
		if _, ok := e.methods[m.Name]; !ok {
			return false
		}
	}
	return true
}

// RemoveWorker drops a worker from every method dispatcher.
func (e *Endpoint) RemoveWorker(pid uint64) {
	e.mu.RLock()
	dispatchers := make([]*dispatcher.MethodDispatcher, 0, len(e.methods))
	for _, d := range e.methods {
		dispatchers = append(dispatchers, d)
	}
	e.mu.RUnlock()

	for _, d := range dispatchers {
		d.RemoveWorker(pid)
	}
	if e.circuit != nil {
		e.circuit.Remove(pid)
	}
}

// Dispatch routes a request to the named method's dispatcher.
func (e *Endpoint) Dispatch(req *pb.PredictRequest, onFinish dispatcher.OnFinish) error {
	methodName := ""
	if req.Spec != nil {
		methodName = req.Spec.MethodName
	}

	e.mu.RLock()
	d, ok := e.methods[methodName]
	e.mu.RUnlock()
	if !ok {
		return servingerr.Failed("method %s is not available for servable %s", methodName, e.name)
	}
	return d.PushRequest(req, onFinish)
}

// Shutdown completes every outstanding job across every method.
func (e *Endpoint) Shutdown() {
	e.mu.RLock()
	dispatchers := make([]*dispatcher.MethodDispatcher, 0, len(e.methods))
	for _, d := range e.methods {
		dispatchers = append(dispatchers, d)
	}
	e.mu.RUnlock()

	for _, d := range dispatchers {
		d.Shutdown()
	}
}

// WorkerCount returns the number of distinct workers registered across any
// method (a worker registers identically on every method dispatcher, so the
// first one found is representative).
func (e *Endpoint) WorkerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, d := range e.methods {
		return d.WorkerCount()
	}
	return 0
}
