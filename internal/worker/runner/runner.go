// Package runner implements the worker-side execution layer: a ModelRunner
// executes one method against an Instance list and returns the output
// instances, and a Registry selects the right ModelRunner for a declared
// method name.
package runner

import (
	"context"
	"fmt"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
)

// ModelRunner executes one predict call against a batch of instances.
type ModelRunner interface {
	// Run computes outputs for every instance in the batch. len(out) must
	// equal len(instances); a partial failure belongs in the caller's
	// per-instance error handling, not a partial return here.
	Run(ctx context.Context, instances []*pb.Instance) ([]*pb.Instance, error)

	// InputNames returns the input tensor names this runner expects, used to
	// populate WorkerRegSpec.Methods on registration.
	InputNames() []string
}

// Registry maps method name to the ModelRunner that serves it, mirroring
// executor.Manager's role of picking the right implementation for a
// request rather than hardcoding a single one.
type Registry struct {
	runners map[string]ModelRunner
}

// NewRegistry builds a Registry from a method-name -> ModelRunner mapping.
func NewRegistry(runners map[string]ModelRunner) *Registry {
	return &Registry{runners: runners}
}

// Get returns the runner registered for methodName, if any.
func (r *Registry) Get(methodName string) (ModelRunner, bool) {
	m, ok := r.runners[methodName]
	return m, ok
}

// MethodInfos builds the []*pb.MethodInfo declaration this registry's
// methods should register under.
func (r *Registry) MethodInfos() []*pb.MethodInfo {
	infos := make([]*pb.MethodInfo, 0, len(r.runners))
	for name, m := range r.runners {
		infos = append(infos, &pb.MethodInfo{Name: name, InputNames: m.InputNames()})
	}
	return infos
}

// Run dispatches to the runner registered for methodName.
func (r *Registry) Run(ctx context.Context, methodName string, instances []*pb.Instance) ([]*pb.Instance, error) {
	m, ok := r.runners[methodName]
	if !ok {
		return nil, fmt.Errorf("method %q is not available on this worker", methodName)
	}
	return m.Run(ctx, instances)
}
