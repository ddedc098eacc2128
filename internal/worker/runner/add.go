package runner

import (
	"context"
	"fmt"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/tensor"
)

// AddRunner is the demo model this repository ships: element-wise addition
// of two float32 tensors named x1 and x2, producing y. It stands in for the
// "model = element-wise addition" servable the end-to-end scenarios
// describe.
type AddRunner struct{}

// NewAddRunner builds the demo add-common servable.
func NewAddRunner() *AddRunner { return &AddRunner{} }

// InputNames declares x1 and x2 as the method's inputs.
func (r *AddRunner) InputNames() []string { return []string{"x1", "x2"} }

// Run adds x1 and x2 element-wise for every instance in the batch.
func (r *AddRunner) Run(ctx context.Context, instances []*pb.Instance) ([]*pb.Instance, error) {
	out := make([]*pb.Instance, len(instances))
	for i, inst := range instances {
		y, err := addInstance(inst)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		out[i] = y
	}
	return out, nil
}

func addInstance(inst *pb.Instance) (*pb.Instance, error) {
	x1, ok := inst.Items["x1"]
	if !ok {
		return nil, fmt.Errorf("missing input x1")
	}
	x2, ok := inst.Items["x2"]
	if !ok {
		return nil, fmt.Errorf("missing input x2")
	}
	if !shapeEqual(x1.Shape, x2.Shape) {
		return nil, fmt.Errorf("x1 shape %v and x2 shape %v differ", x1.Shape, x2.Shape)
	}

	v1, err := tensor.UnpackFloat32(x1.Data)
	if err != nil {
		return nil, fmt.Errorf("x1: %w", err)
	}
	v2, err := tensor.UnpackFloat32(x2.Data)
	if err != nil {
		return nil, fmt.Errorf("x2: %w", err)
	}
	if len(v1) != len(v2) {
		return nil, fmt.Errorf("x1 element count %d and x2 element count %d differ", len(v1), len(v2))
	}

	sum := make([]float32, len(v1))
	for i := range v1 {
		sum[i] = v1[i] + v2[i]
	}

	return &pb.Instance{Items: map[string]*pb.Tensor{
		"y": tensor.NewFloat32(x1.Shape, sum),
	}}, nil
}

func shapeEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
