package runner

import (
	"context"
	"testing"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/tensor"
)

func TestAddRunner_ElementWise(t *testing.T) {
	r := NewAddRunner()
	shape := []int64{2, 2}
	inst := &pb.Instance{Items: map[string]*pb.Tensor{
		"x1": tensor.NewFloat32(shape, []float32{1.1, 2.2, 3.3, 4.4}),
		"x2": tensor.NewFloat32(shape, []float32{1.2, 2.3, 3.4, 4.5}),
	}}

	out, err := r.Run(context.Background(), []*pb.Instance{inst})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(out))
	}

	y, ok := out[0].Items["y"]
	if !ok {
		t.Fatal("missing y output")
	}
	values, err := tensor.UnpackFloat32(y.Data)
	if err != nil {
		t.Fatalf("UnpackFloat32 failed: %v", err)
	}
	want := []float32{2.3, 4.5, 6.7, 8.9}
	for i := range want {
		if diff := values[i] - want[i]; diff > 1e-4 || diff < -1e-4 {
			t.Errorf("value %d: expected %v, got %v", i, want[i], values[i])
		}
	}
}

func TestAddRunner_ShapeMismatch(t *testing.T) {
	r := NewAddRunner()
	inst := &pb.Instance{Items: map[string]*pb.Tensor{
		"x1": tensor.NewFloat32([]int64{2}, []float32{1, 2}),
		"x2": tensor.NewFloat32([]int64{1}, []float32{1}),
	}}
	if _, err := r.Run(context.Background(), []*pb.Instance{inst}); err == nil {
		t.Fatal("expected a shape mismatch error")
	}
}

func TestRegistry_UnknownMethod(t *testing.T) {
	reg := NewRegistry(map[string]ModelRunner{"add_common": NewAddRunner()})
	if _, err := reg.Run(context.Background(), "add_common_error", nil); err == nil {
		t.Fatal("expected an error for an unregistered method")
	}
}
