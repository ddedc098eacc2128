package endpoint

import (
	"context"
	"testing"
	"time"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/master/workerctx"
	"github.com/predictgrid/predictgrid/internal/tensor"
)

type echoRPC struct{}

func (echoRPC) Predict(_ context.Context, in *pb.PredictRequest) (*pb.PredictReply, error) {
	return &pb.PredictReply{Instances: in.Instances}, nil
}

func addSpec() workerctx.Spec {
	return workerctx.Spec{
		Pid:       1,
		Address:   "localhost:0",
		BatchSize: 1,
		Methods: []*pb.MethodInfo{
			{Name: "add", InputNames: []string{"x", "y"}},
		},
	}
}

func TestRegisterWorker_SeedsMethods(t *testing.T) {
	e := New("add_common", 1, 3, nil)
	spec := addSpec()
	ctx := workerctx.New(spec)

	if err := e.RegisterWorker(spec.Pid, spec, ctx); err != nil {
		t.Fatalf("RegisterWorker failed: %v", err)
	}
	names := e.MethodNames()
	if len(names) != 1 || names[0] != "add" {
		t.Errorf("expected [add], got %v", names)
	}
}

func TestRegisterWorker_RejectsMismatchedMethodSet(t *testing.T) {
	e := New("add_common", 1, 3, nil)
	spec1 := addSpec()
	ctx1 := workerctx.New(spec1)
	if err := e.RegisterWorker(spec1.Pid, spec1, ctx1); err != nil {
		t.Fatalf("first RegisterWorker failed: %v", err)
	}

	spec2 := addSpec()
	spec2.Pid = 2
	spec2.Methods = []*pb.MethodInfo{{Name: "subtract", InputNames: []string{"x", "y"}}}
	ctx2 := workerctx.New(spec2)

	if err := e.RegisterWorker(spec2.Pid, spec2, ctx2); err == nil {
		t.Fatal("expected an error for a mismatched method set")
	}
}

func TestRegisterWorker_RejectsMismatchedBatchSize(t *testing.T) {
	e := New("add_common", 1, 3, nil)
	spec1 := addSpec()
	ctx1 := workerctx.New(spec1)
	if err := e.RegisterWorker(spec1.Pid, spec1, ctx1); err != nil {
		t.Fatalf("first RegisterWorker failed: %v", err)
	}

	spec2 := addSpec()
	spec2.Pid = 2
	spec2.BatchSize = 4
	ctx2 := workerctx.New(spec2)

	if err := e.RegisterWorker(spec2.Pid, spec2, ctx2); err == nil {
		t.Fatal("expected an error for a worker declaring a different batch size")
	}

	names := e.MethodNames()
	if len(names) != 1 || names[0] != "add" {
		t.Errorf("rejected worker must not have altered the established method set, got %v", names)
	}
}

func TestDispatch_UnknownMethod(t *testing.T) {
	e := New("add_common", 1, 3, nil)
	spec := addSpec()
	ctx := workerctx.New(spec)
	e.RegisterWorker(spec.Pid, spec, ctx)

	req := &pb.PredictRequest{
		Spec:      &pb.ServableSpec{Name: "add_common", MethodName: "nonexistent"},
		Instances: []*pb.Instance{{}},
	}
	err := e.Dispatch(req, func(*pb.PredictReply) {})
	if err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestShutdown_CompletesJobs(t *testing.T) {
	e := New("add_common", 1, 3, nil)
	spec := addSpec()
	ctx := workerctx.New(spec)
	ctx.Register(echoRPC{})
	e.RegisterWorker(spec.Pid, spec, ctx)

	done := make(chan *pb.PredictReply, 1)
	req := &pb.PredictRequest{
		Spec: &pb.ServableSpec{Name: "add_common", MethodName: "add"},
		Instances: []*pb.Instance{{Items: map[string]*pb.Tensor{
			"x": tensor.NewFloat32([]int64{1}, []float32{1}),
			"y": tensor.NewFloat32([]int64{1}, []float32{2}),
		}}},
	}
	if err := e.Dispatch(req, func(r *pb.PredictReply) { done <- r }); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	e.Shutdown()

	select {
	case reply := <-done:
		_ = reply
	case <-time.After(time.Second):
		t.Fatal("shutdown never completed the pending job")
	}
}
