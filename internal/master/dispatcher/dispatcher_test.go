package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/master/resilience"
	"github.com/predictgrid/predictgrid/internal/master/workerctx"
	"github.com/predictgrid/predictgrid/internal/servingerr"
	"github.com/predictgrid/predictgrid/internal/tensor"
)

// fakeWorker is a WorkerRPC that echoes its input instances back as output,
// optionally with a fixed delay and/or a scripted failure.
type fakeWorker struct {
	mu      sync.Mutex
	delay   time.Duration
	fail    bool
	calls   int
}

func (f *fakeWorker) Predict(ctx context.Context, in *pb.PredictRequest) (*pb.PredictReply, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if fail {
		return nil, servingerr.WorkerUnavailable("fake worker down")
	}
	return &pb.PredictReply{Instances: in.Instances}, nil
}

func newReadyWorker(t *testing.T, pid uint64, rpc workerctx.WorkerRPC) *workerctx.Context {
	t.Helper()
	ctx := workerctx.New(workerctx.Spec{Pid: pid, Address: "localhost:0", BatchSize: 1})
	ctx.Register(rpc)
	return ctx
}

func oneInstanceRequest() *pb.PredictRequest {
	return &pb.PredictRequest{
		Spec:      &pb.ServableSpec{Name: "add_common", MethodName: "add"},
		Instances: []*pb.Instance{{Items: map[string]*pb.Tensor{"x": tensor.NewFloat32([]int64{1}, []float32{1})}}},
	}
}

func TestPushRequest_NoWorkers(t *testing.T) {
	d := New(Config{ServableName: "add_common", MethodName: "add", InputNames: []string{"x"}, BatchSize: 1})

	err := d.PushRequest(oneInstanceRequest(), func(*pb.PredictReply) {})
	if err == nil {
		t.Fatal("expected error with no workers registered")
	}
	if st, ok := err.(*servingerr.Status); !ok || st.Kind != servingerr.KindInvalidInputs {
		t.Errorf("expected InvalidInputs, got %v", err)
	}
}

func TestPushRequest_InvalidInstance(t *testing.T) {
	d := New(Config{ServableName: "add_common", MethodName: "add", InputNames: []string{"x", "y"}, BatchSize: 1})
	w := &fakeWorker{}
	d.AddWorker(1, newReadyWorker(t, 1, w))

	req := oneInstanceRequest() // only has "x", missing "y"
	err := d.PushRequest(req, func(*pb.PredictReply) {})
	if err == nil {
		t.Fatal("expected InvalidInputs for missing input")
	}
}

func TestPushRequest_SingleWorkerSuccess(t *testing.T) {
	d := New(Config{ServableName: "add_common", MethodName: "add", InputNames: []string{"x"}, BatchSize: 1})
	w := &fakeWorker{}
	d.AddWorker(1, newReadyWorker(t, 1, w))

	done := make(chan *pb.PredictReply, 1)
	err := d.PushRequest(oneInstanceRequest(), func(r *pb.PredictReply) { done <- r })
	if err != nil {
		t.Fatalf("PushRequest failed: %v", err)
	}

	select {
	case reply := <-done:
		if len(reply.Instances) != 1 {
			t.Errorf("expected 1 instance in reply, got %d", len(reply.Instances))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestCreditConservation(t *testing.T) {
	d := New(Config{ServableName: "add_common", MethodName: "add", InputNames: []string{"x"}, BatchSize: 1, Round: 3})
	w1 := &fakeWorker{delay: 10 * time.Millisecond}
	w2 := &fakeWorker{delay: 10 * time.Millisecond}
	d.AddWorker(1, newReadyWorker(t, 1, w1))
	d.AddWorker(2, newReadyWorker(t, 2, w2))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		if err := d.PushRequest(oneInstanceRequest(), func(*pb.PredictReply) { wg.Done() }); err != nil {
			wg.Done()
		}
	}
	wg.Wait()

	if got := d.TotalCredits(); got != 6 {
		t.Errorf("expected credits to return to 6 (round=3 * 2 workers) at quiescence, got %d", got)
	}
	if pending := d.PendingJobs(); pending != 0 {
		t.Errorf("expected no pending jobs, got %d", pending)
	}
}

func TestSelectWorker_PrefersHighestCredit(t *testing.T) {
	d := New(Config{ServableName: "s", MethodName: "m", BatchSize: 1, Round: 3})
	d.credits[1] = 1
	d.credits[2] = 3
	d.credits[3] = 2

	pid, ok := d.selectWorkerLocked()
	if !ok || pid != 2 {
		t.Errorf("expected worker 2 (highest credit), got %d ok=%v", pid, ok)
	}
}

func TestSelectWorker_TieBreaksByPidWraparound(t *testing.T) {
	d := New(Config{ServableName: "s", MethodName: "m", BatchSize: 1, Round: 3})
	d.credits[1] = 3
	d.credits[2] = 3
	d.credits[3] = 3
	d.lastSelectedPid = 2

	pid, ok := d.selectWorkerLocked()
	if !ok || pid != 3 {
		t.Errorf("expected worker 3 (next after last_selected=2), got %d", pid)
	}

	d.lastSelectedPid = 3
	pid, ok = d.selectWorkerLocked()
	if !ok || pid != 1 {
		t.Errorf("expected wraparound to worker 1, got %d", pid)
	}
}

func TestRemoveWorker_RequeuesInFlightTasks(t *testing.T) {
	d := New(Config{ServableName: "add_common", MethodName: "add", InputNames: []string{"x"}, BatchSize: 1, Round: 3})
	slow := &fakeWorker{delay: 200 * time.Millisecond}
	fast := &fakeWorker{}
	d.AddWorker(1, newReadyWorker(t, 1, slow))

	done := make(chan *pb.PredictReply, 1)
	d.PushRequest(oneInstanceRequest(), func(r *pb.PredictReply) { done <- r })

	time.Sleep(20 * time.Millisecond) // let it land on worker 1
	d.AddWorker(2, newReadyWorker(t, 2, fast))
	d.RemoveWorker(1)

	select {
	case reply := <-done:
		if len(reply.Instances) != 1 || len(reply.ErrorMsg) != 0 {
			t.Errorf("expected task to complete via re-routed worker, got %+v", reply)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed after worker removal")
	}
}

func TestRemoveWorker_FailsJobsWhenNoWorkersRemain(t *testing.T) {
	d := New(Config{ServableName: "add_common", MethodName: "add", InputNames: []string{"x"}, BatchSize: 1})
	w := &fakeWorker{delay: 100 * time.Millisecond}
	d.AddWorker(1, newReadyWorker(t, 1, w))

	done := make(chan *pb.PredictReply, 1)
	d.PushRequest(oneInstanceRequest(), func(r *pb.PredictReply) { done <- r })
	time.Sleep(10 * time.Millisecond)
	d.RemoveWorker(1)

	select {
	case reply := <-done:
		if len(reply.ErrorMsg) == 0 {
			t.Error("expected an error reply when all workers are removed")
		}
	case <-time.After(time.Second):
		t.Fatal("job never completed after losing all workers")
	}
}

func TestShutdown_CompletesAllOutstandingJobs(t *testing.T) {
	d := New(Config{ServableName: "add_common", MethodName: "add", InputNames: []string{"x"}, BatchSize: 1})
	w := &fakeWorker{delay: time.Second}
	d.AddWorker(1, newReadyWorker(t, 1, w))

	done := make(chan *pb.PredictReply, 1)
	d.PushRequest(oneInstanceRequest(), func(r *pb.PredictReply) { done <- r })
	time.Sleep(10 * time.Millisecond)

	d.Shutdown()

	select {
	case reply := <-done:
		if len(reply.ErrorMsg) == 0 {
			t.Error("expected error reply on shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("shutdown never completed outstanding job")
	}
}

func TestCircuitBreaker_TripsAfterRepeatedFailures(t *testing.T) {
	circuit := resilience.NewManager(resilience.Config{
		MaxRequests:  1,
		Interval:     time.Second,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}, nil)

	d := New(Config{
		ServableName: "add_common",
		MethodName:   "add",
		InputNames:   []string{"x"},
		BatchSize:    1,
		Round:        1,
		Circuit:      circuit,
	})
	failing := &fakeWorker{fail: true}
	d.AddWorker(1, newReadyWorker(t, 1, failing))
	d.PushRequest(oneInstanceRequest(), func(*pb.PredictReply) {})

	// A worker reporting WorkerUnavailable is marked NotAvailable and its
	// sub-task is requeued indefinitely (recovery requires a heartbeat),
	// which also keeps tripping the breaker; poll until it opens.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if circuit.IsOpen(1) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected circuit for worker 1 to trip after repeated failures")
}
