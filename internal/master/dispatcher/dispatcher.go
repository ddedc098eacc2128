// Package dispatcher implements MethodDispatcher, the heart of the system.
// One instance exists per (servable, method) pair; it owns, under a single
// mutex, the worker credit table, the FIFO task queue, and the in-flight
// job map, and issues worker RPCs outside that mutex.
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/master/resilience"
	"github.com/predictgrid/predictgrid/internal/master/workerctx"
	"github.com/predictgrid/predictgrid/internal/servingerr"
	"github.com/predictgrid/predictgrid/internal/tensor"
)

// DefaultRound is the per-worker credit ceiling used when a MethodDispatcher
// is not given an explicit Round.
const DefaultRound = 3

// OnFinish is invoked exactly once per job when every task completes.
type OnFinish func(*pb.PredictReply)

type task struct {
	input       *pb.Instance
	output      *pb.Instance
	err         *servingerr.Status
	inFlightPid uint64
}

type job struct {
	id             uint64
	request        *pb.PredictRequest
	tasks          []*task
	tasksRemaining int
	onFinish       OnFinish
	done           bool
}

type taskRef struct {
	jobID   uint64
	taskIdx int
}

// MethodDispatcher schedules one (servable, method)'s requests across its
// registered workers.
type MethodDispatcher struct {
	servableName string
	methodName   string
	inputNames   []string
	round        int

	mu              sync.Mutex
	workers         map[uint64]*workerctx.Context
	credits         map[uint64]int
	lastSelectedPid uint64
	taskWaitQueue   []taskRef
	jobs            map[uint64]*job
	nextJobID       uint64
	batchSize       uint64
	circuit         *resilience.Manager
}

// Config configures a new MethodDispatcher.
type Config struct {
	ServableName string
	MethodName   string
	InputNames   []string
	BatchSize    uint64
	Round        int // 0 means DefaultRound
	Circuit      *resilience.Manager // optional; nil disables breaker tripping
}

// New creates a MethodDispatcher for one (servable, method) pair.
func New(cfg Config) *MethodDispatcher {
	round := cfg.Round
	if round <= 0 {
		round = DefaultRound
	}
	return &MethodDispatcher{
		servableName: cfg.ServableName,
		methodName:   cfg.MethodName,
		inputNames:   cfg.InputNames,
		batchSize:    cfg.BatchSize,
		round:        round,
		workers:      make(map[uint64]*workerctx.Context),
		credits:      make(map[uint64]int),
		jobs:         make(map[uint64]*job),
		circuit:      cfg.Circuit,
	}
}

// MethodName returns the method this dispatcher serves.
func (d *MethodDispatcher) MethodName() string { return d.methodName }

// InputNames returns the declared input tensor names for this method.
func (d *MethodDispatcher) InputNames() []string { return d.inputNames }

// BatchSize returns the worker-declared batch size all workers share.
func (d *MethodDispatcher) BatchSize() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batchSize
}

// WorkerCount returns the number of registered workers.
func (d *MethodDispatcher) WorkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// TotalCredits sums the currently available credit across all workers. At
// quiescence it must equal round * len(workers).
func (d *MethodDispatcher) TotalCredits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, c := range d.credits {
		total += c
	}
	return total
}

// PendingJobs returns the number of jobs still awaiting completion.
func (d *MethodDispatcher) PendingJobs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

// PushRequest validates instances, fails fast if no worker is Ready,
// allocates a job, enqueues one task per instance, then schedules.
func (d *MethodDispatcher) PushRequest(req *pb.PredictRequest, onFinish OnFinish) error {
	if idx, err := tensor.CheckRequestInstances(req.Instances, d.inputNames); err != nil {
		return servingerr.InvalidInputs("instance %d: %v", idx, err)
	}

	d.mu.Lock()
	if !d.anyReadyLocked() {
		d.mu.Unlock()
		return servingerr.InvalidInputs("servable is not available")
	}

	j := &job{
		id:             d.nextJobID,
		request:        req,
		tasks:          make([]*task, len(req.Instances)),
		tasksRemaining: len(req.Instances),
		onFinish:       onFinish,
	}
	d.nextJobID++
	for i, inst := range req.Instances {
		j.tasks[i] = &task{input: inst}
		d.taskWaitQueue = append(d.taskWaitQueue, taskRef{jobID: j.id, taskIdx: i})
	}
	d.jobs[j.id] = j
	d.mu.Unlock()

	d.Schedule()
	return nil
}

func (d *MethodDispatcher) anyReadyLocked() bool {
	for _, w := range d.workers {
		if w.IsReady() {
			return true
		}
	}
	return false
}

// Schedule pops batches off the queue and dispatches them to selected
// workers until the queue is empty or no credit remains. State inspection
// happens under the mutex; the RPC itself is issued outside it.
func (d *MethodDispatcher) Schedule() {
	for {
		d.mu.Lock()
		if len(d.taskWaitQueue) == 0 {
			d.mu.Unlock()
			return
		}
		pid, ok := d.selectWorkerLocked()
		if !ok {
			d.mu.Unlock()
			return
		}
		d.credits[pid]--

		batch := d.batchSize
		if batch == 0 {
			batch = 1
		}
		var chosen []taskRef
		for uint64(len(chosen)) < batch && len(d.taskWaitQueue) > 0 {
			ref := d.taskWaitQueue[0]
			d.taskWaitQueue = d.taskWaitQueue[1:]
			chosen = append(chosen, ref)
		}
		instances := make([]*pb.Instance, len(chosen))
		for i, ref := range chosen {
			t := d.jobs[ref.jobID].tasks[ref.taskIdx]
			t.inFlightPid = pid
			instances[i] = t.input
		}
		worker := d.workers[pid]
		subReq := &pb.PredictRequest{
			Spec:      &pb.ServableSpec{Name: d.servableName, MethodName: d.methodName},
			Instances: instances,
		}
		d.mu.Unlock()

		d.dispatchToWorker(pid, worker, subReq, chosen)
	}
}

// dispatchToWorker issues one sub-request to worker, routing it through the
// circuit breaker if one is configured so a run of worker failures trips
// the breaker and the next Schedule pass skips the worker entirely.
func (d *MethodDispatcher) dispatchToWorker(pid uint64, worker *workerctx.Context, subReq *pb.PredictRequest, chosen []taskRef) {
	finish := func(reply *pb.PredictReply, rpcErr error) {
		// DispatchAsync failed synchronously: synthesize a
		// WorkerUnavailable sub-reply so onSubDone handles it
		// uniformly.
		if rpcErr != nil && reply == nil {
			reply = &pb.PredictReply{
				ErrorMsg: []*pb.ErrorMsg{servingerr.ToErrorMsg(servingerr.WorkerUnavailable("%v", rpcErr))},
			}
		}
		d.onSubDone(chosen, pid, reply, nil)
	}

	if d.circuit == nil {
		if err := worker.DispatchAsync(context.Background(), subReq, func(reply *pb.PredictReply, rpcErr error) {
			d.onSubDone(chosen, pid, reply, rpcErr)
		}); err != nil {
			finish(nil, err)
		}
		return
	}

	go func() {
		type result struct {
			reply *pb.PredictReply
			err   error
		}
		done := make(chan result, 1)

		out, execErr := d.circuit.Execute(pid, func() (interface{}, error) {
			submitErr := worker.DispatchAsync(context.Background(), subReq, func(reply *pb.PredictReply, rpcErr error) {
				done <- result{reply, rpcErr}
			})
			if submitErr != nil {
				return nil, submitErr
			}
			r := <-done
			if r.err != nil || replyHasWorkerUnavailable(r.reply) {
				return r.reply, servingerr.WorkerUnavailable("worker %d sub-request failed", pid)
			}
			return r.reply, nil
		})

		reply, _ := out.(*pb.PredictReply)
		if reply == nil && execErr != nil {
			finish(nil, execErr)
			return
		}
		finish(reply, nil)
	}()
}

// selectWorkerLocked implements weighted round robin by available credit,
// preferring the highest-credit worker and breaking ties by the first pid
// strictly greater than last_selected_pid (wrapping). Caller must hold d.mu.
func (d *MethodDispatcher) selectWorkerLocked() (uint64, bool) {
	pids := make([]uint64, 0, len(d.credits))
	for pid, credit := range d.credits {
		if credit > 0 && !d.circuitOpen(pid) {
			pids = append(pids, pid)
		}
	}
	if len(pids) == 0 {
		return 0, false
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	maxCredit := 0
	for _, pid := range pids {
		if d.credits[pid] > maxCredit {
			maxCredit = d.credits[pid]
		}
	}

	var best uint64
	found := false
	// First pass: smallest pid > last_selected_pid among max-credit workers.
	for _, pid := range pids {
		if d.credits[pid] == maxCredit && pid > d.lastSelectedPid {
			best = pid
			found = true
			break
		}
	}
	if !found {
		// Wrap: smallest pid among max-credit workers.
		for _, pid := range pids {
			if d.credits[pid] == maxCredit {
				best = pid
				found = true
				break
			}
		}
	}
	d.lastSelectedPid = best
	return best, found
}

// circuitOpen reports whether pid's circuit breaker is open. Caller must
// hold d.mu.
func (d *MethodDispatcher) circuitOpen(pid uint64) bool {
	if d.circuit == nil {
		return false
	}
	return d.circuit.IsOpen(pid)
}

// onSubDone handles a sub-request's completion: returns credit, requeues on
// worker failure, and completes the parent job once its last task lands.
func (d *MethodDispatcher) onSubDone(chosen []taskRef, pid uint64, reply *pb.PredictReply, rpcErr error) {
	d.mu.Lock()

	if _, stillRegistered := d.credits[pid]; stillRegistered {
		d.credits[pid]++
	}

	if rpcErr != nil || replyHasWorkerUnavailable(reply) {
		if worker, ok := d.workers[pid]; ok {
			worker.NotifyNotAvailable()
		}
		// Re-enqueue at the head of the queue, clearing in-flight tags.
		requeued := make([]taskRef, 0, len(chosen))
		for _, ref := range chosen {
			if t, ok := d.taskLocked(ref); ok {
				t.inFlightPid = 0
			}
			requeued = append(requeued, ref)
		}
		d.taskWaitQueue = append(requeued, d.taskWaitQueue...)
		d.mu.Unlock()
		d.Schedule()
		return
	}

	errs, outputs := d.decomposeLocked(chosen, reply)

	finished := make([]*job, 0)
	for i, ref := range chosen {
		t, ok := d.taskLocked(ref)
		if !ok {
			continue
		}
		t.inFlightPid = 0
		if i < len(outputs) {
			t.output = outputs[i]
		}
		if i < len(errs) {
			t.err = errs[i]
		}

		j := d.jobs[ref.jobID]
		if j == nil {
			continue
		}
		j.tasksRemaining--
		if j.tasksRemaining == 0 && !j.done {
			j.done = true
			finished = append(finished, j)
			delete(d.jobs, j.id)
		}
	}
	d.mu.Unlock()

	for _, j := range finished {
		j.onFinish(assembleReply(j))
	}

	d.Schedule()
}

// taskLocked looks up a task by ref. Caller must hold d.mu.
func (d *MethodDispatcher) taskLocked(ref taskRef) (*task, bool) {
	j, ok := d.jobs[ref.jobID]
	if !ok || ref.taskIdx >= len(j.tasks) {
		return nil, false
	}
	return j.tasks[ref.taskIdx], true
}

// decomposeLocked splits a sub-reply into per-task (output, error) pairs,
// synthesizing a system error if the instance count mismatches. Caller must
// hold d.mu.
func (d *MethodDispatcher) decomposeLocked(chosen []taskRef, reply *pb.PredictReply) ([]*servingerr.Status, []*pb.Instance) {
	n := len(chosen)

	if len(reply.Instances) != 0 && len(reply.Instances) != n {
		sysErr := servingerr.SystemError(
			"the instance count %d of reply is not equal to the count %d of request", len(reply.Instances), n)
		errs := make([]*servingerr.Status, n)
		for i := range errs {
			errs[i] = sysErr
		}
		return errs, nil
	}

	errs := make([]*servingerr.Status, n)
	switch len(reply.ErrorMsg) {
	case 0:
		// all success, fall through with nil errors
	case 1:
		st := servingerr.FromErrorMsg(reply.ErrorMsg[0])
		for i := range errs {
			errs[i] = st
		}
	default:
		for i := 0; i < n && i < len(reply.ErrorMsg); i++ {
			errs[i] = servingerr.FromErrorMsg(reply.ErrorMsg[i])
		}
	}

	return errs, reply.Instances
}

func replyHasWorkerUnavailable(reply *pb.PredictReply) bool {
	if reply == nil {
		return false
	}
	for _, e := range reply.ErrorMsg {
		if e.ErrorCode == pb.WorkerUnavailable {
			return true
		}
	}
	return false
}

// assembleReply preserves the original instance order when building the
// final PredictReply for a finished job.
func assembleReply(j *job) *pb.PredictReply {
	reply := &pb.PredictReply{}
	hasError := false
	for _, t := range j.tasks {
		if t.err != nil {
			hasError = true
			break
		}
	}
	if !hasError {
		reply.Instances = make([]*pb.Instance, len(j.tasks))
		for i, t := range j.tasks {
			reply.Instances[i] = t.output
		}
		return reply
	}
	reply.ErrorMsg = make([]*pb.ErrorMsg, len(j.tasks))
	reply.Instances = make([]*pb.Instance, len(j.tasks))
	for i, t := range j.tasks {
		reply.Instances[i] = t.output
		reply.ErrorMsg[i] = servingerr.ToErrorMsg(t.err)
	}
	return reply
}

// AddWorker registers a worker under this method, seeding its credit, then
// runs the scheduler so waiting tasks can proceed.
func (d *MethodDispatcher) AddWorker(pid uint64, ctx *workerctx.Context) error {
	d.mu.Lock()
	if _, exists := d.workers[pid]; exists {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher: worker %d already registered for method %s", pid, d.methodName)
	}
	if d.batchSize == 0 {
		d.batchSize = ctx.BatchSize()
	} else if ctx.BatchSize() != d.batchSize {
		d.mu.Unlock()
		return servingerr.InvalidInputs(
			"dispatcher: worker %d declares batch size %d for method %s, but %d is already established",
			pid, ctx.BatchSize(), d.methodName, d.batchSize)
	}
	d.workers[pid] = ctx
	d.credits[pid] = d.round
	d.mu.Unlock()

	d.Schedule()
	return nil
}

// RemoveWorker drops a worker, re-enqueues any tasks it held in flight, and
// fails every job outright if no workers remain.
func (d *MethodDispatcher) RemoveWorker(pid uint64) {
	d.mu.Lock()
	delete(d.workers, pid)
	delete(d.credits, pid)

	for jobID, j := range d.jobs {
		for idx, t := range j.tasks {
			if t.inFlightPid == pid {
				t.inFlightPid = 0
				d.taskWaitQueue = append(d.taskWaitQueue, taskRef{jobID: jobID, taskIdx: idx})
			}
		}
	}

	var finished []*job
	if len(d.workers) == 0 {
		for id, j := range d.jobs {
			if !j.done {
				j.done = true
				finishJobWithError(j, servingerr.InvalidInputs("servable is not available"))
				finished = append(finished, j)
			}
			delete(d.jobs, id)
		}
		d.taskWaitQueue = nil
	}
	d.mu.Unlock()

	for _, j := range finished {
		j.onFinish(assembleReply(j))
	}

	d.Schedule()
}

func finishJobWithError(j *job, st *servingerr.Status) {
	for _, t := range j.tasks {
		if t.err == nil && t.output == nil {
			t.err = st
		}
	}
}

// Shutdown completes every outstanding job with a "servable is not
// available" error, empties all queues, and invokes every stored callback
// exactly once.
func (d *MethodDispatcher) Shutdown() {
	d.mu.Lock()
	var finished []*job
	for id, j := range d.jobs {
		if !j.done {
			j.done = true
			finishJobWithError(j, servingerr.InvalidInputs("servable is not available"))
			finished = append(finished, j)
		}
		delete(d.jobs, id)
	}
	d.taskWaitQueue = nil
	d.workers = make(map[uint64]*workerctx.Context)
	d.credits = make(map[uint64]int)
	d.mu.Unlock()

	for _, j := range finished {
		j.onFinish(assembleReply(j))
	}
}
