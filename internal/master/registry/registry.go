// Package registry implements WorkerRegistry, the master's bookkeeping of
// every registered worker process, its auth token check, and its liveness
// heartbeat: a map-of-workers under a single mutex with a background
// cleanup loop that marks a worker dead after max_ping_times consecutive
// timeouts of ping_timeout each.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/predictgrid/predictgrid/internal/master/workerctx"
	"github.com/predictgrid/predictgrid/internal/servingerr"
)

// Pinger issues a liveness probe to a worker's address. Implementations
// wrap a WorkerServiceClient.Ping call; tests can substitute a fake.
type Pinger interface {
	Ping(ctx context.Context, address string) error
}

// Entry is one registered worker's bookkeeping record.
type Entry struct {
	Pid           uint64
	Address       string
	ServableName  string
	VersionNumber uint64
	Context       *workerctx.Context

	missedPings   int
	lastHeartbeat time.Time
}

// Registry tracks every registered worker by pid and by address.
type Registry struct {
	mu        sync.RWMutex
	byPid     map[uint64]*Entry
	byAddress map[string]uint64

	authToken    string
	maxPingTimes int
	pingTimeout  time.Duration
	pinger       Pinger

	stopCh chan struct{}
	once   sync.Once
}

// Config configures a Registry.
type Config struct {
	AuthToken    string
	MaxPingTimes int
	PingTimeout  time.Duration
	Pinger       Pinger
}

// New creates an empty Registry.
func New(cfg Config) *Registry {
	maxPing := cfg.MaxPingTimes
	if maxPing <= 0 {
		maxPing = 10
	}
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Registry{
		byPid:        make(map[uint64]*Entry),
		byAddress:    make(map[string]uint64),
		authToken:    cfg.AuthToken,
		maxPingTimes: maxPing,
		pingTimeout:  timeout,
		pinger:       cfg.Pinger,
		stopCh:       make(chan struct{}),
	}
}

// CheckAuthToken rejects registration when the registry has a configured
// token and the presented one does not match.
func (r *Registry) CheckAuthToken(presented string) error {
	if r.authToken == "" {
		return nil
	}
	if presented != r.authToken {
		return servingerr.InvalidInputs("invalid worker auth token")
	}
	return nil
}

// Register records a new worker. It fails if the worker's address is
// already registered under a different pid: duplicate registration is
// rejected, not silently merged, since two distinct worker processes never
// legitimately share an address.
func (r *Registry) Register(spec workerctx.Spec, servableName string, versionNumber uint64) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingPid, exists := r.byAddress[spec.Address]; exists && existingPid != spec.Pid {
		return nil, servingerr.InvalidInputs("address %s is already registered to worker %d", spec.Address, existingPid)
	}

	ctx := workerctx.New(spec)
	entry := &Entry{
		Pid:           spec.Pid,
		Address:       spec.Address,
		ServableName:  servableName,
		VersionNumber: versionNumber,
		Context:       ctx,
		lastHeartbeat: time.Now(),
	}
	r.byPid[spec.Pid] = entry
	r.byAddress[spec.Address] = spec.Pid
	return entry, nil
}

// Get returns a worker entry by pid.
func (r *Registry) Get(pid uint64) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byPid[pid]
	return e, ok
}

// List returns every registered entry.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.byPid))
	for _, e := range r.byPid {
		out = append(out, e)
	}
	return out
}

// Remove drops a worker from both indexes and returns the removed entry.
func (r *Registry) Remove(pid uint64) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byPid[pid]
	if !ok {
		return nil, false
	}
	delete(r.byPid, pid)
	delete(r.byAddress, e.Address)
	return e, true
}

// NotifyWorkerExit marks a worker's clean exit.
func (r *Registry) NotifyWorkerExit(pid uint64) (*Entry, bool) {
	r.mu.Lock()
	e, ok := r.byPid[pid]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.Context.OnExit()
	return r.Remove(pid)
}

// NotifyWorkerFailed marks a worker's reported start/run failure.
func (r *Registry) NotifyWorkerFailed(pid uint64, msg string) (*Entry, bool) {
	r.mu.Lock()
	e, ok := r.byPid[pid]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.Context.OnStartError(msg)
	return r.Remove(pid)
}

// NotifyWorkerNotAvailable marks a worker as transiently unavailable without
// removing it, so scheduling stops routing to it but heartbeats can still
// recover it.
func (r *Registry) NotifyWorkerNotAvailable(pid uint64) {
	if e, ok := r.Get(pid); ok {
		e.Context.NotifyNotAvailable()
	}
}

// NotifyWorkerNotAlive marks a worker dead and removes it, used when the
// heartbeat monitor exhausts max_ping_times.
func (r *Registry) NotifyWorkerNotAlive(pid uint64) (*Entry, bool) {
	if e, ok := r.Get(pid); ok {
		e.Context.NotifyNotAlive()
	}
	return r.Remove(pid)
}

// Heartbeat records a successful ping/pong round trip, resetting the missed
// count and recovering the worker to Ready if it had lapsed.
func (r *Registry) Heartbeat(pid uint64) bool {
	r.mu.Lock()
	e, ok := r.byPid[pid]
	if ok {
		e.missedPings = 0
		e.lastHeartbeat = time.Now()
	}
	r.mu.Unlock()
	if ok {
		e.Context.Recover()
	}
	return ok
}

// StartHeartbeatMonitor pings every registered worker on interval ticks. A
// worker that fails max_ping_times consecutive pings of ping_timeout each is
// reported dead via onDead.
func (r *Registry) StartHeartbeatMonitor(interval time.Duration, onDead func(pid uint64)) {
	if r.pinger == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.pingRound(onDead)
			case <-r.stopCh:
				return
			}
		}
	}()
}

func (r *Registry) pingRound(onDead func(pid uint64)) {
	for _, e := range r.List() {
		ctx, cancel := context.WithTimeout(context.Background(), r.pingTimeout)
		err := r.pinger.Ping(ctx, e.Address)
		cancel()

		r.mu.Lock()
		cur, ok := r.byPid[e.Pid]
		if !ok {
			r.mu.Unlock()
			continue
		}
		if err != nil {
			cur.missedPings++
		} else {
			cur.missedPings = 0
			cur.lastHeartbeat = time.Now()
		}
		dead := cur.missedPings >= r.maxPingTimes
		r.mu.Unlock()

		if err == nil {
			cur.Context.Recover()
			continue
		}
		if dead {
			r.NotifyWorkerNotAlive(e.Pid)
			if onDead != nil {
				onDead(e.Pid)
			}
		}
	}
}

// Stop halts the heartbeat monitor goroutine.
func (r *Registry) Stop() {
	r.once.Do(func() { close(r.stopCh) })
}

// Count returns the number of registered workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPid)
}
