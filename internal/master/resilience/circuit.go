// Package resilience wraps each worker's RPC path in a circuit breaker, so
// a worker failing most of its recent sub-requests stops receiving new
// ones for a cooldown period instead of being retried into the ground.
package resilience

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/predictgrid/predictgrid/internal/observability/metrics"
)

// State mirrors gobreaker's three states under predictgrid's own name, so
// callers never need to import gobreaker directly.
type State string

const (
	StateClosed   State = "CLOSED"
	StateHalfOpen State = "HALF_OPEN"
	StateOpen     State = "OPEN"
)

// Config holds circuit breaker tuning.
type Config struct {
	MaxRequests  uint32        // requests allowed through in half-open
	Interval     time.Duration // sliding window while closed
	Timeout      time.Duration // duration of the open state
	FailureRatio float64       // failure rate that trips the breaker
	MinRequests  uint32        // requests needed before the ratio is checked
}

// DefaultConfig returns a 60% failure rate over at least 3 requests in a
// 10s window opening the circuit for 60s.
func DefaultConfig() Config {
	return Config{
		MaxRequests:  3,
		Interval:     10 * time.Second,
		Timeout:      60 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  3,
	}
}

// Manager keeps one gobreaker.CircuitBreaker per worker pid.
type Manager struct {
	mu       sync.RWMutex
	breakers map[uint64]*gobreaker.CircuitBreaker
	config   Config
	metrics  *metrics.Metrics
}

// NewManager creates a Manager. metrics may be nil to disable reporting.
func NewManager(cfg Config, m *metrics.Metrics) *Manager {
	return &Manager{
		breakers: make(map[uint64]*gobreaker.CircuitBreaker),
		config:   cfg,
		metrics:  m,
	}
}

func (m *Manager) getOrCreate(pid uint64) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[pid]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok = m.breakers[pid]; ok {
		return cb
	}

	name := strconv.FormatUint(pid, 10)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: m.config.MaxRequests,
		Interval:    m.config.Interval,
		Timeout:     m.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < m.config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= m.config.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().Str("worker_pid", name).
				Str("from", string(fromGobreaker(from))).
				Str("to", string(fromGobreaker(to))).
				Msg("circuit breaker state change")
			if m.metrics != nil {
				m.metrics.SetCircuitState(name, toMetricsState(to))
			}
		},
	}
	cb = gobreaker.NewCircuitBreaker(settings)
	m.breakers[pid] = cb
	return cb
}

// Execute runs fn under pid's circuit breaker, tripping the breaker if fn's
// error rate crosses the configured threshold.
func (m *Manager) Execute(pid uint64, fn func() (interface{}, error)) (interface{}, error) {
	return m.getOrCreate(pid).Execute(fn)
}

// IsOpen reports whether pid's breaker is currently open, meaning the
// scheduler should treat it as if it has no available credit.
func (m *Manager) IsOpen(pid uint64) bool {
	m.mu.RLock()
	cb, ok := m.breakers[pid]
	m.mu.RUnlock()
	return ok && cb.State() == gobreaker.StateOpen
}

// Remove drops pid's breaker once the worker is deregistered.
func (m *Manager) Remove(pid uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, pid)
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

func toMetricsState(s gobreaker.State) metrics.CircuitStateValue {
	switch s {
	case gobreaker.StateClosed:
		return metrics.CircuitStateClosed
	case gobreaker.StateHalfOpen:
		return metrics.CircuitStateHalfOpen
	case gobreaker.StateOpen:
		return metrics.CircuitStateOpen
	default:
		return metrics.CircuitStateClosed
	}
}
