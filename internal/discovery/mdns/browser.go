package mdns

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

// DiscoveredWorker represents a worker found via mDNS.
type DiscoveredWorker struct {
	ID           string
	Address      string // host:port
	Info         *WorkerInfo
	DiscoveredAt time.Time
	Source       string // "mdns"
}

// WorkerCallback is called when a worker is discovered or lost.
type WorkerCallback func(worker *DiscoveredWorker, event string)

// Browser discovers workers via mDNS. It is advisory: the registry's gRPC
// Register call remains the authoritative way a worker joins the pool, but
// a browser lets an operator or dashboard see what workers are reachable
// on the local network without querying the master.
type Browser struct {
	mu           sync.RWMutex
	workers      map[string]*DiscoveredWorker
	callback     WorkerCallback
	resolver     *zeroconf.Resolver
	browseCtx    context.Context
	browseCancel context.CancelFunc
	running      bool
	ttl          time.Duration
}

// BrowserConfig holds browser configuration.
type BrowserConfig struct {
	TTL time.Duration // How long to keep workers without re-discovery
}

// DefaultBrowserConfig returns sensible defaults.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		TTL: 60 * time.Second,
	}
}

// NewBrowser creates a new mDNS browser.
func NewBrowser(cfg BrowserConfig, callback WorkerCallback) *Browser {
	if cfg.TTL == 0 {
		cfg.TTL = 60 * time.Second
	}
	return &Browser{
		workers:  make(map[string]*DiscoveredWorker),
		callback: callback,
		ttl:      cfg.TTL,
	}
}

// Start begins browsing for workers via mDNS.
func (b *Browser) Start() error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("browser already running")
	}
	b.running = true
	b.mu.Unlock()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create resolver: %w", err)
	}
	b.resolver = resolver

	b.browseCtx, b.browseCancel = context.WithCancel(context.Background())

	go b.browse()
	go b.cleanupLoop()

	log.Info().
		Str("service", ServiceType).
		Dur("ttl", b.ttl).
		Msg("mDNS browser started")

	return nil
}

// Stop stops browsing for workers.
func (b *Browser) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	if b.browseCancel != nil {
		b.browseCancel()
	}

	log.Info().Msg("mDNS browser stopped")
}

// browse continuously listens for mDNS announcements.
func (b *Browser) browse() {
	entries := make(chan *zeroconf.ServiceEntry, 100)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Debug().Interface("panic", r).Msg("mDNS browse goroutine recovered")
			}
		}()

		for {
			select {
			case <-b.browseCtx.Done():
				return
			default:
				browseCtx, cancel := context.WithTimeout(b.browseCtx, 10*time.Second)
				err := b.resolver.Browse(browseCtx, ServiceType, Domain, entries)
				cancel()
				if err != nil && b.browseCtx.Err() == nil {
					log.Error().Err(err).Msg("mDNS browse error")
					time.Sleep(5 * time.Second)
				}
			}
		}
	}()

	for {
		select {
		case <-b.browseCtx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if entry == nil {
				continue
			}
			b.handleDiscovery(entry)
		}
	}
}

// handleDiscovery processes a discovered service entry.
func (b *Browser) handleDiscovery(entry *zeroconf.ServiceEntry) {
	txtMap := ParseTXTRecords(entry.Text)

	workerID := txtMap["worker_pid"]
	if workerID == "" {
		workerID = entry.Instance
	}

	var addr string
	for _, ip := range entry.AddrIPv4 {
		addr = net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port))
		break
	}
	if addr == "" {
		for _, ip := range entry.AddrIPv6 {
			addr = net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port))
			break
		}
	}
	if addr == "" {
		addr = net.JoinHostPort(entry.HostName, strconv.Itoa(entry.Port))
	}

	info := parseInfoFromTXT(txtMap)

	worker := &DiscoveredWorker{
		ID:           workerID,
		Address:      addr,
		Info:         info,
		DiscoveredAt: time.Now(),
		Source:       "mdns",
	}

	b.mu.Lock()
	_, exists := b.workers[workerID]
	b.workers[workerID] = worker
	b.mu.Unlock()

	if !exists {
		log.Info().
			Str("worker_id", workerID).
			Str("address", addr).
			Str("servable", info.ServableName).
			Msg("discovered worker via mDNS")

		if b.callback != nil {
			b.callback(worker, "found")
		}
	} else {
		b.mu.Lock()
		if w, ok := b.workers[workerID]; ok {
			w.DiscoveredAt = time.Now()
		}
		b.mu.Unlock()
	}
}

// parseInfoFromTXT builds a WorkerInfo from TXT records.
func parseInfoFromTXT(txt map[string]string) *WorkerInfo {
	info := &WorkerInfo{
		ServableName: txt["servable"],
		Version:      txt["version"],
	}

	if pid, err := strconv.ParseUint(txt["worker_pid"], 10, 64); err == nil {
		info.WorkerPid = pid
	}
	if bs, err := strconv.ParseUint(txt["batch_size"], 10, 64); err == nil {
		info.BatchSize = bs
	}
	if od, err := strconv.ParseBool(txt["own_device"]); err == nil {
		info.OwnDevice = od
	}

	return info
}

// cleanupLoop removes stale workers that haven't been re-discovered.
func (b *Browser) cleanupLoop() {
	ticker := time.NewTicker(b.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-b.browseCtx.Done():
			return
		case <-ticker.C:
			b.cleanup()
		}
	}
}

// cleanup removes workers that haven't been seen recently.
func (b *Browser) cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for id, worker := range b.workers {
		if now.Sub(worker.DiscoveredAt) > b.ttl {
			delete(b.workers, id)

			log.Info().
				Str("worker_id", id).
				Dur("age", now.Sub(worker.DiscoveredAt)).
				Msg("worker removed (TTL expired)")

			if b.callback != nil {
				b.callback(worker, "lost")
			}
		}
	}
}

// List returns all currently known workers.
func (b *Browser) List() []*DiscoveredWorker {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*DiscoveredWorker, 0, len(b.workers))
	for _, w := range b.workers {
		result = append(result, w)
	}
	return result
}

// Get returns a specific worker by ID.
func (b *Browser) Get(id string) (*DiscoveredWorker, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.workers[id]
	return w, ok
}

// Count returns the number of known workers.
func (b *Browser) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.workers)
}
