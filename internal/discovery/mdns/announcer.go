package mdns

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

const (
	ServiceType      = "_predictgrid._tcp"
	CoordServiceType = "_predictgrid-master._tcp"
	Domain           = "local."
)

// WorkerInfo describes a worker for mDNS announcement, mirroring the
// fields a WorkerRegSpec carries over gRPC.
type WorkerInfo struct {
	WorkerPid    uint64
	ServableName string
	BatchSize    uint64
	OwnDevice    bool
	Version      string
}

// Announcer advertises a worker via mDNS.
type Announcer struct {
	mu       sync.Mutex
	server   *zeroconf.Server
	instance string
	port     int
}

// AnnouncerConfig holds announcer configuration.
type AnnouncerConfig struct {
	Instance string // e.g., "worker-hostname-1234"
	Port     int
}

// NewAnnouncer creates a new mDNS announcer.
func NewAnnouncer(cfg AnnouncerConfig) *Announcer {
	return &Announcer{
		instance: cfg.Instance,
		port:     cfg.Port,
	}
}

// Start begins advertising the worker service via mDNS.
func (a *Announcer) Start(info *WorkerInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return fmt.Errorf("announcer already started")
	}

	txt := buildTXTRecords(info)

	log.Debug().
		Str("instance", a.instance).
		Int("port", a.port).
		Strs("txt", txt).
		Msg("Starting mDNS announcer")

	server, err := zeroconf.Register(
		a.instance,
		ServiceType,
		Domain,
		a.port,
		txt,
		nil, // Use all interfaces
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	a.server = server

	log.Info().
		Str("instance", a.instance).
		Str("service", ServiceType).
		Int("port", a.port).
		Msg("mDNS announcer started")

	return nil
}

// Stop stops advertising the worker service.
func (a *Announcer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		log.Info().Str("instance", a.instance).Msg("mDNS announcer stopped")
	}
}

// buildTXTRecords creates TXT records from worker info.
func buildTXTRecords(info *WorkerInfo) []string {
	var txt []string

	if info == nil {
		return txt
	}

	if info.ServableName != "" {
		txt = append(txt, "servable="+info.ServableName)
	}
	txt = append(txt, "worker_pid="+strconv.FormatUint(info.WorkerPid, 10))
	txt = append(txt, "batch_size="+strconv.FormatUint(info.BatchSize, 10))
	txt = append(txt, "own_device="+strconv.FormatBool(info.OwnDevice))
	if info.Version != "" {
		txt = append(txt, "version="+info.Version)
	}

	return txt
}

// ParseTXTRecords parses TXT records back into a map.
func ParseTXTRecords(txt []string) map[string]string {
	result := make(map[string]string)
	for _, record := range txt {
		parts := strings.SplitN(record, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}

// CoordAnnouncerConfig holds master announcer configuration.
type CoordAnnouncerConfig struct {
	Instance   string // e.g., "master-hostname"
	GRPCPort   int
	HTTPPort   int
	Version    string
	InstanceID string // unique ID for this master instance
}

// CoordAnnouncer advertises a master via mDNS.
type CoordAnnouncer struct {
	mu     sync.Mutex
	server *zeroconf.Server
	cfg    CoordAnnouncerConfig
}

// NewCoordAnnouncer creates a new master mDNS announcer.
func NewCoordAnnouncer(cfg CoordAnnouncerConfig) *CoordAnnouncer {
	return &CoordAnnouncer{cfg: cfg}
}

// Start begins advertising the master service via mDNS.
func (a *CoordAnnouncer) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return fmt.Errorf("master announcer already started")
	}

	txt := a.buildTXTRecords()

	log.Debug().
		Str("instance", a.cfg.Instance).
		Int("grpc_port", a.cfg.GRPCPort).
		Int("http_port", a.cfg.HTTPPort).
		Strs("txt", txt).
		Msg("Starting master mDNS announcer")

	server, err := zeroconf.Register(
		a.cfg.Instance,
		CoordServiceType,
		Domain,
		a.cfg.GRPCPort,
		txt,
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("failed to register master mDNS: %w", err)
	}

	a.server = server

	log.Info().
		Str("instance", a.cfg.Instance).
		Str("service", CoordServiceType).
		Int("grpc_port", a.cfg.GRPCPort).
		Msg("master mDNS announcer started")

	return nil
}

// buildTXTRecords creates TXT records for the master.
func (a *CoordAnnouncer) buildTXTRecords() []string {
	txt := []string{
		"grpc_port=" + strconv.Itoa(a.cfg.GRPCPort),
		"http_port=" + strconv.Itoa(a.cfg.HTTPPort),
	}
	if a.cfg.Version != "" {
		txt = append(txt, "version="+a.cfg.Version)
	}
	if a.cfg.InstanceID != "" {
		txt = append(txt, "instance_id="+a.cfg.InstanceID)
	}
	return txt
}

// Stop stops advertising the master service.
func (a *CoordAnnouncer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		log.Info().Str("instance", a.cfg.Instance).Msg("master mDNS announcer stopped")
	}
}
