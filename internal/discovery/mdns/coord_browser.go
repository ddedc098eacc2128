package mdns

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

// DiscoveredMaster is a pg-master found via mDNS, resolved from the
// CoordServiceType TXT records a CoordAnnouncer publishes.
type DiscoveredMaster struct {
	Instance   string
	Address    string // host:grpc_port
	GRPCPort   int
	HTTPPort   int
	Version    string
	InstanceID string
}

// CoordBrowserConfig configures a CoordBrowser.
type CoordBrowserConfig struct {
	Timeout time.Duration // discovery timeout
}

// DefaultCoordBrowserConfig returns a 10s discovery timeout.
func DefaultCoordBrowserConfig() CoordBrowserConfig {
	return CoordBrowserConfig{
		Timeout: 10 * time.Second,
	}
}

// CoordBrowser is the worker side of master discovery: it resolves a
// pg-master's gRPC address on the LAN so a pg-worker started without
// --master can still find one to register with.
type CoordBrowser struct {
	timeout time.Duration
}

// NewCoordBrowser creates a master-discovering browser.
func NewCoordBrowser(cfg CoordBrowserConfig) *CoordBrowser {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &CoordBrowser{
		timeout: cfg.Timeout,
	}
}

// Discover searches for a pg-master on the local network, returning the
// first one found or an error once the configured timeout expires.
func (b *CoordBrowser) Discover(ctx context.Context) (*DiscoveredMaster, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 10)
	result := make(chan *DiscoveredMaster, 1)
	errCh := make(chan error, 1)

	discoverCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	log.Debug().
		Str("service", CoordServiceType).
		Dur("timeout", b.timeout).
		Msg("starting master discovery")

	go func() {
		err := resolver.Browse(discoverCtx, CoordServiceType, Domain, entries)
		if err != nil {
			select {
			case errCh <- fmt.Errorf("browse failed: %w", err):
			default:
			}
		}
	}()

	go func() {
		for entry := range entries {
			if entry == nil {
				continue
			}
			master := b.parseEntry(entry)
			if master != nil {
				select {
				case result <- master:
				default:
				}
				return
			}
		}
	}()

	select {
	case master := <-result:
		log.Info().
			Str("instance", master.Instance).
			Str("address", master.Address).
			Msg("discovered master via mDNS")
		return master, nil
	case err := <-errCh:
		return nil, err
	case <-discoverCtx.Done():
		return nil, fmt.Errorf("master discovery timeout after %v", b.timeout)
	}
}

// parseEntry converts a zeroconf service entry into a DiscoveredMaster.
func (b *CoordBrowser) parseEntry(entry *zeroconf.ServiceEntry) *DiscoveredMaster {
	txt := ParseTXTRecords(entry.Text)

	grpcPort := entry.Port
	if p, err := strconv.Atoi(txt["grpc_port"]); err == nil {
		grpcPort = p
	}

	httpPort := 0
	if p, err := strconv.Atoi(txt["http_port"]); err == nil {
		httpPort = p
	}

	var host string
	for _, ip := range entry.AddrIPv4 {
		host = ip.String()
		break
	}
	if host == "" {
		for _, ip := range entry.AddrIPv6 {
			host = ip.String()
			break
		}
	}
	if host == "" {
		host = entry.HostName
	}

	addr := net.JoinHostPort(host, strconv.Itoa(grpcPort))

	return &DiscoveredMaster{
		Instance:   entry.Instance,
		Address:    addr,
		GRPCPort:   grpcPort,
		HTTPPort:   httpPort,
		Version:    txt["version"],
		InstanceID: txt["instance_id"],
	}
}

// DiscoverWithFallback tries mDNS discovery for a master and falls back to
// a configured address (typically PG_MASTER or --master) if discovery
// fails or finds nothing.
func (b *CoordBrowser) DiscoverWithFallback(ctx context.Context, fallback string) (string, error) {
	master, err := b.Discover(ctx)
	if err == nil {
		return master.Address, nil
	}

	log.Warn().
		Err(err).
		Str("fallback", fallback).
		Msg("mDNS master discovery failed, using fallback")

	if fallback != "" {
		return fallback, nil
	}

	return "", fmt.Errorf("no master found: mDNS failed (%v) and no fallback provided", err)
}
